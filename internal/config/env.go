// Package config provides centralized configuration management.
// Eliminates scattered os.Getenv calls across the engine.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Env holds all DOCRELAY environment variables and tuning knobs.
type Env struct {
	// Project is the current project name (DOCRELAY_PROJECT)
	Project string

	// SessionID identifies this engine session (DOCRELAY_SESSION_ID)
	SessionID string

	// Concurrency caps parallel task execution per run (DOCRELAY_CONCURRENCY)
	Concurrency int

	// TaskTimeout bounds one task invocation (DOCRELAY_TASK_TIMEOUT_SEC)
	TaskTimeout time.Duration

	// PublishTimeout bounds one destination adapter call (DOCRELAY_PUBLISH_TIMEOUT_SEC)
	PublishTimeout time.Duration

	// RetryCap is the max publish attempts per destination (DOCRELAY_RETRY_CAP)
	RetryCap int

	// BreakerThreshold is consecutive failures before a breaker opens (DOCRELAY_BREAKER_THRESHOLD)
	BreakerThreshold int

	// BreakerCooldown is how long an open breaker waits before half_open (DOCRELAY_BREAKER_COOLDOWN_SEC)
	BreakerCooldown time.Duration

	// AutoApproveThreshold is the confidence floor for auto approval (DOCRELAY_AUTO_APPROVE)
	AutoApproveThreshold float64

	// MaxReasoningSteps bounds the iterative reasoning loop (DOCRELAY_MAX_STEPS)
	MaxReasoningSteps int

	// ComplexityThreshold is the score above which tasks escalate (DOCRELAY_COMPLEXITY_THRESHOLD)
	ComplexityThreshold float64
}

var (
	env     *Env
	envOnce sync.Once
)

// Get returns the singleton environment configuration.
// Thread-safe, loads once on first call.
func Get() *Env {
	envOnce.Do(func() {
		env = &Env{
			Project:              os.Getenv("DOCRELAY_PROJECT"),
			SessionID:            os.Getenv("DOCRELAY_SESSION_ID"),
			Concurrency:          getEnvInt("DOCRELAY_CONCURRENCY", 4),
			TaskTimeout:          getEnvSeconds("DOCRELAY_TASK_TIMEOUT_SEC", 60),
			PublishTimeout:       getEnvSeconds("DOCRELAY_PUBLISH_TIMEOUT_SEC", 30),
			RetryCap:             getEnvInt("DOCRELAY_RETRY_CAP", 3),
			BreakerThreshold:     getEnvInt("DOCRELAY_BREAKER_THRESHOLD", 5),
			BreakerCooldown:      getEnvSeconds("DOCRELAY_BREAKER_COOLDOWN_SEC", 30),
			AutoApproveThreshold: getEnvFloat("DOCRELAY_AUTO_APPROVE", 0.9),
			MaxReasoningSteps:    getEnvInt("DOCRELAY_MAX_STEPS", 5),
			ComplexityThreshold:  getEnvFloat("DOCRELAY_COMPLEXITY_THRESHOLD", 0.5),
		}
	})
	return env
}

// Reset resets the cached environment (for testing).
func Reset() {
	envOnce = sync.Once{}
	env = nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			return f
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}

// Paths holds standard docrelay directory paths.
type Paths struct {
	// Home is the docrelay home directory (~/.docrelay)
	Home string

	// Data is the data directory (~/.docrelay/data)
	Data string
}

var (
	paths     *Paths
	pathsOnce sync.Once
)

// GetPaths returns the singleton paths configuration.
func GetPaths() *Paths {
	pathsOnce.Do(func() {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		base := filepath.Join(home, ".docrelay")
		if v := os.Getenv("DOCRELAY_HOME"); v != "" {
			base = v
		}

		paths = &Paths{
			Home: base,
			Data: filepath.Join(base, "data"),
		}
	})
	return paths
}

// ResetPaths resets the cached paths (for testing).
func ResetPaths() {
	pathsOnce = sync.Once{}
	paths = nil
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
