package cfbypass

import (
	"os"
	"strconv"
	"time"
)

// Config carries the interceptor's tunables. Zero values fall back to the
// package defaults at construction time.
type Config struct {
	MaxRetries       int
	RefreshTimeout   time.Duration
	SolveBaseTimeout time.Duration
	SolveTimeoutStep time.Duration
	UserAgent        string
	ProxyURL         string
}

// DefaultConfig returns the tuning the interceptor ships with.
func DefaultConfig() Config {
	return Config{
		MaxRetries:       1,
		RefreshTimeout:   DefaultRefreshTimeout,
		SolveBaseTimeout: DefaultSolveBaseTimeout,
		SolveTimeoutStep: DefaultSolveTimeoutStep,
		UserAgent:        DefaultUserAgent,
	}
}

// ConfigFromEnv builds a Config from environment variables, falling back to
// defaults for anything unset. Load a .env first (godotenv) if desired.
//
//	CFBYPASS_MAX_RETRIES       int
//	CFBYPASS_REFRESH_TIMEOUT   seconds
//	CFBYPASS_SOLVE_TIMEOUT     seconds (base window)
//	CFBYPASS_SOLVE_STEP        seconds (added per attempt)
//	CFBYPASS_PROXY             proxy URL for transport and browser
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := envInt("CFBYPASS_MAX_RETRIES"); v > 0 {
		cfg.MaxRetries = v
	}
	if v := envInt("CFBYPASS_REFRESH_TIMEOUT"); v > 0 {
		cfg.RefreshTimeout = time.Duration(v) * time.Second
	}
	if v := envInt("CFBYPASS_SOLVE_TIMEOUT"); v > 0 {
		cfg.SolveBaseTimeout = time.Duration(v) * time.Second
	}
	if v := envInt("CFBYPASS_SOLVE_STEP"); v > 0 {
		cfg.SolveTimeoutStep = time.Duration(v) * time.Second
	}
	if v := os.Getenv("CFBYPASS_PROXY"); v != "" {
		cfg.ProxyURL = v
	}

	return cfg
}

func envInt(key string) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return v
}
