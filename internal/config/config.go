// Package config provides the environment-driven configuration for the
// concierge gateway. All settings come from environment variables; secrets are
// never hardcoded. [FromEnv] applies defaults and [Validate] reports every
// problem it finds as a single joined error.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// LogLevel controls log verbosity for the gateway.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Environment selects the deployment mode.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// IsValid reports whether e is a recognised environment.
func (e Environment) IsValid() bool {
	return e == EnvDevelopment || e == EnvProduction
}

// Config is the root configuration for the concierge gateway.
type Config struct {
	// ListenAddr is the TCP address the HTTP server listens on.
	ListenAddr string

	// AppEnv selects development or production behaviour (log format,
	// argument logging).
	AppEnv Environment

	// LogLevel controls verbosity.
	LogLevel LogLevel

	// RedisURL is the connection URL for the session store and rate limiter
	// (e.g., "redis://localhost:6379/0").
	RedisURL string

	// SessionTTL is the sliding session expiry.
	SessionTTL time.Duration

	// SessionMaxMessages caps the persisted conversation history per session.
	SessionMaxMessages int

	// RateLimitPerMin is the per-session request budget within a 60s window.
	RateLimitPerMin int

	// MaxFCRounds bounds the model invocations within one turn.
	MaxFCRounds int

	// TurnDeadline is the coarse wall-clock budget for a whole turn.
	TurnDeadline time.Duration

	// BackendURL is the base URL of the hotel REST backend.
	BackendURL string

	// BackendTimeout is the per-tool-call HTTP timeout.
	BackendTimeout time.Duration

	// LLMProvider selects the LLM backend ("openai", "anthropic", "gemini",
	// "ollama", "deepseek", "mistral", "groq").
	LLMProvider string

	// LLMAPIKey authenticates against the LLM provider. May be empty, in
	// which case the provider falls back to its own environment variable
	// (e.g., OPENAI_API_KEY).
	LLMAPIKey string

	// LLMModelMain is the model driving the function-calling dialogue.
	LLMModelMain string

	// LLMModelDetect is the (cheaper) model used for language detection.
	LLMModelDetect string

	// TTSAPIKey authenticates against ElevenLabs. Empty disables voice mode.
	TTSAPIKey string

	// TTSVoiceID selects the ElevenLabs voice. Required when TTSAPIKey is set.
	TTSVoiceID string

	// TTSModelID overrides the default ElevenLabs model.
	TTSModelID string
}

// FromEnv builds a Config from environment variables, applying defaults for
// everything optional. It does not validate; call [Validate] on the result.
func FromEnv() (*Config, error) {
	cfg := &Config{
		ListenAddr:     envString("LISTEN_ADDR", ":8080"),
		AppEnv:         Environment(envString("APP_ENV", string(EnvDevelopment))),
		LogLevel:       LogLevel(envString("LOG_LEVEL", string(LogInfo))),
		RedisURL:       envString("REDIS_URL", "redis://localhost:6379/0"),
		BackendURL:     envString("BACKEND_URL", "http://localhost:8081"),
		LLMProvider:    envString("LLM_PROVIDER", "openai"),
		LLMAPIKey:      os.Getenv("LLM_API_KEY"),
		LLMModelMain:   envString("LLM_MODEL_MAIN", "gpt-4o-mini"),
		LLMModelDetect: envString("LLM_MODEL_DETECT", "gpt-4o-mini"),
		TTSAPIKey:      os.Getenv("TTS_API_KEY"),
		TTSVoiceID:     os.Getenv("TTS_VOICE_ID"),
		TTSModelID:     os.Getenv("TTS_MODEL_ID"),
	}

	var errs []error

	ttlMin, err := envInt("SESSION_TTL_MIN", 60)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.SessionTTL = time.Duration(ttlMin) * time.Minute

	if cfg.SessionMaxMessages, err = envInt("SESSION_MAX_MESSAGES", 20); err != nil {
		errs = append(errs, err)
	}
	if cfg.RateLimitPerMin, err = envInt("RATE_LIMIT_PER_MIN", 30); err != nil {
		errs = append(errs, err)
	}
	if cfg.MaxFCRounds, err = envInt("MAX_FC_ROUNDS", 6); err != nil {
		errs = append(errs, err)
	}

	deadlineSec, err := envInt("TURN_DEADLINE_SEC", 60)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.TurnDeadline = time.Duration(deadlineSec) * time.Second

	backendSec, err := envInt("BACKEND_TIMEOUT_SEC", 10)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.BackendTimeout = time.Duration(backendSec) * time.Second

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.ListenAddr == "" {
		errs = append(errs, errors.New("LISTEN_ADDR must not be empty"))
	}
	if !cfg.AppEnv.IsValid() {
		errs = append(errs, fmt.Errorf("APP_ENV %q is invalid; valid values: development, production", cfg.AppEnv))
	}
	if !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	if _, err := url.Parse(cfg.RedisURL); cfg.RedisURL == "" || err != nil {
		errs = append(errs, fmt.Errorf("REDIS_URL %q is not a valid URL", cfg.RedisURL))
	}
	if u, err := url.Parse(cfg.BackendURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("BACKEND_URL %q is not an absolute URL", cfg.BackendURL))
	}

	if cfg.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL_MIN must be positive"))
	}
	if cfg.SessionMaxMessages <= 0 {
		errs = append(errs, errors.New("SESSION_MAX_MESSAGES must be positive"))
	}
	if cfg.RateLimitPerMin <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MIN must be positive"))
	}
	if cfg.MaxFCRounds <= 0 {
		errs = append(errs, errors.New("MAX_FC_ROUNDS must be positive"))
	}
	if cfg.TurnDeadline <= 0 {
		errs = append(errs, errors.New("TURN_DEADLINE_SEC must be positive"))
	}
	if cfg.BackendTimeout <= 0 {
		errs = append(errs, errors.New("BACKEND_TIMEOUT_SEC must be positive"))
	}

	if cfg.LLMModelMain == "" {
		errs = append(errs, errors.New("LLM_MODEL_MAIN must not be empty"))
	}
	if cfg.LLMModelDetect == "" {
		errs = append(errs, errors.New("LLM_MODEL_DETECT must not be empty"))
	}

	// TTS is optional, but a key without a voice (or vice versa) is a
	// misconfiguration rather than a disabled feature.
	if cfg.TTSAPIKey != "" && cfg.TTSVoiceID == "" {
		errs = append(errs, errors.New("TTS_VOICE_ID is required when TTS_API_KEY is set"))
	}
	if cfg.TTSVoiceID != "" && cfg.TTSAPIKey == "" {
		errs = append(errs, errors.New("TTS_API_KEY is required when TTS_VOICE_ID is set"))
	}

	return errors.Join(errs...)
}

// envString returns the value of key, or def when unset or empty.
func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envInt parses the value of key as an integer, returning def when unset.
func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s %q is not an integer", key, v)
	}
	return n, nil
}
