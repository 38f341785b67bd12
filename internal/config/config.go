// Package config loads the application configuration from the
// environment, with an optional YAML file override.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime settings.
type Config struct {
	// HTTPAddr is the listen address for the API server.
	HTTPAddr string `yaml:"http_addr"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// RedisAddr enables the Redis adapters when non-empty; otherwise the
	// in-memory adapters are used.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// SessionTTL is the idle lifetime of a session.
	SessionTTL time.Duration `yaml:"session_ttl"`
	// EvaluatorTimeout bounds each safety-evaluator call.
	EvaluatorTimeout time.Duration `yaml:"evaluator_timeout"`
	// LockTTL bounds a distributed per-session lock hold.
	LockTTL time.Duration `yaml:"lock_ttl"`

	// ConfidenceFloor is the confidence below which the breaker escalates.
	ConfidenceFloor float64 `yaml:"confidence_floor"`
	// ClarifyCeiling is the upper bound of the clarification band.
	ClarifyCeiling float64 `yaml:"clarify_ceiling"`
	// MaxRetries is the clarification budget per slot.
	MaxRetries int `yaml:"max_retries"`

	// AutoConfirmScore and ClarifyScore bound the disambiguation bands.
	AutoConfirmScore float64 `yaml:"auto_confirm_score"`
	ClarifyScore     float64 `yaml:"clarify_score"`

	// BackendFailureThreshold and BackendRecoveryTimeout tune the
	// pharmacy availability breaker.
	BackendFailureThreshold int           `yaml:"backend_failure_threshold"`
	BackendRecoveryTimeout  time.Duration `yaml:"backend_recovery_timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr:                ":8080",
		LogLevel:                "info",
		RedisDB:                 0,
		SessionTTL:              5 * time.Minute,
		EvaluatorTimeout:        3 * time.Second,
		LockTTL:                 10 * time.Second,
		ConfidenceFloor:         0.70,
		ClarifyCeiling:          0.85,
		MaxRetries:              3,
		AutoConfirmScore:        0.95,
		ClarifyScore:            0.75,
		BackendFailureThreshold: 5,
		BackendRecoveryTimeout:  30 * time.Second,
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// (skipped when path is empty), then environment variables. Later
// sources win.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.HTTPAddr, "RXFLOW_HTTP_ADDR")
	setString(&c.LogLevel, "RXFLOW_LOG_LEVEL")
	setString(&c.RedisAddr, "RXFLOW_REDIS_ADDR")
	setString(&c.RedisPassword, "RXFLOW_REDIS_PASSWORD")
	setInt(&c.RedisDB, "RXFLOW_REDIS_DB")
	setDuration(&c.SessionTTL, "RXFLOW_SESSION_TTL")
	setDuration(&c.EvaluatorTimeout, "RXFLOW_EVALUATOR_TIMEOUT")
	setDuration(&c.LockTTL, "RXFLOW_LOCK_TTL")
	setFloat(&c.ConfidenceFloor, "RXFLOW_CONFIDENCE_FLOOR")
	setFloat(&c.ClarifyCeiling, "RXFLOW_CLARIFY_CEILING")
	setInt(&c.MaxRetries, "RXFLOW_MAX_RETRIES")
	setFloat(&c.AutoConfirmScore, "RXFLOW_AUTO_CONFIRM_SCORE")
	setFloat(&c.ClarifyScore, "RXFLOW_CLARIFY_SCORE")
	setInt(&c.BackendFailureThreshold, "RXFLOW_BACKEND_FAILURE_THRESHOLD")
	setDuration(&c.BackendRecoveryTimeout, "RXFLOW_BACKEND_RECOVERY_TIMEOUT")
}

func (c *Config) validate() error {
	if c.ConfidenceFloor < 0 || c.ConfidenceFloor > 1 {
		return fmt.Errorf("confidence_floor must be in [0,1], got %v", c.ConfidenceFloor)
	}
	if c.ClarifyCeiling < c.ConfidenceFloor || c.ClarifyCeiling > 1 {
		return fmt.Errorf("clarify_ceiling must be in [confidence_floor,1], got %v", c.ClarifyCeiling)
	}
	if c.ClarifyScore > c.AutoConfirmScore {
		return fmt.Errorf("clarify_score %v exceeds auto_confirm_score %v", c.ClarifyScore, c.AutoConfirmScore)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be positive, got %d", c.MaxRetries)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive, got %v", c.SessionTTL)
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
