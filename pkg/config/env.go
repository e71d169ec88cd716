package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// EnvOverrides are process-level settings that win over finalstream.yaml.
// Unset variables leave the file values alone.
type EnvOverrides struct {
	HTTPPort     int    `envconfig:"FINALSTREAM_HTTP_PORT"`
	RedisURL     string `envconfig:"FINALSTREAM_REDIS_URL"`
	DatabaseURL  string `envconfig:"FINALSTREAM_DATABASE_URL"`
	LogLevel     string `envconfig:"FINALSTREAM_LOG_LEVEL"`
	LLMProvider  string `envconfig:"FINALSTREAM_LLM_PROVIDER"`
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`
	GeminiModel  string `envconfig:"GEMINI_MODEL"`
	GeminiURL    string `envconfig:"GEMINI_BASE_URL"`
}

// LoadEnvOverrides reads the overrides from the environment.
func LoadEnvOverrides() (*EnvOverrides, error) {
	var env EnvOverrides
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return &env, nil
}

// ApplyEnvOverrides reads the environment and applies it to cfg.
func ApplyEnvOverrides(cfg *Config) error {
	env, err := LoadEnvOverrides()
	if err != nil {
		return err
	}
	env.Apply(cfg)
	return nil
}

// Apply copies every set override into cfg. A database URL also enables
// the ledger.
func (e *EnvOverrides) Apply(cfg *Config) {
	if e.HTTPPort != 0 {
		cfg.Server.Port = e.HTTPPort
	}
	if e.RedisURL != "" {
		cfg.Redis.URL = e.RedisURL
	}
	if e.DatabaseURL != "" {
		cfg.Ledger.DatabaseURL = e.DatabaseURL
		cfg.Ledger.Enabled = true
	}
	if e.LogLevel != "" {
		cfg.Log.Level = e.LogLevel
	}
	if e.LLMProvider != "" {
		cfg.LLM.Provider = e.LLMProvider
	}
	if e.GeminiAPIKey != "" {
		cfg.LLM.APIKey = e.GeminiAPIKey
	}
	if e.GeminiModel != "" {
		cfg.LLM.Model = e.GeminiModel
	}
	if e.GeminiURL != "" {
		cfg.LLM.BaseURL = e.GeminiURL
	}
}
