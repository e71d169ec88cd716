package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/codeready-toolchain/finalstream/pkg/format"
)

// ConfigValidator validates configuration with clear error messages
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll validates every section, stopping at the first error.
func (v *ConfigValidator) ValidateAll() error {
	if err := v.validateServer(); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}
	if err := v.validateDetector(); err != nil {
		return fmt.Errorf("detector validation failed: %w", err)
	}
	if err := v.validateTransports(); err != nil {
		return fmt.Errorf("transport validation failed: %w", err)
	}
	if err := v.validateLLM(); err != nil {
		return fmt.Errorf("LLM validation failed: %w", err)
	}
	if err := v.validateLedger(); err != nil {
		return fmt.Errorf("ledger validation failed: %w", err)
	}
	if err := v.validateLog(); err != nil {
		return fmt.Errorf("log validation failed: %w", err)
	}
	return nil
}

func (v *ConfigValidator) validateServer() error {
	s := v.cfg.Server
	if s.Port < 1 || s.Port > 65535 {
		return NewValidationError("server", "", "port", fmt.Errorf("%w: %d is not a TCP port", ErrInvalidValue, s.Port))
	}
	if s.WriteTimeout <= 0 {
		return NewValidationError("server", "", "write_timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if s.RequestTimeout <= 0 {
		return NewValidationError("server", "", "request_timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if s.ShutdownTimeout < 0 {
		return NewValidationError("server", "", "shutdown_timeout", fmt.Errorf("%w: must not be negative", ErrInvalidValue))
	}
	for _, origin := range s.CORSOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return NewValidationError("server", "", "cors_origins", fmt.Errorf("%w: %q must start with http:// or https://", ErrInvalidValue, origin))
		}
	}
	return nil
}

// validateDetector accepts an empty marker: it means every token is
// forwarded. Empty tokens inside a marker can never match a real token
// once the window is full, so they are rejected.
func (v *ConfigValidator) validateDetector() error {
	d := v.cfg.Detector
	if d.Disabled {
		return nil
	}
	if len(d.Marker) == 0 {
		slog.Warn("Detector marker is empty, every token will be forwarded")
		return nil
	}
	for i, tok := range d.Marker {
		if tok == "" {
			return NewValidationError("detector", "", "marker", fmt.Errorf("%w: token %d is empty", ErrInvalidValue, i))
		}
	}
	return nil
}

func (v *ConfigValidator) validateTransports() error {
	for kind, t := range v.cfg.Transports {
		if !kind.IsValid() {
			return NewValidationError("transport", string(kind), "", fmt.Errorf("%w: unknown transport kind", ErrInvalidValue))
		}
		if t.BufferSize < 1 {
			return NewValidationError("transport", string(kind), "buffer_size", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
		}
		if _, err := format.ParseRecordTemplate(t.RecordTemplate); err != nil {
			return NewValidationError("transport", string(kind), "record_template", fmt.Errorf("%w: %v", ErrInvalidValue, err))
		}
	}
	return nil
}

func (v *ConfigValidator) validateLLM() error {
	l := v.cfg.LLM
	switch l.Provider {
	case ProviderNone:
		return nil
	case ProviderGemini:
	default:
		return NewValidationError("llm", "", "provider", fmt.Errorf("%w: %q (want %s or %s)", ErrInvalidValue, l.Provider, ProviderGemini, ProviderNone))
	}
	if l.Model == "" {
		return NewValidationError("llm", l.Provider, "model", ErrMissingRequiredField)
	}
	if l.APIKey == "" {
		return NewValidationError("llm", l.Provider, "api_key", fmt.Errorf("%w: set GEMINI_API_KEY", ErrMissingRequiredField))
	}
	if l.Temperature != nil && (*l.Temperature < 0 || *l.Temperature > 2) {
		return NewValidationError("llm", l.Provider, "temperature", fmt.Errorf("%w: must be within [0, 2]", ErrInvalidValue))
	}
	if l.MaxTokens != nil && *l.MaxTokens < 1 {
		return NewValidationError("llm", l.Provider, "max_tokens", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateLedger() error {
	l := v.cfg.Ledger
	if !l.Enabled {
		return nil
	}
	if l.DatabaseURL == "" {
		return NewValidationError("ledger", "", "database_url", fmt.Errorf("%w: set FINALSTREAM_DATABASE_URL", ErrMissingRequiredField))
	}
	if l.MaxOpenConns < 1 {
		return NewValidationError("ledger", "", "max_open_conns", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if l.RetentionDays < 0 {
		return NewValidationError("ledger", "", "retention_days", fmt.Errorf("%w: must not be negative", ErrInvalidValue))
	}
	if l.RetentionDays > 0 && l.CleanupInterval <= 0 {
		return NewValidationError("ledger", "", "cleanup_interval", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateLog() error {
	switch strings.ToLower(v.cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return NewValidationError("log", "", "level", fmt.Errorf("%w: %q", ErrInvalidValue, v.cfg.Log.Level))
	}
	switch strings.ToLower(v.cfg.Log.Format) {
	case "text", "json":
	default:
		return NewValidationError("log", "", "format", fmt.Errorf("%w: %q", ErrInvalidValue, v.cfg.Log.Format))
	}
	return nil
}
