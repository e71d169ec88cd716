// Package config loads finalstream.yaml, merges it over the built-in
// defaults, applies process environment overrides and validates the result.
package config

import (
	"time"

	"github.com/codeready-toolchain/finalstream/pkg/format"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "finalstream.yaml"

// Config is the resolved configuration, ready for use.
type Config struct {
	configDir string

	Server     *ServerConfig
	Detector   *DetectorConfig
	Transports map[format.Kind]*TransportConfig
	LLM        *LLMConfig
	Redis      *RedisConfig
	Ledger     *LedgerConfig
	Log        *LogConfig
}

// ConfigDir returns the directory the configuration was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// Transport returns the settings for kind, falling back to the built-in
// defaults for kinds the file does not mention.
func (c *Config) Transport(kind format.Kind) *TransportConfig {
	if t, ok := c.Transports[kind]; ok && t != nil {
		return t
	}
	return DefaultTransportConfig(kind)
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port int `yaml:"port"`

	// WriteTimeout bounds one websocket frame write.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// RequestTimeout bounds one generation, from prompt to run end.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// ShutdownTimeout is how long in-flight streams get to finish on
	// SIGTERM.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// AllowedWSOrigins are extra origin patterns accepted on the websocket
	// endpoint. Same-origin requests are always accepted.
	AllowedWSOrigins []string `yaml:"allowed_ws_origins"`

	// CORSOrigins are browser origins allowed to call the HTTP answer
	// endpoints. Empty disables CORS handling.
	CORSOrigins []string `yaml:"cors_origins"`
}

// DetectorConfig holds the final answer marker.
type DetectorConfig struct {
	// Marker is the ordered list of exact tokens that precede the final
	// answer.
	Marker []string `yaml:"marker"`

	// Disabled turns detection off: every token is forwarded.
	Disabled bool `yaml:"disabled"`
}

// EffectiveMarker returns the marker the detector should use. A disabled
// detector has an empty marker.
func (d *DetectorConfig) EffectiveMarker() []string {
	if d.Disabled {
		return nil
	}
	return append([]string(nil), d.Marker...)
}

// TransportConfig holds per-transport delivery settings.
type TransportConfig struct {
	// BufferSize is the dispatcher queue length.
	BufferSize int `yaml:"buffer_size"`

	// ForwardRecords sends the run's source documents after the answer.
	ForwardRecords *bool `yaml:"forward_records,omitempty"`

	// RecordHeader is sent once before the records. Empty means none.
	RecordHeader string `yaml:"record_header"`

	// RecordTemplate renders one record; see format.Options.
	RecordTemplate string `yaml:"record_template"`
}

// Forward reports whether records are forwarded on this transport.
func (t *TransportConfig) Forward() bool {
	return t.ForwardRecords != nil && *t.ForwardRecords
}

// FormatOptions converts the settings for format.NewFormatter.
func (t *TransportConfig) FormatOptions() format.Options {
	return format.Options{
		RecordTemplate: t.RecordTemplate,
		RecordHeader:   t.RecordHeader,
	}
}

// LLMConfig holds the generation backend settings.
type LLMConfig struct {
	// Provider is "gemini", or "none" to run without a backend.
	Provider    string   `yaml:"provider"`
	Model       string   `yaml:"model"`
	APIKey      string   `yaml:"api_key"`
	BaseURL     string   `yaml:"base_url"`
	Temperature *float32 `yaml:"temperature,omitempty"`
	MaxTokens   *int     `yaml:"max_tokens,omitempty"`

	// SystemPrompt instructs the model how to end its answer; it should
	// make the model emit the configured marker.
	SystemPrompt string `yaml:"system_prompt"`

	// SplitTokens splits streamed chunks into word tokens before
	// detection.
	SplitTokens bool `yaml:"split_tokens"`
}

// Enabled reports whether a generation backend is configured.
func (l *LLMConfig) Enabled() bool {
	return l.Provider != "" && l.Provider != ProviderNone
}

// RedisConfig holds the cross-replica fan-out settings.
type RedisConfig struct {
	// URL is a redis:// URL. Empty disables fan-out.
	URL string `yaml:"url"`
}

// Enabled reports whether fan-out is configured.
func (r *RedisConfig) Enabled() bool {
	return r.URL != ""
}

// LedgerConfig holds the run ledger database settings.
type LedgerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DatabaseURL     string        `yaml:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`

	// RetentionDays is how long finished runs are kept. Zero keeps them
	// forever.
	RetentionDays int `yaml:"retention_days"`

	// CleanupInterval is how often expired runs are pruned.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}
