package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/codeready-toolchain/finalstream/pkg/format"
)

// FinalstreamYAMLConfig is the structure of finalstream.yaml. Every section
// is optional; missing values keep their built-in defaults.
type FinalstreamYAMLConfig struct {
	Server     *ServerConfig               `yaml:"server"`
	Detector   *DetectorConfig             `yaml:"detector"`
	Transports map[string]*TransportConfig `yaml:"transports"`
	LLM        *LLMConfig                  `yaml:"llm"`
	Redis      *RedisConfig                `yaml:"redis"`
	Ledger     *LedgerConfig               `yaml:"ledger"`
	Log        *LogConfig                  `yaml:"log"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
//
// Steps performed:
//  1. Load finalstream.yaml from configDir (a missing file means defaults)
//  2. Expand {{.VAR}} environment references
//  3. Merge the file over the built-in defaults
//  4. Apply process environment overrides
//  5. Validate
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := ApplyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	log.Info("Configuration initialized successfully",
		"port", cfg.Server.Port,
		"marker_tokens", len(cfg.Detector.EffectiveMarker()),
		"llm_provider", cfg.LLM.Provider,
		"redis", cfg.Redis.Enabled(),
		"ledger", cfg.Ledger.Enabled)

	return cfg, nil
}

// Default returns the built-in configuration without reading any file.
func Default() *Config {
	cfg := &Config{
		Server:     DefaultServerConfig(),
		Detector:   DefaultDetectorConfig(),
		Transports: make(map[format.Kind]*TransportConfig, len(format.Kinds)),
		LLM:        DefaultLLMConfig(),
		Redis:      &RedisConfig{},
		Ledger:     DefaultLedgerConfig(),
		Log:        DefaultLogConfig(),
	}
	for _, kind := range format.Kinds {
		cfg.Transports[kind] = DefaultTransportConfig(kind)
	}
	return cfg
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	fileCfg, err := loader.loadFinalstreamYAML()
	switch {
	case errors.Is(err, ErrConfigNotFound):
		slog.Warn("Configuration file not found, using defaults",
			"file", filepath.Join(configDir, FileName))
		fileCfg = &FinalstreamYAMLConfig{}
	case err != nil:
		return nil, NewLoadError(FileName, err)
	}

	cfg := Default()
	cfg.configDir = configDir
	if err := mergeFile(cfg, fileCfg); err != nil {
		return nil, NewLoadError(FileName, err)
	}
	return cfg, nil
}

// mergeFile merges user values over the defaults in cfg. Non-zero user
// values win.
func mergeFile(cfg *Config, file *FinalstreamYAMLConfig) error {
	sections := []struct {
		name     string
		dst, src any
		present  bool
	}{
		{"server", cfg.Server, file.Server, file.Server != nil},
		{"detector", cfg.Detector, file.Detector, file.Detector != nil},
		{"llm", cfg.LLM, file.LLM, file.LLM != nil},
		{"redis", cfg.Redis, file.Redis, file.Redis != nil},
		{"ledger", cfg.Ledger, file.Ledger, file.Ledger != nil},
		{"log", cfg.Log, file.Log, file.Log != nil},
	}
	for _, s := range sections {
		if !s.present {
			continue
		}
		if err := mergo.Merge(s.dst, s.src, mergo.WithOverride); err != nil {
			return fmt.Errorf("failed to merge %s config: %w", s.name, err)
		}
	}

	for name, user := range file.Transports {
		kind := format.Kind(name)
		if !kind.IsValid() {
			return NewValidationError("transport", name, "", fmt.Errorf("%w: unknown transport kind", ErrInvalidValue))
		}
		if user == nil {
			continue
		}
		merged := DefaultTransportConfig(kind)
		if err := mergo.Merge(merged, user, mergo.WithOverride); err != nil {
			return fmt.Errorf("failed to merge transport %s config: %w", name, err)
		}
		// mergo skips a false that lands on a default true.
		if user.ForwardRecords != nil {
			merged.ForwardRecords = boolPtr(*user.ForwardRecords)
		}
		cfg.Transports[kind] = merged
	}
	return nil
}

func validate(cfg *Config) error {
	return NewValidator(cfg).ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return nil
}

func (l *configLoader) loadFinalstreamYAML() (*FinalstreamYAMLConfig, error) {
	var cfg FinalstreamYAMLConfig
	if err := l.loadYAML(FileName, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
