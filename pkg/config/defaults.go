package config

import (
	"time"

	"github.com/codeready-toolchain/finalstream/pkg/detector"
	"github.com/codeready-toolchain/finalstream/pkg/format"
	"github.com/codeready-toolchain/finalstream/pkg/sink"
)

// Provider names.
const (
	ProviderGemini = "gemini"
	ProviderNone   = "none"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// DefaultSystemPrompt asks the model to think first and put its answer
// after a "Final Answer:" line, which PlainMarker matches.
const DefaultSystemPrompt = `Answer the user's question using the source documents when they are relevant.
Think step by step first. When you are done thinking, write a line starting with
"Final Answer:" followed by the answer for the user. Write nothing after the answer.`

// DefaultServerConfig returns the built-in listener defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            8080,
		WriteTimeout:    10 * time.Second,
		RequestTimeout:  2 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}

// DefaultDetectorConfig returns the built-in detector defaults: the marker
// of a JSON-speaking agent.
func DefaultDetectorConfig() *DetectorConfig {
	return &DetectorConfig{Marker: detector.AgentMarker()}
}

// DefaultTransportConfig returns the built-in defaults for kind. Records
// are forwarded on the push stream (with a header) and on the socket
// (without one); the structured JSON stream carries tokens only.
func DefaultTransportConfig(kind format.Kind) *TransportConfig {
	cfg := &TransportConfig{
		BufferSize:     sink.DefaultQueueSize,
		RecordTemplate: format.DefaultRecordTemplate,
	}
	switch kind {
	case format.KindPushStream:
		cfg.ForwardRecords = boolPtr(true)
		cfg.RecordHeader = format.DefaultRecordHeader
	case format.KindSocket:
		cfg.ForwardRecords = boolPtr(true)
	default:
		cfg.ForwardRecords = boolPtr(false)
	}
	return cfg
}

// DefaultLLMConfig returns the built-in generation defaults.
func DefaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		Provider:     ProviderGemini,
		Model:        DefaultModel,
		SystemPrompt: DefaultSystemPrompt,
	}
}

// DefaultLedgerConfig returns the built-in ledger defaults. The ledger is
// off unless enabled.
func DefaultLedgerConfig() *LedgerConfig {
	return &LedgerConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		RetentionDays:   30,
		CleanupInterval: time.Hour,
	}
}

// DefaultLogConfig returns the built-in logging defaults.
func DefaultLogConfig() *LogConfig {
	return &LogConfig{Level: "info", Format: "text"}
}

func boolPtr(b bool) *bool {
	return &b
}
