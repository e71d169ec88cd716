// Package llm connects the detector to a generation backend: a Gemini chat
// model wired into an eino graph that retrieves the request's documents,
// builds the prompt and streams the answer.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"

	"github.com/codeready-toolchain/finalstream/pkg/config"
)

// NewChatModel creates the chat model selected by cfg.
func NewChatModel(ctx context.Context, cfg *config.LLMConfig) (*gemini.ChatModel, error) {
	if cfg.Provider != config.ProviderGemini {
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	cm, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini chat model: %w", err)
	}

	slog.Info("LLM client configured", "provider", cfg.Provider, "model", cfg.Model)
	return cm, nil
}
