// Package llm drives the model backend in streaming mode. The primary
// transport is langchaingo's OpenAI-compatible client; a raw SSE client is
// kept for endpoints reached directly (some reverse proxies buffer the
// langchaingo stream, and the raw client also gives us full control over
// frame filtering).
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// StreamFunc receives content fragments in upstream order.
type StreamFunc func(ctx context.Context, content string) error

// StreamClient is the transport contract the engine drives.
type StreamClient interface {
	// Stream sends the prompt and invokes fn for every non-empty content
	// fragment, in order, until the stream ends or ctx is cancelled.
	Stream(ctx context.Context, prompt string, fn StreamFunc) error
	ProviderName() string
	ModelName() string
}

// Config selects and parameterises the backend.
type Config struct {
	ProviderType string `koanf:"provider_type"` // openai, ollama, anthropic
	BaseURL      string `koanf:"base_url"`
	APIKey       string `koanf:"api_key"`
	Model        string `koanf:"model"`
}

// LangchainClient implements StreamClient over langchaingo.
type LangchainClient struct {
	model        llms.Model
	providerType string
	modelName    string
}

// NewLangchainClient initialises the backend named by cfg. The returned
// client is safe for concurrent streaming calls.
func NewLangchainClient(cfg Config) (*LangchainClient, error) {
	modelName := cfg.Model
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}

	var model llms.Model
	var err error
	switch strings.ToLower(cfg.ProviderType) {
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(modelName)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(strings.TrimSuffix(cfg.BaseURL, "/")))
		}
		model, err = ollama.New(opts...)
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("API key is required for Anthropic")
		}
		model, err = anthropic.New(anthropic.WithToken(cfg.APIKey), anthropic.WithModel(modelName))
	case "openai", "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("API key is required for OpenAI-compatible backends")
		}
		opts := []openai.Option{openai.WithToken(cfg.APIKey), openai.WithModel(modelName)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown LLM provider type %q", cfg.ProviderType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialise %s backend: %w", cfg.ProviderType, err)
	}

	log.Info().Str("provider", cfg.ProviderType).Str("model", modelName).Msg("LLM backend initialised")

	return &LangchainClient{
		model:        model,
		providerType: cfg.ProviderType,
		modelName:    modelName,
	}, nil
}

// Stream runs a single streaming completion. Empty fragments are filtered
// before fn sees them.
func (c *LangchainClient) Stream(ctx context.Context, prompt string, fn StreamFunc) error {
	_, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt,
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			return fn(ctx, string(chunk))
		}),
	)
	if err != nil {
		return classifyError(err)
	}
	return nil
}

func (c *LangchainClient) ProviderName() string { return c.providerType }
func (c *LangchainClient) ModelName() string    { return c.modelName }

func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return llmTimeout(err)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline") {
		return llmTimeout(err)
	}
	return llmTransport(err)
}
