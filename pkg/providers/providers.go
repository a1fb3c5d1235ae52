// Package providers wraps the hosted language models LLM agents can query.
package providers

import (
	"context"
	"fmt"
	"log"
	"strconv"
)

// Request is one prompt for a chat model. Zero Temperature and MaxTokens
// leave the provider defaults in place.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// RequestFor builds a request for model, reading "temperature" and
// "max_tokens" from the model's configuration. Other keys are ignored.
func RequestFor(model string, config map[string]any, system, prompt string) (Request, error) {
	req := Request{Model: model, System: system, Prompt: prompt}
	if v, ok := config["temperature"]; ok {
		f, err := number(v)
		if err != nil {
			return Request{}, fmt.Errorf("model %s: temperature: %w", model, err)
		}
		req.Temperature = f
	}
	if v, ok := config["max_tokens"]; ok {
		f, err := number(v)
		if err != nil {
			return Request{}, fmt.Errorf("model %s: max_tokens: %w", model, err)
		}
		req.MaxTokens = int(f)
	}
	return req, nil
}

func number(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("unsupported value %v (%T)", v, v)
	}
}

// Client completes a single request.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

type ProviderParams struct {
	BaseURL string
	APIKey  string
	Logger  *log.Logger
}

type ProviderOption func(*ProviderParams)

func WithBaseURL(baseURL string) ProviderOption {
	return func(p *ProviderParams) {
		p.BaseURL = baseURL
	}
}

func WithAPIKey(apiKey string) ProviderOption {
	return func(p *ProviderParams) {
		p.APIKey = apiKey
	}
}

func WithLogger(logger *log.Logger) ProviderOption {
	return func(p *ProviderParams) {
		p.Logger = logger
	}
}

func buildParams(opts []ProviderOption) ProviderParams {
	params := ProviderParams{Logger: log.Default()}
	for _, opt := range opts {
		opt(&params)
	}
	if params.Logger == nil {
		params.Logger = log.Default()
	}
	return params
}

// New returns the client for a provider by name: "openai" or "gemini".
func New(ctx context.Context, name string, opts ...ProviderOption) (Client, error) {
	switch name {
	case "", "openai":
		return OpenAI(ctx, opts...), nil
	case "gemini":
		return Gemini(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}
