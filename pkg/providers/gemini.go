package providers

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash-exp"

// GeminiClient queries Google AI models.
type GeminiClient struct {
	client *genai.Client
	logger *log.Logger
}

// Gemini builds a Google AI client. The API key falls back to GEMINI_API_KEY.
func Gemini(ctx context.Context, opts ...ProviderOption) (*GeminiClient, error) {
	params := buildParams(opts)
	if params.APIKey == "" {
		params.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if params.APIKey == "" {
		return nil, errors.New("GEMINI_API_KEY is not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  params.APIKey,
		Backend: genai.BackendGoogleAI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiClient{client: client, logger: params.Logger}, nil
}

func (c *GeminiClient) Complete(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = defaultGeminiModel
		c.logger.Printf("gemini: no model configured, using %s", model)
	}
	contents := []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: req.Prompt}}}}
	result, err := c.client.Models.GenerateContent(ctx, model, contents, generationConfig(req))
	if err != nil {
		return "", err
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", errors.New("gemini: response has no candidates")
	}
	var b strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String(), nil
}

// generationConfig maps the request options; nil keeps every model default.
func generationConfig(req Request) *genai.GenerateContentConfig {
	if req.System == "" && req.Temperature <= 0 && req.MaxTokens <= 0 {
		return nil
	}
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.Temperature > 0 {
		temperature := req.Temperature
		cfg.Temperature = &temperature
	}
	if req.MaxTokens > 0 {
		maxTokens := int64(req.MaxTokens)
		cfg.MaxOutputTokens = &maxTokens
	}
	return cfg
}
