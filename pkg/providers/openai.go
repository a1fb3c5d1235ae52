package providers

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1/"

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	client *openai.Client
	logger *log.Logger
}

// OpenAI builds a client from the options. Unset options fall back to
// OPENAI_API_BASE_URL and OPENAI_API_KEY, then to the public endpoint.
func OpenAI(_ context.Context, opts ...ProviderOption) *OpenAIClient {
	params := buildParams(opts)
	if params.BaseURL == "" {
		params.BaseURL = os.Getenv("OPENAI_API_BASE_URL")
	}
	if params.BaseURL == "" {
		params.BaseURL = defaultOpenAIBaseURL
	}
	if params.APIKey == "" {
		params.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	reqOpts := []option.RequestOption{option.WithBaseURL(params.BaseURL)}
	if params.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(params.APIKey))
	}
	params.Logger.Printf("openai: using %s", params.BaseURL)
	return &OpenAIClient{
		client: openai.NewClient(reqOpts...),
		logger: params.Logger,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	if req.Model == "" {
		return "", errors.New("openai: model is required")
	}
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Messages: openai.F(messages),
		Model:    openai.F(req.Model),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.F(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.F(int64(req.MaxTokens))
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("openai: completion has no choices")
	}
	if reason := completion.Choices[0].FinishReason; reason == "length" {
		c.logger.Printf("openai: %s reply cut at %d tokens", req.Model, req.MaxTokens)
	}
	return completion.Choices[0].Message.Content, nil
}
