package api

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o"

// OpenAIClient generates text through an OpenAI-compatible chat completions
// endpoint. BaseURL points it at local servers.
type OpenAIClient struct {
	client  openai.Client
	model   string
	tracker *TokenTracker
}

// OpenAIConfig contains configuration for creating an OpenAIClient.
type OpenAIConfig struct {
	Model   string
	APIKey  string
	BaseURL string
	// Options are appended to the SDK request options.
	Options []option.RequestOption
}

// NewOpenAIClient creates a chat completions client. A key is required for
// the hosted API; local servers reached through BaseURL may run without one.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
		}
		apiKey = "local"
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, cfg.Options...)

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	return &OpenAIClient{
		client:  openai.NewClient(opts...),
		model:   model,
		tracker: NewTokenTracker(),
	}, nil
}

// Generate implements Generator with a single chat completion.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4000
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               c.model,
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
		Temperature:         openai.Float(req.temperature()),
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	c.tracker.Add(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Tracker returns the token tracker for this client.
func (c *OpenAIClient) Tracker() *TokenTracker {
	return c.tracker
}
