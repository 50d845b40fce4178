// Package genai wraps the OpenAI chat completion API behind a small
// interface so conversation flows can be tested with fakes.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/turnero/turnero/internal/models"
)

// ErrNoChoices indicates the API returned an empty choice list.
var ErrNoChoices = errors.New("no completion choices returned")

// requestTimeout bounds a single completion call. The WhatsApp sender is
// waiting on this turn, so a stuck request must fail fast.
const requestTimeout = 60 * time.Second

// ToolCallResponse is the model's answer when tools are offered: free text,
// tool invocations, or both.
type ToolCallResponse struct {
	Content   string
	ToolCalls []models.ToolCall
}

// ClientInterface is the LLM surface consumed by conversation flows.
type ClientInterface interface {
	// GenerateWithMessages produces a plain text completion.
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
	// GenerateWithTools produces a completion that may invoke tools.
	GenerateWithTools(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) (*ToolCallResponse, error)
}

// Client implements ClientInterface against the OpenAI API.
type Client struct {
	client openai.Client
	model  openai.ChatModel
}

var _ ClientInterface = (*Client)(nil)

// Opts configures the Client.
type Opts struct {
	APIKey string
	Model  openai.ChatModel
}

// Option modifies Opts.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the default chat model.
func WithModel(model openai.ChatModel) Option {
	return func(o *Opts) { o.Model = model }
}

// NewClient creates an OpenAI-backed client.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}
	slog.Debug("GenAI client initialized", "model", cfg.Model)
	return &Client{
		client: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  cfg.Model,
	}, nil
}

// GenerateWithMessages produces a plain text completion.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		slog.Error("GenAI GenerateWithMessages failed", "error", err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateWithTools produces a completion that may invoke tools.
func (c *Client) GenerateWithTools(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) (*ToolCallResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
		Tools:    tools,
	})
	if err != nil {
		slog.Error("GenAI GenerateWithTools failed", "error", err)
		return nil, fmt.Errorf("chat completion with tools failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}

	choice := resp.Choices[0].Message
	out := &ToolCallResponse{Content: choice.Content, ToolCalls: toModelToolCalls(choice.ToolCalls)}
	slog.Debug("GenAI GenerateWithTools completed", "toolCalls", len(out.ToolCalls), "contentLength", len(out.Content))
	return out, nil
}

// toModelToolCalls converts the API's tool invocations into domain tool
// calls. The API ships arguments as a string of JSON; downstream parsing
// expects raw JSON bytes.
func toModelToolCalls(calls []openai.ChatCompletionMessageToolCall) []models.ToolCall {
	var out []models.ToolCall
	for _, tc := range calls {
		out = append(out, models.ToolCall{
			ID:   tc.ID,
			Type: string(tc.Type),
			Function: models.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: json.RawMessage(tc.Function.Arguments),
			},
		})
	}
	return out
}
