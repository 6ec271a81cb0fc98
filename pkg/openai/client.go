// Package openai wraps go-openai chat completions in JSON-object mode.
package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"

	"github.com/tanshuai2008/HouSmart-test/internal/resilience"
)

// Provider is the name reported on classified errors.
const Provider = "openai"

// ErrEmptyResponse means the completion carried no choices.
var ErrEmptyResponse = eris.New("openai: empty response")

// Client defines the chat operations used by the pipeline.
type Client interface {
	CompleteJSON(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatRequest asks for a single JSON object.
type ChatRequest struct {
	Model       string
	System      string
	User        string
	MaxTokens   int
	Temperature float32
}

// ChatResponse is the raw JSON content plus token usage.
type ChatResponse struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

type client struct {
	api *openai.Client
}

// Option configures the client.
type Option func(*openai.ClientConfig)

// WithBaseURL points the client at a different API host.
func WithBaseURL(url string) Option {
	return func(c *openai.ClientConfig) { c.BaseURL = url }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *openai.ClientConfig) { c.HTTPClient = hc }
}

// NewClient creates a Client for apiKey.
func NewClient(apiKey string, opts ...Option) Client {
	cfg := openai.DefaultConfig(apiKey)
	for _, o := range opts {
		o(&cfg)
	}
	return &client{api: openai.NewClientWithConfig(cfg)}
}

// reasoningModel reports whether model only accepts max_completion_tokens.
func reasoningModel(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

func (c *client) CompleteJSON(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	creq := openai.ChatCompletionRequest{
		Model: req.Model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
	}
	if reasoningModel(req.Model) {
		creq.MaxCompletionTokens = req.MaxTokens
	} else {
		creq.MaxTokens = req.MaxTokens
		creq.Temperature = req.Temperature
	}

	resp, err := c.api.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, eris.Wrap(classify(err), "openai: create chat completion")
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	return &ChatResponse{
		Content:          resp.Choices[0].Message.Content,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// classify maps go-openai errors onto the resilience error types.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return resilience.ClassifyHTTPStatus(Provider, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return resilience.ClassifyHTTPStatus(Provider, reqErr.HTTPStatusCode, err)
	}
	return err
}
