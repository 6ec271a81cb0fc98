package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/tanshuai2008/HouSmart-test/pkg/anthropic"
	"github.com/tanshuai2008/HouSmart-test/pkg/openai"
)

// ModelRequest is one generation call.
type ModelRequest struct {
	Prompt      Prompt
	Temperature float64
	MaxTokens   int
}

// Model generates a schema-shaped JSON object with a given credential.
// Implementations classify rate-limit responses as *resilience.QuotaError.
type Model interface {
	Name() string
	Generate(ctx context.Context, apiKey string, req ModelRequest) (json.RawMessage, error)
}

// clientCache builds one transport client per credential.
type clientCache[C any] struct {
	mu      sync.Mutex
	clients map[string]C
	build   func(apiKey string) C
}

func (c *clientCache[C]) get(apiKey string) C {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clients[apiKey]; ok {
		return cl
	}
	if c.clients == nil {
		c.clients = make(map[string]C)
	}
	cl := c.build(apiKey)
	c.clients[apiKey] = cl
	return cl
}

// AnthropicModel calls Claude with a forced tool whose input schema is the
// Result schema.
type AnthropicModel struct {
	model   string
	clients clientCache[anthropic.Client]
}

// NewAnthropicModel creates an AnthropicModel. opts are applied to every
// per-credential client.
func NewAnthropicModel(model string, opts ...anthropic.Option) *AnthropicModel {
	return &AnthropicModel{
		model: model,
		clients: clientCache[anthropic.Client]{build: func(key string) anthropic.Client {
			return anthropic.NewClient(key, opts...)
		}},
	}
}

// NewAnthropicModelWithClients uses build to construct per-credential
// clients.
func NewAnthropicModelWithClients(model string, build func(apiKey string) anthropic.Client) *AnthropicModel {
	return &AnthropicModel{model: model, clients: clientCache[anthropic.Client]{build: build}}
}

func (m *AnthropicModel) Name() string { return m.model }

func (m *AnthropicModel) Generate(ctx context.Context, apiKey string, req ModelRequest) (json.RawMessage, error) {
	temp := req.Temperature
	resp, err := m.clients.get(apiKey).CreateMessage(ctx, anthropic.MessageRequest{
		Model:       m.model,
		MaxTokens:   int64(req.MaxTokens),
		System:      anthropic.BuildCachedSystemBlocks(req.Prompt.System),
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt.User}},
		Temperature: &temp,
		Tools: []anthropic.Tool{{
			Name:        ToolName,
			Description: "Submit the structured location analysis.",
			Properties:  SchemaProperties(),
			Required:    RequiredFields(),
		}},
		ForceTool: ToolName,
	})
	if err != nil {
		return nil, err
	}
	resp.Usage.LogCost(m.model, "analysis")

	input, ok := resp.ToolInput(ToolName)
	if !ok {
		return nil, &SchemaViolationError{Problems: []string{"model did not call " + ToolName}}
	}
	return input, nil
}

// OpenAIModel calls a chat model in JSON-object mode with the schema
// embedded in the system prompt.
type OpenAIModel struct {
	model   string
	clients clientCache[openai.Client]
}

// NewOpenAIModel creates an OpenAIModel.
func NewOpenAIModel(model string, opts ...openai.Option) *OpenAIModel {
	return &OpenAIModel{
		model: model,
		clients: clientCache[openai.Client]{build: func(key string) openai.Client {
			return openai.NewClient(key, opts...)
		}},
	}
}

func (m *OpenAIModel) Name() string { return m.model }

func (m *OpenAIModel) Generate(ctx context.Context, apiKey string, req ModelRequest) (json.RawMessage, error) {
	resp, err := m.clients.get(apiKey).CompleteJSON(ctx, openai.ChatRequest{
		Model:       m.model,
		System:      req.Prompt.System + "\n\nRespond with a single JSON object matching this schema:\n" + SchemaJSON(),
		User:        req.Prompt.User,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		if errors.Is(err, openai.ErrEmptyResponse) {
			return nil, &SchemaViolationError{Problems: []string{"empty response"}}
		}
		return nil, err
	}
	return json.RawMessage(resp.Content), nil
}
