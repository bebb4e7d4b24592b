package llm

import (
	"context"
	"fmt"
	"net/http"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	"github.com/pricepilot/backend/internal/domain"
)

// DefaultCohereModel is used when no model is configured
const DefaultCohereModel = "command-r"

// CohereClient implements domain.LLMClient with the Cohere chat API
type CohereClient struct {
	client *cohereclient.Client
	model  string
}

// NewCohereClient creates a Cohere chat client
func NewCohereClient(config Config) *CohereClient {
	model := config.Model
	if model == "" {
		model = DefaultCohereModel
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := cohereclient.NewClient(
		cohereclient.WithToken(config.APIKey),
		cohereclient.WithHTTPClient(&http.Client{Timeout: timeout}),
	)
	return &CohereClient{client: client, model: model}
}

// Model returns the model name
func (c *CohereClient) Model() string { return c.model }

// Complete sends the prompt with the system text as preamble
func (c *CohereClient) Complete(ctx context.Context, req domain.ChatRequest) (string, error) {
	temperature := req.Temperature
	request := &cohere.ChatRequest{
		Message:     req.User,
		Model:       &c.model,
		Temperature: &temperature,
	}
	if req.System != "" {
		preamble := req.System
		request.Preamble = &preamble
	}
	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		request.MaxTokens = &maxTokens
	}

	resp, err := c.client.Chat(ctx, request)
	if err != nil {
		return "", fmt.Errorf("%w: cohere chat: %v", domain.ErrModelUnavailable, err)
	}
	if resp == nil || resp.Text == "" {
		return "", fmt.Errorf("%w: cohere returned an empty response", domain.ErrModelUnavailable)
	}
	return resp.Text, nil
}
