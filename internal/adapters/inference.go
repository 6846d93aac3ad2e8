package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// DefaultAPIVersion is the chat completions API version used when a model
// profile does not set one.
const DefaultAPIVersion = "2024-02-01"

// ChatMessage is one message of a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat requests structured output from the backend.
type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatRequest is an OpenAI-compatible chat completion request.
type ChatRequest struct {
	Messages       []ChatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// Usage reports the tokens consumed by a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the first choice of a chat completion.
type ChatResponse struct {
	Content      string
	FinishReason string
	Model        string
	Usage        Usage
}

// InferenceClient calls a chat completion backend.
type InferenceClient interface {
	Complete(ctx context.Context, deployment string, req ChatRequest) (*ChatResponse, error)
}

// HTTPInferenceClient is an HTTP implementation of InferenceClient for
// Azure OpenAI style deployments.
type HTTPInferenceClient struct {
	endpoint   string
	apiKey     string
	apiVersion string
	client     *http.Client
}

// NewHTTPInferenceClient creates a new HTTPInferenceClient.
func NewHTTPInferenceClient(endpoint, apiKey, apiVersion string, client *http.Client) *HTTPInferenceClient {
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &HTTPInferenceClient{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		apiVersion: apiVersion,
		client:     client,
	}
}

type completionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// Complete returns the first choice for req.
func (c *HTTPInferenceClient) Complete(ctx context.Context, deployment string, req ChatRequest) (*ChatResponse, error) {
	requestBody, err := json.Marshal(req)
	if err != nil {
		return nil, Permanent(fmt.Errorf("failed to marshal request body: %w", err))
	}

	target := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		c.endpoint, url.PathEscape(deployment), url.QueryEscape(c.apiVersion))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(requestBody))
	if err != nil {
		return nil, invalidConfig("failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(fmt.Errorf("failed to make request: %w", err))
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return nil, err
	}

	var completion completionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return nil, Permanent(fmt.Errorf("%w: failed to decode response body: %v", ErrContract, err))
	}
	if len(completion.Choices) == 0 {
		return nil, Permanent(fmt.Errorf("%w: completion has no choices", ErrContract))
	}

	choice := completion.Choices[0]
	return &ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Model:        completion.Model,
		Usage:        completion.Usage,
	}, nil
}
