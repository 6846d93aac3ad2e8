package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"workflow-orchestrator/backend/internal/payload"
	"workflow-orchestrator/backend/pkg/models"
)

const meterName = "workflow-orchestrator/adapters"

// ModelProfile binds a model_name to an inference backend.
type ModelProfile struct {
	Client     InferenceClient
	Deployment string
	// Defaults are step config values applied under the step's own config,
	// e.g. system_prompt or temperature.
	Defaults models.Payload
}

// ModelAdapter sends step input to an inference backend.
//
// Step config:
//
//	model_name:      profile to use (required)
//	deployment_name: overrides the profile deployment
//	system_prompt:   system message prepended to the conversation
//	temperature:     sampling temperature
//	max_tokens:      completion limit
//	json_output:     parse the completion as a JSON object and return it
//
// The input's "messages" list is sent as-is when present. Otherwise the
// user message is input.prompt, or the whole input encoded as JSON.
type ModelAdapter struct {
	profiles map[string]ModelProfile
	tokens   metric.Int64Counter
}

// NewModelAdapter creates a ModelAdapter. A nil meter uses the global
// meter provider.
func NewModelAdapter(profiles map[string]ModelProfile, meter metric.Meter) (*ModelAdapter, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	tokens, err := meter.Int64Counter("workflow.model.tokens",
		metric.WithDescription("Tokens consumed by model components"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, fmt.Errorf("creating token counter: %w", err)
	}
	normalized := make(map[string]ModelProfile, len(profiles))
	for name, p := range profiles {
		if len(p.Defaults) > 0 {
			defaults, err := payload.NormalizeMap(p.Defaults)
			if err != nil {
				return nil, fmt.Errorf("model profile %q defaults: %w", name, err)
			}
			p.Defaults = defaults
		}
		normalized[name] = p
	}
	return &ModelAdapter{profiles: normalized, tokens: tokens}, nil
}

// Invoke runs a chat completion for the step.
func (a *ModelAdapter) Invoke(ctx context.Context, component *models.Component, config models.Payload, input models.Payload) (models.Payload, error) {
	modelName, err := stringOption(config, "model_name", true)
	if err != nil {
		return nil, err
	}
	profile, ok := a.profiles[modelName]
	if !ok || profile.Client == nil {
		return nil, invalidConfig("unknown model %q", modelName)
	}

	settings := payload.CloneMap(config)
	if settings == nil {
		settings = models.Payload{}
	}
	for k, v := range profile.Defaults {
		if _, set := settings[k]; !set {
			settings[k] = payload.Clone(v)
		}
	}

	deployment, err := stringOption(settings, "deployment_name", false)
	if err != nil {
		return nil, err
	}
	if deployment == "" {
		deployment = profile.Deployment
	}
	if deployment == "" {
		return nil, invalidConfig("model %q has no deployment", modelName)
	}

	req, jsonOutput, err := buildChatRequest(settings, input)
	if err != nil {
		return nil, err
	}

	resp, err := profile.Client.Complete(ctx, deployment, *req)
	if err != nil {
		return nil, err
	}

	attrs := []attribute.KeyValue{
		attribute.String("model_name", modelName),
		attribute.String("deployment", deployment),
	}
	if component != nil {
		attrs = append(attrs, attribute.String("component_id", component.ID))
	}
	a.tokens.Add(ctx, int64(resp.Usage.PromptTokens),
		metric.WithAttributes(append(attrs, attribute.String("token_type", "prompt"))...))
	a.tokens.Add(ctx, int64(resp.Usage.CompletionTokens),
		metric.WithAttributes(append(attrs, attribute.String("token_type", "completion"))...))

	if jsonOutput {
		return parseJSONContent(resp.Content)
	}
	return models.Payload{
		"content":       resp.Content,
		"finish_reason": resp.FinishReason,
		"model":         resp.Model,
		"usage": map[string]any{
			"prompt_tokens":     float64(resp.Usage.PromptTokens),
			"completion_tokens": float64(resp.Usage.CompletionTokens),
			"total_tokens":      float64(resp.Usage.TotalTokens),
		},
	}, nil
}

func buildChatRequest(settings models.Payload, input models.Payload) (*ChatRequest, bool, error) {
	req := &ChatRequest{}

	systemPrompt, err := stringOption(settings, "system_prompt", false)
	if err != nil {
		return nil, false, err
	}
	if raw, ok := settings["temperature"]; ok && raw != nil {
		t, ok := raw.(float64)
		if !ok {
			return nil, false, invalidConfig("temperature must be a number, got %T", raw)
		}
		req.Temperature = &t
	}
	if raw, ok := settings["max_tokens"]; ok && raw != nil {
		n, ok := raw.(float64)
		if !ok || n < 0 {
			return nil, false, invalidConfig("max_tokens must be a non-negative number")
		}
		req.MaxTokens = int(n)
	}
	jsonOutput := false
	if raw, ok := settings["json_output"]; ok && raw != nil {
		b, ok := raw.(bool)
		if !ok {
			return nil, false, invalidConfig("json_output must be a boolean, got %T", raw)
		}
		jsonOutput = b
	}
	if jsonOutput {
		req.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}

	messages, err := inputMessages(input)
	if err != nil {
		return nil, false, err
	}
	if systemPrompt != "" && (len(messages) == 0 || messages[0].Role != "system") {
		messages = append([]ChatMessage{{Role: "system", Content: systemPrompt}}, messages...)
	}
	req.Messages = messages
	return req, jsonOutput, nil
}

func inputMessages(input models.Payload) ([]ChatMessage, error) {
	if raw, ok := input["messages"].([]any); ok {
		messages := make([]ChatMessage, 0, len(raw))
		for i, el := range raw {
			m, ok := el.(map[string]any)
			if !ok {
				return nil, Permanent(fmt.Errorf("messages[%d] must be an object", i))
			}
			role, _ := m["role"].(string)
			content, _ := m["content"].(string)
			if role == "" {
				return nil, Permanent(fmt.Errorf("messages[%d] has no role", i))
			}
			messages = append(messages, ChatMessage{Role: role, Content: content})
		}
		return messages, nil
	}

	if prompt, ok := input["prompt"].(string); ok {
		return []ChatMessage{{Role: "user", Content: prompt}}, nil
	}
	data, err := json.Marshal(input)
	if err != nil {
		return nil, Permanent(fmt.Errorf("encoding input: %w", err))
	}
	return []ChatMessage{{Role: "user", Content: string(data)}}, nil
}

// parseJSONContent decodes a completion that should be a JSON object,
// tolerating a surrounding markdown code fence.
func parseJSONContent(content string) (models.Payload, error) {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, Permanent(fmt.Errorf("%w: completion is not a JSON object: %v", ErrContract, err))
	}
	if out == nil {
		out = models.Payload{}
	}
	return out, nil
}
