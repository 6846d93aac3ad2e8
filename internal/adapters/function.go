package adapters

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"dario.cat/mergo"

	"workflow-orchestrator/backend/internal/payload"
	"workflow-orchestrator/backend/pkg/models"
)

// Function is an in-process transformation invoked by the function adapter.
type Function func(ctx context.Context, config models.Payload, input models.Payload) (models.Payload, error)

// FunctionAdapter invokes functions registered under config.function_name.
type FunctionAdapter struct {
	mu        sync.RWMutex
	functions map[string]Function
}

// NewFunctionAdapter creates a FunctionAdapter with the built-in functions.
func NewFunctionAdapter() *FunctionAdapter {
	return &FunctionAdapter{
		functions: map[string]Function{
			"identity": identityFunction,
			"constant": constantFunction,
			"merge":    mergeFunction,
			"pick":     pickFunction,
		},
	}
}

// Register adds or replaces a named function.
func (a *FunctionAdapter) Register(name string, fn Function) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.functions[name] = fn
}

// Names lists the registered functions.
func (a *FunctionAdapter) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.functions))
	for name := range a.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the function named by config.function_name.
func (a *FunctionAdapter) Invoke(ctx context.Context, component *models.Component, config models.Payload, input models.Payload) (models.Payload, error) {
	name, err := stringOption(config, "function_name", true)
	if err != nil {
		return nil, err
	}
	a.mu.RLock()
	fn, ok := a.functions[name]
	a.mu.RUnlock()
	if !ok {
		return nil, invalidConfig("unknown function %q", name)
	}
	if err := ctx.Err(); err != nil {
		return nil, Permanent(err)
	}
	return fn(ctx, config, input)
}

func identityFunction(_ context.Context, _ models.Payload, input models.Payload) (models.Payload, error) {
	return payload.CloneMap(input), nil
}

// constantFunction returns config.payload regardless of input.
func constantFunction(_ context.Context, config models.Payload, _ models.Payload) (models.Payload, error) {
	raw, ok := config["payload"]
	if !ok || raw == nil {
		return models.Payload{}, nil
	}
	out, ok := raw.(map[string]any)
	if !ok {
		return nil, invalidConfig("payload must be an object, got %T", raw)
	}
	return payload.CloneMap(out), nil
}

// mergeFunction overlays input on config.defaults.
func mergeFunction(_ context.Context, config models.Payload, input models.Payload) (models.Payload, error) {
	out := models.Payload{}
	if raw, ok := config["defaults"]; ok && raw != nil {
		defaults, ok := raw.(map[string]any)
		if !ok {
			return nil, invalidConfig("defaults must be an object, got %T", raw)
		}
		out = payload.CloneMap(defaults)
	}
	if len(input) == 0 {
		return out, nil
	}
	if err := mergo.Merge(&out, payload.CloneMap(input), mergo.WithOverride); err != nil {
		return nil, Permanent(fmt.Errorf("merging input: %w", err))
	}
	return out, nil
}

// pickFunction keeps the input fields listed in config.fields.
func pickFunction(_ context.Context, config models.Payload, input models.Payload) (models.Payload, error) {
	fields, err := stringList(config, "fields")
	if err != nil {
		return nil, err
	}
	out := make(models.Payload, len(fields))
	for _, f := range fields {
		if v, ok := input[f]; ok {
			out[f] = payload.Clone(v)
		}
	}
	return out, nil
}

func stringOption(config models.Payload, key string, required bool) (string, error) {
	raw, ok := config[key]
	if !ok || raw == nil {
		if required {
			return "", invalidConfig("%s is required", key)
		}
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", invalidConfig("%s must be a string, got %T", key, raw)
	}
	if required && s == "" {
		return "", invalidConfig("%s is required", key)
	}
	return s, nil
}

func stringList(config models.Payload, key string) ([]string, error) {
	raw, ok := config[key]
	if !ok || raw == nil {
		return nil, invalidConfig("%s is required", key)
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for i, el := range v {
			s, ok := el.(string)
			if !ok {
				return nil, invalidConfig("%s[%d] must be a string, got %T", key, i, el)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, invalidConfig("%s must be a list of strings, got %T", key, raw)
	}
}

func stringMap(config models.Payload, key string) (map[string]string, error) {
	raw, ok := config[key]
	if !ok || raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, invalidConfig("%s must be an object, got %T", key, raw)
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		s, ok := v.(string)
		if !ok {
			return nil, invalidConfig("%s.%s must be a string, got %T", key, k, v)
		}
		out[k] = s
	}
	return out, nil
}
