package payload

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotJSON is returned when a value cannot be represented as JSON.
var ErrNotJSON = errors.New("value is not JSON-compatible")

// Normalize converts v into canonical JSON values (nil, bool, float64,
// string, []any, map[string]any). The result shares no memory with v.
func Normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJSON, err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJSON, err)
	}
	return out, nil
}

// NormalizeMap normalizes a mapping. A nil mapping becomes an empty one.
func NormalizeMap(m map[string]any) (map[string]any, error) {
	if m == nil {
		return map[string]any{}, nil
	}
	v, err := Normalize(m)
	if err != nil {
		return nil, err
	}
	out, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected an object", ErrNotJSON)
	}
	return out, nil
}

// Clone deep-copies canonical values.
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = Clone(x)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = Clone(x)
		}
		return out
	default:
		return v
	}
}

// CloneMap deep-copies a mapping, preserving nil.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return Clone(m).(map[string]any)
}
