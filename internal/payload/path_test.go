package payload

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Path
	}{
		{"empty", "", Path{}},
		{"single", "text", Path{{Key: "text"}}},
		{"dotted index", "items.0.amount", Path{{Key: "items"}, {Key: "0"}, {Key: "amount"}}},
		{"bracket index", "items[0].amount", Path{{Key: "items"}, {Key: "0", Index: 0, IsIndex: true}, {Key: "amount"}}},
		{"nested brackets", "grid[1][2]", Path{{Key: "grid"}, {Key: "1", Index: 1, IsIndex: true}, {Key: "2", Index: 2, IsIndex: true}}},
		{"quoted key", `meta["content.type"]`, Path{{Key: "meta"}, {Key: "content.type"}}},
		{"leading bracket", "[3].id", Path{{Key: "3", Index: 3, IsIndex: true}, {Key: "id"}}},
		{"bracket after dot", "items.[1]", Path{{Key: "items"}, {Key: "1", Index: 1, IsIndex: true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePath(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePath_Invalid(t *testing.T) {
	for _, in := range []string{"a..b", ".a", "a.", "a[0", "a[]", "a]", "a[0]b", `a["x]`, `a["x"`} {
		t.Run(in, func(t *testing.T) {
			_, err := ParsePath(in)
			assert.ErrorIs(t, err, ErrInvalidPath)
		})
	}
}

func TestPathString(t *testing.T) {
	p, err := ParsePath(`items[0].meta["a.b"].name`)
	require.NoError(t, err)
	assert.Equal(t, `items[0].meta["a.b"].name`, p.String())
}

func TestLookup(t *testing.T) {
	root := map[string]any{
		"text": "hello",
		"items": []any{
			map[string]any{"amount": 12.5},
			map[string]any{"amount": 3.0},
		},
		"nested": map[string]any{"0": "zero-key", "empty": nil},
	}

	tests := []struct {
		path  string
		want  any
		found bool
	}{
		{"text", "hello", true},
		{"items.0.amount", 12.5, true},
		{"items[1].amount", 3.0, true},
		{"items.2.amount", nil, false},
		{"items.-1", nil, false},
		{"nested.0", "zero-key", true},
		{"nested[0]", "zero-key", true},
		{"nested.empty", nil, true},
		{"text.length", nil, false},
		{"missing", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			p, err := ParsePath(tt.path)
			require.NoError(t, err)
			got, found := Lookup(root, p)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got)
		})
	}

	whole, found := Lookup(root, Path{})
	assert.True(t, found)
	assert.Equal(t, root, whole)
}

func TestNormalize(t *testing.T) {
	in := map[string]any{
		"count":  3,
		"ratio":  float32(0.5),
		"tags":   []string{"a", "b"},
		"nested": map[string]int{"x": 1},
	}
	out, err := NormalizeMap(in)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"count":  3.0,
		"ratio":  0.5,
		"tags":   []any{"a", "b"},
		"nested": map[string]any{"x": 1.0},
	}, out)

	_, err = NormalizeMap(map[string]any{"bad": math.NaN()})
	assert.ErrorIs(t, err, ErrNotJSON)

	empty, err := NormalizeMap(nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, empty)
}

func TestClone(t *testing.T) {
	orig := map[string]any{"list": []any{map[string]any{"k": "v"}}}
	cp := CloneMap(orig)
	cp["list"].([]any)[0].(map[string]any)["k"] = "changed"
	assert.Equal(t, "v", orig["list"].([]any)[0].(map[string]any)["k"])
	assert.Nil(t, CloneMap(nil))
}
