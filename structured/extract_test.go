package structured

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "bare object",
			text: `{"a": 1}`,
			want: `{"a": 1}`,
		},
		{
			name: "leading whitespace",
			text: "\n\t {\"a\": 1} ",
			want: `{"a": 1}`,
		},
		{
			name: "json fence",
			text: "Here you go:\n```json\n{\"a\": 1}\n```\nHope that helps.",
			want: `{"a": 1}`,
		},
		{
			name: "bare fence",
			text: "```\n[1, 2, 3]\n```",
			want: `[1, 2, 3]`,
		},
		{
			name: "uppercase fence label",
			text: "```JSON\n42\n```",
			want: `42`,
		},
		{
			name: "mixed case fence label",
			text: "Sure:\n```Json\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "json fence preferred over earlier fence",
			text: "```python\nx = 1\n```\nwhich prints:\n```json\n{\"a\": 2}\n```",
			want: `{"a": 2}`,
		},
		{
			name: "embedded object",
			text: `The answer is {"total": 42, "note": "a {brace} in a string"} as computed.`,
			want: `{"total": 42, "note": "a {brace} in a string"}`,
		},
		{
			name: "embedded array",
			text: `Results: ["a", "b"] done`,
			want: `["a", "b"]`,
		},
		{
			name: "escaped quotes",
			text: `{"s": "she said \"hi\""}`,
			want: `{"s": "she said \"hi\""}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Extract(tc.text)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(got))
		})
	}
}

func TestExtractNoJSON(t *testing.T) {
	for _, text := range []string{"", "plain prose only", "unbalanced {«", "``` not json ```"} {
		_, err := Extract(text)
		var xerr *ExtractError
		assert.ErrorAs(t, err, &xerr, text)
	}
}

func TestValidate(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []any{"name", "items"},
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
			"items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []any{"price"},
					"properties": map[string]any{
						"price": map[string]any{"type": "number"},
					},
				},
			},
		},
	}

	err := Validate(map[string]any{
		"name":  "order",
		"items": []any{map[string]any{"price": 9.5}},
	}, schema)
	assert.NoError(t, err)

	err = Validate(map[string]any{
		"name":  "order",
		"items": []any{map[string]any{"price": 1.0}, map[string]any{"price": 2.0}, map[string]any{"price": "three"}},
	}, schema)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "items[2].price", verr.Path)
	assert.Equal(t, "number", verr.Want)
	assert.Equal(t, "string", verr.Got)
}

func TestValidateVariants(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		schema map[string]any
		ok     bool
	}{
		{
			name:   "integer accepts whole float",
			value:  float64(3),
			schema: map[string]any{"type": "integer"},
			ok:     true,
		},
		{
			name:   "integer rejects fraction",
			value:  3.5,
			schema: map[string]any{"type": "integer"},
			ok:     false,
		},
		{
			name:   "enum match",
			value:  "red",
			schema: map[string]any{"type": "string", "enum": []any{"red", "blue"}},
			ok:     true,
		},
		{
			name:   "enum miss",
			value:  "green",
			schema: map[string]any{"type": "string", "enum": []any{"red", "blue"}},
			ok:     false,
		},
		{
			name:  "anyOf takes any branch",
			value: map[string]any{"kind": "circle", "radius": 1.0},
			schema: map[string]any{
				"anyOf": []any{
					map[string]any{"type": "object", "properties": map[string]any{"kind": map[string]any{"const": "circle"}}},
					map[string]any{"type": "object", "properties": map[string]any{"kind": map[string]any{"const": "square"}}},
				},
			},
			ok: true,
		},
		{
			name:   "additionalProperties false rejects unknown",
			value:  map[string]any{"a": 1.0, "z": true},
			schema: map[string]any{"type": "object", "properties": map[string]any{"a": map[string]any{"type": "number"}}, "additionalProperties": false},
			ok:     false,
		},
		{
			name:   "missing required names the field",
			value:  map[string]any{},
			schema: map[string]any{"type": "object", "required": []any{"name"}},
			ok:     false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.value, tc.schema)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestExtractAndValidate(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []any{"total"},
		"properties": map[string]any{
			"total": map[string]any{"type": "number"},
		},
	}

	raw, err := ExtractAndValidate("```json\n{\"total\": 12}\n```", schema)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total": 12}`, string(raw))

	_, err = ExtractAndValidate(`{"total": "twelve"}`, schema)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}
