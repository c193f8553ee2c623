package schema

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFormats(t *testing.T) {
	s := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"when": map[string]any{"type": "string", "format": "date-time"},
			"mail": map[string]any{"type": "string", "format": "email"},
		},
	}

	tests := []struct {
		name    string
		formats []string
		want    map[string]bool
	}{
		{name: "nil allows all", formats: nil, want: map[string]bool{"when": true, "mail": true}},
		{name: "empty strips all", formats: []string{}, want: map[string]bool{"when": false, "mail": false}},
		{name: "allow-list", formats: []string{"date-time"}, want: map[string]bool{"when": true, "mail": false}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := Sanitize(s, Capabilities{Formats: tc.formats, AdditionalProperties: true})
			props := out["properties"].(map[string]any)
			for name, keep := range tc.want {
				_, has := props[name].(map[string]any)["format"]
				assert.Equal(t, keep, has, name)
			}
		})
	}
}

func TestSanitizeAdditionalProperties(t *testing.T) {
	s := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"nested": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
		},
	}

	out := Sanitize(s, Capabilities{})
	assert.NotContains(t, out, "additionalProperties")
	nested := out["properties"].(map[string]any)["nested"].(map[string]any)
	assert.NotContains(t, nested, "additionalProperties")

	kept := Sanitize(s, Capabilities{AdditionalProperties: true})
	assert.Contains(t, kept, "additionalProperties")
}

func TestSanitizeFillsRequired(t *testing.T) {
	s := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"b": map[string]any{"type": "string"},
			"a": map[string]any{"type": "number"},
		},
	}

	out := Sanitize(s, Capabilities{RequireExplicitRequired: true, AdditionalProperties: true})
	require.Contains(t, out, "required")
	assert.Equal(t, []any{"a", "b"}, out["required"])

	// An explicit required list is left alone.
	s["required"] = []any{"b"}
	out = Sanitize(s, Capabilities{RequireExplicitRequired: true, AdditionalProperties: true})
	assert.Equal(t, []any{"b"}, out["required"])
}

func TestSanitizeStrict(t *testing.T) {
	in := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"id": map[string]any{"type": "string", "format": "uuid"},
		},
	}
	caps := Capabilities{
		Formats:                 []string{},
		RequireExplicitRequired: true,
	}

	want := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id": map[string]any{"type": "string"},
		},
		"required": []any{"id"},
	}
	if diff := cmp.Diff(want, Sanitize(in, caps)); diff != "" {
		t.Errorf("sanitized schema mismatch (-want +got):\n%s", diff)
	}
}

func TestSanitizeCopies(t *testing.T) {
	s := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{"type": "string", "format": "uuid"},
		},
	}

	out := Sanitize(s, Capabilities{Formats: []string{}, AdditionalProperties: true})
	out["properties"].(map[string]any)["x"].(map[string]any)["type"] = "number"

	orig := s["properties"].(map[string]any)["x"].(map[string]any)
	assert.Equal(t, "string", orig["type"])
	assert.Equal(t, "uuid", orig["format"])
}
