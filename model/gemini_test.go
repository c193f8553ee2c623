package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestToGeminiSchema(t *testing.T) {
	in := map[string]any{
		"type":     "object",
		"required": []any{"kind", "size"},
		"properties": map[string]any{
			"kind": map[string]any{"type": "string", "enum": []any{"circle", "square"}},
			"size": map[string]any{"type": "number", "description": "edge or radius"},
			"tags": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
	}

	out, err := toGeminiSchema(in)
	require.NoError(t, err)
	assert.Equal(t, genai.TypeObject, out.Type)
	assert.ElementsMatch(t, []string{"kind", "size"}, out.Required)

	kind := out.Properties["kind"]
	require.NotNil(t, kind)
	assert.Equal(t, genai.TypeString, kind.Type)
	assert.Equal(t, []string{"circle", "square"}, kind.Enum)

	tags := out.Properties["tags"]
	require.NotNil(t, tags)
	assert.Equal(t, genai.TypeArray, tags.Type)
	require.NotNil(t, tags.Items)
	assert.Equal(t, genai.TypeString, tags.Items.Type)
}

func TestToGeminiSchemaRejectsUnknownType(t *testing.T) {
	_, err := toGeminiSchema(map[string]any{"type": "tuple"})
	assert.Error(t, err)
}

func TestGeminiFinishReason(t *testing.T) {
	assert.Equal(t, FinishStop, geminiFinishReason(genai.FinishReasonStop))
	assert.Equal(t, FinishLength, geminiFinishReason(genai.FinishReasonMaxTokens))
	assert.Equal(t, FinishContentFilter, geminiFinishReason(genai.FinishReasonSafety))
	assert.Equal(t, FinishError, geminiFinishReason(genai.FinishReasonMalformedFunctionCall))
}

func TestConvertGeminiCallGeneratesID(t *testing.T) {
	call, err := convertGeminiCall(&genai.FunctionCall{
		Name: "calculator",
		Args: map[string]any{"expression": "2+2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "calculator", call.Name)
	assert.NotEmpty(t, call.ID)
	assert.JSONEq(t, `{"expression":"2+2"}`, string(call.Args))
}
