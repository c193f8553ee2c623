package model

import (
	"encoding/json"
	"testing"

	deepseek "github.com/cohesion-org/deepseek-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/furisto/relay/tool"
)

func TestDeepSeekBuildMessages(t *testing.T) {
	p := &DeepSeekProvider{}

	req := Request{Messages: []Message{
		NewSystemMessage("be brief"),
		NewUserMessage("what is 2+3*4?"),
		{Role: RoleAssistant, Blocks: []ContentBlock{
			TextBlock{Text: "let me check"},
			ToolCallBlock{ID: "call_1", Name: "calculator", Args: json.RawMessage(`{"expression":"2+3*4"}`)},
		}},
		NewToolResultMessage(ToolResultBlock{ToolCallID: "call_1", Name: "calculator", Content: "14"}),
	}}

	messages := p.buildMessages(req)
	require.Len(t, messages, 4)

	assert.Equal(t, deepseek.ChatMessageRoleSystem, messages[0].Role)
	assert.Equal(t, deepseek.ChatMessageRoleUser, messages[1].Role)

	// The assistant turn must echo its tool calls so the follow-up turn is
	// valid on the wire.
	assistant := messages[2]
	assert.Equal(t, deepseek.ChatMessageRoleAssistant, assistant.Role)
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, "call_1", assistant.ToolCalls[0].ID)
	assert.Equal(t, "function", assistant.ToolCalls[0].Type)
	assert.Equal(t, "calculator", assistant.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"expression":"2+3*4"}`, assistant.ToolCalls[0].Function.Arguments)

	result := messages[3]
	assert.Equal(t, deepseek.ChatMessageRoleTool, result.Role)
	assert.Equal(t, "call_1", result.ToolCallID)
	assert.Equal(t, "14", result.Content)
}

func TestDeepSeekBuildTools(t *testing.T) {
	p := &DeepSeekProvider{}

	tools := p.buildTools(Request{Tools: []tool.Definition{{
		Name:        "calculator",
		Description: "evaluate arithmetic",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"expression": map[string]any{"type": "string"},
			},
			"required": []any{"expression"},
		},
	}}})

	require.Len(t, tools, 1)
	assert.Equal(t, "function", tools[0].Type)
	assert.Equal(t, "calculator", tools[0].Function.Name)
	require.NotNil(t, tools[0].Function.Parameters)
	assert.Equal(t, []string{"expression"}, tools[0].Function.Parameters.Required)
	assert.Contains(t, tools[0].Function.Parameters.Properties, "expression")
}
