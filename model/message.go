// Package model defines the canonical message and generation types shared by
// all provider adapters, plus the adapters themselves.
package model

import (
	"encoding/json"
	"strings"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single conversation entry. Content is an ordered list of
// blocks so that assistant turns can mix text and tool calls the way every
// provider emits them.
type Message struct {
	Role   Role
	Blocks []ContentBlock
}

// ContentBlock is one piece of message content. Implementations are
// TextBlock, ToolCallBlock and ToolResultBlock.
type ContentBlock interface {
	blockType() string
}

// TextBlock carries plain text.
type TextBlock struct {
	Text string
}

// ToolCallBlock is a model-issued request to invoke a tool.
type ToolCallBlock struct {
	ID   string
	Name string
	Args json.RawMessage
}

// ToolResultBlock carries the outcome of a tool invocation back to the
// model. Name duplicates the tool name because some backends match results
// by name rather than call ID.
type ToolResultBlock struct {
	ToolCallID string
	Name       string
	Content    string
	IsError    bool
}

func (TextBlock) blockType() string       { return "text" }
func (ToolCallBlock) blockType() string   { return "tool_call" }
func (ToolResultBlock) blockType() string { return "tool_result" }

// NewSystemMessage returns a system message with a single text block.
func NewSystemMessage(text string) Message {
	return Message{Role: RoleSystem, Blocks: []ContentBlock{TextBlock{Text: text}}}
}

// NewUserMessage returns a user message with a single text block.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Blocks: []ContentBlock{TextBlock{Text: text}}}
}

// NewAssistantMessage returns an assistant message from the given blocks.
func NewAssistantMessage(blocks ...ContentBlock) Message {
	return Message{Role: RoleAssistant, Blocks: blocks}
}

// NewToolResultMessage returns a tool message carrying one result per block.
func NewToolResultMessage(results ...ToolResultBlock) Message {
	blocks := make([]ContentBlock, len(results))
	for i, r := range results {
		blocks[i] = r
	}
	return Message{Role: RoleTool, Blocks: blocks}
}

// Text concatenates the message's text blocks.
func (m Message) Text() string {
	var sb strings.Builder
	for _, block := range m.Blocks {
		if text, ok := block.(TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	return sb.String()
}

// ToolCalls returns the message's tool call blocks in order.
func (m Message) ToolCalls() []ToolCallBlock {
	var calls []ToolCallBlock
	for _, block := range m.Blocks {
		if call, ok := block.(ToolCallBlock); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

// ToolResults returns the message's tool result blocks in order.
func (m Message) ToolResults() []ToolResultBlock {
	var results []ToolResultBlock
	for _, block := range m.Blocks {
		if result, ok := block.(ToolResultBlock); ok {
			results = append(results, result)
		}
	}
	return results
}
