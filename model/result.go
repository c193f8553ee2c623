package model

import "fmt"

// FinishReason is the canonical reason a generation stopped.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishError         FinishReason = "error"
)

// Usage counts the tokens a generation consumed.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Add accumulates another usage record, recomputing the total.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens = u.InputTokens + u.OutputTokens
}

// Result is a completed generation.
type Result struct {
	// Message is the assistant turn the provider produced.
	Message Message

	FinishReason FinishReason
	Usage        Usage

	// Provider and Model record which backend answered.
	Provider string
	Model    string
}

// Chunk is one streaming increment. Exactly one terminal chunk carries a
// non-empty FinishReason; a chunk with Err set ends the stream.
type Chunk struct {
	TextDelta    string
	ToolCalls    []ToolCallBlock
	FinishReason FinishReason
	Usage        *Usage
	Err          error
}

// AssembleChunks folds a drained stream back into the Result an equivalent
// non-streaming call would have returned.
func AssembleChunks(chunks []Chunk) (*Result, error) {
	result := &Result{FinishReason: FinishStop}
	var text string
	var calls []ToolCallBlock

	for _, chunk := range chunks {
		if chunk.Err != nil {
			return nil, chunk.Err
		}
		text += chunk.TextDelta
		calls = append(calls, chunk.ToolCalls...)
		if chunk.FinishReason != "" {
			result.FinishReason = chunk.FinishReason
		}
		if chunk.Usage != nil {
			result.Usage = *chunk.Usage
		}
	}

	var blocks []ContentBlock
	if text != "" {
		blocks = append(blocks, TextBlock{Text: text})
	}
	for _, call := range calls {
		blocks = append(blocks, call)
	}
	result.Message = Message{Role: RoleAssistant, Blocks: blocks}
	if len(calls) > 0 {
		result.FinishReason = FinishToolCalls
	}
	return result, nil
}

// CollectStream drains a chunk channel and assembles the result.
func CollectStream(ch <-chan Chunk) (*Result, error) {
	var chunks []Chunk
	for chunk := range ch {
		chunks = append(chunks, chunk)
	}
	return AssembleChunks(chunks)
}

func (r *Result) String() string {
	return fmt.Sprintf("result{provider=%s model=%s finish=%s tokens=%d}",
		r.Provider, r.Model, r.FinishReason, r.Usage.TotalTokens)
}
