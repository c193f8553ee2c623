package model

import (
	"context"
	"errors"
	"io"

	deepseek "github.com/cohesion-org/deepseek-go"

	"github.com/furisto/relay/schema"
)

// DeepSeekProvider adapts the DeepSeek chat API. The wire format is
// OpenAI-compatible but the backend supports neither discriminated unions
// nor native structured output.
type DeepSeekProvider struct {
	client *deepseek.Client
}

type deepseekConfig struct {
	baseURL string
}

type DeepSeekOption func(*deepseekConfig)

func WithDeepSeekBaseURL(url string) DeepSeekOption {
	return func(c *deepseekConfig) { c.baseURL = url }
}

// NewDeepSeek constructs a DeepSeek provider.
func NewDeepSeek(apiKey string, opts ...DeepSeekOption) (*DeepSeekProvider, error) {
	if apiKey == "" {
		return nil, errors.New("deepseek: apiKey must not be empty")
	}
	cfg := &deepseekConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	var client *deepseek.Client
	if cfg.baseURL != "" {
		client = deepseek.NewClient(apiKey, cfg.baseURL)
	} else {
		client = deepseek.NewClient(apiKey)
	}
	return &DeepSeekProvider{client: client}, nil
}

func (p *DeepSeekProvider) Name() string {
	return "deepseek"
}

func (p *DeepSeekProvider) Capabilities() schema.Capabilities {
	return schema.Capabilities{AdditionalProperties: true}
}

func (p *DeepSeekProvider) Generate(ctx context.Context, req Request) (*Result, error) {
	request := &deepseek.ChatCompletionRequest{
		Model:    req.Model,
		Messages: p.buildMessages(prepare(req)),
		Tools:    p.buildTools(req),
	}
	if req.Temperature != nil {
		request.Temperature = float32(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		request.MaxTokens = req.MaxTokens
	}

	resp, err := p.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return nil, classify(p.Name(), err, ErrUnavailable)
	}
	if len(resp.Choices) == 0 {
		return nil, classify(p.Name(), errors.New("empty choices in response"), ErrUnknown)
	}

	choice := resp.Choices[0]
	var blocks []ContentBlock
	if choice.Message.Content != "" {
		blocks = append(blocks, TextBlock{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		blocks = append(blocks, ToolCallBlock{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: []byte(tc.Function.Arguments),
		})
	}

	return &Result{
		Message:      Message{Role: RoleAssistant, Blocks: blocks},
		FinishReason: openaiFinishReason(choice.FinishReason),
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
		Provider: p.Name(),
		Model:    req.Model,
	}, nil
}

func (p *DeepSeekProvider) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	request := &deepseek.StreamChatCompletionRequest{
		Model:    req.Model,
		Messages: p.buildMessages(prepare(req)),
		Tools:    p.buildTools(req),
		Stream:   true,
	}
	if req.Temperature != nil {
		request.Temperature = float32(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		request.MaxTokens = req.MaxTokens
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, request)
	if err != nil {
		return nil, classify(p.Name(), err, ErrUnavailable)
	}

	ch := make(chan Chunk, 32)
	go func() {
		defer close(ch)
		defer stream.Close()

		accum := map[int]*ToolCallBlock{}
		argBuf := map[int]string{}
		var usage *Usage

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				ch <- Chunk{Err: classify(p.Name(), err, ErrUnavailable)}
				return
			}
			if resp.Usage != nil && resp.Usage.TotalTokens > 0 {
				usage = &Usage{
					InputTokens:  resp.Usage.PromptTokens,
					OutputTokens: resp.Usage.CompletionTokens,
					TotalTokens:  resp.Usage.TotalTokens,
				}
			}
			if len(resp.Choices) == 0 {
				continue
			}
			choice := resp.Choices[0]

			for _, tc := range choice.Delta.ToolCalls {
				idx := tc.Index
				existing, ok := accum[idx]
				if !ok {
					existing = &ToolCallBlock{}
					accum[idx] = existing
				}
				if tc.ID != "" {
					existing.ID = tc.ID
				}
				if tc.Function.Name != "" {
					existing.Name = tc.Function.Name
				}
				argBuf[idx] += tc.Function.Arguments
			}

			out := Chunk{TextDelta: choice.Delta.Content}
			if choice.FinishReason != "" {
				out.FinishReason = openaiFinishReason(choice.FinishReason)
				for i := 0; i < len(accum); i++ {
					if tc, ok := accum[i]; ok {
						tc.Args = []byte(argBuf[i])
						out.ToolCalls = append(out.ToolCalls, *tc)
					}
				}
				out.Usage = usage
			}
			if out.TextDelta == "" && out.FinishReason == "" && len(out.ToolCalls) == 0 {
				continue
			}

			select {
			case ch <- out:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

func (p *DeepSeekProvider) buildMessages(req Request) []deepseek.ChatCompletionMessage {
	var messages []deepseek.ChatCompletionMessage
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			messages = append(messages, deepseek.ChatCompletionMessage{
				Role:    deepseek.ChatMessageRoleSystem,
				Content: m.Text(),
			})
		case RoleUser:
			messages = append(messages, deepseek.ChatCompletionMessage{
				Role:    deepseek.ChatMessageRoleUser,
				Content: m.Text(),
			})
		case RoleAssistant:
			msg := deepseek.ChatCompletionMessage{
				Role:    deepseek.ChatMessageRoleAssistant,
				Content: m.Text(),
			}
			for _, tc := range m.ToolCalls() {
				msg.ToolCalls = append(msg.ToolCalls, deepseek.ToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: deepseek.ToolCallFunction{
						Name:      tc.Name,
						Arguments: string(tc.Args),
					},
				})
			}
			messages = append(messages, msg)
		case RoleTool:
			for _, result := range m.ToolResults() {
				messages = append(messages, deepseek.ChatCompletionMessage{
					Role:       deepseek.ChatMessageRoleTool,
					Content:    result.Content,
					ToolCallID: result.ToolCallID,
				})
			}
		}
	}
	return messages
}

func (p *DeepSeekProvider) buildTools(req Request) []deepseek.Tool {
	var tools []deepseek.Tool
	for _, def := range req.Tools {
		fn := deepseek.Function{
			Name:        def.Name,
			Description: def.Description,
		}
		params := &deepseek.FunctionParameters{Type: "object"}
		if props, ok := def.Parameters["properties"].(map[string]any); ok {
			params.Properties = props
		}
		params.Required = requiredNames(def.Parameters)
		fn.Parameters = params
		tools = append(tools, deepseek.Tool{Type: "function", Function: fn})
	}
	return tools
}
