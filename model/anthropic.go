package model

import (
	"context"
	"errors"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/furisto/relay/schema"
)

// AnthropicProvider adapts the Anthropic Messages API.
type AnthropicProvider struct {
	client anthropic.Client
}

type anthropicConfig struct {
	baseURL    string
	httpClient *http.Client
}

type AnthropicOption func(*anthropicConfig)

func WithAnthropicBaseURL(url string) AnthropicOption {
	return func(c *anthropicConfig) { c.baseURL = url }
}

func WithAnthropicHTTPClient(client *http.Client) AnthropicOption {
	return func(c *anthropicConfig) { c.httpClient = client }
}

// NewAnthropic constructs an Anthropic provider.
func NewAnthropic(apiKey string, opts ...AnthropicOption) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: apiKey must not be empty")
	}
	cfg := &anthropicConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(cfg.httpClient))
	}

	return &AnthropicProvider{client: anthropic.NewClient(clientOpts...)}, nil
}

func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

func (p *AnthropicProvider) Capabilities() schema.Capabilities {
	return schema.Capabilities{
		DiscriminatedUnions:  true,
		AdditionalProperties: true,
	}
}

func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (*Result, error) {
	params, err := p.buildParams(prepare(req))
	if err != nil {
		return nil, classify(p.Name(), err, ErrInvalidRequest)
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.wrapError(err)
	}
	return p.convertResponse(msg, req.Model), nil
}

func (p *AnthropicProvider) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	params, err := p.buildParams(prepare(req))
	if err != nil {
		return nil, classify(p.Name(), err, ErrInvalidRequest)
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	ch := make(chan Chunk, 32)

	go func() {
		defer close(ch)
		defer stream.Close()

		acc := anthropic.Message{}
		for stream.Next() {
			event := stream.Current()
			if err := acc.Accumulate(event); err != nil {
				ch <- Chunk{Err: p.wrapError(err)}
				return
			}

			if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
				if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
					select {
					case ch <- Chunk{TextDelta: text.Text}:
					case <-ctx.Done():
						return
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			ch <- Chunk{Err: p.wrapError(err)}
			return
		}

		// Tool calls arrive as accumulated input JSON; emit them with the
		// terminal chunk so ordering matches the non-streaming path.
		result := p.convertResponse(&acc, req.Model)
		usage := result.Usage
		ch <- Chunk{
			ToolCalls:    result.Message.ToolCalls(),
			FinishReason: result.FinishReason,
			Usage:        &usage,
		}
	}()

	return ch, nil
}

func (p *AnthropicProvider) buildParams(req Request) (anthropic.MessageNewParams, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if len(req.StopSequences) > 0 {
		params.StopSequences = req.StopSequences
	}

	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Text()})

		case RoleUser:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Text())))

		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			for _, block := range m.Blocks {
				switch b := block.(type) {
				case TextBlock:
					blocks = append(blocks, anthropic.NewTextBlock(b.Text))
				case ToolCallBlock:
					blocks = append(blocks, anthropic.ContentBlockParamUnion{
						OfToolUse: &anthropic.ToolUseBlockParam{
							ID:    b.ID,
							Name:  b.Name,
							Input: b.Args,
						},
					})
				}
			}
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(blocks...))

		case RoleTool:
			// Tool results travel in a user turn.
			var blocks []anthropic.ContentBlockParamUnion
			for _, result := range m.ToolResults() {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolResult: &anthropic.ToolResultBlockParam{
						ToolUseID: result.ToolCallID,
						IsError:   anthropic.Bool(result.IsError),
						Content: []anthropic.ToolResultBlockParamContentUnion{
							{OfText: &anthropic.TextBlockParam{Text: result.Content}},
						},
					},
				})
			}
			params.Messages = append(params.Messages, anthropic.NewUserMessage(blocks...))
		}
	}

	for _, def := range req.Tools {
		toolParam := anthropic.ToolParam{
			Name:        def.Name,
			InputSchema: anthropic.ToolInputSchemaParam{Properties: def.Parameters["properties"]},
		}
		if def.Description != "" {
			toolParam.Description = anthropic.String(def.Description)
		}
		toolParam.InputSchema.Required = requiredNames(def.Parameters)
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &toolParam})
	}

	return params, nil
}

func (p *AnthropicProvider) convertResponse(msg *anthropic.Message, model string) *Result {
	var blocks []ContentBlock
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			blocks = append(blocks, TextBlock{Text: b.Text})
		case anthropic.ToolUseBlock:
			blocks = append(blocks, ToolCallBlock{
				ID:   b.ID,
				Name: b.Name,
				Args: []byte(b.JSON.Input.Raw()),
			})
		}
	}

	return &Result{
		Message:      Message{Role: RoleAssistant, Blocks: blocks},
		FinishReason: anthropicFinishReason(msg.StopReason),
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		Provider: p.Name(),
		Model:    model,
	}
}

func anthropicFinishReason(reason anthropic.StopReason) FinishReason {
	switch reason {
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence:
		return FinishStop
	case anthropic.StopReasonToolUse:
		return FinishToolCalls
	case anthropic.StopReasonMaxTokens:
		return FinishLength
	case anthropic.StopReasonRefusal:
		return FinishContentFilter
	}
	return FinishStop
}

func (p *AnthropicProvider) wrapError(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		perr := &ProviderError{
			Provider: p.Name(),
			Kind:     kindFromStatus(apierr.StatusCode),
			Err:      err,
		}
		if apierr.Response != nil {
			perr.RetryAfter = retryAfterHeader(apierr.Response.Header)
		}
		return perr
	}
	return classify(p.Name(), err, ErrUnavailable)
}
