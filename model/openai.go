package model

import (
	"context"
	"errors"
	"net/http"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/furisto/relay/schema"
)

// OpenAIProvider adapts the OpenAI Chat Completions API.
type OpenAIProvider struct {
	client oai.Client
}

type openaiConfig struct {
	baseURL      string
	organization string
	httpClient   *http.Client
}

type OpenAIOption func(*openaiConfig)

func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(c *openaiConfig) { c.baseURL = url }
}

func WithOpenAIOrganization(org string) OpenAIOption {
	return func(c *openaiConfig) { c.organization = org }
}

func WithOpenAIHTTPClient(client *http.Client) OpenAIOption {
	return func(c *openaiConfig) { c.httpClient = client }
}

// NewOpenAI constructs an OpenAI provider.
func NewOpenAI(apiKey string, opts ...OpenAIOption) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	cfg := &openaiConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	}

	return &OpenAIProvider{client: oai.NewClient(reqOpts...)}, nil
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) Capabilities() schema.Capabilities {
	return schema.Capabilities{
		StructuredOutput:        true,
		AdditionalProperties:    true,
		RequireExplicitRequired: true,
	}
}

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (*Result, error) {
	params := p.buildParams(prepare(req))

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, p.wrapError(err)
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
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
		Provider: p.Name(),
		Model:    req.Model,
	}, nil
}

func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	params := p.buildParams(prepare(req))
	params.StreamOptions = oai.ChatCompletionStreamOptionsParam{
		IncludeUsage: param.NewOpt(true),
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, p.wrapError(err)
	}

	ch := make(chan Chunk, 32)
	go func() {
		defer close(ch)
		defer stream.Close()

		// Tool call fragments accumulate by index until the finish chunk.
		accum := map[int]*ToolCallBlock{}
		argBuf := map[int]string{}
		var usage *Usage

		for stream.Next() {
			chunk := stream.Current()

			if chunk.Usage.TotalTokens > 0 {
				usage = &Usage{
					InputTokens:  int(chunk.Usage.PromptTokens),
					OutputTokens: int(chunk.Usage.CompletionTokens),
					TotalTokens:  int(chunk.Usage.TotalTokens),
				}
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]

			for _, tc := range choice.Delta.ToolCalls {
				idx := int(tc.Index)
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

		if err := stream.Err(); err != nil {
			ch <- Chunk{Err: p.wrapError(err)}
		}
	}()

	return ch, nil
}

func (p *OpenAIProvider) buildParams(req Request) oai.ChatCompletionNewParams {
	var messages []oai.ChatCompletionMessageParamUnion

	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			messages = append(messages, oai.SystemMessage(m.Text()))

		case RoleUser:
			messages = append(messages, oai.UserMessage(m.Text()))

		case RoleAssistant:
			asst := oai.ChatCompletionAssistantMessageParam{}
			if text := m.Text(); text != "" {
				asst.Content.OfString = oai.String(text)
			}
			for _, tc := range m.ToolCalls() {
				asst.ToolCalls = append(asst.ToolCalls, oai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: oai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(tc.Args),
					},
				})
			}
			messages = append(messages, oai.ChatCompletionMessageParamUnion{OfAssistant: &asst})

		case RoleTool:
			for _, result := range m.ToolResults() {
				messages = append(messages, oai.ToolMessage(result.Content, result.ToolCallID))
			}
		}
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: messages,
	}
	if req.Temperature != nil {
		params.Temperature = param.NewOpt(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	if len(req.StopSequences) > 0 {
		params.Stop.OfStringArray = req.StopSequences
	}

	for _, def := range req.Tools {
		params.Tools = append(params.Tools, oai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        def.Name,
				Description: param.NewOpt(def.Description),
				Parameters:  shared.FunctionParameters(def.Parameters),
			},
		})
	}

	if req.ResponseSchema != nil {
		params.ResponseFormat = oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "response",
					Strict: param.NewOpt(true),
					Schema: req.ResponseSchema,
				},
			},
		}
	}

	return params
}

func openaiFinishReason(reason string) FinishReason {
	switch reason {
	case "stop":
		return FinishStop
	case "tool_calls", "function_call":
		return FinishToolCalls
	case "length":
		return FinishLength
	case "content_filter":
		return FinishContentFilter
	}
	return FinishStop
}

func (p *OpenAIProvider) wrapError(err error) error {
	var apierr *oai.Error
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
