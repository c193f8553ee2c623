package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/furisto/relay/schema"
)

// GeminiProvider adapts the Google Gemini API. Gemini differs from the other
// backends in two ways the canonical model papers over: it matches tool
// results by function name rather than call ID, and it assigns no call IDs
// at all, so the adapter synthesizes them.
type GeminiProvider struct {
	client *genai.Client
}

type geminiConfig struct {
	baseURL    string
	httpClient *http.Client
}

type GeminiOption func(*geminiConfig)

func WithGeminiBaseURL(url string) GeminiOption {
	return func(c *geminiConfig) { c.baseURL = url }
}

func WithGeminiHTTPClient(client *http.Client) GeminiOption {
	return func(c *geminiConfig) { c.httpClient = client }
}

// NewGemini constructs a Gemini provider.
func NewGemini(ctx context.Context, apiKey string, opts ...GeminiOption) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: apiKey must not be empty")
	}
	cfg := &geminiConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.baseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.baseURL
	}
	if cfg.httpClient != nil {
		clientCfg.HTTPClient = cfg.httpClient
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

func (p *GeminiProvider) Capabilities() schema.Capabilities {
	return schema.Capabilities{
		StructuredOutput: true,
		Formats:          []string{"date-time", "int32", "int64", "float", "double"},
	}
}

func (p *GeminiProvider) Generate(ctx context.Context, req Request) (*Result, error) {
	contents, config, err := p.buildRequest(prepare(req))
	if err != nil {
		return nil, classify(p.Name(), err, ErrInvalidRequest)
	}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, p.wrapError(err)
	}
	return p.convertResponse(resp, req.Model)
}

func (p *GeminiProvider) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	contents, config, err := p.buildRequest(prepare(req))
	if err != nil {
		return nil, classify(p.Name(), err, ErrInvalidRequest)
	}

	ch := make(chan Chunk, 32)
	go func() {
		defer close(ch)

		var usage *Usage
		finish := FinishStop
		sawToolCall := false

		for resp, err := range p.client.Models.GenerateContentStream(ctx, req.Model, contents, config) {
			if err != nil {
				ch <- Chunk{Err: p.wrapError(err)}
				return
			}
			if resp.UsageMetadata != nil {
				usage = convertGeminiUsage(resp.UsageMetadata)
			}
			if len(resp.Candidates) == 0 {
				continue
			}
			candidate := resp.Candidates[0]
			if candidate.FinishReason != "" {
				finish = geminiFinishReason(candidate.FinishReason)
			}
			if candidate.Content == nil {
				continue
			}

			out := Chunk{}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					out.TextDelta += part.Text
				}
				// Function calls arrive whole, never fragmented.
				if part.FunctionCall != nil {
					call, err := convertGeminiCall(part.FunctionCall)
					if err != nil {
						ch <- Chunk{Err: classify(p.Name(), err, ErrUnknown)}
						return
					}
					out.ToolCalls = append(out.ToolCalls, call)
					sawToolCall = true
				}
			}
			if out.TextDelta == "" && len(out.ToolCalls) == 0 {
				continue
			}

			select {
			case ch <- out:
			case <-ctx.Done():
				return
			}
		}

		if sawToolCall {
			finish = FinishToolCalls
		}
		ch <- Chunk{FinishReason: finish, Usage: usage}
	}()

	return ch, nil
}

func (p *GeminiProvider) buildRequest(req Request) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	config := &genai.GenerateContentConfig{}

	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			if config.SystemInstruction == nil {
				config.SystemInstruction = &genai.Content{}
			}
			config.SystemInstruction.Parts = append(config.SystemInstruction.Parts,
				genai.NewPartFromText(m.Text()))

		case RoleUser:
			contents = append(contents, genai.NewContentFromText(m.Text(), genai.RoleUser))

		case RoleAssistant:
			var parts []*genai.Part
			for _, block := range m.Blocks {
				switch b := block.(type) {
				case TextBlock:
					parts = append(parts, genai.NewPartFromText(b.Text))
				case ToolCallBlock:
					args := map[string]any{}
					if len(b.Args) > 0 {
						if err := json.Unmarshal(b.Args, &args); err != nil {
							return nil, nil, fmt.Errorf("tool call %s arguments: %w", b.Name, err)
						}
					}
					parts = append(parts, genai.NewPartFromFunctionCall(b.Name, args))
				}
			}
			if len(parts) > 0 {
				contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))
			}

		case RoleTool:
			var parts []*genai.Part
			for _, result := range m.ToolResults() {
				var response map[string]any
				if err := json.Unmarshal([]byte(result.Content), &response); err != nil {
					response = map[string]any{"result": result.Content}
				}
				name := result.Name
				if name == "" {
					name = result.ToolCallID
				}
				parts = append(parts, genai.NewPartFromFunctionResponse(name, response))
			}
			if len(parts) > 0 {
				contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
			}
		}
	}

	if req.Temperature != nil {
		t := float32(*req.Temperature)
		config.Temperature = &t
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.StopSequences) > 0 {
		config.StopSequences = req.StopSequences
	}

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, def := range req.Tools {
			params, err := toGeminiSchema(def.Parameters)
			if err != nil {
				return nil, nil, fmt.Errorf("tool %s: %w", def.Name, err)
			}
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  params,
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	if req.ResponseSchema != nil {
		responseSchema, err := toGeminiSchema(req.ResponseSchema)
		if err != nil {
			return nil, nil, fmt.Errorf("response schema: %w", err)
		}
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = responseSchema
	}

	return contents, config, nil
}

func (p *GeminiProvider) convertResponse(resp *genai.GenerateContentResponse, model string) (*Result, error) {
	result := &Result{
		Message:      Message{Role: RoleAssistant},
		FinishReason: FinishStop,
		Provider:     p.Name(),
		Model:        model,
	}
	if resp.UsageMetadata != nil {
		result.Usage = *convertGeminiUsage(resp.UsageMetadata)
	}

	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			result.FinishReason = FinishContentFilter
			return result, nil
		}
		return nil, classify(p.Name(), errors.New("empty candidates in response"), ErrUnknown)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason != "" {
		result.FinishReason = geminiFinishReason(candidate.FinishReason)
	}
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				result.Message.Blocks = append(result.Message.Blocks, TextBlock{Text: part.Text})
			}
			if part.FunctionCall != nil {
				call, err := convertGeminiCall(part.FunctionCall)
				if err != nil {
					return nil, classify(p.Name(), err, ErrUnknown)
				}
				result.Message.Blocks = append(result.Message.Blocks, call)
			}
		}
	}

	if len(result.Message.ToolCalls()) > 0 {
		result.FinishReason = FinishToolCalls
	}
	return result, nil
}

func convertGeminiCall(fc *genai.FunctionCall) (ToolCallBlock, error) {
	args, err := json.Marshal(fc.Args)
	if err != nil {
		return ToolCallBlock{}, fmt.Errorf("function call %s arguments: %w", fc.Name, err)
	}
	id := fc.ID
	if id == "" {
		id = "call_" + uuid.NewString()[:12]
	}
	return ToolCallBlock{ID: id, Name: fc.Name, Args: args}, nil
}

func convertGeminiUsage(meta *genai.GenerateContentResponseUsageMetadata) *Usage {
	usage := &Usage{
		InputTokens:  int(meta.PromptTokenCount),
		OutputTokens: int(meta.CandidatesTokenCount),
		TotalTokens:  int(meta.TotalTokenCount),
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	}
	return usage
}

func geminiFinishReason(reason genai.FinishReason) FinishReason {
	switch reason {
	case genai.FinishReasonStop:
		return FinishStop
	case genai.FinishReasonMaxTokens:
		return FinishLength
	case genai.FinishReasonSafety, genai.FinishReasonRecitation,
		genai.FinishReasonBlocklist, genai.FinishReasonProhibitedContent,
		genai.FinishReasonSPII:
		return FinishContentFilter
	case genai.FinishReasonMalformedFunctionCall:
		return FinishError
	}
	return FinishStop
}

// toGeminiSchema converts a JSON Schema map to the typed schema the Gemini
// API expects.
func toGeminiSchema(s map[string]any) (*genai.Schema, error) {
	if s == nil {
		return nil, nil
	}
	out := &genai.Schema{}

	if t, ok := s["type"].(string); ok {
		switch strings.ToLower(t) {
		case "object":
			out.Type = genai.TypeObject
		case "array":
			out.Type = genai.TypeArray
		case "string":
			out.Type = genai.TypeString
		case "number":
			out.Type = genai.TypeNumber
		case "integer":
			out.Type = genai.TypeInteger
		case "boolean":
			out.Type = genai.TypeBoolean
		default:
			return nil, fmt.Errorf("unsupported schema type %q", t)
		}
	}
	if desc, ok := s["description"].(string); ok {
		out.Description = desc
	}
	if format, ok := s["format"].(string); ok {
		out.Format = format
	}
	if enum, ok := s["enum"].([]any); ok {
		for _, v := range enum {
			out.Enum = append(out.Enum, fmt.Sprintf("%v", v))
		}
	}
	if props, ok := s["properties"].(map[string]any); ok {
		out.Properties = map[string]*genai.Schema{}
		for name, raw := range props {
			sub, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("property %q is not a schema", name)
			}
			converted, err := toGeminiSchema(sub)
			if err != nil {
				return nil, err
			}
			out.Properties[name] = converted
		}
	}
	out.Required = requiredNames(s)
	if items, ok := s["items"].(map[string]any); ok {
		converted, err := toGeminiSchema(items)
		if err != nil {
			return nil, err
		}
		out.Items = converted
	}
	if branches, ok := s["anyOf"].([]any); ok {
		for _, raw := range branches {
			sub, ok := raw.(map[string]any)
			if !ok {
				return nil, errors.New("anyOf branch is not a schema")
			}
			converted, err := toGeminiSchema(sub)
			if err != nil {
				return nil, err
			}
			out.AnyOf = append(out.AnyOf, converted)
		}
	}
	return out, nil
}

func (p *GeminiProvider) wrapError(err error) error {
	var apierr genai.APIError
	if errors.As(err, &apierr) {
		return &ProviderError{
			Provider: p.Name(),
			Kind:     kindFromStatus(apierr.Code),
			Err:      err,
		}
	}
	return classify(p.Name(), err, ErrUnavailable)
}
