// Package engine is the generation façade: it resolves providers, adapts
// tool schemas to each backend, runs the multi-turn tool loop and falls back
// to prompt-based extraction when a backend lacks native structured output.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/furisto/relay/model"
	"github.com/furisto/relay/schema"
	"github.com/furisto/relay/structured"
)

const (
	defaultMaxTurns        = 10
	defaultToolConcurrency = 4
)

// Engine coordinates providers, tools and structured output.
type Engine struct {
	registry    *model.Registry
	logger      *slog.Logger
	recorder    Recorder
	synthesizer Synthesizer
	maxTurns    int
	concurrency int
}

type Option func(*Engine)

// WithLogger sets the structured logger. The default discards nothing and
// writes through slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMaxTurns bounds the tool loop.
func WithMaxTurns(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxTurns = n
		}
	}
}

// WithRecorder sets the sink that receives a Record per completed operation.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithSynthesizer replaces the answer synthesizer used when the tool loop
// exhausts its turns.
func WithSynthesizer(s Synthesizer) Option {
	return func(e *Engine) {
		if s != nil {
			e.synthesizer = s
		}
	}
}

// WithToolConcurrency bounds how many tool calls from one assistant turn run
// in parallel.
func WithToolConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// New constructs an engine over a provider registry.
func New(registry *model.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry:    registry,
		logger:      slog.Default(),
		recorder:    NopRecorder{},
		synthesizer: defaultSynthesizer,
		maxTurns:    defaultMaxTurns,
		concurrency: defaultToolConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Generate performs a single generation call. Tool definitions in the
// request are adapted to the provider's capabilities and any synthetic names
// in the response are restored before the result is returned.
func (e *Engine) Generate(ctx context.Context, providerName string, req model.Request) (*model.Result, error) {
	provider, err := e.registry.Get(providerName)
	if err != nil {
		return nil, err
	}

	mapping, err := e.adaptTools(&req, provider)
	if err != nil {
		return nil, err
	}

	rec := newRecord(providerName, req.Model)
	result, err := provider.Generate(ctx, req)
	if err != nil {
		e.recorder.Record(ctx, rec.finish(1, nil, model.Usage{}, err))
		return nil, err
	}

	if err := restoreMessage(&result.Message, mapping); err != nil {
		return nil, err
	}
	e.recorder.Record(ctx, rec.finish(1, []model.Message{result.Message}, result.Usage, nil))
	return result, nil
}

// GenerateStream performs a streaming generation call. Synthetic tool names
// are restored chunk by chunk.
func (e *Engine) GenerateStream(ctx context.Context, providerName string, req model.Request) (<-chan model.Chunk, error) {
	provider, err := e.registry.Get(providerName)
	if err != nil {
		return nil, err
	}

	mapping, err := e.adaptTools(&req, provider)
	if err != nil {
		return nil, err
	}

	inner, err := provider.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	if mapping.Empty() {
		return inner, nil
	}

	out := make(chan model.Chunk)
	go func() {
		defer close(out)
		for chunk := range inner {
			for i, call := range chunk.ToolCalls {
				name, args, err := mapping.Restore(call.Name, call.Args)
				if err != nil {
					select {
					case out <- model.Chunk{Err: err}:
					case <-ctx.Done():
					}
					return
				}
				chunk.ToolCalls[i].Name = name
				chunk.ToolCalls[i].Args = args
			}
			// The consumer may stop reading at any point; never block on a
			// send past cancellation.
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// GenerateWithSchema requests output conforming to a JSON Schema. Providers
// with native structured output get the sanitized schema on the wire;
// everything else gets a prompt instruction, and in both cases the response
// text is extracted and validated before being returned.
func (e *Engine) GenerateWithSchema(ctx context.Context, providerName string, req model.Request, responseSchema map[string]any) (json.RawMessage, error) {
	provider, err := e.registry.Get(providerName)
	if err != nil {
		return nil, err
	}

	caps := provider.Capabilities()
	if caps.StructuredOutput {
		req.ResponseSchema = schema.Sanitize(responseSchema, caps)
	} else {
		instruction, err := schemaInstruction(responseSchema)
		if err != nil {
			return nil, err
		}
		req.Messages = append(req.Messages, model.NewSystemMessage(instruction))
	}

	rec := newRecord(providerName, req.Model)
	result, err := provider.Generate(ctx, req)
	if err != nil {
		e.recorder.Record(ctx, rec.finish(1, nil, model.Usage{}, err))
		return nil, err
	}
	e.recorder.Record(ctx, rec.finish(1, []model.Message{result.Message}, result.Usage, nil))

	raw, err := structured.ExtractAndValidate(result.Message.Text(), responseSchema)
	if err != nil {
		e.logger.Warn("structured output failed validation",
			"provider", providerName, "model", req.Model, "error", err)
		return nil, err
	}
	return raw, nil
}

// adaptTools transforms the request's tools for the provider in place.
func (e *Engine) adaptTools(req *model.Request, provider model.Provider) (*schema.Mapping, error) {
	if len(req.Tools) == 0 {
		return nil, nil
	}
	defs, mapping, err := schema.Transform(req.Tools, provider.Capabilities())
	if err != nil {
		return nil, err
	}
	req.Tools = defs
	return mapping, nil
}

func restoreMessage(msg *model.Message, mapping *schema.Mapping) error {
	if mapping.Empty() {
		return nil
	}
	for i, block := range msg.Blocks {
		call, ok := block.(model.ToolCallBlock)
		if !ok {
			continue
		}
		name, args, err := mapping.Restore(call.Name, call.Args)
		if err != nil {
			return err
		}
		call.Name = name
		call.Args = args
		msg.Blocks[i] = call
	}
	return nil
}

func schemaInstruction(responseSchema map[string]any) (string, error) {
	encoded, err := json.Marshal(responseSchema)
	if err != nil {
		return "", fmt.Errorf("encode response schema: %w", err)
	}
	return "Respond with a single JSON value conforming to this JSON Schema, with no surrounding prose:\n" + string(encoded), nil
}
