package engine

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/furisto/relay/model"
	"github.com/furisto/relay/schema"
	"github.com/furisto/relay/tool"
)

// ToolInvocation is one executed tool call.
type ToolInvocation struct {
	Turn     int
	ID       string
	Name     string
	Args     json.RawMessage
	Result   string
	IsError  bool
	Duration time.Duration
}

// Outcome is the result of a completed tool loop.
type Outcome struct {
	// Answer is the model's final text, or a synthesized summary when the
	// loop hit its turn limit.
	Answer string

	FinishReason model.FinishReason

	// Transcript is the full conversation with original tool names; any
	// synthetic names the provider saw are restored.
	Transcript []model.Message

	Turns     int
	Usage     model.Usage
	ToolCalls []ToolInvocation
}

// GenerateWithTools runs the bounded multi-turn tool loop: the model is
// called with the toolbox's definitions, requested tools are executed, their
// results are fed back, and the loop ends when the model answers in text or
// the turn limit is reached. Tool calls within one turn run concurrently and
// a failing tool never aborts its siblings; the failure is reported back to
// the model as an error result instead.
func (e *Engine) GenerateWithTools(ctx context.Context, providerName string, req model.Request, box *tool.Toolbox) (*Outcome, error) {
	provider, err := e.registry.Get(providerName)
	if err != nil {
		return nil, err
	}

	defs, mapping, err := schema.Transform(box.Definitions(), provider.Capabilities())
	if err != nil {
		return nil, err
	}
	req.Tools = defs

	// The provider keeps seeing the names it was given; the transcript and
	// tool execution use the restored originals.
	wire := append([]model.Message(nil), req.Messages...)

	outcome := &Outcome{Transcript: append([]model.Message(nil), req.Messages...)}
	rec := newRecord(providerName, req.Model)

	for turn := 1; turn <= e.maxTurns; turn++ {
		outcome.Turns = turn

		turnReq := req
		turnReq.Messages = wire
		result, err := provider.Generate(ctx, turnReq)
		if err != nil {
			e.recorder.Record(ctx, rec.finish(turn, outcome.Transcript, outcome.Usage, err))
			return nil, err
		}
		outcome.Usage.Add(result.Usage)
		wire = append(wire, result.Message)

		restored := model.Message{Role: result.Message.Role, Blocks: append([]model.ContentBlock(nil), result.Message.Blocks...)}
		if err := restoreMessage(&restored, mapping); err != nil {
			e.recorder.Record(ctx, rec.finish(turn, outcome.Transcript, outcome.Usage, err))
			return nil, err
		}
		outcome.Transcript = append(outcome.Transcript, restored)

		calls := restored.ToolCalls()
		if result.FinishReason != model.FinishToolCalls || len(calls) == 0 {
			outcome.Answer = restored.Text()
			outcome.FinishReason = result.FinishReason
			e.recorder.Record(ctx, rec.finish(turn, outcome.Transcript, outcome.Usage, nil))
			return outcome, nil
		}

		if turn == e.maxTurns {
			// No turn remains to feed results back, so the requested tools
			// are not executed.
			break
		}

		e.logger.Debug("executing tool calls",
			"provider", providerName, "turn", turn, "calls", len(calls))

		invocations := e.runTools(ctx, turn, box, calls)
		if ctx.Err() != nil {
			err := ctx.Err()
			e.recorder.Record(ctx, rec.finish(turn, outcome.Transcript, outcome.Usage, err))
			return nil, err
		}
		outcome.ToolCalls = append(outcome.ToolCalls, invocations...)

		rawCalls := result.Message.ToolCalls()
		wireResults := make([]model.ToolResultBlock, len(invocations))
		restoredResults := make([]model.ToolResultBlock, len(invocations))
		for i, inv := range invocations {
			block := model.ToolResultBlock{
				ToolCallID: inv.ID,
				Content:    inv.Result,
				IsError:    inv.IsError,
			}
			restoredResults[i] = block
			restoredResults[i].Name = inv.Name
			wireResults[i] = block
			wireResults[i].Name = rawCalls[i].Name
		}
		wire = append(wire, model.NewToolResultMessage(wireResults...))
		outcome.Transcript = append(outcome.Transcript, model.NewToolResultMessage(restoredResults...))
	}

	outcome.FinishReason = model.FinishToolCalls
	outcome.Answer = e.synthesizer(outcome)
	exhausted := &ExhaustedError{Turns: e.maxTurns, Answer: outcome.Answer}
	e.recorder.Record(ctx, rec.finish(outcome.Turns, outcome.Transcript, outcome.Usage, exhausted))
	return outcome, exhausted
}

// runTools executes one turn's tool calls concurrently, preserving call
// order in the returned slice.
func (e *Engine) runTools(ctx context.Context, turn int, box *tool.Toolbox, calls []model.ToolCallBlock) []ToolInvocation {
	results := make([]ToolInvocation, len(calls))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, call := range calls {
		g.Go(func() error {
			start := time.Now()
			out, err := box.Execute(ctx, call.Name, call.Args)
			inv := ToolInvocation{
				Turn:     turn,
				ID:       call.ID,
				Name:     call.Name,
				Args:     call.Args,
				Duration: time.Since(start),
			}
			if err != nil {
				inv.Result = err.Error()
				inv.IsError = true
				e.logger.Warn("tool call failed", "tool", call.Name, "turn", turn, "error", err)
			} else {
				inv.Result = out
			}
			results[i] = inv
			return nil
		})
	}
	_ = g.Wait()
	return results
}
