package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/furisto/relay/model"
	"github.com/furisto/relay/tool"
)

func calculatorBox(t *testing.T) *tool.Toolbox {
	t.Helper()
	box, err := tool.NewToolbox(tool.Calculator())
	require.NoError(t, err)
	return box
}

func TestToolLoopCalculator(t *testing.T) {
	provider := &fakeProvider{
		name: "fake",
		script: []func(model.Request) (*model.Result, error){
			toolCallResult(model.ToolCallBlock{ID: "call_1", Name: "calculator", Args: json.RawMessage(`{"expression":"2+3*4"}`)}),
			func(req model.Request) (*model.Result, error) {
				// The tool result must be in the conversation by now.
				last := req.Messages[len(req.Messages)-1]
				results := last.ToolResults()
				if len(results) != 1 || results[0].Content != "14" {
					return nil, errors.New("tool result missing from follow-up request")
				}
				return textResult("The result is 14.")(req)
			},
		},
	}
	e := newTestEngine(t, provider)

	outcome, err := e.GenerateWithTools(context.Background(), "fake",
		model.Request{Model: "m", Messages: []model.Message{model.NewUserMessage("what is 2+3*4?")}},
		calculatorBox(t))
	require.NoError(t, err)

	assert.Equal(t, "The result is 14.", outcome.Answer)
	assert.Equal(t, model.FinishStop, outcome.FinishReason)
	assert.Equal(t, 2, outcome.Turns)
	require.Len(t, outcome.ToolCalls, 1)
	assert.Equal(t, "calculator", outcome.ToolCalls[0].Name)
	assert.Equal(t, "14", outcome.ToolCalls[0].Result)
	assert.False(t, outcome.ToolCalls[0].IsError)
	assert.Equal(t, 45, outcome.Usage.TotalTokens)

	// user, assistant tool call, tool result, assistant answer
	require.Len(t, outcome.Transcript, 4)
	assert.Equal(t, model.RoleTool, outcome.Transcript[2].Role)
}

func TestToolLoopSiblingErrorIsolation(t *testing.T) {
	provider := &fakeProvider{
		name: "fake",
		script: []func(model.Request) (*model.Result, error){
			toolCallResult(
				model.ToolCallBlock{ID: "call_1", Name: "calculator", Args: json.RawMessage(`{"expression":"1+1"}`)},
				model.ToolCallBlock{ID: "call_2", Name: "calculator", Args: json.RawMessage(`{"expression":"1/0"}`)},
				model.ToolCallBlock{ID: "call_3", Name: "calculator", Args: json.RawMessage(`{"expression":"5-2"}`)},
			),
			textResult("done"),
		},
	}
	e := newTestEngine(t, provider)

	outcome, err := e.GenerateWithTools(context.Background(), "fake",
		model.Request{Model: "m", Messages: []model.Message{model.NewUserMessage("math")}},
		calculatorBox(t))
	require.NoError(t, err)

	// Results keep call order and the failure is isolated to its own slot.
	require.Len(t, outcome.ToolCalls, 3)
	assert.Equal(t, "2", outcome.ToolCalls[0].Result)
	assert.True(t, outcome.ToolCalls[1].IsError)
	assert.Equal(t, "3", outcome.ToolCalls[2].Result)

	// The model sees the error as a flagged tool result, not an aborted turn.
	seen := provider.seen()
	require.Len(t, seen, 2)
	results := seen[1].Messages[len(seen[1].Messages)-1].ToolResults()
	require.Len(t, results, 3)
	assert.Equal(t, "call_2", results[1].ToolCallID)
	assert.True(t, results[1].IsError)
}

func TestToolLoopUnknownTool(t *testing.T) {
	provider := &fakeProvider{
		name: "fake",
		script: []func(model.Request) (*model.Result, error){
			toolCallResult(model.ToolCallBlock{ID: "call_1", Name: "teleport", Args: json.RawMessage(`{}`)}),
			textResult("I cannot do that."),
		},
	}
	e := newTestEngine(t, provider)

	outcome, err := e.GenerateWithTools(context.Background(), "fake",
		model.Request{Model: "m", Messages: []model.Message{model.NewUserMessage("go")}},
		calculatorBox(t))
	require.NoError(t, err)

	require.Len(t, outcome.ToolCalls, 1)
	assert.True(t, outcome.ToolCalls[0].IsError)
	assert.Contains(t, outcome.ToolCalls[0].Result, "teleport")
}

func TestToolLoopExhaustion(t *testing.T) {
	provider := &fakeProvider{
		name: "fake",
		script: []func(model.Request) (*model.Result, error){
			toolCallResult(model.ToolCallBlock{ID: "call_1", Name: "calculator", Args: json.RawMessage(`{"expression":"1+1"}`)}),
		},
	}
	recorder := NewMemoryRecorder()
	e := newTestEngine(t, provider, WithMaxTurns(3), WithRecorder(recorder))

	outcome, err := e.GenerateWithTools(context.Background(), "fake",
		model.Request{Model: "m", Messages: []model.Message{model.NewUserMessage("loop")}},
		calculatorBox(t))

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Turns)

	require.NotNil(t, outcome)
	assert.Equal(t, 3, outcome.Turns)
	assert.Len(t, provider.seen(), 3)

	// The final turn's tool requests are never executed; there is no turn
	// left to feed their results back.
	assert.Len(t, outcome.ToolCalls, 2)
	assert.NotEmpty(t, outcome.Answer)
	assert.Contains(t, outcome.Answer, "calculator")
	assert.Equal(t, exhausted.Answer, outcome.Answer)

	records := recorder.Records()
	require.Len(t, records, 1)
	assert.NotEmpty(t, records[0].Err)
}

func TestToolLoopCustomSynthesizer(t *testing.T) {
	provider := &fakeProvider{
		name: "fake",
		script: []func(model.Request) (*model.Result, error){
			toolCallResult(model.ToolCallBlock{ID: "call_1", Name: "calculator", Args: json.RawMessage(`{"expression":"1"}`)}),
		},
	}
	e := newTestEngine(t, provider, WithMaxTurns(1), WithSynthesizer(func(outcome *Outcome) string {
		return "custom summary"
	}))

	outcome, err := e.GenerateWithTools(context.Background(), "fake",
		model.Request{Model: "m", Messages: []model.Message{model.NewUserMessage("q")}},
		calculatorBox(t))
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "custom summary", outcome.Answer)
}

func TestToolLoopSplitToolRoundTrip(t *testing.T) {
	box, err := tool.NewToolbox(tool.NewRaw("render_shape", "Render a shape.",
		unionToolDef().Parameters,
		func(ctx context.Context, args json.RawMessage) (string, error) {
			var parsed struct {
				Kind   string  `json:"kind"`
				Radius float64 `json:"radius"`
			}
			if err := json.Unmarshal(args, &parsed); err != nil {
				return "", err
			}
			if parsed.Kind == "" {
				return "", errors.New("discriminator was not restored")
			}
			return "rendered " + parsed.Kind, nil
		}))
	require.NoError(t, err)

	provider := &fakeProvider{
		name: "fake",
		script: []func(model.Request) (*model.Result, error){
			func(req model.Request) (*model.Result, error) {
				// The provider only ever sees the synthetic branch tools.
				if len(req.Tools) != 2 {
					return nil, errors.New("expected split tools")
				}
				return toolCallResult(model.ToolCallBlock{ID: "call_1", Name: "render_shape__circle", Args: json.RawMessage(`{"radius":2}`)})(req)
			},
			func(req model.Request) (*model.Result, error) {
				// The follow-up tool result keeps the wire name.
				last := req.Messages[len(req.Messages)-1]
				results := last.ToolResults()
				if len(results) != 1 || results[0].Name != "render_shape__circle" {
					return nil, errors.New("wire name not preserved")
				}
				return textResult("circle drawn")(req)
			},
		},
	}
	e := newTestEngine(t, provider)

	outcome, err := e.GenerateWithTools(context.Background(), "fake",
		model.Request{Model: "m", Messages: []model.Message{model.NewUserMessage("draw a circle")}}, box)
	require.NoError(t, err)

	assert.Equal(t, "circle drawn", outcome.Answer)
	require.Len(t, outcome.ToolCalls, 1)
	assert.Equal(t, "render_shape", outcome.ToolCalls[0].Name)
	assert.Equal(t, "rendered circle", outcome.ToolCalls[0].Result)

	// The transcript shows restored names throughout.
	assistant := outcome.Transcript[1]
	calls := assistant.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "render_shape", calls[0].Name)
	assert.JSONEq(t, `{"kind":"circle","radius":2}`, string(calls[0].Args))
}

func TestToolLoopCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	provider := &fakeProvider{
		name: "fake",
		script: []func(model.Request) (*model.Result, error){
			func(req model.Request) (*model.Result, error) {
				cancel()
				return toolCallResult(model.ToolCallBlock{ID: "call_1", Name: "calculator", Args: json.RawMessage(`{"expression":"1"}`)})(req)
			},
		},
	}
	e := newTestEngine(t, provider)

	_, err := e.GenerateWithTools(ctx, "fake",
		model.Request{Model: "m", Messages: []model.Message{model.NewUserMessage("q")}},
		calculatorBox(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
