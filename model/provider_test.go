package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/furisto/relay/schema"
)

type stubProvider struct {
	name string
}

func (s *stubProvider) Name() string                      { return s.name }
func (s *stubProvider) Capabilities() schema.Capabilities { return schema.Capabilities{} }
func (s *stubProvider) Generate(context.Context, Request) (*Result, error) {
	return &Result{FinishReason: FinishStop}, nil
}
func (s *stubProvider) Stream(context.Context, Request) (<-chan Chunk, error) {
	ch := make(chan Chunk)
	close(ch)
	return ch, nil
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&stubProvider{name: "beta"}))
	require.NoError(t, registry.Register(&stubProvider{name: "alpha"}))

	err := registry.Register(&stubProvider{name: "alpha"})
	assert.Error(t, err)

	p, err := registry.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", p.Name())

	_, err = registry.Get("missing")
	assert.Error(t, err)

	assert.Equal(t, []string{"alpha", "beta"}, registry.Names())
}

func TestConstructorsRejectEmptyKeys(t *testing.T) {
	_, err := NewAnthropic("")
	assert.Error(t, err)
	_, err = NewOpenAI("")
	assert.Error(t, err)
	_, err = NewGemini(context.Background(), "")
	assert.Error(t, err)
	_, err = NewDeepSeek("")
	assert.Error(t, err)
}

func TestFinishReasonMapping(t *testing.T) {
	assert.Equal(t, FinishStop, openaiFinishReason("stop"))
	assert.Equal(t, FinishToolCalls, openaiFinishReason("tool_calls"))
	assert.Equal(t, FinishLength, openaiFinishReason("length"))
	assert.Equal(t, FinishContentFilter, openaiFinishReason("content_filter"))
	assert.Equal(t, FinishStop, openaiFinishReason("something_new"))
}
