package model

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/furisto/relay/schema"
	"github.com/furisto/relay/tool"
)

// Request describes one generation call in canonical terms. Adapters
// translate it to their backend's wire format.
type Request struct {
	Model    string
	Messages []Message

	// Tools are offered to the model verbatim; callers run them through
	// schema.Transform for the target provider first.
	Tools []tool.Definition

	// ResponseSchema requests native structured output when the provider
	// supports it. Providers without support ignore it.
	ResponseSchema map[string]any

	Temperature   *float64
	MaxTokens     int
	StopSequences []string

	// Truncate permits dropping the oldest non-system messages when the
	// conversation exceeds the model's context window. When false an
	// oversized conversation is the provider's invalid_request to report.
	Truncate bool
}

// Provider is a single backend capable of generation.
type Provider interface {
	Name() string
	Capabilities() schema.Capabilities
	Generate(ctx context.Context, req Request) (*Result, error)
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)
}

// Registry holds named providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: map[string]Provider{}}
}

// Register adds a provider under its own name. Registering the same name
// twice is an error.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := p.Name()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.providers[name] = p
	return nil
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("no provider registered as %q", name)
	}
	return p, nil
}

// Names lists registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
