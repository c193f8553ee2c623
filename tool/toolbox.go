package tool

import (
	"context"
	"encoding/json"
	"fmt"
)

// Toolbox is a registry of tools keyed by name. It implements Executor by
// dispatching to the registered handler. Registration is not safe for
// concurrent use; execution is.
type Toolbox struct {
	tools map[string]Tool
	order []string
}

func NewToolbox(tools ...Tool) (*Toolbox, error) {
	tb := &Toolbox{
		tools: map[string]Tool{},
	}
	for _, t := range tools {
		if err := tb.Register(t); err != nil {
			return nil, err
		}
	}
	return tb, nil
}

// Register adds a tool. Tool names must be unique within a toolbox.
func (t *Toolbox) Register(tl Tool) error {
	if tl.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if tl.Handler == nil {
		return fmt.Errorf("tool %q has no handler", tl.Name)
	}
	if _, ok := t.tools[tl.Name]; ok {
		return fmt.Errorf("tool %q is already registered", tl.Name)
	}
	t.tools[tl.Name] = tl
	t.order = append(t.order, tl.Name)
	return nil
}

// Definitions returns the definitions of all registered tools in registration
// order.
func (t *Toolbox) Definitions() []Definition {
	defs := make([]Definition, 0, len(t.order))
	for _, name := range t.order {
		defs = append(defs, t.tools[name].Definition)
	}
	return defs
}

// Execute dispatches to the named tool. Panics in handlers are recovered and
// reported as errors so a misbehaving tool cannot take down the loop.
func (t *Toolbox) Execute(ctx context.Context, name string, args json.RawMessage) (result string, err error) {
	tl, ok := t.tools[name]
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %q panicked: %v", name, r)
		}
	}()

	return tl.Handler(ctx, args)
}
