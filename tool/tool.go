package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Definition describes a tool that can be offered to a model. Parameters is a
// JSON Schema object describing the tool's arguments.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Executor is the tool-execution capability injected into the orchestration
// loop. Implementations must be safe for concurrent use; the engine may invoke
// Execute from multiple goroutines within a single turn.
type Executor interface {
	Execute(ctx context.Context, name string, args json.RawMessage) (string, error)
}

// Handler executes a tool with already-decoded input.
type Handler[T any] func(ctx context.Context, input T) (string, error)

type Tool struct {
	Definition
	Handler func(ctx context.Context, args json.RawMessage) (string, error)
}

// New builds a Tool whose parameter schema is reflected from T.
func New[T any](name, description string, handler Handler[T]) Tool {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	var input T
	inputSchema := reflector.Reflect(input)

	properties := map[string]any{}
	if inputSchema.Properties != nil {
		for pair := inputSchema.Properties.Oldest(); pair != nil; pair = pair.Next() {
			raw, err := json.Marshal(pair.Value)
			if err != nil {
				continue
			}
			var prop map[string]any
			if err := json.Unmarshal(raw, &prop); err != nil {
				continue
			}
			properties[pair.Key] = prop
		}
	}

	parameters := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(inputSchema.Required) > 0 {
		// Keep the JSON-decoded shape so schemas are uniform regardless of
		// whether they were reflected or parsed.
		required := make([]any, len(inputSchema.Required))
		for i, name := range inputSchema.Required {
			required[i] = name
		}
		parameters["required"] = required
	}

	return Tool{
		Definition: Definition{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var input T
			if len(args) > 0 {
				if err := json.Unmarshal(args, &input); err != nil {
					return "", fmt.Errorf("invalid arguments for tool %q: %w", name, err)
				}
			}
			return handler(ctx, input)
		},
	}
}

// NewRaw builds a Tool from an explicit parameter schema and a handler that
// receives the raw argument payload. Use this when the schema cannot be
// derived by reflection, e.g. for discriminated unions.
func NewRaw(name, description string, parameters map[string]any, handler func(ctx context.Context, args json.RawMessage) (string, error)) Tool {
	return Tool{
		Definition: Definition{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
		Handler: handler,
	}
}
