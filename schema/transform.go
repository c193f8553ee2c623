package schema

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/furisto/relay/tool"
)

// TransformError reports a tool schema that cannot be adapted to a
// provider's capabilities.
type TransformError struct {
	Tool   string
	Reason string
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform tool %q: %s", e.Tool, e.Reason)
}

type mappingEntry struct {
	// Original is the tool name before splitting.
	Original string
	// Property names the object property holding the union. Empty when the
	// union is the top-level parameter schema.
	Property string
	// Field and Value identify the discriminator literal stripped from the
	// branch schema.
	Field string
	Value any
}

// Mapping records how synthetic tool names produced by Transform relate to
// the originals, so tool calls coming back from a provider can be restored
// before execution.
type Mapping struct {
	entries map[string]mappingEntry
}

// Empty reports whether no tool was split.
func (m *Mapping) Empty() bool {
	return m == nil || len(m.entries) == 0
}

// Restore maps a provider-visible tool name and arguments back to the
// original tool. Names that were never split pass through unchanged. For
// split tools the discriminator field is re-injected into the arguments.
func (m *Mapping) Restore(name string, args json.RawMessage) (string, json.RawMessage, error) {
	if m == nil {
		return name, args, nil
	}
	entry, ok := m.entries[name]
	if !ok {
		return name, args, nil
	}

	parsed := map[string]any{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &parsed); err != nil {
			return "", nil, fmt.Errorf("restore tool call %q: %w", name, err)
		}
	}

	if entry.Property == "" {
		parsed[entry.Field] = entry.Value
	} else {
		nested, ok := parsed[entry.Property].(map[string]any)
		if !ok {
			nested = map[string]any{}
		}
		nested[entry.Field] = entry.Value
		parsed[entry.Property] = nested
	}

	restored, err := json.Marshal(parsed)
	if err != nil {
		return "", nil, fmt.Errorf("restore tool call %q: %w", name, err)
	}
	return entry.Original, restored, nil
}

// Transform adapts tool definitions to a provider's declared capabilities.
// Tools whose parameter schemas contain discriminated unions are split into
// one tool per branch when the provider cannot express unions, and every
// resulting schema is sanitized. The returned mapping restores calls against
// synthetic names; it is never nil.
func Transform(defs []tool.Definition, caps Capabilities) ([]tool.Definition, *Mapping, error) {
	mapping := &Mapping{entries: map[string]mappingEntry{}}
	out := make([]tool.Definition, 0, len(defs))

	names := map[string]bool{}
	for _, def := range defs {
		names[def.Name] = true
	}

	for _, def := range defs {
		split, err := splitUnion(def, caps)
		if err != nil {
			return nil, nil, err
		}
		if split == nil {
			sanitized := def
			sanitized.Parameters = Sanitize(def.Parameters, caps)
			out = append(out, sanitized)
			continue
		}
		for _, branch := range split {
			if branch.def.Name != def.Name && names[branch.def.Name] {
				return nil, nil, &TransformError{
					Tool:   def.Name,
					Reason: fmt.Sprintf("synthetic name %q collides with an existing tool", branch.def.Name),
				}
			}
			branch.def.Parameters = Sanitize(branch.def.Parameters, caps)
			out = append(out, branch.def)
			mapping.entries[branch.def.Name] = branch.entry
		}
	}
	return out, mapping, nil
}

type branchTool struct {
	def   tool.Definition
	entry mappingEntry
}

// splitUnion returns the per-branch tools for def, or nil when no split is
// needed.
func splitUnion(def tool.Definition, caps Capabilities) ([]branchTool, error) {
	if caps.DiscriminatedUnions {
		return nil, nil
	}

	if branches := unionBranches(def.Parameters); branches != nil {
		return splitBranches(def, "", branches)
	}

	// A single object property holding a union is split in place; the outer
	// object is preserved per branch.
	props, _ := def.Parameters["properties"].(map[string]any)
	var unionProp string
	var unionBranchList []map[string]any
	for name, raw := range props {
		sub, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if branches := unionBranches(sub); branches != nil {
			if unionProp != "" {
				// More than one union property; pass through untouched and
				// let the provider reject it if it must.
				return nil, nil
			}
			unionProp = name
			unionBranchList = branches
		}
	}
	if unionProp == "" {
		return nil, nil
	}
	return splitBranches(def, unionProp, unionBranchList)
}

func splitBranches(def tool.Definition, property string, branches []map[string]any) ([]branchTool, error) {
	field, values, err := discriminator(def.Name, branches)
	if err != nil {
		return nil, err
	}

	out := make([]branchTool, 0, len(branches))
	for i, branch := range branches {
		stripped := stripDiscriminator(branch, field)
		name := fmt.Sprintf("%s__%v", def.Name, values[i])

		var params map[string]any
		if property == "" {
			params = stripped
		} else {
			params = deepCopy(def.Parameters)
			props, _ := params["properties"].(map[string]any)
			props[property] = stripped
		}

		out = append(out, branchTool{
			def: tool.Definition{
				Name:        name,
				Description: branchDescription(def.Description, branch),
				Parameters:  params,
			},
			entry: mappingEntry{
				Original: def.Name,
				Property: property,
				Field:    field,
				Value:    values[i],
			},
		})
	}
	return out, nil
}

func branchDescription(base string, branch map[string]any) string {
	if desc, ok := branch["description"].(string); ok && desc != "" {
		if base == "" {
			return desc
		}
		return base + " " + desc
	}
	return base
}

// unionBranches returns the branch schemas of an anyOf/oneOf union, or nil
// when s is not a union of objects.
func unionBranches(s map[string]any) []map[string]any {
	raw, ok := s["anyOf"].([]any)
	if !ok {
		raw, ok = s["oneOf"].([]any)
	}
	if !ok || len(raw) < 2 {
		return nil
	}
	branches := make([]map[string]any, 0, len(raw))
	for _, b := range raw {
		branch, ok := b.(map[string]any)
		if !ok {
			return nil
		}
		branches = append(branches, branch)
	}
	return branches
}

// discriminator finds the field that every branch pins to a distinct literal
// via const or a single-value enum.
func discriminator(toolName string, branches []map[string]any) (string, []any, error) {
	candidates := map[string][]any{}

	first, _ := branches[0]["properties"].(map[string]any)
	for field := range first {
		values := make([]any, 0, len(branches))
		for _, branch := range branches {
			props, _ := branch["properties"].(map[string]any)
			sub, ok := props[field].(map[string]any)
			if !ok {
				values = nil
				break
			}
			value, ok := literalValue(sub)
			if !ok {
				values = nil
				break
			}
			values = append(values, value)
		}
		if values != nil {
			candidates[field] = values
		}
	}

	if len(candidates) == 0 {
		return "", nil, &TransformError{
			Tool:   toolName,
			Reason: "union has no literal discriminator field shared by all branches",
		}
	}

	fields := make([]string, 0, len(candidates))
	for field := range candidates {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		values := candidates[field]
		if distinct(values) {
			return field, values, nil
		}
	}
	return "", nil, &TransformError{
		Tool:   toolName,
		Reason: fmt.Sprintf("discriminator %q has duplicate values across branches", fields[0]),
	}
}

func literalValue(s map[string]any) (any, bool) {
	if v, ok := s["const"]; ok {
		return v, true
	}
	if enum, ok := s["enum"].([]any); ok && len(enum) == 1 {
		return enum[0], true
	}
	return nil, false
}

func distinct(values []any) bool {
	seen := map[string]bool{}
	for _, v := range values {
		key := fmt.Sprintf("%T:%v", v, v)
		if seen[key] {
			return false
		}
		seen[key] = true
	}
	return true
}

// stripDiscriminator deep-copies a branch schema with the discriminator
// field removed from properties and required.
func stripDiscriminator(branch map[string]any, field string) map[string]any {
	out := deepCopy(branch)
	if props, ok := out["properties"].(map[string]any); ok {
		delete(props, field)
	}
	if required, ok := out["required"].([]any); ok {
		filtered := make([]any, 0, len(required))
		for _, r := range required {
			if r != field {
				filtered = append(filtered, r)
			}
		}
		if len(filtered) == 0 {
			delete(out, "required")
		} else {
			out["required"] = filtered
		}
	}
	return out
}
