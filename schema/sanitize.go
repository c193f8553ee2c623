package schema

import "sort"

// Sanitize returns a deep copy of a JSON Schema with constructs the provider
// rejects removed. The input is never mutated.
func Sanitize(s map[string]any, caps Capabilities) map[string]any {
	if s == nil {
		return nil
	}
	out := make(map[string]any, len(s))
	for key, value := range s {
		switch key {
		case "format":
			format, ok := value.(string)
			if ok && !caps.allowsFormat(format) {
				continue
			}
			out[key] = value
		case "additionalProperties":
			if !caps.AdditionalProperties {
				continue
			}
			out[key] = sanitizeValue(value, caps)
		case "properties", "$defs", "definitions", "patternProperties":
			sub, ok := value.(map[string]any)
			if !ok {
				out[key] = value
				continue
			}
			copied := make(map[string]any, len(sub))
			for name, schema := range sub {
				copied[name] = sanitizeValue(schema, caps)
			}
			out[key] = copied
		case "items", "not", "if", "then", "else", "propertyNames", "contains":
			out[key] = sanitizeValue(value, caps)
		case "anyOf", "oneOf", "allOf", "prefixItems":
			list, ok := value.([]any)
			if !ok {
				out[key] = value
				continue
			}
			copied := make([]any, len(list))
			for i, schema := range list {
				copied[i] = sanitizeValue(schema, caps)
			}
			out[key] = copied
		default:
			out[key] = deepCopyValue(value)
		}
	}

	if caps.RequireExplicitRequired {
		fillRequired(out)
	}
	return out
}

func sanitizeValue(v any, caps Capabilities) any {
	if sub, ok := v.(map[string]any); ok {
		return Sanitize(sub, caps)
	}
	return deepCopyValue(v)
}

// fillRequired adds an explicit required list covering every property when
// an object schema omits one.
func fillRequired(s map[string]any) {
	props, ok := s["properties"].(map[string]any)
	if !ok || len(props) == 0 {
		return
	}
	if _, ok := s["required"]; ok {
		return
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	required := make([]any, len(names))
	for i, name := range names {
		required[i] = name
	}
	s["required"] = required
}

func deepCopy(s map[string]any) map[string]any {
	out := make(map[string]any, len(s))
	for key, value := range s {
		out[key] = deepCopyValue(value)
	}
	return out
}

func deepCopyValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return deepCopy(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}
