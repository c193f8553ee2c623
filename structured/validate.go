package structured

import (
	"encoding/json"
	"fmt"
	"math"
)

// ValidationError reports the first place a value diverged from its schema.
type ValidationError struct {
	Path string
	Want string
	Got  string
}

func (e *ValidationError) Error() string {
	path := e.Path
	if path == "" {
		path = "$"
	}
	return fmt.Sprintf("%s: want %s, got %s", path, e.Want, e.Got)
}

// Validate checks a decoded JSON value against a JSON Schema subset: type,
// required, properties, additionalProperties, items, enum, const, and
// anyOf/oneOf unions.
func Validate(value any, schema map[string]any) error {
	return validate(value, schema, "")
}

// ExtractAndValidate extracts a JSON value from model text and validates it
// against schema.
func ExtractAndValidate(text string, schema map[string]any) (json.RawMessage, error) {
	raw, err := Extract(text)
	if err != nil {
		return nil, err
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, err
	}
	if err := Validate(value, schema); err != nil {
		return nil, err
	}
	return raw, nil
}

func validate(value any, schema map[string]any, path string) error {
	if schema == nil {
		return nil
	}

	if branches, ok := unionList(schema); ok {
		var first error
		for _, branch := range branches {
			sub, ok := branch.(map[string]any)
			if !ok {
				continue
			}
			err := validate(value, sub, path)
			if err == nil {
				return nil
			}
			if first == nil {
				first = err
			}
		}
		return first
	}

	if want, ok := schema["const"]; ok {
		if !jsonEqual(value, want) {
			return &ValidationError{Path: path, Want: fmt.Sprintf("const %v", want), Got: describe(value)}
		}
	}
	if enum, ok := schema["enum"].([]any); ok {
		matched := false
		for _, candidate := range enum {
			if jsonEqual(value, candidate) {
				matched = true
				break
			}
		}
		if !matched {
			return &ValidationError{Path: path, Want: fmt.Sprintf("one of %v", enum), Got: describe(value)}
		}
	}

	want, ok := schema["type"].(string)
	if !ok {
		return validateShape(value, schema, path)
	}
	if !typeMatches(value, want) {
		return &ValidationError{Path: path, Want: want, Got: describe(value)}
	}
	return validateShape(value, schema, path)
}

func validateShape(value any, schema map[string]any, path string) error {
	switch typed := value.(type) {
	case map[string]any:
		if required, ok := schema["required"].([]any); ok {
			for _, r := range required {
				name, _ := r.(string)
				if _, present := typed[name]; !present {
					return &ValidationError{Path: joinPath(path, name), Want: "present", Got: "missing"}
				}
			}
		}
		props, _ := schema["properties"].(map[string]any)
		for name, raw := range typed {
			sub, ok := props[name].(map[string]any)
			if !ok {
				if extra, ok := schema["additionalProperties"].(bool); ok && !extra {
					return &ValidationError{Path: joinPath(path, name), Want: "no additional properties", Got: describe(raw)}
				}
				continue
			}
			if err := validate(raw, sub, joinPath(path, name)); err != nil {
				return err
			}
		}
	case []any:
		items, ok := schema["items"].(map[string]any)
		if !ok {
			return nil
		}
		for i, item := range typed {
			if err := validate(item, items, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func unionList(schema map[string]any) ([]any, bool) {
	if list, ok := schema["anyOf"].([]any); ok {
		return list, true
	}
	if list, ok := schema["oneOf"].([]any); ok {
		return list, true
	}
	return nil, false
}

func typeMatches(value any, want string) bool {
	switch want {
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "number":
		_, ok := value.(float64)
		return ok
	case "integer":
		f, ok := value.(float64)
		return ok && f == math.Trunc(f)
	case "null":
		return value == nil
	}
	return false
}

func describe(value any) string {
	switch value.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case nil:
		return "null"
	}
	return fmt.Sprintf("%T", value)
}

func jsonEqual(a, b any) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b) && describe(a) == describe(b)
}

func joinPath(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}
