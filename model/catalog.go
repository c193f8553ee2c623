package model

import "strings"

// contextWindow returns the prompt window for known model families. Unknown
// models get a conservative default.
func contextWindow(model string) int {
	lower := strings.ToLower(model)
	switch {
	case strings.HasPrefix(lower, "claude-3-5") || strings.HasPrefix(lower, "claude-3-7"):
		return 200_000
	case strings.HasPrefix(lower, "claude"):
		return 200_000
	case strings.HasPrefix(lower, "gpt-4o") || strings.HasPrefix(lower, "gpt-4-turbo"):
		return 128_000
	case strings.HasPrefix(lower, "gpt-4"):
		return 8_192
	case strings.HasPrefix(lower, "gpt-3.5"):
		return 16_385
	case strings.HasPrefix(lower, "o1") || strings.HasPrefix(lower, "o3"):
		return 200_000
	case strings.HasPrefix(lower, "gemini-1.5-pro"):
		return 2_000_000
	case strings.HasPrefix(lower, "gemini"):
		return 1_000_000
	case strings.HasPrefix(lower, "deepseek"):
		return 64_000
	}
	return 32_000
}

// requiredNames reads a schema's required list, accepting both the
// JSON-decoded and the hand-written Go shape.
func requiredNames(s map[string]any) []string {
	switch typed := s["required"].(type) {
	case []string:
		return typed
	case []any:
		names := make([]string, 0, len(typed))
		for _, r := range typed {
			if name, ok := r.(string); ok {
				names = append(names, name)
			}
		}
		return names
	}
	return nil
}
