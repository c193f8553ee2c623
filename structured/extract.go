// Package structured turns free-form model text into validated JSON values
// for providers without native structured output.
package structured

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractError reports that no parsable JSON value could be located in a
// model response.
type ExtractError struct {
	Text string
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("no JSON value found in response (%d bytes)", len(e.Text))
}

// Extract locates a JSON value inside model output. It tries, in order, the
// whole trimmed text, a fenced code block (preferring a json label in any
// case), and the first balanced object or array.
func Extract(text string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)
	if json.Valid([]byte(trimmed)) && trimmed != "" {
		return json.RawMessage(trimmed), nil
	}

	if fenced := fencedBlock(trimmed); fenced != "" {
		if json.Valid([]byte(fenced)) {
			return json.RawMessage(fenced), nil
		}
	}

	if candidate := balanced(trimmed); candidate != "" {
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), nil
		}
	}

	return nil, &ExtractError{Text: text}
}

// fencedBlock returns the contents of the first json-labeled fence, matching
// the label case-insensitively, or of the first fence of any kind when no
// json label is present.
func fencedBlock(text string) string {
	for _, jsonOnly := range []bool{true, false} {
		rest := text
		for {
			start := strings.Index(rest, "```")
			if start < 0 {
				break
			}
			rest = rest[start+3:]
			end := strings.Index(rest, "```")
			if end < 0 {
				break
			}
			body := rest[:end]
			rest = rest[end+3:]

			labeled := false
			if nl := strings.IndexByte(body, '\n'); nl >= 0 {
				if strings.EqualFold(strings.TrimSpace(body[:nl]), "json") {
					labeled = true
					body = body[nl+1:]
				}
			} else if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
				labeled = true
				body = body[4:]
			}
			if jsonOnly && !labeled {
				continue
			}
			return strings.TrimSpace(body)
		}
	}
	return ""
}

// balanced returns the first brace- or bracket-balanced span, honoring
// string literals and escapes.
func balanced(text string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(text); i++ {
		if text[i] == '{' || text[i] == '[' {
			start = i
			open = text[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
