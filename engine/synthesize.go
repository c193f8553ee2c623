package engine

import (
	"fmt"
	"strings"
)

// Synthesizer produces a caller-facing answer when the tool loop ends
// without a final text turn from the model.
type Synthesizer func(outcome *Outcome) string

// defaultSynthesizer summarizes what ran so the caller is not left with an
// empty answer after the turn limit.
func defaultSynthesizer(outcome *Outcome) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The request could not be completed within %d tool turns.", outcome.Turns)

	if len(outcome.ToolCalls) > 0 {
		names := map[string]int{}
		order := []string{}
		for _, call := range outcome.ToolCalls {
			if names[call.Name] == 0 {
				order = append(order, call.Name)
			}
			names[call.Name]++
		}
		parts := make([]string, 0, len(order))
		for _, name := range order {
			parts = append(parts, fmt.Sprintf("%s (%dx)", name, names[name]))
		}
		fmt.Fprintf(&sb, " Tools invoked: %s.", strings.Join(parts, ", "))
	}

	if last := lastText(outcome); last != "" {
		fmt.Fprintf(&sb, " Last model output: %s", last)
	}
	return sb.String()
}

func lastText(outcome *Outcome) string {
	for i := len(outcome.Transcript) - 1; i >= 0; i-- {
		if text := outcome.Transcript[i].Text(); text != "" {
			return text
		}
	}
	return ""
}
