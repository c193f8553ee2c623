package model

// EstimateTokens approximates the token count of a conversation. Four
// characters per token plus a small per-message overhead tracks the
// GPT-series tokenizers closely enough for budgeting.
func EstimateTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		for _, block := range m.Blocks {
			switch b := block.(type) {
			case TextBlock:
				total += (len(b.Text) + 3) / 4
			case ToolCallBlock:
				total += (len(b.Name) + len(b.Args) + 3) / 4
			case ToolResultBlock:
				total += (len(b.Content) + 3) / 4
			}
		}
		total += 4
	}
	return total
}

// truncateToBudget drops the oldest non-system messages until the estimate
// fits the budget. System messages always survive. Tool messages whose
// originating assistant turn was dropped are removed with it so no orphaned
// results remain.
func truncateToBudget(messages []Message, budget int) []Message {
	if EstimateTokens(messages) <= budget {
		return messages
	}

	kept := append([]Message(nil), messages...)
	for EstimateTokens(kept) > budget {
		idx := -1
		for i, m := range kept {
			if m.Role != RoleSystem {
				idx = i
				break
			}
		}
		if idx < 0 {
			break
		}
		drop := 1
		// A dropped assistant turn with tool calls takes its results along.
		if kept[idx].Role == RoleAssistant && len(kept[idx].ToolCalls()) > 0 {
			for idx+drop < len(kept) && kept[idx+drop].Role == RoleTool {
				drop++
			}
		}
		kept = append(kept[:idx], kept[idx+drop:]...)
	}
	return kept
}

// prepare applies request-level truncation against the model's context
// window when the caller opted in.
func prepare(req Request) Request {
	if !req.Truncate {
		return req
	}
	window := contextWindow(req.Model)
	budget := window - req.MaxTokens
	if budget <= 0 {
		budget = window / 2
	}
	req.Messages = truncateToBudget(req.Messages, budget)
	return req
}
