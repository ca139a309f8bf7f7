// Package llm holds what every model backend shares: the system prompt and
// the strict-JSON tool call protocol parsed out of model replies.
package llm

import (
	"encoding/json"
	"strings"

	"llm-day-trader/internal/types"
)

// SystemPrompt frames the model as the account's trader. The per-day rules,
// tool catalog and stop token arrive in the opening user turn.
const SystemPrompt = "You are an autonomous day trader managing a single stock portfolio. " +
	"Act only through the tools described in the first message, and request them with STRICT JSON. " +
	"Never invent prices or positions; read them through tools."

type toolCallEnvelope struct {
	ToolCalls []struct {
		Name string         `json:"name"`
		Args map[string]any `json:"args"`
	} `json:"tool_calls"`
}

// ExtractToolCalls pulls the tool call envelope out of a model reply. The
// envelope may be the whole reply or embedded in surrounding prose; a reply
// without one is a plain text turn.
func ExtractToolCalls(text string) []types.ToolCall {
	t := strings.TrimSpace(text)

	if calls, ok := decodeEnvelope(t); ok {
		return calls
	}

	// Look for an embedded object the way replies often wrap JSON in prose.
	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start >= 0 && end > start {
		if calls, ok := decodeEnvelope(t[start : end+1]); ok {
			return calls
		}
	}
	return nil
}

func decodeEnvelope(s string) ([]types.ToolCall, bool) {
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var env toolCallEnvelope
	if err := json.Unmarshal([]byte(s), &env); err != nil || len(env.ToolCalls) == 0 {
		return nil, false
	}
	calls := make([]types.ToolCall, 0, len(env.ToolCalls))
	for _, c := range env.ToolCalls {
		args := c.Args
		if args == nil {
			args = map[string]any{}
		}
		calls = append(calls, types.ToolCall{Name: c.Name, Args: args})
	}
	return calls, true
}
