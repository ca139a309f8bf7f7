package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"llm-day-trader/internal/interfaces"
	"llm-day-trader/internal/llm"
	"llm-day-trader/internal/retry"
	"llm-day-trader/internal/store"
	"llm-day-trader/internal/trace"
	"llm-day-trader/internal/types"
)

type Decider struct {
	cfg      *store.Config
	endpoint string
}

var _ interfaces.Decider = (*Decider)(nil)

func NewDecider(cfg *store.Config) *Decider {
	// default messages endpoint (public Anthropic)
	endpoint := "https://api.anthropic.com/v1/messages"
	// If you use a proxy/bedrock/vertex, set endpoint via CLAUDE_API_ENDPOINT env var
	if ep := os.Getenv("CLAUDE_API_ENDPOINT"); ep != "" {
		endpoint = ep
	}
	return &Decider{cfg: cfg, endpoint: endpoint}
}

func (d *Decider) Decide(ctx context.Context, turns []types.Turn) (types.ModelResponse, error) {
	ctx, span := trace.StartSpan(ctx, "claude-api-call")
	defer span.End()

	apiKey := os.Getenv("CLAUDE_API_KEY")
	if apiKey == "" {
		return types.ModelResponse{}, errors.New("CLAUDE_API_KEY missing")
	}

	body := map[string]any{
		"model":       d.cfg.LLM.Model,
		"system":      llm.SystemPrompt,
		"messages":    messagesFromTurns(turns),
		"max_tokens":  d.cfg.LLM.MaxTokens,
		"temperature": d.cfg.LLM.Temperature,
	}
	bb, _ := json.Marshal(body)

	req, _ := http.NewRequestWithContext(ctx, "POST", d.endpoint, bytes.NewReader(bb))
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return types.ModelResponse{}, retry.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("claude http %d: %s", resp.StatusCode, string(payload))
		if resp.StatusCode == 429 || resp.StatusCode == 529 || resp.StatusCode >= 500 {
			return types.ModelResponse{}, retry.Transient(err)
		}
		return types.ModelResponse{}, err
	}

	var r struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return types.ModelResponse{}, retry.Transient(err)
	}

	var sb strings.Builder
	for _, block := range r.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	content := strings.TrimSpace(sb.String())
	if content == "" {
		return types.ModelResponse{}, errors.New("empty claude response")
	}
	return types.ModelResponse{
		Content:   content,
		ToolCalls: llm.ExtractToolCalls(content),
	}, nil
}

// messagesFromTurns folds the transcript into alternating user/assistant
// messages; tool output rides in a user message because the tool protocol is
// carried as plain text.
func messagesFromTurns(turns []types.Turn) []map[string]string {
	messages := make([]map[string]string, 0, len(turns))
	for _, turn := range turns {
		role := "user"
		content := turn.Content
		switch turn.Role {
		case types.RoleAssistant:
			role = "assistant"
		case types.RoleTool:
			content = "Tool results:\n" + content
		}
		messages = append(messages, map[string]string{"role": role, "content": content})
	}
	return messages
}
