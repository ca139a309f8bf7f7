package openai

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
	endpoint := "https://api.openai.com/v1/chat/completions"
	if ep := os.Getenv("OPENAI_API_ENDPOINT"); ep != "" {
		endpoint = ep
	}
	return &Decider{cfg: cfg, endpoint: endpoint}
}

func (d *Decider) Decide(ctx context.Context, turns []types.Turn) (types.ModelResponse, error) {
	ctx, span := trace.StartSpan(ctx, "openai-api-call")
	defer span.End()

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return types.ModelResponse{}, errors.New("OPENAI_API_KEY missing")
	}

	messages := []map[string]string{{"role": "system", "content": llm.SystemPrompt}}
	for _, turn := range turns {
		messages = append(messages, map[string]string{
			"role":    chatRole(turn.Role),
			"content": chatContent(turn),
		})
	}

	body := map[string]any{
		"model":       d.cfg.LLM.Model,
		"messages":    messages,
		"temperature": d.cfg.LLM.Temperature,
		"max_tokens":  d.cfg.LLM.MaxTokens,
	}
	bb, _ := json.Marshal(body)

	req, _ := http.NewRequestWithContext(ctx, "POST", d.endpoint, bytes.NewReader(bb))
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return types.ModelResponse{}, retry.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("openai http %d: %s", resp.StatusCode, string(payload))
		if resp.StatusCode == 429 || resp.StatusCode >= 500 {
			return types.ModelResponse{}, retry.Transient(err)
		}
		return types.ModelResponse{}, err
	}

	var r struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return types.ModelResponse{}, retry.Transient(err)
	}
	if len(r.Choices) == 0 {
		return types.ModelResponse{}, errors.New("no choices")
	}

	content := strings.TrimSpace(r.Choices[0].Message.Content)
	return types.ModelResponse{
		Content:   content,
		ToolCalls: llm.ExtractToolCalls(content),
	}, nil
}

// chatRole maps transcript roles onto the chat API. Tool output travels as a
// user message because the tool protocol here is plain text, not the API's
// native function calling.
func chatRole(role string) string {
	if role == types.RoleAssistant {
		return "assistant"
	}
	return "user"
}

func chatContent(turn types.Turn) string {
	if turn.Role == types.RoleTool {
		return "Tool results:\n" + turn.Content
	}
	return turn.Content
}
