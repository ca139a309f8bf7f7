// Package scripted is a decider that replays a fixed sequence of responses.
// It backs dry runs and tests where no model endpoint should be touched.
package scripted

import (
	"context"
	"sync"

	"llm-day-trader/internal/interfaces"
	"llm-day-trader/internal/llm"
	"llm-day-trader/internal/types"
)

type Decider struct {
	mu        sync.Mutex
	responses []types.ModelResponse
	fallback  types.ModelResponse
}

var _ interfaces.Decider = (*Decider)(nil)

// NewDecider replays responses in order, then keeps returning fallback.
func NewDecider(responses []types.ModelResponse, fallback types.ModelResponse) *Decider {
	return &Decider{responses: responses, fallback: fallback}
}

// NewIdle returns a decider that immediately ends every trading day. Used
// for dry runs that exercise scheduling and persistence without trading.
func NewIdle(stopToken string) *Decider {
	return NewDecider(nil, types.ModelResponse{
		Content: "No trades today.\n" + stopToken,
	})
}

// Queue parses raw reply texts into responses, extracting tool calls the
// same way a live backend would.
func Queue(replies ...string) []types.ModelResponse {
	out := make([]types.ModelResponse, 0, len(replies))
	for _, text := range replies {
		out = append(out, types.ModelResponse{
			Content:   text,
			ToolCalls: llm.ExtractToolCalls(text),
		})
	}
	return out
}

func (d *Decider) Decide(ctx context.Context, turns []types.Turn) (types.ModelResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.responses) > 0 {
		next := d.responses[0]
		d.responses = d.responses[1:]
		return next, nil
	}
	return d.fallback, nil
}
