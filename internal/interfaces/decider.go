package interfaces

import (
	"context"

	"llm-day-trader/internal/types"
)

// Decider is the decision process driving one agent session. It receives the
// full transcript so far and returns the next assistant reply together with
// any tool calls the provider client extracted from it.
type Decider interface {
	Decide(ctx context.Context, transcript []types.Turn) (types.ModelResponse, error)
}
