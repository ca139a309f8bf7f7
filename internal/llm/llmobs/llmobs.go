package llmobs

import (
	"context"

	"llm-day-trader/internal/interfaces"
	"llm-day-trader/internal/logger"
	"llm-day-trader/internal/trace"
	"llm-day-trader/internal/types"
)

// observableDecider wraps a Decider with observability (logging & tracing)
type observableDecider struct {
	decider interfaces.Decider
}

// Compile-time interface check
var _ interfaces.Decider = (*observableDecider)(nil)

// Wrap wraps a decider with observability middleware
func Wrap(decider interfaces.Decider) interfaces.Decider {
	return &observableDecider{decider: decider}
}

func (od *observableDecider) Decide(ctx context.Context, turns []types.Turn) (types.ModelResponse, error) {
	ctx, span := trace.StartSpan(ctx, "llm.Decide")
	defer span.End()

	// Use DebugSkip(1) to report the actual caller, not this middleware wrapper
	logger.DebugSkip(ctx, 1, "Requesting decision step",
		"turns", len(turns),
	)

	resp, err := od.decider.Decide(ctx, turns)
	if err != nil {
		// Use ErrorWithErrSkip(1) to report the actual caller
		logger.ErrorWithErrSkip(ctx, 1, "Decision step failed", err,
			"turns", len(turns),
		)
		return types.ModelResponse{}, err
	}

	logger.InfoSkip(ctx, 1, "Decision step received",
		"turns", len(turns),
		"tool_calls", len(resp.ToolCalls),
		"chars", len(resp.Content),
	)
	return resp, nil
}
