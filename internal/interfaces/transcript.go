package interfaces

import (
	"context"
	"time"

	"llm-day-trader/internal/types"
)

// TranscriptSink persists session turns. Append-only and write-only from the
// core's perspective; every turn must be durable before the session advances.
type TranscriptSink interface {
	Append(ctx context.Context, identity string, date time.Time, turn types.Turn) error
}
