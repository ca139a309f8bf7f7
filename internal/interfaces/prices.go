package interfaces

import (
	"context"
	"time"

	"llm-day-trader/internal/types"
)

// PriceSource answers dated daily OHLCV lookups. Implementations must never
// fabricate bars: a missing (symbol, date) pair is an error.
type PriceSource interface {
	DailyBar(ctx context.Context, symbol string, date time.Time) (types.DailyBar, error)
}
