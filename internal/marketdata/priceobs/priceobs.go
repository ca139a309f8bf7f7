// Package priceobs wraps a price source with logging and tracing
// middleware.
package priceobs

import (
	"context"
	"time"

	"llm-day-trader/internal/interfaces"
	"llm-day-trader/internal/logger"
	"llm-day-trader/internal/trace"
	"llm-day-trader/internal/types"
)

type observableSource struct {
	source interfaces.PriceSource
}

var _ interfaces.PriceSource = (*observableSource)(nil)

// Wrap wraps a price source with observability middleware
func Wrap(source interfaces.PriceSource) interfaces.PriceSource {
	return &observableSource{source: source}
}

func (os *observableSource) DailyBar(ctx context.Context, symbol string, date time.Time) (types.DailyBar, error) {
	ctx, span := trace.StartSpan(ctx, "prices.DailyBar")
	defer span.End()

	// Use Skip(1) variants so logs report the actual caller, not this wrapper
	logger.DebugSkip(ctx, 1, "Fetching daily bar",
		"symbol", symbol,
		"date", types.FormatDate(date),
	)

	bar, err := os.source.DailyBar(ctx, symbol, date)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch daily bar", err,
			"symbol", symbol,
			"date", types.FormatDate(date),
		)
		return types.DailyBar{}, err
	}

	logger.DebugSkip(ctx, 1, "Daily bar fetched",
		"symbol", symbol,
		"date", types.FormatDate(date),
		"open", bar.Open.String(),
		"close", bar.Close.String(),
	)
	return bar, nil
}
