// Package yahoo serves daily bars from Yahoo Finance chart data. Bars are
// fetched one symbol at a time and cached for the process lifetime; the
// dates a replay touches never change, so the cache needs no expiry.
package yahoo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"

	"llm-day-trader/internal/interfaces"
	"llm-day-trader/internal/retry"
	"llm-day-trader/internal/types"
)

type Source struct {
	mu    sync.Mutex
	cache map[string]map[string]types.DailyBar // symbol -> date -> bar
}

var _ interfaces.PriceSource = (*Source)(nil)

func NewSource() *Source {
	return &Source{cache: make(map[string]map[string]types.DailyBar)}
}

func (s *Source) DailyBar(ctx context.Context, symbol string, date time.Time) (types.DailyBar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := types.FormatDate(date)
	if bars, ok := s.cache[symbol]; ok {
		if bar, ok := bars[key]; ok {
			return bar, nil
		}
	}

	// Fetch a window around the requested date so nearby session days hit
	// the cache instead of Yahoo.
	start := date.AddDate(0, 0, -30)
	end := date.AddDate(0, 0, 1)
	params := &chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	}

	bars := s.cache[symbol]
	if bars == nil {
		bars = make(map[string]types.DailyBar)
		s.cache[symbol] = bars
	}

	iter := chart.Get(params)
	for iter.Next() {
		b := iter.Bar()
		barDate := time.Unix(int64(b.Timestamp), 0).UTC()
		bars[types.FormatDate(barDate)] = types.DailyBar{
			Symbol: symbol,
			Date:   barDate,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: int64(b.Volume),
		}
	}
	if err := iter.Err(); err != nil {
		return types.DailyBar{}, retry.Transient(fmt.Errorf("yahoo chart for %s: %w", symbol, err))
	}

	bar, ok := bars[key]
	if !ok {
		return types.DailyBar{}, fmt.Errorf("no yahoo bar for %s on %s", symbol, key)
	}
	return bar, nil
}
