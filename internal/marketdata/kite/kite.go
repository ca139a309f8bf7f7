// Package kite serves daily bars from the Zerodha Kite historical data API.
// Symbols must be registered with their instrument tokens before use; the
// token universe is small and known up front, so registration happens at
// wiring time.
package kite

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	"github.com/shopspring/decimal"

	"llm-day-trader/internal/interfaces"
	"llm-day-trader/internal/retry"
	"llm-day-trader/internal/types"
)

type Source struct {
	kc *kiteconnect.Client

	mu     sync.RWMutex
	tokens map[string]int // symbol -> instrument token
}

var _ interfaces.PriceSource = (*Source)(nil)

// NewSource builds a Kite-backed source from KITE_API_KEY and
// KITE_ACCESS_TOKEN in the environment.
func NewSource() (*Source, error) {
	apiKey := os.Getenv("KITE_API_KEY")
	accessToken := os.Getenv("KITE_ACCESS_TOKEN")
	if apiKey == "" || accessToken == "" {
		return nil, fmt.Errorf("KITE_API_KEY and KITE_ACCESS_TOKEN must be set")
	}

	kc := kiteconnect.New(apiKey)
	kc.SetAccessToken(accessToken)
	return &Source{kc: kc, tokens: make(map[string]int)}, nil
}

// Register maps a trading symbol to its Kite instrument token.
func (s *Source) Register(symbol string, token int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[symbol] = token
}

func (s *Source) DailyBar(ctx context.Context, symbol string, date time.Time) (types.DailyBar, error) {
	s.mu.RLock()
	token, ok := s.tokens[symbol]
	s.mu.RUnlock()
	if !ok {
		return types.DailyBar{}, fmt.Errorf("no instrument token registered for %s", symbol)
	}

	candles, err := s.kc.GetHistoricalData(token, "day", date, date.AddDate(0, 0, 1), false, false)
	if err != nil {
		return types.DailyBar{}, retry.Transient(fmt.Errorf("kite historical %s/%s: %w", symbol, types.FormatDate(date), err))
	}

	want := types.FormatDate(date)
	for _, c := range candles {
		if types.FormatDate(c.Date.Time) != want {
			continue
		}
		return types.DailyBar{
			Symbol: symbol,
			Date:   date,
			Open:   decimal.NewFromFloat(c.Open),
			High:   decimal.NewFromFloat(c.High),
			Low:    decimal.NewFromFloat(c.Low),
			Close:  decimal.NewFromFloat(c.Close),
			Volume: int64(c.Volume),
		}, nil
	}
	return types.DailyBar{}, fmt.Errorf("no kite bar for %s on %s", symbol, want)
}
