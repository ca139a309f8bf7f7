package prompt

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"llm-day-trader/internal/calendar"
	"llm-day-trader/internal/ledger"
	"llm-day-trader/internal/types"
)

type mapPrices struct {
	bars map[string]types.DailyBar // symbol|date
}

func (m *mapPrices) DailyBar(ctx context.Context, symbol string, date time.Time) (types.DailyBar, error) {
	bar, ok := m.bars[symbol+"|"+types.FormatDate(date)]
	if !ok {
		return types.DailyBar{}, fmt.Errorf("no bar for %s on %s", symbol, types.FormatDate(date))
	}
	return bar, nil
}

func bar(symbol, date string, open, closePx float64) types.DailyBar {
	d, _ := types.ParseDate(date)
	return types.DailyBar{
		Symbol: symbol, Date: d,
		Open:  decimal.NewFromFloat(open),
		High:  decimal.NewFromFloat(open + 1),
		Low:   decimal.NewFromFloat(open - 1),
		Close: decimal.NewFromFloat(closePx),
	}
}

func newBuilder(t *testing.T, prices *mapPrices) (*Builder, *ledger.Store) {
	t.Helper()
	led, err := ledger.NewStore(t.TempDir(), decimal.NewFromInt(10000), []string{"AAPL", "MSFT"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { led.Close() })
	b := NewBuilder(led, prices, calendar.New(nil), []string{"MSFT", "AAPL"}, "TRADE_DAY_COMPLETE")
	return b, led
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := types.ParseDate(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestOpeningContext(t *testing.T) {
	prices := &mapPrices{bars: map[string]types.DailyBar{
		"AAPL|2024-01-03": bar("AAPL", "2024-01-03", 182, 183),
		"AAPL|2024-01-02": bar("AAPL", "2024-01-02", 180, 181.5),
		"MSFT|2024-01-03": bar("MSFT", "2024-01-03", 401, 403),
		"MSFT|2024-01-02": bar("MSFT", "2024-01-02", 400, 402),
	}}
	b, led := newBuilder(t, prices)

	// A holding carried in from the prior day.
	_, err := led.AppendTrade(context.Background(), "alpha", mustDate(t, "2024-01-02"),
		types.TradeAction{Side: types.SideBuy, Symbol: "AAPL", Amount: 10}, decimal.NewFromInt(180))
	if err != nil {
		t.Fatal(err)
	}

	turn, err := b.Build(context.Background(), "alpha", mustDate(t, "2024-01-03"))
	if err != nil {
		t.Fatal(err)
	}
	if turn.Role != types.RoleUser {
		t.Fatalf("opening turn must be a user turn, got %s", turn.Role)
	}

	for _, want := range []string{
		"Today is 2024-01-03",
		"CASH: 8200.00",
		"AAPL: 10 shares",
		"AAPL: open 182.00, previous close 181.50",
		"MSFT: open 401.00, previous close 402.00",
		"TRADE_DAY_COMPLETE",
		"buy:",
	} {
		if !strings.Contains(turn.Content, want) {
			t.Errorf("opening context missing %q\n---\n%s", want, turn.Content)
		}
	}
}

func TestUniverseIsSortedInContext(t *testing.T) {
	prices := &mapPrices{bars: map[string]types.DailyBar{
		"AAPL|2024-01-02": bar("AAPL", "2024-01-02", 180, 181),
		"MSFT|2024-01-02": bar("MSFT", "2024-01-02", 400, 401),
	}}
	b, _ := newBuilder(t, prices)

	turn, err := b.Build(context.Background(), "alpha", mustDate(t, "2024-01-02"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Index(turn.Content, "AAPL:") > strings.Index(turn.Content, "MSFT:") {
		t.Error("universe should appear in sorted order")
	}
}

func TestUnavailablePriceDoesNotAbortContext(t *testing.T) {
	b, _ := newBuilder(t, &mapPrices{bars: map[string]types.DailyBar{}})

	turn, err := b.Build(context.Background(), "alpha", mustDate(t, "2024-01-02"))
	if err != nil {
		t.Fatalf("missing prices must not abort the session: %v", err)
	}
	if !strings.Contains(turn.Content, "open unavailable") {
		t.Errorf("context should mark missing prices, got:\n%s", turn.Content)
	}
}
