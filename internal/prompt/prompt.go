// Package prompt assembles the opening context of a trading session: the
// session date, the portfolio carried in from previous days, and the market
// data the decision process is allowed to see. Nothing dated after the
// session date ever enters the context.
package prompt

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"llm-day-trader/internal/dispatch"
	"llm-day-trader/internal/interfaces"
	"llm-day-trader/internal/logger"
	"llm-day-trader/internal/types"
)

type Builder struct {
	ledger    interfaces.Ledger
	prices    interfaces.PriceSource
	calendar  interfaces.Calendar
	universe  []string
	stopToken string
}

func NewBuilder(led interfaces.Ledger, prices interfaces.PriceSource, cal interfaces.Calendar, universe []string, stopToken string) *Builder {
	sorted := append([]string(nil), universe...)
	sort.Strings(sorted)
	return &Builder{
		ledger:    led,
		prices:    prices,
		calendar:  cal,
		universe:  sorted,
		stopToken: stopToken,
	}
}

// Build composes the kickoff user turn for (identity, date). The portfolio is
// the latest ledger snapshot strictly before the session date. Prices cover
// today's open and the previous trading day's close for the whole universe;
// symbols the source cannot serve are reported as unavailable rather than
// aborting the session.
func (b *Builder) Build(ctx context.Context, identity string, date time.Time) (types.Turn, error) {
	snapshot, err := b.ledger.LatestSnapshot(identity, date.AddDate(0, 0, -1))
	if err != nil {
		return types.Turn{}, fmt.Errorf("load portfolio for %s: %w", identity, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Today is %s. You are managing the trading account %q.\n\n", types.FormatDate(date), identity)

	sb.WriteString("Your portfolio at the start of the day:\n")
	fmt.Fprintf(&sb, "  CASH: %s\n", snapshot.Cash.StringFixed(2))
	for _, sym := range sortedHoldings(snapshot) {
		fmt.Fprintf(&sb, "  %s: %d shares\n", sym, snapshot.Holdings[sym])
	}

	prev, hasPrev := b.previousTradingDay(date)
	sb.WriteString("\nMarket data (open price today")
	if hasPrev {
		fmt.Fprintf(&sb, ", close on %s", types.FormatDate(prev))
	}
	sb.WriteString("):\n")
	for _, sym := range b.universe {
		line := b.priceLine(ctx, sym, date, prev, hasPrev)
		sb.WriteString("  " + line + "\n")
	}

	sb.WriteString("\n")
	sb.WriteString(dispatch.Catalog())
	fmt.Fprintf(&sb, "\n\nAll trades execute at today's open price. When you are done trading for the day, end your reply with %s on its own final line.", b.stopToken)

	return types.Turn{Role: types.RoleUser, Content: sb.String()}, nil
}

func (b *Builder) priceLine(ctx context.Context, sym string, date, prev time.Time, hasPrev bool) string {
	bar, err := b.prices.DailyBar(ctx, sym, date)
	if err != nil {
		logger.Warn(ctx, "Opening price unavailable", "symbol", sym, "date", types.FormatDate(date), "error", err)
		return fmt.Sprintf("%s: open unavailable", sym)
	}
	line := fmt.Sprintf("%s: open %s", sym, bar.Open.StringFixed(2))
	if !hasPrev {
		return line
	}
	prevBar, err := b.prices.DailyBar(ctx, sym, prev)
	if err != nil {
		return line + ", previous close unavailable"
	}
	return line + fmt.Sprintf(", previous close %s", prevBar.Close.StringFixed(2))
}

// previousTradingDay walks back up to two weeks looking for a trading day.
func (b *Builder) previousTradingDay(date time.Time) (time.Time, bool) {
	for d := date.AddDate(0, 0, -1); date.Sub(d) <= 14*24*time.Hour; d = d.AddDate(0, 0, -1) {
		if b.calendar.IsTradingDay(d) {
			return d, true
		}
	}
	return time.Time{}, false
}

func sortedHoldings(p types.PortfolioState) []string {
	syms := make([]string, 0, len(p.Holdings))
	for sym, n := range p.Holdings {
		if n > 0 {
			syms = append(syms, sym)
		}
	}
	sort.Strings(syms)
	return syms
}
