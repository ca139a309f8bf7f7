// Package dispatch routes a decision step's requested actions to the ledger
// (trades) or to read-only collaborators (price, search, math), validating
// every call against its action schema first.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"llm-day-trader/internal/interfaces"
	"llm-day-trader/internal/ledger"
	"llm-day-trader/internal/logger"
	"llm-day-trader/internal/retry"
	"llm-day-trader/internal/trace"
	"llm-day-trader/internal/types"
)

type Dispatcher struct {
	ledger     interfaces.Ledger
	prices     interfaces.PriceSource
	search     interfaces.Searcher
	policy     retry.Policy
	maxResults int
}

func New(led interfaces.Ledger, prices interfaces.PriceSource, search interfaces.Searcher, policy retry.Policy, maxSearchResults int) *Dispatcher {
	if maxSearchResults <= 0 {
		maxSearchResults = 5
	}
	return &Dispatcher{
		ledger:     led,
		prices:     prices,
		search:     search,
		policy:     policy,
		maxResults: maxSearchResults,
	}
}

// Dispatch runs every requested call in order for the given identity and
// session date. Validation and resource failures become tool-error results so
// the decision process can adapt; a non-nil error means the current date
// cannot continue (retries exhausted on an external call, or the ledger
// append itself failed). Results produced before the failure are returned
// alongside it; nothing is silently dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, identity string, date time.Time, calls []types.ToolCall) ([]types.ToolResult, error) {
	ctx, span := trace.StartSpan(ctx, "dispatch.Dispatch")
	defer span.End()

	results := make([]types.ToolResult, 0, len(calls))
	for _, call := range calls {
		res, err := d.dispatchOne(ctx, identity, date, call)
		results = append(results, res)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, identity string, date time.Time, call types.ToolCall) (types.ToolResult, error) {
	act, err := parseAction(call, date)
	if err != nil {
		logger.Warn(ctx, "Rejected tool call", "identity", identity, "action", call.Name, "error", err)
		return errorResult(call.Name, err), nil
	}

	switch act.kind {
	case KindBuy, KindSell:
		return d.executeTrade(ctx, identity, date, act, call.Name)
	case KindGetPrice:
		return d.lookupPrice(ctx, act, call.Name)
	case KindSearch:
		return d.searchNews(ctx, act, call.Name)
	case KindCalculate:
		value, err := evaluate(act.expression)
		if err != nil {
			return errorResult(call.Name, err), nil
		}
		return types.ToolResult{Name: call.Name, Content: value.String()}, nil
	default:
		return errorResult(call.Name, &UnknownActionError{Name: call.Name}), nil
	}
}

// executeTrade resolves the day's reference price fresh for every call (never
// cached across a session) and routes the trade to the ledger.
func (d *Dispatcher) executeTrade(ctx context.Context, identity string, date time.Time, act action, name string) (types.ToolResult, error) {
	var bar types.DailyBar
	err := d.policy.Do(ctx, "price."+act.symbol, func(ctx context.Context) error {
		var err error
		bar, err = d.prices.DailyBar(ctx, act.symbol, date)
		return err
	})
	if err != nil {
		if retry.IsExhausted(err) {
			return errorResult(name, err), err
		}
		// A missing bar is a validation problem, not a session failure.
		return errorResult(name, err), nil
	}

	side := types.SideBuy
	if act.kind == KindSell {
		side = types.SideSell
	}
	rec, err := d.ledger.AppendTrade(ctx, identity, date,
		types.TradeAction{Side: side, Symbol: act.symbol, Amount: act.amount}, bar.Open)
	if err != nil {
		if ledger.IsRejection(err) {
			return errorResult(name, err), nil
		}
		// Append failures are persistence errors: fatal for this date.
		return errorResult(name, err), err
	}

	content, merr := json.Marshal(rec.Positions)
	if merr != nil {
		return errorResult(name, merr), merr
	}
	return types.ToolResult{Name: name, Content: string(content)}, nil
}

func (d *Dispatcher) lookupPrice(ctx context.Context, act action, name string) (types.ToolResult, error) {
	var bar types.DailyBar
	err := d.policy.Do(ctx, "price."+act.symbol, func(ctx context.Context) error {
		var err error
		bar, err = d.prices.DailyBar(ctx, act.symbol, act.date)
		return err
	})
	if err != nil {
		if retry.IsExhausted(err) {
			return errorResult(name, err), err
		}
		return errorResult(name, err), nil
	}

	payload := map[string]any{
		"open":   json.Number(bar.Open.String()),
		"high":   json.Number(bar.High.String()),
		"low":    json.Number(bar.Low.String()),
		"close":  json.Number(bar.Close.String()),
		"volume": bar.Volume,
	}
	content, merr := json.Marshal(payload)
	if merr != nil {
		return errorResult(name, merr), merr
	}
	return types.ToolResult{Name: name, Content: string(content)}, nil
}

func (d *Dispatcher) searchNews(ctx context.Context, act action, name string) (types.ToolResult, error) {
	var found string
	err := d.policy.Do(ctx, "search", func(ctx context.Context) error {
		var err error
		found, err = d.search.Search(ctx, act.query, d.maxResults)
		return err
	})
	if err != nil {
		if retry.IsExhausted(err) {
			return errorResult(name, err), err
		}
		return errorResult(name, err), nil
	}
	// Search output is opaque to the core and passed through verbatim.
	return types.ToolResult{Name: name, Content: found}, nil
}

func errorResult(name string, err error) types.ToolResult {
	content, merr := json.Marshal(map[string]string{"error": err.Error()})
	if merr != nil {
		content = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}
	return types.ToolResult{Name: name, Content: string(content), IsError: true}
}
