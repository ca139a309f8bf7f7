package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// CashSymbol is the reserved portfolio key holding the cash balance.
const CashSymbol = "CASH"

// DateLayout is the wire format for all trading dates.
const DateLayout = "2006-01-02"

func FormatDate(t time.Time) string { return t.Format(DateLayout) }

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// TradeAction is one executed buy or sell. A nil *TradeAction in a ledger
// record means the record carries no trade.
type TradeAction struct {
	Side   TradeSide `json:"action"`
	Symbol string    `json:"symbol"`
	Amount int64     `json:"amount"`
}

// PortfolioState is a complete snapshot: integer share counts per symbol plus
// the decimal cash balance. Every value must stay >= 0 in every persisted
// snapshot.
type PortfolioState struct {
	Cash     decimal.Decimal
	Holdings map[string]int64
}

func NewPortfolio(cash decimal.Decimal) PortfolioState {
	return PortfolioState{Cash: cash, Holdings: map[string]int64{}}
}

func (p PortfolioState) Clone() PortfolioState {
	out := PortfolioState{Cash: p.Cash, Holdings: make(map[string]int64, len(p.Holdings))}
	for sym, qty := range p.Holdings {
		out.Holdings[sym] = qty
	}
	return out
}

// Equal compares cash by numeric value and holdings ignoring zero entries.
func (p PortfolioState) Equal(o PortfolioState) bool {
	if !p.Cash.Equal(o.Cash) {
		return false
	}
	for sym, qty := range p.Holdings {
		if qty != o.Holdings[sym] {
			return false
		}
	}
	for sym, qty := range o.Holdings {
		if qty != p.Holdings[sym] {
			return false
		}
	}
	return true
}

// MarshalJSON renders the snapshot as the flat positions object the ledger
// format requires: {"AAPL": 10, ..., "CASH": 8200.0}. Cash is emitted as a
// bare JSON number, not a quoted decimal string.
func (p PortfolioState) MarshalJSON() ([]byte, error) {
	syms := make([]string, 0, len(p.Holdings))
	for sym := range p.Holdings {
		syms = append(syms, sym)
	}
	sort.Strings(syms)

	buf := []byte{'{'}
	for _, sym := range syms {
		key, _ := json.Marshal(sym)
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, []byte(fmt.Sprintf("%d", p.Holdings[sym]))...)
		buf = append(buf, ',')
	}
	buf = append(buf, []byte(`"`+CashSymbol+`":`)...)
	buf = append(buf, []byte(p.Cash.String())...)
	buf = append(buf, '}')
	return buf, nil
}

func (p *PortfolioState) UnmarshalJSON(data []byte) error {
	raw := map[string]json.Number{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Holdings = make(map[string]int64, len(raw))
	p.Cash = decimal.Zero
	for sym, num := range raw {
		if sym == CashSymbol {
			cash, err := decimal.NewFromString(num.String())
			if err != nil {
				return fmt.Errorf("invalid cash value %q: %w", num, err)
			}
			p.Cash = cash
			continue
		}
		qty, err := num.Int64()
		if err != nil {
			return fmt.Errorf("invalid share count for %s: %w", sym, err)
		}
		p.Holdings[sym] = qty
	}
	return nil
}

// LedgerRecord is one committed entry of an identity's position history.
// Records are immutable once appended; ID is the only total order.
type LedgerRecord struct {
	Identity  string
	Date      time.Time
	ID        int64
	Action    *TradeAction
	Positions PortfolioState
}

type ledgerRecordWire struct {
	Date      string         `json:"date"`
	ID        int64          `json:"id"`
	Action    *TradeAction   `json:"this_action"`
	Positions PortfolioState `json:"positions"`
}

func (r LedgerRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(ledgerRecordWire{
		Date:      FormatDate(r.Date),
		ID:        r.ID,
		Action:    r.Action,
		Positions: r.Positions,
	})
}

func (r *LedgerRecord) UnmarshalJSON(data []byte) error {
	var w ledgerRecordWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	date, err := ParseDate(w.Date)
	if err != nil {
		return err
	}
	r.Date = date
	r.ID = w.ID
	r.Action = w.Action
	r.Positions = w.Positions
	return nil
}

// Transcript roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Turn is one role-tagged transcript entry.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolCall is one action requested by the decision process in a single step.
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolResult is the outcome of one dispatched tool call. Failures are carried
// as content so the decision process can adapt; they are never dropped.
type ToolResult struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	IsError bool   `json:"is_error"`
}

// ModelResponse is one decision-process reply: free text plus any tool calls
// the provider client extracted from it.
type ModelResponse struct {
	Content   string
	ToolCalls []ToolCall
}

type SessionStatus int

const (
	StatusRunning SessionStatus = iota
	StatusFinished
	StatusMaxStepsExceeded
	StatusFailed
)

func (s SessionStatus) String() string {
	switch s {
	case StatusRunning:
		return "RUNNING"
	case StatusFinished:
		return "FINISHED"
	case StatusMaxStepsExceeded:
		return "MAX_STEPS_EXCEEDED"
	case StatusFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("SessionStatus(%d)", int(s))
	}
}

// Terminal reports whether the session state machine may not advance further.
func (s SessionStatus) Terminal() bool { return s != StatusRunning }

// SessionResult is what one per-date session hands back to the scheduler.
type SessionResult struct {
	Identity       string
	Date           time.Time
	Status         SessionStatus
	Steps          int
	TradesExecuted int
}

// DailyBar is one day of OHLCV data for a symbol.
type DailyBar struct {
	Symbol string          `json:"symbol"`
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}
