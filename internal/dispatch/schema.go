package dispatch

import (
	"fmt"
	"math"
	"time"

	"llm-day-trader/internal/types"
)

// Kind enumerates the closed set of dispatchable actions. Routing is by
// tagged variant, never by raw string comparison at dispatch time.
type Kind int

const (
	KindBuy Kind = iota
	KindSell
	KindGetPrice
	KindSearch
	KindCalculate
)

const (
	nameBuy       = "buy"
	nameSell      = "sell"
	nameGetPrice  = "get_price_local"
	nameSearch    = "search_news"
	nameCalculate = "calculate"
)

var kindByName = map[string]Kind{
	nameBuy:       KindBuy,
	nameSell:      KindSell,
	nameGetPrice:  KindGetPrice,
	nameSearch:    KindSearch,
	nameCalculate: KindCalculate,
}

// UnknownActionError is returned for action names outside the closed set,
// before any side effect.
type UnknownActionError struct {
	Name string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action %q", e.Name)
}

// SchemaError is a parameter validation failure for a known action.
type SchemaError struct {
	Action string
	Param  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: parameter %q %s", e.Action, e.Param, e.Reason)
}

// action is one schema-validated request ready for routing.
type action struct {
	kind       Kind
	symbol     string
	amount     int64
	date       time.Time
	query      string
	expression string
}

// parseAction validates a raw tool call against the schema of its kind.
// sessionDate bounds any requested date: asking about the future is a
// time-isolation violation and fails validation.
func parseAction(call types.ToolCall, sessionDate time.Time) (action, error) {
	kind, ok := kindByName[call.Name]
	if !ok {
		return action{}, &UnknownActionError{Name: call.Name}
	}

	act := action{kind: kind}
	switch kind {
	case KindBuy, KindSell:
		sym, err := stringParam(call, "symbol")
		if err != nil {
			return action{}, err
		}
		amount, err := intParam(call, "amount")
		if err != nil {
			return action{}, err
		}
		if amount <= 0 {
			return action{}, &SchemaError{Action: call.Name, Param: "amount", Reason: "must be a positive integer"}
		}
		act.symbol = sym
		act.amount = amount

	case KindGetPrice:
		sym, err := stringParam(call, "symbol")
		if err != nil {
			return action{}, err
		}
		act.symbol = sym
		act.date = sessionDate
		if raw, ok := call.Args["date"]; ok {
			s, isStr := raw.(string)
			if !isStr {
				return action{}, &SchemaError{Action: call.Name, Param: "date", Reason: "must be a string"}
			}
			d, err := types.ParseDate(s)
			if err != nil {
				return action{}, &SchemaError{Action: call.Name, Param: "date", Reason: "must use YYYY-MM-DD"}
			}
			if d.After(sessionDate) {
				return action{}, &SchemaError{Action: call.Name, Param: "date", Reason: "is beyond the session date"}
			}
			act.date = d
		}

	case KindSearch:
		q, err := stringParam(call, "query")
		if err != nil {
			return action{}, err
		}
		act.query = q

	case KindCalculate:
		expr, err := stringParam(call, "expression")
		if err != nil {
			return action{}, err
		}
		act.expression = expr
	}

	return act, nil
}

func stringParam(call types.ToolCall, name string) (string, error) {
	raw, ok := call.Args[name]
	if !ok {
		return "", &SchemaError{Action: call.Name, Param: name, Reason: "is required"}
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", &SchemaError{Action: call.Name, Param: name, Reason: "must be a non-empty string"}
	}
	return s, nil
}

func intParam(call types.ToolCall, name string) (int64, error) {
	raw, ok := call.Args[name]
	if !ok {
		return 0, &SchemaError{Action: call.Name, Param: name, Reason: "is required"}
	}
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		// JSON numbers decode as float64; only integral values are valid.
		if v != math.Trunc(v) {
			return 0, &SchemaError{Action: call.Name, Param: name, Reason: "must be an integer"}
		}
		return int64(v), nil
	default:
		return 0, &SchemaError{Action: call.Name, Param: name, Reason: "must be an integer"}
	}
}

// Catalog describes every available action and its parameters. The session
// injects it into the kickoff instruction so the decision process knows the
// exact protocol.
func Catalog() string {
	return `Available tools (call with {"tool_calls":[{"name":...,"args":{...}}]}):
- buy: {"symbol": string, "amount": positive integer} -> buys at today's open price
- sell: {"symbol": string, "amount": positive integer} -> sells at today's open price
- get_price_local: {"symbol": string, "date": "YYYY-MM-DD" (optional, defaults to today, must not be in the future)} -> open/high/low/close/volume
- search_news: {"query": string} -> recent headlines for the query
- calculate: {"expression": string} -> evaluates arithmetic (+ - * / and parentheses)`
}
