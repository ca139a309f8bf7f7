package interfaces

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"llm-day-trader/internal/types"
)

// Ledger is the durable position store. One book per identity; appends are
// atomic and strictly ordered by sequence id.
type Ledger interface {
	LatestSnapshot(identity string, asOf time.Time) (types.PortfolioState, error)
	AppendTrade(ctx context.Context, identity string, date time.Time, action types.TradeAction, refPrice decimal.Decimal) (types.LedgerRecord, error)
	LastDate(identity string) (time.Time, bool, error)
}
