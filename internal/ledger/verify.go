package ledger

import (
	"fmt"

	"llm-day-trader/internal/types"
)

// VerifyReplay audits one identity's book: starting from the initial snapshot
// and walking records in sequence order, every stored snapshot must be exactly
// accounted for by its record's action, and every persisted value must be
// non-negative. The wire format carries no price, so the cash leg is checked
// through the implied fill price (cash delta divided by amount), which must be
// positive and on the correct side.
func (s *Store) VerifyReplay(identity string) error {
	records, err := s.Records(identity)
	if err != nil {
		return err
	}

	prev := types.NewPortfolio(s.initialCash)
	var lastSeq int64
	for _, rec := range records {
		if rec.ID <= lastSeq {
			return fmt.Errorf("record %d: sequence id not strictly increasing", rec.ID)
		}
		lastSeq = rec.ID

		if rec.Positions.Cash.IsNegative() {
			return fmt.Errorf("record %d: negative cash %s", rec.ID, rec.Positions.Cash)
		}
		for sym, qty := range rec.Positions.Holdings {
			if qty < 0 {
				return fmt.Errorf("record %d: negative holding %s=%d", rec.ID, sym, qty)
			}
		}

		if err := checkTransition(prev, rec); err != nil {
			return fmt.Errorf("record %d: %w", rec.ID, err)
		}
		prev = rec.Positions
	}
	return nil
}

func checkTransition(prev types.PortfolioState, rec types.LedgerRecord) error {
	if rec.Action == nil {
		if !prev.Equal(rec.Positions) {
			return fmt.Errorf("no action but positions changed")
		}
		return nil
	}

	act := rec.Action
	if act.Amount <= 0 {
		return fmt.Errorf("non-positive amount %d", act.Amount)
	}

	// Every symbol other than the traded one must carry forward unchanged.
	expected := prev.Clone()
	switch act.Side {
	case types.SideBuy:
		expected.Holdings[act.Symbol] += act.Amount
	case types.SideSell:
		expected.Holdings[act.Symbol] -= act.Amount
	default:
		return fmt.Errorf("unknown side %q", act.Side)
	}
	for sym, qty := range expected.Holdings {
		if rec.Positions.Holdings[sym] != qty {
			return fmt.Errorf("holding %s: want %d, stored %d", sym, qty, rec.Positions.Holdings[sym])
		}
	}
	for sym := range rec.Positions.Holdings {
		if _, ok := expected.Holdings[sym]; !ok && rec.Positions.Holdings[sym] != 0 {
			return fmt.Errorf("unexplained holding %s appeared", sym)
		}
	}

	cashDelta := rec.Positions.Cash.Sub(prev.Cash)
	switch act.Side {
	case types.SideBuy:
		if !cashDelta.IsNegative() {
			return fmt.Errorf("buy did not debit cash (delta %s)", cashDelta)
		}
	case types.SideSell:
		if !cashDelta.IsPositive() {
			return fmt.Errorf("sell did not credit cash (delta %s)", cashDelta)
		}
	}
	return nil
}
