package ledger

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-day-trader/internal/types"
)

func newTestStore(t *testing.T, cash float64) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), decimal.NewFromFloat(cash), []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := types.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestBuyUpdatesSnapshotAndSequence(t *testing.T) {
	s := newTestStore(t, 10000)
	ctx := context.Background()

	rec, err := s.AppendTrade(ctx, "alpha", day(t, "2024-01-02"),
		types.TradeAction{Side: types.SideBuy, Symbol: "AAPL", Amount: 10},
		decimal.NewFromFloat(180.0))
	require.NoError(t, err)

	assert.Equal(t, int64(1), rec.ID)
	assert.True(t, rec.Positions.Cash.Equal(decimal.NewFromFloat(8200.0)),
		"cash = %s", rec.Positions.Cash)
	assert.Equal(t, int64(10), rec.Positions.Holdings["AAPL"])

	rec2, err := s.AppendTrade(ctx, "alpha", day(t, "2024-01-02"),
		types.TradeAction{Side: types.SideBuy, Symbol: "AAPL", Amount: 1},
		decimal.NewFromFloat(180.0))
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec2.ID)
}

func TestBuyRejectedWhenCashInsufficient(t *testing.T) {
	s := newTestStore(t, 1000)
	ctx := context.Background()
	date := day(t, "2024-01-02")

	before, err := s.LatestSnapshot("alpha", date)
	require.NoError(t, err)

	_, err = s.AppendTrade(ctx, "alpha", date,
		types.TradeAction{Side: types.SideBuy, Symbol: "AAPL", Amount: 10},
		decimal.NewFromFloat(180.0))
	require.ErrorIs(t, err, ErrInsufficientCash)
	assert.True(t, IsRejection(err))

	after, err := s.LatestSnapshot("alpha", date)
	require.NoError(t, err)
	assert.True(t, before.Equal(after), "snapshot changed after rejected trade")

	recs, err := s.Records("alpha")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSellRejectedWhenSharesInsufficient(t *testing.T) {
	s := newTestStore(t, 10000)
	ctx := context.Background()
	date := day(t, "2024-01-02")

	_, err := s.AppendTrade(ctx, "alpha", date,
		types.TradeAction{Side: types.SideBuy, Symbol: "AAPL", Amount: 10},
		decimal.NewFromFloat(100.0))
	require.NoError(t, err)

	_, err = s.AppendTrade(ctx, "alpha", date,
		types.TradeAction{Side: types.SideSell, Symbol: "AAPL", Amount: 15},
		decimal.NewFromFloat(100.0))
	require.ErrorIs(t, err, ErrInsufficientShares)

	recs, err := s.Records("alpha")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(10), recs[0].Positions.Holdings["AAPL"])
}

func TestSellCreditsCash(t *testing.T) {
	s := newTestStore(t, 10000)
	ctx := context.Background()
	date := day(t, "2024-01-02")

	_, err := s.AppendTrade(ctx, "alpha", date,
		types.TradeAction{Side: types.SideBuy, Symbol: "MSFT", Amount: 5},
		decimal.NewFromFloat(200.0))
	require.NoError(t, err)

	rec, err := s.AppendTrade(ctx, "alpha", day(t, "2024-01-03"),
		types.TradeAction{Side: types.SideSell, Symbol: "MSFT", Amount: 3},
		decimal.NewFromFloat(210.0))
	require.NoError(t, err)

	// 10000 - 1000 + 630
	assert.True(t, rec.Positions.Cash.Equal(decimal.NewFromFloat(9630.0)),
		"cash = %s", rec.Positions.Cash)
	assert.Equal(t, int64(2), rec.Positions.Holdings["MSFT"])
}

func TestUnknownSymbolRejectedBeforeMutation(t *testing.T) {
	s := newTestStore(t, 10000)

	_, err := s.AppendTrade(context.Background(), "alpha", day(t, "2024-01-02"),
		types.TradeAction{Side: types.SideBuy, Symbol: "TSLA", Amount: 1},
		decimal.NewFromFloat(100.0))
	require.ErrorIs(t, err, ErrInvalidSymbol)

	recs, err := s.Records("alpha")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestInvalidParamsRejected(t *testing.T) {
	s := newTestStore(t, 10000)
	ctx := context.Background()
	date := day(t, "2024-01-02")

	_, err := s.AppendTrade(ctx, "alpha", date,
		types.TradeAction{Side: types.SideBuy, Symbol: "AAPL", Amount: 0},
		decimal.NewFromFloat(100.0))
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = s.AppendTrade(ctx, "alpha", date,
		types.TradeAction{Side: types.SideBuy, Symbol: "AAPL", Amount: 1},
		decimal.Zero)
	require.ErrorIs(t, err, ErrInvalidPrice)
}

func TestCarryForward(t *testing.T) {
	s := newTestStore(t, 10000)
	ctx := context.Background()

	rec, err := s.AppendTrade(ctx, "alpha", day(t, "2024-01-02"),
		types.TradeAction{Side: types.SideBuy, Symbol: "AAPL", Amount: 2},
		decimal.NewFromFloat(150.0))
	require.NoError(t, err)

	// No trade on the 3rd or 4th: both days inherit the snapshot unchanged.
	for _, d := range []string{"2024-01-03", "2024-01-04"} {
		snap, err := s.LatestSnapshot("alpha", day(t, d))
		require.NoError(t, err)
		assert.True(t, snap.Equal(rec.Positions), "snapshot for %s diverged", d)
	}

	// Before the first record the initial snapshot applies.
	snap, err := s.LatestSnapshot("alpha", day(t, "2024-01-01"))
	require.NoError(t, err)
	assert.True(t, snap.Cash.Equal(decimal.NewFromFloat(10000)))
	assert.Empty(t, snap.Holdings)
}

func TestIdentitiesAreIsolated(t *testing.T) {
	s := newTestStore(t, 10000)
	ctx := context.Background()
	date := day(t, "2024-01-02")

	_, err := s.AppendTrade(ctx, "alpha", date,
		types.TradeAction{Side: types.SideBuy, Symbol: "AAPL", Amount: 5},
		decimal.NewFromFloat(100.0))
	require.NoError(t, err)

	rec, err := s.AppendTrade(ctx, "beta", date,
		types.TradeAction{Side: types.SideBuy, Symbol: "MSFT", Amount: 1},
		decimal.NewFromFloat(300.0))
	require.NoError(t, err)

	// Sequence ids are per identity, not global.
	assert.Equal(t, int64(1), rec.ID)

	snap, err := s.LatestSnapshot("beta", date)
	require.NoError(t, err)
	assert.Zero(t, snap.Holdings["AAPL"])
}

func TestReloadAfterReopen(t *testing.T) {
	dir := t.TempDir()
	cash := decimal.NewFromFloat(10000)
	ctx := context.Background()

	s, err := NewStore(dir, cash, []string{"AAPL"})
	require.NoError(t, err)
	_, err = s.AppendTrade(ctx, "alpha", day(t, "2024-01-02"),
		types.TradeAction{Side: types.SideBuy, Symbol: "AAPL", Amount: 4},
		decimal.NewFromFloat(100.0))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := NewStore(dir, cash, []string{"AAPL"})
	require.NoError(t, err)
	defer s2.Close()

	last, ok, err := s2.LastDate("alpha")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024-01-02", types.FormatDate(last))

	rec, err := s2.AppendTrade(ctx, "alpha", day(t, "2024-01-03"),
		types.TradeAction{Side: types.SideSell, Symbol: "AAPL", Amount: 4},
		decimal.NewFromFloat(110.0))
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.ID, "sequence must continue after reopen")
}

func TestTornTrailingLineDiscarded(t *testing.T) {
	dir := t.TempDir()
	cash := decimal.NewFromFloat(10000)
	ctx := context.Background()

	s, err := NewStore(dir, cash, []string{"AAPL"})
	require.NoError(t, err)
	_, err = s.AppendTrade(ctx, "alpha", day(t, "2024-01-02"),
		types.TradeAction{Side: types.SideBuy, Symbol: "AAPL", Amount: 1},
		decimal.NewFromFloat(100.0))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Simulate a crash mid-append: an unterminated, unparsable last line.
	path := filepath.Join(dir, "alpha.jsonl")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"date":"2024-01-03","id":2,"this_`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	s2, err := NewStore(dir, cash, []string{"AAPL"})
	require.NoError(t, err)
	defer s2.Close()

	recs, err := s2.Records("alpha")
	require.NoError(t, err)
	assert.Len(t, recs, 1, "unacknowledged trailing line must not become a record")
}

func TestAppendAfterTornLineRecovery(t *testing.T) {
	dir := t.TempDir()
	cash := decimal.NewFromFloat(10000)
	ctx := context.Background()

	s, err := NewStore(dir, cash, []string{"AAPL"})
	require.NoError(t, err)
	rec1, err := s.AppendTrade(ctx, "alpha", day(t, "2024-01-02"),
		types.TradeAction{Side: types.SideBuy, Symbol: "AAPL", Amount: 1},
		decimal.NewFromFloat(100.0))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	path := filepath.Join(dir, "alpha.jsonl")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"date":"2024-01-03","id":2,"this_`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// The torn bytes must not end up glued onto the next committed record.
	s2, err := NewStore(dir, cash, []string{"AAPL"})
	require.NoError(t, err)
	rec2, err := s2.AppendTrade(ctx, "alpha", day(t, "2024-01-03"),
		types.TradeAction{Side: types.SideBuy, Symbol: "AAPL", Amount: 2},
		decimal.NewFromFloat(101.0))
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec2.ID)
	require.NoError(t, s2.Close())

	s3, err := NewStore(dir, cash, []string{"AAPL"})
	require.NoError(t, err)
	defer s3.Close()

	recs, err := s3.Records("alpha")
	require.NoError(t, err)
	require.Len(t, recs, 2, "record committed after recovery must survive reload")
	assert.Equal(t, rec1.ID, recs[0].ID)
	assert.Equal(t, rec2.ID, recs[1].ID)
	assert.Equal(t, int64(3), recs[1].Positions.Holdings["AAPL"])
}

func TestUnterminatedFinalLineIsRepaired(t *testing.T) {
	dir := t.TempDir()
	cash := decimal.NewFromFloat(10000)
	ctx := context.Background()

	s, err := NewStore(dir, cash, []string{"AAPL"})
	require.NoError(t, err)
	_, err = s.AppendTrade(ctx, "alpha", day(t, "2024-01-02"),
		types.TradeAction{Side: types.SideBuy, Symbol: "AAPL", Amount: 1},
		decimal.NewFromFloat(100.0))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Strip the line terminator, as if the crash hit between the record
	// bytes and the newline.
	path := filepath.Join(dir, "alpha.jsonl")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, bytes.TrimSuffix(raw, []byte("\n")), 0o644))

	s2, err := NewStore(dir, cash, []string{"AAPL"})
	require.NoError(t, err)
	_, err = s2.AppendTrade(ctx, "alpha", day(t, "2024-01-03"),
		types.TradeAction{Side: types.SideSell, Symbol: "AAPL", Amount: 1},
		decimal.NewFromFloat(105.0))
	require.NoError(t, err)
	require.NoError(t, s2.Close())

	s3, err := NewStore(dir, cash, []string{"AAPL"})
	require.NoError(t, err)
	defer s3.Close()

	recs, err := s3.Records("alpha")
	require.NoError(t, err)
	assert.Len(t, recs, 2, "both records must survive a missing final newline")
}

func TestWireFormat(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, decimal.NewFromFloat(10000), []string{"AAPL"})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.AppendTrade(context.Background(), "alpha", day(t, "2024-01-02"),
		types.TradeAction{Side: types.SideBuy, Symbol: "AAPL", Amount: 10},
		decimal.NewFromFloat(180.0))
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "alpha.jsonl"))
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"date":"2024-01-02","id":1,"this_action":{"action":"buy","symbol":"AAPL","amount":10},"positions":{"AAPL":10,"CASH":8200}}`,
		string(raw))
}

func TestVerifyReplay(t *testing.T) {
	s := newTestStore(t, 10000)
	ctx := context.Background()

	trades := []struct {
		side   types.TradeSide
		sym    string
		amount int64
		price  float64
	}{
		{types.SideBuy, "AAPL", 10, 180.0},
		{types.SideBuy, "MSFT", 5, 300.0},
		{types.SideSell, "AAPL", 4, 190.0},
		{types.SideSell, "MSFT", 5, 250.0},
	}
	for i, tr := range trades {
		_, err := s.AppendTrade(ctx, "alpha", day(t, "2024-01-02").AddDate(0, 0, i),
			types.TradeAction{Side: tr.side, Symbol: tr.sym, Amount: tr.amount},
			decimal.NewFromFloat(tr.price))
		require.NoError(t, err)
	}

	require.NoError(t, s.VerifyReplay("alpha"))

	// Every stored snapshot is non-negative.
	recs, err := s.Records("alpha")
	require.NoError(t, err)
	for _, rec := range recs {
		assert.False(t, rec.Positions.Cash.IsNegative())
		for sym, qty := range rec.Positions.Holdings {
			assert.GreaterOrEqual(t, qty, int64(0), "holding %s", sym)
		}
	}
}
