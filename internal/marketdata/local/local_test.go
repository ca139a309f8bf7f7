package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-day-trader/internal/types"
)

func writePriceFile(t *testing.T, dir, symbol, content string) {
	t.Helper()
	pricesDir := filepath.Join(dir, "prices")
	require.NoError(t, os.MkdirAll(pricesDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pricesDir, symbol+".jsonl"), []byte(content), 0o644))
}

func TestDailyBarFromFile(t *testing.T) {
	dir := t.TempDir()
	writePriceFile(t, dir, "AAPL",
		`{"date":"2024-01-02","open":180.5,"high":183.0,"low":179.2,"close":182.1,"volume":52000000}`+"\n"+
			`{"date":"2024-01-03","open":182.0,"high":184.5,"low":181.0,"close":183.7,"volume":48000000}`+"\n")

	src := NewSource(dir)
	date, err := types.ParseDate("2024-01-02")
	require.NoError(t, err)

	bar, err := src.DailyBar(context.Background(), "AAPL", date)
	require.NoError(t, err)
	assert.True(t, bar.Open.Equal(decimal.NewFromFloat(180.5)), "open was %s", bar.Open)
	assert.True(t, bar.Close.Equal(decimal.NewFromFloat(182.1)), "close was %s", bar.Close)
	assert.Equal(t, int64(52000000), bar.Volume)
}

func TestMissingDate(t *testing.T) {
	dir := t.TempDir()
	writePriceFile(t, dir, "AAPL", `{"date":"2024-01-02","open":180,"high":181,"low":179,"close":180.5,"volume":100}`+"\n")

	src := NewSource(dir)
	date, err := types.ParseDate("2024-02-14")
	require.NoError(t, err)

	_, err = src.DailyBar(context.Background(), "AAPL", date)
	assert.ErrorContains(t, err, "no bar for AAPL")
}

func TestMissingSymbolFile(t *testing.T) {
	src := NewSource(t.TempDir())
	date, err := types.ParseDate("2024-01-02")
	require.NoError(t, err)

	_, err = src.DailyBar(context.Background(), "TSLA", date)
	assert.Error(t, err)
}

func TestLowercaseSymbolResolvesSameFile(t *testing.T) {
	dir := t.TempDir()
	writePriceFile(t, dir, "MSFT", `{"date":"2024-01-02","open":400,"high":402,"low":398,"close":401,"volume":200}`+"\n")

	src := NewSource(dir)
	date, err := types.ParseDate("2024-01-02")
	require.NoError(t, err)

	bar, err := src.DailyBar(context.Background(), "msft", date)
	require.NoError(t, err)
	assert.True(t, bar.Open.Equal(decimal.NewFromInt(400)))
}
