// Package eod builds end-of-range trading summaries from the ledger. The
// ledger stores positions, not prices, so per-trade value is recovered from
// the cash delta between consecutive records.
package eod

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"llm-day-trader/internal/types"
)

type aggRow struct {
	Symbol    string
	BuyQty    int64
	BuyValue  decimal.Decimal
	SellQty   int64
	SellValue decimal.Decimal
}

// SummarizeIdentity aggregates every trade in records into a per-symbol CSV
// under outDir and returns the file path. initialCash is the cash level
// before the first record. No trades means no file.
func SummarizeIdentity(identity string, records []types.LedgerRecord, initialCash decimal.Decimal, outDir string) (string, error) {
	aggs := map[string]*aggRow{}
	prevCash := initialCash
	for i, rec := range records {
		if i > 0 {
			prevCash = records[i-1].Positions.Cash
		}
		if rec.Action == nil {
			continue
		}

		row := aggs[rec.Action.Symbol]
		if row == nil {
			row = &aggRow{Symbol: rec.Action.Symbol}
			aggs[rec.Action.Symbol] = row
		}
		value := prevCash.Sub(rec.Positions.Cash).Abs()
		if rec.Action.Side == types.SideBuy {
			row.BuyQty += rec.Action.Amount
			row.BuyValue = row.BuyValue.Add(value)
		} else {
			row.SellQty += rec.Action.Amount
			row.SellValue = row.SellValue.Add(value)
		}
	}
	if len(aggs) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(aggs))
	for k := range aggs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	outPath := filepath.Join(outDir, "eod", identity+".csv")
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	defer w.Flush()
	headers := []string{"symbol", "buy_qty", "buy_avg", "sell_qty", "sell_avg", "realized_pnl", "gross_buy_value", "gross_sell_value"}
	if err := w.Write(headers); err != nil {
		return "", err
	}

	totalBuy, totalSell, totalPnL := decimal.Zero, decimal.Zero, decimal.Zero
	for _, k := range keys {
		r := aggs[k]
		buyAvg, sellAvg := decimal.Zero, decimal.Zero
		if r.BuyQty > 0 {
			buyAvg = r.BuyValue.Div(decimal.NewFromInt(r.BuyQty))
		}
		if r.SellQty > 0 {
			sellAvg = r.SellValue.Div(decimal.NewFromInt(r.SellQty))
		}
		matched := r.BuyQty
		if r.SellQty < matched {
			matched = r.SellQty
		}
		pnl := sellAvg.Sub(buyAvg).Mul(decimal.NewFromInt(matched))
		rec := []string{
			r.Symbol,
			strconv.FormatInt(r.BuyQty, 10),
			buyAvg.StringFixed(4),
			strconv.FormatInt(r.SellQty, 10),
			sellAvg.StringFixed(4),
			pnl.StringFixed(2),
			r.BuyValue.StringFixed(2),
			r.SellValue.StringFixed(2),
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
		totalBuy = totalBuy.Add(r.BuyValue)
		totalSell = totalSell.Add(r.SellValue)
		totalPnL = totalPnL.Add(pnl)
	}
	if err := w.Write([]string{"TOTAL", "", "", "", "", totalPnL.StringFixed(2), totalBuy.StringFixed(2), totalSell.StringFixed(2)}); err != nil {
		return "", err
	}
	return outPath, nil
}
