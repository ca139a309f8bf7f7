// Package local serves daily bars from JSON files on disk, one file per
// symbol. This is the default source: fully deterministic and usable
// offline, which keeps replayed date ranges reproducible.
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"llm-day-trader/internal/interfaces"
	"llm-day-trader/internal/types"
)

type Source struct {
	dir string

	mu    sync.Mutex
	cache map[string]map[string]types.DailyBar // symbol -> date -> bar
}

var _ interfaces.PriceSource = (*Source)(nil)

func NewSource(dataDir string) *Source {
	return &Source{
		dir:   filepath.Join(dataDir, "prices"),
		cache: make(map[string]map[string]types.DailyBar),
	}
}

type barFile struct {
	Date   string          `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

func (s *Source) DailyBar(ctx context.Context, symbol string, date time.Time) (types.DailyBar, error) {
	bars, err := s.load(symbol)
	if err != nil {
		return types.DailyBar{}, err
	}
	bar, ok := bars[types.FormatDate(date)]
	if !ok {
		return types.DailyBar{}, fmt.Errorf("no bar for %s on %s", symbol, types.FormatDate(date))
	}
	return bar, nil
}

func (s *Source) load(symbol string) (map[string]types.DailyBar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if bars, ok := s.cache[symbol]; ok {
		return bars, nil
	}

	// One JSON object per line, same shape the ledger and transcripts use.
	path := filepath.Join(s.dir, strings.ToUpper(symbol)+".jsonl")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read price file %s: %w", path, err)
	}

	bars := make(map[string]types.DailyBar)
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var b barFile
		if err := dec.Decode(&b); err != nil {
			return nil, fmt.Errorf("parse price file %s: %w", path, err)
		}
		d, err := types.ParseDate(b.Date)
		if err != nil {
			return nil, fmt.Errorf("price file %s: bad date %q: %w", path, b.Date, err)
		}
		bars[b.Date] = types.DailyBar{
			Symbol: symbol, Date: d,
			Open: b.Open, High: b.High, Low: b.Low, Close: b.Close,
			Volume: b.Volume,
		}
	}
	s.cache[symbol] = bars
	return bars, nil
}
