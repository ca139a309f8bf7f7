// Package ledger implements the durable, append-only position store. One
// JSONL book per agent identity; the record sequence is the sole source of
// truth for that identity's portfolio history.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"llm-day-trader/internal/interfaces"
	"llm-day-trader/internal/logger"
	"llm-day-trader/internal/trace"
	"llm-day-trader/internal/types"
)

// Trade rejections. These surface to the decision process as tool errors and
// never leave a partial write behind.
var (
	ErrInsufficientCash   = errors.New("insufficient cash")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrInvalidSymbol      = errors.New("symbol not in tradable universe")
	ErrInvalidAmount      = errors.New("trade amount must be a positive integer")
	ErrInvalidPrice       = errors.New("reference price must be positive")
)

// IsRejection reports whether err is a trade validation/resource rejection,
// as opposed to a persistence failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInsufficientCash) ||
		errors.Is(err, ErrInsufficientShares) ||
		errors.Is(err, ErrInvalidSymbol) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidPrice)
}

// Store manages one append-only book per identity under a single directory.
type Store struct {
	dir         string
	initialCash decimal.Decimal
	universe    map[string]bool

	mu    sync.RWMutex
	books map[string]*book
}

type book struct {
	mu      sync.Mutex
	file    *os.File
	records []types.LedgerRecord
	lastSeq int64
}

var _ interfaces.Ledger = (*Store)(nil)

// NewStore opens (or creates) the ledger directory. Books are loaded lazily
// per identity on first access.
func NewStore(dir string, initialCash decimal.Decimal, universe []string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	uni := make(map[string]bool, len(universe))
	for _, sym := range universe {
		uni[sym] = true
	}
	return &Store{
		dir:         dir,
		initialCash: initialCash,
		universe:    uni,
		books:       map[string]*book{},
	}, nil
}

// Close releases every open book file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, b := range s.books {
		b.mu.Lock()
		if b.file != nil {
			if err := b.file.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
			b.file = nil
		}
		b.mu.Unlock()
	}
	return firstErr
}

func (s *Store) bookPath(identity string) string {
	return filepath.Join(s.dir, identity+".jsonl")
}

func (s *Store) openBook(identity string) (*book, error) {
	s.mu.RLock()
	b, ok := s.books[identity]
	s.mu.RUnlock()
	if ok {
		return b, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.books[identity]; ok {
		return b, nil
	}

	b = &book{}
	if err := b.load(s.bookPath(identity), identity); err != nil {
		return nil, err
	}
	s.books[identity] = b
	return b, nil
}

// load replays the book file into memory and opens the append handle. A torn
// final line (crash mid-write, before the append was acknowledged) is
// truncated away so the next append starts on a clean line boundary; a torn
// line anywhere else is corruption.
func (b *book) load(path, identity string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger book for %s: %w", identity, err)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("read ledger book for %s: %w", identity, err)
	}

	// offset tracks the byte boundary after the last cleanly parsed line, so
	// a torn tail can be cut off exactly where the committed history ends.
	var (
		offset int64
		torn   bool
	)
	unterminated := len(data) > 0 && data[len(data)-1] != '\n'
	for lineNo := 1; len(data) > 0; lineNo++ {
		var line []byte
		consumed := bytes.IndexByte(data, '\n') + 1
		if consumed == 0 {
			line, consumed = data, len(data)
		} else {
			line = data[:consumed-1]
		}
		rest := data[consumed:]

		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			var rec types.LedgerRecord
			if err := json.Unmarshal(trimmed, &rec); err != nil {
				if len(bytes.TrimSpace(rest)) == 0 {
					torn = true
					logger.Warn(context.Background(), "Discarding unacknowledged trailing ledger line",
						"identity", identity, "line", lineNo)
					break
				}
				f.Close()
				return fmt.Errorf("corrupt ledger book for %s at line %d: %w", identity, lineNo, err)
			}
			rec.Identity = identity
			if rec.ID <= b.lastSeq {
				f.Close()
				return fmt.Errorf("corrupt ledger book for %s: sequence id %d not increasing", identity, rec.ID)
			}
			b.lastSeq = rec.ID
			b.records = append(b.records, rec)
		}
		offset += int64(consumed)
		data = rest
	}

	if torn {
		if err := f.Truncate(offset); err != nil {
			f.Close()
			return fmt.Errorf("truncate torn ledger book for %s: %w", identity, err)
		}
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return fmt.Errorf("seek ledger book for %s: %w", identity, err)
	}
	// A parseable final line missing its newline would merge with the next
	// append; terminate it now.
	if !torn && unterminated {
		if _, err := f.Write([]byte{'\n'}); err != nil {
			f.Close()
			return fmt.Errorf("repair ledger book for %s: %w", identity, err)
		}
	}
	b.file = f
	return nil
}

// LatestSnapshot returns the resulting snapshot of the last record with
// date <= asOf, or the initial snapshot when no such record exists. A date
// with no trade carries the prior date's snapshot forward unchanged.
func (s *Store) LatestSnapshot(identity string, asOf time.Time) (types.PortfolioState, error) {
	b, err := s.openBook(identity)
	if err != nil {
		return types.PortfolioState{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.records) - 1; i >= 0; i-- {
		if !b.records[i].Date.After(asOf) {
			return b.records[i].Positions.Clone(), nil
		}
	}
	return types.NewPortfolio(s.initialCash), nil
}

// LastDate returns the date of the identity's last committed record.
func (s *Store) LastDate(identity string) (time.Time, bool, error) {
	b, err := s.openBook(identity)
	if err != nil {
		return time.Time{}, false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) == 0 {
		return time.Time{}, false, nil
	}
	return b.records[len(b.records)-1].Date, true, nil
}

// Records returns a copy of the identity's full history in sequence order.
func (s *Store) Records(identity string) ([]types.LedgerRecord, error) {
	b, err := s.openBook(identity)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.LedgerRecord, len(b.records))
	copy(out, b.records)
	return out, nil
}

// AppendTrade validates, mutates, and durably appends in one step. On any
// failure no record is appended and the prior snapshot is unchanged. The
// sequence id is assigned under the book lock, so it stays strictly
// increasing even if two processes race on the same identity.
func (s *Store) AppendTrade(ctx context.Context, identity string, date time.Time, action types.TradeAction, refPrice decimal.Decimal) (types.LedgerRecord, error) {
	ctx, span := trace.StartSpan(ctx, "ledger.AppendTrade")
	defer span.End()

	if action.Side != types.SideBuy && action.Side != types.SideSell {
		return types.LedgerRecord{}, fmt.Errorf("unknown trade side %q", action.Side)
	}
	if !s.universe[action.Symbol] {
		return types.LedgerRecord{}, fmt.Errorf("%w: %s", ErrInvalidSymbol, action.Symbol)
	}
	if action.Amount <= 0 {
		return types.LedgerRecord{}, fmt.Errorf("%w: got %d", ErrInvalidAmount, action.Amount)
	}
	if !refPrice.IsPositive() {
		return types.LedgerRecord{}, fmt.Errorf("%w: got %s", ErrInvalidPrice, refPrice)
	}

	b, err := s.openBook(identity)
	if err != nil {
		return types.LedgerRecord{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var snap types.PortfolioState
	if len(b.records) > 0 {
		snap = b.records[len(b.records)-1].Positions.Clone()
	} else {
		snap = types.NewPortfolio(s.initialCash)
	}

	cost := refPrice.Mul(decimal.NewFromInt(action.Amount))
	switch action.Side {
	case types.SideBuy:
		if snap.Cash.LessThan(cost) {
			return types.LedgerRecord{}, fmt.Errorf("%w: need %s, have %s",
				ErrInsufficientCash, cost, snap.Cash)
		}
		snap.Cash = snap.Cash.Sub(cost)
		snap.Holdings[action.Symbol] += action.Amount
	case types.SideSell:
		if snap.Holdings[action.Symbol] < action.Amount {
			return types.LedgerRecord{}, fmt.Errorf("%w: %s holds %d, tried to sell %d",
				ErrInsufficientShares, action.Symbol, snap.Holdings[action.Symbol], action.Amount)
		}
		snap.Cash = snap.Cash.Add(cost)
		snap.Holdings[action.Symbol] -= action.Amount
	}

	act := action
	rec := types.LedgerRecord{
		Identity:  identity,
		Date:      date,
		ID:        b.lastSeq + 1,
		Action:    &act,
		Positions: snap,
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return types.LedgerRecord{}, fmt.Errorf("encode ledger record: %w", err)
	}
	line = append(line, '\n')

	// The record is committed only once the write is synced; a crash before
	// that means the trade did not happen and may be safely re-attempted.
	if _, err := b.file.Write(line); err != nil {
		return types.LedgerRecord{}, fmt.Errorf("append ledger record for %s: %w", identity, err)
	}
	if err := b.file.Sync(); err != nil {
		return types.LedgerRecord{}, fmt.Errorf("sync ledger book for %s: %w", identity, err)
	}

	b.records = append(b.records, rec)
	b.lastSeq = rec.ID

	logger.Trade(ctx, identity, string(action.Side), action.Symbol, action.Amount, refPrice.String(), rec.ID,
		"date", types.FormatDate(date))
	return rec, nil
}
