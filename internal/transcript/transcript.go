// Package transcript persists the full conversational record of each
// trading session as JSON lines, one file per identity and date. Every
// turn is appended before the session advances, so a crashed session
// leaves a complete prefix of its dialogue on disk.
package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"llm-day-trader/internal/interfaces"
	"llm-day-trader/internal/logger"
	"llm-day-trader/internal/types"
)

type Store struct {
	dir string

	mu    sync.Mutex
	files map[string]*os.File
}

var _ interfaces.TranscriptSink = (*Store)(nil)

func NewStore(dir string) *Store {
	return &Store{
		dir:   dir,
		files: make(map[string]*os.File),
	}
}

// Append writes one turn to the transcript for (identity, date). The line is
// flushed to the OS before returning so the on-disk record never lags the
// session by more than the turn being written.
func (s *Store) Append(ctx context.Context, identity string, date time.Time, turn types.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open(identity, date)
	if err != nil {
		return err
	}

	line, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal transcript turn: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		logger.ErrorWithErr(ctx, "Transcript append failed", err, "identity", identity, "date", types.FormatDate(date))
		return fmt.Errorf("append transcript %s/%s: %w", identity, types.FormatDate(date), err)
	}
	return nil
}

// Read loads every turn recorded for (identity, date). A missing file is an
// empty transcript, not an error.
func (s *Store) Read(identity string, date time.Time) ([]types.Turn, error) {
	path := s.path(identity, date)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read transcript %s: %w", path, err)
	}

	var turns []types.Turn
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var t types.Turn
		if err := dec.Decode(&t); err != nil {
			return nil, fmt.Errorf("decode transcript %s: %w", path, err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var first error
	for key, f := range s.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
		delete(s.files, key)
	}
	return first
}

func (s *Store) open(identity string, date time.Time) (*os.File, error) {
	key := identity + "/" + types.FormatDate(date)
	if f, ok := s.files[key]; ok {
		return f, nil
	}

	path := s.path(identity, date)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open transcript %s: %w", path, err)
	}
	s.files[key] = f
	return f, nil
}

func (s *Store) path(identity string, date time.Time) string {
	return filepath.Join(s.dir, "transcripts", identity, types.FormatDate(date)+".jsonl")
}
