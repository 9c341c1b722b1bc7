// Package feedback keeps a bounded, append-only log of user remarks per
// instrument. The classifier reads it to adjust future setups.
package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"signaldeck/internal/store"
)

// DefaultMaxPerSymbol bounds each instrument's log
const DefaultMaxPerSymbol = 10

// Entry is one remark
type Entry struct {
	Text      string    `json:"text"`
	Timeframe string    `json:"timeframe,omitempty"`
	At        time.Time `json:"at"`
}

// Log is the per-instrument feedback log
type Log struct {
	store  store.Store
	max    int
	mu     sync.Mutex
	loaded bool
	bySym  map[string][]Entry
}

// New creates a log persisted under store.KeyFeedback
func New(s store.Store, maxPerSymbol int) *Log {
	if maxPerSymbol <= 0 {
		maxPerSymbol = DefaultMaxPerSymbol
	}
	return &Log{store: s, max: maxPerSymbol, bySym: make(map[string][]Entry)}
}

// Append records a remark, evicting the oldest beyond the bound
func (l *Log) Append(ctx context.Context, symbol, timeframe, text string) error {
	text = strings.TrimSpace(text)
	if symbol == "" || text == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensure(ctx); err != nil {
		return err
	}

	prev, had := l.bySym[symbol]
	entries := append(append([]Entry(nil), prev...), Entry{Text: text, Timeframe: timeframe, At: time.Now().UTC()})
	if len(entries) > l.max {
		entries = entries[len(entries)-l.max:]
	}
	l.bySym[symbol] = entries
	if err := l.persist(ctx); err != nil {
		if had {
			l.bySym[symbol] = prev
		} else {
			delete(l.bySym, symbol)
		}
		return err
	}
	return nil
}

// For returns the remarks for symbol, oldest first
func (l *Log) For(ctx context.Context, symbol string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensure(ctx); err != nil {
		return nil
	}

	entries := l.bySym[symbol]
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Text
	}
	return out
}

// Clear drops every remark
func (l *Log) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.bySym = make(map[string][]Entry)
	l.loaded = true
	return l.store.Delete(ctx, store.KeyFeedback)
}

func (l *Log) ensure(ctx context.Context) error {
	if l.loaded {
		return nil
	}

	data, err := l.store.Get(ctx, store.KeyFeedback)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return err
	default:
		if err := json.Unmarshal(data, &l.bySym); err != nil {
			return fmt.Errorf("decode feedback: %w", err)
		}
		if l.bySym == nil {
			l.bySym = make(map[string][]Entry)
		}
	}
	l.loaded = true
	return nil
}

func (l *Log) persist(ctx context.Context) error {
	data, err := json.Marshal(l.bySym)
	if err != nil {
		return err
	}
	return l.store.Set(ctx, store.KeyFeedback, data)
}
