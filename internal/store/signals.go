package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"signaldeck/pkg/model"
)

// SignalRepository is the persisted rolling signal buffer. All mutations are
// serialized so a user flag update cannot interleave with a scan merge.
type SignalRepository struct {
	store Store
	mu    sync.Mutex
}

// NewSignalRepository wraps a Store
func NewSignalRepository(s Store) *SignalRepository {
	return &SignalRepository{store: s}
}

// Load returns the buffer, newest first. A missing key is an empty buffer.
func (r *SignalRepository) Load(ctx context.Context) ([]model.TradeSignal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(ctx)
}

// Save replaces the buffer
func (r *SignalRepository) Save(ctx context.Context, signals []model.TradeSignal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save(ctx, signals)
}

// Apply loads the buffer, transforms it and saves the result atomically
// with respect to other repository calls.
func (r *SignalRepository) Apply(ctx context.Context, fn func([]model.TradeSignal) []model.TradeSignal) ([]model.TradeSignal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	next := fn(current)
	if err := r.save(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// MarkTaken sets the taken flag on the signal with id
func (r *SignalRepository) MarkTaken(ctx context.Context, id string, taken bool) (*model.TradeSignal, error) {
	return r.update(ctx, id, func(s *model.TradeSignal) { s.Taken = taken })
}

// SetFeedback attaches user feedback to the signal with id
func (r *SignalRepository) SetFeedback(ctx context.Context, id, text string) (*model.TradeSignal, error) {
	return r.update(ctx, id, func(s *model.TradeSignal) { s.Feedback = text })
}

// Clear drops the buffer
func (r *SignalRepository) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Delete(ctx, KeySignals)
}

func (r *SignalRepository) update(ctx context.Context, id string, fn func(*model.TradeSignal)) (*model.TradeSignal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	signals, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range signals {
		if signals[i].ID != id {
			continue
		}
		fn(&signals[i])
		if err := r.save(ctx, signals); err != nil {
			return nil, err
		}
		updated := signals[i]
		return &updated, nil
	}
	return nil, fmt.Errorf("signal %s: %w", id, ErrNotFound)
}

func (r *SignalRepository) load(ctx context.Context) ([]model.TradeSignal, error) {
	data, err := r.store.Get(ctx, KeySignals)
	if errors.Is(err, ErrNotFound) {
		return []model.TradeSignal{}, nil
	}
	if err != nil {
		return nil, err
	}

	var signals []model.TradeSignal
	if err := json.Unmarshal(data, &signals); err != nil {
		return nil, fmt.Errorf("decode signals: %w", err)
	}
	return signals, nil
}

func (r *SignalRepository) save(ctx context.Context, signals []model.TradeSignal) error {
	if signals == nil {
		signals = []model.TradeSignal{}
	}
	data, err := json.Marshal(signals)
	if err != nil {
		return fmt.Errorf("encode signals: %w", err)
	}
	return r.store.Set(ctx, KeySignals, data)
}
