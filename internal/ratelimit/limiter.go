package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	baseBackoff = 100 * time.Millisecond
	maxBackoff  = 30 * time.Second
)

// Limiter paces calls to one remote endpoint and backs off after throttling
type Limiter struct {
	limiter *rate.Limiter
	name    string
	mu      sync.Mutex
	backoff time.Duration
}

// NewLimiter creates a limiter allowing perSecond calls with the given burst
func NewLimiter(name string, perSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		name:    name,
		backoff: baseBackoff,
	}
}

// PerMinute creates a limiter from a per-minute quota, bursting up to a tenth of it (max 5)
func PerMinute(name string, perMinute int) *Limiter {
	burst := perMinute / 10
	if burst > 5 {
		burst = 5
	}
	return NewLimiter(name, float64(perMinute)/60.0, burst)
}

// Wait blocks until a token is available. After a throttling signal it also
// sleeps the current backoff before returning.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}

	extra := l.GetBackoff() - baseBackoff
	if extra <= 0 {
		return nil
	}

	timer := time.NewTimer(extra)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Allow reports whether an event may happen now
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// SignalRateLimited doubles the backoff; call it on HTTP 429 / "access rate" errors
func (l *Limiter) SignalRateLimited() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.backoff *= 2
	if l.backoff > maxBackoff {
		l.backoff = maxBackoff
	}
}

// ResetBackoff resets the backoff duration after a successful request
func (l *Limiter) ResetBackoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.backoff = baseBackoff
}

// GetBackoff returns the current backoff duration
func (l *Limiter) GetBackoff() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.backoff
}

// Name returns the limiter name
func (l *Limiter) Name() string {
	return l.name
}

// MultiLimiter keeps one limiter per endpoint of an API
type MultiLimiter struct {
	limiters map[string]*Limiter
	mu       sync.RWMutex
}

// NewMultiLimiter creates a new multi-limiter
func NewMultiLimiter() *MultiLimiter {
	return &MultiLimiter{
		limiters: make(map[string]*Limiter),
	}
}

// Add registers a limiter for an endpoint
func (m *MultiLimiter) Add(name string, perSecond float64, burst int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[name] = NewLimiter(name, perSecond, burst)
}

// Get returns a limiter by name
func (m *MultiLimiter) Get(name string) *Limiter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.limiters[name]
}

// Wait waits on the named limiter; unknown names proceed immediately
func (m *MultiLimiter) Wait(ctx context.Context, name string) error {
	limiter := m.Get(name)
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// SignalRateLimited forwards a throttling signal to the named limiter
func (m *MultiLimiter) SignalRateLimited(name string) {
	if l := m.Get(name); l != nil {
		l.SignalRateLimited()
	}
}

// ResetBackoff forwards a success to the named limiter
func (m *MultiLimiter) ResetBackoff(name string) {
	if l := m.Get(name); l != nil {
		l.ResetBackoff()
	}
}
