package symbols

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Lookup resolves a trading symbol to a broker token remotely
type Lookup interface {
	LookupToken(ctx context.Context, symbol, exchange string) (string, error)
}

// ErrNoLookup is returned by an empty ChainLookup
var ErrNoLookup = errors.New("no lookup configured")

// ChainLookup tries lookups in order until one answers
type ChainLookup struct {
	lookups []Lookup
}

// NewChainLookup creates a chain, skipping nil entries
func NewChainLookup(lookups ...Lookup) *ChainLookup {
	available := make([]Lookup, 0, len(lookups))
	for _, l := range lookups {
		if l != nil {
			available = append(available, l)
		}
	}
	return &ChainLookup{lookups: available}
}

// LookupToken returns the first token found
func (c *ChainLookup) LookupToken(ctx context.Context, symbol, exchange string) (string, error) {
	lastErr := ErrNoLookup
	for _, l := range c.lookups {
		token, err := l.LookupToken(ctx, symbol, exchange)
		if err == nil && token != "" {
			return token, nil
		}
		if err != nil {
			lastErr = err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

// Resolver maps tickers to broker tokens. Successful resolutions are cached
// for the lifetime of the process; misses are not cached.
type Resolver struct {
	lookup  Lookup
	timeout time.Duration
	cache   sync.Map // SYMBOL|EXCH -> token
	log     zerolog.Logger
}

// NewResolver creates a resolver seeded with the static Registry for NSE
func NewResolver(lookup Lookup, timeout time.Duration, log zerolog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	r := &Resolver{
		lookup:  lookup,
		timeout: timeout,
		log:     log.With().Str("component", "resolver").Logger(),
	}
	for sym, token := range Registry {
		r.cache.Store(cacheKey(sym, "NSE"), token)
	}
	return r
}

func cacheKey(symbol, exchange string) string {
	return strings.ToUpper(symbol) + "|" + strings.ToUpper(exchange)
}

// Resolve returns the token for symbol. Remote failures count as not found.
func (r *Resolver) Resolve(ctx context.Context, symbol, exchange string) (string, bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", false
	}

	if token, ok := r.cache.Load(cacheKey(symbol, exchange)); ok {
		return token.(string), true
	}

	for _, candidate := range []string{symbol, variant(symbol)} {
		if token, ok := r.cache.Load(cacheKey(candidate, exchange)); ok {
			r.cache.Store(cacheKey(symbol, exchange), token)
			return token.(string), true
		}
		token, err := r.remote(ctx, candidate, exchange)
		if err == nil {
			r.cache.Store(cacheKey(symbol, exchange), token)
			r.cache.Store(cacheKey(candidate, exchange), token)
			return token, true
		}
		r.log.Debug().Err(err).Str("symbol", candidate).Str("exchange", exchange).Msg("lookup miss")
		if ctx.Err() != nil {
			break
		}
	}
	return "", false
}

func (r *Resolver) remote(ctx context.Context, symbol, exchange string) (string, error) {
	if r.lookup == nil {
		return "", ErrNoLookup
	}
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.lookup.LookupToken(callCtx, symbol, exchange)
}

// Cached returns the cached token without any remote call
func (r *Resolver) Cached(symbol, exchange string) (string, bool) {
	token, ok := r.cache.Load(cacheKey(symbol, exchange))
	if !ok {
		return "", false
	}
	return token.(string), true
}

// variant toggles the -EQ suffix
func variant(symbol string) string {
	if strings.HasSuffix(symbol, "-EQ") {
		return strings.TrimSuffix(symbol, "-EQ")
	}
	return symbol + "-EQ"
}
