package symbols

import (
	"context"
	"math/rand"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Candidate sources
const (
	SourceCurated   = "curated"
	SourceDiscovery = "discovery"
)

// Discoverer samples tradable symbols from a remote instrument list
type Discoverer interface {
	Sample(ctx context.Context, exchange string, n int, rng *rand.Rand) ([]string, error)
}

// Loader picks the candidate batch for a scan cycle
type Loader struct {
	discoverer Discoverer
	universe   []string
	log        zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewLoader creates a loader over a curated universe. discoverer may be nil.
func NewLoader(universe []string, discoverer Discoverer, seed int64, log zerolog.Logger) *Loader {
	if len(universe) == 0 {
		universe = TargetSymbols
	}
	return &Loader{
		discoverer: discoverer,
		universe:   universe,
		rng:        rand.New(rand.NewSource(seed)),
		log:        log.With().Str("component", "loader").Logger(),
	}
}

// Candidates returns up to n distinct symbols. Discovery failures fall back
// to the curated list.
func (l *Loader) Candidates(ctx context.Context, source, exchange string, n int) []string {
	if n <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if strings.EqualFold(source, SourceDiscovery) && l.discoverer != nil {
		syms, err := l.discoverer.Sample(ctx, exchange, n, l.rng)
		if err == nil && len(syms) > 0 {
			return Normalize(syms)
		}
		l.log.Warn().Err(err).Msg("discovery failed, using curated list")
	}

	pool := append([]string(nil), l.universe...)
	l.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if n < len(pool) {
		pool = pool[:n]
	}
	return pool
}
