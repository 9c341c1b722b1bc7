package angel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ScripMasterURL is the public instrument dump published by Angel One
const ScripMasterURL = "https://margincalculator.angelbroking.com/OpenAPI_File/files/OpenAPIScripMaster.json"

// ErrNotReady means the scrip master has not been downloaded yet
var ErrNotReady = errors.New("scrip master not loaded")

// ScripMaster indexes the public scrip master file. The file is downloaded
// once in the background, outside any caller's deadline. Lookups never wait
// for it; a failed download is retried after retryAfter.
type ScripMaster struct {
	url         string
	httpClient  *http.Client
	loadTimeout time.Duration
	retryAfter  time.Duration
	log         zerolog.Logger

	mu       sync.Mutex
	loaded   bool
	loading  chan struct{} // closed when the running download ends
	lastErr  error
	failedAt time.Time
	tokens   map[string]string   // SYMBOL|EXCH -> token
	equity   map[string][]string // EXCH -> sorted -EQ symbols
	entries  int
}

// NewScripMaster creates a lazily loaded scrip master. An empty url uses ScripMasterURL.
func NewScripMaster(url string, log zerolog.Logger) *ScripMaster {
	if url == "" {
		url = ScripMasterURL
	}
	return &ScripMaster{
		url:         url,
		httpClient:  &http.Client{},
		loadTimeout: 90 * time.Second,
		retryAfter:  time.Minute,
		log:         log.With().Str("component", "scripmaster").Logger(),
	}
}

func scripKey(symbol, exchange string) string {
	return strings.ToUpper(symbol) + "|" + strings.ToUpper(exchange)
}

// Warm starts the download without waiting for it
func (m *ScripMaster) Warm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		m.startLocked()
	}
}

// Preload waits until the file is indexed, the download fails or ctx ends.
// Cancelling ctx does not abort the download.
func (m *ScripMaster) Preload(ctx context.Context) error {
	m.mu.Lock()
	if m.loaded {
		m.mu.Unlock()
		return nil
	}
	done, err := m.startLocked()
	m.mu.Unlock()
	if done == nil {
		return err
	}

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded {
		return nil
	}
	return m.lastErr
}

// startLocked returns the channel of the running download, starting one
// unless the last failure is too recent. m.mu must be held.
func (m *ScripMaster) startLocked() (<-chan struct{}, error) {
	if m.loading != nil {
		return m.loading, nil
	}
	if m.lastErr != nil && time.Since(m.failedAt) < m.retryAfter {
		return nil, fmt.Errorf("%w: %w", ErrNotReady, m.lastErr)
	}
	done := make(chan struct{})
	m.loading = done
	go m.load(done)
	return done, nil
}

func (m *ScripMaster) load(done chan struct{}) {
	defer close(done)

	ctx, cancel := context.WithTimeout(context.Background(), m.loadTimeout)
	defer cancel()

	start := time.Now()
	rows, err := m.download(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loading = nil

	if err != nil {
		m.lastErr = err
		m.failedAt = time.Now()
		m.log.Warn().Err(err).Dur("retry_after", m.retryAfter).Msg("scrip master download failed")
		return
	}

	m.tokens = make(map[string]string, len(rows))
	m.equity = make(map[string][]string)
	for _, r := range rows {
		if r.Token == "" || r.Symbol == "" {
			continue
		}
		m.tokens[scripKey(r.Symbol, r.ExchSeg)] = r.Token
		if strings.HasSuffix(r.Symbol, "-EQ") {
			exch := strings.ToUpper(r.ExchSeg)
			m.equity[exch] = append(m.equity[exch], r.Symbol)
		}
	}
	for _, syms := range m.equity {
		sort.Strings(syms)
	}
	m.entries = len(rows)
	m.loaded = true
	m.lastErr = nil

	m.log.Info().Int("entries", m.entries).Dur("took", time.Since(start)).Msg("scrip master loaded")
}

func (m *ScripMaster) download(ctx context.Context) ([]ScripEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download scrip master: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download scrip master: status %d", resp.StatusCode)
	}

	var rows []ScripEntry
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode scrip master: %w", err)
	}
	return rows, nil
}

// LookupToken returns the token for an exact (symbol, exchange) pair. Until
// the file is indexed it returns ErrNotReady at once so a fallback lookup can
// answer instead.
func (m *ScripMaster) LookupToken(ctx context.Context, symbol, exchange string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		if _, err := m.startLocked(); err != nil {
			return "", err
		}
		return "", ErrNotReady
	}
	if token, ok := m.tokens[scripKey(symbol, exchange)]; ok {
		return token, nil
	}
	return "", ErrNoMatch
}

// Sample returns n distinct equity symbols of an exchange picked with rng
func (m *ScripMaster) Sample(ctx context.Context, exchange string, n int, rng *rand.Rand) ([]string, error) {
	if err := m.Preload(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	pool := append([]string(nil), m.equity[strings.ToUpper(exchange)]...)
	m.mu.Unlock()

	if len(pool) == 0 {
		return nil, fmt.Errorf("no equity symbols for %s", exchange)
	}

	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if n < len(pool) {
		pool = pool[:n]
	}
	return pool, nil
}
