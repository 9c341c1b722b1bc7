// Package scanner runs the market scan cycle: candidate selection,
// resolution, data fetch, indicator computation, classification, ranking
// and merge into the rolling signal buffer.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"signaldeck/internal/analyzer"
	"signaldeck/internal/classifier"
	"signaldeck/internal/metrics"
	"signaldeck/internal/provider"
	"signaldeck/internal/session"
	"signaldeck/pkg/model"
)

var (
	// ErrNotAuthenticated means the session is missing or expired; the scan did not start
	ErrNotAuthenticated = errors.New("scan requires an authenticated session")
	// ErrScanInProgress is returned when a scan is requested while one is running
	ErrScanInProgress = errors.New("scan already in progress")
	// ErrInsufficientCandidates means too few instruments resolved; the buffer is untouched
	ErrInsufficientCandidates = errors.New("insufficient resolved candidates")
)

// State of the scan cycle
type State string

const (
	StateIdle      State = "IDLE"
	StateResolving State = "RESOLVING"
	StateFetching  State = "FETCHING"
	StateAnalyzing State = "ANALYZING"
	StateMerging   State = "MERGING"
	StateDone      State = "DONE"
	StateError     State = "ERROR"
)

// ProgressFunc receives human-readable progress. It is called from a
// separate goroutine and may be slow without slowing the scan.
type ProgressFunc func(msg string)

// CandidateSource picks the symbols to scan
type CandidateSource interface {
	Candidates(ctx context.Context, source, exchange string, n int) []string
}

// Resolver maps symbols to broker tokens
type Resolver interface {
	Resolve(ctx context.Context, symbol, exchange string) (string, bool)
}

// Classifier turns a snapshot into a signal, or nil when there is no trade
type Classifier interface {
	Classify(ctx context.Context, snap *model.Snapshot, tf model.Timeframe, feedback []string) (*model.TradeSignal, error)
}

// FeedbackSource supplies per-symbol user feedback for the classifier
type FeedbackSource interface {
	For(ctx context.Context, symbol string) []string
}

// SignalStore holds the rolling buffer
type SignalStore interface {
	Apply(ctx context.Context, fn func([]model.TradeSignal) []model.TradeSignal) ([]model.TradeSignal, error)
}

// Deps are the collaborators of an Orchestrator
type Deps struct {
	Session    session.Session
	Candidates CandidateSource
	Resolver   Resolver
	Provider   provider.Provider
	Classifier Classifier
	Feedback   FeedbackSource // optional
	Signals    SignalStore
	Metrics    *metrics.Metrics // optional
	Log        zerolog.Logger
}

// Summary describes the last finished scan
type Summary struct {
	Outcome    string        `json:"outcome"` // done, error
	Error      string        `json:"error,omitempty"`
	Candidates int           `json:"candidates"`
	Resolved   int           `json:"resolved"`
	Analyzed   int           `json:"analyzed"`
	Fresh      int           `json:"fresh"`
	Duration   time.Duration `json:"duration"`
	FinishedAt time.Time     `json:"finishedAt"`
}

// Status is a point-in-time view of the orchestrator
type Status struct {
	State    State    `json:"state"`
	Scanning bool     `json:"scanning"`
	Progress string   `json:"progress,omitempty"`
	Last     *Summary `json:"last,omitempty"`
}

// Orchestrator runs scan cycles, one at a time
type Orchestrator struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger
	now  func() time.Time

	scanning atomic.Bool
	state    atomic.Value // State

	mu       sync.Mutex
	progress string
	last     *Summary
	breadth  classifier.Breadth
}

// New creates an orchestrator
func New(cfg Config, deps Deps) *Orchestrator {
	cfg.applyDefaults()
	o := &Orchestrator{
		cfg:  cfg,
		deps: deps,
		log:  deps.Log.With().Str("component", "scanner").Logger(),
		now:  time.Now,
	}
	o.state.Store(StateIdle)
	return o
}

// IsScanning reports whether a scan is in flight
func (o *Orchestrator) IsScanning() bool {
	return o.scanning.Load()
}

// State returns the current state
func (o *Orchestrator) State() State {
	return o.state.Load().(State)
}

// Status returns the current state, last progress message and last summary
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := Status{State: o.State(), Scanning: o.IsScanning(), Progress: o.progress}
	if o.last != nil {
		last := *o.last
		st.Last = &last
	}
	return st
}

// Breadth returns advancing/declining counts from the last scan's snapshots
func (o *Orchestrator) Breadth() classifier.Breadth {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.breadth
}

// RunScan runs one full cycle and blocks until it finishes
func (o *Orchestrator) RunScan(ctx context.Context, progress ProgressFunc) (*model.ScanResult, error) {
	if err := o.begin(); err != nil {
		return nil, err
	}
	defer o.scanning.Store(false)
	return o.run(ctx, progress)
}

// Start validates preconditions, then runs the cycle in the background
func (o *Orchestrator) Start(ctx context.Context, progress ProgressFunc) error {
	if err := o.begin(); err != nil {
		return err
	}
	go func() {
		defer o.scanning.Store(false)
		o.run(ctx, progress)
	}()
	return nil
}

// begin takes the re-entrancy guard and checks the session
func (o *Orchestrator) begin() error {
	if !o.scanning.CompareAndSwap(false, true) {
		return ErrScanInProgress
	}
	if err := o.deps.Session.Validate(o.now()); err != nil {
		o.scanning.Store(false)
		o.deps.Metrics.ScanFinished("unauthenticated", 0)
		o.log.Error().Err(err).Msg("scan refused")
		return fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	}
	return nil
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(s)
	o.log.Debug().Str("state", string(s)).Msg("state")
}

// workItem is one instrument on its way through the pipeline
type workItem struct {
	inst model.Instrument
	tf   model.Timeframe
	snap *model.Snapshot
}

func (o *Orchestrator) run(ctx context.Context, progress ProgressFunc) (*model.ScanResult, error) {
	start := o.now()
	emit, stop := o.progressPump(progress)
	defer stop()

	result := &model.ScanResult{}
	fail := func(err error) (*model.ScanResult, error) {
		o.setState(StateError)
		emit(fmt.Sprintf("Scan failed: %v", err))
		o.log.Error().Err(err).Msg("scan failed")
		o.deps.Metrics.ScanFinished("error", 0)
		o.finish(&Summary{
			Outcome:    "error",
			Error:      err.Error(),
			Candidates: result.Candidates,
			Resolved:   result.Resolved,
			Analyzed:   result.Analyzed,
			Duration:   o.now().Sub(start),
			FinishedAt: o.now(),
		})
		o.setState(StateIdle)
		return nil, err
	}

	// 1-2. candidates and resolution
	o.setState(StateResolving)
	emit("Selecting candidates...")
	symbols := o.deps.Candidates.Candidates(ctx, o.cfg.Source, o.cfg.Exchange, o.cfg.BatchSize)
	result.Candidates = len(symbols)

	emit(fmt.Sprintf("Resolving %d instruments...", len(symbols)))
	resolved := o.resolveAll(ctx, symbols)
	result.Resolved = len(resolved)
	emit(fmt.Sprintf("Resolved %d/%d instruments", len(resolved), len(symbols)))

	if ctx.Err() != nil {
		return fail(ctx.Err())
	}
	if len(resolved) < o.cfg.MinResolved {
		return fail(fmt.Errorf("%w: %d resolved, need %d", ErrInsufficientCandidates, len(resolved), o.cfg.MinResolved))
	}

	// 3. split by timeframe
	intraday, swing := split(resolved, o.cfg.IntradayRatio)
	items := make([]workItem, 0, len(resolved))
	for _, inst := range intraday {
		items = append(items, workItem{inst: inst, tf: model.TimeframeIntraday})
	}
	for _, inst := range swing {
		items = append(items, workItem{inst: inst, tf: model.TimeframeSwing})
	}

	// 4a. fetch and compute
	o.setState(StateFetching)
	emit(fmt.Sprintf("Fetching market data for %d instruments (%d intraday, %d swing)...", len(items), len(intraday), len(swing)))
	items = o.fetchAll(ctx, items)
	result.Analyzed = len(items)
	o.recordBreadth(items)

	// 4b. classify
	o.setState(StateAnalyzing)
	emit(fmt.Sprintf("Analyzing %d snapshots...", len(items)))
	signals := o.classifyAll(ctx, items, emit)

	if ctx.Err() != nil {
		return fail(ctx.Err())
	}

	// 5. rank per partition
	var intraSigs, swingSigs []model.TradeSignal
	for _, s := range Filter(signals, o.cfg.ConfidenceFloor) {
		if s.Timeframe == model.TimeframeIntraday {
			intraSigs = append(intraSigs, s)
		} else {
			swingSigs = append(swingSigs, s)
		}
	}
	fresh := append(Rank(intraSigs, o.cfg.TopIntraday), Rank(swingSigs, o.cfg.TopSwing)...)
	result.Fresh = fresh

	// 6-7. merge and truncate
	o.setState(StateMerging)
	emit(fmt.Sprintf("Merging %d fresh signals...", len(fresh)))
	buffer, err := o.deps.Signals.Apply(ctx, func(prior []model.TradeSignal) []model.TradeSignal {
		return Merge(fresh, prior, o.cfg.BufferCap)
	})
	if err != nil {
		return fail(fmt.Errorf("save signals: %w", err))
	}
	result.Signals = buffer
	result.ScanTime = o.now().Sub(start)

	o.setState(StateDone)
	emit("Market Scan Complete")
	o.deps.Metrics.ScanFinished("done", result.ScanTime.Seconds())
	o.log.Info().
		Int("candidates", result.Candidates).
		Int("resolved", result.Resolved).
		Int("analyzed", result.Analyzed).
		Int("fresh", len(fresh)).
		Int("buffer", len(buffer)).
		Dur("took", result.ScanTime).
		Msg("scan complete")

	o.finish(&Summary{
		Outcome:    "done",
		Candidates: result.Candidates,
		Resolved:   result.Resolved,
		Analyzed:   result.Analyzed,
		Fresh:      len(fresh),
		Duration:   result.ScanTime,
		FinishedAt: o.now(),
	})
	o.setState(StateIdle)
	return result, nil
}

func (o *Orchestrator) finish(s *Summary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.last = s
}

func (o *Orchestrator) resolveAll(ctx context.Context, symbols []string) []model.Instrument {
	tokens := make([]string, len(symbols))
	parallel(ctx, o.cfg.Workers, len(symbols), func(i int) {
		token, ok := o.deps.Resolver.Resolve(ctx, symbols[i], o.cfg.Exchange)
		if ok {
			tokens[i] = token
		}
	})

	resolved := make([]model.Instrument, 0, len(symbols))
	for i, sym := range symbols {
		if tokens[i] == "" {
			o.log.Debug().Str("symbol", sym).Msg("unresolved, dropped")
			o.deps.Metrics.Dropped(metrics.StageResolve, "not_found")
			continue
		}
		resolved = append(resolved, model.Instrument{Symbol: sym, Exchange: o.cfg.Exchange, Token: tokens[i]})
	}
	return resolved
}

func (o *Orchestrator) fetchAll(ctx context.Context, items []workItem) []workItem {
	now := o.now()
	parallel(ctx, o.cfg.Workers, len(items), func(i int) {
		interval := provider.IntervalFor(items[i].tf)
		from, to := provider.Window(interval, now)
		candles := o.deps.Provider.GetHistory(ctx, items[i].inst, interval, from, to)
		if snap, ok := analyzer.NewSnapshot(items[i].inst, candles); ok {
			items[i].snap = snap
		}
	})

	kept := items[:0]
	for _, it := range items {
		if it.snap != nil {
			kept = append(kept, it)
		}
	}
	return kept
}

func (o *Orchestrator) classifyAll(ctx context.Context, items []workItem, emit func(string)) []model.TradeSignal {
	results := make([]*model.TradeSignal, len(items))
	var done int64

	parallel(ctx, o.cfg.Workers, len(items), func(i int) {
		it := items[i]
		var feedback []string
		if o.deps.Feedback != nil {
			feedback = o.deps.Feedback.For(ctx, it.inst.Symbol)
		}

		sig, err := o.classifyWithRetry(ctx, it, feedback)
		switch {
		case err != nil:
			o.log.Warn().Err(err).Str("symbol", it.inst.Symbol).Str("timeframe", string(it.tf)).Msg("classification failed, dropped")
			o.deps.Metrics.Dropped(metrics.StageClassify, "error")
		case sig == nil:
			o.log.Info().Str("symbol", it.inst.Symbol).Str("timeframe", string(it.tf)).Msg("no actionable setup")
			o.deps.Metrics.Dropped(metrics.StageClassify, "filtered")
		default:
			results[i] = sig
		}

		n := atomic.AddInt64(&done, 1)
		emit(fmt.Sprintf("Analyzed %d/%d", n, len(items)))
	})

	signals := make([]model.TradeSignal, 0, len(items))
	for _, s := range results {
		if s != nil {
			signals = append(signals, *s)
		}
	}
	return signals
}

// classifyWithRetry retries retryable transport errors with exponential backoff
func (o *Orchestrator) classifyWithRetry(ctx context.Context, it workItem, feedback []string) (*model.TradeSignal, error) {
	backoff := o.cfg.RetryBackoff
	for attempt := 0; ; attempt++ {
		sig, err := o.deps.Classifier.Classify(ctx, it.snap, it.tf, feedback)
		if err == nil || attempt >= o.cfg.ClassifyRetries || !retryable(err) {
			return sig, err
		}

		o.log.Debug().Err(err).Str("symbol", it.inst.Symbol).Int("attempt", attempt+1).Dur("backoff", backoff).Msg("retrying classification")
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
}

func retryable(err error) bool {
	var pe *provider.ProviderError
	return errors.As(err, &pe) && pe.Retryable
}

func (o *Orchestrator) recordBreadth(items []workItem) {
	var b classifier.Breadth
	for _, it := range items {
		switch it.snap.Trend {
		case model.TrendRising:
			b.Advancing++
		case model.TrendFalling:
			b.Declining++
		}
	}
	o.mu.Lock()
	o.breadth = b
	o.mu.Unlock()
}

// progressPump delivers messages in order on its own goroutine. Sends never
// block; messages are dropped when the sink falls behind.
func (o *Orchestrator) progressPump(sink ProgressFunc) (emit func(string), stop func()) {
	ch := make(chan string, 64)
	go func() {
		for msg := range ch {
			if sink != nil {
				safeCall(sink, msg)
			}
		}
	}()

	var closed atomic.Bool
	emit = func(msg string) {
		o.mu.Lock()
		o.progress = msg
		o.mu.Unlock()
		if closed.Load() {
			return
		}
		select {
		case ch <- msg:
		default:
		}
	}
	stop = func() {
		closed.Store(true)
		close(ch)
	}
	return emit, stop
}

func safeCall(sink ProgressFunc, msg string) {
	defer func() { _ = recover() }()
	sink(msg)
}

// parallel runs fn(0..n-1) on up to workers goroutines
func parallel(ctx context.Context, workers, n int, fn func(i int)) {
	if n == 0 {
		return
	}
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	jobChan := make(chan int, n)
	for i := 0; i < n; i++ {
		jobChan <- i
	}
	close(jobChan)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobChan {
				select {
				case <-ctx.Done():
					return
				default:
					fn(i)
				}
			}
		}()
	}
	wg.Wait()
}
