// Package classifier turns indicator snapshots into trade signals using an
// LLM with a fixed response schema.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"signaldeck/internal/metrics"
	"signaldeck/pkg/model"
)

// ErrInvalidResult means the classifier answered with a payload that failed validation
var ErrInvalidResult = errors.New("invalid classifier result")

// Classification outcomes
const (
	OutcomeSignal     = "signal"
	OutcomeNoTrade    = "no_trade"
	OutcomeBelowFloor = "below_floor"
	OutcomeError      = "error"
)

// Generator produces a JSON document for a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string, schema Schema) (string, []model.Source, error)
}

// Options configures a Gateway. Call deadlines belong to the Generator.
type Options struct {
	Floor     int  // minimum confidence score surfaced
	Grounding bool // prompts ask for web search
}

// Gateway classifies snapshots. It never retries.
type Gateway struct {
	gen     Generator
	opts    Options
	metrics *metrics.Metrics
	log     zerolog.Logger
	now     func() time.Time
}

// NewGateway creates a classifier gateway
func NewGateway(gen Generator, opts Options, m *metrics.Metrics, log zerolog.Logger) *Gateway {
	return &Gateway{
		gen:     gen,
		opts:    opts,
		metrics: m,
		log:     log.With().Str("component", "classifier").Logger(),
		now:     time.Now,
	}
}

// Floor returns the configured confidence floor
func (g *Gateway) Floor() int {
	return g.opts.Floor
}

// rawResult is the trade card as returned by the model
type rawResult struct {
	Stock             string          `json:"stock"`
	Signal            string          `json:"signal"`
	Confidence        string          `json:"confidence"`
	ConfidenceScore   json.Number     `json:"confidenceScore"`
	RiskPercentage    json.Number     `json:"riskPercentage"`
	EntryRange        json.RawMessage `json:"entry_range"`
	Target            json.RawMessage `json:"target"`
	Target2           json.RawMessage `json:"target2"`
	StopLoss          json.RawMessage `json:"stop_loss"`
	Reasoning         string          `json:"reasoning"`
	PredictionSummary string          `json:"predictionSummary"`
	Timeline          string          `json:"timeline"`
}

// Classify returns a signal, or nil for a no-trade / below-floor answer.
// Transport, parse and validation failures are errors.
func (g *Gateway) Classify(ctx context.Context, snap *model.Snapshot, tf model.Timeframe, feedback []string) (*model.TradeSignal, error) {
	prompt := BuildPrompt(snap, tf, feedback, g.opts.Grounding)
	text, sources, err := g.gen.Generate(ctx, prompt, SignalSchema)
	if err != nil {
		g.metrics.Classified(OutcomeError)
		return nil, fmt.Errorf("classify %s %s: %w", snap.Symbol, tf, err)
	}

	sig, outcome, err := g.parse(text, snap, tf)
	g.metrics.Classified(outcome)
	if err != nil {
		return nil, fmt.Errorf("classify %s %s: %w", snap.Symbol, tf, err)
	}
	if sig == nil {
		g.log.Debug().Str("symbol", snap.Symbol).Str("timeframe", string(tf)).Str("outcome", outcome).Msg("no signal")
		return nil, nil
	}

	sig.Sources = sources
	return sig, nil
}

func (g *Gateway) parse(text string, snap *model.Snapshot, tf model.Timeframe) (*model.TradeSignal, string, error) {
	text = stripFence(text)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return nil, OutcomeError, fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}
	for _, f := range requiredFields {
		v, ok := fields[f]
		if !ok || string(v) == "null" {
			return nil, OutcomeError, fmt.Errorf("%w: missing %s", ErrInvalidResult, f)
		}
	}

	var raw rawResult
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, OutcomeError, fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}

	dir, ok := model.ParseDirection(raw.Signal)
	if !ok {
		return nil, OutcomeError, fmt.Errorf("%w: signal %q", ErrInvalidResult, raw.Signal)
	}

	score, err := parseScore(raw.ConfidenceScore)
	if err != nil {
		return nil, OutcomeError, err
	}

	if dir == model.DirectionNoTrade {
		return nil, OutcomeNoTrade, nil
	}
	if score < g.opts.Floor {
		return nil, OutcomeBelowFloor, nil
	}

	entry, err := parsePrice(raw.EntryRange)
	if err != nil {
		return nil, OutcomeError, fmt.Errorf("%w: entry_range: %v", ErrInvalidResult, err)
	}
	target, err := parsePrice(raw.Target)
	if err != nil {
		return nil, OutcomeError, fmt.Errorf("%w: target: %v", ErrInvalidResult, err)
	}
	stop, err := parsePrice(raw.StopLoss)
	if err != nil {
		return nil, OutcomeError, fmt.Errorf("%w: stop_loss: %v", ErrInvalidResult, err)
	}
	if err := checkLevels(dir, entry, stop, target); err != nil {
		return nil, OutcomeError, err
	}

	sig := &model.TradeSignal{
		ID:                uuid.NewString(),
		Symbol:            snap.Symbol,
		Timeframe:         tf,
		Direction:         dir,
		EntryPrice:        entry.InexactFloat64(),
		StopLoss:          stop.InexactFloat64(),
		Target:            target.InexactFloat64(),
		RiskRewardRatio:   riskReward(entry, stop, target),
		ConfidenceScore:   score,
		ConfidenceLevel:   model.LevelFor(score),
		Reason:            strings.TrimSpace(raw.Reasoning),
		PredictionSummary: strings.TrimSpace(raw.PredictionSummary),
		Timeline:          raw.Timeline,
		Timestamp:         g.now().UTC(),
	}
	if len(raw.Target2) > 0 && string(raw.Target2) != "null" {
		if t2, err := parsePrice(raw.Target2); err == nil {
			sig.Target2 = t2.InexactFloat64()
		}
	}
	if risk, err := raw.RiskPercentage.Float64(); err == nil {
		sig.RiskPercentage = int(risk + 0.5)
	}
	if sig.Timeline == "" {
		sig.Timeline = defaultTimeline(tf)
	}
	return sig, OutcomeSignal, nil
}

func parseScore(n json.Number) (int, error) {
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: confidenceScore %q", ErrInvalidResult, n)
	}
	if f < 0 || f > 100 {
		return 0, fmt.Errorf("%w: confidenceScore %v out of range", ErrInvalidResult, f)
	}
	return int(f + 0.5), nil
}

var rangeSep = regexp.MustCompile(`\s*(?:-|–|to)\s*`)

// parsePrice accepts a JSON number or a string such as "₹2,450.50" or
// "2450-2470". A range yields its midpoint.
func parsePrice(raw json.RawMessage) (decimal.Decimal, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil && n != "" {
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Zero, err
		}
		return positive(d)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return decimal.Zero, fmt.Errorf("not a price: %s", raw)
	}

	s = strings.NewReplacer("₹", "", "Rs.", "", "Rs", "", "INR", "", ",", "").Replace(s)
	s = strings.TrimSpace(s)

	parts := rangeSep.Split(s, -1)
	var vals []decimal.Decimal
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		d, err := decimal.NewFromString(p)
		if err != nil {
			return decimal.Zero, fmt.Errorf("not a price: %q", s)
		}
		vals = append(vals, d)
	}

	switch len(vals) {
	case 1:
		return positive(vals[0])
	case 2:
		return positive(vals[0].Add(vals[1]).Div(decimal.NewFromInt(2)))
	default:
		return decimal.Zero, fmt.Errorf("not a price: %q", s)
	}
}

func positive(d decimal.Decimal) (decimal.Decimal, error) {
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("price %s must be positive", d)
	}
	return d, nil
}

// checkLevels rejects trade cards whose stop and target sit on the wrong side of entry
func checkLevels(dir model.Direction, entry, stop, target decimal.Decimal) error {
	switch dir {
	case model.DirectionBuy:
		if !(stop.LessThan(entry) && target.GreaterThan(entry)) {
			return fmt.Errorf("%w: BUY needs stop < entry < target (%s/%s/%s)", ErrInvalidResult, stop, entry, target)
		}
	case model.DirectionSell:
		if !(stop.GreaterThan(entry) && target.LessThan(entry)) {
			return fmt.Errorf("%w: SELL needs target < entry < stop (%s/%s/%s)", ErrInvalidResult, target, entry, stop)
		}
	}
	return nil
}

// riskReward is reward over risk, rounded to 2 places
func riskReward(entry, stop, target decimal.Decimal) float64 {
	risk := entry.Sub(stop).Abs()
	if risk.IsZero() {
		return 0
	}
	return target.Sub(entry).Abs().Div(risk).Round(2).InexactFloat64()
}

func defaultTimeline(tf model.Timeframe) string {
	if tf == model.TimeframeIntraday {
		return "Same session"
	}
	return "3-7 Days"
}

// stripFence removes a markdown code fence around a JSON answer
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
