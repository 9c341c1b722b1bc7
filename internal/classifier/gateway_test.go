package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signaldeck/internal/metrics"
	"signaldeck/pkg/model"
)

type stubGenerator struct {
	text    string
	sources []model.Source
	err     error
	prompt  string
	schema  Schema
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string, schema Schema) (string, []model.Source, error) {
	s.prompt = prompt
	s.schema = schema
	return s.text, s.sources, s.err
}

var snap = &model.Snapshot{
	Symbol: "SBIN-EQ",
	Token:  "3045",
	Price:  612.4,
	Indicators: model.Indicators{
		RSI: 58.2, EMA50: 600.1, EMA200: 580.7, VWAP: 609.9, Trend: model.TrendRising,
	},
	OHLC: model.OHLC{Open: 610, High: 614, Low: 608.5, Close: 612.4},
}

func card(overrides map[string]interface{}) string {
	c := map[string]interface{}{
		"stock":             "SBIN",
		"signal":            "BUY",
		"confidence":        "High",
		"confidenceScore":   84,
		"riskPercentage":    22,
		"entry_range":       "₹610 - 614",
		"target":            "630",
		"target2":           "642.5",
		"stop_loss":         "₹603",
		"reasoning":         "Holding VWAP with rising volume.",
		"predictionSummary": "Momentum continuation expected.",
	}
	for k, v := range overrides {
		if v == nil {
			delete(c, k)
			continue
		}
		c[k] = v
	}
	b, _ := json.Marshal(c)
	return string(b)
}

func newGateway(gen Generator, floor int) (*Gateway, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())
	g := NewGateway(gen, Options{Floor: floor}, m, zerolog.Nop())
	g.now = func() time.Time { return time.Date(2024, 3, 4, 5, 0, 0, 0, time.UTC) }
	return g, m
}

func TestClassifyValidCard(t *testing.T) {
	gen := &stubGenerator{
		text:    card(nil),
		sources: []model.Source{{Title: "Moneycontrol", URI: "https://example.com/sbin"}},
	}
	g, m := newGateway(gen, 65)

	sig, err := g.Classify(context.Background(), snap, model.TimeframeIntraday, []string{"too early last time"})
	require.NoError(t, err)
	require.NotNil(t, sig)

	assert.NotEmpty(t, sig.ID)
	assert.Equal(t, "SBIN-EQ", sig.Symbol)
	assert.Equal(t, model.TimeframeIntraday, sig.Timeframe)
	assert.Equal(t, model.DirectionBuy, sig.Direction)
	assert.Equal(t, 612.0, sig.EntryPrice)
	assert.Equal(t, 603.0, sig.StopLoss)
	assert.Equal(t, 630.0, sig.Target)
	assert.Equal(t, 642.5, sig.Target2)
	assert.Equal(t, 2.0, sig.RiskRewardRatio)
	assert.Equal(t, 84, sig.ConfidenceScore)
	assert.Equal(t, model.ConfidenceHigh, sig.ConfidenceLevel)
	assert.Equal(t, 22, sig.RiskPercentage)
	assert.Equal(t, "Same session", sig.Timeline)
	assert.Len(t, sig.Sources, 1)

	assert.Contains(t, gen.prompt, StrategyIntraday)
	assert.Contains(t, gen.prompt, "above VWAP")
	assert.Contains(t, gen.prompt, "too early last time")
	assert.Equal(t, SignalSchema, gen.schema)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Classifications.WithLabelValues(OutcomeSignal)))
}

func TestClassifyFilters(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		outcome string
	}{
		{"no trade", card(map[string]interface{}{"signal": "NO TRADE"}), OutcomeNoTrade},
		{"neutral", card(map[string]interface{}{"signal": "neutral", "confidenceScore": 90}), OutcomeNoTrade},
		{"below floor", card(map[string]interface{}{"confidenceScore": 64}), OutcomeBelowFloor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, m := newGateway(&stubGenerator{text: tt.text}, 65)
			sig, err := g.Classify(context.Background(), snap, model.TimeframeSwing, nil)
			assert.NoError(t, err)
			assert.Nil(t, sig)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.Classifications.WithLabelValues(tt.outcome)))
		})
	}
}

func TestClassifyFloorBoundary(t *testing.T) {
	g, _ := newGateway(&stubGenerator{text: card(map[string]interface{}{"confidenceScore": 65})}, 65)
	assert.Equal(t, 65, g.Floor())
	sig, err := g.Classify(context.Background(), snap, model.TimeframeSwing, nil)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, model.ConfidenceMedium, sig.ConfidenceLevel)
	assert.Equal(t, "3-7 Days", sig.Timeline)
}

func TestClassifyErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"not json", "I think SBIN looks good"},
		{"missing stop", card(map[string]interface{}{"stop_loss": nil})},
		{"null reasoning", card(map[string]interface{}{"reasoning": nil, "predictionSummary": nil})},
		{"unknown signal", card(map[string]interface{}{"signal": "MAYBE"})},
		{"score out of range", card(map[string]interface{}{"confidenceScore": 140})},
		{"bad price", card(map[string]interface{}{"target": "soon"})},
		{"inverted buy", card(map[string]interface{}{"stop_loss": "640"})},
		{"sell with buy levels", card(map[string]interface{}{"signal": "SELL"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, m := newGateway(&stubGenerator{text: tt.text}, 65)
			sig, err := g.Classify(context.Background(), snap, model.TimeframeIntraday, nil)
			assert.Nil(t, sig)
			assert.ErrorIs(t, err, ErrInvalidResult)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.Classifications.WithLabelValues(OutcomeError)))
		})
	}
}

func TestClassifyTransportError(t *testing.T) {
	boom := errors.New("connection reset")
	g, _ := newGateway(&stubGenerator{err: boom}, 65)

	sig, err := g.Classify(context.Background(), snap, model.TimeframeIntraday, nil)
	assert.Nil(t, sig)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrInvalidResult)
}

func TestClassifySellAndFence(t *testing.T) {
	text := "```json\n" + card(map[string]interface{}{
		"signal":      "SHORT",
		"entry_range": 612,
		"stop_loss":   "620",
		"target":      "Rs. 596",
		"target2":     nil,
	}) + "\n```"
	g, _ := newGateway(&stubGenerator{text: text}, 65)

	sig, err := g.Classify(context.Background(), snap, model.TimeframeIntraday, nil)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, model.DirectionSell, sig.Direction)
	assert.Equal(t, 2.0, sig.RiskRewardRatio)
	assert.Zero(t, sig.Target2)
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`2450`, "2450"},
		{`"2,450.50"`, "2450.5"},
		{`"₹2450 to ₹2470"`, "2460"},
		{`"2450–2460"`, "2455"},
		{`"INR 99.9"`, "99.9"},
	}
	for _, tt := range tests {
		d, err := parsePrice(json.RawMessage(tt.raw))
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, d.String(), tt.raw)
	}

	for _, bad := range []string{`"abc"`, `0`, `"1-2-3"`, `true`} {
		_, err := parsePrice(json.RawMessage(bad))
		assert.Error(t, err, bad)
	}
}

func TestSwingPrompt(t *testing.T) {
	p := BuildPrompt(snap, model.TimeframeSwing, nil, true)
	assert.Contains(t, p, StrategySwing)
	assert.Contains(t, p, "200 EMA support")
	assert.Contains(t, p, "block deals")
	assert.NotContains(t, p, "USER FEEDBACK")

	below := *snap
	below.Price = 500
	assert.Contains(t, BuildPrompt(&below, model.TimeframeSwing, nil, false), "200 EMA resistance")
}

func TestMarketMood(t *testing.T) {
	g, _ := newGateway(&stubGenerator{text: `{"sentiment":"bullish","summary":"FII buying lifts banks."}`}, 65)
	m := g.MarketMood(context.Background(), Breadth{Advancing: 30, Declining: 20, Change: 0.4})
	assert.Equal(t, SentimentBullish, m.Sentiment)
	assert.Equal(t, "FII buying lifts banks.", m.Summary)

	g, _ = newGateway(&stubGenerator{err: errors.New("quota")}, 65)
	assert.Equal(t, FallbackMood, g.MarketMood(context.Background(), Breadth{}))

	g, _ = newGateway(&stubGenerator{text: `{"sentiment":"Euphoric","summary":"Melt-up."}`}, 65)
	assert.Equal(t, SentimentChoppy, g.MarketMood(context.Background(), Breadth{}).Sentiment)
}
