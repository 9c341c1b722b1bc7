package model

import (
	"strings"
	"time"
)

// Candle represents a single OHLCV bar. Timestamp is unix seconds.
type Candle struct {
	Timestamp int64   `json:"time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume,omitempty"` // 0 when the feed omits it
}

// Instrument identifies a tradable security on an exchange
type Instrument struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"` // NSE, BSE
	Token    string `json:"token,omitempty"`
}

// Resolved reports whether the broker token is known
func (i Instrument) Resolved() bool {
	return i.Token != ""
}

// Trend is the coarse direction of the last few closes
type Trend string

const (
	TrendRising        Trend = "rising"
	TrendFalling       Trend = "falling"
	TrendConsolidating Trend = "consolidating"
)

// Indicators holds the technical indicators derived from a candle series
type Indicators struct {
	RSI    float64 `json:"rsi"`
	EMA50  float64 `json:"ema50"`
	EMA200 float64 `json:"ema200"`
	VWAP   float64 `json:"vwap"`
	Trend  Trend   `json:"trend"`
}

// OHLC is the last bar of a series
type OHLC struct {
	Open  float64 `json:"o"`
	High  float64 `json:"h"`
	Low   float64 `json:"l"`
	Close float64 `json:"c"`
}

// Snapshot is the indicator-enriched state of one instrument at scan time
type Snapshot struct {
	Symbol string  `json:"symbol"`
	Token  string  `json:"token"`
	Price  float64 `json:"price"`
	Indicators
	OHLC OHLC `json:"ohlc"`
}

// Timeframe of a trade setup
type Timeframe string

const (
	TimeframeIntraday Timeframe = "INTRADAY"
	TimeframeSwing    Timeframe = "SWING"
)

// Direction of a trade setup
type Direction string

const (
	DirectionBuy     Direction = "BUY"
	DirectionSell    Direction = "SELL"
	DirectionNoTrade Direction = "NO TRADE"
)

// ParseDirection maps the loose spellings returned by classifiers onto a Direction.
// Unknown values are reported with ok=false.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "LONG":
		return DirectionBuy, true
	case "SELL", "SHORT":
		return DirectionSell, true
	case "NO TRADE", "NO_TRADE", "NOTRADE", "NEUTRAL", "HOLD", "NONE":
		return DirectionNoTrade, true
	}
	return "", false
}

// ConfidenceLevel is the bucketed confidence score
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "High"
	ConfidenceMedium ConfidenceLevel = "Medium"
	ConfidenceLow    ConfidenceLevel = "Low"
)

// LevelFor buckets a 0-100 confidence score
func LevelFor(score int) ConfidenceLevel {
	switch {
	case score >= 80:
		return ConfidenceHigh
	case score >= 60:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Source is a grounding reference returned by the classifier
type Source struct {
	Title   string `json:"title"`
	URI     string `json:"uri"`
	Snippet string `json:"snippet,omitempty"`
}

// TradeSignal is a confidence-scored trade recommendation for one instrument and timeframe
type TradeSignal struct {
	ID                string          `json:"id"`
	Symbol            string          `json:"stock"`
	Timeframe         Timeframe       `json:"timeframe"`
	Direction         Direction       `json:"signal"`
	EntryPrice        float64         `json:"entryPrice"`
	StopLoss          float64         `json:"stopLoss"`
	Target            float64         `json:"target"`
	Target2           float64         `json:"target2,omitempty"`
	RiskRewardRatio   float64         `json:"riskRewardRatio"`
	ConfidenceScore   int             `json:"confidenceScore"`
	ConfidenceLevel   ConfidenceLevel `json:"confidenceLevel"`
	RiskPercentage    int             `json:"riskPercentage,omitempty"`
	Reason            string          `json:"reason"`
	PredictionSummary string          `json:"predictionSummary,omitempty"`
	Timeline          string          `json:"timeline,omitempty"`
	Sources           []Source        `json:"sources,omitempty"`
	Timestamp         time.Time       `json:"timestamp"`

	// User interaction flags, carried across refreshes of the same Key
	Taken    bool   `json:"taken,omitempty"`
	Feedback string `json:"feedback,omitempty"`
}

// Key identifies a signal for UI purposes: one slot per (instrument, timeframe)
func (s TradeSignal) Key() string {
	return s.Symbol + "|" + string(s.Timeframe)
}

// HasUserFlags reports whether the user interacted with the signal
func (s TradeSignal) HasUserFlags() bool {
	return s.Taken || s.Feedback != ""
}

// ScanResult represents the outcome of one scan cycle
type ScanResult struct {
	Candidates int           `json:"candidates"`
	Resolved   int           `json:"resolved"`
	Analyzed   int           `json:"analyzed"`
	Fresh      []TradeSignal `json:"fresh"`
	Signals    []TradeSignal `json:"signals"` // merged rolling buffer
	ScanTime   time.Duration `json:"scan_time"`
}
