package analyzer

import (
	"math"

	"signaldeck/pkg/model"
)

const (
	// RSIPeriod is the Wilder RSI lookback, also the minimum series length
	RSIPeriod = 14
	// TrendLookback is the number of closes inspected for the trend label
	TrendLookback = 5
	// VWAPWindow caps how many trailing candles feed VWAP
	VWAPWindow = 50
	// NominalVolume substitutes for bars without volume
	NominalVolume = 1000
)

// NeutralIndicators is returned when the series is too short to analyze
var NeutralIndicators = model.Indicators{
	RSI:   50,
	Trend: model.TrendConsolidating,
}

// ComputeIndicators turns an oldest-first candle series into RSI(14), EMA50, EMA200,
// VWAP and a trend label. Series shorter than RSIPeriod yield NeutralIndicators.
func ComputeIndicators(candles []model.Candle) model.Indicators {
	if len(candles) < RSIPeriod {
		return NeutralIndicators
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	return model.Indicators{
		RSI:    round2(RSI(closes, RSIPeriod)),
		EMA50:  round2(EMA(closes, 50)),
		EMA200: round2(EMA(closes, 200)),
		VWAP:   round2(VWAP(candles, VWAPWindow)),
		Trend:  TrendOf(closes, TrendLookback),
	}
}

// NewSnapshot builds the scan snapshot for an instrument.
// ok is false when there are no candles at all.
func NewSnapshot(inst model.Instrument, candles []model.Candle) (*model.Snapshot, bool) {
	if len(candles) == 0 {
		return nil, false
	}
	last := candles[len(candles)-1]
	return &model.Snapshot{
		Symbol:     inst.Symbol,
		Token:      inst.Token,
		Price:      last.Close,
		Indicators: ComputeIndicators(candles),
		OHLC: model.OHLC{
			Open:  last.Open,
			High:  last.High,
			Low:   last.Low,
			Close: last.Close,
		},
	}, true
}

// RSI computes Wilder's relative strength index. The averages are seeded from the
// first period diffs (or all of them when fewer exist) and smoothed forward with
// weight 1/period.
func RSI(closes []float64, period int) float64 {
	if len(closes) < 2 || period < 1 {
		return 50
	}

	seed := period
	if diffs := len(closes) - 1; diffs < seed {
		seed = diffs
	}

	var avgGain, avgLoss float64
	for i := 1; i <= seed; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(seed)
	avgLoss /= float64(seed)

	for i := seed + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		var gain, loss float64
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss
	rsi := 100 - (100 / (1 + rs))
	return math.Max(0, math.Min(100, rsi))
}

// EMA computes an exponential moving average seeded with the first close.
// A series shorter than period degenerates to its last close.
func EMA(closes []float64, period int) float64 {
	if len(closes) == 0 {
		return 0
	}
	if len(closes) < period {
		return closes[len(closes)-1]
	}

	k := 2 / float64(period+1)
	ema := closes[0]
	for _, c := range closes[1:] {
		ema = c*k + ema*(1-k)
	}
	return ema
}

// VWAP computes the volume-weighted typical price over the trailing window
func VWAP(candles []model.Candle, window int) float64 {
	if len(candles) > window {
		candles = candles[len(candles)-window:]
	}

	var pv, vol float64
	for _, c := range candles {
		v := float64(c.Volume)
		if v <= 0 {
			v = NominalVolume
		}
		pv += (c.High + c.Low + c.Close) / 3 * v
		vol += v
	}

	if vol == 0 {
		return 0
	}
	return pv / vol
}

// TrendOf labels the last lookback closes. Flat steps continue either direction,
// so an entirely flat tail reads as rising.
func TrendOf(closes []float64, lookback int) model.Trend {
	if len(closes) > lookback {
		closes = closes[len(closes)-lookback:]
	}
	if len(closes) < 2 {
		return model.TrendConsolidating
	}

	up, down := true, true
	for i := 1; i < len(closes); i++ {
		if closes[i] < closes[i-1] {
			up = false
		}
		if closes[i] > closes[i-1] {
			down = false
		}
	}

	switch {
	case up:
		return model.TrendRising
	case down:
		return model.TrendFalling
	default:
		return model.TrendConsolidating
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
