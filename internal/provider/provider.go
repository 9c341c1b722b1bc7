package provider

import (
	"context"
	"time"

	"signaldeck/pkg/model"
)

// Candle intervals understood by every provider
const (
	IntervalIntraday = "FIFTEEN_MINUTE"
	IntervalDaily    = "ONE_DAY"
)

// Provider defines the market data contract used by the scanner.
// Failures never surface as errors: a price of 0 or an empty series means
// the instrument has no usable data for this cycle.
type Provider interface {
	// Name returns the provider name
	Name() string

	// GetLastPrice returns the last traded price, falling back to the latest
	// daily close. 0 when both are unavailable.
	GetLastPrice(ctx context.Context, inst model.Instrument) float64

	// GetHistory returns candles oldest first, or an empty slice
	GetHistory(ctx context.Context, inst model.Instrument, interval string, from, to time.Time) []model.Candle
}

// ProviderError represents a provider-specific error
type ProviderError struct {
	Provider  string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	return e.Provider + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Window returns the default history range ending at now for an interval:
// about 300 calendar days of daily bars, 20 days of intraday bars.
func Window(interval string, now time.Time) (from, to time.Time) {
	switch interval {
	case IntervalIntraday:
		return now.AddDate(0, 0, -20), now
	default:
		return now.AddDate(0, 0, -300), now
	}
}

// IntervalFor maps a signal timeframe onto its candle interval
func IntervalFor(tf model.Timeframe) string {
	if tf == model.TimeframeIntraday {
		return IntervalIntraday
	}
	return IntervalDaily
}
