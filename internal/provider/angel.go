package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"signaldeck/internal/broker/angel"
	"signaldeck/internal/market"
	"signaldeck/internal/metrics"
	"signaldeck/pkg/model"
)

// angelAPI is the subset of the broker client the provider needs
type angelAPI interface {
	LTP(ctx context.Context, exchange, symbol, token string) (float64, error)
	Candles(ctx context.Context, exchange, token, interval string, from, to time.Time) ([]angel.CandleRow, error)
}

// ErrUnresolved means the instrument carries no broker token
var ErrUnresolved = errors.New("instrument has no broker token")

// AngelProvider serves market data from Angel One SmartAPI
type AngelProvider struct {
	api         angelAPI
	callTimeout time.Duration
	metrics     *metrics.Metrics
	log         zerolog.Logger
	now         func() time.Time
}

// NewAngelProvider creates a provider on top of a SmartAPI client
func NewAngelProvider(api angelAPI, callTimeout time.Duration, m *metrics.Metrics, log zerolog.Logger) *AngelProvider {
	if callTimeout <= 0 {
		callTimeout = 15 * time.Second
	}
	return &AngelProvider{
		api:         api,
		callTimeout: callTimeout,
		metrics:     m,
		log:         log.With().Str("component", "fetcher").Logger(),
		now:         time.Now,
	}
}

// Name returns the provider name
func (p *AngelProvider) Name() string {
	return "angel"
}

// GetLastPrice returns the LTP or the latest daily close
func (p *AngelProvider) GetLastPrice(ctx context.Context, inst model.Instrument) float64 {
	if !inst.Resolved() {
		return 0
	}
	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	price, err := p.api.LTP(callCtx, inst.Exchange, inst.Symbol, inst.Token)
	cancel()

	if err == nil && price > 0 {
		return price
	}
	if err != nil {
		p.log.Debug().Err(err).Str("symbol", inst.Symbol).Msg("ltp unavailable, using last daily close")
	}

	now := p.now()
	candles, err := p.history(ctx, inst, IntervalDaily, now.AddDate(0, 0, -10), now)
	if err != nil || len(candles) == 0 {
		return 0
	}
	return candles[len(candles)-1].Close
}

// GetHistory returns normalized candles. Transport failures and empty
// responses both yield an empty slice but are logged differently.
func (p *AngelProvider) GetHistory(ctx context.Context, inst model.Instrument, interval string, from, to time.Time) []model.Candle {
	candles, err := p.history(ctx, inst, interval, from, to)
	if err != nil {
		p.log.Warn().Err(err).
			Str("symbol", inst.Symbol).
			Str("interval", interval).
			Msg("history fetch failed")
		p.metrics.Dropped(metrics.StageFetch, "transport")
		return nil
	}
	if len(candles) == 0 {
		status := market.StatusAt(p.now(), market.DefaultSchedule())
		p.log.Info().
			Str("symbol", inst.Symbol).
			Str("interval", interval).
			Str("market", status.Reason).
			Msg("no candles returned")
		p.metrics.Dropped(metrics.StageFetch, "empty")
		return nil
	}
	return candles
}

func (p *AngelProvider) history(ctx context.Context, inst model.Instrument, interval string, from, to time.Time) ([]model.Candle, error) {
	if !inst.Resolved() {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("%s: %w", inst.Symbol, ErrUnresolved)}
	}
	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	rows, err := p.api.Candles(callCtx, inst.Exchange, inst.Token, interval, from, to)
	if err != nil {
		retryable := false
		var apiErr *angel.APIError
		if errors.As(err, &apiErr) {
			retryable = apiErr.Retryable
		}
		return nil, &ProviderError{Provider: p.Name(), Err: err, Retryable: retryable}
	}

	return NormalizeRows(rows), nil
}

// NormalizeRows converts raw history rows into candles sorted oldest first.
// Malformed rows are skipped; a missing volume is left as 0.
func NormalizeRows(rows []angel.CandleRow) []model.Candle {
	candles := make([]model.Candle, 0, len(rows))
	for _, row := range rows {
		c, err := parseRow(row)
		if err != nil {
			continue
		}
		candles = append(candles, c)
	}

	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Timestamp < candles[j].Timestamp
	})
	return candles
}

func parseRow(row angel.CandleRow) (model.Candle, error) {
	if len(row) < 5 {
		return model.Candle{}, fmt.Errorf("row has %d fields", len(row))
	}

	ts, err := parseTimestamp(row[0])
	if err != nil {
		return model.Candle{}, err
	}

	var vals [4]float64
	for i := range vals {
		v, err := parseNumber(row[i+1])
		if err != nil {
			return model.Candle{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		vals[i] = v
	}

	c := model.Candle{
		Timestamp: ts,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
	}
	if len(row) > 5 {
		if v, err := parseNumber(row[5]); err == nil {
			c.Volume = int64(v)
		}
	}
	return c, nil
}

func parseTimestamp(raw json.RawMessage) (int64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return 0, fmt.Errorf("timestamp %q: %w", s, err)
		}
		return t.Unix(), nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("timestamp %s: %w", raw, err)
	}
	v, err := n.Int64()
	if err != nil {
		return 0, err
	}
	// millisecond epochs
	if v > 1e12 {
		v /= 1000
	}
	return v, nil
}

func parseNumber(raw json.RawMessage) (float64, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.Float64()
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
