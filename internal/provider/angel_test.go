package provider

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signaldeck/internal/broker/angel"
	"signaldeck/pkg/model"
)

type fakeAPI struct {
	ltp      float64
	ltpErr   error
	rows     []angel.CandleRow
	rowsErr  error
	calls    []string
	lastFrom time.Time
}

func (f *fakeAPI) LTP(ctx context.Context, exchange, symbol, token string) (float64, error) {
	f.calls = append(f.calls, "ltp")
	return f.ltp, f.ltpErr
}

func (f *fakeAPI) Candles(ctx context.Context, exchange, token, interval string, from, to time.Time) ([]angel.CandleRow, error) {
	f.calls = append(f.calls, "history:"+interval)
	f.lastFrom = from
	return f.rows, f.rowsErr
}

func rows(t *testing.T, raw string) []angel.CandleRow {
	t.Helper()
	var out []angel.CandleRow
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

var reliance = model.Instrument{Symbol: "RELIANCE-EQ", Exchange: "NSE", Token: "2885"}

func TestNormalizeRows(t *testing.T) {
	candles := NormalizeRows(rows(t, `[
		["2024-01-03T09:15:00+05:30", 105, 112, 101, 110],
		["2024-01-02T09:15:00+05:30", "100", "110", "95", "105", 12000],
		["garbage", 1, 2, 3, 4],
		["2024-01-04T09:15:00+05:30", 110, 111]
	]`))

	require.Len(t, candles, 2)
	assert.Less(t, candles[0].Timestamp, candles[1].Timestamp, "sorted oldest first")
	assert.Equal(t, 105.0, candles[0].Close)
	assert.Equal(t, int64(12000), candles[0].Volume)
	assert.Zero(t, candles[1].Volume, "missing volume left for the indicator default")

	want := time.Date(2024, 1, 2, 3, 45, 0, 0, time.UTC).Unix()
	assert.Equal(t, want, candles[0].Timestamp)
}

func TestNormalizeRowsEpoch(t *testing.T) {
	candles := NormalizeRows(rows(t, `[[1704167100000, 1, 2, 0.5, 1.5, 10]]`))
	require.Len(t, candles, 1)
	assert.Equal(t, int64(1704167100), candles[0].Timestamp)
}

func TestGetLastPrice(t *testing.T) {
	ctx := context.Background()

	api := &fakeAPI{ltp: 2890.5}
	p := NewAngelProvider(api, time.Second, nil, zerolog.Nop())
	assert.Equal(t, 2890.5, p.GetLastPrice(ctx, reliance))
	assert.Equal(t, []string{"ltp"}, api.calls)

	// zero LTP falls back to the latest daily close
	api = &fakeAPI{rows: rows(t, `[["2024-01-02T09:15:00+05:30",1,2,1,1.8],["2024-01-03T09:15:00+05:30",1,2,1,1.9]]`)}
	p = NewAngelProvider(api, time.Second, nil, zerolog.Nop())
	assert.Equal(t, 1.9, p.GetLastPrice(ctx, reliance))
	assert.Equal(t, []string{"ltp", "history:" + IntervalDaily}, api.calls)

	// both fail
	api = &fakeAPI{ltpErr: errors.New("boom"), rowsErr: errors.New("boom")}
	p = NewAngelProvider(api, time.Second, nil, zerolog.Nop())
	assert.Zero(t, p.GetLastPrice(ctx, reliance))
}

func TestGetHistoryNeverErrors(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	failing := NewAngelProvider(&fakeAPI{rowsErr: &angel.APIError{Action: "history", Message: "down", Retryable: true}}, time.Second, nil, zerolog.Nop())
	assert.Empty(t, failing.GetHistory(ctx, reliance, IntervalDaily, now.AddDate(0, 0, -300), now))

	empty := NewAngelProvider(&fakeAPI{}, time.Second, nil, zerolog.Nop())
	assert.Empty(t, empty.GetHistory(ctx, reliance, IntervalIntraday, now.AddDate(0, 0, -20), now))
}

func TestHistoryWrapsProviderError(t *testing.T) {
	p := NewAngelProvider(&fakeAPI{rowsErr: &angel.APIError{Action: "history", Status: 503, Message: "down", Retryable: true}}, time.Second, nil, zerolog.Nop())

	_, err := p.history(context.Background(), reliance, IntervalDaily, time.Now(), time.Now())
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.True(t, pe.Retryable)
	assert.Equal(t, "angel", pe.Provider)

	var apiErr *angel.APIError
	assert.True(t, errors.As(err, &apiErr))
}

func TestUnresolvedInstrumentSkipsBroker(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{ltp: 100}
	p := NewAngelProvider(api, time.Second, nil, zerolog.Nop())
	bare := model.Instrument{Symbol: "NEWCO-EQ", Exchange: "NSE"}

	assert.Zero(t, p.GetLastPrice(ctx, bare))
	assert.Empty(t, p.GetHistory(ctx, bare, IntervalDaily, time.Now().AddDate(0, 0, -5), time.Now()))
	assert.Empty(t, api.calls)

	_, err := p.history(ctx, bare, IntervalDaily, time.Now(), time.Now())
	assert.ErrorIs(t, err, ErrUnresolved)
}

func TestWindow(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	from, to := Window(IntervalDaily, now)
	assert.Equal(t, now, to)
	assert.Equal(t, 300*24*time.Hour, to.Sub(from))

	from, _ = Window(IntervalIntraday, now)
	assert.Equal(t, 20*24*time.Hour, now.Sub(from))

	assert.Equal(t, IntervalIntraday, IntervalFor(model.TimeframeIntraday))
	assert.Equal(t, IntervalDaily, IntervalFor(model.TimeframeSwing))
}
