package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"signaldeck/pkg/model"
)

func sig(id, symbol string, tf model.Timeframe, score int) model.TradeSignal {
	return model.TradeSignal{ID: id, Symbol: symbol, Timeframe: tf, Direction: model.DirectionBuy, ConfidenceScore: score}
}

func ids(signals []model.TradeSignal) []string {
	out := make([]string, len(signals))
	for i, s := range signals {
		out[i] = s.ID
	}
	return out
}

func TestRank(t *testing.T) {
	in := []model.TradeSignal{
		sig("a", "A", model.TimeframeIntraday, 70),
		sig("b", "B", model.TimeframeIntraday, 90),
		sig("c", "C", model.TimeframeIntraday, 70),
		sig("d", "D", model.TimeframeIntraday, 80),
	}

	assert.Equal(t, []string{"b", "d", "a"}, ids(Rank(in, 3)))
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids(Rank(in, 10)))
	assert.Empty(t, Rank(in, 0))
	// input untouched
	assert.Equal(t, "a", in[0].ID)
}

func TestMerge(t *testing.T) {
	prior := []model.TradeSignal{
		sig("p1", "TCS-EQ", model.TimeframeSwing, 70),
		sig("p2", "INFY-EQ", model.TimeframeIntraday, 75),
		sig("p3", "ITC-EQ", model.TimeframeIntraday, 66),
	}
	prior[1].Taken = true
	prior[1].Feedback = "stopped out"

	fresh := []model.TradeSignal{
		sig("f1", "INFY-EQ", model.TimeframeIntraday, 81),
		sig("f2", "INFY-EQ", model.TimeframeSwing, 72),
	}

	t.Run("fresh first and flags carried", func(t *testing.T) {
		out := Merge(fresh, prior, 10)
		assert.Equal(t, []string{"f1", "f2", "p1", "p3"}, ids(out))
		assert.True(t, out[0].Taken)
		assert.Equal(t, "stopped out", out[0].Feedback)
		assert.False(t, out[1].Taken, "swing slot is a different key")
	})

	t.Run("oldest evicted at cap", func(t *testing.T) {
		out := Merge(fresh, prior, 3)
		assert.Equal(t, []string{"f1", "f2", "p1"}, ids(out))
	})

	t.Run("empty fresh keeps prior", func(t *testing.T) {
		assert.Equal(t, []string{"p1", "p2", "p3"}, ids(Merge(nil, prior, 10)))
	})

	t.Run("one entry per key", func(t *testing.T) {
		dup := append(fresh, sig("f3", "INFY-EQ", model.TimeframeIntraday, 60))
		out := Merge(dup, nil, 10)
		assert.Equal(t, []string{"f1", "f2"}, ids(out))
	})
}

func TestFilter(t *testing.T) {
	in := []model.TradeSignal{
		sig("a", "A", model.TimeframeIntraday, 64),
		sig("b", "B", model.TimeframeIntraday, 65),
		{ID: "c", Symbol: "C", Direction: model.DirectionNoTrade, ConfidenceScore: 99},
		{ID: "d", Symbol: "D", ConfidenceScore: 99},
	}
	assert.Equal(t, []string{"b"}, ids(Filter(in, 65)))
}

func TestSplit(t *testing.T) {
	mk := func(n int) []model.Instrument {
		out := make([]model.Instrument, n)
		for i := range out {
			out[i] = model.Instrument{Symbol: string(rune('A' + i))}
		}
		return out
	}

	tests := []struct {
		n, intra, swing int
		ratio           float64
	}{
		{5, 3, 2, 0.6},
		{18, 11, 7, 0.6},
		{1, 1, 0, 0.6},
		{4, 0, 4, 0},
		{4, 4, 0, 1},
	}
	for _, tt := range tests {
		intra, swing := split(mk(tt.n), tt.ratio)
		assert.Len(t, intra, tt.intra, "n=%d", tt.n)
		assert.Len(t, swing, tt.swing, "n=%d", tt.n)
	}
}
