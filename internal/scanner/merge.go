package scanner

import (
	"math"
	"sort"

	"signaldeck/pkg/model"
)

// Rank sorts signals by descending confidence, keeping input order among
// equal scores, and returns at most top of them.
func Rank(signals []model.TradeSignal, top int) []model.TradeSignal {
	ranked := append([]model.TradeSignal(nil), signals...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].ConfidenceScore > ranked[j].ConfidenceScore
	})
	if top >= 0 && len(ranked) > top {
		ranked = ranked[:top]
	}
	return ranked
}

// Merge folds fresh signals into the prior buffer. The result is newest
// first: fresh signals, then prior entries whose key was not refreshed.
// Taken and feedback flags carry over to a fresh signal with the same key.
// The buffer is cut to limit by dropping the oldest entries.
func Merge(fresh, prior []model.TradeSignal, limit int) []model.TradeSignal {
	priorByKey := make(map[string]model.TradeSignal, len(prior))
	for _, p := range prior {
		if _, seen := priorByKey[p.Key()]; !seen {
			priorByKey[p.Key()] = p
		}
	}

	merged := make([]model.TradeSignal, 0, len(fresh)+len(prior))
	freshKeys := make(map[string]bool, len(fresh))
	for _, f := range fresh {
		if freshKeys[f.Key()] {
			continue
		}
		freshKeys[f.Key()] = true
		if p, ok := priorByKey[f.Key()]; ok && p.HasUserFlags() {
			f.Taken = p.Taken
			f.Feedback = p.Feedback
		}
		merged = append(merged, f)
	}

	kept := make(map[string]bool, len(prior))
	for _, p := range prior {
		if freshKeys[p.Key()] || kept[p.Key()] {
			continue
		}
		kept[p.Key()] = true
		merged = append(merged, p)
	}

	if limit >= 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// Filter drops no-trade signals and those under floor
func Filter(signals []model.TradeSignal, floor int) []model.TradeSignal {
	out := signals[:0:0]
	for _, s := range signals {
		if s.Direction == model.DirectionNoTrade || s.Direction == "" {
			continue
		}
		if s.ConfidenceScore < floor {
			continue
		}
		out = append(out, s)
	}
	return out
}

// split divides instruments into the intraday head and swing tail
func split(insts []model.Instrument, intradayRatio float64) (intraday, swing []model.Instrument) {
	n := int(math.Round(float64(len(insts)) * intradayRatio))
	if n > len(insts) {
		n = len(insts)
	}
	if n < 0 {
		n = 0
	}
	return insts[:n], insts[n:]
}
