package analysis

import "github.com/alanyoungcy/whalewatch/internal/domain"

// WeightsFromTraders builds the weight map from tracked traders, keeping only
// those with positive PnL. It returns nil when no trader qualifies so callers
// can tell "no weighting available" apart from an empty result.
func WeightsFromTraders(traders []domain.TrackedTrader) domain.Weights {
	var w domain.Weights
	for _, t := range traders {
		if t.PnL <= 0 {
			continue
		}
		if w == nil {
			w = make(domain.Weights, len(traders))
		}
		w[t.Address] = t.PnL
	}
	return w
}
