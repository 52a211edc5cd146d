package analysis

import (
	"sort"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

const (
	// DefaultMinTradeValue is the minimum fill notional that counts toward
	// consensus.
	DefaultMinTradeValue = 10000.0
	// ConsensusTopN caps the number of signals DetectConsensus returns.
	ConsensusTopN = 10
)

type consensusKey struct {
	asset     string
	direction domain.Side
}

type consensusBucket struct {
	traders    map[string]struct{}
	pnlBacking float64
	totalValue float64
}

// DetectConsensus groups recent opening fills of weighted traders into
// (asset, direction) buckets and returns the top ConsensusTopN buckets by PnL
// backing. recent is expected to be pre-filtered with SelectOpenings.
//
// Fills from traders absent from weights, or with notional below
// minTradeValue, are ignored. Each distinct trader adds its weight to a bucket
// once; every qualifying fill adds its notional. An empty weights map yields
// no signals.
func DetectConsensus(recent []domain.Fill, weights domain.Weights, minTradeValue float64) []domain.ConsensusSignal {
	if len(weights) == 0 || len(recent) == 0 {
		return nil
	}

	buckets := make(map[consensusKey]*consensusBucket)
	var order []consensusKey

	for _, f := range recent {
		w, tracked := weights[f.Trader]
		if !tracked {
			continue
		}
		value := f.Value()
		if value < minTradeValue {
			continue
		}

		key := consensusKey{asset: f.Asset, direction: ClassifyDirection(f.Direction)}
		b, ok := buckets[key]
		if !ok {
			b = &consensusBucket{traders: make(map[string]struct{})}
			buckets[key] = b
			order = append(order, key)
		}
		if _, seen := b.traders[f.Trader]; !seen {
			b.traders[f.Trader] = struct{}{}
			b.pnlBacking += w
		}
		b.totalValue += value
	}

	signals := make([]domain.ConsensusSignal, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		signals = append(signals, domain.ConsensusSignal{
			Asset:       key.asset,
			Direction:   key.direction,
			TraderCount: len(b.traders),
			PnLBacking:  b.pnlBacking,
			TotalValue:  b.totalValue,
		})
	}

	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].PnLBacking > signals[j].PnLBacking
	})
	if len(signals) > ConsensusTopN {
		signals = signals[:ConsensusTopN]
	}
	return signals
}
