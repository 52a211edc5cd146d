package analysis

import (
	"math"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// FlatEpsilon is the absolute net volume at or below which a trader/asset
// pair is considered flat and produces no position.
const FlatEpsilon = 1e-9

type positionKey struct {
	trader string
	asset  string
}

type positionAccumulator struct {
	buyVolume       float64
	sellVolume      float64
	weightedBuySum  float64
	weightedSellSum float64
}

// Net reduces fills into one net position per (trader, asset). Pairs whose
// buys and sells offset to within FlatEpsilon are omitted. AvgPrice is the
// volume-weighted price of the dominant side only. Positions come out in the
// order their key was first seen.
func Net(fills []domain.Fill) []domain.Position {
	if len(fills) == 0 {
		return nil
	}

	acc := make(map[positionKey]*positionAccumulator)
	var order []positionKey

	for _, f := range fills {
		key := positionKey{trader: f.Trader, asset: f.Asset}
		a, ok := acc[key]
		if !ok {
			a = &positionAccumulator{}
			acc[key] = a
			order = append(order, key)
		}
		if f.IsBuy {
			a.buyVolume += f.Size
			a.weightedBuySum += f.Size * f.Price
		} else {
			a.sellVolume += f.Size
			a.weightedSellSum += f.Size * f.Price
		}
	}

	positions := make([]domain.Position, 0, len(order))
	for _, key := range order {
		a := acc[key]
		net := a.buyVolume - a.sellVolume
		if math.Abs(net) <= FlatEpsilon {
			continue
		}

		side := domain.SideLong
		avg := weightedAverage(a.weightedBuySum, a.buyVolume)
		if net < 0 {
			side = domain.SideShort
			avg = weightedAverage(a.weightedSellSum, a.sellVolume)
		}

		positions = append(positions, domain.Position{
			Trader:    key.trader,
			Asset:     key.asset,
			Side:      side,
			NetVolume: net,
			AvgPrice:  avg,
			Value:     math.Abs(net) * avg,
		})
	}
	return positions
}

func weightedAverage(sum, volume float64) float64 {
	if volume <= 0 {
		return 0
	}
	return sum / volume
}
