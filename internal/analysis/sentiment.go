package analysis

import (
	"sort"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// moodThreshold is the sentiment percentage beyond which an asset is shown
// as bullish or bearish.
const moodThreshold = 25.0

type sentimentAccumulator struct {
	weightedLong  float64
	weightedShort float64
	longValue     float64
	shortValue    float64
	longTraders   int
	shortTraders  int
}

// Aggregate reduces positions into one sentiment record per asset, ordered by
// raw trader count descending; ties keep first-seen order.
//
// With weights == nil every position votes 1. With a non-nil map a trader's
// vote is its weight, and traders missing from the map still vote 1: breadth
// matters more here than vetting, unlike DetectConsensus.
func Aggregate(positions []domain.Position, weights domain.Weights) []domain.SentimentRecord {
	if len(positions) == 0 {
		return nil
	}

	acc := make(map[string]*sentimentAccumulator)
	var order []string

	for _, p := range positions {
		a, ok := acc[p.Asset]
		if !ok {
			a = &sentimentAccumulator{}
			acc[p.Asset] = a
			order = append(order, p.Asset)
		}

		w := voteWeight(weights, p.Trader)
		if p.Side == domain.SideLong {
			a.weightedLong += w
			a.longValue += p.Value
			a.longTraders++
		} else {
			a.weightedShort += w
			a.shortValue += p.Value
			a.shortTraders++
		}
	}

	records := make([]domain.SentimentRecord, 0, len(order))
	for _, asset := range order {
		a := acc[asset]
		records = append(records, domain.SentimentRecord{
			Asset:            asset,
			NetValue:         a.longValue - a.shortValue,
			SentimentPercent: sentimentPercent(a.weightedLong, a.weightedShort),
			LongTraderCount:  a.longTraders,
			ShortTraderCount: a.shortTraders,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].TraderCount() > records[j].TraderCount()
	})
	return records
}

func voteWeight(weights domain.Weights, trader string) float64 {
	if w, ok := weights[trader]; ok {
		return w
	}
	return 1.0
}

func sentimentPercent(long, short float64) float64 {
	total := long + short
	if total <= 0 {
		return 0
	}
	return (long - short) / total * 100
}

// Classify labels a sentiment record for display.
func Classify(r domain.SentimentRecord) domain.Mood {
	switch {
	case r.SentimentPercent > moodThreshold:
		return domain.MoodBullish
	case r.SentimentPercent < -moodThreshold:
		return domain.MoodBearish
	default:
		return domain.MoodNeutral
	}
}
