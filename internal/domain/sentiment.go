package domain

// SentimentRecord is the aggregated directional lean of one asset.
type SentimentRecord struct {
	Asset            string
	NetValue         float64 // long value minus short value
	SentimentPercent float64 // in [-100, 100]
	LongTraderCount  int
	ShortTraderCount int
}

// TraderCount returns the raw number of traders holding the asset, the key
// sentiment output is ranked by.
func (r SentimentRecord) TraderCount() int {
	return r.LongTraderCount + r.ShortTraderCount
}

// Mood is the display classification of a sentiment percentage.
type Mood string

const (
	MoodBullish Mood = "bullish"
	MoodBearish Mood = "bearish"
	MoodNeutral Mood = "neutral"
)
