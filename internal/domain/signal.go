package domain

// ConsensusSignal is an asset/direction pair that several weighted traders
// opened positions in during a recent window.
type ConsensusSignal struct {
	Asset       string
	Direction   Side
	TraderCount int     // distinct contributing traders
	PnLBacking  float64 // sum of each distinct trader's weight
	TotalValue  float64 // sum of notional over every qualifying fill
}

// MarketContext maps an asset to its 24h percent price change.
type MarketContext map[string]float64

// AnnotatedSignal pairs a consensus signal with its 24h price change. Change
// is nil when no market context was available for the asset.
type AnnotatedSignal struct {
	Signal ConsensusSignal
	Change *float64
}

// HasChange reports whether market context was available.
func (a AnnotatedSignal) HasChange() bool {
	return a.Change != nil
}
