package analysis

import "github.com/alanyoungcy/whalewatch/internal/domain"

// Annotate attaches the 24h price change of each signal's asset. Assets with
// no entry in mc get a nil Change rather than a zero.
func Annotate(signals []domain.ConsensusSignal, mc domain.MarketContext) []domain.AnnotatedSignal {
	out := make([]domain.AnnotatedSignal, 0, len(signals))
	for _, s := range signals {
		a := domain.AnnotatedSignal{Signal: s}
		if change, ok := mc[s.Asset]; ok {
			a.Change = &change
		}
		out = append(out, a)
	}
	return out
}
