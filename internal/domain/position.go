package domain

// Side is the direction of a net position or a consensus bucket.
type Side string

const (
	SideLong  Side = "Long"
	SideShort Side = "Short"
)

// Position is the derived net exposure of one trader in one asset. AvgPrice is
// the volume-weighted price of the dominant side only, not a cost basis.
type Position struct {
	Trader    string
	Asset     string
	Side      Side
	NetVolume float64 // signed: buy volume minus sell volume
	AvgPrice  float64
	Value     float64 // |NetVolume| * AvgPrice
}
