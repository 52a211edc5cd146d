package domain

import "time"

// Fill is one executed trade as reported by the exchange. Fills are validated
// at the ingestion boundary and treated as immutable afterwards.
type Fill struct {
	Trader    string   // lower-case hex address
	Asset     string   // coin symbol, e.g. "BTC"
	Price     float64  // > 0
	Size      float64  // > 0, in asset units
	IsBuy     bool     // buy-side execution
	Direction string   // exchange label, e.g. "Open Long", "Close Short"
	PnL       *float64 // realized PnL, nil for non-closing fills
	Timestamp int64    // milliseconds since epoch
	Hash      string
	OrderID   int64
}

// Value returns the notional of the fill (size * price).
func (f Fill) Value() float64 {
	return f.Size * f.Price
}

// Time returns the fill timestamp as a UTC time.
func (f Fill) Time() time.Time {
	return time.UnixMilli(f.Timestamp).UTC()
}

// TrackedTrader is a curated trader whose fills are collected. PnL is the
// all-time realized profit reported by the leaderboard and doubles as the
// trader's weight.
type TrackedTrader struct {
	Address   string
	PnL       float64
	UpdatedAt time.Time
}

// Weights maps a trader address to a non-negative weight. A nil Weights means
// "no weighting" to the sentiment aggregator.
type Weights map[string]float64
