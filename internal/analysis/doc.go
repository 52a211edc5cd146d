// Package analysis turns fill snapshots into net positions, per-asset
// sentiment and ranked consensus signals. Every function here is pure: no
// I/O, no logging, no shared state. Accumulators live only for the duration
// of a call, so concurrent calls on disjoint inputs are safe and repeated
// calls on identical inputs return identical output.
package analysis
