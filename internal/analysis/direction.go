package analysis

import (
	"strings"
	"time"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// openingPrefix marks a fill that opened (or added to) a position.
const openingPrefix = "Open "

// ClassifyDirection maps an exchange direction label to a side. Any label
// containing "Long" is long; everything else is short.
func ClassifyDirection(direction string) domain.Side {
	if strings.Contains(direction, "Long") {
		return domain.SideLong
	}
	return domain.SideShort
}

// IsOpeningFill reports whether the direction label describes a newly
// opened position.
func IsOpeningFill(direction string) bool {
	return strings.HasPrefix(direction, openingPrefix)
}

// SelectSince returns the fills at or after since, preserving order.
func SelectSince(fills []domain.Fill, since time.Time) []domain.Fill {
	cutoff := since.UnixMilli()
	out := make([]domain.Fill, 0, len(fills))
	for _, f := range fills {
		if f.Timestamp >= cutoff {
			out = append(out, f)
		}
	}
	return out
}

// SelectOpenings returns the opening fills at or after since, preserving
// order. This is the window the consensus detector expects.
func SelectOpenings(fills []domain.Fill, since time.Time) []domain.Fill {
	cutoff := since.UnixMilli()
	out := make([]domain.Fill, 0, len(fills))
	for _, f := range fills {
		if f.Timestamp >= cutoff && IsOpeningFill(f.Direction) {
			out = append(out, f)
		}
	}
	return out
}
