package report

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/whalewatch/internal/domain"
	"github.com/alanyoungcy/whalewatch/internal/notify"
)

const (
	longMarker  = "🟢"
	shortMarker = "🔴"
)

func sideMarker(side domain.Side) string {
	if side == domain.SideLong {
		return longMarker
	}
	return shortMarker
}

// ChangeLabel renders a 24h change as "+2.50%", or "N/A" when unknown.
func ChangeLabel(change *float64) string {
	if change == nil {
		return "N/A"
	}
	return fmt.Sprintf("%+.2f%%", *change)
}

// ConsensusMessage builds the notification for one ranked consensus signal.
func ConsensusMessage(a domain.AnnotatedSignal) notify.Message {
	s := a.Signal
	var body strings.Builder
	fmt.Fprintf(&body, "%s *%s* on *%s*\n\n", sideMarker(s.Direction), s.Direction, s.Asset)
	fmt.Fprintf(&body, "*Trader Count:* `%d`\n", s.TraderCount)
	fmt.Fprintf(&body, "*Total Value:* `%s`\n", Dollars(s.TotalValue, 0))
	fmt.Fprintf(&body, "*Smart Money:* `%s (PNL)`\n", Dollars(s.PnLBacking, 0))
	fmt.Fprintf(&body, "*24h Change:* `%s`", ChangeLabel(a.Change))

	return notify.Message{
		Title: "⚡️ Consensus Signal ⚡️",
		Body:  body.String(),
	}
}

// NewTradeMessage builds the notification for one newly opened fill.
func NewTradeMessage(f domain.Fill) notify.Message {
	marker := shortMarker
	if strings.Contains(f.Direction, "Long") {
		marker = longMarker
	}

	var body strings.Builder
	fmt.Fprintf(&body, "*Asset:* `%s`\n", f.Asset)
	fmt.Fprintf(&body, "*Direction:* `%s`\n", f.Direction)
	fmt.Fprintf(&body, "*Price:* `%s`\n", Dollars(f.Price, 2))
	fmt.Fprintf(&body, "*Value:* `%s`\n", Dollars(f.Value(), 2))
	fmt.Fprintf(&body, "*Time:* `%s (UTC)`\n", f.Time().Format("15:04"))
	fmt.Fprintf(&body, "*Source:* `%s`", f.Trader)

	return notify.Message{
		Title: marker + " New Trade Signal " + marker,
		Body:  body.String(),
	}
}

// ConsensusMessages renders signals in rank order.
func ConsensusMessages(signals []domain.AnnotatedSignal) []notify.Message {
	out := make([]notify.Message, 0, len(signals))
	for _, s := range signals {
		out = append(out, ConsensusMessage(s))
	}
	return out
}

// NewTradeMessages renders fills in the order given.
func NewTradeMessages(fills []domain.Fill) []notify.Message {
	out := make([]notify.Message, 0, len(fills))
	for _, f := range fills {
		out = append(out, NewTradeMessage(f))
	}
	return out
}

// ErrorMessage renders err as a preformatted block, so markers inside the
// error text are shown literally by every sender.
func ErrorMessage(title string, err error) notify.Message {
	text := strings.ReplaceAll(err.Error(), "`", "'")
	return notify.Message{
		Title: title,
		Body:  "```\n" + text + "\n```",
	}
}
