// Package notify delivers signal messages to chat channels (Telegram,
// Discord). Messages are filtered by event type so operators receive only the
// alerts they enabled.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/whalewatch/internal/metrics"
)

// Event types.
const (
	EventConsensus = "consensus"
	EventNewTrade  = "new_trade"
	EventError     = "error"
)

// Message is a notification ready for delivery. Body may use *bold* and
// `code` markers; senders adapt them to their own markup.
type Message struct {
	Title string
	Body  string
}

// Sender is the interface that each notification channel must implement.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	// Name returns a short identifier such as "telegram".
	Name() string
}

// Notifier fans a message out to every Sender, subject to the event filter.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. Only events listed in events are forwarded
// by Notify; an empty list allows every event.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether there is at least one sender and event passes the
// filter.
func (n *Notifier) Enabled(event string) bool {
	if len(n.senders) == 0 {
		return false
	}
	return len(n.events) == 0 || n.events[event]
}

// Notify delivers msg for event to all senders if the event is allowed.
func (n *Notifier) Notify(ctx context.Context, event string, msg Message) error {
	if !n.Enabled(event) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, msg)
}

// NotifyAll delivers msg to all senders regardless of the event filter.
func (n *Notifier) NotifyAll(ctx context.Context, msg Message) error {
	return n.dispatch(ctx, msg)
}

// dispatch sends to each sender in turn. One failing sender does not stop
// delivery to the others; all failures are returned joined.
func (n *Notifier) dispatch(ctx context.Context, msg Message) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, msg.Title, msg.Body); err != nil {
			metrics.NotificationsSent.WithLabelValues(s.Name(), "error").Inc()
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		metrics.NotificationsSent.WithLabelValues(s.Name(), "ok").Inc()
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", msg.Title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
