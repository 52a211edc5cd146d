package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// DefaultMessageGap is the minimum spacing between consecutive ranked
// messages, keeping bursts under chat API flood limits.
const DefaultMessageGap = 500 * time.Millisecond

// Dispatcher delivers ranked message lists through a Notifier one at a time,
// in order, with a minimum gap between sends.
type Dispatcher struct {
	notifier *Notifier
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher. A non-positive gap uses
// DefaultMessageGap.
func NewDispatcher(n *Notifier, gap time.Duration, logger *slog.Logger) *Dispatcher {
	if gap <= 0 {
		gap = DefaultMessageGap
	}
	return &Dispatcher{
		notifier: n,
		limiter:  rate.NewLimiter(rate.Every(gap), 1),
		logger:   logger.With(slog.String("component", "dispatcher")),
	}
}

// SendRanked delivers msgs strictly in slice order. A failed message is
// logged and skipped; cancellation stops delivery of the remainder. It returns
// the indices of the messages every sender accepted, ascending, and the joined
// errors.
func (d *Dispatcher) SendRanked(ctx context.Context, event string, msgs []Message) ([]int, error) {
	if len(msgs) == 0 || !d.notifier.Enabled(event) {
		return nil, nil
	}

	var (
		delivered []int
		errs      []error
	)
	for i, m := range msgs {
		if err := d.limiter.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("notify: ranked send stopped at %d of %d: %w", i, len(msgs), err))
			break
		}
		if err := d.notifier.Notify(ctx, event, m); err != nil {
			d.logger.WarnContext(ctx, "ranked message failed",
				slog.String("event", event),
				slog.Int("rank", i+1),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
			continue
		}
		delivered = append(delivered, i)
	}
	return delivered, errors.Join(errs...)
}
