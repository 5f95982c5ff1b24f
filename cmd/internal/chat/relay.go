package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// relay runs the two pumps of an active session and guarantees joint
// teardown: both pumps always return a non-nil error, so the first one to
// finish cancels the group context and unblocks the sibling's pending read
// or write immediately. Nothing waits for a slow half to drain.
//
// The returned error is the first pump's cause; the losing pump's
// context.Canceled is swallowed by the group.
func relay(ctx context.Context, log *slog.Logger, stream Stream, sub *Subscription, bus *Bus, name string, m *Metrics) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return pumpInbound(ctx, stream, bus, name)
	})
	g.Go(func() error {
		return pumpOutbound(ctx, log, stream, sub, m)
	})

	return g.Wait()
}

// pumpInbound moves peer frames onto the bus until the peer goes away or the
// bus shuts down.
func pumpInbound(ctx context.Context, stream Stream, bus *Bus, name string) error {
	for {
		body, err := stream.ReadText(ctx)
		if err != nil {
			return fmt.Errorf("inbound: %w", err)
		}

		if err := bus.Publish(Text(name, body)); err != nil {
			return fmt.Errorf("inbound: %w", err)
		}
	}
}

// pumpOutbound serializes bus events to the peer. Lag is absorbed silently:
// the peer just misses the skipped events and delivery continues in order.
func pumpOutbound(ctx context.Context, log *slog.Logger, stream Stream, sub *Subscription, m *Metrics) error {
	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			var lag LagError
			if errors.As(err, &lag) {
				log.Debug("chat.sub.lagged", "skipped", lag.Skipped)
				m.lagObserved(lag.Skipped)
				continue
			}
			return fmt.Errorf("outbound: %w", err)
		}

		if err := stream.WriteText(ctx, ev.String()); err != nil {
			return fmt.Errorf("outbound: %w", err)
		}
	}
}
