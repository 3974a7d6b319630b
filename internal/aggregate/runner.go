package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"unifeed/internal/feed"
)

// Publisher persists a finished envelope.
type Publisher interface {
	Publish(ctx context.Context, env *feed.Envelope) error
}

// Notifier announces a finished run. Notification failures never fail
// the run.
type Notifier interface {
	Notify(ctx context.Context, env *feed.Envelope) error
}

// Runner owns the aggregate-then-publish loop. Each tick is independent:
// no state carries over between runs, so a transient failure in one run
// cannot poison the next.
type Runner struct {
	orchestrator *Orchestrator
	publisher    Publisher
	notifier     Notifier
	interval     time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewRunner(orchestrator *Orchestrator, publisher Publisher, notifier Notifier, interval time.Duration) *Runner {
	return &Runner{
		orchestrator: orchestrator,
		publisher:    publisher,
		notifier:     notifier,
		interval:     interval,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// RunOnce executes a single aggregation cycle.
func (r *Runner) RunOnce(ctx context.Context) error {
	env, err := r.orchestrator.Run(ctx)
	if err != nil {
		return fmt.Errorf("aggregation failed: %w", err)
	}

	if err := r.publisher.Publish(ctx, env); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}

	if r.notifier != nil {
		if err := r.notifier.Notify(ctx, env); err != nil {
			slog.Warn("Run notification failed", "error", err)
		}
	}

	return nil
}

// Start blocks, running a cycle immediately and then on every interval
// tick until the context is cancelled or Stop is called. Cycle failures
// are logged and the loop keeps going.
func (r *Runner) Start(ctx context.Context) error {
	defer close(r.doneCh)

	slog.Info("Starting aggregation loop", "interval", r.interval)

	if err := r.RunOnce(ctx); err != nil {
		slog.Error("Aggregation cycle failed", "error", err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				slog.Error("Aggregation cycle failed", "error", err)
			}
		case <-r.stopCh:
			slog.Info("Aggregation loop stopped")
			return nil
		case <-ctx.Done():
			slog.Info("Aggregation loop stopped", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// Stop signals the loop to exit and waits for the in-flight cycle.
func (r *Runner) Stop(ctx context.Context) error {
	close(r.stopCh)
	select {
	case <-r.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
