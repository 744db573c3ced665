package turno

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clinagenda/turnos/internal/actor"
)

// AutoCancelReason is recorded on every sweep cancellation.
const AutoCancelReason = "No confirmado a tiempo"

// RunAutoCancellationSweep cancels PROGRAMADO turnos whose scheduled time
// falls strictly between now and now+graceWindow and that were never
// confirmed. Each turno is cancelled independently: a failure is logged and
// the batch continues, and re-running immediately is a no-op because
// already-cancelled turnos hit the idempotency guard. Returns the number of
// turnos cancelled.
func (s *Service) RunAutoCancellationSweep(ctx context.Context, now time.Time, graceWindow time.Duration) (int, error) {
	if graceWindow <= 0 {
		return 0, fmt.Errorf("grace window must be positive, got %s", graceWindow)
	}

	pending, err := s.repo.ListPendingInWindow(ctx, now, now.Add(graceWindow))
	if err != nil {
		return 0, fmt.Errorf("list pending turnos: %w", err)
	}

	cancelled := 0
	for _, t := range pending {
		_, err := s.Cancel(ctx, t.ID, AutoCancelReason, actor.SystemActor)
		switch {
		case err == nil:
			cancelled++
		case errors.Is(err, ErrAlreadyCancelled), errors.Is(err, ErrNotFound):
			// Raced with a user action or a concurrent sweep run.
			continue
		default:
			s.logger.Error("sweep cancel failed", "turno_id", t.ID, "error", err)
			continue
		}
	}

	s.metrics.ObserveSweepCancelled(cancelled)
	s.logger.Info("auto-cancellation sweep complete", "examined", len(pending), "cancelled", cancelled)
	return cancelled, nil
}
