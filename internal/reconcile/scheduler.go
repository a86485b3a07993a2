package reconcile

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler runs the reconciler once per day for the prior calendar date.
// Re-running a date is safe, so a missed or doubled run self-corrects.
type Scheduler struct {
	reconciler *Reconciler
	// Daily run time in "HH:MM", UTC.
	at     string
	logger *slog.Logger
}

func NewScheduler(r *Reconciler, at string) *Scheduler {
	return &Scheduler{
		reconciler: r,
		at:         at,
		logger:     slog.With("component", "reconcile"),
	}
}

// Run blocks until the context is cancelled, firing the reconciler at the
// configured time each day for yesterday's date.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Reconciliation scheduler started", "at", s.at)

	for {
		next := nextRunAt(time.Now().UTC(), s.at)
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("Reconciliation scheduler stopped")
			return
		case <-timer.C:
		}

		date := next.AddDate(0, 0, -1).Format("2006-01-02")
		summary, err := s.reconciler.Run(ctx, date)
		if err != nil {
			s.logger.Error("Scheduled reconciliation failed", "date", date, "error", err)
			continue
		}
		s.logger.Info("Scheduled reconciliation finished",
			"date", date,
			"absences", summary.Absences,
			"deductions", summary.Deductions,
			"unfunded", summary.Unfunded,
			"unresolved", len(summary.Unresolved),
		)
	}
}

// nextRunAt returns the next occurrence of the HH:MM wall time strictly
// after now. A malformed time falls back to 02:30.
func nextRunAt(now time.Time, hhmm string) time.Time {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		t, _ = time.Parse("15:04", "02:30")
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
