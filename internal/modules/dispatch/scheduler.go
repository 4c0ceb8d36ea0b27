// README: Periodic scheduler driving the allocation dispatcher over pending rides.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"rideservice/internal/modules/ride"
	"rideservice/internal/observability"
)

// PendingSource lists rides awaiting a driver, oldest first.
type PendingSource interface {
	ListPendingRides(ctx context.Context) ([]*ride.Ride, error)
}

// Scheduler invokes the dispatcher over all pending rides on a fixed period.
// Passes never overlap: a tick that fires while a pass is still running is
// skipped.
type Scheduler struct {
	pending    PendingSource
	dispatcher *Dispatcher
	interval   time.Duration
	log        *slog.Logger

	passMu sync.Mutex
}

func NewScheduler(pending PendingSource, dispatcher *Dispatcher, interval time.Duration, log *slog.Logger) *Scheduler {
	return &Scheduler{
		pending:    pending,
		dispatcher: dispatcher,
		interval:   interval,
		log:        log,
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunPass(ctx)
		}
	}
}

// RunPass executes one dispatch pass. Rides are processed in creation order;
// a failure on one ride never aborts the rest of the pass.
func (s *Scheduler) RunPass(ctx context.Context) {
	if !s.passMu.TryLock() {
		s.log.Warn("dispatch pass still running, skipping tick")
		return
	}
	defer s.passMu.Unlock()

	rides, err := s.pending.ListPendingRides(ctx)
	if err != nil {
		s.log.Error("list pending rides failed", "error", err)
		return
	}
	observability.PendingRides.Set(float64(len(rides)))
	if len(rides) == 0 {
		return
	}
	s.log.Info("dispatch pass started", "pending", len(rides))

	assigned := 0
	for _, r := range rides {
		if ctx.Err() != nil {
			return
		}
		res, err := s.dispatchOne(ctx, r)
		if err != nil {
			observability.DispatchErrors.Inc()
			s.log.Error("dispatch attempt failed", "ride_id", r.ID, "error", err)
			continue
		}
		if res.Outcome == OutcomeAssigned {
			assigned++
		}
	}
	s.log.Info("dispatch pass finished", "pending", len(rides), "assigned", assigned)
}

func (s *Scheduler) dispatchOne(ctx context.Context, r *ride.Ride) (res Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("dispatch attempt panicked", "ride_id", r.ID, "panic", rec)
			res = Result{}
		}
	}()
	return s.dispatcher.Allocate(ctx, r)
}
