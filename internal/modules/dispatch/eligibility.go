// README: Eligibility rules deciding whether a driver may take a ride.
package dispatch

import (
	"context"
	"time"

	"rideservice/internal/modules/driver"
	"rideservice/internal/modules/ride"
	"rideservice/internal/types"
)

// SameRiderCooldown is how long a driver stays ineligible for a rider after
// completing a ride with them.
const SameRiderCooldown = 30 * time.Minute

// Reason explains why a driver was rejected; exposed for logging and the
// per-pass exclusion counts.
type Reason string

const (
	ReasonEligible     Reason = "eligible"
	ReasonDriverBusy   Reason = "driver_busy"
	ReasonRecentRider  Reason = "same_rider_cooldown"
	ReasonCancelStreak Reason = "cancel_streak"
)

// History exposes the bounded driver outcome records the rules read.
type History interface {
	RecentOutcomes(ctx context.Context, driverID types.ID, n int) ([]driver.OutcomeRecord, error)
	LastCompletedWith(ctx context.Context, driverID, riderID types.ID) (time.Time, bool, error)
}

type EligibilityFilter struct {
	history History
	now     func() time.Time
}

func NewEligibilityFilter(history History) *EligibilityFilter {
	return &EligibilityFilter{history: history, now: time.Now}
}

// Check applies the three rules in order; all must pass. The reason reports
// the first rule that failed.
func (f *EligibilityFilter) Check(ctx context.Context, r *ride.Ride, d driver.Driver) (bool, Reason, error) {
	if d.Status != driver.StatusIdle {
		return false, ReasonDriverBusy, nil
	}

	last, ok, err := f.history.LastCompletedWith(ctx, d.ID, r.RiderID)
	if err != nil {
		return false, "", err
	}
	if ok && f.now().Sub(last) < SameRiderCooldown {
		return false, ReasonRecentRider, nil
	}

	recent, err := f.history.RecentOutcomes(ctx, d.ID, 2)
	if err != nil {
		return false, "", err
	}
	if driver.LastTwoCancelled(recent) {
		return false, ReasonCancelStreak, nil
	}

	return true, ReasonEligible, nil
}
