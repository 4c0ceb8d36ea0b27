// README: Driver record, status, and bounded ride-outcome history.
package driver

import (
	"time"

	"rideservice/internal/types"
)

type Status string

const (
	StatusIdle     Status = "idle"
	StatusAssigned Status = "assigned"
	StatusOnTrip   Status = "on_trip"
)

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
)

// HistorySize bounds the per-driver outcome ring. The eligibility rules only
// ever look at the two most recent outcomes, but a little slack keeps the
// history useful for the summary endpoint.
const HistorySize = 8

type Driver struct {
	ID            types.ID
	Name          string
	Pos           types.Point
	Status        Status
	StatusVersion int
	ActiveRideID  *types.ID
}

// OutcomeRecord is one entry in a driver's recent-ride history.
type OutcomeRecord struct {
	RideID     types.ID
	RiderID    types.ID
	Outcome    Outcome
	OccurredAt time.Time
}

// LastTwoCancelled reports whether the driver's two most recent outcomes are
// both cancellations. History is expected newest first.
func LastTwoCancelled(history []OutcomeRecord) bool {
	if len(history) < 2 {
		return false
	}
	return history[0].Outcome == OutcomeCancelled && history[1].Outcome == OutcomeCancelled
}
