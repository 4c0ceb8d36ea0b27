// README: Ride aggregate and lifecycle status definitions.
package ride

import (
	"time"

	"rideservice/internal/modules/pricing"
	"rideservice/internal/types"
)

type Status string

const (
	StatusNone          Status = "none"
	StatusCreated       Status = "create_ride"
	StatusAssigned      Status = "assigned"
	StatusDriverArrived Status = "driver_arrived"
	StatusStarted       Status = "started"
	StatusCompleted     Status = "completed"
	StatusCancelled     Status = "cancelled"
)

type Ride struct {
	ID            types.ID
	RiderID       types.ID
	DriverID      *types.ID
	Status        Status
	StatusVersion int
	Pickup        types.Point
	Dropoff       types.Point
	DistanceKm    float64
	Fare          *pricing.Fare
	CreatedAt     time.Time
	AssignedAt    *time.Time
	ArrivedAt     *time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	CancelledAt   *time.Time
	CancelReason  *string
}

// AllowedTransitions represents the ride state flow as code. Once a ride is
// started it can only complete; cancellation is an exit from the three
// pre-trip states.
var AllowedTransitions = map[Status][]Status{
	StatusCreated:       {StatusAssigned, StatusCancelled},
	StatusAssigned:      {StatusDriverArrived, StatusCancelled},
	StatusDriverArrived: {StatusStarted, StatusCancelled},
	StatusStarted:       {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a ride can make no further transitions.
func Terminal(s Status) bool {
	return len(AllowedTransitions[s]) == 0
}
