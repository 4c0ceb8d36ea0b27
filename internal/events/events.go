// README: Ride status event contract and publisher interface.
package events

import (
	"context"
	"time"
)

// RideStatusMessage is published on every ride status change.
// Routing key: "ride.status.<status>" on the ride topic exchange.
type RideStatusMessage struct {
	RideID    string    `json:"ride_id"`
	Status    string    `json:"status"`
	DriverID  string    `json:"driver_id,omitempty"`
	FareTotal *float64  `json:"fare_total,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers ride status events to interested consumers. Publishing
// is best effort: callers log failures but never fail the state transition.
type Publisher interface {
	PublishRideStatus(ctx context.Context, msg RideStatusMessage) error
	Close() error
}

// NoopPublisher discards all events; used by the simulator and tests.
type NoopPublisher struct{}

func (NoopPublisher) PublishRideStatus(context.Context, RideStatusMessage) error { return nil }
func (NoopPublisher) Close() error                                               { return nil }
