// README: Entity store contract; all mutations are guarded compare-and-swap writes.
package storage

import (
	"context"
	"errors"
	"time"

	"rideservice/internal/modules/driver"
	"rideservice/internal/modules/pricing"
	"rideservice/internal/modules/ride"
	"rideservice/internal/modules/rider"
	"rideservice/internal/types"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Store owns all Rider, Driver, Ride, and PricingConfig records. Callers never
// hold references to mutable record internals; reads return snapshots, and
// every write is guarded by the record's current status and status version.
// A guarded write that finds the record in an unexpected state returns
// (false, nil) and changes nothing.
//
// Implementations: MemoryStore (single-process, simulator and tests) and
// PostgresStore (pgx, optional Redis GEO index for radius queries).
type Store interface {
	// Rides.
	CreateRide(ctx context.Context, r *ride.Ride) error
	GetRide(ctx context.Context, id types.ID) (*ride.Ride, error)
	ListRides(ctx context.Context) ([]*ride.Ride, error)
	// ListPendingRides returns rides awaiting a driver, oldest first.
	ListPendingRides(ctx context.Context) ([]*ride.Ride, error)

	// TryAssign atomically assigns the driver to the ride, guarded on the ride
	// still being pending and the driver still being idle.
	TryAssign(ctx context.Context, rideID, driverID types.ID, at time.Time) (bool, error)
	// MarkDriverArrived moves an assigned ride to driver_arrived.
	MarkDriverArrived(ctx context.Context, rideID types.ID, version int, at time.Time) (bool, error)
	// StartRide moves a driver_arrived ride to started and its driver to on_trip.
	StartRide(ctx context.Context, rideID types.ID, version int, at time.Time) (bool, error)
	// CompleteRide moves a started ride to completed, records the fare, frees
	// the driver at the drop-off coordinate, and records a completed outcome.
	CompleteRide(ctx context.Context, rideID types.ID, version int, at time.Time, distanceKm float64, fare pricing.Fare) (bool, error)
	// CancelRide moves a ride from the given pre-trip status to cancelled,
	// freeing the driver (if any) and recording a cancelled outcome.
	CancelRide(ctx context.Context, rideID types.ID, from ride.Status, version int, at time.Time, reason string) (bool, error)

	// Drivers.
	CreateDriver(ctx context.Context, d *driver.Driver) error
	GetDriver(ctx context.Context, id types.ID) (*driver.Driver, error)
	ListDrivers(ctx context.Context) ([]*driver.Driver, error)
	// ListIdleDriversWithin returns idle drivers whose coordinate lies within
	// radiusKm of center. Order is unspecified.
	ListIdleDriversWithin(ctx context.Context, center types.Point, radiusKm float64) ([]driver.Driver, error)
	// RecentOutcomes returns up to n of the driver's most recent ride
	// outcomes, newest first.
	RecentOutcomes(ctx context.Context, driverID types.ID, n int) ([]driver.OutcomeRecord, error)
	// LastCompletedWith reports when the driver last completed a ride with the
	// rider, if ever.
	LastCompletedWith(ctx context.Context, driverID, riderID types.ID) (time.Time, bool, error)

	// Riders.
	CreateRider(ctx context.Context, r *rider.Rider) error
	GetRider(ctx context.Context, id types.ID) (*rider.Rider, error)
	ListRiders(ctx context.Context) ([]*rider.Rider, error)

	// Pricing.
	PricingRates(ctx context.Context) (pricing.Rates, error)
	SeedPricingRates(ctx context.Context, rates pricing.Rates) error
}
