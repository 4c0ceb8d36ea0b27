// README: Ride service implements lifecycle transitions and summary statistics.
package ride

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"rideservice/internal/events"
	"rideservice/internal/modules/driver"
	"rideservice/internal/modules/location"
	"rideservice/internal/modules/pricing"
	"rideservice/internal/modules/rider"
	"rideservice/internal/types"
)

var (
	ErrInvalidState = errors.New("invalid state transition")
	ErrConflict     = errors.New("ride state conflict")
	ErrBadRequest   = errors.New("bad request")
)

// Store is the slice of the entity store the ride service needs. All writes
// are guarded; (false, nil) signals a lost race.
type Store interface {
	CreateRide(ctx context.Context, r *Ride) error
	GetRide(ctx context.Context, id types.ID) (*Ride, error)
	ListRides(ctx context.Context) ([]*Ride, error)
	MarkDriverArrived(ctx context.Context, rideID types.ID, version int, at time.Time) (bool, error)
	StartRide(ctx context.Context, rideID types.ID, version int, at time.Time) (bool, error)
	CompleteRide(ctx context.Context, rideID types.ID, version int, at time.Time, distanceKm float64, fare pricing.Fare) (bool, error)
	CancelRide(ctx context.Context, rideID types.ID, from Status, version int, at time.Time, reason string) (bool, error)
	GetRider(ctx context.Context, id types.ID) (*rider.Rider, error)
	ListDrivers(ctx context.Context) ([]*driver.Driver, error)
}

type Service struct {
	store   Store
	pricing *pricing.Service
	events  events.Publisher
	log     *slog.Logger
	now     func() time.Time
}

func NewService(store Store, pricingSvc *pricing.Service, pub events.Publisher, log *slog.Logger) *Service {
	if pub == nil {
		pub = events.NoopPublisher{}
	}
	return &Service{
		store:   store,
		pricing: pricingSvc,
		events:  pub,
		log:     log,
		now:     time.Now,
	}
}

// WithClock replaces the service clock; the simulator uses this to drive
// virtual time.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateCommand struct {
	RiderID types.ID
	Pickup  types.Point
	Dropoff types.Point
}

type CancelCommand struct {
	RideID types.ID
	Reason string
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (types.ID, error) {
	if cmd.RiderID == "" {
		return "", ErrBadRequest
	}
	if _, err := s.store.GetRider(ctx, cmd.RiderID); err != nil {
		return "", err
	}

	r := &Ride{
		ID:         types.ID(uuid.NewString()),
		RiderID:    cmd.RiderID,
		Status:     StatusCreated,
		Pickup:     cmd.Pickup,
		Dropoff:    cmd.Dropoff,
		DistanceKm: location.DistanceKm(cmd.Pickup, cmd.Dropoff),
		CreatedAt:  s.now(),
	}
	if err := s.store.CreateRide(ctx, r); err != nil {
		return "", err
	}
	s.log.Info("ride created", "ride_id", r.ID, "rider_id", r.RiderID)
	s.publish(ctx, r.ID, StatusCreated, r.DriverID, nil)
	return r.ID, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Ride, error) {
	return s.store.GetRide(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*Ride, error) {
	return s.store.ListRides(ctx)
}

// Arrive records that the assigned driver reached the pickup location.
func (s *Service) Arrive(ctx context.Context, rideID types.ID) error {
	r, err := s.store.GetRide(ctx, rideID)
	if err != nil {
		return err
	}
	if !CanTransition(r.Status, StatusDriverArrived) {
		return ErrInvalidState
	}
	ok, err := s.store.MarkDriverArrived(ctx, r.ID, r.StatusVersion, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	s.publish(ctx, r.ID, StatusDriverArrived, r.DriverID, nil)
	return nil
}

// Start begins the trip; the driver moves to on_trip.
func (s *Service) Start(ctx context.Context, rideID types.ID) error {
	r, err := s.store.GetRide(ctx, rideID)
	if err != nil {
		return err
	}
	if !CanTransition(r.Status, StatusStarted) {
		return ErrInvalidState
	}
	ok, err := s.store.StartRide(ctx, r.ID, r.StatusVersion, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	s.publish(ctx, r.ID, StatusStarted, r.DriverID, nil)
	return nil
}

// Complete ends the trip and computes the fare exactly once. Without an
// active pricing configuration the ride stays started and the error is
// surfaced to the caller.
func (s *Service) Complete(ctx context.Context, rideID types.ID) error {
	r, err := s.store.GetRide(ctx, rideID)
	if err != nil {
		return err
	}
	if !CanTransition(r.Status, StatusCompleted) {
		return ErrInvalidState
	}

	now := s.now()
	distanceKm := r.DistanceKm
	if distanceKm == 0 {
		distanceKm = location.DistanceKm(r.Pickup, r.Dropoff)
	}
	in := pricing.FareInput{DistanceKm: distanceKm}
	if r.StartedAt != nil {
		in.Duration = now.Sub(*r.StartedAt)
		if r.ArrivedAt != nil {
			in.Wait = r.StartedAt.Sub(*r.ArrivedAt)
		}
	}
	fare, err := s.pricing.FareFor(ctx, in)
	if err != nil {
		return err
	}

	ok, err := s.store.CompleteRide(ctx, r.ID, r.StatusVersion, now, distanceKm, fare)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	s.log.Info("ride completed",
		"ride_id", r.ID, "distance_km", distanceKm, "fare", fare.Total)
	s.publish(ctx, r.ID, StatusCompleted, r.DriverID, &fare.Total)
	return nil
}

// Cancel exits a pre-trip ride; a started ride must reach completed.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) error {
	r, err := s.store.GetRide(ctx, cmd.RideID)
	if err != nil {
		return err
	}
	if !CanTransition(r.Status, StatusCancelled) {
		return ErrInvalidState
	}
	ok, err := s.store.CancelRide(ctx, r.ID, r.Status, r.StatusVersion, s.now(), cmd.Reason)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	s.log.Info("ride cancelled", "ride_id", r.ID, "from", r.Status, "reason", cmd.Reason)
	s.publish(ctx, r.ID, StatusCancelled, r.DriverID, nil)
	return nil
}

func (s *Service) publish(ctx context.Context, rideID types.ID, status Status, driverID *types.ID, fare *float64) {
	msg := events.RideStatusMessage{
		RideID:    string(rideID),
		Status:    string(status),
		FareTotal: fare,
		Timestamp: s.now().UTC(),
	}
	if driverID != nil {
		msg.DriverID = string(*driverID)
	}
	if err := s.events.PublishRideStatus(ctx, msg); err != nil {
		s.log.Warn("publish ride status failed", "ride_id", rideID, "error", err)
	}
}
