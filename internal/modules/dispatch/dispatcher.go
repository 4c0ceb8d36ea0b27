// README: Allocation dispatcher; expanding-radius nearest-eligible driver search.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"rideservice/internal/config"
	"rideservice/internal/events"
	"rideservice/internal/modules/driver"
	"rideservice/internal/modules/location"
	"rideservice/internal/modules/ride"
	"rideservice/internal/observability"
	"rideservice/internal/types"
)

// Store is the slice of the entity store the dispatcher needs.
type Store interface {
	History
	GetRide(ctx context.Context, id types.ID) (*ride.Ride, error)
	ListIdleDriversWithin(ctx context.Context, center types.Point, radiusKm float64) ([]driver.Driver, error)
	TryAssign(ctx context.Context, rideID, driverID types.ID, at time.Time) (bool, error)
}

// Outcome of one per-ride dispatch attempt.
type Outcome string

const (
	OutcomeAssigned Outcome = "assigned"
	// OutcomeNoDriver means the radius ceiling was reached with no eligible
	// driver; the ride stays pending for the next pass.
	OutcomeNoDriver Outcome = "no_driver"
	// OutcomeSkipped means the ride was no longer pending (handled by a
	// concurrent writer, e.g. a rider cancellation).
	OutcomeSkipped Outcome = "skipped"
)

type Result struct {
	Outcome    Outcome
	DriverID   types.ID
	DistanceKm float64
	RadiusKm   float64
}

type Dispatcher struct {
	store  Store
	filter *EligibilityFilter
	cfg    config.DispatchConfig
	log    *slog.Logger
	events events.Publisher
	now    func() time.Time
}

func NewDispatcher(store Store, cfg config.DispatchConfig, log *slog.Logger, pub events.Publisher) *Dispatcher {
	if pub == nil {
		pub = events.NoopPublisher{}
	}
	return &Dispatcher{
		store:  store,
		filter: NewEligibilityFilter(store),
		cfg:    cfg,
		log:    log,
		events: pub,
		now:    time.Now,
	}
}

// WithClock replaces the dispatcher and eligibility clocks; the simulator
// uses this to drive virtual time.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	d.filter.now = now
	return d
}

type candidate struct {
	driver     driver.Driver
	distanceKm float64
}

// Allocate finds the nearest eligible driver for one pending ride, expanding
// the search radius until the ceiling. A lost TryAssign race earns exactly one
// same-radius retry with a refreshed candidate list.
func (d *Dispatcher) Allocate(ctx context.Context, r *ride.Ride) (Result, error) {
	radius := d.cfg.InitialRadiusKm
	retriedAtRadius := false

	for radius <= d.cfg.MaxRadiusKm {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		// Abort if the ride was handled concurrently (cancelled, or assigned
		// by a competing pass).
		cur, err := d.store.GetRide(ctx, r.ID)
		if err != nil {
			return Result{}, err
		}
		if cur.Status != ride.StatusCreated {
			d.log.Info("ride no longer pending, skipping",
				"ride_id", r.ID, "status", cur.Status)
			return Result{Outcome: OutcomeSkipped}, nil
		}

		eligible, err := d.eligibleCandidates(ctx, r, radius)
		if err != nil {
			return Result{}, err
		}

		if len(eligible) == 0 {
			radius += d.cfg.RadiusStepKm
			retriedAtRadius = false
			continue
		}

		best := eligible[0]
		ok, err := d.store.TryAssign(ctx, r.ID, best.driver.ID, d.now())
		if err != nil {
			return Result{}, err
		}
		if !ok {
			observability.ConflictsTotal.Inc()
			d.log.Debug("assignment conflict",
				"ride_id", r.ID, "driver_id", best.driver.ID, "radius_km", radius)
			if !retriedAtRadius {
				retriedAtRadius = true
				continue
			}
			radius += d.cfg.RadiusStepKm
			retriedAtRadius = false
			continue
		}

		observability.AssignmentsTotal.Inc()
		observability.SearchRadiusKm.Observe(radius)
		d.log.Info("driver assigned",
			"ride_id", r.ID, "driver_id", best.driver.ID,
			"distance_km", best.distanceKm, "radius_km", radius)
		d.publishAssigned(ctx, r.ID, best.driver.ID)
		return Result{
			Outcome:    OutcomeAssigned,
			DriverID:   best.driver.ID,
			DistanceKm: best.distanceKm,
			RadiusKm:   radius,
		}, nil
	}

	observability.UnmatchedTotal.Inc()
	d.log.Warn("no eligible driver within max radius",
		"ride_id", r.ID, "max_radius_km", d.cfg.MaxRadiusKm)
	return Result{Outcome: OutcomeNoDriver, RadiusKm: d.cfg.MaxRadiusKm}, nil
}

// eligibleCandidates fetches idle drivers within the radius, filters them, and
// returns them nearest first (ties broken by lowest driver ID).
func (d *Dispatcher) eligibleCandidates(ctx context.Context, r *ride.Ride, radiusKm float64) ([]candidate, error) {
	drivers, err := d.store.ListIdleDriversWithin(ctx, r.Pickup, radiusKm)
	if err != nil {
		return nil, err
	}

	excluded := make(map[Reason]int)
	eligible := make([]candidate, 0, len(drivers))
	for _, drv := range drivers {
		ok, reason, err := d.filter.Check(ctx, r, drv)
		if err != nil {
			return nil, err
		}
		if !ok {
			excluded[reason]++
			continue
		}
		eligible = append(eligible, candidate{
			driver:     drv,
			distanceKm: location.DistanceKm(drv.Pos, r.Pickup),
		})
	}

	if len(excluded) > 0 {
		d.log.Debug("candidates excluded",
			"ride_id", r.ID, "radius_km", radiusKm,
			"driver_busy", excluded[ReasonDriverBusy],
			"same_rider_cooldown", excluded[ReasonRecentRider],
			"cancel_streak", excluded[ReasonCancelStreak])
	}

	location.SortByDistance(eligible, func(c candidate) float64 { return c.distanceKm })
	// Stable tie-break for equidistant drivers.
	for i := 1; i < len(eligible); i++ {
		j := i
		for j > 0 && eligible[j-1].distanceKm == eligible[j].distanceKm &&
			eligible[j].driver.ID < eligible[j-1].driver.ID {
			eligible[j-1], eligible[j] = eligible[j], eligible[j-1]
			j--
		}
	}
	return eligible, nil
}

func (d *Dispatcher) publishAssigned(ctx context.Context, rideID, driverID types.ID) {
	err := d.events.PublishRideStatus(ctx, events.RideStatusMessage{
		RideID:    string(rideID),
		Status:    string(ride.StatusAssigned),
		DriverID:  string(driverID),
		Timestamp: d.now().UTC(),
	})
	if err != nil {
		d.log.Warn("publish ride status failed", "ride_id", rideID, "error", err)
	}
}
