// README: Fleet simulator; seeds users, generates rides, and replays the full lifecycle on virtual time.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"rideservice/internal/config"
	"rideservice/internal/modules/dispatch"
	"rideservice/internal/modules/driver"
	"rideservice/internal/modules/pricing"
	"rideservice/internal/modules/ride"
	"rideservice/internal/modules/rider"
	"rideservice/internal/storage"
	"rideservice/internal/types"
)

// Bangalore city center; the fleet operates within CityRadiusKm of it.
var defaultCityCenter = types.Point{Lat: 12.9716, Lng: 77.5946}

type Options struct {
	Riders         int
	Drivers        int
	Days           int
	CityCenter     types.Point
	CityRadiusKm   float64
	DriverSpeedKmh float64
	// CancelRate is the chance an assigned ride is abandoned before start.
	CancelRate float64
	Seed       int64
}

func DefaultOptions() Options {
	return Options{
		Riders:         10,
		Drivers:        15,
		Days:           2,
		CityCenter:     defaultCityCenter,
		CityRadiusKm:   20,
		DriverSpeedKmh: 30,
		CancelRate:     0.05,
		Seed:           time.Now().UnixNano(),
	}
}

// clock is the simulator's virtual time source. The simulation is
// single-goroutine so a plain field is enough.
type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

type Simulator struct {
	opts       Options
	store      *storage.MemoryStore
	rides      *ride.Service
	dispatcher *dispatch.Dispatcher
	log        *slog.Logger
	rng        *rand.Rand
	clock      *clock
}

func New(opts Options, log *slog.Logger) *Simulator {
	store := storage.NewMemoryStore()
	clk := &clock{now: time.Now().UTC().Truncate(time.Minute)}

	pricingSvc := pricing.NewService(store)
	rideSvc := ride.NewService(store, pricingSvc, nil, log).WithClock(clk.Now)

	dispatchCfg := config.DispatchConfig{
		IntervalSeconds: 10,
		InitialRadiusKm: 1,
		RadiusStepKm:    1,
		MaxRadiusKm:     opts.CityRadiusKm,
	}
	dispatcher := dispatch.NewDispatcher(store, dispatchCfg, log, nil).WithClock(clk.Now)

	return &Simulator{
		opts:       opts,
		store:      store,
		rides:      rideSvc,
		dispatcher: dispatcher,
		log:        log,
		rng:        rand.New(rand.NewSource(opts.Seed)),
		clock:      clk,
	}
}

// rideRequest is one scheduled ride creation event.
type rideRequest struct {
	at      time.Time
	riderID types.ID
	pickup  types.Point
	dropoff types.Point
}

func (s *Simulator) Run(ctx context.Context) (*ride.Summary, error) {
	if err := s.seed(ctx); err != nil {
		return nil, err
	}

	requests := s.generateRequests(ctx)
	s.log.Info("ride requests generated",
		"total", len(requests), "days", s.opts.Days)

	for _, req := range requests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.clock.now = req.at
		_, err := s.rides.Create(ctx, ride.CreateCommand{
			RiderID: req.riderID,
			Pickup:  req.pickup,
			Dropoff: req.dropoff,
		})
		if err != nil {
			return nil, fmt.Errorf("create ride: %w", err)
		}
		if err := s.dispatchPending(ctx); err != nil {
			return nil, err
		}
	}

	return s.rides.Summarize(ctx)
}

func (s *Simulator) seed(ctx context.Context) error {
	if err := s.store.SeedPricingRates(ctx, pricing.Rates{
		BaseFare:      20,
		PerKm:         10,
		PerMinute:     2,
		PerWaitMinute: 1,
	}); err != nil {
		return err
	}

	for i := 0; i < s.opts.Riders; i++ {
		r := &rider.Rider{
			ID:   types.ID(uuid.NewString()),
			Name: fmt.Sprintf("Rider%d", i+1),
			Home: s.randomPointWithin(s.opts.CityCenter, s.opts.CityRadiusKm),
		}
		if err := s.store.CreateRider(ctx, r); err != nil {
			return err
		}
	}
	for i := 0; i < s.opts.Drivers; i++ {
		d := &driver.Driver{
			ID:     types.ID(uuid.NewString()),
			Name:   fmt.Sprintf("Driver%d", i+1),
			Pos:    s.randomPointWithin(s.opts.CityCenter, s.opts.CityRadiusKm),
			Status: driver.StatusIdle,
		}
		if err := s.store.CreateDriver(ctx, d); err != nil {
			return err
		}
	}
	s.log.Info("fleet seeded", "riders", s.opts.Riders, "drivers", s.opts.Drivers)
	return nil
}

// generateRequests schedules one or two requests per rider per day at random
// times, sorted chronologically. Pickup stays within 5 km of the rider's home
// and dropoff within 10 km.
func (s *Simulator) generateRequests(ctx context.Context) []rideRequest {
	riders, err := s.store.ListRiders(ctx)
	if err != nil {
		return nil
	}
	base := s.clock.now
	var requests []rideRequest
	for day := 0; day < s.opts.Days; day++ {
		for _, r := range riders {
			n := 1 + s.rng.Intn(2)
			for i := 0; i < n; i++ {
				at := base.
					Add(time.Duration(day) * 24 * time.Hour).
					Add(time.Duration(s.rng.Intn(86400)) * time.Second)
				requests = append(requests, rideRequest{
					at:      at,
					riderID: r.ID,
					pickup:  s.randomPointWithin(r.Home, 5),
					dropoff: s.randomPointWithin(r.Home, 10),
				})
			}
		}
	}
	sort.Slice(requests, func(i, j int) bool { return requests[i].at.Before(requests[j].at) })
	return requests
}

// dispatchPending runs one allocation pass and plays each newly assigned ride
// through to its terminal state.
func (s *Simulator) dispatchPending(ctx context.Context) error {
	pending, err := s.store.ListPendingRides(ctx)
	if err != nil {
		return err
	}
	for _, r := range pending {
		res, err := s.dispatcher.Allocate(ctx, r)
		if err != nil {
			s.log.Warn("allocation failed", "ride_id", r.ID, "error", err)
			continue
		}
		if res.Outcome != dispatch.OutcomeAssigned {
			continue
		}
		if err := s.playRide(ctx, r.ID); err != nil {
			return err
		}
	}
	return nil
}

// playRide walks one assigned ride through arrival, start, and completion on
// the virtual clock, occasionally cancelling before the trip begins.
func (s *Simulator) playRide(ctx context.Context, rideID types.ID) error {
	assignedAt := s.clock.now

	if s.rng.Float64() < s.opts.CancelRate {
		s.clock.now = assignedAt.Add(time.Duration(1+s.rng.Intn(3)) * time.Minute)
		return s.rides.Cancel(ctx, ride.CancelCommand{RideID: rideID, Reason: "rider_cancel"})
	}

	// Driver reaches pickup after 2-5 minutes.
	s.clock.now = assignedAt.Add(time.Duration(2+s.rng.Intn(4)) * time.Minute)
	if err := s.rides.Arrive(ctx, rideID); err != nil {
		return fmt.Errorf("arrive: %w", err)
	}

	// Rider boards after 1-3 minutes of waiting.
	s.clock.now = s.clock.now.Add(time.Duration(1+s.rng.Intn(3)) * time.Minute)
	if err := s.rides.Start(ctx, rideID); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	r, err := s.rides.Get(ctx, rideID)
	if err != nil {
		return err
	}
	tripHours := r.DistanceKm / s.opts.DriverSpeedKmh
	s.clock.now = s.clock.now.Add(time.Duration(tripHours * float64(time.Hour)))
	if err := s.rides.Complete(ctx, rideID); err != nil {
		return fmt.Errorf("complete: %w", err)
	}
	return nil
}

// randomPointWithin picks a uniformly distributed point within radiusKm of
// center. One degree of latitude is ~111 km; longitude shrinks with cos(lat).
func (s *Simulator) randomPointWithin(center types.Point, radiusKm float64) types.Point {
	r := math.Sqrt(s.rng.Float64()) * radiusKm
	theta := s.rng.Float64() * 2 * math.Pi
	dx := r * math.Cos(theta)
	dy := r * math.Sin(theta)
	return types.Point{
		Lat: center.Lat + dy/111.0,
		Lng: center.Lng + dx/(111.0*math.Cos(center.Lat*math.Pi/180)),
	}
}
