// README: In-memory entity store used by the simulator and tests.
package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"rideservice/internal/modules/driver"
	"rideservice/internal/modules/location"
	"rideservice/internal/modules/pricing"
	"rideservice/internal/modules/ride"
	"rideservice/internal/modules/rider"
	"rideservice/internal/types"
)

type pairKey struct {
	driverID types.ID
	riderID  types.ID
}

// MemoryStore keeps all entities under one mutex so cross-entity guarded
// writes (TryAssign, CompleteRide, CancelRide) are atomic.
type MemoryStore struct {
	mu       sync.Mutex
	rides    map[types.ID]*ride.Ride
	drivers  map[types.ID]*driver.Driver
	riders   map[types.ID]*rider.Rider
	rates    *pricing.Rates
	outcomes map[types.ID][]driver.OutcomeRecord // newest first, capped at HistorySize
	lastTrip map[pairKey]time.Time               // (driver, rider) -> last completion
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rides:    make(map[types.ID]*ride.Ride),
		drivers:  make(map[types.ID]*driver.Driver),
		riders:   make(map[types.ID]*rider.Rider),
		outcomes: make(map[types.ID][]driver.OutcomeRecord),
		lastTrip: make(map[pairKey]time.Time),
	}
}

func (s *MemoryStore) CreateRide(_ context.Context, r *ride.Ride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.rides[r.ID] = &cp
	return nil
}

func (s *MemoryStore) GetRide(_ context.Context, id types.ID) (*ride.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) ListRides(_ context.Context) ([]*ride.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ride.Ride, 0, len(s.rides))
	for _, r := range s.rides {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) ListPendingRides(ctx context.Context) ([]*ride.Ride, error) {
	all, err := s.ListRides(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, r := range all {
		if r.Status == ride.StatusCreated {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) TryAssign(_ context.Context, rideID, driverID types.ID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[rideID]
	if !ok {
		return false, ErrNotFound
	}
	d, ok := s.drivers[driverID]
	if !ok {
		return false, ErrNotFound
	}
	if r.Status != ride.StatusCreated || d.Status != driver.StatusIdle {
		return false, nil
	}
	r.Status = ride.StatusAssigned
	r.StatusVersion++
	r.DriverID = &driverID
	assignedAt := at
	r.AssignedAt = &assignedAt
	d.Status = driver.StatusAssigned
	d.StatusVersion++
	d.ActiveRideID = &rideID
	return true, nil
}

func (s *MemoryStore) MarkDriverArrived(_ context.Context, rideID types.ID, version int, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[rideID]
	if !ok {
		return false, ErrNotFound
	}
	if r.Status != ride.StatusAssigned || r.StatusVersion != version {
		return false, nil
	}
	r.Status = ride.StatusDriverArrived
	r.StatusVersion++
	arrivedAt := at
	r.ArrivedAt = &arrivedAt
	return true, nil
}

func (s *MemoryStore) StartRide(_ context.Context, rideID types.ID, version int, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[rideID]
	if !ok {
		return false, ErrNotFound
	}
	if r.Status != ride.StatusDriverArrived || r.StatusVersion != version {
		return false, nil
	}
	r.Status = ride.StatusStarted
	r.StatusVersion++
	startedAt := at
	r.StartedAt = &startedAt
	if r.DriverID != nil {
		if d, ok := s.drivers[*r.DriverID]; ok && d.Status == driver.StatusAssigned {
			d.Status = driver.StatusOnTrip
			d.StatusVersion++
		}
	}
	return true, nil
}

func (s *MemoryStore) CompleteRide(_ context.Context, rideID types.ID, version int, at time.Time, distanceKm float64, fare pricing.Fare) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[rideID]
	if !ok {
		return false, ErrNotFound
	}
	if r.Status != ride.StatusStarted || r.StatusVersion != version {
		return false, nil
	}
	r.Status = ride.StatusCompleted
	r.StatusVersion++
	completedAt := at
	r.CompletedAt = &completedAt
	r.DistanceKm = distanceKm
	f := fare
	r.Fare = &f
	if r.DriverID != nil {
		if d, ok := s.drivers[*r.DriverID]; ok {
			d.Status = driver.StatusIdle
			d.StatusVersion++
			d.ActiveRideID = nil
			d.Pos = r.Dropoff
			s.recordOutcomeLocked(d.ID, driver.OutcomeRecord{
				RideID:     r.ID,
				RiderID:    r.RiderID,
				Outcome:    driver.OutcomeCompleted,
				OccurredAt: at,
			})
		}
	}
	return true, nil
}

func (s *MemoryStore) CancelRide(_ context.Context, rideID types.ID, from ride.Status, version int, at time.Time, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[rideID]
	if !ok {
		return false, ErrNotFound
	}
	if r.Status != from || r.StatusVersion != version {
		return false, nil
	}
	if !ride.CanTransition(from, ride.StatusCancelled) {
		return false, nil
	}
	r.Status = ride.StatusCancelled
	r.StatusVersion++
	cancelledAt := at
	r.CancelledAt = &cancelledAt
	if reason != "" {
		rs := reason
		r.CancelReason = &rs
	}
	if r.DriverID != nil {
		if d, ok := s.drivers[*r.DriverID]; ok {
			d.Status = driver.StatusIdle
			d.StatusVersion++
			d.ActiveRideID = nil
			s.recordOutcomeLocked(d.ID, driver.OutcomeRecord{
				RideID:     r.ID,
				RiderID:    r.RiderID,
				Outcome:    driver.OutcomeCancelled,
				OccurredAt: at,
			})
		}
	}
	return true, nil
}

func (s *MemoryStore) recordOutcomeLocked(driverID types.ID, rec driver.OutcomeRecord) {
	ring := append([]driver.OutcomeRecord{rec}, s.outcomes[driverID]...)
	if len(ring) > driver.HistorySize {
		ring = ring[:driver.HistorySize]
	}
	s.outcomes[driverID] = ring
	if rec.Outcome == driver.OutcomeCompleted {
		s.lastTrip[pairKey{driverID, rec.RiderID}] = rec.OccurredAt
	}
}

func (s *MemoryStore) CreateDriver(_ context.Context, d *driver.Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.drivers[d.ID] = &cp
	return nil
}

func (s *MemoryStore) GetDriver(_ context.Context, id types.ID) (*driver.Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *MemoryStore) ListDrivers(_ context.Context) ([]*driver.Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*driver.Driver, 0, len(s.drivers))
	for _, d := range s.drivers {
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListIdleDriversWithin is a naive scan; the Postgres store uses a Redis GEO
// index for the same query.
func (s *MemoryStore) ListIdleDriversWithin(_ context.Context, center types.Point, radiusKm float64) ([]driver.Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []driver.Driver
	for _, d := range s.drivers {
		if d.Status != driver.StatusIdle {
			continue
		}
		if location.DistanceKm(d.Pos, center) <= radiusKm {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *MemoryStore) RecentOutcomes(_ context.Context, driverID types.ID, n int) ([]driver.OutcomeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ring := s.outcomes[driverID]
	if n > len(ring) {
		n = len(ring)
	}
	out := make([]driver.OutcomeRecord, n)
	copy(out, ring[:n])
	return out, nil
}

func (s *MemoryStore) LastCompletedWith(_ context.Context, driverID, riderID types.ID) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastTrip[pairKey{driverID, riderID}]
	return t, ok, nil
}

func (s *MemoryStore) CreateRider(_ context.Context, r *rider.Rider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.riders[r.ID] = &cp
	return nil
}

func (s *MemoryStore) GetRider(_ context.Context, id types.ID) (*rider.Rider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.riders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) ListRiders(_ context.Context) ([]*rider.Rider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*rider.Rider, 0, len(s.riders))
	for _, r := range s.riders {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) PricingRates(_ context.Context) (pricing.Rates, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rates == nil {
		return pricing.Rates{}, pricing.ErrConfigMissing
	}
	return *s.rates, nil
}

func (s *MemoryStore) SeedPricingRates(_ context.Context, rates pricing.Rates) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := rates
	s.rates = &cp
	return nil
}
