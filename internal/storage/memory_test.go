// README: Guarded-write tests for the in-memory store (run with -race).
package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"rideservice/internal/modules/driver"
	"rideservice/internal/modules/pricing"
	"rideservice/internal/modules/ride"
	"rideservice/internal/types"
)

var testT0 = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func seedRideAndDriver(t *testing.T, s *MemoryStore) (*ride.Ride, *driver.Driver) {
	t.Helper()
	ctx := context.Background()
	r := &ride.Ride{
		ID:        "ride1",
		RiderID:   "rider1",
		Status:    ride.StatusCreated,
		Pickup:    types.Point{Lat: 12.97, Lng: 77.59},
		Dropoff:   types.Point{Lat: 12.93, Lng: 77.62},
		CreatedAt: testT0,
	}
	if err := s.CreateRide(ctx, r); err != nil {
		t.Fatalf("create ride: %v", err)
	}
	d := &driver.Driver{ID: "driver1", Name: "Driver1", Status: driver.StatusIdle}
	if err := s.CreateDriver(ctx, d); err != nil {
		t.Fatalf("create driver: %v", err)
	}
	return r, d
}

func TestTryAssignConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedRideAndDriver(t, s)

	const workers = 16
	for i := 0; i < workers; i++ {
		d := &driver.Driver{ID: types.ID(fmt.Sprintf("d%02d", i)), Status: driver.StatusIdle}
		if err := s.CreateDriver(ctx, d); err != nil {
			t.Fatalf("create driver: %v", err)
		}
	}

	var wg sync.WaitGroup
	wins := make(chan types.ID, workers)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id types.ID) {
			defer wg.Done()
			<-start
			ok, err := s.TryAssign(ctx, "ride1", id, testT0)
			if err != nil {
				t.Errorf("try assign: %v", err)
				return
			}
			if ok {
				wins <- id
			}
		}(types.ID(fmt.Sprintf("d%02d", i)))
	}
	close(start)
	wg.Wait()
	close(wins)

	var winners []types.ID
	for id := range wins {
		winners = append(winners, id)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly 1 successful assignment, got %d", len(winners))
	}

	r, err := s.GetRide(ctx, "ride1")
	if err != nil {
		t.Fatalf("get ride: %v", err)
	}
	if r.Status != ride.StatusAssigned || r.DriverID == nil || *r.DriverID != winners[0] {
		t.Errorf("ride = %+v, want assigned to %s", r, winners[0])
	}
	d, err := s.GetDriver(ctx, winners[0])
	if err != nil {
		t.Fatalf("get driver: %v", err)
	}
	if d.Status != driver.StatusAssigned || d.ActiveRideID == nil || *d.ActiveRideID != "ride1" {
		t.Errorf("winning driver = %+v, want assigned to ride1", d)
	}
}

func TestTryAssignBusyDriver(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedRideAndDriver(t, s)

	other := &ride.Ride{ID: "ride2", RiderID: "rider2", Status: ride.StatusCreated, CreatedAt: testT0}
	if err := s.CreateRide(ctx, other); err != nil {
		t.Fatalf("create ride: %v", err)
	}
	if ok, _ := s.TryAssign(ctx, "ride1", "driver1", testT0); !ok {
		t.Fatal("first assignment should succeed")
	}
	if ok, err := s.TryAssign(ctx, "ride2", "driver1", testT0); ok || err != nil {
		t.Fatalf("busy driver: ok=%v err=%v, want false nil", ok, err)
	}
}

func TestGuardedWritesRejectStaleVersion(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedRideAndDriver(t, s)

	if ok, _ := s.TryAssign(ctx, "ride1", "driver1", testT0); !ok {
		t.Fatal("assign failed")
	}
	r, _ := s.GetRide(ctx, "ride1")

	// stale version loses
	if ok, err := s.MarkDriverArrived(ctx, "ride1", r.StatusVersion-1, testT0); ok || err != nil {
		t.Fatalf("stale arrive: ok=%v err=%v, want false nil", ok, err)
	}
	// current version wins
	if ok, err := s.MarkDriverArrived(ctx, "ride1", r.StatusVersion, testT0); !ok || err != nil {
		t.Fatalf("arrive: ok=%v err=%v", ok, err)
	}
	// replay of the same version loses
	if ok, err := s.MarkDriverArrived(ctx, "ride1", r.StatusVersion, testT0); ok || err != nil {
		t.Fatalf("replayed arrive: ok=%v err=%v, want false nil", ok, err)
	}
}

func TestCancelRequiresMatchingFromStatus(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedRideAndDriver(t, s)

	if ok, _ := s.TryAssign(ctx, "ride1", "driver1", testT0); !ok {
		t.Fatal("assign failed")
	}
	// the caller read create_ride but the ride moved on
	if ok, err := s.CancelRide(ctx, "ride1", ride.StatusCreated, 0, testT0, "late"); ok || err != nil {
		t.Fatalf("cancel with stale from: ok=%v err=%v, want false nil", ok, err)
	}

	r, _ := s.GetRide(ctx, "ride1")
	if ok, err := s.CancelRide(ctx, "ride1", r.Status, r.StatusVersion, testT0, "ok"); !ok || err != nil {
		t.Fatalf("cancel: ok=%v err=%v", ok, err)
	}
}

func TestCancelFromStartedRejectedByStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedRideAndDriver(t, s)

	mustStep := func(f func() (bool, error)) {
		t.Helper()
		if ok, err := f(); !ok || err != nil {
			t.Fatalf("step: ok=%v err=%v", ok, err)
		}
	}
	mustStep(func() (bool, error) { return s.TryAssign(ctx, "ride1", "driver1", testT0) })
	mustStep(func() (bool, error) { return s.MarkDriverArrived(ctx, "ride1", 1, testT0) })
	mustStep(func() (bool, error) { return s.StartRide(ctx, "ride1", 2, testT0) })

	if ok, err := s.CancelRide(ctx, "ride1", ride.StatusStarted, 3, testT0, "no"); ok || err != nil {
		t.Fatalf("cancel from started: ok=%v err=%v, want false nil", ok, err)
	}
}

func TestListPendingRidesOrderedByCreation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i, id := range []types.ID{"c", "a", "b"} {
		r := &ride.Ride{
			ID:        id,
			RiderID:   "rider1",
			Status:    ride.StatusCreated,
			CreatedAt: testT0.Add(time.Duration(3-i) * time.Minute),
		}
		if err := s.CreateRide(ctx, r); err != nil {
			t.Fatalf("create ride: %v", err)
		}
	}
	// one non-pending ride must not show up
	done := &ride.Ride{ID: "z", RiderID: "rider1", Status: ride.StatusCancelled, CreatedAt: testT0}
	if err := s.CreateRide(ctx, done); err != nil {
		t.Fatalf("create ride: %v", err)
	}

	pending, err := s.ListPendingRides(ctx)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	var got []types.ID
	for _, r := range pending {
		got = append(got, r.ID)
	}
	want := []types.ID{"b", "a", "c"} // oldest first
	if len(got) != len(want) {
		t.Fatalf("pending = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pending = %v, want %v", got, want)
		}
	}
}

func TestListIdleDriversWithin(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	center := types.Point{Lat: 12.9716, Lng: 77.5946}

	near := &driver.Driver{ID: "near", Status: driver.StatusIdle, Pos: types.Point{Lat: 12.9750, Lng: 77.5946}}
	far := &driver.Driver{ID: "far", Status: driver.StatusIdle, Pos: types.Point{Lat: 13.2, Lng: 77.9}}
	busy := &driver.Driver{ID: "busy", Status: driver.StatusOnTrip, Pos: center}
	for _, d := range []*driver.Driver{near, far, busy} {
		if err := s.CreateDriver(ctx, d); err != nil {
			t.Fatalf("create driver: %v", err)
		}
	}

	got, err := s.ListIdleDriversWithin(ctx, center, 2)
	if err != nil {
		t.Fatalf("list idle within: %v", err)
	}
	if len(got) != 1 || got[0].ID != "near" {
		t.Errorf("drivers within 2km = %+v, want only near", got)
	}
}

func TestOutcomeRingCappedAtHistorySize(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	d := &driver.Driver{ID: "d1", Status: driver.StatusIdle}
	if err := s.CreateDriver(ctx, d); err != nil {
		t.Fatalf("create driver: %v", err)
	}

	total := driver.HistorySize + 4
	for i := 0; i < total; i++ {
		rideID := types.ID(fmt.Sprintf("ride%02d", i))
		r := &ride.Ride{ID: rideID, RiderID: "rider1", Status: ride.StatusCreated, CreatedAt: testT0}
		if err := s.CreateRide(ctx, r); err != nil {
			t.Fatalf("create ride: %v", err)
		}
		at := testT0.Add(time.Duration(i) * time.Hour)
		if ok, _ := s.TryAssign(ctx, rideID, "d1", at); !ok {
			t.Fatalf("assign ride %d failed", i)
		}
		if ok, _ := s.CancelRide(ctx, rideID, ride.StatusAssigned, 1, at, ""); !ok {
			t.Fatalf("cancel ride %d failed", i)
		}
	}

	got, err := s.RecentOutcomes(ctx, "d1", total)
	if err != nil {
		t.Fatalf("recent outcomes: %v", err)
	}
	if len(got) != driver.HistorySize {
		t.Fatalf("history length = %d, want %d", len(got), driver.HistorySize)
	}
	// newest first
	if got[0].RideID != types.ID(fmt.Sprintf("ride%02d", total-1)) {
		t.Errorf("newest outcome = %+v", got[0])
	}
	for i := 1; i < len(got); i++ {
		if got[i].OccurredAt.After(got[i-1].OccurredAt) {
			t.Errorf("outcomes not newest-first at %d", i)
		}
	}
}

func TestLastCompletedWith(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedRideAndDriver(t, s)

	if _, ok, _ := s.LastCompletedWith(ctx, "driver1", "rider1"); ok {
		t.Fatal("expected no completion before any ride")
	}

	done := testT0.Add(45 * time.Minute)
	if ok, _ := s.TryAssign(ctx, "ride1", "driver1", testT0); !ok {
		t.Fatal("assign failed")
	}
	if ok, _ := s.MarkDriverArrived(ctx, "ride1", 1, testT0); !ok {
		t.Fatal("arrive failed")
	}
	if ok, _ := s.StartRide(ctx, "ride1", 2, testT0); !ok {
		t.Fatal("start failed")
	}
	if ok, _ := s.CompleteRide(ctx, "ride1", 3, done, 5, pricing.Fare{Total: 70}); !ok {
		t.Fatal("complete failed")
	}

	at, ok, err := s.LastCompletedWith(ctx, "driver1", "rider1")
	if err != nil || !ok {
		t.Fatalf("last completed: ok=%v err=%v", ok, err)
	}
	if !at.Equal(done) {
		t.Errorf("last completed at %v, want %v", at, done)
	}
	// cancellations must not touch the completion index
	if _, ok, _ := s.LastCompletedWith(ctx, "driver1", "rider2"); ok {
		t.Error("unexpected completion for other rider")
	}
}
