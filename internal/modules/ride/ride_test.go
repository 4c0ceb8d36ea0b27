// README: Ride lifecycle tests (state machine + service flows).
package ride_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"rideservice/internal/modules/driver"
	"rideservice/internal/modules/pricing"
	"rideservice/internal/modules/ride"
	"rideservice/internal/modules/rider"
	"rideservice/internal/storage"
	"rideservice/internal/types"
)

// TestCanTransition verifies the state machine transition table.
func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to ride.Status
		want     bool
	}{
		// happy-path forward transitions
		{ride.StatusCreated, ride.StatusAssigned, true},
		{ride.StatusAssigned, ride.StatusDriverArrived, true},
		{ride.StatusDriverArrived, ride.StatusStarted, true},
		{ride.StatusStarted, ride.StatusCompleted, true},
		// cancels from the three pre-trip states only
		{ride.StatusCreated, ride.StatusCancelled, true},
		{ride.StatusAssigned, ride.StatusCancelled, true},
		{ride.StatusDriverArrived, ride.StatusCancelled, true},
		{ride.StatusStarted, ride.StatusCancelled, false},
		// terminal states have no outgoing transitions
		{ride.StatusCompleted, ride.StatusCreated, false},
		{ride.StatusCompleted, ride.StatusCancelled, false},
		{ride.StatusCancelled, ride.StatusAssigned, false},
		// invalid: skipping states
		{ride.StatusCreated, ride.StatusDriverArrived, false},
		{ride.StatusCreated, ride.StatusStarted, false},
		{ride.StatusAssigned, ride.StatusCompleted, false},
		{ride.StatusDriverArrived, ride.StatusCompleted, false},
	}
	for _, tc := range cases {
		if got := ride.CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []ride.Status{ride.StatusCompleted, ride.StatusCancelled} {
		if !ride.Terminal(s) {
			t.Errorf("Terminal(%s) = false, want true", s)
		}
	}
	for _, s := range []ride.Status{ride.StatusCreated, ride.StatusAssigned, ride.StatusDriverArrived, ride.StatusStarted} {
		if ride.Terminal(s) {
			t.Errorf("Terminal(%s) = true, want false", s)
		}
	}
}

type testEnv struct {
	store *storage.MemoryStore
	svc   *ride.Service
	now   time.Time
}

func newTestEnv(t *testing.T, seedRates bool) *testEnv {
	t.Helper()
	env := &testEnv{
		store: storage.NewMemoryStore(),
		now:   time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	pricingSvc := pricing.NewService(env.store)
	env.svc = ride.NewService(env.store, pricingSvc, nil, log).WithClock(func() time.Time { return env.now })

	ctx := context.Background()
	if seedRates {
		rates := pricing.Rates{BaseFare: 20, PerKm: 10, PerMinute: 2, PerWaitMinute: 1}
		if err := env.store.SeedPricingRates(ctx, rates); err != nil {
			t.Fatalf("seed rates: %v", err)
		}
	}
	if err := env.store.CreateRider(ctx, &rider.Rider{ID: "r1", Name: "Rider1"}); err != nil {
		t.Fatalf("create rider: %v", err)
	}
	if err := env.store.CreateDriver(ctx, &driver.Driver{ID: "d1", Name: "Driver1", Status: driver.StatusIdle}); err != nil {
		t.Fatalf("create driver: %v", err)
	}
	return env
}

func (env *testEnv) advance(d time.Duration) { env.now = env.now.Add(d) }

func (env *testEnv) createAssigned(t *testing.T) types.ID {
	t.Helper()
	ctx := context.Background()
	id, err := env.svc.Create(ctx, ride.CreateCommand{
		RiderID: "r1",
		Pickup:  types.Point{Lat: 12.9716, Lng: 77.5946},
		Dropoff: types.Point{Lat: 12.9352, Lng: 77.6245},
	})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}
	ok, err := env.store.TryAssign(ctx, id, "d1", env.now)
	if err != nil || !ok {
		t.Fatalf("assign: ok=%v err=%v", ok, err)
	}
	return id
}

func assertStatus(t *testing.T, env *testEnv, id types.ID, want ride.Status) {
	t.Helper()
	r, err := env.svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get ride: %v", err)
	}
	if r.Status != want {
		t.Fatalf("status = %s, want %s", r.Status, want)
	}
}

func TestRideFlowHappyPath(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	id := env.createAssigned(t)
	assertStatus(t, env, id, ride.StatusAssigned)

	env.advance(4 * time.Minute)
	if err := env.svc.Arrive(ctx, id); err != nil {
		t.Fatalf("arrive: %v", err)
	}
	assertStatus(t, env, id, ride.StatusDriverArrived)

	env.advance(2 * time.Minute)
	if err := env.svc.Start(ctx, id); err != nil {
		t.Fatalf("start: %v", err)
	}
	assertStatus(t, env, id, ride.StatusStarted)

	env.advance(10 * time.Minute)
	if err := env.svc.Complete(ctx, id); err != nil {
		t.Fatalf("complete: %v", err)
	}
	assertStatus(t, env, id, ride.StatusCompleted)

	r, err := env.svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("get ride: %v", err)
	}
	if r.Fare == nil {
		t.Fatal("completed ride has no fare")
	}
	// base 20 + distance*10 + 10min*2 + 2min wait*1
	if r.Fare.Base != 20 || r.Fare.Time != 20 || r.Fare.Waiting != 2 {
		t.Errorf("fare breakdown = %+v", r.Fare)
	}
	if r.Fare.Distance != r.DistanceKm*10 {
		t.Errorf("distance fare = %v, want %v", r.Fare.Distance, r.DistanceKm*10)
	}

	// driver is idle again at the dropoff
	d, err := env.store.GetDriver(ctx, "d1")
	if err != nil {
		t.Fatalf("get driver: %v", err)
	}
	if d.Status != driver.StatusIdle || d.ActiveRideID != nil {
		t.Errorf("driver after completion = %+v, want idle with no active ride", d)
	}
	if d.Pos != r.Dropoff {
		t.Errorf("driver pos = %+v, want dropoff %+v", d.Pos, r.Dropoff)
	}
}

func TestFareComputedExactlyOnce(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	id := env.createAssigned(t)
	env.advance(2 * time.Minute)
	if err := env.svc.Arrive(ctx, id); err != nil {
		t.Fatalf("arrive: %v", err)
	}
	env.advance(time.Minute)
	if err := env.svc.Start(ctx, id); err != nil {
		t.Fatalf("start: %v", err)
	}
	env.advance(15 * time.Minute)
	if err := env.svc.Complete(ctx, id); err != nil {
		t.Fatalf("complete: %v", err)
	}
	first, _ := env.svc.Get(ctx, id)

	// a second completion attempt must not recompute or change the fare
	env.advance(time.Hour)
	if err := env.svc.Complete(ctx, id); !errors.Is(err, ride.ErrInvalidState) {
		t.Fatalf("second complete: err = %v, want ErrInvalidState", err)
	}
	second, _ := env.svc.Get(ctx, id)
	if *second.Fare != *first.Fare {
		t.Errorf("fare changed: %+v -> %+v", first.Fare, second.Fare)
	}
}

func TestCancelFromStartedRejected(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	id := env.createAssigned(t)
	if err := env.svc.Arrive(ctx, id); err != nil {
		t.Fatalf("arrive: %v", err)
	}
	if err := env.svc.Start(ctx, id); err != nil {
		t.Fatalf("start: %v", err)
	}

	err := env.svc.Cancel(ctx, ride.CancelCommand{RideID: id, Reason: "too_late"})
	if !errors.Is(err, ride.ErrInvalidState) {
		t.Fatalf("cancel from started: err = %v, want ErrInvalidState", err)
	}
	assertStatus(t, env, id, ride.StatusStarted)
}

func TestCancelFromAssignedFreesDriver(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	id := env.createAssigned(t)

	if err := env.svc.Cancel(ctx, ride.CancelCommand{RideID: id, Reason: "changed_mind"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	assertStatus(t, env, id, ride.StatusCancelled)

	d, err := env.store.GetDriver(ctx, "d1")
	if err != nil {
		t.Fatalf("get driver: %v", err)
	}
	if d.Status != driver.StatusIdle || d.ActiveRideID != nil {
		t.Errorf("driver after cancel = %+v, want idle with no active ride", d)
	}

	outcomes, err := env.store.RecentOutcomes(ctx, "d1", 2)
	if err != nil {
		t.Fatalf("recent outcomes: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Outcome != driver.OutcomeCancelled {
		t.Errorf("outcomes = %+v, want one cancelled record", outcomes)
	}
}

func TestCompleteWithoutPricingConfig(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	id := env.createAssigned(t)
	if err := env.svc.Arrive(ctx, id); err != nil {
		t.Fatalf("arrive: %v", err)
	}
	if err := env.svc.Start(ctx, id); err != nil {
		t.Fatalf("start: %v", err)
	}

	err := env.svc.Complete(ctx, id)
	if !errors.Is(err, pricing.ErrConfigMissing) {
		t.Fatalf("complete: err = %v, want ErrConfigMissing", err)
	}
	// the ride must stay started so completion can be retried
	assertStatus(t, env, id, ride.StatusStarted)

	rates := pricing.Rates{BaseFare: 20, PerKm: 10, PerMinute: 2, PerWaitMinute: 1}
	if err := env.store.SeedPricingRates(ctx, rates); err != nil {
		t.Fatalf("seed rates: %v", err)
	}
	if err := env.svc.Complete(ctx, id); err != nil {
		t.Fatalf("retry complete: %v", err)
	}
	assertStatus(t, env, id, ride.StatusCompleted)
}

func TestCreateUnknownRider(t *testing.T) {
	env := newTestEnv(t, true)
	_, err := env.svc.Create(context.Background(), ride.CreateCommand{RiderID: "ghost"})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("create: err = %v, want ErrNotFound", err)
	}
}

func TestCreateMissingRider(t *testing.T) {
	env := newTestEnv(t, true)
	_, err := env.svc.Create(context.Background(), ride.CreateCommand{})
	if !errors.Is(err, ride.ErrBadRequest) {
		t.Fatalf("create: err = %v, want ErrBadRequest", err)
	}
}

func TestSummarize(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	id := env.createAssigned(t)
	env.advance(3 * time.Minute)
	if err := env.svc.Arrive(ctx, id); err != nil {
		t.Fatalf("arrive: %v", err)
	}
	env.advance(2 * time.Minute)
	if err := env.svc.Start(ctx, id); err != nil {
		t.Fatalf("start: %v", err)
	}
	env.advance(10 * time.Minute)
	if err := env.svc.Complete(ctx, id); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// one more ride that stays pending
	if _, err := env.svc.Create(ctx, ride.CreateCommand{RiderID: "r1"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	sum, err := env.svc.Summarize(ctx)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if sum.TotalRides != 2 || sum.CompletedRides != 1 || sum.PendingRides != 1 {
		t.Errorf("summary = %+v, want total=2 completed=1 pending=1", sum)
	}
	if sum.AvgWaitMin != 2 || sum.AvgTripMin != 10 {
		t.Errorf("avg wait=%v trip=%v, want 2 and 10", sum.AvgWaitMin, sum.AvgTripMin)
	}
	if len(sum.Drivers) != 1 || sum.Drivers[0].CompletedRides != 1 {
		t.Errorf("driver stats = %+v", sum.Drivers)
	}
	if sum.TotalRevenue == 0 || sum.Drivers[0].TotalFare != sum.TotalRevenue {
		t.Errorf("revenue = %v, driver fare = %v", sum.TotalRevenue, sum.Drivers[0].TotalFare)
	}
}
