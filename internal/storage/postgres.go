// README: PostgreSQL entity store; guarded writes via status+version conditions.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rideservice/internal/modules/driver"
	"rideservice/internal/modules/location"
	"rideservice/internal/modules/pricing"
	"rideservice/internal/modules/ride"
	"rideservice/internal/modules/rider"
	"rideservice/internal/types"
)

// PostgresStore persists entities in PostgreSQL. Guards are expressed as
// conditional UPDATEs checked via RowsAffected; cross-entity writes run in a
// single transaction. When a location.Index is supplied, idle-driver radius
// queries go through Redis GEO instead of scanning the drivers table.
type PostgresStore struct {
	db  *pgxpool.Pool
	geo *location.Index
}

func NewPostgresStore(db *pgxpool.Pool, geo *location.Index) *PostgresStore {
	return &PostgresStore{db: db, geo: geo}
}

const rideColumns = `
	id, rider_id, driver_id, status, status_version,
	pickup_lat, pickup_lng, dropoff_lat, dropoff_lng, distance_km,
	fare_base, fare_distance, fare_time, fare_waiting, fare_total,
	created_at, assigned_at, arrived_at, started_at, completed_at, cancelled_at,
	cancel_reason`

func (s *PostgresStore) CreateRide(ctx context.Context, r *ride.Ride) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO rides (
			id, rider_id, status, status_version,
			pickup_lat, pickup_lng, dropoff_lat, dropoff_lng, distance_km,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		string(r.ID), string(r.RiderID), string(r.Status), r.StatusVersion,
		r.Pickup.Lat, r.Pickup.Lng, r.Dropoff.Lat, r.Dropoff.Lng, r.DistanceKm,
		r.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetRide(ctx context.Context, id types.ID) (*ride.Ride, error) {
	row := s.db.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, string(id))
	return scanRide(row)
}

func (s *PostgresStore) ListRides(ctx context.Context) ([]*ride.Ride, error) {
	return s.queryRides(ctx, `SELECT `+rideColumns+` FROM rides ORDER BY created_at, id`)
}

func (s *PostgresStore) ListPendingRides(ctx context.Context) ([]*ride.Ride, error) {
	return s.queryRides(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE status = $1 ORDER BY created_at, id`,
		string(ride.StatusCreated))
}

func (s *PostgresStore) queryRides(ctx context.Context, query string, args ...any) ([]*ride.Ride, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ride.Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRide(row pgx.Row) (*ride.Ride, error) {
	var r ride.Ride
	var driverID, cancelReason sql.NullString
	var fareBase, fareDistance, fareTime, fareWaiting, fareTotal sql.NullFloat64
	var assignedAt, arrivedAt, startedAt, completedAt, cancelledAt sql.NullTime

	err := row.Scan(
		&r.ID, &r.RiderID, &driverID, &r.Status, &r.StatusVersion,
		&r.Pickup.Lat, &r.Pickup.Lng, &r.Dropoff.Lat, &r.Dropoff.Lng, &r.DistanceKm,
		&fareBase, &fareDistance, &fareTime, &fareWaiting, &fareTotal,
		&r.CreatedAt, &assignedAt, &arrivedAt, &startedAt, &completedAt, &cancelledAt,
		&cancelReason,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if driverID.Valid {
		d := types.ID(driverID.String)
		r.DriverID = &d
	}
	if fareTotal.Valid {
		r.Fare = &pricing.Fare{
			Base:     fareBase.Float64,
			Distance: fareDistance.Float64,
			Time:     fareTime.Float64,
			Waiting:  fareWaiting.Float64,
			Total:    fareTotal.Float64,
		}
	}
	r.AssignedAt = toTimePtr(assignedAt)
	r.ArrivedAt = toTimePtr(arrivedAt)
	r.StartedAt = toTimePtr(startedAt)
	r.CompletedAt = toTimePtr(completedAt)
	r.CancelledAt = toTimePtr(cancelledAt)
	if cancelReason.Valid {
		v := cancelReason.String
		r.CancelReason = &v
	}
	return &r, nil
}

func (s *PostgresStore) TryAssign(ctx context.Context, rideID, driverID types.ID, at time.Time) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE rides
		SET status = $1, status_version = status_version + 1,
		    driver_id = $2, assigned_at = $3
		WHERE id = $4 AND status = $5`,
		string(ride.StatusAssigned), string(driverID), at,
		string(rideID), string(ride.StatusCreated),
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	tag, err = tx.Exec(ctx, `
		UPDATE drivers
		SET status = $1, status_version = status_version + 1, active_ride_id = $2
		WHERE id = $3 AND status = $4`,
		string(driver.StatusAssigned), string(rideID),
		string(driverID), string(driver.StatusIdle),
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		// Driver raced away; roll the ride update back too.
		return false, nil
	}

	return true, tx.Commit(ctx)
}

func (s *PostgresStore) MarkDriverArrived(ctx context.Context, rideID types.ID, version int, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET status = $1, status_version = status_version + 1, arrived_at = $2
		WHERE id = $3 AND status = $4 AND status_version = $5`,
		string(ride.StatusDriverArrived), at,
		string(rideID), string(ride.StatusAssigned), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) StartRide(ctx context.Context, rideID types.ID, version int, at time.Time) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE rides
		SET status = $1, status_version = status_version + 1, started_at = $2
		WHERE id = $3 AND status = $4 AND status_version = $5`,
		string(ride.StatusStarted), at,
		string(rideID), string(ride.StatusDriverArrived), version,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE drivers
		SET status = $1, status_version = status_version + 1
		WHERE active_ride_id = $2 AND status = $3`,
		string(driver.StatusOnTrip), string(rideID), string(driver.StatusAssigned),
	)
	if err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func (s *PostgresStore) CompleteRide(ctx context.Context, rideID types.ID, version int, at time.Time, distanceKm float64, fare pricing.Fare) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE rides
		SET status = $1, status_version = status_version + 1, completed_at = $2,
		    distance_km = $3,
		    fare_base = $4, fare_distance = $5, fare_time = $6, fare_waiting = $7, fare_total = $8
		WHERE id = $9 AND status = $10 AND status_version = $11
		RETURNING rider_id, driver_id, dropoff_lat, dropoff_lng`,
		string(ride.StatusCompleted), at,
		distanceKm,
		fare.Base, fare.Distance, fare.Time, fare.Waiting, fare.Total,
		string(rideID), string(ride.StatusStarted), version,
	)
	var riderID string
	var driverID sql.NullString
	var dropoff types.Point
	err = row.Scan(&riderID, &driverID, &dropoff.Lat, &dropoff.Lng)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if driverID.Valid {
		_, err = tx.Exec(ctx, `
			UPDATE drivers
			SET status = $1, status_version = status_version + 1,
			    active_ride_id = NULL, lat = $2, lng = $3
			WHERE id = $4`,
			string(driver.StatusIdle), dropoff.Lat, dropoff.Lng, driverID.String,
		)
		if err != nil {
			return false, err
		}
		err = insertOutcome(ctx, tx, types.ID(driverID.String), rideID, types.ID(riderID), driver.OutcomeCompleted, at)
		if err != nil {
			return false, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	if s.geo != nil && driverID.Valid {
		// Best effort; the index is a query accelerator, not the record of truth.
		_ = s.geo.Upsert(ctx, types.ID(driverID.String), dropoff)
	}
	return true, nil
}

func (s *PostgresStore) CancelRide(ctx context.Context, rideID types.ID, from ride.Status, version int, at time.Time, reason string) (bool, error) {
	if !ride.CanTransition(from, ride.StatusCancelled) {
		return false, nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE rides
		SET status = $1, status_version = status_version + 1,
		    cancelled_at = $2, cancel_reason = NULLIF($3, '')
		WHERE id = $4 AND status = $5 AND status_version = $6
		RETURNING rider_id, driver_id`,
		string(ride.StatusCancelled), at, reason,
		string(rideID), string(from), version,
	)
	var riderID string
	var driverID sql.NullString
	err = row.Scan(&riderID, &driverID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if driverID.Valid {
		_, err = tx.Exec(ctx, `
			UPDATE drivers
			SET status = $1, status_version = status_version + 1, active_ride_id = NULL
			WHERE id = $2`,
			string(driver.StatusIdle), driverID.String,
		)
		if err != nil {
			return false, err
		}
		err = insertOutcome(ctx, tx, types.ID(driverID.String), rideID, types.ID(riderID), driver.OutcomeCancelled, at)
		if err != nil {
			return false, err
		}
	}
	return true, tx.Commit(ctx)
}

func insertOutcome(ctx context.Context, tx pgx.Tx, driverID, rideID, riderID types.ID, outcome driver.Outcome, at time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO driver_outcomes (driver_id, ride_id, rider_id, outcome, occurred_at)
		VALUES ($1, $2, $3, $4, $5)`,
		string(driverID), string(rideID), string(riderID), string(outcome), at,
	)
	return err
}

func (s *PostgresStore) CreateDriver(ctx context.Context, d *driver.Driver) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO drivers (id, name, lat, lng, status, status_version)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(d.ID), d.Name, d.Pos.Lat, d.Pos.Lng, string(d.Status), d.StatusVersion,
	)
	if err != nil {
		return err
	}
	if s.geo != nil {
		if err := s.geo.Upsert(ctx, d.ID, d.Pos); err != nil {
			return fmt.Errorf("geo index upsert: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) GetDriver(ctx context.Context, id types.ID) (*driver.Driver, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, lat, lng, status, status_version, active_ride_id
		FROM drivers WHERE id = $1`, string(id))
	return scanDriver(row)
}

func (s *PostgresStore) ListDrivers(ctx context.Context) ([]*driver.Driver, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, lat, lng, status, status_version, active_ride_id
		FROM drivers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*driver.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDriver(row pgx.Row) (*driver.Driver, error) {
	var d driver.Driver
	var activeRideID sql.NullString
	err := row.Scan(&d.ID, &d.Name, &d.Pos.Lat, &d.Pos.Lng, &d.Status, &d.StatusVersion, &activeRideID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if activeRideID.Valid {
		v := types.ID(activeRideID.String)
		d.ActiveRideID = &v
	}
	return &d, nil
}

func (s *PostgresStore) ListIdleDriversWithin(ctx context.Context, center types.Point, radiusKm float64) ([]driver.Driver, error) {
	if s.geo != nil {
		ids, err := s.geo.Within(ctx, center, radiusKm)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, nil
		}
		strIDs := make([]string, len(ids))
		for i, id := range ids {
			strIDs[i] = string(id)
		}
		rows, err := s.db.Query(ctx, `
			SELECT id, name, lat, lng, status, status_version, active_ride_id
			FROM drivers WHERE id = ANY($1) AND status = $2`,
			strIDs, string(driver.StatusIdle))
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var out []driver.Driver
		for rows.Next() {
			d, err := scanDriver(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, *d)
		}
		return out, rows.Err()
	}

	// No GEO index configured: scan idle drivers and filter in Go.
	rows, err := s.db.Query(ctx, `
		SELECT id, name, lat, lng, status, status_version, active_ride_id
		FROM drivers WHERE status = $1`, string(driver.StatusIdle))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []driver.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		if location.DistanceKm(d.Pos, center) <= radiusKm {
			out = append(out, *d)
		}
	}
	return out, rows.Err()
}

func (s *PostgresStore) RecentOutcomes(ctx context.Context, driverID types.ID, n int) ([]driver.OutcomeRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT ride_id, rider_id, outcome, occurred_at
		FROM driver_outcomes
		WHERE driver_id = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2`, string(driverID), n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []driver.OutcomeRecord
	for rows.Next() {
		var rec driver.OutcomeRecord
		if err := rows.Scan(&rec.RideID, &rec.RiderID, &rec.Outcome, &rec.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) LastCompletedWith(ctx context.Context, driverID, riderID types.ID) (time.Time, bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT occurred_at
		FROM driver_outcomes
		WHERE driver_id = $1 AND rider_id = $2 AND outcome = $3
		ORDER BY occurred_at DESC
		LIMIT 1`, string(driverID), string(riderID), string(driver.OutcomeCompleted))
	var t time.Time
	err := row.Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

func (s *PostgresStore) CreateRider(ctx context.Context, r *rider.Rider) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO riders (id, name, home_lat, home_lng) VALUES ($1, $2, $3, $4)`,
		string(r.ID), r.Name, r.Home.Lat, r.Home.Lng,
	)
	return err
}

func (s *PostgresStore) GetRider(ctx context.Context, id types.ID) (*rider.Rider, error) {
	row := s.db.QueryRow(ctx, `SELECT id, name, home_lat, home_lng FROM riders WHERE id = $1`, string(id))
	var r rider.Rider
	err := row.Scan(&r.ID, &r.Name, &r.Home.Lat, &r.Home.Lng)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) ListRiders(ctx context.Context) ([]*rider.Rider, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, home_lat, home_lng FROM riders ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*rider.Rider
	for rows.Next() {
		var r rider.Rider
		if err := rows.Scan(&r.ID, &r.Name, &r.Home.Lat, &r.Home.Lng); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) PricingRates(ctx context.Context) (pricing.Rates, error) {
	rows, err := s.db.Query(ctx, `SELECT key, value FROM pricing_config`)
	if err != nil {
		return pricing.Rates{}, err
	}
	defer rows.Close()

	values := make(map[string]float64)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return pricing.Rates{}, err
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return pricing.Rates{}, fmt.Errorf("pricing_config %s: %w", key, err)
		}
		values[key] = v
	}
	if err := rows.Err(); err != nil {
		return pricing.Rates{}, err
	}
	if len(values) == 0 {
		return pricing.Rates{}, pricing.ErrConfigMissing
	}
	return pricing.Rates{
		BaseFare:      values[pricing.KeyBaseFare],
		PerKm:         values[pricing.KeyPerKm],
		PerMinute:     values[pricing.KeyPerMinute],
		PerWaitMinute: values[pricing.KeyPerWaitMinute],
	}, nil
}

func (s *PostgresStore) SeedPricingRates(ctx context.Context, rates pricing.Rates) error {
	pairs := map[string]float64{
		pricing.KeyBaseFare:      rates.BaseFare,
		pricing.KeyPerKm:         rates.PerKm,
		pricing.KeyPerMinute:     rates.PerMinute,
		pricing.KeyPerWaitMinute: rates.PerWaitMinute,
	}
	for key, v := range pairs {
		_, err := s.db.Exec(ctx, `
			INSERT INTO pricing_config (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
			key, strconv.FormatFloat(v, 'f', -1, 64),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
