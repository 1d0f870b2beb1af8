package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flightmap/tracker/states"
)

// ErrStorage matches every store failure.
var ErrStorage = errors.New("history store failure")

// StorageError wraps a failed store operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("history %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Record is a stored sample with its server-assigned identity and insertion time.
type Record struct {
	ID int64 `json:"id"`
	states.Sample
	StoredAt time.Time `json:"stored_at"`
}

// Samples strips storage metadata, keeping query order.
func Samples(records []Record) []states.Sample {
	out := make([]states.Sample, len(records))
	for i, r := range records {
		out[i] = r.Sample
	}
	return out
}

// Options tune a Store.
type Options struct {
	// Timeout bounds each call; zero disables the bound.
	Timeout time.Duration
	// MaxRows caps query results; zero means no cap.
	MaxRows int
}

// Store is the append-only sample history backed by PostgreSQL.
type Store struct {
	db   *pgxpool.Pool
	opts Options
}

// NewStore creates a store on top of an existing pool.
func NewStore(db *pgxpool.Pool, opts Options) *Store {
	return &Store{db: db, opts: opts}
}

const insertSample = `INSERT INTO flight_samples
    (aircraft_id, callsign, origin_country, observed_at, longitude, latitude, velocity, altitude)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    ON CONFLICT (aircraft_id, observed_at) WHERE ` + identifiedPredicate + ` DO NOTHING`

const selectSamples = `SELECT id, aircraft_id, callsign, origin_country, observed_at,
    longitude, latitude, velocity, altitude, stored_at
    FROM flight_samples`

const sampleOrder = ` ORDER BY observed_at DESC NULLS LAST, stored_at DESC, id DESC`

// Append writes samples in one transaction and returns how many rows were
// new. Samples already present for the same identified aircraft and
// timestamp are skipped; unidentified samples are always inserted. On failure nothing from this batch is kept and zero is returned.
func (s *Store) Append(ctx context.Context, samples []states.Sample) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, &StorageError{Op: "append", Err: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, smp := range samples {
		batch.Queue(insertSample,
			smp.AircraftID, smp.Callsign, smp.OriginCountry, smp.ObservedAt,
			smp.Longitude, smp.Latitude, smp.Velocity, smp.Altitude,
		)
	}

	inserted, err := execBatch(tx.SendBatch(ctx, batch), len(samples))
	if err != nil {
		return 0, &StorageError{Op: "append", Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, &StorageError{Op: "append", Err: err}
	}
	return inserted, nil
}

func execBatch(br pgx.BatchResults, n int) (int, error) {
	inserted := 0
	for i := 0; i < n; i++ {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return 0, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, br.Close()
}

// QueryWindow returns samples stored in [start, end], newest observation
// first. Samples without an observation time come after all timestamped ones;
// remaining ties are broken by newest insertion.
func (s *Store) QueryWindow(ctx context.Context, start, end time.Time) ([]Record, error) {
	return s.query(ctx, "query window",
		` WHERE stored_at >= $1 AND stored_at <= $2`, start, end)
}

// QueryRecent is QueryWindow over the last window according to the database
// clock, so application clock skew cannot hide fresh rows.
func (s *Store) QueryRecent(ctx context.Context, window time.Duration) ([]Record, error) {
	return s.query(ctx, "query recent",
		` WHERE stored_at >= NOW() - make_interval(secs => $1)`, window.Seconds())
}

// QueryAircraft is QueryWindow restricted to one aircraft.
func (s *Store) QueryAircraft(ctx context.Context, aircraftID string, start, end time.Time) ([]Record, error) {
	return s.query(ctx, "query aircraft",
		` WHERE aircraft_id = $1 AND stored_at >= $2 AND stored_at <= $3`, aircraftID, start, end)
}

func (s *Store) query(ctx context.Context, op, where string, args ...any) ([]Record, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	sql := selectSamples + where + sampleOrder
	if s.opts.MaxRows > 0 {
		args = append(args, s.opts.MaxRows)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, &StorageError{Op: op, Err: err}
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(
			&r.ID, &r.AircraftID, &r.Callsign, &r.OriginCountry, &r.ObservedAt,
			&r.Longitude, &r.Latitude, &r.Velocity, &r.Altitude, &r.StoredAt,
		); err != nil {
			return nil, &StorageError{Op: op, Err: err}
		}
		if r.ObservedAt != nil {
			t := r.ObservedAt.UTC()
			r.ObservedAt = &t
		}
		r.StoredAt = r.StoredAt.UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: op, Err: err}
	}
	return records, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.Timeout)
}
