package history

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flightmap/tracker/states"
)

// identifiedPredicate limits deduplication to samples that carry a real
// identifier. Unidentified aircraft all share the placeholder and are always
// stored.
const identifiedPredicate = `aircraft_id <> '` + states.UnknownAircraft + `'`

// EnsureSchema creates the samples table and its indexes when missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS flight_samples (
            id BIGSERIAL PRIMARY KEY,
            aircraft_id TEXT NOT NULL,
            callsign TEXT NOT NULL,
            origin_country TEXT NOT NULL,
            observed_at TIMESTAMPTZ,
            longitude DOUBLE PRECISION NOT NULL,
            latitude DOUBLE PRECISION NOT NULL,
            velocity DOUBLE PRECISION NOT NULL DEFAULT 0,
            altitude DOUBLE PRECISION NOT NULL DEFAULT 0,
            stored_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
		`DROP INDEX IF EXISTS flight_samples_aircraft_observed_uniq`,
		`CREATE UNIQUE INDEX IF NOT EXISTS flight_samples_identified_observed_uniq
            ON flight_samples (aircraft_id, observed_at)
            WHERE ` + identifiedPredicate,
		`CREATE INDEX IF NOT EXISTS flight_samples_stored_at_idx
            ON flight_samples (stored_at)`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return &StorageError{Op: "ensure schema", Err: err}
		}
	}
	return nil
}
