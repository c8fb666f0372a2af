package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/i474232898/weather-location-tracker/internal/common"
	"github.com/i474232898/weather-location-tracker/internal/tracking"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// SQLStore implements tracking.Store on SQLite or PostgreSQL.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// Open connects to the database and verifies the connection. For sqlite the
// dsn is a file path.
func Open(driver, dsn string) (*SQLStore, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("openDB: unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("openDB: open %s database: %w", driver, err)
	}

	if driver == DriverSQLite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("openDB: verify %s connection: %w", driver, err)
	}

	return &SQLStore{db: db, driver: driver}, nil
}

// InitSchema creates the locations table if it does not exist.
func (s *SQLStore) InitSchema(ctx context.Context) error {
	if s.db == nil {
		return errors.New("init schema: DB is nil")
	}

	createLocationsQuery := `
	CREATE TABLE IF NOT EXISTS locations (
		id TEXT PRIMARY KEY,
		lat DOUBLE PRECISION NOT NULL,
		lon DOUBLE PRECISION NOT NULL,
		display_name TEXT NOT NULL,
		admin_area TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT '',
		time_zone TEXT NOT NULL DEFAULT '',
		list_index INTEGER NOT NULL,
		is_primary BOOLEAN NOT NULL DEFAULT FALSE,
		last_fetched_at BIGINT NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL
	);
	`

	createIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_locations_list_index ON locations(list_index);
	`

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{createLocationsQuery, createIndexQuery} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit: %w", err)
	}
	return nil
}

// List returns all locations ordered by list index.
func (s *SQLStore) List(ctx context.Context) (_ []tracking.Location, err error) {
	defer common.Time(ctx, "store.List")(&err)

	q := `
	SELECT id, lat, lon, display_name, admin_area, country, time_zone,
		list_index, is_primary, last_fetched_at, created_at
	FROM locations
	ORDER BY list_index, created_at;
	`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	out := make([]tracking.Location, 0)
	for rows.Next() {
		var (
			loc                  tracking.Location
			fetchedAt, createdAt int64
		)
		if err := rows.Scan(
			&loc.ID, &loc.Coordinates.Lat, &loc.Coordinates.Lon, &loc.DisplayName,
			&loc.AdminArea, &loc.Country, &loc.TimeZoneID,
			&loc.ListIndex, &loc.IsPrimary, &fetchedAt, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("list locations: scan: %w", err)
		}
		loc.LastFetchedAt = fromUnix(fetchedAt)
		loc.CreatedAt = fromUnix(createdAt)
		out = append(out, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	return out, nil
}

// Save inserts or replaces a location.
func (s *SQLStore) Save(ctx context.Context, loc tracking.Location) (err error) {
	defer common.Time(ctx, "store.Save")(&err)

	if loc.ID == "" {
		return errors.New("save location: empty id")
	}

	q := `
	INSERT INTO locations (id, lat, lon, display_name, admin_area, country, time_zone,
		list_index, is_primary, last_fetched_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		lat = excluded.lat,
		lon = excluded.lon,
		display_name = excluded.display_name,
		admin_area = excluded.admin_area,
		country = excluded.country,
		time_zone = excluded.time_zone,
		list_index = excluded.list_index,
		is_primary = excluded.is_primary,
		last_fetched_at = excluded.last_fetched_at;
	`
	_, err = s.db.ExecContext(ctx, s.rebind(q),
		loc.ID, loc.Coordinates.Lat, loc.Coordinates.Lon, loc.DisplayName,
		loc.AdminArea, loc.Country, loc.TimeZoneID,
		loc.ListIndex, loc.IsPrimary, toUnix(loc.LastFetchedAt), toUnix(loc.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save location %s: %w", loc.ID, err)
	}
	return nil
}

// SaveOrder assigns list index i to ids[i] in one transaction. Unknown ids
// roll the whole update back.
func (s *SQLStore) SaveOrder(ctx context.Context, ids []string) (err error) {
	defer common.Time(ctx, "store.SaveOrder")(&err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save order: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.rebind(`UPDATE locations SET list_index = ? WHERE id = ?`))
	if err != nil {
		return fmt.Errorf("save order: prepare: %w", err)
	}
	defer stmt.Close()

	for i, id := range ids {
		res, err := stmt.ExecContext(ctx, i, id)
		if err != nil {
			return fmt.Errorf("save order: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("save order: %w: %s", ErrNotFound, id)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save order: commit: %w", err)
	}
	return nil
}

// Delete removes a location.
func (s *SQLStore) Delete(ctx context.Context, id string) (err error) {
	defer common.Time(ctx, "store.Delete")(&err)

	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM locations WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete location %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders into $n for PostgreSQL.
func (s *SQLStore) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
