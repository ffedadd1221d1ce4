// Package store persists the place catalog, saved itineraries and the
// distance cache in SQLite or PostgreSQL.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"itinerary-router/internal/database"
	"itinerary-router/internal/logging"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	DefaultDBFileName = "itinerary.db"
	schemaVersion     = 2
)

// Store is a SQL data store implementing database.DataStore
type Store struct {
	db     *sqlx.DB
	driver string
	mu     sync.RWMutex
	logger *slog.Logger

	locationRepo      database.LocationRepository
	itineraryRepo     database.ItineraryRepository
	distanceCacheRepo database.DistanceCacheRepository
}

// New opens the database for driver ("sqlite" or "postgres") and applies
// the schema. For SQLite, dsn is a file path whose directory is created.
func New(driver, dsn string, logger *slog.Logger) (*Store, error) {
	logger = logging.Component(logger, "store")

	switch driver {
	case DriverSQLite:
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0700); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	logger.Info("opening database", "driver", driver)
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// One connection keeps ":memory:" databases shared and avoids
		// SQLITE_BUSY between writers.
		db.SetMaxOpenConns(1)
		pragmas := []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
			"PRAGMA busy_timeout = 5000",
		}
		for _, pragma := range pragmas {
			if _, err := db.Exec(pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
			}
		}
	}

	s := &Store{db: db, driver: driver, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.locationRepo = &locationRepository{store: s}
	s.itineraryRepo = &itineraryRepository{store: s}
	s.distanceCacheRepo = &distanceCacheRepository{store: s}
	return s, nil
}

func (s *Store) initSchema() error {
	var version int
	if err := s.db.Get(&version, "SELECT version FROM schema_version LIMIT 1"); err == nil {
		if version > schemaVersion {
			return fmt.Errorf("database schema version %d is newer than supported %d", version, schemaVersion)
		}
		if version < schemaVersion {
			return s.migrate(version)
		}
		return nil
	}

	if err := s.execScript(s.dialect(sqliteSchema, postgresSchema)); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if err := s.execScript(s.dialect(sqliteDistanceCache, postgresDistanceCache)); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if _, err := s.db.Exec(s.db.Rebind("INSERT INTO schema_version (version) VALUES (?)"), schemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	s.logger.Info("schema initialized", "version", schemaVersion)
	return nil
}

// migrate upgrades a schema at version from to schemaVersion.
// Version 2 keys the distance cache by travel mode; cached rows are dropped.
func (s *Store) migrate(from int) error {
	if from < 2 {
		if _, err := s.db.Exec("DROP TABLE IF EXISTS distance_cache"); err != nil {
			return fmt.Errorf("failed to drop distance cache: %w", err)
		}
		if err := s.execScript(s.dialect(sqliteDistanceCache, postgresDistanceCache)); err != nil {
			return fmt.Errorf("failed to recreate distance cache: %w", err)
		}
	}
	if _, err := s.db.Exec(s.db.Rebind("UPDATE schema_version SET version = ?"), schemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	s.logger.Info("schema migrated", "from", from, "to", schemaVersion)
	return nil
}

func (s *Store) dialect(sqlite, postgres string) string {
	if s.driver == DriverPostgres {
		return postgres
	}
	return sqlite
}

func (s *Store) execScript(script string) error {
	for _, stmt := range strings.Split(script, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS locations (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	lat REAL NOT NULL,
	lng REAL NOT NULL,
	category TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS itineraries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	route TEXT NOT NULL,
	suggestions TEXT NOT NULL DEFAULT '[]',
	start_lat REAL,
	start_lng REAL,
	end_lat REAL,
	end_lng REAL,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_itineraries_user ON itineraries(user_id, created_at DESC)
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS locations (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	lat DOUBLE PRECISION NOT NULL,
	lng DOUBLE PRECISION NOT NULL,
	category TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS itineraries (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	route TEXT NOT NULL,
	suggestions TEXT NOT NULL DEFAULT '[]',
	start_lat DOUBLE PRECISION,
	start_lng DOUBLE PRECISION,
	end_lat DOUBLE PRECISION,
	end_lng DOUBLE PRECISION,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_itineraries_user ON itineraries(user_id, created_at DESC)
`

const sqliteDistanceCache = `
CREATE TABLE IF NOT EXISTS distance_cache (
	mode TEXT NOT NULL,
	origin_lat REAL NOT NULL,
	origin_lng REAL NOT NULL,
	dest_lat REAL NOT NULL,
	dest_lng REAL NOT NULL,
	distance_meters REAL NOT NULL,
	PRIMARY KEY (mode, origin_lat, origin_lng, dest_lat, dest_lng)
)
`

const postgresDistanceCache = `
CREATE TABLE IF NOT EXISTS distance_cache (
	mode TEXT NOT NULL,
	origin_lat DOUBLE PRECISION NOT NULL,
	origin_lng DOUBLE PRECISION NOT NULL,
	dest_lat DOUBLE PRECISION NOT NULL,
	dest_lng DOUBLE PRECISION NOT NULL,
	distance_meters DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (mode, origin_lat, origin_lng, dest_lat, dest_lng)
)
`

// Close closes the database connection
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if s.driver == DriverSQLite {
		s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}

// HealthCheck verifies the database connection
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Repository accessors
func (s *Store) Locations() database.LocationRepository { return s.locationRepo }

func (s *Store) Itineraries() database.ItineraryRepository { return s.itineraryRepo }

func (s *Store) DistanceCache() database.DistanceCacheRepository { return s.distanceCacheRepo }
