// Package sqlite provides SQLite-backed implementations of
// projection.ProjectionStore (C3) and projection.SnapshotStore (C4),
// grounded on the same database/sql + modernc.org/sqlite plumbing and
// functional-options shape the teacher's sqlite event/checkpoint stores
// use, but hand-rolled against raw SQL rather than sqlc-generated queries.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/plaenen/projector/pkg/idgen"
	"github.com/plaenen/projector/pkg/projection"
)

// storeConfig holds internal configuration for Store.
type storeConfig struct {
	dsn          string
	maxOpenConns int
	maxIdleConns int
	walMode      bool
	autoMigrate  bool
}

func defaultStoreConfig() storeConfig {
	return storeConfig{
		dsn:          "projections.db",
		maxOpenConns: 25,
		maxIdleConns: 5,
		walMode:      true,
		autoMigrate:  true,
	}
}

// Option configures a Store or SnapshotStore.
type Option func(*storeConfig)

// WithDSN sets the data source name (file path or ":memory:").
func WithDSN(dsn string) Option {
	return func(c *storeConfig) { c.dsn = dsn }
}

// WithMemoryDatabase uses an in-memory database, useful for tests.
func WithMemoryDatabase() Option {
	return func(c *storeConfig) { c.dsn = ":memory:" }
}

// WithWALMode enables write-ahead logging for better read/write concurrency.
func WithWALMode(enabled bool) Option {
	return func(c *storeConfig) { c.walMode = enabled }
}

// WithAutoMigrate toggles running the embedded schema migration on open.
func WithAutoMigrate(enabled bool) Option {
	return func(c *storeConfig) { c.autoMigrate = enabled }
}

// Store is a SQLite-backed projection.ProjectionStore (C3). Commits are
// ordered by insertion (rowid) within a (projection_name, projection_id,
// version_revision) partition, and Load pages through them OFFSET/LIMIT
// style, consistent with the marker contract FixedPageStrategy expects:
// marker N covers rows [(N-1)*pageSize, N*pageSize).
type Store struct {
	db       *sql.DB
	pageSize int
}

// NewStore opens (and, unless disabled, migrates) a SQLite-backed
// ProjectionStore. pageSize must match the EventsInSnapshot of the
// SnapshotStrategy the caller's Repository uses, since Store has no other
// way to translate a marker into a row offset.
func NewStore(pageSize int, opts ...Option) (*Store, error) {
	if pageSize <= 0 {
		pageSize = 1
	}
	config := defaultStoreConfig()
	for _, opt := range opts {
		opt(&config)
	}

	db, err := openDB(config)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, pageSize: pageSize}
	if config.autoMigrate {
		if err := s.migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("projection/sqlite: migrating commit store: %w", err)
		}
	}
	return s, nil
}

func openDB(config storeConfig) (*sql.DB, error) {
	db, err := sql.Open("sqlite", config.dsn)
	if err != nil {
		return nil, fmt.Errorf("projection/sqlite: opening database: %w", err)
	}
	if config.dsn == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(config.maxOpenConns)
		db.SetMaxIdleConns(config.maxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	if config.walMode && config.dsn != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("projection/sqlite: enabling WAL mode: %w", err)
		}
	}
	return db, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS projection_commits (
			id                      TEXT PRIMARY KEY,
			projection_name         TEXT NOT NULL,
			projection_id           TEXT NOT NULL,
			version_status          TEXT NOT NULL,
			version_revision        INTEGER NOT NULL,
			version_hash            TEXT NOT NULL,
			event_type              TEXT NOT NULL,
			event_data              BLOB NOT NULL,
			snapshot_marker         INTEGER NOT NULL DEFAULT 0,
			origin_key              TEXT NOT NULL,
			origin_aggregate_id     TEXT NOT NULL,
			origin_aggregate_rev    INTEGER NOT NULL,
			origin_event_position   INTEGER NOT NULL,
			origin_timestamp        INTEGER NOT NULL,
			persisted_at            INTEGER NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_projection_commits_idempotency
			ON projection_commits (projection_name, projection_id, version_revision, origin_key);
		CREATE INDEX IF NOT EXISTS idx_projection_commits_paging
			ON projection_commits (projection_name, projection_id, version_revision, id);
	`)
	if err != nil {
		return fmt.Errorf("creating projection_commits schema: %w", err)
	}
	return nil
}

// Save persists one commit. A duplicate (name, id, revision, origin) is
// silently ignored: EventOrigin.Key is the idempotency key, and a replayed
// event retried by an upstream dispatcher must not double-apply.
func (s *Store) Save(ctx context.Context, commit projection.ProjectionCommit) error {
	id := idgen.MustGenerateSortableID()
	origin := commit.Origin

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO projection_commits (
			id, projection_name, projection_id, version_status, version_revision, version_hash,
			event_type, event_data, snapshot_marker,
			origin_key, origin_aggregate_id, origin_aggregate_rev, origin_event_position, origin_timestamp,
			persisted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		commit.Version.Name.String(), string(commit.ProjectionID), string(commit.Version.Status), commit.Version.Revision, commit.Version.Hash,
		commit.EventType, commit.EventData, commit.SnapshotMarker,
		origin.Key(), origin.AggregateRootID, origin.AggregateRevision, origin.EventPosition, origin.Timestamp.UnixNano(),
		time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("projection/sqlite: saving commit: %w", err)
	}
	return nil
}

// Load returns the page of commits at marker for (version, id), ordered by
// insertion, or an empty page once the log is exhausted.
func (s *Store) Load(ctx context.Context, version projection.ProjectionVersion, id projection.BlobID, marker int64) ([]projection.ProjectionCommit, error) {
	if marker < 1 {
		marker = 1
	}
	offset := (marker - 1) * int64(s.pageSize)

	rows, err := s.db.QueryContext(ctx, `
		SELECT event_type, event_data, snapshot_marker,
			origin_aggregate_id, origin_aggregate_rev, origin_event_position, origin_timestamp, persisted_at
		FROM projection_commits
		WHERE projection_name = ? AND projection_id = ? AND version_revision = ?
		ORDER BY rowid
		LIMIT ? OFFSET ?`,
		version.Name.String(), string(id), version.Revision, s.pageSize, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("projection/sqlite: loading commit page: %w", err)
	}
	defer rows.Close()

	var page []projection.ProjectionCommit
	for rows.Next() {
		var c projection.ProjectionCommit
		var originTimestampNanos, persistedAtNanos int64
		c.ProjectionID = id
		c.Version = version
		if err := rows.Scan(&c.EventType, &c.EventData, &c.SnapshotMarker,
			&c.Origin.AggregateRootID, &c.Origin.AggregateRevision, &c.Origin.EventPosition, &originTimestampNanos, &persistedAtNanos); err != nil {
			return nil, fmt.Errorf("projection/sqlite: scanning commit row: %w", err)
		}
		c.Origin.Timestamp = time.Unix(0, originTimestampNanos)
		c.PersistedAt = time.Unix(0, persistedAtNanos)
		page = append(page, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("projection/sqlite: iterating commit page: %w", err)
	}
	return page, nil
}

// DB exposes the underlying connection, e.g. for a SnapshotStore sharing
// the same database file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
