package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/plaenen/projector/pkg/projection"
)

// SnapshotStore is a SQLite-backed projection.SnapshotStore (C4). One row
// per (projection_name, projection_id, version_revision); a newer Save
// overwrites the prior checkpoint for that version, matching the spec's
// one-live-snapshot-per-version checkpointing model.
type SnapshotStore struct {
	db *sql.DB
}

// NewSnapshotStore opens (and, unless disabled, migrates) a SQLite-backed
// SnapshotStore. Pass db.DB() from an existing Store to share one
// database file, or NewSnapshotStore(nil, opts...) to open its own.
func NewSnapshotStore(db *sql.DB, opts ...Option) (*SnapshotStore, error) {
	config := defaultStoreConfig()
	for _, opt := range opts {
		opt(&config)
	}

	if db == nil {
		opened, err := openDB(config)
		if err != nil {
			return nil, err
		}
		db = opened
	}

	s := &SnapshotStore{db: db}
	if config.autoMigrate {
		if err := s.migrate(); err != nil {
			return nil, fmt.Errorf("projection/sqlite: migrating snapshot store: %w", err)
		}
	}
	return s, nil
}

func (s *SnapshotStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS projection_snapshots (
			projection_name  TEXT NOT NULL,
			projection_id    TEXT NOT NULL,
			version_revision INTEGER NOT NULL,
			state            BLOB NOT NULL,
			revision         INTEGER NOT NULL,
			updated_at       INTEGER NOT NULL,
			PRIMARY KEY (projection_name, projection_id, version_revision)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating projection_snapshots schema: %w", err)
	}
	return nil
}

// LoadMeta returns the checkpoint metadata for (name, id, version), or the
// NoSnapshot sentinel meta if nothing has been checkpointed yet.
func (s *SnapshotStore) LoadMeta(ctx context.Context, name projection.ProjectionName, id projection.BlobID, version projection.ProjectionVersion) (projection.SnapshotMeta, error) {
	var revision int64
	err := s.db.QueryRowContext(ctx, `
		SELECT revision FROM projection_snapshots
		WHERE projection_name = ? AND projection_id = ? AND version_revision = ?`,
		name.String(), string(id), version.Revision,
	).Scan(&revision)
	if err == sql.ErrNoRows {
		return projection.SnapshotMeta{}, nil
	}
	if err != nil {
		return projection.SnapshotMeta{}, fmt.Errorf("projection/sqlite: loading snapshot meta: %w", err)
	}
	return projection.SnapshotMeta{ProjectionID: id, ProjectionName: name, Revision: revision}, nil
}

// Load returns the full checkpointed snapshot for (name, id, version), or
// the NoSnapshot sentinel if none exists.
func (s *SnapshotStore) Load(ctx context.Context, name projection.ProjectionName, id projection.BlobID, version projection.ProjectionVersion) (projection.Snapshot, error) {
	var state []byte
	var revision int64
	err := s.db.QueryRowContext(ctx, `
		SELECT state, revision FROM projection_snapshots
		WHERE projection_name = ? AND projection_id = ? AND version_revision = ?`,
		name.String(), string(id), version.Revision,
	).Scan(&state, &revision)
	if err == sql.ErrNoRows {
		return projection.NoSnapshot, nil
	}
	if err != nil {
		return projection.Snapshot{}, fmt.Errorf("projection/sqlite: loading snapshot: %w", err)
	}
	return projection.Snapshot{ProjectionID: id, ProjectionName: name, State: state, Revision: revision}, nil
}

// Save upserts the checkpoint for (snap.ProjectionName, snap.ProjectionID,
// version.Revision).
func (s *SnapshotStore) Save(ctx context.Context, snap projection.Snapshot, version projection.ProjectionVersion) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projection_snapshots (projection_name, projection_id, version_revision, state, revision, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (projection_name, projection_id, version_revision)
		DO UPDATE SET state = excluded.state, revision = excluded.revision, updated_at = excluded.updated_at`,
		snap.ProjectionName.String(), string(snap.ProjectionID), version.Revision, snap.State, snap.Revision, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("projection/sqlite: saving snapshot: %w", err)
	}
	return nil
}

// Close releases the underlying database connection.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}
