package sqlite_test

import (
	"context"
	"testing"

	"github.com/plaenen/projector/pkg/projection"
	projsqlite "github.com/plaenen/projector/pkg/projection/sqlite"
)

func newTestStore(t *testing.T, pageSize int) *projsqlite.Store {
	t.Helper()
	store, err := projsqlite.NewStore(pageSize, projsqlite.WithMemoryDatabase(), projsqlite.WithWALMode(false))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testVersion() projection.ProjectionVersion {
	return projection.ProjectionVersion{Name: "test.Counter", Status: projection.StatusLive, Revision: 1}
}

func TestStoreSaveAndLoadPages(t *testing.T) {
	store := newTestStore(t, 2)
	ctx := context.Background()
	version := testVersion()

	for i := 0; i < 3; i++ {
		commit := projection.ProjectionCommit{
			ProjectionID: "acct-1",
			Version:      version,
			EventType:    "test.Incremented",
			EventData:    []byte("{}"),
			Origin:       projection.EventOrigin{AggregateRootID: "acct-1", EventPosition: int64(i)},
		}
		if err := store.Save(ctx, commit); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	first, err := store.Load(ctx, version, "acct-1", 1)
	if err != nil {
		t.Fatalf("Load marker 1: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected a full page of 2, got %d", len(first))
	}

	second, err := store.Load(ctx, version, "acct-1", 2)
	if err != nil {
		t.Fatalf("Load marker 2: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("expected a short final page of 1, got %d", len(second))
	}

	third, err := store.Load(ctx, version, "acct-1", 3)
	if err != nil {
		t.Fatalf("Load marker 3: %v", err)
	}
	if len(third) != 0 {
		t.Fatalf("expected an empty page past the end of the log, got %d", len(third))
	}
}

func TestStoreSaveIsIdempotentByOrigin(t *testing.T) {
	store := newTestStore(t, 10)
	ctx := context.Background()
	version := testVersion()

	commit := projection.ProjectionCommit{
		ProjectionID: "acct-1",
		Version:      version,
		EventType:    "test.Incremented",
		EventData:    []byte("{}"),
		Origin:       projection.EventOrigin{AggregateRootID: "acct-1", AggregateRevision: 1, EventPosition: 0},
	}
	if err := store.Save(ctx, commit); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	if err := store.Save(ctx, commit); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	page, err := store.Load(ctx, version, "acct-1", 1)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(page) != 1 {
		t.Fatalf("expected the duplicate commit to be ignored, got %d rows", len(page))
	}
}

func TestSnapshotStoreSaveAndLoad(t *testing.T) {
	store := newTestStore(t, 10)
	snapshots, err := projsqlite.NewSnapshotStore(store.DB())
	if err != nil {
		t.Fatalf("NewSnapshotStore: %v", err)
	}

	ctx := context.Background()
	version := testVersion()

	meta, err := snapshots.LoadMeta(ctx, "test.Counter", "acct-1", version)
	if err != nil {
		t.Fatalf("LoadMeta: %v", err)
	}
	if !meta.IsNone() {
		t.Fatalf("expected no snapshot yet, got %+v", meta)
	}

	snap := projection.Snapshot{ProjectionID: "acct-1", ProjectionName: "test.Counter", State: []byte(`{"Count":7}`), Revision: 1}
	if err := snapshots.Save(ctx, snap, version); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := snapshots.Load(ctx, "test.Counter", "acct-1", version)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Revision != 1 || string(loaded.State) != `{"Count":7}` {
		t.Fatalf("unexpected snapshot loaded: %+v", loaded)
	}

	// A second Save overwrites the checkpoint for the same version.
	snap.State = []byte(`{"Count":9}`)
	snap.Revision = 2
	if err := snapshots.Save(ctx, snap, version); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	loaded, err = snapshots.Load(ctx, "test.Counter", "acct-1", version)
	if err != nil {
		t.Fatalf("Load after overwrite: %v", err)
	}
	if loaded.Revision != 2 || string(loaded.State) != `{"Count":9}` {
		t.Fatalf("expected overwritten snapshot, got %+v", loaded)
	}
}
