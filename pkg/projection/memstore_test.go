package projection_test

import (
	"context"
	"sync"

	"github.com/plaenen/projector/pkg/projection"
)

// memStore is an in-memory ProjectionStore, used only by this package's
// tests, grounded on the same marker-paged Load contract the sqlite
// adapters implement.
type memStore struct {
	mu       sync.Mutex
	commits  map[string][]projection.ProjectionCommit // key: id+version
	pageSize int
}

func newMemStore() *memStore {
	return &memStore{commits: make(map[string][]projection.ProjectionCommit), pageSize: 2}
}

func newMemStoreWithPageSize(pageSize int) *memStore {
	return &memStore{commits: make(map[string][]projection.ProjectionCommit), pageSize: pageSize}
}

func commitKey(id projection.BlobID, v projection.ProjectionVersion) string {
	return string(id) + "#" + v.Name.String() + "#" + itoa(v.Revision)
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (m *memStore) Save(_ context.Context, commit projection.ProjectionCommit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := commitKey(commit.ProjectionID, commit.Version)
	m.commits[key] = append(m.commits[key], commit)
	return nil
}

func (m *memStore) Load(_ context.Context, version projection.ProjectionVersion, id projection.BlobID, marker int64) ([]projection.ProjectionCommit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.commits[commitKey(id, version)]
	pageSize := m.pageSize
	start := int(marker-1) * pageSize
	if start < 0 || start >= len(all) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	page := make([]projection.ProjectionCommit, end-start)
	copy(page, all[start:end])
	return page, nil
}

// memSnapshotStore is an in-memory SnapshotStore.
type memSnapshotStore struct {
	mu    sync.Mutex
	byKey map[string]projection.Snapshot
}

func newMemSnapshotStore() *memSnapshotStore {
	return &memSnapshotStore{byKey: make(map[string]projection.Snapshot)}
}

func snapKey(name projection.ProjectionName, id projection.BlobID, v projection.ProjectionVersion) string {
	return name.String() + "#" + string(id) + "#" + itoa(v.Revision)
}

func (m *memSnapshotStore) LoadMeta(_ context.Context, name projection.ProjectionName, id projection.BlobID, v projection.ProjectionVersion) (projection.SnapshotMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.byKey[snapKey(name, id, v)]
	if !ok {
		return projection.SnapshotMeta{}, nil
	}
	return snap.Meta(), nil
}

func (m *memSnapshotStore) Load(_ context.Context, name projection.ProjectionName, id projection.BlobID, v projection.ProjectionVersion) (projection.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byKey[snapKey(name, id, v)], nil
}

func (m *memSnapshotStore) Save(_ context.Context, snap projection.Snapshot, v projection.ProjectionVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byKey[snapKey(snap.ProjectionName, snap.ProjectionID, v)] = snap
	return nil
}
