package projection

import "sync"

// LoadSnapshotFunc is a deferred snapshot loader: the "Deferred(Fn() ->
// Snapshot)" variant from design note §9. It is consumed at most once per
// Stream.
type LoadSnapshotFunc func() (Snapshot, error)

// Stream is the short-lived value `(snapshot, commits...)` that folds into
// current projection state. The empty Stream is distinguished: it folds to
// the projection's zero value without touching I/O.
type Stream struct {
	ProjectionID BlobID
	Commits      []ProjectionCommit

	once      sync.Once
	loadSnap  LoadSnapshotFunc
	snap      Snapshot
	snapErr   error
	eagerSnap bool
}

// EmptyStream is the distinguished empty stream: no commits, no snapshot.
var EmptyStream = Stream{}

// NewEagerStream builds a Stream whose snapshot is already materialized —
// the "Eager(Snapshot)" variant.
func NewEagerStream(id BlobID, commits []ProjectionCommit, snap Snapshot) Stream {
	return Stream{ProjectionID: id, Commits: commits, snap: snap, eagerSnap: true}
}

// NewDeferredStream builds a Stream whose snapshot is loaded lazily: if the
// stream is consumed without ever calling RestoreFromHistory, the snapshot
// I/O is skipped entirely.
func NewDeferredStream(id BlobID, commits []ProjectionCommit, loadSnap LoadSnapshotFunc) Stream {
	return Stream{ProjectionID: id, Commits: commits, loadSnap: loadSnap}
}

// snapshot resolves the stream's snapshot, running the deferred loader at
// most once.
func (s *Stream) snapshot() (Snapshot, error) {
	if s.eagerSnap || s.loadSnap == nil {
		return s.snap, s.snapErr
	}
	s.once.Do(func() {
		s.snap, s.snapErr = s.loadSnap()
	})
	return s.snap, s.snapErr
}

// RestoreFromHistory materializes the snapshot (if any), instantiates the
// projection via def.Zero, applies the snapshot state if present, then
// folds commits in their persisted order. It may be called multiple times
// on the same Stream; each call yields an equal state (idempotent
// construction), because the snapshot is cached after first load and the
// commit order never changes.
func (s *Stream) RestoreFromHistory(def *Definition, decodeState func([]byte) (any, error)) (any, error) {
	state := def.Zero()

	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	if !snap.IsNone() && decodeState != nil {
		decoded, err := decodeState(snap.State)
		if err != nil {
			return nil, err
		}
		state = decoded
	}

	for _, commit := range s.Commits {
		next, err := def.Fold(state, commit.EventType, commit.EventData)
		if err != nil {
			return nil, err
		}
		state = next
	}

	return state, nil
}
