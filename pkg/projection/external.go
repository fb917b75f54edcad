package projection

import "context"

// ProjectionStore is the external, durable commit log (C3). Save is
// idempotent-recommended on (projectionId, version, eventOrigin); Load
// returns commits for one marker page, in insertion order, with a
// short-of-EventsInSnapshot result signaling end-of-log.
type ProjectionStore interface {
	Save(ctx context.Context, commit ProjectionCommit) error
	Load(ctx context.Context, version ProjectionVersion, id BlobID, marker int64) ([]ProjectionCommit, error)
}

// SnapshotStore is the external key-value snapshot backend (C4).
type SnapshotStore interface {
	LoadMeta(ctx context.Context, name ProjectionName, id BlobID, version ProjectionVersion) (SnapshotMeta, error)
	Load(ctx context.Context, name ProjectionName, id BlobID, version ProjectionVersion) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot, version ProjectionVersion) error
}

// StateCodec encodes/decodes a projection's folded state for snapshot
// storage. Like EventCodec, this is a pluggable external collaborator —
// the core never hard-codes a serialization format.
type StateCodec interface {
	Encode(state any) ([]byte, error)
	Decode(data []byte, zero func() any) (any, error)
}
