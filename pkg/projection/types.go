// Package projection implements the projection repository core: persisting
// commits into a per-projection-version commit log, reconstructing current
// state by folding commit history on top of snapshots, and resolving which
// version(s) a read or write should target.
package projection

import (
	"strconv"
	"strings"
	"time"
)

// ProjectionName identifies a projection type. Equality is case-insensitive.
type ProjectionName string

// Equal reports whether two projection names refer to the same projection,
// ignoring case.
func (n ProjectionName) Equal(other ProjectionName) bool {
	return strings.EqualFold(string(n), string(other))
}

func (n ProjectionName) String() string {
	return string(n)
}

// BlobID is an opaque identifier selecting one instance of a projection.
type BlobID string

// ProjectionStatus is the lifecycle stage of a ProjectionVersion.
type ProjectionStatus string

const (
	StatusNew      ProjectionStatus = "NEW"
	StatusBuilding ProjectionStatus = "BUILDING"
	StatusLive     ProjectionStatus = "LIVE"
	StatusCanceled ProjectionStatus = "CANCELED"
	StatusTimedout ProjectionStatus = "TIMEDOUT"
)

// WriteEligible reports whether commits may be appended to a version in
// this status.
func (s ProjectionStatus) WriteEligible() bool {
	return s == StatusBuilding || s == StatusLive
}

// ReadEligible reports whether a version in this status may serve reads.
func (s ProjectionStatus) ReadEligible() bool {
	return s == StatusLive
}

// ProjectionVersion is one named, hashed, status-tagged generation of a
// projection.
type ProjectionVersion struct {
	Name     ProjectionName
	Status   ProjectionStatus
	Revision int64
	Hash     string
}

// ProjectionVersions is the set of all non-retired versions for a name: at
// most one Live, zero or more Building.
type ProjectionVersions struct {
	Name     ProjectionName
	Live     *ProjectionVersion
	Building []ProjectionVersion
}

// IsEmpty reports whether no live or building version is known.
func (v ProjectionVersions) IsEmpty() bool {
	return v.Live == nil && len(v.Building) == 0
}

// WriteTargets returns every version eligible to receive a fan-out write:
// the live version (if any) plus every building version.
func (v ProjectionVersions) WriteTargets() []ProjectionVersion {
	targets := make([]ProjectionVersion, 0, len(v.Building)+1)
	if v.Live != nil {
		targets = append(targets, *v.Live)
	}
	targets = append(targets, v.Building...)
	return targets
}

// WithVersion returns a copy of v with version upserted into the correct
// slot (Live or Building) by status. A version whose status is neither Live
// nor Building is dropped — it has retired out of the cached set.
func (v ProjectionVersions) WithVersion(version ProjectionVersion) ProjectionVersions {
	next := ProjectionVersions{Name: v.Name}
	if next.Name == "" {
		next.Name = version.Name
	}

	if v.Live != nil && v.Live.Revision != version.Revision {
		next.Live = v.Live
	}
	for _, b := range v.Building {
		if b.Revision != version.Revision {
			next.Building = append(next.Building, b)
		}
	}

	switch version.Status {
	case StatusLive:
		vv := version
		next.Live = &vv
	case StatusBuilding:
		next.Building = append(next.Building, version)
	}

	return next
}

// EventOrigin is a globally addressable pointer to the event that produced
// a commit; it is used as the idempotency key for a ProjectionCommit.
type EventOrigin struct {
	AggregateRootID   string
	AggregateRevision int64
	EventPosition     int64
	Timestamp         time.Time
}

// Key returns the idempotency key derived from this origin: the tuple
// (projectionId, version, eventOrigin) is the true idempotency key, but the
// origin's own contribution is this string.
func (o EventOrigin) Key() string {
	return o.AggregateRootID + "#" + strconv.FormatInt(o.AggregateRevision, 10) + "#" + strconv.FormatInt(o.EventPosition, 10)
}

// ProjectionCommit is the persisted record that a specific event was
// applied to a specific projection instance at a specific version.
type ProjectionCommit struct {
	ProjectionID   BlobID
	Version        ProjectionVersion
	EventType      string
	EventData      []byte
	SnapshotMarker int64
	Origin         EventOrigin
	PersistedAt    time.Time
}

// Snapshot is an opaque serialized projection state captured at a revision
// boundary. The zero value (Revision == 0) is NoSnapshot: returning it is
// the documented way for a SnapshotStore to say "nothing on file yet".
type Snapshot struct {
	ProjectionID   BlobID
	ProjectionName ProjectionName
	State          []byte
	Revision       int64
}

// NoSnapshot is the sentinel zero-value snapshot.
var NoSnapshot = Snapshot{}

// IsNone reports whether this snapshot is the NoSnapshot sentinel.
func (s Snapshot) IsNone() bool {
	return s.Revision == 0
}

// Meta strips the (potentially large) serialized state, leaving the cheap
// metadata.
func (s Snapshot) Meta() SnapshotMeta {
	return SnapshotMeta{
		ProjectionID:   s.ProjectionID,
		ProjectionName: s.ProjectionName,
		Revision:       s.Revision,
	}
}

// SnapshotMeta is a Snapshot without its state payload.
type SnapshotMeta struct {
	ProjectionID   BlobID
	ProjectionName ProjectionName
	Revision       int64
}

// IsNone reports whether this is the NoSnapshot sentinel.
func (m SnapshotMeta) IsNone() bool {
	return m.Revision == 0
}
