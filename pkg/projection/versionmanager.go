package projection

import (
	"encoding/json"

	"github.com/plaenen/projector/pkg/multitenancy"
)

// EventCodec serializes and deserializes the payloads of the
// version-manager's own events. Serialization is explicitly out of scope
// for the core (spec §1): this is a pluggable external collaborator, not a
// hard-coded wire format. JSONEventCodec is the default, grounded on
// store.SnapshotMetadata's MarshalMetadata/UnmarshalMetadata pattern.
type EventCodec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// JSONEventCodec is the default EventCodec.
type JSONEventCodec struct{}

func (JSONEventCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONEventCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Event type names folded by the version-manager projection.
const (
	EventVersionRegistered    = "projection.VersionRegistered"
	EventVersionStatusChanged = "projection.VersionStatusChanged"
)

// VersionRegisteredPayload is emitted once when a new ProjectionVersion is
// created (status New, about to move to Building or directly to Live for a
// projection's very first version).
type VersionRegisteredPayload struct {
	Name     ProjectionName
	Revision int64
	Hash     string
	Status   ProjectionStatus
}

// VersionStatusChangedPayload is emitted whenever a version transitions
// lifecycle state (e.g. Building -> Live, Live -> Canceled).
type VersionStatusChangedPayload struct {
	Name     ProjectionName
	Revision int64
	Status   ProjectionStatus
}

// versionManagerState is the version-manager projection's own folded
// state: the full ProjectionVersions set it has observed for one name.
type versionManagerState struct {
	versions ProjectionVersions
}

// MarshalJSON encodes the folded ProjectionVersions, so a checkpoint written
// by the default state codec carries them.
func (s versionManagerState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.versions)
}

// UnmarshalJSON restores the ProjectionVersions written by MarshalJSON.
func (s *versionManagerState) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &s.versions)
}

// NewVersionManagerDefinition builds the Definition for the version-manager
// projection itself — "a projection about projections" (spec §4.4). Its
// instance id is (name, tenant); folding its own commit stream for that id
// reconstructs the current ProjectionVersions for name.
func NewVersionManagerDefinition(codec EventCodec) *Definition {
	if codec == nil {
		codec = JSONEventCodec{}
	}

	zero := func() any { return versionManagerState{} }

	registered := func(state any, _ string, data []byte) (any, error) {
		var payload VersionRegisteredPayload
		if err := codec.Decode(data, &payload); err != nil {
			return state, err
		}
		st := state.(versionManagerState)
		st.versions = st.versions.WithVersion(ProjectionVersion{
			Name:     payload.Name,
			Status:   payload.Status,
			Revision: payload.Revision,
			Hash:     payload.Hash,
		})
		if st.versions.Name == "" {
			st.versions.Name = payload.Name
		}
		return st, nil
	}

	statusChanged := func(state any, _ string, data []byte) (any, error) {
		var payload VersionStatusChangedPayload
		if err := codec.Decode(data, &payload); err != nil {
			return state, err
		}
		st := state.(versionManagerState)

		var hash string
		for _, b := range st.versions.Building {
			if b.Revision == payload.Revision {
				hash = b.Hash
			}
		}
		if st.versions.Live != nil && st.versions.Live.Revision == payload.Revision {
			hash = st.versions.Live.Hash
		}

		st.versions = st.versions.WithVersion(ProjectionVersion{
			Name:     payload.Name,
			Status:   payload.Status,
			Revision: payload.Revision,
			Hash:     hash,
		})
		return st, nil
	}

	return NewDefinitionBuilder(VersionManagerName, zero).
		On(EventVersionRegistered, registered).
		On(EventVersionStatusChanged, statusChanged).
		WithFields("versions").
		Snapshottable(true).
		Build()
}

// versionManagerInstanceID computes the version-manager's own projection
// instance id for (name, tenant), per spec §4.4. Composition is delegated
// to multitenancy.ComposeAggregateID so the version manager's own commit
// log keys the same way every other tenant-scoped stream in this module
// does.
func versionManagerInstanceID(name ProjectionName, tenant string) BlobID {
	return BlobID(multitenancy.ComposeAggregateID(tenant, name.String()))
}
