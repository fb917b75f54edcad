package projection

import (
	"fmt"
	"sync"
)

// Folder applies one event onto a projection's state and returns the new
// state. Folders are pure: no I/O, no suspension.
type Folder func(state any, eventType string, eventData []byte) (any, error)

// Definition describes one projection type: how to construct its zero
// state, which projection ids an event maps to, and the registry of
// folders keyed by event type. This replaces the source's reflection-based
// dynamic dispatch onto a projection handler (design note §9) with an
// explicit, built-at-startup registry.
type Definition struct {
	Name             ProjectionName
	Zero             func() any
	GetProjectionIDs func(eventType string, eventData []byte) ([]BlobID, error)
	Handlers         map[string]Folder
	Snapshottable    bool
	Fields           []string // used by Hasher to detect shape drift
}

// Fold applies a single event to state using the handler registered for
// its event type. An event type with no registered handler is a no-op,
// matching GenericProjection.Handle's "no handler registered - skip it"
// behavior.
func (d *Definition) Fold(state any, eventType string, eventData []byte) (any, error) {
	handler, ok := d.Handlers[eventType]
	if !ok {
		return state, nil
	}
	return handler(state, eventType, eventData)
}

// HandledEventTypes returns the event types this definition folds, used by
// Hasher to compute the definition's shape hash.
func (d *Definition) HandledEventTypes() []string {
	types := make([]string, 0, len(d.Handlers))
	for t := range d.Handlers {
		types = append(types, t)
	}
	return types
}

// DefinitionBuilder provides a fluent API for assembling a Definition,
// mirroring eventsourcing.GenericProjectionBuilder's On/OnReset/Build shape
// but producing a pure Folder registry instead of a stateful Projection.
type DefinitionBuilder struct {
	def *Definition
}

// NewDefinitionBuilder starts building a Definition for name.
func NewDefinitionBuilder(name ProjectionName, zero func() any) *DefinitionBuilder {
	return &DefinitionBuilder{
		def: &Definition{
			Name:     name,
			Zero:     zero,
			Handlers: make(map[string]Folder),
		},
	}
}

// On registers the folder invoked for eventType.
func (b *DefinitionBuilder) On(eventType string, folder Folder) *DefinitionBuilder {
	b.def.Handlers[eventType] = folder
	return b
}

// WithProjectionIDs registers the function mapping an event to the
// projection instance ids it affects.
func (b *DefinitionBuilder) WithProjectionIDs(fn func(eventType string, eventData []byte) ([]BlobID, error)) *DefinitionBuilder {
	b.def.GetProjectionIDs = fn
	return b
}

// WithFields records the field names used for shape hashing.
func (b *DefinitionBuilder) WithFields(fields ...string) *DefinitionBuilder {
	b.def.Fields = fields
	return b
}

// Snapshottable marks the definition as eligible for checkpointing.
func (b *DefinitionBuilder) Snapshottable(v bool) *DefinitionBuilder {
	b.def.Snapshottable = v
	return b
}

// Build finalizes the Definition.
func (b *DefinitionBuilder) Build() *Definition {
	return b.def
}

// Registry is the set of known Definitions, keyed by projection name. It
// is the "registry of folders" the redesign note calls for, built once at
// startup and shared by every Repository.
type Registry struct {
	mu   sync.RWMutex
	defs map[ProjectionName]*Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[ProjectionName]*Definition)}
}

// Register adds or replaces the Definition for its own name.
func (r *Registry) Register(def *Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Name] = def
}

// Get returns the Definition registered for name.
func (r *Registry) Get(name ProjectionName) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for n, d := range r.defs {
		if n.Equal(name) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("projection: no definition registered for %q", name)
}
