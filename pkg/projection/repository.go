package projection

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/plaenen/projector/pkg/observability"
)

// MemoryPressureFactor is the threshold from spec §4.6: a page that
// overruns EventsInSnapshot by more than this factor is logged as memory
// pressure, since the strategy's checkpoint cadence is no longer keeping
// up with the commit volume being folded.
const MemoryPressureFactor = 1.5

// Repository is C8, the projection repository core. It composes every
// other component (C1-C7) into Save/SaveVersion/Get, mirroring
// store.BaseRepository's constructor-with-collaborators shape generalized
// from a single aggregate stream to the fan-out-across-versions model this
// spec requires.
type Repository[T any] struct {
	name       ProjectionName
	registry   *Registry
	resolver   *Resolver
	store      ProjectionStore
	snapshots  SnapshotStore
	strategy   SnapshotStrategy
	eventCodec EventCodec
	stateCodec StateCodec
	tracer     trace.Tracer
	metrics    *Metrics
	logger     *slog.Logger
}

// RepositoryOption configures optional Repository collaborators, following
// the functional-options pattern used throughout this module's sqlite
// adapters.
type RepositoryOption[T any] func(*Repository[T])

// WithTracer sets the tracer used to span Save/Get calls.
func WithTracer[T any](tracer trace.Tracer) RepositoryOption[T] {
	return func(r *Repository[T]) { r.tracer = tracer }
}

// WithMetrics attaches OpenTelemetry counters to the repository.
func WithMetrics[T any](metrics *Metrics) RepositoryOption[T] {
	return func(r *Repository[T]) { r.metrics = metrics }
}

// WithLogger overrides the default slog.Logger.
func WithLogger[T any](logger *slog.Logger) RepositoryOption[T] {
	return func(r *Repository[T]) { r.logger = logger }
}

// WithStateCodec overrides the default snapshot state codec.
func WithStateCodec[T any](codec StateCodec) RepositoryOption[T] {
	return func(r *Repository[T]) { r.stateCodec = codec }
}

// NewRepository builds a Repository for the projection named name, backed
// by store, snapshots, registry and resolver. T is the zero/decoded state
// type the caller expects back from Get; the registry's own Definition.Zero
// is the source of truth for construction, T only types the call site.
func NewRepository[T any](
	name ProjectionName,
	registry *Registry,
	resolver *Resolver,
	store ProjectionStore,
	snapshots SnapshotStore,
	strategy SnapshotStrategy,
	opts ...RepositoryOption[T],
) *Repository[T] {
	r := &Repository[T]{
		name:       name,
		registry:   registry,
		resolver:   resolver,
		store:      store,
		snapshots:  snapshots,
		strategy:   strategy,
		eventCodec: JSONEventCodec{},
		stateCodec: jsonStateCodec{},
		tracer:     noop.NewTracerProvider().Tracer("projection"),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Save implements the fan-out write from spec §4.5: the event is applied to
// every write-eligible version (Live plus every Building) for its
// projection's registered instance ids. A failure writing one (id, version)
// pair is logged and isolated; it never rolls back or blocks siblings.
func (r *Repository[T]) Save(ctx context.Context, tenant string, eventType string, eventData []byte, origin EventOrigin) error {
	ctx, span := r.startSpan(ctx, "projection.Save")
	defer func() { observability.EndSpan(span, nil) }()

	def, err := r.registry.Get(r.name)
	if err != nil {
		return newInvalidArgument("no definition registered for %q: %v", r.name, err)
	}

	ids, err := def.GetProjectionIDs(eventType, eventData)
	if err != nil {
		return fmt.Errorf("projection: resolving projection ids: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	versions, err := r.resolver.GetProjectionVersions(ctx, tenant, r.name)
	if err != nil {
		return err
	}

	targets := versions.WriteTargets()
	if len(targets) == 0 {
		r.logger.WarnContext(ctx, "no write-eligible version, commit dropped",
			slog.String("projection", r.name.String()), slog.String("tenant", tenant))
		return nil
	}

	var failures []error
	for _, id := range ids {
		for _, version := range targets {
			if err := r.writeCommit(ctx, id, version, eventType, eventData, origin); err != nil {
				failures = append(failures, err)
				r.logger.ErrorContext(ctx, "projection write failed, isolated from siblings",
					slog.String("projection_id", string(id)),
					slog.Int64("revision", version.Revision),
					slog.Any("error", err))
				r.count(ctx, r.metricOrNil("writeFailures"))
			}
			r.count(ctx, r.metricOrNil("writesTotal"))
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("%w: %d of %d writes failed", ErrWriteFailed, len(failures), len(ids)*len(targets))
	}
	return nil
}

// SaveVersion implements the targeted write from spec §4.5: the caller
// names a specific version explicitly (typically a rebuild worker driving
// one Building version forward). Any mismatch between version and this
// repository's own definition, or a version that is not write-eligible, is
// rejected with InvalidArgument before any I/O is attempted.
func (r *Repository[T]) SaveVersion(ctx context.Context, projectionID BlobID, eventType string, eventData []byte, origin EventOrigin, version ProjectionVersion) error {
	ctx, span := r.startSpan(ctx, "projection.SaveVersion")
	defer func() { observability.EndSpan(span, nil) }()

	if !version.Name.Equal(r.name) {
		return newInvalidArgument("version name %q does not match repository name %q", version.Name, r.name)
	}
	if !version.Status.WriteEligible() {
		return newInvalidArgument("version %d of %q is not write-eligible (status %q)", version.Revision, r.name, version.Status)
	}

	if err := r.writeCommit(ctx, projectionID, version, eventType, eventData, origin); err != nil {
		r.count(ctx, r.metricOrNil("writeFailures"))
		return err
	}
	r.count(ctx, r.metricOrNil("writesTotal"))
	return nil
}

func (r *Repository[T]) writeCommit(ctx context.Context, id BlobID, version ProjectionVersion, eventType string, eventData []byte, origin EventOrigin) error {
	commit := ProjectionCommit{
		ProjectionID: id,
		Version:      version,
		EventType:    eventType,
		EventData:    eventData,
		Origin:       origin,
	}
	if err := r.store.Save(ctx, commit); err != nil {
		return &WriteFailedError{ProjectionID: id, Version: version, Cause: err}
	}
	return nil
}

// Get reconstructs the current state of projection instance id for the
// live version, synchronously. It is the blocking counterpart to GetAsync.
func (r *Repository[T]) Get(ctx context.Context, tenant string, id BlobID) (any, error) {
	return r.GetAsync(ctx, tenant, id)
}

// GetAsync runs the page-and-checkpoint loop from spec §4.6's pseudocode:
// repeatedly load one marker page of commits from C3, fold it onto the
// running state, and checkpoint to C4 whenever the strategy says a page is
// full. The loop terminates when a page comes back short of
// EventsInSnapshot, since that is the only signal (short of an explicit
// count) that the end of the commit log has been reached.
func (r *Repository[T]) GetAsync(ctx context.Context, tenant string, id BlobID) (any, error) {
	ctx, span := r.startSpan(ctx, "projection.Get")
	var retErr error
	defer func() { observability.EndSpan(span, retErr) }()
	r.count(ctx, r.metricOrNil("readsTotal"))

	def, err := r.registry.Get(r.name)
	if err != nil {
		retErr = newInvalidArgument("no definition registered for %q: %v", r.name, err)
		return nil, retErr
	}

	versions, err := r.resolver.GetProjectionVersions(ctx, tenant, r.name)
	if err != nil {
		retErr = &ReadFailedError{ProjectionID: id, Cause: err}
		r.count(ctx, r.metricOrNil("readFailures"))
		return nil, retErr
	}
	if versions.Live == nil {
		// No live version: per spec §4.4, reads return empty stream.
		return def.Zero(), nil
	}

	state, err := r.restoreFromStore(ctx, def, id, *versions.Live)
	if err != nil {
		retErr = &ReadFailedError{ProjectionID: id, Cause: err}
		r.count(ctx, r.metricOrNil("readFailures"))
		return nil, retErr
	}
	return state, nil
}

// loadVersionManager satisfies the streamLoader interface resolver.go
// requires: it replays the version-manager projection's own commit stream
// for (name, tenant) using exactly the same page-and-checkpoint loop as any
// other read (spec §4.4).
func (r *Repository[T]) loadVersionManager(ctx context.Context, tenant string, name ProjectionName) (ProjectionVersions, error) {
	def := NewVersionManagerDefinition(r.eventCodec)
	id := versionManagerInstanceID(name, tenant)

	// The version manager's own projection is, by convention, always Live
	// at revision 0 (it has no lifecycle of its own to resolve).
	vmVersion := ProjectionVersion{Name: VersionManagerName, Status: StatusLive, Revision: 0}

	state, err := r.restoreFromStore(ctx, def, id, vmVersion)
	if err != nil {
		return ProjectionVersions{}, err
	}

	st, ok := state.(versionManagerState)
	if !ok {
		return ProjectionVersions{}, fmt.Errorf("projection: version manager state has unexpected type %T", state)
	}
	if st.versions.Name == "" {
		st.versions.Name = name
	}
	return st.versions, nil
}

// restoreFromStore runs the page-and-checkpoint loop for one (def, id,
// version), consulting snapshots only when def.Snapshottable.
func (r *Repository[T]) restoreFromStore(ctx context.Context, def *Definition, id BlobID, version ProjectionVersion) (any, error) {
	pageSize := r.strategy.EventsInSnapshot()

	var snapMeta SnapshotMeta
	marker := int64(0)
	var baseline Snapshot

	if def.Snapshottable {
		meta, err := r.snapshots.LoadMeta(ctx, def.Name, id, version)
		if err != nil {
			return nil, fmt.Errorf("loading snapshot metadata: %w", err)
		}
		snapMeta = meta
		if !snapMeta.IsNone() {
			marker = snapMeta.Revision
		}
	}

	state := def.Zero()
	if !snapMeta.IsNone() {
		stream := NewDeferredStream(id, nil, func() (Snapshot, error) {
			return r.snapshots.Load(ctx, def.Name, id, version)
		})
		decodeState := func(data []byte) (any, error) { return r.stateCodec.Decode(data, def.Zero) }
		restored, err := stream.RestoreFromHistory(def, decodeState)
		if err != nil {
			return nil, err
		}
		state = restored
		baseline = Snapshot{ProjectionID: id, ProjectionName: def.Name, Revision: snapMeta.Revision}
	}

	for {
		marker++
		page, err := r.store.Load(ctx, version, id, marker)
		if err != nil {
			return nil, fmt.Errorf("loading commit page at marker %d: %w", marker, err)
		}

		for _, commit := range page {
			next, err := def.Fold(state, commit.EventType, commit.EventData)
			if err != nil {
				return nil, fmt.Errorf("folding commit: %w", err)
			}
			state = next
		}

		if len(page) > int(float64(pageSize)*MemoryPressureFactor) {
			r.logger.WarnContext(ctx, "commit page exceeded memory pressure threshold",
				slog.String("projection", def.Name.String()), slog.String("projection_id", string(id)),
				slog.Int("page_size", len(page)), slog.Int("configured_page_size", pageSize))
			r.count(ctx, r.metricOrNil("memoryPressure"))
		}

		if def.Snapshottable && r.strategy.ShouldCreateSnapshot(page, baseline.Revision) {
			newMarker := r.strategy.GetSnapshotMarker(page, baseline.Revision)
			encoded, err := r.stateCodec.Encode(state)
			if err != nil {
				return nil, fmt.Errorf("encoding snapshot state: %w", err)
			}
			snap := Snapshot{ProjectionID: id, ProjectionName: def.Name, State: encoded, Revision: newMarker}
			if err := r.snapshots.Save(ctx, snap, version); err != nil {
				// Checkpointing is an optimization, not a correctness
				// requirement: log and keep serving the fold in memory.
				r.logger.WarnContext(ctx, "snapshot checkpoint failed, continuing without it",
					slog.String("projection", def.Name.String()), slog.Any("error", err))
			} else {
				r.count(ctx, r.metricOrNil("snapshotsCreated"))
			}
			baseline.Revision = newMarker
		}

		if len(page) < pageSize {
			return state, nil
		}
	}
}

func (r *Repository[T]) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return observability.StartSpan(ctx, r.tracer, name)
}

func (r *Repository[T]) count(ctx context.Context, inc func(context.Context)) {
	if inc != nil {
		inc(ctx)
	}
}

func (r *Repository[T]) metricOrNil(which string) func(context.Context) {
	if r.metrics == nil {
		return nil
	}
	switch which {
	case "writesTotal":
		return func(ctx context.Context) { r.metrics.WritesTotal.Add(ctx, 1) }
	case "writeFailures":
		return func(ctx context.Context) { r.metrics.WriteFailures.Add(ctx, 1) }
	case "readsTotal":
		return func(ctx context.Context) { r.metrics.ReadsTotal.Add(ctx, 1) }
	case "readFailures":
		return func(ctx context.Context) { r.metrics.ReadFailures.Add(ctx, 1) }
	case "snapshotsCreated":
		return func(ctx context.Context) { r.metrics.SnapshotsCreated.Add(ctx, 1) }
	case "memoryPressure":
		return func(ctx context.Context) { r.metrics.MemoryPressure.Add(ctx, 1) }
	default:
		return nil
	}
}
