// Package natsdispatch wires a messaging.EventBus subscription into one or
// more projection.Repository instances, fanning each published domain
// event into every repository registered for its event type — the
// real-time half of eventsourcing.ProjectionManager.Start, generalized
// from a single Projection.Handle callback to this module's fan-out
// Repository.Save.
package natsdispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/plaenen/projector/pkg/domain"
	"github.com/plaenen/projector/pkg/messaging"
	"github.com/plaenen/projector/pkg/multitenancy"
	"github.com/plaenen/projector/pkg/projection"
)

// Saver is the subset of projection.Repository[T] the dispatcher needs; any
// Repository[T], regardless of T, satisfies it.
type Saver interface {
	Save(ctx context.Context, tenant string, eventType string, eventData []byte, origin projection.EventOrigin) error
}

// Dispatcher subscribes to a messaging.EventBus and routes every matching
// event to the repositories registered for its event type.
type Dispatcher struct {
	bus    messaging.EventBus
	logger *slog.Logger

	mu       sync.RWMutex
	byEvent  map[string][]Saver
	subs     []messaging.Subscription
	eventSet []string
}

// New creates a Dispatcher over bus. Register projections before calling
// Start: Start subscribes with the event types registered so far (or every
// event type, if none is registered yet), so an event type first registered
// after Start is not delivered by that subscription. Adding a repository for
// an already-subscribed event type takes effect for subsequently delivered
// events.
func New(bus messaging.EventBus, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{bus: bus, logger: logger, byEvent: make(map[string][]Saver)}
}

// Register routes every event in eventTypes to repo.
func (d *Dispatcher) Register(repo Saver, eventTypes ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, et := range eventTypes {
		d.byEvent[et] = append(d.byEvent[et], repo)
		d.eventSet = append(d.eventSet, et)
	}
}

// Start subscribes to the event bus for every event type registered so
// far and begins dispatching. The returned error is from the underlying
// Subscribe call; Start does not block.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.RLock()
	filter := messaging.EventFilter{EventTypes: append([]string(nil), d.eventSet...)}
	d.mu.RUnlock()

	sub, err := d.bus.Subscribe(filter, d.handle(ctx))
	if err != nil {
		return fmt.Errorf("natsdispatch: subscribing: %w", err)
	}

	d.mu.Lock()
	d.subs = append(d.subs, sub)
	d.mu.Unlock()
	return nil
}

// handle builds the messaging.EventHandler that fans one envelope into
// every repository registered for its event type.
func (d *Dispatcher) handle(ctx context.Context) messaging.EventHandler {
	return func(envelope *domain.EventEnvelope) error {
		d.mu.RLock()
		targets := d.byEvent[envelope.EventType]
		d.mu.RUnlock()

		if len(targets) == 0 {
			return nil
		}

		tenant := envelope.Metadata.TenantID
		tenantCtx := multitenancy.WithTenantID(ctx, tenant)
		origin := projection.EventOrigin{
			AggregateRootID:   envelope.AggregateID,
			AggregateRevision: envelope.Version,
			Timestamp:         envelope.Timestamp,
		}

		var failures []error
		for _, repo := range targets {
			if err := repo.Save(tenantCtx, tenant, envelope.EventType, envelope.Data, origin); err != nil {
				failures = append(failures, err)
				d.logger.ErrorContext(ctx, "natsdispatch: projection save failed",
					slog.String("event_type", envelope.EventType),
					slog.String("aggregate_id", envelope.AggregateID),
					slog.Any("error", err))
			}
		}
		if len(failures) > 0 {
			return fmt.Errorf("natsdispatch: %d of %d registered projections failed to save: %w", len(failures), len(targets), failures[0])
		}
		return nil
	}
}

// Close unsubscribes from the event bus. It does not close the underlying
// EventBus, which may be shared by other dispatchers or publishers.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error
	for _, sub := range d.subs {
		if err := sub.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.subs = nil
	return firstErr
}
