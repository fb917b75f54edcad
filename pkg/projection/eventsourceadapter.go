package projection

import (
	"context"
	"fmt"

	"github.com/plaenen/projector/pkg/domain"
	"github.com/plaenen/projector/pkg/store"
)

// EventStorePageSize bounds a single LoadAllEvents call made by
// EventStoreSource, mirroring the paging a RebuildWorker otherwise does
// against a projection's own commit log.
const EventStorePageSize = 500

// EventStoreSource adapts a store.EventStore into the EventSource
// RebuildWorker replays, so a rebuild can be driven directly from the
// write-side event store instead of a synthetic in-memory source.
type EventStoreSource struct {
	store store.EventStore
}

// NewEventStoreSource wraps es as an EventSource.
func NewEventStoreSource(es store.EventStore) *EventStoreSource {
	return &EventStoreSource{store: es}
}

// ForEach pages through every event in es, in persisted order, starting
// from position 0, invoking fn once per event.
func (s *EventStoreSource) ForEach(ctx context.Context, fn func(HistoricalEvent) error) error {
	position := int64(0)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		events, err := s.store.LoadAllEvents(position, EventStorePageSize)
		if err != nil {
			return fmt.Errorf("projection: loading events from position %d: %w", position, err)
		}
		if len(events) == 0 {
			return nil
		}

		for _, evt := range events {
			if err := fn(toHistoricalEvent(evt, position)); err != nil {
				return err
			}
			position++
		}

		if len(events) < EventStorePageSize {
			return nil
		}
	}
}

func toHistoricalEvent(evt *domain.Event, position int64) HistoricalEvent {
	return HistoricalEvent{
		EventType: evt.EventType,
		EventData: evt.Data,
		Origin: EventOrigin{
			AggregateRootID:   evt.AggregateID,
			AggregateRevision: evt.Version,
			EventPosition:     position,
			Timestamp:         evt.Timestamp,
		},
	}
}
