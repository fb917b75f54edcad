package natsdispatch_test

import (
	"context"
	"sync"
	"testing"

	"github.com/plaenen/projector/pkg/domain"
	"github.com/plaenen/projector/pkg/messaging"
	"github.com/plaenen/projector/pkg/multitenancy"
	"github.com/plaenen/projector/pkg/projection"
	"github.com/plaenen/projector/pkg/projection/natsdispatch"
)

// fakeBus is an in-memory messaging.EventBus used only by this test.
type fakeBus struct {
	mu       sync.Mutex
	handlers []messaging.EventHandler
}

func (b *fakeBus) Publish(events []*domain.Event) error {
	b.mu.Lock()
	handlers := append([]messaging.EventHandler(nil), b.handlers...)
	b.mu.Unlock()

	for _, evt := range events {
		envelope := &domain.EventEnvelope{Event: *evt}
		for _, h := range handlers {
			if err := h(envelope); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *fakeBus) Subscribe(_ messaging.EventFilter, handler messaging.EventHandler) (messaging.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
	return &fakeSub{}, nil
}

func (b *fakeBus) Close() error { return nil }

type fakeSub struct{}

func (*fakeSub) Unsubscribe() error { return nil }

type recordingSaver struct {
	mu         sync.Mutex
	calls      int
	lastTenant string
}

func (s *recordingSaver) Save(ctx context.Context, _ string, _ string, _ []byte, _ projection.EventOrigin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastTenant, _ = multitenancy.GetTenantID(ctx)
	return nil
}

func TestDispatcherRoutesRegisteredEventTypes(t *testing.T) {
	bus := &fakeBus{}
	dispatcher := natsdispatch.New(bus, nil)
	saver := &recordingSaver{}
	dispatcher.Register(saver, "test.Incremented")

	if err := dispatcher.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer dispatcher.Close()

	if err := bus.Publish([]*domain.Event{
		{EventType: "test.Incremented", AggregateID: "acct-1"},
		{EventType: "test.Unrelated", AggregateID: "acct-1"},
	}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	saver.mu.Lock()
	defer saver.mu.Unlock()
	if saver.calls != 1 {
		t.Fatalf("expected exactly one save for the registered event type, got %d", saver.calls)
	}
}

func TestDispatcherPropagatesTenantContext(t *testing.T) {
	bus := &fakeBus{}
	dispatcher := natsdispatch.New(bus, nil)
	saver := &recordingSaver{}
	dispatcher.Register(saver, "test.Incremented")

	if err := dispatcher.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer dispatcher.Close()

	if err := bus.Publish([]*domain.Event{
		{
			EventType:   "test.Incremented",
			AggregateID: "acct-1",
			Metadata:    domain.EventMetadata{TenantID: "tenant-a"},
		},
	}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	saver.mu.Lock()
	defer saver.mu.Unlock()
	if saver.lastTenant != "tenant-a" {
		t.Fatalf("expected the dispatcher to propagate the tenant via context, got %q", saver.lastTenant)
	}
}
