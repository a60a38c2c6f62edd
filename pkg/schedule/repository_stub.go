package schedule

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// RepositoryStub keeps events in memory. It backs the "memory" persistence
// mode and the service and handler tests.
type RepositoryStub struct {
	mu     sync.RWMutex
	items  map[uuid.UUID]Event
	order  []uuid.UUID
	failOn error
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{
		items: make(map[uuid.UUID]Event),
	}
}

func (r *RepositoryStub) WithTransaction(ctx context.Context, fn func(repo Repository) error) error {
	r.mu.Lock()
	originalItems := maps.Clone(r.items)
	originalOrder := slices.Clone(r.order)
	r.mu.Unlock()

	if err := fn(r); err != nil {
		r.mu.Lock()
		r.items = originalItems
		r.order = originalOrder
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *RepositoryStub) StoreEvent(ctx context.Context, event Event) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn != nil {
		return uuid.Nil, r.failOn
	}

	uid := uuid.New()
	event.Payload = Metadata{UID: uid}
	r.items[uid] = event
	r.order = append(r.order, uid)
	return uid, nil
}

func (r *RepositoryStub) GetEvents(ctx context.Context) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.failOn != nil {
		return nil, r.failOn
	}

	result := make([]Event, 0, len(r.order))
	for _, uid := range r.order {
		result = append(result, r.items[uid])
	}
	slices.SortStableFunc(result, func(a, b Event) int {
		return a.StartTime.Compare(b.StartTime)
	})
	return result, nil
}

func (r *RepositoryStub) UpdateEvent(ctx context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn != nil {
		return r.failOn
	}

	if _, exists := r.items[event.Payload.UID]; !exists {
		return fmt.Errorf("update event %s: %w", event.Payload.UID, ErrEventNotFound)
	}
	r.items[event.Payload.UID] = event
	return nil
}

func (r *RepositoryStub) DeleteEvent(ctx context.Context, eventUid uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn != nil {
		return r.failOn
	}

	if _, exists := r.items[eventUid]; !exists {
		return fmt.Errorf("delete event %s: %w", eventUid, ErrEventNotFound)
	}
	delete(r.items, eventUid)
	r.order = slices.DeleteFunc(r.order, func(uid uuid.UUID) bool { return uid == eventUid })
	return nil
}

// Fail makes every following call return err until it is called with nil.
func (r *RepositoryStub) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failOn = err
}

// Get returns the stored version of an event, for test assertions.
func (r *RepositoryStub) Get(uid uuid.UUID) (Event, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.items[uid]
	return e, ok
}

func (r *RepositoryStub) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
