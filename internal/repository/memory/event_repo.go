// Package memory implements the repositories in process. It backs
// STORE_DRIVER=memory and the service tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"campusattend/internal/clock"
	"campusattend/internal/domain"
	"campusattend/internal/repository/watch"
)

type eventRepository struct {
	mu       sync.RWMutex
	clock    clock.Clock
	events   map[string]*domain.Event
	watchers map[*watch.Feed]struct{}
}

// NewEventRepository returns an empty in-memory event store.
func NewEventRepository(c clock.Clock) domain.EventRepository {
	return &eventRepository{
		clock:    c,
		events:   make(map[string]*domain.Event),
		watchers: make(map[*watch.Feed]struct{}),
	}
}

func (r *eventRepository) Create(_ context.Context, e *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	} else if _, exists := r.events[e.ID]; exists {
		return fmt.Errorf("event %s: %w", e.ID, domain.ErrAlreadyExists)
	}
	if e.RSVPs == nil {
		e.RSVPs = domain.NewUserSet()
	}
	if e.CheckedIn == nil {
		e.CheckedIn = domain.NewUserSet()
	}
	r.events[e.ID] = e.Clone()
	r.broadcastLocked()
	return nil
}

func (r *eventRepository) GetByID(_ context.Context, id string) (*domain.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.events[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e.Clone(), nil
}

func (r *eventRepository) Update(_ context.Context, id string, upd domain.EventUpdate, updatedAt time.Time) (*domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	upd.Apply(e)
	e.UpdatedAt = updatedAt
	r.broadcastLocked()
	return e.Clone(), nil
}

func (r *eventRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.events, id)
	r.broadcastLocked()
	return nil
}

func (r *eventRepository) AddToSet(_ context.Context, id string, field domain.SetField, userID string) error {
	return r.mutateSet(id, field, func(e *domain.Event, set domain.UserSet) (bool, error) {
		if field == domain.FieldCheckedIn && !e.RSVPs.Has(userID) {
			return false, domain.ErrNotRSVPd
		}
		return set.Add(userID), nil
	})
}

func (r *eventRepository) RemoveFromSet(_ context.Context, id string, field domain.SetField, userID string) error {
	return r.mutateSet(id, field, func(e *domain.Event, set domain.UserSet) (bool, error) {
		if field == domain.FieldRSVPs && e.CheckedIn.Has(userID) {
			return false, domain.ErrCheckedIn
		}
		return set.Remove(userID), nil
	})
}

func (r *eventRepository) mutateSet(id string, field domain.SetField, apply func(*domain.Event, domain.UserSet) (bool, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return domain.ErrNotFound
	}
	var set domain.UserSet
	switch field {
	case domain.FieldRSVPs:
		set = e.RSVPs
	case domain.FieldCheckedIn:
		set = e.CheckedIn
	default:
		return fmt.Errorf("unknown set field %q: %w", field, domain.ErrInvalidInput)
	}
	changed, err := apply(e, set)
	if err != nil {
		return err
	}
	if changed {
		e.UpdatedAt = r.clock.Now()
		r.broadcastLocked()
	}
	return nil
}

// WatchUpcoming delivers the current upcoming set immediately and again after every write.
func (r *eventRepository) WatchUpcoming(ctx context.Context) (domain.Subscription, error) {
	var feed *watch.Feed
	feed = watch.NewFeed(func() {
		r.mu.Lock()
		delete(r.watchers, feed)
		r.mu.Unlock()
	})

	r.mu.Lock()
	r.watchers[feed] = struct{}{}
	feed.Publish(domain.EventsSnapshot{Events: r.upcomingLocked()})
	r.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = feed.Close()
		case <-feed.Done():
		}
	}()
	return feed, nil
}

func (r *eventRepository) Ping(_ context.Context) error { return nil }

// broadcastLocked publishes under the write lock so watchers never see snapshots out of order.
func (r *eventRepository) broadcastLocked() {
	for f := range r.watchers {
		f.Publish(domain.EventsSnapshot{Events: r.upcomingLocked()})
	}
}

// upcomingLocked must be called with r.mu held. It returns fresh copies.
func (r *eventRepository) upcomingLocked() []*domain.Event {
	all := make([]*domain.Event, 0, len(r.events))
	for _, e := range r.events {
		all = append(all, e.Clone())
	}
	return watch.Upcoming(all, r.clock.Now())
}
