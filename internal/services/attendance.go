package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"campusattend/internal/clock"
	"campusattend/internal/domain"
	"campusattend/internal/resilience"
)

// OfflineGate decides whether a mutation is applied now or queued for replay.
type OfflineGate interface {
	Online() bool
	Enqueue(ctx context.Context, opType domain.PendingOperationType, payload domain.PendingPayload) (*domain.PendingOperation, error)
}

// AttendanceStore keeps the live replica of upcoming events and routes every
// backing-store call through the retry layer.
type AttendanceStore struct {
	repo           domain.EventRepository
	retrier        *resilience.Retrier
	gate           OfflineGate
	clock          clock.Clock
	logger         *slog.Logger
	contextTimeout time.Duration

	mu     sync.RWMutex
	events []*domain.Event
	subs   map[chan []*domain.Event]struct{}
}

var _ domain.AttendanceStore = (*AttendanceStore)(nil)

// NewAttendanceStore returns a store with an empty replica. gate may be nil,
// in which case mutations are always attempted directly. Call Run to start
// the live subscription.
func NewAttendanceStore(repo domain.EventRepository, retrier *resilience.Retrier, gate OfflineGate, c clock.Clock, logger *slog.Logger, timeout time.Duration) *AttendanceStore {
	return &AttendanceStore{
		repo:           repo,
		retrier:        retrier,
		gate:           gate,
		clock:          c,
		logger:         logger,
		contextTimeout: timeout,
		events:         []*domain.Event{},
		subs:           make(map[chan []*domain.Event]struct{}),
	}
}

// Run keeps the replica fed from the backing store's live query until ctx is
// done. A subscription error replaces the replica with an empty list rather
// than keeping stale data; the subscription is then re-established with backoff.
func (s *AttendanceStore) Run(ctx context.Context) {
	cfg := s.retrier.Config()
	for attempt := 0; ; attempt++ {
		sub, err := s.repo.WatchUpcoming(ctx)
		if err != nil {
			s.failOpen(ctx, err)
		} else {
			if s.consume(ctx, sub) {
				attempt = 0
			}
			_ = sub.Close()
		}
		if ctx.Err() != nil {
			return
		}
		if err := s.clock.Sleep(ctx, cfg.Backoff(attempt, 0)); err != nil {
			return
		}
	}
}

// consume applies snapshots until the subscription fails or ends. It reports
// whether at least one good snapshot arrived.
func (s *AttendanceStore) consume(ctx context.Context, sub domain.Subscription) bool {
	healthy := false
	for {
		select {
		case <-ctx.Done():
			return healthy
		case snap, ok := <-sub.Updates():
			if !ok {
				return healthy
			}
			if snap.Err != nil {
				s.failOpen(ctx, snap.Err)
				return healthy
			}
			healthy = true
			s.setEvents(snap.Events)
		}
	}
}

func (s *AttendanceStore) failOpen(ctx context.Context, err error) {
	classified := resilience.Classify(err)
	s.logger.WarnContext(ctx, "live events subscription failed, serving empty list",
		"operation", "subscribeEvents", "category", string(classified.Category), "code", string(classified.Code), "err", err)
	s.setEvents(nil)
}

func (s *AttendanceStore) setEvents(events []*domain.Event) {
	if events == nil {
		events = []*domain.Event{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = events
	for ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- cloneEvents(events)
	}
}

func cloneEvents(events []*domain.Event) []*domain.Event {
	out := make([]*domain.Event, len(events))
	for i, e := range events {
		out[i] = e.Clone()
	}
	return out
}

// List returns the cached upcoming events, ascending by date. No I/O.
func (s *AttendanceStore) List() []*domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneEvents(s.events)
}

// Subscribe returns a channel that receives the current list immediately and
// every replacement after it. Slow readers only see the latest list.
func (s *AttendanceStore) Subscribe() (<-chan []*domain.Event, func()) {
	ch := make(chan []*domain.Event, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	ch <- cloneEvents(s.events)
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
		})
	}
}

// MyEvents filters the cached list to events userID has RSVP'd to.
func (s *AttendanceStore) MyEvents(userID string) []*domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Event, 0)
	for _, e := range s.events {
		if e.HasRSVP(userID) {
			out = append(out, e.Clone())
		}
	}
	return out
}

func (s *AttendanceStore) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	if strings.TrimSpace(id) == "" {
		return nil, resilience.Classify(fmt.Errorf("event id is required: %w", domain.ErrInvalidInput))
	}
	return resilience.Do(ctx, s.retrier, resilience.OperationContext{Operation: "getEvent", EventID: id},
		withAttemptTimeout(s.contextTimeout, func(ctx context.Context) (*domain.Event, error) {
			return s.repo.GetByID(ctx, id)
		}))
}

// Create inserts a new event with empty RSVP and check-in sets. The id is
// chosen before the first attempt so a retried insert cannot create a duplicate.
func (s *AttendanceStore) Create(ctx context.Context, input domain.EventInput, creatorID string) (*domain.Event, error) {
	if strings.TrimSpace(creatorID) == "" {
		return nil, resilience.Classify(fmt.Errorf("creator id is required: %w", domain.ErrInvalidInput))
	}
	if err := input.Validate(); err != nil {
		return nil, resilience.Classify(err)
	}
	now := s.clock.Now()
	id := uuid.NewString()
	attempts := 0
	opCtx := resilience.OperationContext{Operation: "createEvent", UserID: creatorID, EventID: id}
	return resilience.Do(ctx, s.retrier, opCtx, withAttemptTimeout(s.contextTimeout, func(ctx context.Context) (*domain.Event, error) {
		attempts++
		e := domain.NewEvent(input, creatorID, now, now)
		e.ID = id
		err := s.repo.Create(ctx, e)
		if attempts > 1 && errors.Is(err, domain.ErrAlreadyExists) {
			// An earlier attempt landed before its response was lost.
			return s.repo.GetByID(ctx, id)
		}
		if err != nil {
			return nil, err
		}
		return e, nil
	}))
}

// Update changes scalar fields. Ownership is checked by the caller.
func (s *AttendanceStore) Update(ctx context.Context, id string, upd domain.EventUpdate) (*domain.Event, error) {
	if upd.IsEmpty() {
		return nil, resilience.Classify(fmt.Errorf("no fields to update: %w", domain.ErrInvalidInput))
	}
	if upd.Title != nil && strings.TrimSpace(*upd.Title) == "" {
		return nil, resilience.Classify(fmt.Errorf("title cannot be empty: %w", domain.ErrInvalidInput))
	}
	if upd.Location != nil && strings.TrimSpace(*upd.Location) == "" {
		return nil, resilience.Classify(fmt.Errorf("location cannot be empty: %w", domain.ErrInvalidInput))
	}
	updatedAt := s.clock.Now()
	return resilience.Do(ctx, s.retrier, resilience.OperationContext{Operation: "updateEvent", EventID: id},
		withAttemptTimeout(s.contextTimeout, func(ctx context.Context) (*domain.Event, error) {
			return s.repo.Update(ctx, id, upd, updatedAt)
		}))
}

// Delete removes the event. Ownership is checked by the caller.
func (s *AttendanceStore) Delete(ctx context.Context, id string) error {
	attempts := 0
	return s.retrier.Run(ctx, resilience.OperationContext{Operation: "deleteEvent", EventID: id}, withAttemptDeadline(s.contextTimeout, func(ctx context.Context) error {
		attempts++
		err := s.repo.Delete(ctx, id)
		if attempts > 1 && errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}))
}

func (s *AttendanceStore) AddRSVP(ctx context.Context, userID, eventID string) error {
	return s.mutate(ctx, "addRSVP", domain.OpAddRSVP, userID, eventID, func(ctx context.Context) error {
		return s.repo.AddToSet(ctx, eventID, domain.FieldRSVPs, userID)
	})
}

func (s *AttendanceStore) RemoveRSVP(ctx context.Context, userID, eventID string) error {
	return s.mutate(ctx, "removeRSVP", domain.OpRemoveRSVP, userID, eventID, func(ctx context.Context) error {
		return s.repo.RemoveFromSet(ctx, eventID, domain.FieldRSVPs, userID)
	})
}

// AddCheckIn unions userID into the event's check-in set. The RSVP
// precondition is enforced by the backing store.
func (s *AttendanceStore) AddCheckIn(ctx context.Context, userID, eventID string) error {
	return s.mutate(ctx, "checkIn", domain.OpCheckIn, userID, eventID, func(ctx context.Context) error {
		return s.repo.AddToSet(ctx, eventID, domain.FieldCheckedIn, userID)
	})
}

// mutate runs a set mutation, or queues it when the gate reports offline.
// A queued mutation returns an error wrapping domain.ErrOffline.
func (s *AttendanceStore) mutate(ctx context.Context, operation string, opType domain.PendingOperationType, userID, eventID string, apply func(ctx context.Context) error) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(eventID) == "" {
		return resilience.Classify(fmt.Errorf("user id and event id are required: %w", domain.ErrInvalidInput))
	}
	if s.gate != nil && !s.gate.Online() {
		op, err := s.gate.Enqueue(ctx, opType, domain.PendingPayload{UserID: userID, EventID: eventID})
		if err != nil {
			return resilience.Classify(err)
		}
		return fmt.Errorf("%s queued as %s: %w", operation, op.ID, domain.ErrOffline)
	}
	return s.retrier.Run(ctx, resilience.OperationContext{Operation: operation, UserID: userID, EventID: eventID}, withAttemptDeadline(s.contextTimeout, apply))
}

// Attendance reads the event and projects it for reporting.
func (s *AttendanceStore) Attendance(ctx context.Context, eventID string) (*domain.AttendanceSnapshot, error) {
	e, err := s.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return e.Attendance(), nil
}

// withAttemptTimeout bounds each attempt of op by d. Backoff sleeps between
// attempts are outside the deadline and each retry starts a fresh one.
func withAttemptTimeout[T any](d time.Duration, op func(ctx context.Context) (T, error)) func(ctx context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return op(ctx)
	}
}

func withAttemptDeadline(d time.Duration, op func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return op(ctx)
	}
}
