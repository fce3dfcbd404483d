package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"campusattend/internal/clock"
	"campusattend/internal/domain"
	"campusattend/internal/repository/memory"
	"campusattend/internal/resilience"
)

var (
	testNow    = time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	errDown    = resilience.WithCode(resilience.CodeUnavailable, errors.New("store down"))
)

func newTestRetrier(c clock.Clock) *resilience.Retrier {
	return resilience.NewRetrier(testLogger, resilience.DefaultConfig(),
		resilience.WithClock(c), resilience.WithJitter(func() float64 { return 0 }))
}

// flakyEventRepo wraps an EventRepository and fails calls with queued errors.
type flakyEventRepo struct {
	domain.EventRepository

	mu sync.Mutex
	// errs holds, per method name, errors returned (in order) before delegating.
	errs map[string][]error
	// landFirst makes Create store the event and still fail with the first queued error.
	landFirst bool
	calls     map[string]int
}

func newFlakyEventRepo(inner domain.EventRepository) *flakyEventRepo {
	return &flakyEventRepo{EventRepository: inner, errs: make(map[string][]error), calls: make(map[string]int)}
}

func (f *flakyEventRepo) failNext(method string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[method] = append(f.errs[method], errs...)
}

func (f *flakyEventRepo) next(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	if q := f.errs[method]; len(q) > 0 {
		f.errs[method] = q[1:]
		return q[0]
	}
	return nil
}

func (f *flakyEventRepo) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *flakyEventRepo) Create(ctx context.Context, e *domain.Event) error {
	if err := f.next("Create"); err != nil {
		if f.landFirst {
			_ = f.EventRepository.Create(ctx, e)
		}
		return err
	}
	return f.EventRepository.Create(ctx, e)
}

func (f *flakyEventRepo) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	if err := f.next("GetByID"); err != nil {
		return nil, err
	}
	return f.EventRepository.GetByID(ctx, id)
}

func (f *flakyEventRepo) Delete(ctx context.Context, id string) error {
	if err := f.next("Delete"); err != nil {
		_ = f.EventRepository.Delete(ctx, id)
		return err
	}
	return f.EventRepository.Delete(ctx, id)
}

func (f *flakyEventRepo) AddToSet(ctx context.Context, id string, field domain.SetField, userID string) error {
	if err := f.next("AddToSet"); err != nil {
		return err
	}
	return f.EventRepository.AddToSet(ctx, id, field, userID)
}

func (f *flakyEventRepo) RemoveFromSet(ctx context.Context, id string, field domain.SetField, userID string) error {
	if err := f.next("RemoveFromSet"); err != nil {
		return err
	}
	return f.EventRepository.RemoveFromSet(ctx, id, field, userID)
}

func (f *flakyEventRepo) WatchUpcoming(ctx context.Context) (domain.Subscription, error) {
	if err := f.next("WatchUpcoming"); err != nil {
		return nil, err
	}
	return f.EventRepository.WatchUpcoming(ctx)
}

// storeFixture is an AttendanceStore over an in-memory repository.
type storeFixture struct {
	clock *clock.Fake
	repo  *flakyEventRepo
	users domain.UserRepository
	store *AttendanceStore
}

func newStoreFixture(t *testing.T, gate OfflineGate) *storeFixture {
	t.Helper()
	fake := clock.NewFake(testNow)
	repo := newFlakyEventRepo(memory.NewEventRepository(fake))
	return &storeFixture{
		clock: fake,
		repo:  repo,
		users: memory.NewUserRepository(),
		store: NewAttendanceStore(repo, newTestRetrier(fake), gate, fake, testLogger, time.Second),
	}
}

// seedEvent creates an event starting in d with the given RSVPs and check-ins.
func (f *storeFixture) seedEvent(t *testing.T, title string, d time.Duration, rsvps []string, checkedIn []string) *domain.Event {
	t.Helper()
	ctx := context.Background()
	e := domain.NewEvent(domain.EventInput{Title: title, Date: testNow.Add(d), Location: "Hall B"}, "org-1", testNow, testNow)
	require.NoError(t, f.repo.EventRepository.Create(ctx, e))
	for _, u := range rsvps {
		require.NoError(t, f.repo.EventRepository.AddToSet(ctx, e.ID, domain.FieldRSVPs, u))
	}
	for _, u := range checkedIn {
		require.NoError(t, f.repo.EventRepository.AddToSet(ctx, e.ID, domain.FieldCheckedIn, u))
	}
	got, err := f.repo.EventRepository.GetByID(ctx, e.ID)
	require.NoError(t, err)
	return got
}

func (f *storeFixture) seedUser(t *testing.T, id, name, email, pushToken string) {
	t.Helper()
	u := domain.NewUser(id, email, name, domain.RoleStudent, testNow, testNow)
	u.PushToken = pushToken
	require.NoError(t, f.users.Create(context.Background(), u))
}

// fakeGate is an OfflineGate with a switchable signal.
type fakeGate struct {
	mu      sync.Mutex
	offline bool
	queued  []*domain.PendingOperation
	err     error
}

func (g *fakeGate) Online() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.offline
}

func (g *fakeGate) Enqueue(_ context.Context, opType domain.PendingOperationType, payload domain.PendingPayload) (*domain.PendingOperation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	op := &domain.PendingOperation{ID: "op-" + string(opType), Type: opType, Payload: payload, IssuedAt: testNow}
	g.queued = append(g.queued, op)
	return op, nil
}

func receiveList(t *testing.T, ch <-chan []*domain.Event) []*domain.Event {
	t.Helper()
	select {
	case l := <-ch:
		return l
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event list")
		return nil
	}
}

func eventIDs(events []*domain.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}
