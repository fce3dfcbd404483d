package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"campusattend/internal/delivery/http/helpers"
	"campusattend/internal/delivery/http/middleware"
	"campusattend/internal/domain"
)

// testLogger is a no-op logger for controller tests so we don't assert on log output.
var testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

var testDate = time.Date(2026, 10, 1, 18, 0, 0, 0, time.UTC)

// fakeStore implements domain.AttendanceStore for handler tests.
type fakeStore struct {
	mu     sync.Mutex
	events map[string]*domain.Event
	list   []*domain.Event
	subs   chan []*domain.Event

	createErr error
	mutateErr error
	deleted   []string

	lastCreateInput   domain.EventInput
	lastCreateCreator string
	lastUpdate        domain.EventUpdate
	lastRSVPUser      string
	lastRSVPEvent     string
}

func newFakeStore(events ...*domain.Event) *fakeStore {
	s := &fakeStore{events: make(map[string]*domain.Event), subs: make(chan []*domain.Event, 4)}
	for _, e := range events {
		s.events[e.ID] = e
		s.list = append(s.list, e)
	}
	return s
}

func (s *fakeStore) List() []*domain.Event { return s.list }

func (s *fakeStore) Subscribe() (<-chan []*domain.Event, func()) {
	return s.subs, func() {}
}

func (s *fakeStore) MyEvents(userID string) []*domain.Event {
	var out []*domain.Event
	for _, e := range s.list {
		if e.HasRSVP(userID) {
			out = append(out, e)
		}
	}
	return out
}

func (s *fakeStore) GetByID(_ context.Context, id string) (*domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.events[id]; ok {
		return e.Clone(), nil
	}
	return nil, domain.ErrNotFound
}

func (s *fakeStore) Create(_ context.Context, input domain.EventInput, creatorID string) (*domain.Event, error) {
	s.lastCreateInput, s.lastCreateCreator = input, creatorID
	if s.createErr != nil {
		return nil, s.createErr
	}
	e := domain.NewEvent(input, creatorID, testDate, testDate)
	e.ID = "ev-new"
	return e, nil
}

func (s *fakeStore) Update(_ context.Context, id string, upd domain.EventUpdate) (*domain.Event, error) {
	s.lastUpdate = upd
	e, ok := s.events[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := e.Clone()
	upd.Apply(c)
	return c, nil
}

func (s *fakeStore) Delete(_ context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return s.mutateErr
}

func (s *fakeStore) AddRSVP(_ context.Context, userID, eventID string) error {
	s.lastRSVPUser, s.lastRSVPEvent = userID, eventID
	return s.mutateErr
}

func (s *fakeStore) RemoveRSVP(_ context.Context, userID, eventID string) error {
	s.lastRSVPUser, s.lastRSVPEvent = userID, eventID
	return s.mutateErr
}

func (s *fakeStore) AddCheckIn(context.Context, string, string) error { return s.mutateErr }

func (s *fakeStore) Attendance(ctx context.Context, eventID string) (*domain.AttendanceSnapshot, error) {
	e, err := s.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return e.Attendance(), nil
}

// fakeNotifier implements domain.NotificationService.
type fakeNotifier struct {
	calls  []string
	titles []string
	err    error
}

func (n *fakeNotifier) Recipients(context.Context, string) (*domain.RecipientList, error) {
	return &domain.RecipientList{}, nil
}

func (n *fakeNotifier) NotifyAttendees(_ context.Context, eventID, title, _ string) (*domain.DeliveryReport, error) {
	n.calls = append(n.calls, eventID)
	n.titles = append(n.titles, title)
	if n.err != nil {
		return nil, n.err
	}
	return &domain.DeliveryReport{Sent: 3, Failed: 1}, nil
}

func newEvent(id, organizer string, rsvps ...string) *domain.Event {
	e := domain.NewEvent(domain.EventInput{Title: "Event " + id, Date: testDate, Location: "Hall B"}, organizer, testDate, testDate)
	e.ID = id
	e.RSVPs = domain.NewUserSet(rsvps...)
	return e
}

// newRequest builds a request with an optional JSON body, path values and caller.
func newRequest(method, target string, body any, userID string, roles ...string) *http.Request {
	var rdr io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rdr)
	if userID != "" {
		req = req.WithContext(middleware.SetPrincipal(req.Context(), &domain.Principal{UserID: userID, Roles: roles}))
	}
	return req
}

func withPath(req *http.Request, kv ...string) *http.Request {
	for i := 0; i+1 < len(kv); i += 2 {
		req.SetPathValue(kv[i], kv[i+1])
	}
	return req
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder, data any) *helpers.APIError {
	t.Helper()
	var raw struct {
		Data  json.RawMessage   `json:"data"`
		Error *helpers.APIError `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&raw))
	if data != nil && raw.Error == nil {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return raw.Error
}
