package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Event represents a campus event published by an organizer.
// Invariant: CheckedIn is a subset of RSVPs.
// swagger:model Event
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Location    string    `json:"location"`
	CreatedBy   string    `json:"created_by"`
	RSVPs       UserSet   `json:"rsvps"`
	CheckedIn   UserSet   `json:"checked_in"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewEvent returns a new Event with empty membership sets. ID is typically set by the repository on create.
func NewEvent(input EventInput, createdBy string, createdAt, updatedAt time.Time) *Event {
	return &Event{
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Date:        input.Date,
		Location:    strings.TrimSpace(input.Location),
		CreatedBy:   createdBy,
		RSVPs:       NewUserSet(),
		CheckedIn:   NewUserSet(),
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}
}

// Clone returns a deep copy so cached snapshots can be handed out safely.
func (e *Event) Clone() *Event {
	c := *e
	c.RSVPs = e.RSVPs.Clone()
	c.CheckedIn = e.CheckedIn.Clone()
	return &c
}

// HasRSVP reports whether the user has RSVP'd.
func (e *Event) HasRSVP(userID string) bool { return e.RSVPs.Has(userID) }

// IsCheckedIn reports whether the user has been checked in.
func (e *Event) IsCheckedIn(userID string) bool { return e.CheckedIn.Has(userID) }

// Attendance projects the event into a read-only AttendanceSnapshot.
func (e *Event) Attendance() *AttendanceSnapshot {
	rsvps := e.RSVPs.Len()
	checked := e.CheckedIn.Len()
	rate := 0.0
	if rsvps > 0 {
		rate = float64(checked) / float64(rsvps)
	}
	return &AttendanceSnapshot{
		EventID:        e.ID,
		RSVPCount:      rsvps,
		CheckInCount:   checked,
		AttendanceRate: rate,
		RSVPs:          e.RSVPs.Sorted(),
		CheckedIn:      e.CheckedIn.Sorted(),
	}
}

// AttendanceSnapshot is a reporting projection of an Event.
// swagger:model AttendanceSnapshot
type AttendanceSnapshot struct {
	EventID        string   `json:"event_id"`
	RSVPCount      int      `json:"rsvp_count"`
	CheckInCount   int      `json:"check_in_count"`
	AttendanceRate float64  `json:"attendance_rate"`
	RSVPs          []string `json:"rsvps"`
	CheckedIn      []string `json:"checked_in"`
}

// EventInput holds the organizer-supplied fields for a new event.
type EventInput struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Location    string    `json:"location"`
}

// Validate returns ErrInvalidInput when a required field is missing.
func (in EventInput) Validate() error {
	var problems []string
	if strings.TrimSpace(in.Title) == "" {
		problems = append(problems, "title is required")
	}
	if in.Date.IsZero() {
		problems = append(problems, "date is required")
	}
	if strings.TrimSpace(in.Location) == "" {
		problems = append(problems, "location is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

// EventUpdate is a partial update of the scalar fields. Nil fields are left unchanged.
// Concurrent updates are last-writer-wins.
type EventUpdate struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Date        *time.Time `json:"date,omitempty"`
	Location    *string    `json:"location,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u EventUpdate) IsEmpty() bool {
	return u.Title == nil && u.Description == nil && u.Date == nil && u.Location == nil
}

// Apply writes the non-nil fields onto e.
func (u EventUpdate) Apply(e *Event) {
	if u.Title != nil {
		e.Title = strings.TrimSpace(*u.Title)
	}
	if u.Description != nil {
		e.Description = *u.Description
	}
	if u.Date != nil {
		e.Date = *u.Date
	}
	if u.Location != nil {
		e.Location = strings.TrimSpace(*u.Location)
	}
}

// SetField names a set-valued field of an Event.
type SetField string

const (
	FieldRSVPs     SetField = "rsvps"
	FieldCheckedIn SetField = "checkedIn"
)

// EventsSnapshot is one delivery of a live query: the full upcoming result set, or an error.
type EventsSnapshot struct {
	Events []*Event
	Err    error
}

// Subscription is a live, continuously updated query result.
// Close must be called to release it.
type Subscription interface {
	Updates() <-chan EventsSnapshot
	Close() error
}

// EventRepository is the backing-store capability consumed by the engine:
// point reads/writes, atomic set union/remove, and a live query.
type EventRepository interface {
	Create(ctx context.Context, event *Event) error
	GetByID(ctx context.Context, id string) (*Event, error)
	Update(ctx context.Context, id string, upd EventUpdate, updatedAt time.Time) (*Event, error)
	Delete(ctx context.Context, id string) error
	// AddToSet atomically unions userID into field. Returns ErrNotFound if the event is absent.
	AddToSet(ctx context.Context, id string, field SetField, userID string) error
	// RemoveFromSet atomically removes userID from field. Returns ErrNotFound if the event is absent.
	RemoveFromSet(ctx context.Context, id string, field SetField, userID string) error
	// WatchUpcoming streams the events with date >= now, ascending by date.
	WatchUpcoming(ctx context.Context) (Subscription, error)
	Ping(ctx context.Context) error
}

// AttendanceStore holds the live replica of upcoming events and routes every
// remote call through the retry layer.
type AttendanceStore interface {
	List() []*Event
	Subscribe() (<-chan []*Event, func())
	MyEvents(userID string) []*Event
	GetByID(ctx context.Context, id string) (*Event, error)
	Create(ctx context.Context, input EventInput, creatorID string) (*Event, error)
	Update(ctx context.Context, id string, upd EventUpdate) (*Event, error)
	Delete(ctx context.Context, id string) error
	AddRSVP(ctx context.Context, userID, eventID string) error
	RemoveRSVP(ctx context.Context, userID, eventID string) error
	AddCheckIn(ctx context.Context, userID, eventID string) error
	Attendance(ctx context.Context, eventID string) (*AttendanceSnapshot, error)
}
