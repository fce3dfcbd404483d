package controllers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"campusattend/internal/delivery/http/helpers"
	"campusattend/internal/delivery/http/middleware"
	"campusattend/internal/domain"
)

// streamHeartbeat keeps idle event streams open through proxies.
const streamHeartbeat = 25 * time.Second

// CreateEventRequest is the request body for POST /events.
type CreateEventRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Location    string    `json:"location"`
}

// Validate implements Validator. Returns error messages for required fields.
func (c CreateEventRequest) Validate() []string {
	var errs []string
	if strings.TrimSpace(c.Title) == "" {
		errs = append(errs, "title is required")
	}
	if c.Date.IsZero() {
		errs = append(errs, "date is required")
	}
	if strings.TrimSpace(c.Location) == "" {
		errs = append(errs, "location is required")
	}
	return errs
}

// UpdateEventRequest is the request body for PATCH /events/{eventID}. All fields optional; omitted fields are unchanged.
type UpdateEventRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Date        *time.Time `json:"date"`
	Location    *string    `json:"location"`
}

// Validate implements Validator.
func (u UpdateEventRequest) Validate() []string {
	var errs []string
	if u.Title == nil && u.Description == nil && u.Date == nil && u.Location == nil {
		errs = append(errs, "at least one field is required")
	}
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		errs = append(errs, "title cannot be empty")
	}
	if u.Location != nil && strings.TrimSpace(*u.Location) == "" {
		errs = append(errs, "location cannot be empty")
	}
	if u.Date != nil && u.Date.IsZero() {
		errs = append(errs, "date cannot be empty")
	}
	return errs
}

// NotifyRequest is the request body for POST /events/{eventID}/notify.
type NotifyRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Validate implements Validator.
func (n NotifyRequest) Validate() []string {
	if strings.TrimSpace(n.Title) == "" {
		return []string{"title is required"}
	}
	return nil
}

// ListEventsResponse is the response body for GET /events.
type ListEventsResponse struct {
	Items      []*domain.Event        `json:"items"`
	Pagination helpers.PaginationMeta `json:"pagination"`
}

// EventSuccessResponse is the success response envelope for single-event endpoints.
type EventSuccessResponse struct {
	Data  *domain.Event     `json:"data"`
	Error *helpers.APIError `json:"error"`
}

// ListEventsSuccessResponse is the success response envelope for GET /events (200).
type ListEventsSuccessResponse struct {
	Data  ListEventsResponse `json:"data"`
	Error *helpers.APIError  `json:"error"`
}

// AttendanceSuccessResponse is the success response envelope for GET /events/{eventID}/attendance (200).
type AttendanceSuccessResponse struct {
	Data  *domain.AttendanceSnapshot `json:"data"`
	Error *helpers.APIError          `json:"error"`
}

// NotifySuccessResponse is the success response envelope for POST /events/{eventID}/notify (200).
type NotifySuccessResponse struct {
	Data  *domain.DeliveryReport `json:"data"`
	Error *helpers.APIError      `json:"error"`
}

type EventController struct {
	Logger   *slog.Logger
	Store    domain.AttendanceStore
	Notifier domain.NotificationService
}

func NewEventController(logger *slog.Logger, store domain.AttendanceStore, notifier domain.NotificationService) *EventController {
	return &EventController{
		Logger:   logger,
		Store:    store,
		Notifier: notifier,
	}
}

// ListEvents godoc
// @Summary List upcoming events
// @Description Returns the live list of upcoming events ordered by date. Served from the in-memory replica; an unreachable store yields an empty list.
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number (default 1)"
// @Param page_size query int false "Page size (default 50, max 200)"
// @Success 200 {object} controllers.ListEventsSuccessResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Router /events [get]
func (c *EventController) ListEvents(w http.ResponseWriter, r *http.Request) {
	items, meta := helpers.Paginate(c.Store.List(), helpers.ParsePagination(r))
	helpers.WriteJSONSuccess(w, http.StatusOK, ListEventsResponse{Items: items, Pagination: meta})
}

// StreamEvents godoc
// @Summary Stream upcoming events
// @Description Server-sent events: an "events" message with the full upcoming list immediately and after every change.
// @Tags events
// @Produce text/event-stream
// @Security BearerAuth
// @Success 200 {array} domain.Event
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Router /events/stream [get]
func (c *EventController) StreamEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	updates, cancel := c.Store.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()
	for seq := 1; ; seq++ {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case events := <-updates:
			payload, err := json.Marshal(events)
			if err != nil {
				c.Logger.ErrorContext(r.Context(), "encode event stream", "err", err)
				return
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: events\ndata: %s\n\n", seq, payload); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// GetEvent godoc
// @Summary Get an event by ID
// @Description Reads the event from the backing store (retried on transient failures).
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 200 {object} controllers.EventSuccessResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 503 {object} helpers.APIResponse "error.code: unavailable"
// @Router /events/{eventID} [get]
func (c *EventController) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := c.Store.GetByID(r.Context(), r.PathValue("eventID"))
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, event)
}

// CreateEvent godoc
// @Summary Create a new event
// @Description Creates an event with empty RSVP and check-in sets. The authenticated user becomes the organizer.
// @Tags events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param event body CreateEventRequest true "Event data"
// @Success 201 {object} controllers.EventSuccessResponse "data contains the created event"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 503 {object} helpers.APIResponse "error.code: unavailable"
// @Router /events [post]
func (c *EventController) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	event, err := c.Store.Create(r.Context(), domain.EventInput{
		Title:       req.Title,
		Description: req.Description,
		Date:        req.Date,
		Location:    req.Location,
	}, userID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, event)
}

// UpdateEvent godoc
// @Summary Update event details
// @Description Updates title, description, date or location. Only the organizer (or an admin) can update. RSVP'd attendees are notified.
// @Tags events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param body body UpdateEventRequest true "Fields to update (all optional)"
// @Success 200 {object} controllers.EventSuccessResponse "data contains the updated event"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (not organizer)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID} [patch]
func (c *EventController) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req UpdateEventRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	event, ok := c.ownedEvent(w, r)
	if !ok {
		return
	}
	updated, err := c.Store.Update(r.Context(), event.ID, domain.EventUpdate{
		Title:       req.Title,
		Description: req.Description,
		Date:        req.Date,
		Location:    req.Location,
	})
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	c.notify(r, updated.ID, "Event updated: "+updated.Title,
		fmt.Sprintf("%s is now on %s at %s.", updated.Title, updated.Date.Format("Mon Jan 2, 15:04 MST"), updated.Location))
	helpers.WriteJSONSuccess(w, http.StatusOK, updated)
}

// DeleteEvent godoc
// @Summary Delete an event
// @Description Deletes the event. Only the organizer (or an admin) can delete. RSVP'd attendees are notified of the cancellation first.
// @Tags events
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 204 "No Content"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (not organizer)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID} [delete]
func (c *EventController) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	event, ok := c.ownedEvent(w, r)
	if !ok {
		return
	}
	c.notify(r, event.ID, "Event cancelled: "+event.Title, event.Title+" has been cancelled.")
	if err := c.Store.Delete(r.Context(), event.ID); err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Attendance godoc
// @Summary Attendance report
// @Description Returns RSVP and check-in counts, the attendance rate and both member lists. Organizer or admin only.
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 200 {object} controllers.AttendanceSuccessResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (not organizer)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID}/attendance [get]
func (c *EventController) Attendance(w http.ResponseWriter, r *http.Request) {
	event, ok := c.ownedEvent(w, r)
	if !ok {
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, event.Attendance())
}

// NotifyAttendees godoc
// @Summary Notify attendees
// @Description Sends a push notification to RSVP'd attendees with a device token and emails the rest. Organizer or admin only; limited by a daily quota.
// @Tags events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param body body NotifyRequest true "Notification content"
// @Success 200 {object} controllers.NotifySuccessResponse "data contains sent and failed counts"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (not organizer)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 429 {object} helpers.APIResponse "error.code: too_many_requests"
// @Router /events/{eventID}/notify [post]
func (c *EventController) NotifyAttendees(w http.ResponseWriter, r *http.Request) {
	var req NotifyRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	event, ok := c.ownedEvent(w, r)
	if !ok {
		return
	}
	report, err := c.Notifier.NotifyAttendees(r.Context(), event.ID, req.Title, req.Body)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, report)
}

// ownedEvent loads the path event and checks the caller organizes it or is an
// admin. On failure it writes the response and returns false.
func (c *EventController) ownedEvent(w http.ResponseWriter, r *http.Request) (*domain.Event, bool) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return nil, false
	}
	event, err := c.Store.GetByID(r.Context(), r.PathValue("eventID"))
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return nil, false
	}
	if event.CreatedBy != principal.UserID && !principal.IsAdmin() {
		helpers.WriteJSONError(w, http.StatusForbidden, helpers.ErrCodeForbidden, "only the organizer can manage this event")
		return nil, false
	}
	return event, true
}

// notify is best effort: a failed notification never fails the request.
func (c *EventController) notify(r *http.Request, eventID, title, body string) {
	if c.Notifier == nil {
		return
	}
	report, err := c.Notifier.NotifyAttendees(r.Context(), eventID, title, body)
	if err != nil {
		c.Logger.WarnContext(r.Context(), "attendee notification failed", "event_id", eventID, "err", err)
		return
	}
	c.Logger.DebugContext(r.Context(), "attendees notified", "event_id", eventID, "sent", report.Sent, "failed", report.Failed)
}
