package controllers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"campusattend/internal/delivery/http/helpers"
	"campusattend/internal/delivery/http/middleware"
	"campusattend/internal/domain"
)

// CheckInRequest is the request body for POST /checkins.
type CheckInRequest struct {
	Token string `json:"token"`
}

// Validate implements Validator.
func (c CheckInRequest) Validate() []string {
	if strings.TrimSpace(c.Token) == "" {
		return []string{"token is required"}
	}
	return nil
}

// TokenResponse is the response body for GET /events/{eventID}/token.
type TokenResponse struct {
	Token   string `json:"token"`
	EventID string `json:"event_id"`
	UserID  string `json:"user_id"`
}

// TokenSuccessResponse is the success response envelope for GET /events/{eventID}/token (200).
type TokenSuccessResponse struct {
	Data  TokenResponse     `json:"data"`
	Error *helpers.APIError `json:"error"`
}

// CheckInSuccessResponse is the success response envelope for POST /checkins (200).
type CheckInSuccessResponse struct {
	Data  *domain.CheckInOutcome `json:"data"`
	Error *helpers.APIError      `json:"error"`
}

// MyEventsSuccessResponse is the success response envelope for GET /me/events (200).
type MyEventsSuccessResponse struct {
	Data  ListEventsResponse `json:"data"`
	Error *helpers.APIError  `json:"error"`
}

type AttendanceController struct {
	Logger         *slog.Logger
	Store          domain.AttendanceStore
	Codec          domain.TokenCodec
	CheckInService domain.CheckInService
}

func NewAttendanceController(logger *slog.Logger, store domain.AttendanceStore, codec domain.TokenCodec, checkIn domain.CheckInService) *AttendanceController {
	return &AttendanceController{
		Logger:         logger,
		Store:          store,
		Codec:          codec,
		CheckInService: checkIn,
	}
}

// AddRSVP godoc
// @Summary RSVP to an event
// @Description Adds the caller to the event's RSVP set. Idempotent. Returns 202 when the store is unreachable and the RSVP was queued.
// @Tags attendance
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 204 "No Content"
// @Success 202 {object} helpers.APIResponse "data.queued is true"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 503 {object} helpers.APIResponse "error.code: unavailable"
// @Router /events/{eventID}/rsvp [post]
func (c *AttendanceController) AddRSVP(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	if err := c.Store.AddRSVP(r.Context(), userID, r.PathValue("eventID")); err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveRSVP godoc
// @Summary Withdraw an RSVP
// @Description Removes the caller from the event's RSVP set. Idempotent. A checked-in attendee cannot withdraw.
// @Tags attendance
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 204 "No Content"
// @Success 202 {object} helpers.APIResponse "data.queued is true"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict (already checked in)"
// @Router /events/{eventID}/rsvp [delete]
func (c *AttendanceController) RemoveRSVP(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	if err := c.Store.RemoveRSVP(r.Context(), userID, r.PathValue("eventID")); err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MyEvents godoc
// @Summary List my events
// @Description Returns the upcoming events the caller has RSVP'd to, from the live replica.
// @Tags attendance
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number (default 1)"
// @Param page_size query int false "Page size (default 50, max 200)"
// @Success 200 {object} controllers.MyEventsSuccessResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Router /me/events [get]
func (c *AttendanceController) MyEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	items, meta := helpers.Paginate(c.Store.MyEvents(userID), helpers.ParsePagination(r))
	helpers.WriteJSONSuccess(w, http.StatusOK, ListEventsResponse{Items: items, Pagination: meta})
}

// GetToken godoc
// @Summary Get my check-in token
// @Description Returns the QR payload the caller shows at the door. Requires an RSVP.
// @Tags attendance
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 200 {object} controllers.TokenSuccessResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict (no RSVP)"
// @Router /events/{eventID}/token [get]
func (c *AttendanceController) GetToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	event, err := c.Store.GetByID(r.Context(), r.PathValue("eventID"))
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	if !event.HasRSVP(userID) {
		helpers.WriteJSONError(w, http.StatusConflict, helpers.ErrCodeConflict, domain.MsgNotRSVPd)
		return
	}
	token, err := c.Codec.Encode(userID, event.ID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, TokenResponse{Token: token, EventID: event.ID, UserID: userID})
}

// CheckIn godoc
// @Summary Check in a scanned token
// @Description Validates a scanned QR payload and checks its holder in. Business rejections (bad token, no RSVP, already checked in) are returned as success=false outcomes with 200. Only the event organizer or an admin may scan.
// @Tags attendance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body CheckInRequest true "Scanned token"
// @Success 200 {object} controllers.CheckInSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (not organizer)"
// @Failure 429 {object} helpers.APIResponse "error.code: too_many_requests"
// @Failure 503 {object} helpers.APIResponse "error.code: unavailable"
// @Router /checkins [post]
func (c *AttendanceController) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req CheckInRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}

	// The scanner must organize the event the token names. A token that does
	// not decode is left to the check-in service to report.
	if res := c.Codec.Decode(req.Token); res.Valid && !principal.IsAdmin() {
		event, err := c.Store.GetByID(r.Context(), res.Token.EventID)
		switch {
		case err == nil && event.CreatedBy != principal.UserID:
			helpers.WriteJSONError(w, http.StatusForbidden, helpers.ErrCodeForbidden, "only the organizer can check attendees in")
			return
		case err != nil && !isNotFound(err):
			helpers.WriteServiceError(w, r, c.Logger, err)
			return
		}
	}

	outcome, err := c.CheckInService.ValidateAndCheckIn(r.Context(), req.Token)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, outcome)
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
