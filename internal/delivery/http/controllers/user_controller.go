package controllers

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"campusattend/internal/delivery/http/helpers"
	"campusattend/internal/delivery/http/middleware"
	"campusattend/internal/domain"
)

var emailRegexp = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// RegisterProfileRequest is the request body for POST /me.
type RegisterProfileRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	PushToken string `json:"push_token"`
}

// Validate implements Validator.
func (p RegisterProfileRequest) Validate() []string {
	var errs []string
	email := strings.TrimSpace(strings.ToLower(p.Email))
	if email == "" {
		errs = append(errs, "email is required")
	} else if !emailRegexp.MatchString(email) {
		errs = append(errs, "invalid email format")
	}
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, "name is required")
	}
	return errs
}

// UserSuccessResponse is the success response envelope for the profile endpoints.
type UserSuccessResponse struct {
	Data  *domain.User      `json:"data"`
	Error *helpers.APIError `json:"error"`
}

type UserController struct {
	Logger *slog.Logger
	Users  domain.UserRepository
	Now    func() time.Time
}

func NewUserController(logger *slog.Logger, users domain.UserRepository) *UserController {
	return &UserController{Logger: logger, Users: users, Now: time.Now}
}

// GetMe godoc
// @Summary Get my profile
// @Description Returns the caller's profile, used for the display name shown at check-in.
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} controllers.UserSuccessResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /me [get]
func (c *UserController) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	user, err := c.Users.GetByID(r.Context(), userID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, user)
}

// RegisterMe godoc
// @Summary Register my profile
// @Description Creates the caller's profile with a display name, email and optional push token. Identity comes from the bearer token.
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body RegisterProfileRequest true "Profile"
// @Success 201 {object} controllers.UserSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict"
// @Router /me [post]
func (c *UserController) RegisterMe(w http.ResponseWriter, r *http.Request) {
	var req RegisterProfileRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	role := domain.RoleStudent
	if principal.IsAdmin() {
		role = domain.RoleAdmin
	}
	now := c.Now()
	user := domain.NewUser(principal.UserID, strings.TrimSpace(strings.ToLower(req.Email)), strings.TrimSpace(req.Name), role, now, now)
	user.PushToken = strings.TrimSpace(req.PushToken)
	if err := c.Users.Create(r.Context(), user); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			helpers.WriteJSONError(w, http.StatusConflict, helpers.ErrCodeConflict, "profile already registered")
			return
		}
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, user)
}
