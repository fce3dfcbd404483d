package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "campusattend/docs"
	"campusattend/internal/delivery/http/controllers"
	"campusattend/internal/delivery/http/middleware"
	"campusattend/internal/domain"
)

// RouterConfig carries the controllers and guards wired into the router.
type RouterConfig struct {
	Logger   *slog.Logger
	Verifier domain.TokenVerifier

	Events     *controllers.EventController
	Attendance *controllers.AttendanceController
	Users      *controllers.UserController
	Health     *controllers.HealthController

	CheckInLimiter *middleware.UserRateLimiter
	// Redis backs the notify quota; nil disables it.
	Redis       *redis.Client
	NotifyQuota int
}

// NewRouter initializes the HTTP router with all application routes
func NewRouter(cfg RouterConfig) *http.ServeMux {
	mux := http.NewServeMux()
	auth := middleware.RequireAuth(cfg.Verifier, cfg.Logger)
	quota := middleware.Quota(cfg.Redis, middleware.QuotaRule{
		Limit:  cfg.NotifyQuota,
		Window: 24 * time.Hour,
		KeyFn:  middleware.NotifyQuotaKey,
	}, cfg.Logger)
	limit := func(next http.HandlerFunc) http.HandlerFunc { return next }
	if cfg.CheckInLimiter != nil {
		limit = cfg.CheckInLimiter.Limit
	}

	// Events
	mux.HandleFunc("GET /events", auth(cfg.Events.ListEvents))
	mux.HandleFunc("GET /events/stream", auth(cfg.Events.StreamEvents))
	mux.HandleFunc("POST /events", auth(cfg.Events.CreateEvent))
	mux.HandleFunc("GET /events/{eventID}", auth(cfg.Events.GetEvent))
	mux.HandleFunc("PATCH /events/{eventID}", auth(cfg.Events.UpdateEvent))
	mux.HandleFunc("DELETE /events/{eventID}", auth(cfg.Events.DeleteEvent))
	mux.HandleFunc("GET /events/{eventID}/attendance", auth(cfg.Events.Attendance))
	mux.HandleFunc("POST /events/{eventID}/notify", auth(quota(cfg.Events.NotifyAttendees)))

	// Attendance
	mux.HandleFunc("POST /events/{eventID}/rsvp", auth(cfg.Attendance.AddRSVP))
	mux.HandleFunc("DELETE /events/{eventID}/rsvp", auth(cfg.Attendance.RemoveRSVP))
	mux.HandleFunc("GET /events/{eventID}/token", auth(cfg.Attendance.GetToken))
	mux.HandleFunc("GET /me/events", auth(cfg.Attendance.MyEvents))
	mux.HandleFunc("POST /checkins", auth(limit(cfg.Attendance.CheckIn)))

	// Users
	mux.HandleFunc("GET /me", auth(cfg.Users.GetMe))
	mux.HandleFunc("POST /me", auth(cfg.Users.RegisterMe))

	// Health
	mux.HandleFunc("GET /health", cfg.Health.Health)
	mux.HandleFunc("POST /connectivity", auth(middleware.RequireAdmin(cfg.Health.ReportConnectivity)))

	// Swagger
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	return mux
}
