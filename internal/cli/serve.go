package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"campusattend/config"
	"campusattend/internal/adapters/auth"
	"campusattend/internal/adapters/email"
	"campusattend/internal/adapters/push"
	"campusattend/internal/adapters/qrtoken"
	"campusattend/internal/clock"
	deliveryhttp "campusattend/internal/delivery/http"
	"campusattend/internal/delivery/http/controllers"
	"campusattend/internal/delivery/http/middleware"
	"campusattend/internal/domain"
	"campusattend/internal/repository/memory"
	"campusattend/internal/repository/mongostore"
	"campusattend/internal/repository/postgres"
	"campusattend/internal/repository/redisstore"
	"campusattend/internal/resilience"
	"campusattend/internal/services"
)

const shutdownTimeout = 15 * time.Second

// NewServeCommand runs the HTTP API until interrupted.
func NewServeCommand(_ *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "serve",
		Short:        "Run the attendance HTTP API",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}
			logger := config.NewLogger(cfg.Environment)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

// backend is the persistence chosen by STORE_DRIVER.
type backend struct {
	events domain.EventRepository
	users  domain.UserRepository
	close  func()
}

func openBackend(ctx context.Context, cfg *config.Config, clk clock.Clock, logger *slog.Logger) (*backend, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		db, err := sql.Open("postgres", cfg.DBUrl)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		ictx, cancel := context.WithTimeout(ctx, cfg.ContextTimeout)
		defer cancel()
		if err := postgres.EnsureSchema(ictx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		var changes postgres.ChangeSource
		listener, err := postgres.NewListener(cfg.DBUrl, logger)
		if err != nil {
			logger.Warn("postgres LISTEN unavailable, falling back to periodic resync", "err", err)
		} else {
			changes = listener
		}
		return &backend{
			events: postgres.NewEventRepository(db, clk, changes, logger),
			users:  postgres.NewUserRepository(db),
			close: func() {
				if listener != nil {
					_ = listener.Close()
				}
				_ = db.Close()
			},
		}, nil

	case config.StoreMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		db := client.Database(cfg.MongoDatabase)
		ictx, cancel := context.WithTimeout(ctx, cfg.ContextTimeout)
		defer cancel()
		if err := mongostore.EnsureIndexes(ictx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		return &backend{
			events: mongostore.NewEventRepository(db.Collection(mongostore.EventsCollection), clk, logger),
			users:  mongostore.NewUserRepository(db.Collection(mongostore.UsersCollection)),
			close:  func() { _ = client.Disconnect(context.Background()) },
		}, nil

	default:
		logger.Warn("using in-memory store; data is lost on restart")
		return &backend{
			events: memory.NewEventRepository(clk),
			users:  memory.NewUserRepository(),
			close:  func() {},
		}, nil
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	clk := clock.Real()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable at startup", "addr", cfg.RedisAddr, "err", err)
		}
	}

	be, err := openBackend(ctx, cfg, clk, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "open store", err)
	}
	defer be.close()

	retrier := resilience.NewRetrier(logger, resilience.Config{
		MaxRetries:   cfg.Retry.MaxRetries,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		Multiplier:   cfg.Retry.Multiplier,
	})

	var queue domain.PendingQueue = memory.NewPendingQueue()
	if rdb != nil {
		queue = redisstore.NewPendingQueue(rdb, "")
	}
	monitor := services.NewConnectivityMonitor(queue, services.NewPendingReplayer(be.events, retrier), clk, logger)
	store := services.NewAttendanceStore(be.events, retrier, monitor, clk, logger, cfg.ContextTimeout)
	codec := qrtoken.NewCodec(clk)
	checkIn := services.NewCheckInService(codec, store, be.users, logger, cfg.ContextTimeout)

	mailer, err := email.NewMailer(logger, email.MailerConfig{
		Provider:    cfg.EmailProvider,
		FromAddress: cfg.EmailFromAddress,
		FromName:    cfg.EmailFromName,
		SES: email.SESConfig{
			Region:             cfg.AWS.Region,
			AccessKeyID:        cfg.AWS.AccessKeyID,
			SecretAccessKey:    cfg.AWS.SecretAccessKey,
			InsecureSkipVerify: cfg.AWS.InsecureSkipVerify,
		},
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "create mailer", err)
	}
	renderer, err := email.NewTemplateRenderer()
	if err != nil {
		return fmt.Errorf("load email templates: %w", err)
	}
	pushSender := push.NewSender(logger, rdb, push.Config{Provider: cfg.PushProvider, MaxLen: 10000})
	notifier := services.NewNotificationService(store, be.users, pushSender,
		services.NewEmailService(mailer, renderer, logger), retrier, logger, cfg.ContextTimeout)

	reminders, err := services.NewReminderScheduler(store, notifier, clk, cfg.Reminder.Cron, cfg.Reminder.Window, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "schedule reminders", err)
	}

	_, verifier := auth.NewJWTAuthority(cfg.JWTSecret)
	router := deliveryhttp.NewRouter(deliveryhttp.RouterConfig{
		Logger:         logger,
		Verifier:       verifier,
		Events:         controllers.NewEventController(logger, store, notifier),
		Attendance:     controllers.NewAttendanceController(logger, store, codec, checkIn),
		Users:          controllers.NewUserController(logger, be.users),
		Health:         controllers.NewHealthController(logger, monitor),
		CheckInLimiter: middleware.NewUserRateLimiter(cfg.CheckInRateRPS, cfg.CheckInRateBurst),
		Redis:          rdb,
		NotifyQuota:    cfg.NotifyQuota,
	})
	handler := middleware.LoggingMiddleware(logger, middleware.CORS(cfg.AllowedOrigins, router))

	go monitor.Run(ctx, be.events, cfg.ProbeInterval)
	go store.Run(ctx)
	reminders.Start()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr, "store", cfg.StoreDriver, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	reminders.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
