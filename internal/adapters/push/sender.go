package push

import (
	"context"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"campusattend/internal/domain"
)

// OutboxStream is the Redis stream the push gateway consumes.
const OutboxStream = "push:outbox"

// Config holds configuration for creating a push sender.
type Config struct {
	Provider string
	Stream   string
	// MaxLen caps the outbox stream length (approximate trim). Zero disables trimming.
	MaxLen int64
}

// NewSender creates a push sender. Provider "redis" writes to the outbox
// stream on rdb; "noop", unknown providers, or a nil client only log.
func NewSender(logger *slog.Logger, rdb *redis.Client, config Config) domain.PushSender {
	switch config.Provider {
	case "redis":
		if rdb == nil {
			logger.Warn("redis push provider requested without REDIS_ADDR, using noop")
			return &noopSender{logger: logger}
		}
		stream := config.Stream
		if stream == "" {
			stream = OutboxStream
		}
		return &outboxSender{logger: logger, rdb: rdb, stream: stream, maxLen: config.MaxLen}
	case "noop", "":
		return &noopSender{logger: logger}
	default:
		logger.Warn("unknown push provider, using noop", "provider", config.Provider)
		return &noopSender{logger: logger}
	}
}

type outboxSender struct {
	logger *slog.Logger
	rdb    *redis.Client
	stream string
	maxLen int64
}

// Send appends one stream entry per token. A failed append counts as a
// failed delivery; the error return is reserved for a cancelled context.
func (s *outboxSender) Send(ctx context.Context, msg *domain.PushMessage) (domain.DeliveryReport, error) {
	var report domain.DeliveryReport
	for _, token := range msg.Tokens {
		if strings.TrimSpace(token) == "" {
			report.Failed++
			continue
		}
		values := map[string]any{
			"token": token,
			"title": msg.Title,
			"body":  msg.Body,
		}
		for k, v := range msg.Data {
			values["data."+k] = v
		}
		args := &redis.XAddArgs{Stream: s.stream, Values: values}
		if s.maxLen > 0 {
			args.MaxLen = s.maxLen
			args.Approx = true
		}
		if err := s.rdb.XAdd(ctx, args).Err(); err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			s.logger.Warn("push enqueue failed", "stream", s.stream, "err", err)
			report.Failed++
			continue
		}
		report.Sent++
	}
	s.logger.Debug("push messages enqueued", "stream", s.stream, "sent", report.Sent, "failed", report.Failed)
	return report, nil
}

type noopSender struct {
	logger *slog.Logger
}

func (n *noopSender) Send(_ context.Context, msg *domain.PushMessage) (domain.DeliveryReport, error) {
	n.logger.Info("push would be sent (noop)", "recipients", len(msg.Tokens), "title", msg.Title)
	return domain.DeliveryReport{Sent: len(msg.Tokens)}, nil
}
