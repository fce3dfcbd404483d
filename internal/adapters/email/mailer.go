package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"campusattend/internal/domain"
)

const utf8Charset = "UTF-8"

var errNoBody = errors.New("email has neither html nor text body")

// SESConfig holds configuration for AWS SES.
type SESConfig struct {
	Region             string
	AccessKeyID        string
	SecretAccessKey    string
	InsecureSkipVerify bool
}

// MailerConfig selects the delivery provider for event notices.
type MailerConfig struct {
	Provider    string
	FromAddress string
	FromName    string
	SES         SESConfig
}

func (c MailerConfig) sender() string {
	if c.FromName == "" {
		return c.FromAddress
	}
	return (&mail.Address{Name: c.FromName, Address: c.FromAddress}).String()
}

type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// NewMailer returns the mailer for config.Provider: "ses" delivers through
// AWS SES, "noop" or empty only logs. Unknown providers fall back to noop.
func NewMailer(logger *slog.Logger, config MailerConfig) (domain.Mailer, error) {
	switch config.Provider {
	case "ses":
		client, err := newSESClient(logger, config.SES)
		if err != nil {
			return nil, err
		}
		return newSESMailer(logger, client, config), nil
	case "noop", "":
		return &noopMailer{logger: logger}, nil
	default:
		logger.Warn("unknown email provider, event notices will only be logged", "provider", config.Provider)
		return &noopMailer{logger: logger}, nil
	}
}

func newSESClient(logger *slog.Logger, cfg SESConfig) (*ses.Client, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("ses mailer: region is required")
	}
	if cfg.InsecureSkipVerify {
		logger.Warn("TLS certificate verification is disabled for SES; use only in development")
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			MinVersion:         tls.VersionTLS12,
		},
	}
	awsCfg := aws.Config{
		Region:     cfg.Region,
		HTTPClient: &http.Client{Transport: transport},
	}
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""))
	}
	return ses.NewFromConfig(awsCfg), nil
}

type sesMailer struct {
	logger *slog.Logger
	client sesAPI
	source string
}

func newSESMailer(logger *slog.Logger, client sesAPI, config MailerConfig) *sesMailer {
	return &sesMailer{logger: logger, client: client, source: config.sender()}
}

func (s *sesMailer) Send(ctx context.Context, msg *domain.OutgoingEmail) error {
	input, err := s.input(msg)
	if err != nil {
		return err
	}
	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send to %s: %w", msg.To, err)
	}
	s.logger.DebugContext(ctx, "event notice delivered", "to", msg.To, "message_id", aws.ToString(out.MessageId))
	return nil
}

func (s *sesMailer) input(msg *domain.OutgoingEmail) (*ses.SendEmailInput, error) {
	if strings.TrimSpace(msg.To) == "" {
		return nil, fmt.Errorf("email recipient is required: %w", domain.ErrInvalidInput)
	}
	if msg.HTML == "" && msg.Text == "" {
		return nil, errNoBody
	}
	return &ses.SendEmailInput{
		Source:      aws.String(s.source),
		Destination: &types.Destination{ToAddresses: []string{msg.To}},
		Message: &types.Message{
			Subject: content(msg.Subject),
			Body: &types.Body{
				Html: content(msg.HTML),
				Text: content(msg.Text),
			},
		},
	}, nil
}

// content wraps s for SES; empty parts are omitted from the message.
func content(s string) *types.Content {
	if s == "" {
		return nil
	}
	return &types.Content{Data: aws.String(s), Charset: aws.String(utf8Charset)}
}

type noopMailer struct {
	logger *slog.Logger
}

func (n *noopMailer) Send(ctx context.Context, msg *domain.OutgoingEmail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.logger.InfoContext(ctx, "event notice not sent, no email provider configured", "to", msg.To, "subject", msg.Subject)
	return nil
}
