package services

import (
	"context"
	"fmt"
	"log/slog"

	"campusattend/internal/domain"
)

type emailService struct {
	mailer   domain.Mailer
	renderer domain.EmailTemplateRenderer
	logger   *slog.Logger
}

// NewEmailService returns an EmailService that uses the given Mailer and template renderer.
func NewEmailService(mailer domain.Mailer, renderer domain.EmailTemplateRenderer, logger *slog.Logger) domain.EmailService {
	return &emailService{mailer: mailer, renderer: renderer, logger: logger}
}

// SendEventNotice emails an attendee using the "event_notice" template.
func (s *emailService) SendEventNotice(ctx context.Context, data *domain.EventNoticeEmailData) error {
	if data == nil {
		return fmt.Errorf("event notice data is nil")
	}
	subject, htmlBody, textBody, err := s.renderer.Render("event_notice", data)
	if err != nil {
		return fmt.Errorf("failed to render event_notice template: %w", err)
	}
	msg := &domain.OutgoingEmail{To: data.Email, Subject: subject, HTML: htmlBody, Text: textBody}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send event notice email: %w", err)
	}
	s.logger.InfoContext(ctx, "event notice email sent", "to", data.Email, "event", data.EventTitle)
	return nil
}
