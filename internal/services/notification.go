package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"campusattend/internal/domain"
	"campusattend/internal/resilience"
)

type notificationService struct {
	store          domain.AttendanceStore
	users          domain.UserRepository
	push           domain.PushSender
	email          domain.EmailService
	retrier        *resilience.Retrier
	logger         *slog.Logger
	contextTimeout time.Duration
}

// NewNotificationService returns a service that notifies an event's RSVP'd
// attendees by push, falling back to email for users without a push token.
func NewNotificationService(store domain.AttendanceStore, users domain.UserRepository, push domain.PushSender, email domain.EmailService, retrier *resilience.Retrier, logger *slog.Logger, timeout time.Duration) domain.NotificationService {
	return &notificationService{
		store:          store,
		users:          users,
		push:           push,
		email:          email,
		retrier:        retrier,
		logger:         logger,
		contextTimeout: timeout,
	}
}

func (s *notificationService) Recipients(ctx context.Context, eventID string) (*domain.RecipientList, error) {
	event, err := s.store.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return s.recipientsFor(ctx, event)
}

func (s *notificationService) recipientsFor(ctx context.Context, event *domain.Event) (*domain.RecipientList, error) {
	list := &domain.RecipientList{PushTokens: []string{}, Emails: []string{}}
	ids := event.RSVPs.Sorted()
	if len(ids) == 0 {
		return list, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()
	users, err := resilience.Do(ctx, s.retrier, resilience.OperationContext{Operation: "listRecipients", EventID: event.ID},
		func(ctx context.Context) ([]*domain.User, error) {
			return s.users.ListByIDs(ctx, ids)
		})
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		switch {
		case strings.TrimSpace(u.PushToken) != "":
			list.PushTokens = append(list.PushTokens, u.PushToken)
		case strings.TrimSpace(u.Email) != "":
			list.Emails = append(list.Emails, u.Email)
		}
	}
	return list, nil
}

// NotifyAttendees delivers title/body to every RSVP'd attendee. Per-recipient
// failures are counted in the report, never returned as errors.
func (s *notificationService) NotifyAttendees(ctx context.Context, eventID, title, body string) (*domain.DeliveryReport, error) {
	if strings.TrimSpace(title) == "" {
		return nil, resilience.Classify(fmt.Errorf("notification title is required: %w", domain.ErrInvalidInput))
	}
	event, err := s.store.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	recipients, err := s.recipientsFor(ctx, event)
	if err != nil {
		return nil, err
	}

	report := &domain.DeliveryReport{}
	if len(recipients.PushTokens) > 0 {
		pushReport, err := s.push.Send(ctx, &domain.PushMessage{
			Tokens: recipients.PushTokens,
			Title:  title,
			Body:   body,
			Data:   map[string]string{"eventId": eventID},
		})
		if err != nil {
			s.logger.WarnContext(ctx, "push delivery failed", "event_id", eventID, "err", err)
			pushReport = domain.DeliveryReport{Failed: len(recipients.PushTokens) - pushReport.Sent, Sent: pushReport.Sent}
		}
		report.Add(pushReport)
	}
	for _, addr := range recipients.Emails {
		err := s.email.SendEventNotice(ctx, &domain.EventNoticeEmailData{
			Email:      addr,
			EventTitle: event.Title,
			Title:      title,
			Body:       body,
		})
		if err != nil {
			s.logger.WarnContext(ctx, "email delivery failed", "event_id", eventID, "to", addr, "err", err)
			report.Failed++
			continue
		}
		report.Sent++
	}

	s.logger.InfoContext(ctx, "attendees notified", "event_id", eventID, "sent", report.Sent, "failed", report.Failed)
	return report, nil
}
