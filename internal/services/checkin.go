package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"campusattend/internal/domain"
)

type checkInService struct {
	codec          domain.TokenCodec
	store          domain.AttendanceStore
	users          domain.UserRepository
	logger         *slog.Logger
	contextTimeout time.Duration
}

// NewCheckInService returns the check-in state machine. Per (event, user) the
// states are not RSVP'd, RSVP'd and checked in; checked in is terminal.
func NewCheckInService(codec domain.TokenCodec, store domain.AttendanceStore, users domain.UserRepository, logger *slog.Logger, timeout time.Duration) domain.CheckInService {
	return &checkInService{
		codec:          codec,
		store:          store,
		users:          users,
		logger:         logger,
		contextTimeout: timeout,
	}
}

// ValidateAndCheckIn decodes a scanned token and checks its holder in. An
// invalid token is a failed outcome and never reaches the store.
func (s *checkInService) ValidateAndCheckIn(ctx context.Context, token string) (*domain.CheckInOutcome, error) {
	res := s.codec.Decode(token)
	if !res.Valid {
		s.logger.InfoContext(ctx, "check-in token rejected", "kind", string(res.Err.Kind), "reason", res.Err.Message)
		return &domain.CheckInOutcome{Success: false, Message: res.Err.Message}, nil
	}
	return s.CheckInUser(ctx, res.Token.UserID, res.Token.EventID)
}

// CheckInUser moves userID to checked in for eventID. Business rejections are
// returned as outcomes; only infrastructure failures are errors.
func (s *checkInService) CheckInUser(ctx context.Context, userID, eventID string) (*domain.CheckInOutcome, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(eventID) == "" {
		return &domain.CheckInOutcome{Success: false, Message: domain.MsgMissingIDs}, nil
	}
	outcome := func(success bool, msg string, name *string) *domain.CheckInOutcome {
		return &domain.CheckInOutcome{Success: success, Message: msg, DisplayName: name, UserID: userID, EventID: eventID}
	}

	event, err := s.store.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return outcome(false, domain.MsgEventNotFound, nil), nil
		}
		return nil, err
	}

	if !event.HasRSVP(userID) {
		return outcome(false, domain.MsgNotRSVPd, nil), nil
	}
	if event.IsCheckedIn(userID) {
		return outcome(false, domain.MsgAlreadyCheckedIn, s.displayName(ctx, userID)), nil
	}

	name := s.displayName(ctx, userID)
	err = s.store.AddCheckIn(ctx, userID, eventID)
	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "user checked in", "user_id", userID, "event_id", eventID)
		return outcome(true, domain.MsgCheckInSuccessful, name), nil
	case errors.Is(err, domain.ErrOffline):
		return outcome(true, domain.MsgCheckInQueued, name), nil
	case errors.Is(err, domain.ErrNotRSVPd):
		// The RSVP was withdrawn between the read and the write.
		return outcome(false, domain.MsgNotRSVPd, nil), nil
	case errors.Is(err, domain.ErrNotFound):
		return outcome(false, domain.MsgEventNotFound, nil), nil
	default:
		return nil, err
	}
}

// displayName resolves the user's name for the organizer's screen. Failures resolve to nil.
func (s *checkInService) displayName(ctx context.Context, userID string) *string {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.logger.DebugContext(ctx, "display name lookup failed", "user_id", userID, "err", err)
		return nil
	}
	name := u.DisplayName()
	if name == "" {
		return nil
	}
	return &name
}
