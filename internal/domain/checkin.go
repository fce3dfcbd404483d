package domain

import "context"

// Check-in failure messages returned in CheckInOutcome.Message.
const (
	MsgMissingIDs        = "user id and event id are required"
	MsgEventNotFound     = "event not found"
	MsgNotRSVPd          = "user has not RSVP'd to this event"
	MsgAlreadyCheckedIn  = "user is already checked in"
	MsgCheckInSuccessful = "check-in successful"
	MsgCheckInQueued     = "check-in recorded offline and will sync when back online"
)

// CheckInOutcome is the business result of a check-in attempt. Rejections
// (bad token, not RSVP'd, already checked in) are outcomes, not errors.
// swagger:model CheckInOutcome
type CheckInOutcome struct {
	Success     bool    `json:"success"`
	Message     string  `json:"message"`
	DisplayName *string `json:"display_name,omitempty"`
	UserID      string  `json:"user_id,omitempty"`
	EventID     string  `json:"event_id,omitempty"`
}

// CheckInService drives RSVP'd users to the CheckedIn state.
// The returned error is non-nil only for infrastructure failures that
// survived retries; it carries a user-facing message.
type CheckInService interface {
	ValidateAndCheckIn(ctx context.Context, token string) (*CheckInOutcome, error)
	CheckInUser(ctx context.Context, userID, eventID string) (*CheckInOutcome, error)
}
