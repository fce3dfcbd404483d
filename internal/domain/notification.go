package domain

import "context"

// PushMessage is what the engine hands to the external push transport.
type PushMessage struct {
	Tokens []string          `json:"tokens"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

// DeliveryReport counts per-recipient outcomes. Failures are counts, not errors.
// swagger:model DeliveryReport
type DeliveryReport struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Add accumulates other into r.
func (r *DeliveryReport) Add(other DeliveryReport) {
	r.Sent += other.Sent
	r.Failed += other.Failed
}

// PushSender hands a message to the push transport.
type PushSender interface {
	Send(ctx context.Context, msg *PushMessage) (DeliveryReport, error)
}

// RecipientList is the resolved audience of an event notification.
type RecipientList struct {
	PushTokens []string `json:"push_tokens"`
	Emails     []string `json:"emails"`
}

// NotificationService notifies the RSVP'd attendees of an event.
type NotificationService interface {
	Recipients(ctx context.Context, eventID string) (*RecipientList, error)
	NotifyAttendees(ctx context.Context, eventID, title, body string) (*DeliveryReport, error)
}
