package domain

import "context"

// OutgoingEmail is one rendered message addressed to a single recipient.
// At least one of HTML and Text is set.
type OutgoingEmail struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Mailer delivers rendered email. Send honors ctx cancellation.
type Mailer interface {
	Send(ctx context.Context, msg *OutgoingEmail) error
}

// EmailTemplateRenderer renders email content from a named template with the given data.
type EmailTemplateRenderer interface {
	Render(templateName string, data any) (subject, htmlBody, textBody string, err error)
}

// EventNoticeEmailData holds data for the event notice email sent to
// attendees without a push token.
type EventNoticeEmailData struct {
	Email      string
	EventTitle string
	Title      string
	Body       string
}

// EmailService defines the contract for sending domain-level emails.
type EmailService interface {
	SendEventNotice(ctx context.Context, data *EventNoticeEmailData) error
}
