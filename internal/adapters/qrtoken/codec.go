// Package qrtoken encodes and validates the check-in verification token
// embedded in attendee QR codes.
package qrtoken

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"campusattend/internal/clock"
	"campusattend/internal/domain"
)

// Wire field names.
const (
	fieldUserID    = "userId"
	fieldEventID   = "eventId"
	fieldTimestamp = "timestamp"
	fieldVersion   = "version"
)

var requiredFields = []string{fieldUserID, fieldEventID, fieldTimestamp, fieldVersion}

type codec struct {
	clock clock.Clock
}

// NewCodec returns a TokenCodec stamping and checking tokens against c.
func NewCodec(c clock.Clock) domain.TokenCodec {
	return &codec{clock: c}
}

// Encode builds a version 1.0 token issued now and serializes it as JSON.
func (c *codec) Encode(userID, eventID string) (string, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(eventID) == "" {
		return "", fmt.Errorf("%w: user id and event id are required", domain.ErrInvalidInput)
	}
	tok := domain.VerificationToken{
		UserID:   userID,
		EventID:  eventID,
		IssuedAt: c.clock.Now().UnixMilli(),
		Version:  domain.TokenFormatVersion,
	}
	b, err := json.Marshal(tok)
	if err != nil {
		return "", fmt.Errorf("marshal token: %w", err)
	}
	return string(b), nil
}

// Decode parses and validates raw. It never touches any store.
func (c *codec) Decode(raw string) domain.ValidationResult {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return invalid(domain.TokenParseError, "invalid token format: "+err.Error())
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return invalid(domain.TokenParseError, "invalid token format: unexpected data after token")
	}

	var missing []string
	for _, name := range requiredFields {
		if v, ok := fields[name]; !ok || v == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return invalid(domain.TokenSchemaError, "missing required fields: "+strings.Join(missing, ", "))
	}

	userID, okUser := nonEmptyString(fields[fieldUserID])
	eventID, okEvent := nonEmptyString(fields[fieldEventID])
	version, okVersion := nonEmptyString(fields[fieldVersion])
	issuedAt, okTS := millis(fields[fieldTimestamp])
	if !okUser || !okEvent || !okVersion || !okTS {
		return invalid(domain.TokenTypeError, "invalid field types: userId, eventId and version must be non-empty strings and timestamp a number")
	}

	if issuedAt > c.clock.Now().UnixMilli() {
		return invalid(domain.TokenClockError, "token is from the future")
	}

	return domain.ValidationResult{
		Valid: true,
		Token: &domain.VerificationToken{
			UserID:   userID,
			EventID:  eventID,
			IssuedAt: issuedAt,
			Version:  version,
		},
	}
}

func invalid(kind domain.TokenErrorKind, msg string) domain.ValidationResult {
	return domain.ValidationResult{Err: &domain.TokenError{Kind: kind, Message: msg}}
}

func nonEmptyString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// millis reads a JSON number as unix milliseconds. Values above the int64
// range saturate to math.MaxInt64 so they still compare as future; values
// below it are rejected.
func millis(v any) (int64, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	if i, err := n.Int64(); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	switch {
	case math.IsNaN(f), f < math.MinInt64:
		return 0, false
	case f >= math.MaxInt64:
		return math.MaxInt64, true
	}
	return int64(f), true
}
