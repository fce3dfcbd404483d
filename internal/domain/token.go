package domain

// TokenFormatVersion is the only verification token format currently issued.
const TokenFormatVersion = "1.0"

// VerificationToken is the payload carried by a check-in QR code. It is
// generated on demand and never persisted.
type VerificationToken struct {
	UserID   string `json:"userId"`
	EventID  string `json:"eventId"`
	IssuedAt int64  `json:"timestamp"`
	Version  string `json:"version"`
}

// TokenErrorKind classifies why a token failed validation.
type TokenErrorKind string

const (
	TokenParseError  TokenErrorKind = "parse_error"
	TokenSchemaError TokenErrorKind = "schema_error"
	TokenTypeError   TokenErrorKind = "type_error"
	TokenClockError  TokenErrorKind = "clock_error"
)

// TokenError describes a rejected token.
type TokenError struct {
	Kind    TokenErrorKind `json:"kind"`
	Message string         `json:"message"`
}

func (e *TokenError) Error() string { return e.Message }

// ValidationResult is the outcome of decoding a token. Token is set only when Valid.
type ValidationResult struct {
	Valid bool               `json:"valid"`
	Token *VerificationToken `json:"token,omitempty"`
	Err   *TokenError        `json:"error,omitempty"`
}

// TokenCodec encodes and validates verification tokens. Implementations are pure.
type TokenCodec interface {
	Encode(userID, eventID string) (string, error)
	Decode(raw string) ValidationResult
}
