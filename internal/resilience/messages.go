package resilience

import "errors"

const networkMessage = "Network error. Please check your connection and try again."

var userMessages = map[Code]string{
	CodeWrongPassword:        "Incorrect password. Please try again.",
	CodeUserNotFound:         "No account found with this email.",
	CodeEmailAlreadyInUse:    "An account with this email already exists.",
	CodeEmailInUse:           "An account with this email already exists.",
	CodeWeakPassword:         "Password should be at least 6 characters.",
	CodeInvalidEmail:         "Please enter a valid email address.",
	CodeNetworkRequestFailed: networkMessage,
	CodeTooManyRequests:      "Too many attempts. Please try again later.",

	CodePermissionDenied:   "You don't have permission to perform this action.",
	CodeUnauthenticated:    "Please sign in to continue.",
	CodeNotFound:           "The requested item could not be found.",
	CodeAlreadyExists:      "This item already exists.",
	CodeUnavailable:        "The service is temporarily unavailable. Please try again.",
	CodeDeadlineExceeded:   "The request took too long. Please try again.",
	CodeResourceExhausted:  "Too many requests. Please try again later.",
	CodeAborted:            "The operation was interrupted. Please try again.",
	CodeInternal:           "Something went wrong on our side. Please try again.",
	CodeInvalidArgument:    "Some of the provided data is invalid.",
	CodeOutOfRange:         "A value is outside the allowed range.",
	CodeFailedPrecondition: "This action can't be performed right now.",
}

// UserMessage returns the fixed sentence for code, or cause's own message
// when the code is unknown.
func UserMessage(code Code, cause error) string {
	if msg, ok := userMessages[code]; ok {
		return msg
	}
	if cause != nil {
		return cause.Error()
	}
	return "An unexpected error occurred."
}

// MessageFor returns the user-facing message for any error.
func MessageFor(err error) string {
	if err == nil {
		return ""
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Message
	}
	return Classify(err).Message
}
