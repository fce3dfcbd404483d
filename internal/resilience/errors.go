// Package resilience classifies backing-store and auth failures into a
// closed taxonomy, maps them to user-facing messages, and retries the
// transient ones with exponential backoff.
package resilience

import (
	"context"
	"errors"
	"sort"
	"strings"

	"campusattend/internal/domain"
)

// Kind is the closed set of error variants the rest of the system switches on.
type Kind string

const (
	KindAuth         Kind = "auth"
	KindStore        Kind = "store"
	KindValidation   Kind = "validation"
	KindUnclassified Kind = "unclassified"
)

// Category refines a Kind into the retry taxonomy.
type Category string

const (
	CategoryAuthCredentials Category = "auth/credentials"
	CategoryAuthTransient   Category = "auth/transient"
	CategoryStorePermission Category = "store/permission"
	CategoryStoreNotFound   Category = "store/not-found"
	CategoryStoreTransient  Category = "store/transient"
	CategoryStoreValidation Category = "store/validation"
	CategoryUnclassified    Category = "unclassified"
)

// Kind returns the variant the category belongs to.
func (c Category) Kind() Kind {
	switch c {
	case CategoryAuthCredentials, CategoryAuthTransient:
		return KindAuth
	case CategoryStoreValidation:
		return KindValidation
	case CategoryStorePermission, CategoryStoreNotFound, CategoryStoreTransient:
		return KindStore
	default:
		return KindUnclassified
	}
}

// Retryable reports whether errors in this category are worth retrying.
func (c Category) Retryable() bool {
	return c == CategoryAuthTransient || c == CategoryStoreTransient
}

// Code is a structured error code reported by the auth provider or the store.
type Code string

const (
	CodeWrongPassword        Code = "wrong-password"
	CodeUserNotFound         Code = "user-not-found"
	CodeEmailAlreadyInUse    Code = "email-already-in-use"
	CodeEmailInUse           Code = "email-in-use"
	CodeWeakPassword         Code = "weak-password"
	CodeInvalidEmail         Code = "invalid-email"
	CodeNetworkRequestFailed Code = "network-request-failed"
	CodeTooManyRequests      Code = "too-many-requests"

	CodePermissionDenied   Code = "permission-denied"
	CodeUnauthenticated    Code = "unauthenticated"
	CodeNotFound           Code = "not-found"
	CodeAlreadyExists      Code = "already-exists"
	CodeUnavailable        Code = "unavailable"
	CodeDeadlineExceeded   Code = "deadline-exceeded"
	CodeResourceExhausted  Code = "resource-exhausted"
	CodeAborted            Code = "aborted"
	CodeInternal           Code = "internal"
	CodeInvalidArgument    Code = "invalid-argument"
	CodeOutOfRange         Code = "out-of-range"
	CodeFailedPrecondition Code = "failed-precondition"
)

var codeCategories = map[Code]Category{
	CodeWrongPassword:        CategoryAuthCredentials,
	CodeUserNotFound:         CategoryAuthCredentials,
	CodeEmailAlreadyInUse:    CategoryAuthCredentials,
	CodeEmailInUse:           CategoryAuthCredentials,
	CodeWeakPassword:         CategoryAuthCredentials,
	CodeInvalidEmail:         CategoryAuthCredentials,
	CodeNetworkRequestFailed: CategoryAuthTransient,
	CodeTooManyRequests:      CategoryAuthTransient,

	CodePermissionDenied:   CategoryStorePermission,
	CodeUnauthenticated:    CategoryStorePermission,
	CodeNotFound:           CategoryStoreNotFound,
	CodeAlreadyExists:      CategoryStoreNotFound,
	CodeUnavailable:        CategoryStoreTransient,
	CodeDeadlineExceeded:   CategoryStoreTransient,
	CodeResourceExhausted:  CategoryStoreTransient,
	CodeAborted:            CategoryStoreTransient,
	CodeInternal:           CategoryStoreTransient,
	CodeInvalidArgument:    CategoryStoreValidation,
	CodeOutOfRange:         CategoryStoreValidation,
	CodeFailedPrecondition: CategoryStoreValidation,
}

// knownCodes is sorted longest first so "user-not-found" wins over "not-found"
// when scanning free text.
var knownCodes = func() []Code {
	out := make([]Code, 0, len(codeCategories))
	for c := range codeCategories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}()

var transientWords = []string{"network", "offline", "connection"}

// Error is a classified failure. Error() is the user-facing message; the
// original cause is reachable through Unwrap.
type Error struct {
	Kind      Kind
	Category  Category
	Code      Code
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// codedError attaches a structured code to a driver error at the store boundary.
type codedError struct {
	code Code
	err  error
}

func (e *codedError) Error() string {
	if e.err == nil {
		return string(e.code)
	}
	return string(e.code) + ": " + e.err.Error()
}

func (e *codedError) Unwrap() error { return e.err }

func (e *codedError) ErrorCode() string { return string(e.code) }

// WithCode tags err with a structured code. Store adapters use it to translate
// driver-specific failures.
func WithCode(code Code, err error) error {
	return &codedError{code: code, err: err}
}

// coder is implemented by any error exposing a structured code.
type coder interface {
	ErrorCode() string
}

// CodeOf extracts the structured code carried by err, if any. Provider
// prefixes such as "auth/" or "store/" are stripped.
func CodeOf(err error) (Code, bool) {
	var c coder
	if errors.As(err, &c) {
		raw := c.ErrorCode()
		if i := strings.LastIndex(raw, "/"); i >= 0 {
			raw = raw[i+1:]
		}
		return Code(strings.ToLower(raw)), raw != ""
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return CodeNotFound, true
	case errors.Is(err, domain.ErrAlreadyExists):
		return CodeAlreadyExists, true
	case errors.Is(err, domain.ErrForbidden):
		return CodePermissionDenied, true
	case errors.Is(err, domain.ErrInvalidInput):
		return CodeInvalidArgument, true
	case errors.Is(err, domain.ErrNotRSVPd), errors.Is(err, domain.ErrCheckedIn):
		return CodeFailedPrecondition, true
	case errors.Is(err, context.DeadlineExceeded):
		return CodeDeadlineExceeded, true
	}
	return "", false
}

// Classify maps err onto the taxonomy. It returns nil for a nil error and
// returns err unchanged when it is already classified.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	code, ok := CodeOf(err)
	if ok {
		if cat, known := codeCategories[code]; known {
			return newError(cat, code, err)
		}
		// Unknown code: fall through to message heuristics but keep the code.
	}

	msg := strings.ToLower(err.Error())
	if !ok || code == "" {
		for _, c := range knownCodes {
			if strings.Contains(msg, string(c)) {
				return newError(codeCategories[c], c, err)
			}
		}
	}
	for _, w := range transientWords {
		if strings.Contains(msg, w) {
			e := newError(CategoryUnclassified, code, err)
			e.Retryable = true
			e.Message = networkMessage
			return e
		}
	}
	return newError(CategoryUnclassified, code, err)
}

func newError(cat Category, code Code, cause error) *Error {
	return &Error{
		Kind:      cat.Kind(),
		Category:  cat,
		Code:      code,
		Message:   UserMessage(code, cause),
		Retryable: cat.Retryable(),
		Err:       cause,
	}
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err).Retryable
}
