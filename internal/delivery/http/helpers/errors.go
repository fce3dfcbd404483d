package helpers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"campusattend/internal/domain"
	"campusattend/internal/resilience"
)

// QueuedResponse is returned with 202 when a mutation was recorded offline.
// swagger:model QueuedResponse
type QueuedResponse struct {
	Queued  bool   `json:"queued"`
	Message string `json:"message"`
}

// WriteServiceError maps a service error onto the response envelope.
// Unexpected failures are logged; the client only sees the user-facing message.
func WriteServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrOffline):
		WriteJSONSuccess(w, http.StatusAccepted, QueuedResponse{Queued: true, Message: "saved offline, will sync when the store is reachable"})
		return
	case errors.Is(err, domain.ErrInvalidInput):
		WriteJSONError(w, http.StatusBadRequest, ErrCodeBadRequest, validationMessage(err))
		return
	case errors.Is(err, domain.ErrForbidden):
		WriteJSONError(w, http.StatusForbidden, ErrCodeForbidden, "forbidden")
		return
	case errors.Is(err, domain.ErrNotFound):
		WriteJSONError(w, http.StatusNotFound, ErrCodeNotFound, resilience.MessageFor(err))
		return
	case errors.Is(err, domain.ErrNotRSVPd), errors.Is(err, domain.ErrCheckedIn), errors.Is(err, domain.ErrAlreadyExists):
		WriteJSONError(w, http.StatusConflict, ErrCodeConflict, causeMessage(err))
		return
	}

	classified := resilience.Classify(err)
	status, code := http.StatusInternalServerError, ErrCodeInternalError
	switch {
	case classified.Category == resilience.CategoryStorePermission:
		status, code = http.StatusForbidden, ErrCodeForbidden
	case classified.Category == resilience.CategoryStoreValidation:
		status, code = http.StatusBadRequest, ErrCodeBadRequest
	case classified.Code == resilience.CodeResourceExhausted || classified.Code == resilience.CodeTooManyRequests:
		status, code = http.StatusTooManyRequests, ErrCodeTooManyRequests
	case classified.Retryable:
		status, code = http.StatusServiceUnavailable, ErrCodeUnavailable
	}
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method,
			"category", string(classified.Category), "code", string(classified.Code), "err", err)
	}
	WriteJSONError(w, status, code, classified.Message)
}

// validationMessage strips the sentinel text, e.g. "invalid input: title is required" -> "title is required".
func validationMessage(err error) string {
	msg := causeMessage(err)
	msg = strings.TrimPrefix(msg, domain.ErrInvalidInput.Error()+": ")
	msg = strings.TrimSuffix(msg, ": "+domain.ErrInvalidInput.Error())
	return msg
}

// causeMessage unwraps a classified error to the message of its cause.
func causeMessage(err error) string {
	var classified *resilience.Error
	if errors.As(err, &classified) && classified.Err != nil {
		return classified.Err.Error()
	}
	return err.Error()
}
