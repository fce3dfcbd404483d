package helpers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusattend/internal/domain"
	"campusattend/internal/resilience"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

func decode(t *testing.T, rr *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var envelope APIResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&envelope))
	return envelope
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"validation shows cause", resilience.Classify(fmt.Errorf("%w: title is required", domain.ErrInvalidInput)), http.StatusBadRequest, ErrCodeBadRequest, "title is required"},
		{"validation suffix form", fmt.Errorf("event id is required: %w", domain.ErrInvalidInput), http.StatusBadRequest, ErrCodeBadRequest, "event id is required"},
		{"forbidden", domain.ErrForbidden, http.StatusForbidden, ErrCodeForbidden, "forbidden"},
		{"not found", resilience.Classify(domain.ErrNotFound), http.StatusNotFound, ErrCodeNotFound, "The requested item could not be found."},
		{"not rsvp'd", resilience.Classify(domain.ErrNotRSVPd), http.StatusConflict, ErrCodeConflict, "user has not RSVP'd"},
		{"checked in", resilience.Classify(domain.ErrCheckedIn), http.StatusConflict, ErrCodeConflict, "user is already checked in"},
		{"permission", resilience.WithCode(resilience.CodePermissionDenied, errors.New("rules")), http.StatusForbidden, ErrCodeForbidden, "You don't have permission to perform this action."},
		{"unavailable", resilience.WithCode(resilience.CodeUnavailable, errors.New("down")), http.StatusServiceUnavailable, ErrCodeUnavailable, "The service is temporarily unavailable. Please try again."},
		{"exhausted", resilience.WithCode(resilience.CodeResourceExhausted, errors.New("quota")), http.StatusTooManyRequests, ErrCodeTooManyRequests, "Too many requests. Please try again later."},
		{"unknown", errors.New("kaboom"), http.StatusInternalServerError, ErrCodeInternalError, "kaboom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			WriteServiceError(rr, httptest.NewRequest(http.MethodGet, "/events", nil), testLogger, tt.err)

			assert.Equal(t, tt.wantStatus, rr.Code)
			envelope := decode(t, rr)
			assert.Nil(t, envelope.Data)
			require.NotNil(t, envelope.Error)
			assert.Equal(t, tt.wantCode, envelope.Error.Code)
			assert.Equal(t, tt.wantMsg, envelope.Error.Message)
		})
	}
}

func TestWriteServiceError_OfflineIsAccepted(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteServiceError(rr, httptest.NewRequest(http.MethodPost, "/events/e1/rsvp", nil), testLogger,
		fmt.Errorf("addRSVP queued as op-1: %w", domain.ErrOffline))

	assert.Equal(t, http.StatusAccepted, rr.Code)
	envelope := decode(t, rr)
	assert.Nil(t, envelope.Error)
	data, ok := envelope.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, data["queued"])
}

type titleRequest struct {
	Title string `json:"title"`
}

func (r titleRequest) Validate() []string {
	if r.Title == "" {
		return []string{"title is required"}
	}
	return nil
}

func TestDecodeAndValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantOK  bool
		wantMsg string
	}{
		{"valid", `{"title":"Hack Night"}`, true, ""},
		{"unknown field", `{"title":"x","extra":1}`, false, "unknown field"},
		{"malformed", `{`, false, "unexpected EOF"},
		{"invalid", `{"title":""}`, false, "title is required"},
		{"empty body", ``, false, "request body is required"},
		{"trailing object", `{"title":"a"}{"title":"b"}`, false, "single JSON object"},
		{"too large", `{"title":"` + strings.Repeat("x", MaxBodyBytes) + `"}`, false, "too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			var dest titleRequest
			ok := DecodeAndValidate(rr, httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(tt.body)), &dest)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				assert.Equal(t, http.StatusBadRequest, rr.Code)
				assert.Contains(t, decode(t, rr).Error.Message, tt.wantMsg)
			}
		})
	}
}

func TestPagination(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/events?page=2&page_size=2", nil)
	p := ParsePagination(req)
	assert.Equal(t, domain.PaginationParams{Page: 2, PageSize: 2}, p)

	page, meta := Paginate([]int{1, 2, 3, 4, 5}, p)
	assert.Equal(t, []int{3, 4}, page)
	assert.Equal(t, PaginationMeta{Page: 2, PageSize: 2, Total: 5, TotalPages: 3}, meta)

	page, _ = Paginate([]int{1, 2, 3}, domain.PaginationParams{Page: 9, PageSize: 2})
	assert.Empty(t, page)

	p = ParsePagination(httptest.NewRequest(http.MethodGet, "/events?page=-1&page_size=100000", nil))
	assert.Equal(t, domain.PaginationParams{Page: DefaultPage, PageSize: MaxPageSize}, p)
}
