package mongostore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"

	"campusattend/internal/domain"
	"campusattend/internal/resilience"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  resilience.Code
		retryable bool
	}{
		{"no documents", mongo.ErrNoDocuments, resilience.CodeNotFound, false},
		{"duplicate key", mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key"}}}, resilience.CodeAlreadyExists, false},
		{"max time", mongo.CommandError{Code: 50, Name: "MaxTimeMSExpired"}, resilience.CodeDeadlineExceeded, true},
		{"network label", mongo.CommandError{Code: 6, Labels: []string{"NetworkError"}}, resilience.CodeUnavailable, true},
		{"unauthorized", mongo.CommandError{Code: 13, Name: "Unauthorized"}, resilience.CodePermissionDenied, false},
		{"auth failed", mongo.CommandError{Code: 18, Name: "AuthenticationFailed"}, resilience.CodeUnauthenticated, false},
		{"write conflict", mongo.CommandError{Code: 112, Name: "WriteConflict"}, resilience.CodeAborted, true},
		{"stepdown", mongo.CommandError{Code: 189, Name: "PrimarySteppedDown"}, resilience.CodeUnavailable, true},
		{"memory", mongo.CommandError{Code: 146, Name: "ExceededMemoryLimit"}, resilience.CodeResourceExhausted, true},
		{"bad value", mongo.CommandError{Code: 2, Name: "BadValue"}, resilience.CodeInvalidArgument, false},
		{"validation", mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 121}}}, resilience.CodeFailedPrecondition, false},
		{"transient txn", mongo.CommandError{Code: 999, Labels: []string{"TransientTransactionError"}}, resilience.CodeAborted, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translate(tt.err)
			code, ok := resilience.CodeOf(got)
			assert.True(t, ok)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.retryable, resilience.IsRetryable(got))
		})
	}
}

func TestTranslate_Passthrough(t *testing.T) {
	assert.NoError(t, translate(nil))
	plain := errors.New("decode failed")
	assert.Same(t, plain, translate(plain))
	assert.ErrorIs(t, translate(mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000}}}), domain.ErrAlreadyExists)
}
