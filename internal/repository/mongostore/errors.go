package mongostore

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"campusattend/internal/domain"
	"campusattend/internal/resilience"
)

// serverCodes maps MongoDB server error codes to store codes.
var serverCodes = []struct {
	code  int
	store resilience.Code
}{
	{13, resilience.CodePermissionDenied},    // Unauthorized
	{18, resilience.CodeUnauthenticated},     // AuthenticationFailed
	{50, resilience.CodeDeadlineExceeded},    // MaxTimeMSExpired
	{262, resilience.CodeDeadlineExceeded},   // ExceededTimeLimit
	{112, resilience.CodeAborted},            // WriteConflict
	{251, resilience.CodeAborted},            // NoSuchTransaction
	{91, resilience.CodeUnavailable},         // ShutdownInProgress
	{189, resilience.CodeUnavailable},        // PrimarySteppedDown
	{10107, resilience.CodeUnavailable},      // NotWritablePrimary
	{11600, resilience.CodeUnavailable},      // InterruptedAtShutdown
	{11602, resilience.CodeUnavailable},      // InterruptedDueToReplStateChange
	{13435, resilience.CodeUnavailable},      // NotPrimaryNoSecondaryOk
	{13436, resilience.CodeUnavailable},      // NotPrimaryOrSecondary
	{146, resilience.CodeResourceExhausted},  // ExceededMemoryLimit
	{2, resilience.CodeInvalidArgument},      // BadValue
	{9, resilience.CodeInvalidArgument},      // FailedToParse
	{14, resilience.CodeInvalidArgument},     // TypeMismatch
	{121, resilience.CodeFailedPrecondition}, // DocumentValidationFailure
	{1, resilience.CodeInternal},             // InternalError
}

// translate converts driver errors into errors the resilience layer can classify.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return resilience.WithCode(resilience.CodeAlreadyExists, fmt.Errorf("%w: %v", domain.ErrAlreadyExists, err))
	}
	if mongo.IsTimeout(err) {
		return resilience.WithCode(resilience.CodeDeadlineExceeded, err)
	}
	if mongo.IsNetworkError(err) {
		return resilience.WithCode(resilience.CodeUnavailable, err)
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		for _, sc := range serverCodes {
			if se.HasErrorCode(sc.code) {
				return resilience.WithCode(sc.store, err)
			}
		}
		if se.HasErrorLabel("TransientTransactionError") || se.HasErrorLabel("RetryableWriteError") {
			return resilience.WithCode(resilience.CodeAborted, err)
		}
	}
	return err
}
