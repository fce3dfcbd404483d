package postgres

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"

	"campusattend/internal/domain"
	"campusattend/internal/resilience"
)

// sqlStateCodes maps exact SQLSTATEs to store codes. Whole classes are handled in codeForSQLState.
var sqlStateCodes = map[pq.ErrorCode]resilience.Code{
	"57014": resilience.CodeDeadlineExceeded,
	"40001": resilience.CodeAborted,
	"40P01": resilience.CodeAborted,
	"42501": resilience.CodePermissionDenied,
	"28000": resilience.CodeUnauthenticated,
	"28P01": resilience.CodeUnauthenticated,
	"23505": resilience.CodeAlreadyExists,
	"23514": resilience.CodeFailedPrecondition,
	"23503": resilience.CodeFailedPrecondition,
	"XX000": resilience.CodeInternal,
}

func codeForSQLState(code pq.ErrorCode) resilience.Code {
	if c, ok := sqlStateCodes[code]; ok {
		return c
	}
	switch code.Class() {
	case "08", "57":
		return resilience.CodeUnavailable
	case "53":
		return resilience.CodeResourceExhausted
	case "22":
		return resilience.CodeInvalidArgument
	}
	return ""
}

// translate converts driver errors into errors the resilience layer can classify.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	var perr *pq.Error
	if errors.As(err, &perr) {
		switch code := codeForSQLState(perr.Code); code {
		case "":
			return err
		case resilience.CodeAlreadyExists:
			return resilience.WithCode(code, fmt.Errorf("%w: %s", domain.ErrAlreadyExists, perr.Message))
		default:
			return resilience.WithCode(code, err)
		}
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return resilience.WithCode(resilience.CodeUnavailable, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return resilience.WithCode(resilience.CodeDeadlineExceeded, err)
		}
		return resilience.WithCode(resilience.CodeUnavailable, err)
	}
	return err
}
