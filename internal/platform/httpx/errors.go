// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// RetryAfterSeconds is advertised on 503 responses for retryable failures.
const RetryAfterSeconds = 1

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch shared.KindOf(err) {
	case shared.KindValidation:
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case shared.KindNotFound:
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case shared.KindConflict:
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case shared.KindBusinessRule:
		Problem(w, http.StatusUnprocessableEntity, "Rejected", err.Error())
	case shared.KindInfrastructure:
		if logger != nil {
			logger.Warn("retryable ledger failure", slog.Any("error", err))
		}
		w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
		Problem(w, http.StatusServiceUnavailable, "Busy", "ledger is busy, retry the operation")
	case shared.KindConsistency:
		if logger != nil {
			logger.Error("ledger consistency violation", slog.Any("error", err))
		}
		Problem(w, http.StatusInternalServerError, "Consistency Violation", "")
	default:
		if errors.Is(err, errBadRequest) {
			Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		if logger != nil {
			logger.Error("unhandled error", slog.Any("error", err))
		}
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
