package rest

import (
	"errors"
	"net/http"

	"debtster-kpi/internal/ingest"
	"debtster-kpi/internal/report"
	"debtster-kpi/internal/service"
)

// fail maps a service error onto the response envelope. Unexpected errors are
// logged and reported as 500 with the generic message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, message string) {
	var verr *ValidationError
	var tooLarge *http.MaxBytesError

	switch {
	case errors.As(err, &verr):
		ErrorValidation(w, verr)
	case errors.As(err, &tooLarge):
		ErrorTooLarge(w, "file is too large")
	case errors.Is(err, service.ErrSessionNotFound):
		ErrorNotFound(w, "session not found")
	case errors.Is(err, service.ErrExportNotFound):
		ErrorNotFound(w, "export not found")
	case errors.Is(err, report.ErrUnknownKPI):
		ErrorValidation(w, &ValidationError{Field: "kpi", Message: err.Error()})
	case errors.Is(err, ingest.ErrNoHeader), errors.Is(err, ingest.ErrUnsupportedFile):
		ErrorUnprocessable(w, err.Error())
	case errors.Is(err, service.ErrTooManyRecords):
		ErrorUnprocessable(w, err.Error())
	case errors.Is(err, service.ErrDatabaseUnavailable):
		ErrorServiceUnavailable(w, err.Error())
	default:
		h.log.WithError(err).WithField("path", r.URL.Path).Error(message)
		ErrorInternal(w, message)
	}
}
