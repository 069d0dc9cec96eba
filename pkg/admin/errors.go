package admin

import (
	"errors"
	"net/http"

	"github.com/getmockd/imposterd/pkg/httputil"
	"github.com/getmockd/imposterd/pkg/imposter"
)

// Error codes returned in the error envelope.
const (
	CodeBadData             = "bad_data"
	CodeInvalidInjection    = "invalid_injection"
	CodeUnsupportedProtocol = "unsupported_protocol"
	CodeBindFailed          = "bind_failed"
	CodeConflict            = "resource_conflict"
	CodeNotFound            = "no_such_resource"
	CodeInternal            = "internal_error"
)

// ErrMsgInternalError is returned for unexpected internal errors.
const ErrMsgInternalError = "An internal error occurred"

// classify maps an error onto its HTTP status and error code. Order matters:
// ErrInjectionNotAllowed also matches ErrConfiguration.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, imposter.ErrInjectionNotAllowed):
		return http.StatusBadRequest, CodeInvalidInjection
	case errors.Is(err, imposter.ErrUnsupportedProtocol):
		return http.StatusBadRequest, CodeUnsupportedProtocol
	case errors.Is(err, imposter.ErrConfiguration):
		return http.StatusBadRequest, CodeBadData
	case errors.Is(err, imposter.ErrBind):
		return http.StatusBadRequest, CodeBindFailed
	case errors.Is(err, imposter.ErrConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, imposter.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// sanitize returns the message safe to send for err. Known errors are
// returned verbatim; anything else is logged server-side and replaced.
func (a *API) sanitize(err error, operation string) (int, string, string) {
	status, code := classify(err)
	if code == CodeInternal {
		a.log.Error("operation failed", "operation", operation, "error", err)
		return status, code, ErrMsgInternalError
	}
	return status, code, err.Error()
}

func (a *API) writeError(w http.ResponseWriter, err error, operation string) {
	status, code, message := a.sanitize(err, operation)
	httputil.WriteError(w, status, code, message)
}

func (a *API) writeErrorWithDetails(w http.ResponseWriter, err error, operation string, details map[string]any) {
	status, code, message := a.sanitize(err, operation)
	httputil.WriteErrorWithDetails(w, status, code, message, details)
}
