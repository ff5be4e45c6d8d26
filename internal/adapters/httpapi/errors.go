package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"opsreport/pkg/domain"
)

// ErrorResponse is the JSON envelope for every failed request.
type ErrorResponse struct {
	Error     string         `json:"error"`
	Message   string         `json:"message,omitempty"`
	Code      string         `json:"code,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// Error codes carried in ErrorResponse.Code.
const (
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodeForbidden        = "FORBIDDEN"
	CodeValidation       = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeInvalidState     = "INVALID_STATE"
	CodeUnsupportedTable = "UNSUPPORTED_TABLE"
	CodeUnknownType      = "UNKNOWN_REQUEST_TYPE"
	CodeApplyFailed      = "APPLY_FAILED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeInternal         = "INTERNAL_ERROR"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeRouteNotFound    = "ROUTE_NOT_FOUND"
	CodeMalformedRequest = "MALFORMED_REQUEST"
)

// writeError writes an error envelope with the given status and code.
func writeError(w http.ResponseWriter, r *http.Request, status int, code string, err error, details map[string]any) {
	resp := ErrorResponse{
		Error:     http.StatusText(status),
		Code:      code,
		Details:   details,
		RequestID: RequestIDFrom(r.Context()),
	}
	if err != nil {
		resp.Message = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps a service error onto its HTTP status. Apply failures
// are checked first since they wrap the underlying cause, which may itself
// match another sentinel.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var validation *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrApplyFailed):
		writeError(w, r, http.StatusUnprocessableEntity, CodeApplyFailed, err, nil)
	case errors.Is(err, domain.ErrUnauthenticated):
		writeError(w, r, http.StatusUnauthorized, CodeUnauthenticated, err, nil)
	case errors.Is(err, domain.ErrInsufficientPermission):
		writeError(w, r, http.StatusForbidden, CodeForbidden, err, nil)
	case errors.As(err, &validation):
		writeError(w, r, http.StatusBadRequest, CodeValidation, err, map[string]any{
			"field":   validation.Field,
			"message": validation.Message,
		})
	case errors.Is(err, domain.ErrValidation):
		writeError(w, r, http.StatusBadRequest, CodeValidation, err, nil)
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, r, http.StatusNotFound, CodeNotFound, err, nil)
	case errors.Is(err, domain.ErrInvalidState):
		writeError(w, r, http.StatusBadRequest, CodeInvalidState, err, nil)
	case errors.Is(err, domain.ErrUnsupportedTable):
		writeError(w, r, http.StatusBadRequest, CodeUnsupportedTable, err, nil)
	case errors.Is(err, domain.ErrUnknownRequestType):
		writeError(w, r, http.StatusBadRequest, CodeUnknownType, err, nil)
	default:
		logger.Error("request failed", "error", err, "request_id", RequestIDFrom(r.Context()), "path", r.URL.Path)
		writeError(w, r, http.StatusInternalServerError, CodeInternal, errors.New("internal server error"), nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
