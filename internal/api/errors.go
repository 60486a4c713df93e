package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tissuemaps/tmserver/internal/store"
)

// Error is an API-level error carried to the client as a JSON envelope
// {"error": {"type", "message", "status_code"}}.
type Error struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func malformedf(format string, args ...interface{}) *Error {
	return &Error{
		Type:       "MalformedRequestError",
		Message:    fmt.Sprintf(format, args...),
		StatusCode: http.StatusBadRequest,
	}
}

func notFoundf(format string, args ...interface{}) *Error {
	return &Error{
		Type:       "ResourceNotFoundError",
		Message:    fmt.Sprintf(format, args...),
		StatusCode: http.StatusNotFound,
	}
}

func forbiddenf(format string, args ...interface{}) *Error {
	return &Error{
		Type:       "ForbiddenError",
		Message:    fmt.Sprintf(format, args...),
		StatusCode: http.StatusForbidden,
	}
}

func internalErr(err error) *Error {
	return &Error{
		Type:       "InternalServerError",
		Message:    err.Error(),
		StatusCode: http.StatusInternalServerError,
	}
}

// writeError translates err into the error envelope. Store sentinels map
// to their HTTP equivalents; anything unrecognized becomes a 500 and is
// logged at error level.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
	case errors.Is(err, store.ErrNotFound):
		apiErr = notFoundf("%s", err.Error())
	case errors.Is(err, store.ErrConflict):
		apiErr = malformedf("%s", err.Error())
	default:
		a.log.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		apiErr = internalErr(err)
	}
	writeJSON(w, apiErr.StatusCode, map[string]interface{}{"error": apiErr})
}
