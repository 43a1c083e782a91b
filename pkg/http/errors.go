package fthttp

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ftauth/identity/internal/auth/validator"
	"github.com/ftauth/identity/internal/database"
	"github.com/ftauth/identity/internal/model"
	"github.com/ftauth/identity/internal/token"
	"github.com/pkg/errors"
)

// Error kinds surfaced to HTTP callers.
var (
	ErrValidation         = errors.New("validation error")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrUpstreamFederation = errors.New("upstream federation error")
)

// Error pairs an error kind with the message that is safe to show a caller.
type Error struct {
	Kind    error
	Message string
}

// NewError creates a public error of the given kind.
func NewError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// StatusFromError maps an error onto an HTTP status code.
func StatusFromError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation),
		errors.Is(err, database.ErrDuplicateEmail),
		errors.Is(err, model.ErrInvalidUser):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated),
		errors.Is(err, token.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound),
		errors.Is(err, database.ErrUserNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// messageFromError returns the caller-facing message for err. Only messages
// from *Error values are exposed; anything else collapses to the status text.
func messageFromError(err error, status int) string {
	var publicErr *Error
	if errors.As(err, &publicErr) {
		return publicErr.Message
	}
	return http.StatusText(status)
}

// WriteJSON writes v as the JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// WriteMessage writes a {"message": ...} body.
func WriteMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"message": message})
}

// WriteError classifies err and writes its public message. Internal details
// of unclassified errors are logged and never sent to the caller.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFromError(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	WriteMessage(w, status, messageFromError(err, status))
}

// ErrInvalidBody is returned for request bodies that are not valid JSON.
var ErrInvalidBody = NewError(ErrValidation, "Invalid request body")

// DecodeRequest decodes and validates a JSON request body.
func DecodeRequest(r *http.Request, v validator.Validator) error {
	err := validator.DecodeJSON(r.Body, v)
	if errors.Is(err, validator.ErrMalformedBody) {
		return errors.Wrap(ErrInvalidBody, err.Error())
	}
	return err
}
