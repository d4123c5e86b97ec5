// Package errors defines the error taxonomy shared by the registry, the
// dispatch engine and the HTTP layer. Callers match with errors.Is.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrAuth         = errors.New("unauthorized")
	ErrRegistry     = errors.New("registry failure")
	ErrGatewayBatch = errors.New("gateway batch failed")
	ErrNotFound     = errors.New("not found")
)

// Error carries a sentinel kind plus the operation that failed.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.Error()
	}
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Validation reports a missing or malformed required field.
func Validation(format string, a ...interface{}) error {
	return &Error{Kind: ErrValidation, Op: fmt.Sprintf(format, a...)}
}

// Auth reports a bad or missing shared secret.
func Auth(msg string) error {
	return &Error{Kind: ErrAuth, Op: msg}
}

// Registry wraps a store read/write failure. A nil err yields nil so call
// sites can wrap unconditionally.
func Registry(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsRegistry(err) {
		return err
	}
	return &Error{Kind: ErrRegistry, Op: op, Err: err}
}

// GatewayBatch records the failure of a single gateway call.
func GatewayBatch(batch, size int, err error) error {
	return &Error{Kind: ErrGatewayBatch, Op: fmt.Sprintf("batch %d (%d messages)", batch, size), Err: err}
}

// NotFound reports an unknown resource such as a notification class.
func NotFound(format string, a ...interface{}) error {
	return &Error{Kind: ErrNotFound, Op: fmt.Sprintf(format, a...)}
}

func IsValidation(err error) bool   { return errors.Is(err, ErrValidation) }
func IsAuth(err error) bool         { return errors.Is(err, ErrAuth) }
func IsRegistry(err error) bool     { return errors.Is(err, ErrRegistry) }
func IsGatewayBatch(err error) bool { return errors.Is(err, ErrGatewayBatch) }
func IsNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }

// HTTPStatus maps an error to the status code the API responds with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsValidation(err):
		return http.StatusBadRequest
	case IsAuth(err):
		return http.StatusUnauthorized
	case IsNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the machine-readable code used in error response bodies.
func Code(err error) string {
	switch {
	case IsValidation(err):
		return "VALIDATION_ERROR"
	case IsAuth(err):
		return "UNAUTHORIZED"
	case IsNotFound(err):
		return "NOT_FOUND"
	case IsRegistry(err):
		return "REGISTRY_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}
