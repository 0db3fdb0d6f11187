package listquery

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies engine errors.
type Kind int

const (
	// Internal is a bug or misconfiguration.
	Internal Kind = iota
	// InvalidQuery is a malformed or ill-typed list query.
	InvalidQuery
	// InvalidField is a column path that does not resolve.
	InvalidField
	// StorageUnavailable is a failed round-trip to the store.
	StorageUnavailable
)

func (k Kind) String() string {
	switch k {
	case InvalidQuery:
		return "InvalidQuery"
	case InvalidField:
		return "InvalidField"
	case StorageUnavailable:
		return "StorageUnavailable"
	default:
		return "InternalError"
	}
}

// FieldError points at the parameter and field a request got wrong.
type FieldError struct {
	Param  string `json:"param"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}

// Error is the error type returned by the engine.
type Error struct {
	Kind    Kind
	Message string
	Details []FieldError
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if len(e.Details) > 0 {
		d := e.Details[0]
		if d.Field != "" {
			msg = fmt.Sprintf("%s: %s %s: %s", msg, d.Param, d.Field, d.Reason)
		} else {
			msg = fmt.Sprintf("%s: %s: %s", msg, d.Param, d.Reason)
		}
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status code for the error.
func (e *Error) Status() int {
	switch e.Kind {
	case InvalidQuery, InvalidField:
		return http.StatusBadRequest
	case StorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// AsError returns err as an engine error. Errors of other types are
// classified as Internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: Internal, Message: "internal error", Err: err}
}

func invalidQuery(details ...FieldError) *Error {
	return &Error{Kind: InvalidQuery, Message: "invalid query parameters", Details: details}
}

func storageUnavailable(err error) *Error {
	return &Error{Kind: StorageUnavailable, Message: "storage unavailable", Err: err}
}

func internalError(format string, args ...interface{}) *Error {
	return &Error{Kind: Internal, Message: "internal error", Err: fmt.Errorf(format, args...)}
}

// fieldErrors collects request errors and reports the kind of the first.
type fieldErrors struct {
	kind    Kind
	details []FieldError
}

func (f *fieldErrors) add(kind Kind, param, field, reason string) {
	if len(f.details) == 0 {
		f.kind = kind
	}
	f.details = append(f.details, FieldError{Param: param, Field: field, Reason: reason})
}

func (f *fieldErrors) err() error {
	if len(f.details) == 0 {
		return nil
	}
	msg := "invalid query parameters"
	if f.kind == InvalidField {
		msg = "unknown field"
	}
	return &Error{Kind: f.kind, Message: msg, Details: f.details}
}
