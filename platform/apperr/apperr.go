// Package apperr carries typed domain errors from services to the HTTP layer.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for the caller.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	// KindConflict means current state blocks the request: the lead belongs
	// to someone else, or it changed hands while the request ran.
	KindConflict
	KindForbidden
	KindInternal
)

var kindInfo = map[Kind]struct {
	name   string
	status int
}{
	KindUnknown:    {"unknown", http.StatusInternalServerError},
	KindNotFound:   {"not_found", http.StatusNotFound},
	KindValidation: {"validation", http.StatusBadRequest},
	KindConflict:   {"conflict", http.StatusConflict},
	KindForbidden:  {"forbidden", http.StatusForbidden},
	KindInternal:   {"internal", http.StatusInternalServerError},
}

func (k Kind) String() string {
	if info, ok := kindInfo[k]; ok {
		return info.name
	}
	return kindInfo[KindUnknown].name
}

// Error is a domain error. Message is safe to show to the caller; Err is not.
type Error struct {
	Kind    Kind
	Message string
	Op      string
	Err     error
	Details any
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the kind to a response status.
func (e *Error) HTTPStatus() int {
	if info, ok := kindInfo[e.Kind]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithDetails attaches a payload rendered next to the message.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NotFound(message string) *Error   { return New(KindNotFound, message) }
func Validation(message string) *Error { return New(KindValidation, message) }
func Conflict(message string) *Error   { return New(KindConflict, message) }
func Forbidden(message string) *Error  { return New(KindForbidden, message) }
func Internal(message string) *Error   { return New(KindInternal, message) }

// GetKind returns the kind of the first *Error in err's chain.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}
