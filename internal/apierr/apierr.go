// Package apierr is the error taxonomy shared by the transport and the
// document store. Every failure surfaced to a caller is an *Error whose Kind
// can be matched with errors.Is against the sentinel values below.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindAuth
	KindValidation
	KindConflict
	KindNotFound
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not found"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

var (
	ErrNetwork    = &Error{Kind: KindNetwork, Message: "network error"}
	ErrAuth       = &Error{Kind: KindAuth, Message: "not authorized"}
	ErrValidation = &Error{Kind: KindValidation, Message: "invalid input"}
	ErrConflict   = &Error{Kind: KindConflict, Message: "conflict"}
	ErrNotFound   = &Error{Kind: KindNotFound, Message: "not found"}
	ErrServer     = &Error{Kind: KindServer, Message: "server error"}
)

var kindSentinels = map[Kind]*Error{
	KindNetwork:    ErrNetwork,
	KindAuth:       ErrAuth,
	KindValidation: ErrValidation,
	KindConflict:   ErrConflict,
	KindNotFound:   ErrNotFound,
	KindServer:     ErrServer,
}

type Error struct {
	Kind    Kind
	Op      string
	Message string
	// Status is the HTTP status that produced the error, zero otherwise.
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String() + " error"
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels above by kind, so errors.Is(err, ErrNotFound)
// holds for every not-found failure regardless of message. Any other *Error
// target matches only itself.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t == e || (t == kindSentinels[t.Kind] && t.Kind == e.Kind)
}

func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func Validation(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

func Network(op string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Message: "network error", Err: err}
}

// FromStatus maps an HTTP status and server message onto the taxonomy.
func FromStatus(op string, status int, message string) *Error {
	kind := KindServer
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		kind = KindValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = KindAuth
	case http.StatusNotFound:
		kind = KindNotFound
	case http.StatusConflict:
		kind = KindConflict
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return &Error{Kind: kind, Op: op, Message: message, Status: status}
}

// KindOf reports the kind of err, KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// StatusOf returns the HTTP status carried by err, 0 if none.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}
