// Package apperr defines the closed set of failures the API can report.
//
// Every error that reaches the HTTP layer is classified into exactly one
// Kind by From. The response package turns that Kind into a status code
// and a JSON body in a single place, so handlers never pick status codes
// for failures themselves.
package apperr

import (
	"errors"
	"net/http"

	"github.com/aanand-mishra/usuarios-api/internal/storage"
)

// Kind tags an Error with the category the translator dispatches on.
type Kind int

const (
	// KindServer is the fallback for anything unclassified.
	KindServer Kind = iota
	KindValidation
	KindDuplicateEmail
	KindNotFound
	KindInvalidID
	KindBadRequest
)

// User-facing messages. The API has always answered in Spanish.
const (
	MsgValidation     = "Error de validación"
	MsgDuplicateEmail = "El email ya está registrado"
	MsgUserNotFound   = "Usuario no encontrado"
	MsgInvalidID      = "ID inválido"
	MsgServer         = "Error en el servidor"
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindDuplicateEmail:
		return "duplicate_email"
	case KindNotFound:
		return "not_found"
	case KindInvalidID:
		return "invalid_id"
	case KindBadRequest:
		return "bad_request"
	default:
		return "server"
	}
}

// Status maps a Kind to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindDuplicateEmail, KindInvalidID, KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure. Message is safe to show to clients;
// Details is only set for validation failures; Err keeps the cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Details []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports every violated rule at once.
func Validation(details []string) *Error {
	return &Error{Kind: KindValidation, Message: MsgValidation, Details: details}
}

func DuplicateEmail() *Error {
	return &Error{Kind: KindDuplicateEmail, Message: MsgDuplicateEmail}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func InvalidID(err error) *Error {
	return &Error{Kind: KindInvalidID, Message: MsgInvalidID, Err: err}
}

func BadRequest(msg string, err error) *Error {
	return &Error{Kind: KindBadRequest, Message: msg, Err: err}
}

func Server(err error) *Error {
	return &Error{Kind: KindServer, Message: MsgServer, Err: err}
}

// From classifies err. Errors already carrying a Kind are returned as is;
// storage sentinels get their matching Kind; anything else is a server error.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	switch {
	case errors.Is(err, storage.ErrNotFound):
		return &Error{Kind: KindNotFound, Message: MsgUserNotFound, Err: err}
	case errors.Is(err, storage.ErrInvalidID):
		return InvalidID(err)
	case errors.Is(err, storage.ErrDuplicateEmail):
		return &Error{Kind: KindDuplicateEmail, Message: MsgDuplicateEmail, Err: err}
	default:
		return Server(err)
	}
}

// Is reports whether err classifies as kind.
func Is(err error, kind Kind) bool {
	return err != nil && From(err).Kind == kind
}
