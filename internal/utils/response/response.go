// Package response provides helpers for writing consistent JSON HTTP
// responses, and WriteError, the one place failures become HTTP replies.
//
// Error responses always look like:
//
//	{ "error": "Usuario no encontrado" }
//
// and, for validation failures, carry every violated rule:
//
//	{ "error": "Error de validación", "detalles": ["El campo 'nombre' es obligatorio", ...] }
package response

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aanand-mishra/usuarios-api/internal/apperr"
)

// ErrorBody is the JSON shape of every non-2xx response.
type ErrorBody struct {
	Error    string   `json:"error"`
	Detalles []string `json:"detalles,omitempty"`
}

// Message is the body of acknowledgements such as a delete.
type Message struct {
	Message string `json:"message"`
}

// WriteJSON writes data as JSON with the given status code.
//
// IMPORTANT ORDER: Header() → WriteHeader() → body writes.
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// Body returns the status code and JSON body for err without writing it.
func Body(err error) (int, ErrorBody) {
	e := apperr.From(err)
	body := ErrorBody{Error: e.Message}
	if e.Kind == apperr.KindValidation {
		body.Detalles = e.Details
	}
	return e.Kind.Status(), body
}

// WriteError classifies err and writes the matching response. Server
// errors are logged at ERROR with their cause and answered with a generic
// message; client errors are logged at DEBUG.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.From(err)
	status, body := Body(e)

	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("kind", e.Kind.String()),
	}
	if e.Err != nil {
		attrs = append(attrs,
			slog.String("error", e.Err.Error()),
			slog.String("error_type", fmt.Sprintf("%T", e.Err)))
	}

	level := slog.LevelDebug
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.LogAttrs(r.Context(), level, "request failed", attrs...)

	if err := WriteJSON(w, status, body); err != nil {
		slog.Error("failed to write error response", slog.String("error", err.Error()))
	}
}
