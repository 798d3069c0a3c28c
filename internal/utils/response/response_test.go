package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aanand-mishra/usuarios-api/internal/apperr"
	"github.com/aanand-mishra/usuarios-api/internal/storage"
)

func TestBody(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   ErrorBody
	}{
		{
			name:       "validation",
			err:        apperr.Validation([]string{"a", "b"}),
			wantStatus: http.StatusBadRequest,
			wantBody:   ErrorBody{Error: "Error de validación", Detalles: []string{"a", "b"}},
		},
		{
			name:       "duplicate_email_pre_check",
			err:        apperr.DuplicateEmail(),
			wantStatus: http.StatusBadRequest,
			wantBody:   ErrorBody{Error: "El email ya está registrado"},
		},
		{
			name:       "duplicate_email_from_index",
			err:        fmt.Errorf("create: %w", storage.ErrDuplicateEmail),
			wantStatus: http.StatusBadRequest,
			wantBody:   ErrorBody{Error: "El email ya está registrado"},
		},
		{
			name:       "storage_not_found",
			err:        storage.ErrNotFound,
			wantStatus: http.StatusNotFound,
			wantBody:   ErrorBody{Error: "Usuario no encontrado"},
		},
		{
			name:       "custom_not_found",
			err:        apperr.NotFound("No se encontraron usuarios en esa ciudad"),
			wantStatus: http.StatusNotFound,
			wantBody:   ErrorBody{Error: "No se encontraron usuarios en esa ciudad"},
		},
		{
			name:       "invalid_id",
			err:        fmt.Errorf("get: %w", storage.ErrInvalidID),
			wantStatus: http.StatusBadRequest,
			wantBody:   ErrorBody{Error: "ID inválido"},
		},
		{
			name:       "bad_request",
			err:        apperr.BadRequest("Debe proporcionar una ciudad", nil),
			wantStatus: http.StatusBadRequest,
			wantBody:   ErrorBody{Error: "Debe proporcionar una ciudad"},
		},
		{
			name:       "unclassified_does_not_leak",
			err:        errors.New("connection refused to 10.0.0.3"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   ErrorBody{Error: "Error en el servidor"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := Body(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestWriteError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/usuarios", nil)
	rec := httptest.NewRecorder()

	WriteError(rec, req, apperr.Validation([]string{"El campo 'nombre' es obligatorio"}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, "Error de validación", raw["error"])
	assert.Equal(t, []any{"El campo 'nombre' es obligatorio"}, raw["detalles"])
}

func TestWriteError_NonValidationOmitsDetalles(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/usuarios/x", nil)
	rec := httptest.NewRecorder()

	WriteError(rec, req, storage.ErrInvalidID)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, map[string]any{"error": "ID inválido"}, raw)
}
