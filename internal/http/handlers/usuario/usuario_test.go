package usuario

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aanand-mishra/usuarios-api/internal/config"
	"github.com/aanand-mishra/usuarios-api/internal/storage"
	"github.com/aanand-mishra/usuarios-api/internal/storage/sqlite"
	"github.com/aanand-mishra/usuarios-api/internal/types"
	"github.com/aanand-mishra/usuarios-api/internal/utils/response"
)

func newRouter(t *testing.T) *http.ServeMux {
	t.Helper()

	st, err := sqlite.New(&config.Config{StoragePath: ":memory:", QueryTimeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close(context.Background()) })

	mux := http.NewServeMux()
	Register(mux, st)
	return mux
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func userBody(nombre, email, city string) string {
	return fmt.Sprintf(`{"nombre": %q, "email": %q, "direcciones": [{"calle": "A", "ciudad": %q, "pais": "Peru", "codigo_postal": "1"}]}`,
		nombre, email, city)
}

func createUser(t *testing.T, h http.Handler, email, city string) types.User {
	t.Helper()

	rec := do(t, h, http.MethodPost, "/api/usuarios", userBody("Ana", email, city))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[types.User](t, rec)
}

func TestCreate_ThenGet(t *testing.T) {
	h := newRouter(t)

	rec := do(t, h, http.MethodPost, "/api/usuarios", userBody("Ana", "ana@x.com", "Lima"))
	require.Equal(t, http.StatusCreated, rec.Code)

	raw := decodeBody[map[string]any](t, rec)
	assert.NotEmpty(t, raw["id"])
	assert.NotEmpty(t, raw["fecha_creacion"])

	created := decodeBody[types.User](t, rec)
	get := do(t, h, http.MethodGet, "/api/usuarios/"+created.ID.Hex(), "")
	require.Equal(t, http.StatusOK, get.Code)

	got := decodeBody[types.User](t, get)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Ana", got.Nombre)
	assert.Equal(t, "ana@x.com", got.Email)
	assert.Equal(t, []types.Address{{Calle: "A", Ciudad: "Lima", Pais: "Peru", CodigoPostal: "1"}}, got.Direcciones)

	// Stored dates keep milliseconds, so both replies carry the same instant.
	assert.Zero(t, created.FechaCreacion.Nanosecond()%int(time.Millisecond))
	assert.True(t, created.FechaCreacion.Equal(got.FechaCreacion))
}

func TestCreate_DuplicateEmail(t *testing.T) {
	h := newRouter(t)
	createUser(t, h, "ana@x.com", "Lima")

	for _, email := range []string{"ana@x.com", "ANA@X.com", " ana@x.com "} {
		rec := do(t, h, http.MethodPost, "/api/usuarios", userBody("Otra", email, "Cusco"))
		assert.Equal(t, http.StatusBadRequest, rec.Code, email)
		assert.Equal(t, response.ErrorBody{Error: "El email ya está registrado"}, decodeBody[response.ErrorBody](t, rec))
	}

	// Reusing the email is still a 400 when the rest of the body is invalid.
	rec := do(t, h, http.MethodPost, "/api/usuarios", `{"email": "ana@x.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreate_Addresses(t *testing.T) {
	h := newRouter(t)

	for name, body := range map[string]string{
		"missing": `{"nombre": "Ana", "email": "ana@x.com"}`,
		"empty":   `{"nombre": "Ana", "email": "ana@x.com", "direcciones": []}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/usuarios", body)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			got := decodeBody[response.ErrorBody](t, rec)
			assert.Equal(t, "Error de validación", got.Error)
			require.Len(t, got.Detalles, 1)
			assert.Contains(t, got.Detalles[0], "direcciones")
		})
	}
}

func TestCreate_ReportsEveryViolation(t *testing.T) {
	h := newRouter(t)

	rec := do(t, h, http.MethodPost, "/api/usuarios", `{"email": "x", "edad": 150, "direcciones": []}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	got := decodeBody[response.ErrorBody](t, rec)
	assert.Equal(t, []string{
		"El campo 'nombre' es obligatorio",
		"El campo 'email' debe ser un correo válido",
		"El campo 'edad' debe ser menor o igual a 120",
		"El campo 'direcciones' debe contener al menos una dirección",
	}, got.Detalles)
}

func TestCreate_UnreadableBody(t *testing.T) {
	h := newRouter(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty", "", "El cuerpo de la solicitud está vacío"},
		{"malformed", `{"nombre":`, "El cuerpo de la solicitud no es un JSON válido"},
		{"array", `[1, 2]`, "El cuerpo de la solicitud debe ser un objeto JSON"},
		{"null", `null`, "El cuerpo de la solicitud debe ser un objeto JSON"},
		{"trailing_data", userBody("Ana", "ana@x.com", "Lima") + ` trailing`, "El cuerpo de la solicitud no es un JSON válido"},
		{"two_objects", userBody("Ana", "ana@x.com", "Lima") + `{}`, "El cuerpo de la solicitud no es un JSON válido"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/usuarios", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, response.ErrorBody{Error: tt.want}, decodeBody[response.ErrorBody](t, rec))
		})
	}
}

func TestGetList_Pagination(t *testing.T) {
	h := newRouter(t)
	for i := 0; i < 7; i++ {
		createUser(t, h, fmt.Sprintf("u%d@x.com", i), "Lima")
	}

	tests := []struct {
		query        string
		wantPage     int
		wantPageSize int
		wantPages    int64
	}{
		{"?page=1&limit=3", 1, 3, 3},
		{"?page=3&limit=3", 3, 1, 3},
		{"?page=4&limit=3", 4, 0, 3},
		{"?limit=7", 1, 7, 1},
		{"", 1, 7, 1},
		{"?page=abc&limit=-2", 1, 7, 1},
		{"?limit=9223372036854775807", 1, 7, 1},
		{"?page=4611686018427387904&limit=4", 4611686018427387904, 0, 2},
		{"?page=2&limit=9223372036854775807", 2, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/api/usuarios"+tt.query, "")
			require.Equal(t, http.StatusOK, rec.Code)

			page := decodeBody[types.UserPage](t, rec)
			assert.EqualValues(t, 7, page.Total)
			assert.Equal(t, tt.wantPages, page.TotalPages)
			assert.Equal(t, tt.wantPage, page.CurrentPage)
			assert.Equal(t, tt.wantPageSize, page.PageSize)
			assert.Len(t, page.Items, tt.wantPageSize)
		})
	}
}

func TestCreate_TrailingWhitespaceAccepted(t *testing.T) {
	h := newRouter(t)

	rec := do(t, h, http.MethodPost, "/api/usuarios", userBody("Ana", "ana@x.com", "Lima")+"\n\t ")
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestUnknownRoute_JSON404(t *testing.T) {
	h := newRouter(t)

	for _, tt := range []struct{ method, path string }{
		{http.MethodGet, "/no-existe"},
		{http.MethodGet, "/api/usuarios/a/b"},
		{http.MethodPatch, "/api/usuarios"},
	} {
		rec := do(t, h, tt.method, tt.path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, tt.path)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Equal(t, response.ErrorBody{Error: "Ruta no encontrada"}, decodeBody[response.ErrorBody](t, rec))
	}
}

func TestGetList_EmptyItemsIsArray(t *testing.T) {
	h := newRouter(t)

	rec := do(t, h, http.MethodGet, "/api/usuarios", "")
	require.Equal(t, http.StatusOK, rec.Code)

	raw := decodeBody[map[string]any](t, rec)
	assert.Equal(t, []any{}, raw["items"])
	assert.EqualValues(t, 0, raw["totalPages"])
}

func TestGetByID_Errors(t *testing.T) {
	h := newRouter(t)

	rec := do(t, h, http.MethodGet, "/api/usuarios/no-es-id", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, response.ErrorBody{Error: "ID inválido"}, decodeBody[response.ErrorBody](t, rec))

	rec = do(t, h, http.MethodGet, "/api/usuarios/65f6e0a1b2c3d4e5f6a7b8c9", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, response.ErrorBody{Error: "Usuario no encontrado"}, decodeBody[response.ErrorBody](t, rec))
}

func TestUpdate(t *testing.T) {
	h := newRouter(t)
	ana := createUser(t, h, "ana@x.com", "Lima")
	createUser(t, h, "luis@x.com", "Cusco")
	path := "/api/usuarios/" + ana.ID.Hex()

	t.Run("email_owned_by_other_user", func(t *testing.T) {
		rec := do(t, h, http.MethodPut, path, `{"email": "luis@x.com"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, response.ErrorBody{Error: "El email ya está registrado"}, decodeBody[response.ErrorBody](t, rec))
	})

	t.Run("own_email", func(t *testing.T) {
		rec := do(t, h, http.MethodPut, path, `{"email": "ANA@x.com", "nombre": "Ana María"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		got := decodeBody[types.User](t, rec)
		assert.Equal(t, "ana@x.com", got.Email)
		assert.Equal(t, "Ana María", got.Nombre)
	})

	t.Run("partial_keeps_other_fields", func(t *testing.T) {
		rec := do(t, h, http.MethodPut, path, `{"edad": 41}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		got := decodeBody[types.User](t, rec)
		require.NotNil(t, got.Edad)
		assert.Equal(t, 41, *got.Edad)
		assert.Equal(t, "Ana María", got.Nombre)
		assert.Equal(t, ana.Direcciones, got.Direcciones)
		assert.True(t, ana.FechaCreacion.Equal(got.FechaCreacion))
	})

	t.Run("validation", func(t *testing.T) {
		rec := do(t, h, http.MethodPut, path, `{"direcciones": []}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Error de validación", decodeBody[response.ErrorBody](t, rec).Error)
	})

	t.Run("invalid_id", func(t *testing.T) {
		rec := do(t, h, http.MethodPut, "/api/usuarios/123", `{"edad": 1}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, response.ErrorBody{Error: "ID inválido"}, decodeBody[response.ErrorBody](t, rec))
	})

	t.Run("not_found", func(t *testing.T) {
		rec := do(t, h, http.MethodPut, "/api/usuarios/65f6e0a1b2c3d4e5f6a7b8c9", `{"edad": 1}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestDelete(t *testing.T) {
	h := newRouter(t)
	ana := createUser(t, h, "ana@x.com", "Lima")
	path := "/api/usuarios/" + ana.ID.Hex()

	rec := do(t, h, http.MethodDelete, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, response.Message{Message: "Usuario eliminado"}, decodeBody[response.Message](t, rec))

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, path, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, path, "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodDelete, "/api/usuarios/zzz", "").Code)

	// The email is free again.
	createUser(t, h, "ana@x.com", "Lima")
}

func TestSearchByCity(t *testing.T) {
	h := newRouter(t)
	createUser(t, h, "ana@x.com", "Lima")
	createUser(t, h, "luis@x.com", "Cusco")

	for _, q := range []string{"Lima", "lima", "LIMA", "%20lima%20"} {
		rec := do(t, h, http.MethodGet, "/api/usuarios/buscar?ciudad="+q, "")
		require.Equal(t, http.StatusOK, rec.Code, q)

		users := decodeBody[[]types.User](t, rec)
		require.Len(t, users, 1, q)
		assert.Equal(t, "ana@x.com", users[0].Email)
	}

	for _, q := range []string{"Lim", "ima", "L.ma", "Lima.*"} {
		rec := do(t, h, http.MethodGet, "/api/usuarios/buscar?ciudad="+q, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, q)
		assert.Equal(t, response.ErrorBody{Error: "No se encontraron usuarios en esa ciudad"}, decodeBody[response.ErrorBody](t, rec))
	}

	for _, path := range []string{"/api/usuarios/buscar", "/api/usuarios/buscar?ciudad=", "/api/usuarios/buscar?ciudad=%20%20"} {
		rec := do(t, h, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Equal(t, response.ErrorBody{Error: "Debe proporcionar una ciudad"}, decodeBody[response.ErrorBody](t, rec))
	}
}

// brokenStore fails every call it overrides; the rest would panic.
type brokenStore struct {
	storage.Storage
}

var errDown = errors.New("dial tcp 10.0.0.3:27017: connection refused")

func (brokenStore) Ping(context.Context) error { return errDown }

func (brokenStore) ListUsers(context.Context, int, int) ([]types.User, int64, error) {
	return nil, 0, errDown
}

func TestHealth(t *testing.T) {
	rec := do(t, newRouter(t), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"status": "ok"}, decodeBody[map[string]string](t, rec))

	rec = do(t, Health(brokenStore{}), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServerError_DoesNotLeakCause(t *testing.T) {
	rec := do(t, GetList(brokenStore{}), http.MethodGet, "/api/usuarios", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, response.ErrorBody{Error: "Error en el servidor"}, decodeBody[response.ErrorBody](t, rec))
	assert.NotContains(t, rec.Body.String(), "10.0.0.3")
}
