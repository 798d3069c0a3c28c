// Package usuario contains the HTTP handlers for the usuario resource.
//
// Each exported function is a factory: it receives the storage once at
// startup and returns the http.HandlerFunc the router calls on every
// request.
//
//	router.HandleFunc("POST /api/usuarios", usuario.New(storage))
//
// Handlers check the conditions they can name themselves (duplicate email,
// missing query parameter) and hand every failure to response.WriteError,
// which picks the status code and body.
package usuario

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aanand-mishra/usuarios-api/internal/apperr"
	"github.com/aanand-mishra/usuarios-api/internal/storage"
	"github.com/aanand-mishra/usuarios-api/internal/types"
	"github.com/aanand-mishra/usuarios-api/internal/utils/response"
	"github.com/aanand-mishra/usuarios-api/internal/validation"
)

// maxBodyBytes caps request bodies at 100KB.
const maxBodyBytes = 100 << 10

const (
	msgEmptyBody     = "El cuerpo de la solicitud está vacío"
	msgInvalidJSON   = "El cuerpo de la solicitud no es un JSON válido"
	msgNotAnObject   = "El cuerpo de la solicitud debe ser un objeto JSON"
	msgMissingCity   = "Debe proporcionar una ciudad"
	msgNoCityMatches = "No se encontraron usuarios en esa ciudad"
	msgDeleted       = "Usuario eliminado"
)

// ─────────────────────────────────────────────────────────────────────────────
// New handles POST /api/usuarios
//
//	{ "nombre": "Ana", "email": "ana@x.com",
//	  "direcciones": [{ "calle": "A", "ciudad": "Lima", "pais": "Peru", "codigo_postal": "1" }] }
//
// 201 with the stored user (id and fecha_creacion included).
// 400 on an unreadable body, failed validation or an email already in use.
// ─────────────────────────────────────────────────────────────────────────────
func New(st storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("creating a user")

		rec, err := decodeRecord(w, r)
		if err != nil {
			response.WriteError(w, r, err)
			return
		}

		user, err := validation.Usuario(rec, time.Now())
		if err != nil {
			response.WriteError(w, r, err)
			return
		}

		// Fast path only: the unique index on email is the real guard.
		if err := ensureEmailFree(r, st, user.Email, ""); err != nil {
			response.WriteError(w, r, err)
			return
		}

		created, err := st.CreateUser(r.Context(), user)
		if err != nil {
			response.WriteError(w, r, err)
			return
		}

		slog.Info("user created", slog.String("id", created.ID.Hex()))
		response.WriteJSON(w, http.StatusCreated, created)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// GetList handles GET /api/usuarios?page=&limit=
//
// Both parameters are optional; anything missing, non-numeric or below 1
// falls back to page 1 and 10 per page.
// ─────────────────────────────────────────────────────────────────────────────
func GetList(st storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := positiveInt(r.URL.Query().Get("page"), storage.DefaultPage)
		limit := positiveInt(r.URL.Query().Get("limit"), storage.DefaultPageSize)
		slog.Info("listing users", slog.Int("page", page), slog.Int("limit", limit))

		users, total, err := st.ListUsers(r.Context(), page, limit)
		if err != nil {
			response.WriteError(w, r, err)
			return
		}

		response.WriteJSON(w, http.StatusOK, types.UserPage{
			Total:       total,
			TotalPages:  storage.TotalPages(total, limit),
			CurrentPage: page,
			PageSize:    len(users),
			Items:       users,
		})
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// GetByID handles GET /api/usuarios/{id}
//
// 400 when {id} is not an ObjectID, 404 when nothing matches.
// ─────────────────────────────────────────────────────────────────────────────
func GetByID(st storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		slog.Info("getting a user", slog.String("id", id))

		user, err := st.GetUserByID(r.Context(), id)
		if err != nil {
			response.WriteError(w, r, err)
			return
		}

		response.WriteJSON(w, http.StatusOK, user)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Update handles PUT /api/usuarios/{id}
//
// The body may be complete or partial. Its keys are laid over the stored
// user and the merged result must pass the same rules as a create. When
// the body carries an email, no other user may own it.
// ─────────────────────────────────────────────────────────────────────────────
func Update(st storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		slog.Info("updating a user", slog.String("id", id))

		if _, err := storage.ParseID(id); err != nil {
			response.WriteError(w, r, err)
			return
		}

		patch, err := decodeRecord(w, r)
		if err != nil {
			response.WriteError(w, r, err)
			return
		}

		current, err := st.GetUserByID(r.Context(), id)
		if err != nil {
			response.WriteError(w, r, err)
			return
		}

		user, err := validation.Usuario(validation.Merge(current, patch), current.FechaCreacion)
		if err != nil {
			response.WriteError(w, r, err)
			return
		}

		if _, ok := patch["email"]; ok {
			if err := ensureEmailFree(r, st, user.Email, id); err != nil {
				response.WriteError(w, r, err)
				return
			}
		}

		updated, err := st.UpdateUserByID(r.Context(), id, user)
		if err != nil {
			response.WriteError(w, r, err)
			return
		}

		slog.Info("user updated", slog.String("id", id))
		response.WriteJSON(w, http.StatusOK, updated)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Delete handles DELETE /api/usuarios/{id}
//
//	{ "message": "Usuario eliminado" }
// ─────────────────────────────────────────────────────────────────────────────
func Delete(st storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		slog.Info("deleting a user", slog.String("id", id))

		if err := st.DeleteUserByID(r.Context(), id); err != nil {
			response.WriteError(w, r, err)
			return
		}

		slog.Info("user deleted", slog.String("id", id))
		response.WriteJSON(w, http.StatusOK, response.Message{Message: msgDeleted})
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// SearchByCity handles GET /api/usuarios/buscar?ciudad=
//
// Matches the whole city name, ignoring case: "lima" finds "Lima" but
// "Lim" finds nothing. 400 without a ciudad, 404 when nobody matches.
// ─────────────────────────────────────────────────────────────────────────────
func SearchByCity(st storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		city := strings.TrimSpace(r.URL.Query().Get("ciudad"))
		if city == "" {
			response.WriteError(w, r, apperr.BadRequest(msgMissingCity, nil))
			return
		}
		slog.Info("searching users by city", slog.String("ciudad", city))

		users, err := st.FindUsersByCity(r.Context(), city)
		if err != nil {
			response.WriteError(w, r, err)
			return
		}
		if len(users) == 0 {
			response.WriteError(w, r, apperr.NotFound(msgNoCityMatches))
			return
		}

		response.WriteJSON(w, http.StatusOK, users)
	}
}

// Health handles GET /api/health.
func Health(st storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(r.Context()); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		response.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// decodeRecord reads the body as an untyped JSON object, keeping numbers
// as json.Number so the validation rules can tell 30 from 30.5.
func decodeRecord(w http.ResponseWriter, r *http.Request) (validation.Record, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()

	var rec validation.Record
	err := dec.Decode(&rec)

	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return nil, apperr.BadRequest(msgEmptyBody, err)
	case errors.As(err, &typeErr):
		return nil, apperr.BadRequest(msgNotAnObject, err)
	case err != nil:
		return nil, apperr.BadRequest(msgInvalidJSON, err)
	case rec == nil:
		return nil, apperr.BadRequest(msgNotAnObject, nil)
	}

	// Exactly one value per body.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, apperr.BadRequest(msgInvalidJSON, err)
	}

	return rec, nil
}

// ensureEmailFree returns a duplicate-email error when another user
// (anyone but excludeID) already has email.
func ensureEmailFree(r *http.Request, st storage.Storage, email, excludeID string) error {
	_, err := st.FindUserByEmail(r.Context(), email, excludeID)
	switch {
	case err == nil:
		return apperr.DuplicateEmail()
	case errors.Is(err, storage.ErrNotFound):
		return nil
	default:
		return err
	}
}

func positiveInt(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}
