package usuario

import (
	"net/http"

	"github.com/aanand-mishra/usuarios-api/internal/apperr"
	"github.com/aanand-mishra/usuarios-api/internal/storage"
	"github.com/aanand-mishra/usuarios-api/internal/utils/response"
)

// msgRouteNotFound answers any path or method no route claims.
const msgRouteNotFound = "Ruta no encontrada"

// Register mounts every usuario route on mux. The literal
// /api/usuarios/buscar wins over /api/usuarios/{id} in Go 1.22 patterns,
// and "/" catches the rest so unknown routes also get a JSON body.
func Register(mux *http.ServeMux, st storage.Storage) {
	mux.HandleFunc("POST /api/usuarios", New(st))
	mux.HandleFunc("GET /api/usuarios", GetList(st))
	mux.HandleFunc("GET /api/usuarios/buscar", SearchByCity(st))
	mux.HandleFunc("GET /api/usuarios/{id}", GetByID(st))
	mux.HandleFunc("PUT /api/usuarios/{id}", Update(st))
	mux.HandleFunc("DELETE /api/usuarios/{id}", Delete(st))
	mux.HandleFunc("GET /api/health", Health(st))
	mux.HandleFunc("/", NoRoute)
}

// NoRoute writes the JSON 404 for unmatched requests.
func NoRoute(w http.ResponseWriter, r *http.Request) {
	response.WriteError(w, r, apperr.NotFound(msgRouteNotFound))
}
