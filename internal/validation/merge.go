package validation

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/aanand-mishra/usuarios-api/internal/types"
)

// Merge renders base as a Record and overlays every key present in patch.
// A patched "direcciones" replaces the whole list. The result is what
// update validates, so partial bodies are checked against the same rules
// as full ones.
func Merge(base types.User, patch Record) Record {
	rec := ToRecord(base)
	for k, v := range patch {
		rec[k] = v
	}
	return rec
}

// ToRecord is the inverse of Usuario for a stored user.
func ToRecord(u types.User) Record {
	dirs := make([]any, 0, len(u.Direcciones))
	for _, a := range u.Direcciones {
		dirs = append(dirs, map[string]any{
			"calle":         a.Calle,
			"ciudad":        a.Ciudad,
			"pais":          a.Pais,
			"codigo_postal": a.CodigoPostal,
		})
	}

	rec := Record{
		"nombre":         u.Nombre,
		"email":          u.Email,
		"fecha_creacion": u.FechaCreacion.UTC().Format(time.RFC3339Nano),
		"direcciones":    dirs,
	}
	if u.Edad != nil {
		rec["edad"] = json.Number(strconv.Itoa(*u.Edad))
	}
	return rec
}
