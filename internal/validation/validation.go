// Package validation checks untyped user records against the rules of
// the API and turns valid ones into types.User values.
//
// The rules live in a table (usuarioRules). Each rule looks at one
// field of the decoded JSON record and returns zero or more messages.
// All rules always run, so a client gets every violation in one reply.
package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/aanand-mishra/usuarios-api/internal/apperr"
	"github.com/aanand-mishra/usuarios-api/internal/types"
)

// Record is a JSON object decoded with json.Decoder.UseNumber.
type Record = map[string]any

// Age bounds. The API documentation has always advertised 0-120.
const (
	MinEdad = 0
	MaxEdad = 120
)

var validate = validator.New()

// rule validates a single top-level field. present is false when the key
// is absent from the record.
type rule struct {
	field string
	check func(field string, v any, present bool) []string
}

var usuarioRules = []rule{
	{field: "nombre", check: requiredText},
	{field: "email", check: email},
	{field: "edad", check: optionalAge},
	{field: "fecha_creacion", check: optionalISODate},
	{field: "direcciones", check: addresses},
}

var addressFields = []string{"calle", "ciudad", "pais", "codigo_postal"}

// isoLayouts are the ISO-8601 shapes accepted for fecha_creacion.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Check runs every rule against rec and returns all violation messages,
// or nil when rec is valid.
func Check(rec Record) []string {
	var msgs []string

	known := make(map[string]bool, len(usuarioRules))
	for _, r := range usuarioRules {
		known[r.field] = true
		v, ok := rec[r.field]
		msgs = append(msgs, r.check(r.field, v, ok)...)
	}
	msgs = append(msgs, unknownKeys(rec, known, "")...)

	return msgs
}

// Usuario validates rec and builds the normalized user: trimmed text,
// lowercased email, fecha_creacion defaulting to now. Dates are cut to
// milliseconds, the precision BSON dates keep.
func Usuario(rec Record, now time.Time) (types.User, error) {
	if msgs := Check(rec); len(msgs) > 0 {
		return types.User{}, apperr.Validation(msgs)
	}

	u := types.User{
		Nombre:        strings.TrimSpace(rec["nombre"].(string)),
		Email:         NormalizeEmail(rec["email"].(string)),
		FechaCreacion: now.UTC().Truncate(time.Millisecond),
	}

	if v, ok := rec["edad"]; ok {
		n, _ := intValue(v.(json.Number))
		edad := int(n)
		u.Edad = &edad
	}

	if v, ok := rec["fecha_creacion"]; ok {
		t, _ := parseISODate(v.(string))
		u.FechaCreacion = t.Truncate(time.Millisecond)
	}

	for _, item := range rec["direcciones"].([]any) {
		a := item.(map[string]any)
		u.Direcciones = append(u.Direcciones, types.Address{
			Calle:        strings.TrimSpace(a["calle"].(string)),
			Ciudad:       strings.TrimSpace(a["ciudad"].(string)),
			Pais:         strings.TrimSpace(a["pais"].(string)),
			CodigoPostal: strings.TrimSpace(a["codigo_postal"].(string)),
		})
	}

	return u, nil
}

// NormalizeEmail is the canonical form emails are stored and compared in.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func requiredText(field string, v any, present bool) []string {
	if !present {
		return []string{fmt.Sprintf("El campo '%s' es obligatorio", field)}
	}
	s, ok := v.(string)
	if !ok {
		return []string{fmt.Sprintf("El campo '%s' debe ser un texto", field)}
	}
	if strings.TrimSpace(s) == "" {
		return []string{fmt.Sprintf("El campo '%s' no puede estar vacío", field)}
	}
	return nil
}

func email(field string, v any, present bool) []string {
	if msgs := requiredText(field, v, present); msgs != nil {
		return msgs
	}
	if err := validate.Var(strings.TrimSpace(v.(string)), "email"); err != nil {
		return []string{fmt.Sprintf("El campo '%s' debe ser un correo válido", field)}
	}
	return nil
}

func optionalAge(field string, v any, present bool) []string {
	if !present {
		return nil
	}
	num, ok := v.(json.Number)
	if !ok {
		return []string{fmt.Sprintf("El campo '%s' debe ser un número", field)}
	}
	n, integral := intValue(num)
	if !integral {
		return []string{fmt.Sprintf("El campo '%s' debe ser un número entero", field)}
	}
	if n < MinEdad {
		return []string{fmt.Sprintf("El campo '%s' debe ser mayor o igual a %d", field, MinEdad)}
	}
	if n > MaxEdad {
		return []string{fmt.Sprintf("El campo '%s' debe ser menor o igual a %d", field, MaxEdad)}
	}
	return nil
}

// intValue reads an integral JSON number, accepting forms like 30.0 or
// 3e1. Integers past the int64 range saturate at its bounds so the range
// rules report them.
func intValue(num json.Number) (n int64, integral bool) {
	if n, err := num.Int64(); err == nil {
		return n, true
	}

	f, _ := num.Float64() // ±Inf when out of float64 range
	if !math.IsInf(f, 0) && f != math.Trunc(f) {
		return 0, false
	}

	switch {
	case f >= math.MaxInt64:
		return math.MaxInt64, true
	case f <= math.MinInt64:
		return math.MinInt64, true
	default:
		return int64(f), true
	}
}

func optionalISODate(field string, v any, present bool) []string {
	if !present {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return []string{fmt.Sprintf("El campo '%s' debe ser una fecha en formato ISO 8601", field)}
	}
	if _, err := parseISODate(s); err != nil {
		return []string{fmt.Sprintf("El campo '%s' debe ser una fecha en formato ISO 8601", field)}
	}
	return nil
}

func parseISODate(s string) (time.Time, error) {
	var err error
	for _, layout := range isoLayouts {
		var t time.Time
		if t, err = time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}

func addresses(field string, v any, present bool) []string {
	if !present {
		return []string{fmt.Sprintf("El campo '%s' es obligatorio", field)}
	}
	list, ok := v.([]any)
	if !ok {
		return []string{fmt.Sprintf("El campo '%s' debe ser una lista", field)}
	}
	if len(list) == 0 {
		return []string{fmt.Sprintf("El campo '%s' debe contener al menos una dirección", field)}
	}

	var msgs []string
	known := make(map[string]bool, len(addressFields))
	for _, f := range addressFields {
		known[f] = true
	}

	for i, item := range list {
		prefix := fmt.Sprintf("%s[%d]", field, i)
		a, ok := item.(map[string]any)
		if !ok {
			msgs = append(msgs, fmt.Sprintf("El campo '%s' debe ser un objeto", prefix))
			continue
		}
		for _, f := range addressFields {
			fv, ok := a[f]
			msgs = append(msgs, requiredText(prefix+"."+f, fv, ok)...)
		}
		msgs = append(msgs, unknownKeys(a, known, prefix+".")...)
	}

	return msgs
}

// unknownKeys reports keys not covered by any rule, in sorted order so the
// message list is stable.
func unknownKeys(rec map[string]any, known map[string]bool, prefix string) []string {
	var extra []string
	for k := range rec {
		if !known[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)

	msgs := make([]string, 0, len(extra))
	for _, k := range extra {
		msgs = append(msgs, fmt.Sprintf("El campo '%s%s' no está permitido", prefix, k))
	}
	return msgs
}
