// Package types holds the shared data structures (models) used across
// the application. Handlers, storage backends and validation all import
// types without depending on each other.
package types

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is a registered person.
//
// Field names on the wire are the ones the API has always exposed
// (nombre, edad, direcciones...). The same names are used in the
// document store so a stored document and a response body look alike.
//
// Edad is a pointer because the field is optional: nil means "not
// provided", which is different from an age of 0.
type User struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"  json:"id"`
	Nombre        string             `bson:"nombre"         json:"nombre"`
	Email         string             `bson:"email"          json:"email"`
	Edad          *int               `bson:"edad,omitempty" json:"edad,omitempty"`
	FechaCreacion time.Time          `bson:"fecha_creacion" json:"fecha_creacion"`
	Direcciones   []Address          `bson:"direcciones"    json:"direcciones"`
}

// Address is one postal address. It is always embedded in a User and has
// no identity or lifecycle of its own.
type Address struct {
	Calle        string `bson:"calle"         json:"calle"`
	Ciudad       string `bson:"ciudad"        json:"ciudad"`
	Pais         string `bson:"pais"          json:"pais"`
	CodigoPostal string `bson:"codigo_postal" json:"codigo_postal"`
}

// UserPage is the envelope returned by the paginated list endpoint.
//
// PageSize is the number of items actually on this page, so it may be
// smaller than the requested limit on the last page.
type UserPage struct {
	Total       int64  `json:"total"`
	TotalPages  int64  `json:"totalPages"`
	CurrentPage int    `json:"currentPage"`
	PageSize    int    `json:"pageSize"`
	Items       []User `json:"items"`
}
