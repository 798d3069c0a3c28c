// Package storage defines the Storage interface, the contract every
// database backend must satisfy to serve the API.
//
// Handlers depend only on this interface. The MongoDB backend is the
// production default; the SQLite backend keeps the same documents in a
// single local file and backs the test suite.
package storage

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/aanand-mishra/usuarios-api/internal/types"
)

// Errors shared by all backends. Callers match them with errors.Is.
var (
	// ErrNotFound means no user matched the identifier.
	ErrNotFound = errors.New("user not found")

	// ErrInvalidID means the identifier is not a 24-char hex ObjectID.
	ErrInvalidID = errors.New("invalid user id")

	// ErrDuplicateEmail is raised by the storage-level unique index on
	// email. It backs up the handlers' read-then-write pre-check, which
	// two concurrent requests can both pass.
	ErrDuplicateEmail = errors.New("email already registered")
)

// Default pagination values used when the caller passes something < 1.
const (
	DefaultPage     = 1
	DefaultPageSize = 10
)

// Storage is the persistence contract for users.
type Storage interface {
	// CreateUser inserts u with a freshly generated ID and returns the
	// stored record. It does NOT check email uniqueness beyond the unique
	// index; callers run FindUserByEmail first.
	CreateUser(ctx context.Context, u types.User) (types.User, error)

	// GetUserByID returns ErrInvalidID for malformed ids and ErrNotFound
	// when nothing matches.
	GetUserByID(ctx context.Context, id string) (types.User, error)

	// FindUserByEmail looks up an exact (already normalized) email.
	// A non-empty excludeID skips that user, which lets an update keep
	// its own email. Returns ErrNotFound when free.
	FindUserByEmail(ctx context.Context, email, excludeID string) (types.User, error)

	// ListUsers returns one 1-indexed page ordered by id, plus the total
	// number of users.
	ListUsers(ctx context.Context, page, pageSize int) ([]types.User, int64, error)

	// UpdateUserByID replaces every field except the id and returns the
	// record as stored after the update.
	UpdateUserByID(ctx context.Context, id string, u types.User) (types.User, error)

	// DeleteUserByID removes a user and, with it, its addresses.
	DeleteUserByID(ctx context.Context, id string) error

	// FindUsersByCity matches users having at least one address whose
	// city equals city, ignoring case. Never returns nil on success.
	FindUsersByCity(ctx context.Context, city string) ([]types.User, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// ParseID converts a hex string into an ObjectID, wrapping failures in
// ErrInvalidID.
func ParseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return oid, nil
}

// Offset turns a 1-indexed page into the number of records to skip,
// applying the defaults for out-of-range values. ok is false when the
// page starts past any offset an int can hold; such a page is empty.
func Offset(page, pageSize int) (skip, limit int, ok bool) {
	if page < 1 {
		page = DefaultPage
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if page-1 > math.MaxInt/pageSize {
		return 0, pageSize, false
	}
	return (page - 1) * pageSize, pageSize, true
}

// TotalPages is ceil(total/pageSize) without the overflow of the
// (total+pageSize-1)/pageSize form.
func TotalPages(total int64, pageSize int) int64 {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	pages := total / int64(pageSize)
	if total%int64(pageSize) != 0 {
		pages++
	}
	return pages
}
