// Package storagetest holds the behaviour every storage.Storage backend
// must show. Backend packages call Run from their own tests.
package storagetest

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/aanand-mishra/usuarios-api/internal/storage"
	"github.com/aanand-mishra/usuarios-api/internal/types"
)

// Factory returns an empty backend. It is called once per subtest.
type Factory func(t *testing.T) storage.Storage

// NewUser builds a valid user with a single address in city.
func NewUser(email, city string) types.User {
	edad := 30
	return types.User{
		Nombre:        "Ana",
		Email:         email,
		Edad:          &edad,
		FechaCreacion: time.Date(2024, 3, 17, 10, 30, 0, 0, time.UTC),
		Direcciones: []types.Address{
			{Calle: "Av. Principal", Ciudad: city, Pais: "Perú", CodigoPostal: "15001"},
		},
	}
}

// Run executes the contract suite against backends built by newStore.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("create_then_get", func(t *testing.T) {
		s := newStore(t)

		created, err := s.CreateUser(ctx, NewUser("ana@x.com", "Lima"))
		require.NoError(t, err)
		require.False(t, created.ID.IsZero())

		got, err := s.GetUserByID(ctx, created.ID.Hex())
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, "Ana", got.Nombre)
		assert.Equal(t, "ana@x.com", got.Email)
		require.NotNil(t, got.Edad)
		assert.Equal(t, 30, *got.Edad)
		assert.True(t, created.FechaCreacion.Equal(got.FechaCreacion))
		assert.Equal(t, created.Direcciones, got.Direcciones)
	})

	t.Run("get_missing_and_malformed", func(t *testing.T) {
		s := newStore(t)

		_, err := s.GetUserByID(ctx, primitive.NewObjectID().Hex())
		assert.ErrorIs(t, err, storage.ErrNotFound)

		_, err = s.GetUserByID(ctx, "not-an-id")
		assert.ErrorIs(t, err, storage.ErrInvalidID)
	})

	t.Run("unique_email_index", func(t *testing.T) {
		s := newStore(t)

		_, err := s.CreateUser(ctx, NewUser("dup@x.com", "Lima"))
		require.NoError(t, err)

		_, err = s.CreateUser(ctx, NewUser("dup@x.com", "Cusco"))
		assert.ErrorIs(t, err, storage.ErrDuplicateEmail)
	})

	t.Run("find_by_email_with_exclusion", func(t *testing.T) {
		s := newStore(t)

		a, err := s.CreateUser(ctx, NewUser("a@x.com", "Lima"))
		require.NoError(t, err)

		found, err := s.FindUserByEmail(ctx, "a@x.com", "")
		require.NoError(t, err)
		assert.Equal(t, a.ID, found.ID)

		_, err = s.FindUserByEmail(ctx, "a@x.com", a.ID.Hex())
		assert.ErrorIs(t, err, storage.ErrNotFound)

		_, err = s.FindUserByEmail(ctx, "nobody@x.com", "")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("list_pages", func(t *testing.T) {
		s := newStore(t)

		for i := 0; i < 7; i++ {
			_, err := s.CreateUser(ctx, NewUser(fmt.Sprintf("u%d@x.com", i), "Lima"))
			require.NoError(t, err)
		}

		first, total, err := s.ListUsers(ctx, 1, 3)
		require.NoError(t, err)
		assert.EqualValues(t, 7, total)
		require.Len(t, first, 3)
		assert.Equal(t, "u0@x.com", first[0].Email)

		last, _, err := s.ListUsers(ctx, 3, 3)
		require.NoError(t, err)
		require.Len(t, last, 1)
		assert.Equal(t, "u6@x.com", last[0].Email)

		beyond, _, err := s.ListUsers(ctx, 9, 3)
		require.NoError(t, err)
		assert.NotNil(t, beyond)
		assert.Empty(t, beyond)

		defaults, _, err := s.ListUsers(ctx, 0, 0)
		require.NoError(t, err)
		assert.Len(t, defaults, 7)

		huge, total, err := s.ListUsers(ctx, math.MaxInt/2, 4)
		require.NoError(t, err)
		assert.EqualValues(t, 7, total)
		assert.NotNil(t, huge)
		assert.Empty(t, huge)

		wide, _, err := s.ListUsers(ctx, 1, math.MaxInt)
		require.NoError(t, err)
		assert.Len(t, wide, 7)
	})

	t.Run("update", func(t *testing.T) {
		s := newStore(t)

		a, err := s.CreateUser(ctx, NewUser("a@x.com", "Lima"))
		require.NoError(t, err)
		_, err = s.CreateUser(ctx, NewUser("b@x.com", "Lima"))
		require.NoError(t, err)

		patch := NewUser("a2@x.com", "Arequipa")
		patch.Nombre = "Ana María"
		patch.Edad = nil

		updated, err := s.UpdateUserByID(ctx, a.ID.Hex(), patch)
		require.NoError(t, err)
		assert.Equal(t, a.ID, updated.ID)
		assert.Equal(t, "Ana María", updated.Nombre)
		assert.Equal(t, "a2@x.com", updated.Email)
		assert.Nil(t, updated.Edad)
		assert.Equal(t, "Arequipa", updated.Direcciones[0].Ciudad)

		_, err = s.UpdateUserByID(ctx, a.ID.Hex(), NewUser("b@x.com", "Lima"))
		assert.ErrorIs(t, err, storage.ErrDuplicateEmail)

		_, err = s.UpdateUserByID(ctx, primitive.NewObjectID().Hex(), patch)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		_, err = s.UpdateUserByID(ctx, "zzz", patch)
		assert.ErrorIs(t, err, storage.ErrInvalidID)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)

		a, err := s.CreateUser(ctx, NewUser("a@x.com", "Lima"))
		require.NoError(t, err)

		require.NoError(t, s.DeleteUserByID(ctx, a.ID.Hex()))

		_, err = s.GetUserByID(ctx, a.ID.Hex())
		assert.ErrorIs(t, err, storage.ErrNotFound)

		assert.ErrorIs(t, s.DeleteUserByID(ctx, a.ID.Hex()), storage.ErrNotFound)
		assert.ErrorIs(t, s.DeleteUserByID(ctx, "nope"), storage.ErrInvalidID)
	})

	t.Run("find_by_city_exact_case_insensitive", func(t *testing.T) {
		s := newStore(t)

		lima, err := s.CreateUser(ctx, NewUser("lima@x.com", "Lima"))
		require.NoError(t, err)

		multi := NewUser("multi@x.com", "Cusco")
		multi.Direcciones = append(multi.Direcciones,
			types.Address{Calle: "Jr. Unión", Ciudad: "LIMA", Pais: "Perú", CodigoPostal: "15002"})
		_, err = s.CreateUser(ctx, multi)
		require.NoError(t, err)

		_, err = s.CreateUser(ctx, NewUser("limaoeste@x.com", "Lima Oeste"))
		require.NoError(t, err)

		for _, q := range []string{"Lima", "lima", "LIMA", " lima "} {
			users, err := s.FindUsersByCity(ctx, q)
			require.NoError(t, err, q)
			require.Len(t, users, 2, q)
			assert.Equal(t, lima.ID, users[0].ID, q)
		}

		for _, q := range []string{"Lim", "ima", "Lima Oes", "L.ma", "Lima.*"} {
			users, err := s.FindUsersByCity(ctx, q)
			require.NoError(t, err, q)
			assert.NotNil(t, users, q)
			assert.Empty(t, users, q)
		}
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(ctx))
	})
}
