// Package sqlite provides a SQLite-backed implementation of the
// storage.Storage interface using Go's standard database/sql package.
//
// Users are kept as JSON documents, one row each, next to the two
// columns SQLite itself has to know about: the id and the email. The
// email column carries a UNIQUE constraint, which is the authoritative
// guard against two concurrent creates with the same address.
//
// The package registers its own driver name so every connection gets a
// "fold" SQL function for case-insensitive city matching. SQLite's
// built-in lower() only folds ASCII.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/aanand-mishra/usuarios-api/internal/config"
	"github.com/aanand-mishra/usuarios-api/internal/storage"
	"github.com/aanand-mishra/usuarios-api/internal/types"
)

const driverName = "sqlite3_usuarios"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("fold", strings.ToLower, true)
		},
	})
}

// SQLite is the concrete implementation of storage.Storage.
type SQLite struct {
	Db      *sql.DB
	timeout time.Duration
}

var _ storage.Storage = (*SQLite)(nil)

// New opens the SQLite database at cfg.StoragePath (":memory:" works),
// creates the usuarios table if needed and returns a ready-to-use *SQLite.
func New(cfg *config.Config) (*SQLite, error) {
	db, err := sql.Open(driverName, cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("sqlite.New: open db: %w", err)
	}

	// One connection: SQLite serializes writers anyway, and an in-memory
	// database only exists on the connection that created it.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS usuarios (
			id    TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			doc   TEXT NOT NULL
		)
	`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite.New: create table: %w", err)
	}

	return &SQLite{Db: db, timeout: cfg.QueryTimeout}, nil
}

func (s *SQLite) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// CreateUser inserts u under a new ObjectID.
func (s *SQLite) CreateUser(ctx context.Context, u types.User) (types.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	u.ID = primitive.NewObjectID()

	doc, err := json.Marshal(u)
	if err != nil {
		return types.User{}, fmt.Errorf("CreateUser: encode: %w", err)
	}

	stmt, err := s.Db.PrepareContext(ctx,
		"INSERT INTO usuarios (id, email, doc) VALUES (?, ?, ?)",
	)
	if err != nil {
		return types.User{}, fmt.Errorf("CreateUser: prepare: %w", err)
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx, u.ID.Hex(), u.Email, string(doc)); err != nil {
		if isUniqueViolation(err) {
			return types.User{}, storage.ErrDuplicateEmail
		}
		return types.User{}, fmt.Errorf("CreateUser: exec: %w", err)
	}

	return u, nil
}

// GetUserByID fetches exactly one user by id.
func (s *SQLite) GetUserByID(ctx context.Context, id string) (types.User, error) {
	oid, err := storage.ParseID(id)
	if err != nil {
		return types.User{}, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.queryOne(ctx, "GetUserByID",
		"SELECT doc FROM usuarios WHERE id = ? LIMIT 1", oid.Hex())
}

// FindUserByEmail looks the email up, optionally skipping excludeID.
func (s *SQLite) FindUserByEmail(ctx context.Context, email, excludeID string) (types.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if excludeID == "" {
		return s.queryOne(ctx, "FindUserByEmail",
			"SELECT doc FROM usuarios WHERE email = ? LIMIT 1", email)
	}

	oid, err := storage.ParseID(excludeID)
	if err != nil {
		return types.User{}, err
	}
	return s.queryOne(ctx, "FindUserByEmail",
		"SELECT doc FROM usuarios WHERE email = ? AND id <> ? LIMIT 1", email, oid.Hex())
}

// ListUsers returns one page in insertion order and the total count.
func (s *SQLite) ListUsers(ctx context.Context, page, pageSize int) ([]types.User, int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var total int64
	if err := s.Db.QueryRowContext(ctx, "SELECT COUNT(*) FROM usuarios").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListUsers: count: %w", err)
	}

	skip, limit, ok := storage.Offset(page, pageSize)
	if !ok || int64(skip) >= total {
		return []types.User{}, total, nil
	}
	users, err := s.queryMany(ctx, "ListUsers",
		"SELECT doc FROM usuarios ORDER BY rowid LIMIT ? OFFSET ?", limit, skip)
	if err != nil {
		return nil, 0, err
	}

	return users, total, nil
}

// UpdateUserByID replaces the stored document and re-reads it.
func (s *SQLite) UpdateUserByID(ctx context.Context, id string, u types.User) (types.User, error) {
	oid, err := storage.ParseID(id)
	if err != nil {
		return types.User{}, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	u.ID = oid
	doc, err := json.Marshal(u)
	if err != nil {
		return types.User{}, fmt.Errorf("UpdateUserByID: encode: %w", err)
	}

	stmt, err := s.Db.PrepareContext(ctx,
		"UPDATE usuarios SET email = ?, doc = ? WHERE id = ?",
	)
	if err != nil {
		return types.User{}, fmt.Errorf("UpdateUserByID: prepare: %w", err)
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(ctx, u.Email, string(doc), oid.Hex())
	if err != nil {
		if isUniqueViolation(err) {
			return types.User{}, storage.ErrDuplicateEmail
		}
		return types.User{}, fmt.Errorf("UpdateUserByID: exec: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return types.User{}, fmt.Errorf("UpdateUserByID: rows affected: %w", err)
	}
	if n == 0 {
		return types.User{}, storage.ErrNotFound
	}

	return s.queryOne(ctx, "UpdateUserByID",
		"SELECT doc FROM usuarios WHERE id = ? LIMIT 1", oid.Hex())
}

// DeleteUserByID removes a user row.
func (s *SQLite) DeleteUserByID(ctx context.Context, id string) error {
	oid, err := storage.ParseID(id)
	if err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.Db.ExecContext(ctx, "DELETE FROM usuarios WHERE id = ?", oid.Hex())
	if err != nil {
		return fmt.Errorf("DeleteUserByID: exec: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("DeleteUserByID: rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// FindUsersByCity walks each document's direcciones with json_each and
// compares folded city names for equality.
func (s *SQLite) FindUsersByCity(ctx context.Context, city string) ([]types.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.queryMany(ctx, "FindUsersByCity", `
		SELECT doc FROM usuarios u
		WHERE EXISTS (
			SELECT 1 FROM json_each(u.doc, '$.direcciones') AS d
			WHERE fold(json_extract(d.value, '$.ciudad')) = fold(?)
		)
		ORDER BY u.rowid`, strings.TrimSpace(city))
}

func (s *SQLite) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.Db.PingContext(ctx)
}

func (s *SQLite) Close(context.Context) error {
	return s.Db.Close()
}

func (s *SQLite) queryOne(ctx context.Context, op, query string, args ...any) (types.User, error) {
	var doc string
	if err := s.Db.QueryRowContext(ctx, query, args...).Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, storage.ErrNotFound
		}
		return types.User{}, fmt.Errorf("%s: scan: %w", op, err)
	}

	var u types.User
	if err := json.Unmarshal([]byte(doc), &u); err != nil {
		return types.User{}, fmt.Errorf("%s: decode: %w", op, err)
	}
	return u, nil
}

func (s *SQLite) queryMany(ctx context.Context, op, query string, args ...any) ([]types.User, error) {
	rows, err := s.Db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	defer rows.Close()

	users := make([]types.User, 0)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		var u types.User
		if err := json.Unmarshal([]byte(doc), &u); err != nil {
			return nil, fmt.Errorf("%s: decode row: %w", op, err)
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows iteration: %w", op, err)
	}

	return users, nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}
