// Package mongodb implements storage.Storage on a MongoDB collection.
//
// The client is opened once at startup and shared by every request; the
// driver owns connection pooling. A unique index on email is created on
// startup so duplicate emails are rejected by the server even when two
// requests pass the handlers' pre-check at the same time.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/aanand-mishra/usuarios-api/internal/config"
	"github.com/aanand-mishra/usuarios-api/internal/storage"
	"github.com/aanand-mishra/usuarios-api/internal/types"
)

// Mongo is the MongoDB implementation of storage.Storage.
type Mongo struct {
	client  *mongo.Client
	coll    *mongo.Collection
	timeout time.Duration
}

var _ storage.Storage = (*Mongo)(nil)

// New connects to cfg.Mongo.URI, pings the primary and makes sure the
// email index exists.
func New(ctx context.Context, cfg *config.Config) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.Mongo.URI).
		SetTimeout(cfg.QueryTimeout))
	if err != nil {
		return nil, fmt.Errorf("mongodb.New: connect: %w", err)
	}

	m := &Mongo{
		client:  client,
		coll:    client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection),
		timeout: cfg.QueryTimeout,
	}

	if err := m.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb.New: %w", err)
	}

	if err := m.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb.New: %w", err)
	}

	return m, nil
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	_, err := m.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("email_unique"),
		},
		{
			Keys:    bson.D{{Key: "direcciones.ciudad", Value: 1}},
			Options: options.Index().SetName("direcciones_ciudad"),
		},
	})
	if err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}
	return nil
}

func (m *Mongo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}

func (m *Mongo) CreateUser(ctx context.Context, u types.User) (types.User, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	u.ID = primitive.NewObjectID()
	if _, err := m.coll.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return types.User{}, storage.ErrDuplicateEmail
		}
		return types.User{}, fmt.Errorf("CreateUser: insert: %w", err)
	}

	return u, nil
}

func (m *Mongo) GetUserByID(ctx context.Context, id string) (types.User, error) {
	oid, err := storage.ParseID(id)
	if err != nil {
		return types.User{}, err
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	return m.findOne(ctx, "GetUserByID", bson.M{"_id": oid})
}

func (m *Mongo) FindUserByEmail(ctx context.Context, email, excludeID string) (types.User, error) {
	filter := bson.M{"email": email}
	if excludeID != "" {
		oid, err := storage.ParseID(excludeID)
		if err != nil {
			return types.User{}, err
		}
		filter["_id"] = bson.M{"$ne": oid}
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	return m.findOne(ctx, "FindUserByEmail", filter)
}

func (m *Mongo) ListUsers(ctx context.Context, page, pageSize int) ([]types.User, int64, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	total, err := m.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return nil, 0, fmt.Errorf("ListUsers: count: %w", err)
	}

	skip, limit, ok := storage.Offset(page, pageSize)
	if !ok || int64(skip) >= total {
		return []types.User{}, total, nil
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))

	users, err := m.findMany(ctx, "ListUsers", bson.D{}, opts)
	if err != nil {
		return nil, 0, err
	}

	return users, total, nil
}

func (m *Mongo) UpdateUserByID(ctx context.Context, id string, u types.User) (types.User, error) {
	oid, err := storage.ParseID(id)
	if err != nil {
		return types.User{}, err
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	set := bson.M{
		"nombre":         u.Nombre,
		"email":          u.Email,
		"fecha_creacion": u.FechaCreacion,
		"direcciones":    u.Direcciones,
	}
	update := bson.M{"$set": set}
	if u.Edad != nil {
		set["edad"] = *u.Edad
	} else {
		update["$unset"] = bson.M{"edad": ""}
	}

	var updated types.User
	err = m.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return types.User{}, storage.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return types.User{}, storage.ErrDuplicateEmail
	case err != nil:
		return types.User{}, fmt.Errorf("UpdateUserByID: %w", err)
	}

	return updated, nil
}

func (m *Mongo) DeleteUserByID(ctx context.Context, id string) error {
	oid, err := storage.ParseID(id)
	if err != nil {
		return err
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	res, err := m.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("DeleteUserByID: %w", err)
	}
	if res.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// FindUsersByCity uses an anchored, case-insensitive regex. The city is
// quoted, so regex metacharacters in the query match literally.
func (m *Mongo) FindUsersByCity(ctx context.Context, city string) ([]types.User, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	pattern := "^" + regexp.QuoteMeta(strings.TrimSpace(city)) + "$"
	filter := bson.M{"direcciones.ciudad": primitive.Regex{Pattern: pattern, Options: "i"}}

	return m.findMany(ctx, "FindUsersByCity", filter,
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

func (m *Mongo) Ping(ctx context.Context) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *Mongo) findOne(ctx context.Context, op string, filter any) (types.User, error) {
	var u types.User
	if err := m.coll.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.User{}, storage.ErrNotFound
		}
		return types.User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func (m *Mongo) findMany(ctx context.Context, op string, filter any, opts *options.FindOptions) ([]types.User, error) {
	cur, err := m.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: find: %w", op, err)
	}

	users := make([]types.User, 0)
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", op, err)
	}
	return users, nil
}

// DropCollection removes every user. Tests use it to start clean.
func (m *Mongo) DropCollection(ctx context.Context) error {
	if err := m.coll.Drop(ctx); err != nil {
		return err
	}
	return m.ensureIndexes(ctx)
}
