// Package store encapsulates MongoDB client management and the collection-backed
// content, operator and stats stores.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/aphabeta/ADLLinks/internal/config"
)

// Collection names used across the bot.
const (
	CollectionCategories = "categories"
	CollectionButtons    = "buttons"
	CollectionUsers      = "users"
	CollectionChannels   = "force_channels"
	CollectionClicks     = "clicks"
	CollectionOperators  = "sudo_users"
)

// mongoClient captures the subset of mongo.Client behavior we rely on to allow
// lightweight stubbing in tests without a live Mongo deployment.
type mongoClient interface {
	Ping(context.Context, *readpref.ReadPref) error
	Database(string, ...*options.DatabaseOptions) *mongo.Database
	Disconnect(context.Context) error
}

// connectMongo is overridable for tests.
var connectMongo = func(ctx context.Context, opts *options.ClientOptions) (mongoClient, error) {
	return mongo.Connect(ctx, opts)
}

// createIndexes is overridable for tests.
var createIndexes = func(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) ([]string, error) {
	return coll.Indexes().CreateMany(ctx, models)
}

// Manager owns a MongoDB client and the configured database handle.
type Manager struct {
	client mongoClient
	db     *mongo.Database
}

// NewManager initializes the Mongo client using the supplied configuration and
// verifies connectivity with a ping.
func NewManager(ctx context.Context, cfg config.Config) (*Manager, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	client, err := connectMongo(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Manager{
		client: client,
		db:     client.Database(cfg.MongoDB),
	}, nil
}

// Database returns the configured database handle.
func (m *Manager) Database() *mongo.Database {
	return m.db
}

// Collection returns a collection handle for the given name.
func (m *Manager) Collection(name string) *mongo.Collection {
	return m.db.Collection(name)
}

// Categories returns the categories collection handle.
func (m *Manager) Categories() *mongo.Collection { return m.Collection(CollectionCategories) }

// Buttons returns the buttons collection handle.
func (m *Manager) Buttons() *mongo.Collection { return m.Collection(CollectionButtons) }

// Users returns the users collection handle.
func (m *Manager) Users() *mongo.Collection { return m.Collection(CollectionUsers) }

// Channels returns the required-channels collection handle.
func (m *Manager) Channels() *mongo.Collection { return m.Collection(CollectionChannels) }

// Clicks returns the click events collection handle.
func (m *Manager) Clicks() *mongo.Collection { return m.Collection(CollectionClicks) }

// Operators returns the operator collection handle.
func (m *Manager) Operators() *mongo.Collection { return m.Collection(CollectionOperators) }

// Ping checks connectivity against the primary; used by the health endpoint.
func (m *Manager) Ping(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.client == nil {
		return errors.New("store manager is not initialized")
	}

	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}

	return nil
}

type collectionIndexes struct {
	collection string
	models     []mongo.IndexModel
}

func uniqueIndex(key, name string) mongo.IndexModel {
	return mongo.IndexModel{
		Keys:    bson.D{{Key: key, Value: 1}},
		Options: options.Index().SetName(name).SetUnique(true),
	}
}

func lookupIndex(key, name string) mongo.IndexModel {
	return mongo.IndexModel{
		Keys:    bson.D{{Key: key, Value: 1}},
		Options: options.Index().SetName(name),
	}
}

func baseIndexes() []collectionIndexes {
	return []collectionIndexes{
		{collection: CollectionCategories, models: []mongo.IndexModel{uniqueIndex("name", "name_unique")}},
		{collection: CollectionButtons, models: []mongo.IndexModel{
			uniqueIndex("text", "text_unique"),
			lookupIndex("category_id", "category_id"),
		}},
		{collection: CollectionUsers, models: []mongo.IndexModel{uniqueIndex("user_id", "user_id_unique")}},
		{collection: CollectionChannels, models: []mongo.IndexModel{uniqueIndex("username", "username_unique")}},
		{collection: CollectionClicks, models: []mongo.IndexModel{lookupIndex("button_id", "button_id")}},
		{collection: CollectionOperators, models: []mongo.IndexModel{uniqueIndex("user_id", "user_id_unique")}},
	}
}

// EnsureBaseIndexes creates the unique and lookup indexes every collection
// relies on. Collections are created implicitly if they do not already exist.
func (m *Manager) EnsureBaseIndexes(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}

	for _, idx := range baseIndexes() {
		if _, err := createIndexes(ctx, m.Collection(idx.collection), idx.models); err != nil {
			return fmt.Errorf("create %s indexes: %w", idx.collection, err)
		}
	}

	return nil
}

// Close disconnects the Mongo client.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil || m.client == nil {
		return nil
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	return m.client.Disconnect(ctx)
}
