// Package mongo implements cart.Storage on a MongoDB collection with a TTL
// index.
package mongo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/xenking/citricloud-cart/internal/domain/cart"
)

// DefaultCollection is the collection cart payloads are kept in.
const DefaultCollection = "cart_storage"

var _ cart.Storage = (*Storage)(nil)

type document struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	ExpiresAt time.Time `bson:"expires_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Storage keeps one document per key. MongoDB's TTL monitor removes expired
// documents eventually; reads filter them out immediately.
type Storage struct {
	collection *mongo.Collection
	ttl        time.Duration
	now        func() time.Time
}

// New returns a Storage on collection.
func New(collection *mongo.Collection, ttl time.Duration) *Storage {
	if ttl <= 0 {
		ttl = cart.DefaultTTL
	}
	return &Storage{collection: collection, ttl: ttl, now: time.Now}
}

// Connect opens a client for uri and pings the primary.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connect to mongodb")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "ping mongodb")
	}
	return client, nil
}

// EnsureIndexes creates the TTL index on expires_at.
func (s *Storage) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return errors.Wrap(err, "create ttl index")
	}
	return nil
}

// GetItem returns the unexpired value for key.
func (s *Storage) GetItem(ctx context.Context, key string) (string, bool, error) {
	var doc document
	filter := bson.M{"_id": key, "expires_at": bson.M{"$gt": s.now()}}
	err := s.collection.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "find cart storage %q", key)
	}
	return doc.Value, true, nil
}

// SetItem upserts value and moves its expiry ttl into the future.
func (s *Storage) SetItem(ctx context.Context, key, value string) error {
	now := s.now()
	update := bson.M{"$set": bson.M{
		"value":      value,
		"expires_at": now.Add(s.ttl),
		"updated_at": now,
	}}
	_, err := s.collection.UpdateOne(ctx, bson.M{"_id": key}, update, options.Update().SetUpsert(true))
	if err != nil {
		return errors.Wrapf(err, "upsert cart storage %q", key)
	}
	return nil
}

// RemoveItem deletes key.
func (s *Storage) RemoveItem(ctx context.Context, key string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return errors.Wrapf(err, "delete cart storage %q", key)
	}
	return nil
}
