package export

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type documentWriter interface {
	InsertMany(ctx context.Context, documents []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
}

// MongoSink inserts items as documents into a same-named Mongo collection.
type MongoSink struct {
	client     *mongo.Client
	collection func(name string) documentWriter
}

// OpenMongoSink connects to cfg.URI and checks the server responds.
func OpenMongoSink(ctx context.Context, cfg MongoConfig) (*MongoSink, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("export: connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("export: ping mongo: %w", err)
	}
	s := NewMongoSink(client.Database(cfg.Database))
	s.client = client
	return s, nil
}

// NewMongoSink writes into db. Close leaves the client connected.
func NewMongoSink(db *mongo.Database) *MongoSink {
	return &MongoSink{collection: func(name string) documentWriter { return db.Collection(name) }}
}

func (s *MongoSink) Write(ctx context.Context, b Batch) error {
	if len(b.Items) == 0 {
		return nil
	}
	docs := make([]interface{}, len(b.Items))
	for i, item := range b.Items {
		docs[i] = bson.M(item)
	}
	if _, err := s.collection(b.Collection).InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("export: insert into mongo %s: %w", b.Collection, err)
	}
	return nil
}

func (s *MongoSink) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(context.Background())
}
