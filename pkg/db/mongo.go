package db

import (
	"context"
	"fmt"

	"irdin-archive/pkg/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoClient wraps the MongoDB collection that mirrors the catalog as documents.
type MongoClient struct {
	mongoClient *mongo.Client
	collection  *mongo.Collection
}

// NewMongoClient creates a client for the given collection. Call Connect before use.
func NewMongoClient(connectionString, databaseName, collectionName string) *MongoClient {
	clientOptions := options.Client().ApplyURI(connectionString)
	mongoClient, err := mongo.Connect(context.Background(), clientOptions)
	if err != nil {
		// Connect reports the missing client
		return &MongoClient{}
	}

	return &MongoClient{
		mongoClient: mongoClient,
		collection:  mongoClient.Database(databaseName).Collection(collectionName),
	}
}

// Connect verifies the connection and makes sure slugs are unique in the collection.
func (c *MongoClient) Connect(ctx context.Context) error {
	if c.mongoClient == nil {
		return fmt.Errorf("mongo client not initialized")
	}
	if err := c.mongoClient.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}

	_, err := c.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "slug", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("ensure slug index: %w", err)
	}
	return nil
}

// Close closes the MongoDB connection.
func (c *MongoClient) Close(ctx context.Context) error {
	if c.mongoClient == nil {
		return nil
	}
	return c.mongoClient.Disconnect(ctx)
}

// UpsertSources writes a batch of documents keyed by slug and returns how many were newly inserted.
func (c *MongoClient) UpsertSources(ctx context.Context, docs []*domain.SourceDocument) (int, error) {
	if c.collection == nil {
		return 0, fmt.Errorf("collection not initialized")
	}
	if len(docs) == 0 {
		return 0, nil
	}

	models := make([]mongo.WriteModel, 0, len(docs))
	for _, doc := range docs {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"slug": doc.Slug}).
			SetUpdate(bson.M{"$set": doc}).
			SetUpsert(true))
	}

	res, err := c.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, fmt.Errorf("bulk upsert: %w", err)
	}
	return int(res.UpsertedCount), nil
}

// MirroredSlugs returns the set of slugs already present in the collection.
func (c *MongoClient) MirroredSlugs(ctx context.Context) (map[string]bool, error) {
	if c.collection == nil {
		return nil, fmt.Errorf("collection not initialized")
	}

	cursor, err := c.collection.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"slug": 1, "_id": 0}))
	if err != nil {
		return nil, fmt.Errorf("failed to query slugs: %w", err)
	}
	defer cursor.Close(ctx)

	slugs := make(map[string]bool)
	for cursor.Next(ctx) {
		var result struct {
			Slug string `bson:"slug"`
		}
		if err := cursor.Decode(&result); err != nil {
			continue
		}
		if result.Slug != "" {
			slugs[result.Slug] = true
		}
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return slugs, nil
}
