package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store against a MongoDB database.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore connects to MongoDB and verifies connectivity with a ping.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("store: failed to connect to MongoDB at %s: %w", uri, err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("store: failed to ping MongoDB at %s: %w", uri, err)
	}

	log.Printf("store: connected to MongoDB database %q", database)
	return &MongoStore{
		client: client,
		db:     client.Database(database),
	}, nil
}

// Close disconnects the underlying client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping checks connectivity to the MongoDB deployment.
func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Collections lists the collection names in the database.
func (s *MongoStore) Collections(ctx context.Context) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("store: list collections: %w", err)
	}
	return names, nil
}

// FindAll returns every document in the collection.
func (s *MongoStore) FindAll(ctx context.Context, collection string) ([]Document, error) {
	cursor, err := s.db.Collection(collection).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("store: find all in %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var docs []Document
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("store: decode document in %s: %w", collection, err)
		}
		docs = append(docs, fromBSON(raw))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("store: cursor error in %s: %w", collection, err)
	}
	return docs, nil
}

// FindByID returns the document with the given id, or ErrNotFound.
func (s *MongoStore) FindByID(ctx context.Context, collection, id string) (Document, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": idValue(id)}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find %s/%s: %w", collection, id, err)
	}
	return fromBSON(raw), nil
}

// Insert adds documents to the collection.
func (s *MongoStore) Insert(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	payload := make([]any, 0, len(docs))
	for _, d := range docs {
		payload = append(payload, toBSON(d))
	}
	if _, err := s.db.Collection(collection).InsertMany(ctx, payload); err != nil {
		return fmt.Errorf("store: insert into %s: %w", collection, err)
	}
	return nil
}

// SetField applies a $set point update to one document.
func (s *MongoStore) SetField(ctx context.Context, collection, id, field string, value any) error {
	res, err := s.db.Collection(collection).UpdateOne(ctx,
		bson.M{"_id": idValue(id)},
		bson.M{"$set": bson.M{field: value}})
	if err != nil {
		return fmt.Errorf("store: set %s on %s/%s: %w", field, collection, id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes one document by id.
func (s *MongoStore) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": idValue(id)})
	if err != nil {
		return fmt.Errorf("store: delete %s/%s: %w", collection, id, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateIndex creates a single-field ascending index.
func (s *MongoStore) CreateIndex(ctx context.Context, collection, field string) (string, error) {
	model := mongo.IndexModel{Keys: bson.D{{Key: field, Value: 1}}}
	name, err := s.db.Collection(collection).Indexes().CreateOne(ctx, model)
	if err != nil {
		return "", fmt.Errorf("store: create index on %s.%s: %w", collection, field, err)
	}
	return name, nil
}

// HasIndex reports whether a single-field index on field exists.
func (s *MongoStore) HasIndex(ctx context.Context, collection, field string) (bool, error) {
	cursor, err := s.db.Collection(collection).Indexes().List(ctx)
	if err != nil {
		return false, fmt.Errorf("store: list indexes on %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var idx bson.M
		if err := cursor.Decode(&idx); err != nil {
			return false, fmt.Errorf("store: decode index on %s: %w", collection, err)
		}
		if keys, ok := idx["key"].(bson.M); ok {
			if _, ok := keys[field]; ok {
				return true, nil
			}
		}
	}
	return false, cursor.Err()
}

// SlowOperations reads the database profiler for operations at or above
// threshold within the trailing window. Profiling is enabled at the
// threshold on first use; enabling is best-effort because it requires
// elevated privileges on shared deployments.
func (s *MongoStore) SlowOperations(ctx context.Context, threshold, window time.Duration) ([]SlowOperation, error) {
	s.ensureProfiling(ctx, threshold)

	since := time.Now().UTC().Add(-window)
	filter := bson.M{
		"millis": bson.M{"$gte": threshold.Milliseconds()},
		"ts":     bson.M{"$gte": since},
	}
	cursor, err := s.db.Collection("system.profile").Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("store: read system.profile: %w", err)
	}
	defer cursor.Close(ctx)

	var ops []SlowOperation
	for cursor.Next(ctx) {
		var entry bson.M
		if err := cursor.Decode(&entry); err != nil {
			return nil, fmt.Errorf("store: decode profile entry: %w", err)
		}
		ops = append(ops, profileEntryToOp(entry))
	}
	return ops, cursor.Err()
}

// DropCollection removes an entire collection.
func (s *MongoStore) DropCollection(ctx context.Context, collection string) error {
	if err := s.db.Collection(collection).Drop(ctx); err != nil {
		return fmt.Errorf("store: drop %s: %w", collection, err)
	}
	return nil
}

// ensureProfiling turns on level-1 profiling at the given slow-ms
// threshold if the profiler is currently off.
func (s *MongoStore) ensureProfiling(ctx context.Context, threshold time.Duration) {
	var status bson.M
	err := s.db.RunCommand(ctx, bson.D{{Key: "profile", Value: -1}}).Decode(&status)
	if err != nil {
		log.Printf("store: could not read profiler status: %v", err)
		return
	}
	if was, ok := status["was"].(int32); ok && was >= 1 {
		return
	}
	err = s.db.RunCommand(ctx, bson.D{
		{Key: "profile", Value: 1},
		{Key: "slowms", Value: threshold.Milliseconds()},
	}).Err()
	if err != nil {
		log.Printf("store: could not enable profiler: %v", err)
	}
}

// profileEntryToOp converts a system.profile document into a SlowOperation.
// The indexed field is a best effort read of the first filter key.
func profileEntryToOp(entry bson.M) SlowOperation {
	op := SlowOperation{}

	if ns, ok := entry["ns"].(string); ok {
		if i := strings.LastIndex(ns, "."); i >= 0 {
			op.Collection = ns[i+1:]
		} else {
			op.Collection = ns
		}
	}
	if opName, ok := entry["op"].(string); ok {
		op.Operation = opName
	}
	switch millis := entry["millis"].(type) {
	case int32:
		op.Duration = time.Duration(millis) * time.Millisecond
	case int64:
		op.Duration = time.Duration(millis) * time.Millisecond
	case float64:
		op.Duration = time.Duration(millis) * time.Millisecond
	}
	if ts, ok := entry["ts"].(primitive.DateTime); ok {
		op.Timestamp = ts.Time()
	}

	if command, ok := entry["command"].(bson.M); ok {
		if filter, ok := command["filter"].(bson.M); ok {
			for key := range filter {
				if !strings.HasPrefix(key, "$") && key != "_id" {
					op.Field = key
					break
				}
			}
		}
	}
	return op
}

// fromBSON converts a decoded bson.M into a Document, normalizing the
// _id to its string form so callers never touch driver types.
func fromBSON(raw bson.M) Document {
	doc := make(Document, len(raw))
	for k, v := range raw {
		doc[k] = v
	}
	if oid, ok := raw["_id"].(primitive.ObjectID); ok {
		doc["_id"] = oid.Hex()
	} else if v, ok := raw["_id"]; ok {
		doc["_id"] = fmt.Sprintf("%v", v)
	}
	return doc
}

// toBSON converts a Document for insertion, restoring hex string _id
// values to ObjectIDs so copies keep their original identity.
func toBSON(doc Document) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	if id, ok := doc["_id"].(string); ok {
		out["_id"] = idValue(id)
	}
	return out
}

// idValue maps a string id back to the native _id value: valid ObjectID
// hex becomes an ObjectID, anything else stays a plain string.
func idValue(id string) any {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}
