// Package store defines the document-store capability consumed by the
// self-healing engine and provides its backends.
//
// The engine only needs a narrow capability: read documents, apply point
// updates and deletes, copy documents into side collections, create
// indexes, and sample the query profiler. The concrete store stays a
// black box behind the Store interface; MongoStore is the production
// backend and MemStore backs tests and local development.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a document id does not exist in a collection.
var ErrNotFound = errors.New("store: document not found")

// Document is one record in a collection. The "_id" field holds the
// document identifier as a string; for MongoDB-backed stores this is the
// ObjectID hex form, which sorts in creation order.
type Document map[string]any

// ID returns the document identifier, or "" if the document has none.
func (d Document) ID() string {
	id, _ := d["_id"].(string)
	return id
}

// StringField returns the named field as a string. The second return is
// false when the field is absent, nil, or not a string.
func (d Document) StringField(name string) (string, bool) {
	v, ok := d[name]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Clone returns a shallow copy of the document. Top-level fields are
// copied; nested values are shared.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// SlowOperation is one query-profile sample exceeding the latency threshold.
type SlowOperation struct {
	Collection string        `json:"collection"`
	Operation  string        `json:"operation"`
	Field      string        `json:"field"`
	Duration   time.Duration `json:"duration"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Store is the document-store capability. Implementations must be safe
// for concurrent use: the scanner, repairer, and request handlers all
// hold the same Store.
type Store interface {
	// Ping checks connectivity to the store.
	Ping(ctx context.Context) error

	// Collections lists the collection names in the database.
	Collections(ctx context.Context) ([]string, error)

	// FindAll returns every document in the collection. A missing
	// collection yields an empty result, not an error.
	FindAll(ctx context.Context, collection string) ([]Document, error)

	// FindByID returns the document with the given id, or ErrNotFound.
	FindByID(ctx context.Context, collection, id string) (Document, error)

	// Insert adds documents to the collection, creating it if needed.
	Insert(ctx context.Context, collection string, docs []Document) error

	// SetField applies a point update to one field of one document.
	SetField(ctx context.Context, collection, id, field string, value any) error

	// Delete removes one document by id.
	Delete(ctx context.Context, collection, id string) error

	// CreateIndex creates a single-field ascending index and returns its name.
	CreateIndex(ctx context.Context, collection, field string) (string, error)

	// HasIndex reports whether a single-field index on field exists.
	HasIndex(ctx context.Context, collection, field string) (bool, error)

	// SlowOperations returns profiler samples at or above threshold
	// recorded within the trailing window.
	SlowOperations(ctx context.Context, threshold, window time.Duration) ([]SlowOperation, error)

	// DropCollection removes an entire collection. Used by the seed and
	// verification utilities, never by the repair pipeline.
	DropCollection(ctx context.Context, collection string) error
}
