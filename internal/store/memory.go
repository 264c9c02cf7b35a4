package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store used by package tests and by local
// development runs (HEAL_STORE=memory). Document ids are zero-padded
// sequence numbers, so lexicographic id order is creation order, the
// same property ObjectID hex ids have in the MongoDB backend.
type MemStore struct {
	mu          sync.RWMutex
	collections map[string][]Document
	indexes     map[string]map[string]bool // collection -> field -> exists
	slowOps     []SlowOperation
	nextID      int64
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		collections: make(map[string][]Document),
		indexes:     make(map[string]map[string]bool),
	}
}

// Ping always succeeds for the in-memory backend.
func (s *MemStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Collections lists collection names in sorted order.
func (s *MemStore) Collections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// FindAll returns copies of every document in the collection, in
// insertion order.
func (s *MemStore) FindAll(ctx context.Context, collection string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := s.collections[collection]
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Clone())
	}
	return out, nil
}

// FindByID returns a copy of the document with the given id.
func (s *MemStore) FindByID(ctx context.Context, collection, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.collections[collection] {
		if d.ID() == id {
			return d.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// Insert adds copies of the documents, assigning sequence ids to any
// document without one.
func (s *MemStore) Insert(ctx context.Context, collection string, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range docs {
		c := d.Clone()
		if c.ID() == "" {
			s.nextID++
			c["_id"] = fmt.Sprintf("%024d", s.nextID)
		}
		s.collections[collection] = append(s.collections[collection], c)
	}
	return nil
}

// SetField applies a point update to one document.
func (s *MemStore) SetField(ctx context.Context, collection, id, field string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.collections[collection] {
		if d.ID() == id {
			d[field] = value
			return nil
		}
	}
	return ErrNotFound
}

// Delete removes one document by id.
func (s *MemStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collections[collection]
	for i, d := range docs {
		if d.ID() == id {
			s.collections[collection] = append(docs[:i], docs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// CreateIndex records a single-field index.
func (s *MemStore) CreateIndex(ctx context.Context, collection, field string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexes[collection] == nil {
		s.indexes[collection] = make(map[string]bool)
	}
	s.indexes[collection][field] = true
	return field + "_1", nil
}

// HasIndex reports whether an index on field was recorded.
func (s *MemStore) HasIndex(ctx context.Context, collection, field string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexes[collection][field], nil
}

// SlowOperations returns the seeded profiler samples matching the
// threshold and window.
func (s *MemStore) SlowOperations(ctx context.Context, threshold, window time.Duration) ([]SlowOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	since := time.Now().UTC().Add(-window)
	var out []SlowOperation
	for _, op := range s.slowOps {
		if op.Duration >= threshold && op.Timestamp.After(since) {
			out = append(out, op)
		}
	}
	return out, nil
}

// AddSlowOperation seeds a profiler sample. Tests and the memory-mode
// seed utility use this to simulate slow-query evidence.
func (s *MemStore) AddSlowOperation(op SlowOperation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if op.Timestamp.IsZero() {
		op.Timestamp = time.Now().UTC()
	}
	s.slowOps = append(s.slowOps, op)
}

// DropCollection removes a collection and its indexes.
func (s *MemStore) DropCollection(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections, collection)
	delete(s.indexes, collection)
	return nil
}

// Count returns the number of documents in a collection.
func (s *MemStore) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}
