// Package queue implements the bounded FIFO work queue shared between
// the scanner (sole producer) and the repairer (sole consumer).
//
// The queue owns the deduplication set: a record's (kind, collection,
// subject) key is claimed on push and stays claimed while the record is
// queued or being fixed, so one defect can never race itself through two
// concurrent repair attempts. Push never blocks; a full queue drops the
// new record so detection cadence is never delayed by a saturated queue.
package queue

import (
	"context"
	"sync"

	"github.com/ukdeo/Self-Healing-Database/pkg/models"
)

// PushResult reports the outcome of a Push.
type PushResult int

const (
	// Pushed means the record was enqueued and its key claimed.
	Pushed PushResult = iota

	// Duplicate means a record with the same dedup key is already
	// queued or being fixed; the new record was discarded.
	Duplicate

	// Dropped means the queue was at capacity; the record was discarded.
	Dropped
)

// WorkQueue is a bounded FIFO of defect records.
type WorkQueue struct {
	ch chan *models.DefectRecord

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New creates a WorkQueue with the given capacity.
func New(capacity int) *WorkQueue {
	return &WorkQueue{
		ch:       make(chan *models.DefectRecord, capacity),
		inflight: make(map[string]struct{}),
	}
}

// Push enqueues a record unless its dedup key is already in flight or
// the queue is full. Never blocks.
func (q *WorkQueue) Push(rec *models.DefectRecord) PushResult {
	key := rec.Key()

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.inflight[key]; exists {
		return Duplicate
	}

	select {
	case q.ch <- rec:
		q.inflight[key] = struct{}{}
		return Pushed
	default:
		return Dropped
	}
}

// Pop blocks until a record is available or the context is cancelled.
// The second return is false on cancellation.
func (q *WorkQueue) Pop(ctx context.Context) (*models.DefectRecord, bool) {
	select {
	case rec := <-q.ch:
		return rec, true
	case <-ctx.Done():
		return nil, false
	}
}

// Release frees a dedup key once its record reaches a terminal state,
// allowing the defect to be re-detected (and thereby retried) on a
// later scan cycle if it still exists.
func (q *WorkQueue) Release(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, key)
}

// Contains reports whether a dedup key is currently claimed.
func (q *WorkQueue) Contains(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.inflight[key]
	return ok
}

// Depth returns the number of queued records.
func (q *WorkQueue) Depth() int {
	return len(q.ch)
}

// Capacity returns the configured queue bound.
func (q *WorkQueue) Capacity() int {
	return cap(q.ch)
}
