package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ukdeo/Self-Healing-Database/internal/queue"
	"github.com/ukdeo/Self-Healing-Database/internal/rules"
	"github.com/ukdeo/Self-Healing-Database/internal/state"
	"github.com/ukdeo/Self-Healing-Database/internal/store"
)

func newTestScanner(t *testing.T, st store.Store, capacity int) (*Scanner, *queue.WorkQueue, *state.State) {
	t.Helper()
	catalog, err := rules.NewCatalog(rules.DefaultConfig())
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	q := queue.New(capacity)
	s := state.New()
	return New(st, catalog, q, s, time.Minute), q, s
}

func seedDefects(t *testing.T, st *store.MemStore) {
	t.Helper()
	ctx := context.Background()
	users := []store.Document{
		{"_id": "u1", "email": "dup@example.com"},
		{"_id": "u2", "email": "dup@example.com"},
	}
	orders := []store.Document{
		{"_id": "o1", "user_email": "ghost@example.com", "status": "pending"},
	}
	if err := st.Insert(ctx, "users", users); err != nil {
		t.Fatalf("seed users: %v", err)
	}
	if err := st.Insert(ctx, "orders", orders); err != nil {
		t.Fatalf("seed orders: %v", err)
	}
}

func TestCyclePushesDetectedDefects(t *testing.T) {
	st := store.NewMemStore()
	seedDefects(t, st)
	scan, q, s := newTestScanner(t, st, 10)

	scan.runCycle(context.Background())

	snap := s.Snapshot(q.Depth())
	if !snap.ConnectionHealthy {
		t.Error("ConnectionHealthy = false, want true")
	}
	// One duplicate group and one orphan.
	if snap.TotalDetected != 2 {
		t.Errorf("TotalDetected = %d, want 2", snap.TotalDetected)
	}
	if snap.QueueDepth != 2 {
		t.Errorf("QueueDepth = %d, want 2", snap.QueueDepth)
	}
	if snap.DetectionCycles != 1 {
		t.Errorf("DetectionCycles = %d, want 1", snap.DetectionCycles)
	}
	if snap.LastCheck == nil {
		t.Error("LastCheck not set after a cycle")
	}
}

func TestRepeatedCyclesDeduplicate(t *testing.T) {
	st := store.NewMemStore()
	seedDefects(t, st)
	scan, q, s := newTestScanner(t, st, 10)

	scan.runCycle(context.Background())
	scan.runCycle(context.Background())
	scan.runCycle(context.Background())

	snap := s.Snapshot(q.Depth())
	// Unconsumed defects are suppressed by the dedup set, not recounted.
	if snap.TotalDetected != 2 {
		t.Errorf("TotalDetected = %d, want 2 after repeated cycles", snap.TotalDetected)
	}
	if snap.QueueDepth != 2 {
		t.Errorf("QueueDepth = %d, want 2", snap.QueueDepth)
	}
	if snap.DetectionCycles != 3 {
		t.Errorf("DetectionCycles = %d, want 3", snap.DetectionCycles)
	}
}

func TestFullQueueStillCountsDetections(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()
	// Three distinct missing-field defects against a queue of two.
	users := []store.Document{
		{"_id": "u1", "name": "a"},
		{"_id": "u2", "name": "b"},
		{"_id": "u3", "name": "c"},
	}
	if err := st.Insert(ctx, "users", users); err != nil {
		t.Fatalf("seed users: %v", err)
	}
	scan, q, s := newTestScanner(t, st, 2)

	scan.runCycle(ctx)

	snap := s.Snapshot(q.Depth())
	if snap.TotalDetected != 3 {
		t.Errorf("TotalDetected = %d, want 3 (dropped records still count)", snap.TotalDetected)
	}
	if snap.QueueDepth != 2 {
		t.Errorf("QueueDepth = %d, want the capacity of 2", snap.QueueDepth)
	}
}

// slowOpFailStore fails the profiler read so exactly one rule errors.
type slowOpFailStore struct {
	*store.MemStore
}

func (s *slowOpFailStore) SlowOperations(ctx context.Context, threshold, window time.Duration) ([]store.SlowOperation, error) {
	return nil, errors.New("profiler unavailable")
}

func TestFailingRuleIsContained(t *testing.T) {
	mem := store.NewMemStore()
	seedDefects(t, mem)
	scan, q, s := newTestScanner(t, &slowOpFailStore{mem}, 10)

	scan.runCycle(context.Background())

	snap := s.Snapshot(q.Depth())
	// The other rules still ran and the cycle still completed.
	if snap.TotalDetected != 2 {
		t.Errorf("TotalDetected = %d, want 2", snap.TotalDetected)
	}
	if snap.DetectionCycles != 1 {
		t.Errorf("DetectionCycles = %d, want 1", snap.DetectionCycles)
	}
	// The store died after the opening ping; observers must see that.
	if snap.ConnectionHealthy {
		t.Error("ConnectionHealthy = true after a mid-cycle detect failure, want false")
	}
}

func TestCycleFinishesAfterCancel(t *testing.T) {
	st := store.NewMemStore()
	seedDefects(t, st)
	scan, q, s := newTestScanner(t, st, 10)

	// A cancelled run context must not abort the pass: the store calls
	// of the cycle in progress run to completion.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	scan.runCycle(ctx)

	snap := s.Snapshot(q.Depth())
	if snap.DetectionCycles != 1 {
		t.Errorf("DetectionCycles = %d, want 1", snap.DetectionCycles)
	}
	if snap.TotalDetected != 2 {
		t.Errorf("TotalDetected = %d, want 2", snap.TotalDetected)
	}
	if !snap.ConnectionHealthy {
		t.Error("ConnectionHealthy = false, want true")
	}
}

// downStore simulates an unreachable database.
type downStore struct {
	*store.MemStore
}

func (s *downStore) Ping(ctx context.Context) error {
	return errors.New("connection refused")
}

func TestUnreachableStoreSkipsCycle(t *testing.T) {
	mem := store.NewMemStore()
	seedDefects(t, mem)
	scan, q, s := newTestScanner(t, &downStore{mem}, 10)

	scan.runCycle(context.Background())

	snap := s.Snapshot(q.Depth())
	if snap.ConnectionHealthy {
		t.Error("ConnectionHealthy = true, want false")
	}
	if snap.TotalDetected != 0 {
		t.Errorf("TotalDetected = %d, want 0 on a skipped cycle", snap.TotalDetected)
	}
	if snap.DetectionCycles != 0 {
		t.Errorf("DetectionCycles = %d, want 0 on a skipped cycle", snap.DetectionCycles)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	st := store.NewMemStore()
	scan, _, s := newTestScanner(t, st, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		scan.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	// The in-flight cycle finished before Run returned.
	if got := s.Snapshot(0).DetectionCycles; got != 1 {
		t.Errorf("DetectionCycles = %d, want 1", got)
	}
}
