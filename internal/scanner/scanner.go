// Package scanner runs the periodic detection loop. Each cycle pings
// the store, runs every enabled rule, and pushes newly found defects
// onto the work queue.
package scanner

import (
	"context"
	"log"
	"time"

	"github.com/ukdeo/Self-Healing-Database/internal/queue"
	"github.com/ukdeo/Self-Healing-Database/internal/rules"
	"github.com/ukdeo/Self-Healing-Database/internal/state"
	"github.com/ukdeo/Self-Healing-Database/internal/store"
	"github.com/ukdeo/Self-Healing-Database/pkg/models"
)

// Scanner drives detection cycles at a fixed interval.
type Scanner struct {
	store    store.Store
	catalog  *rules.Catalog
	queue    *queue.WorkQueue
	state    *state.State
	interval time.Duration
}

// New returns a Scanner ready to run.
func New(st store.Store, catalog *rules.Catalog, q *queue.WorkQueue, s *state.State, interval time.Duration) *Scanner {
	return &Scanner{
		store:    st,
		catalog:  catalog,
		queue:    q,
		state:    s,
		interval: interval,
	}
}

// Run executes detection cycles until the context is cancelled. A cycle
// in progress finishes before Run returns.
func (s *Scanner) Run(ctx context.Context) {
	log.Printf("scanner: starting, interval %s", s.interval)
	for {
		s.runCycle(ctx)
		select {
		case <-ctx.Done():
			log.Printf("scanner: stopping")
			return
		case <-time.After(s.interval):
		}
	}
}

// runCycle performs one full detection pass. A failing rule is logged
// and contained; the remaining rules still run. An unreachable store
// skips the pass entirely without counting a cycle.
//
// A pass in progress always finishes: shutdown cancellation is stripped
// from the store-call context so it only prevents the next cycle, never
// aborts a detector mid-query.
func (s *Scanner) runCycle(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if err := s.store.Ping(ctx); err != nil {
		s.state.SetConnectionHealthy(false)
		s.state.Logf(models.LevelError, "database unreachable, skipping check cycle: %v", err)
		return
	}
	s.state.SetConnectionHealthy(true)

	log.Printf("scanner: starting detection cycle")
	for _, kind := range s.catalog.EnabledKinds() {
		found, err := s.catalog.Detect(ctx, s.store, kind)
		if err != nil {
			// The opening ping may have succeeded and the store died
			// mid-cycle; reflect that for observers. The next cycle's
			// ping resets the flag.
			s.state.SetConnectionHealthy(false)
			s.state.Logf(models.LevelError, "%s detection failed: %v", kind, err)
			continue
		}
		for i := range found {
			s.enqueue(&found[i])
		}
	}
	s.state.CycleCompleted()
}

// enqueue pushes one detected defect. A defect already queued or being
// fixed is suppressed without counting; a defect dropped by a full
// queue still counts as detected so the totals reflect reality.
func (s *Scanner) enqueue(rec *models.DefectRecord) {
	switch s.queue.Push(rec) {
	case queue.Pushed:
		s.state.RecordDetected(*rec)
		s.state.Logf(models.LevelWarning, "detected %s: %s", rec.Kind, rec.Description)
	case queue.Dropped:
		s.state.RecordDetected(*rec)
		s.state.Logf(models.LevelWarning, "queue full (capacity %d), dropped %s: %s",
			s.queue.Capacity(), rec.Kind, rec.Description)
	case queue.Duplicate:
		// Already queued or in flight. It will be re-detected next
		// cycle if the fix does not resolve it.
	}
}
