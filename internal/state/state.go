// Package state holds the process-wide shared state of the self-healing
// engine: counters, the record currently being fixed, and the bounded
// activity log.
//
// Exactly two writers exist (scanner and repairer); any number of status
// handlers read. Every mutation happens under one mutex, and readers get
// a deep-copied snapshot, so an observer can never see a half-updated
// counter set or a record mid-transition.
package state

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ukdeo/Self-Healing-Database/pkg/models"
)

// activityCapacity bounds the ring-buffer activity log.
const activityCapacity = 50

// recentCapacity bounds the retained detected/fixed record lists.
const recentCapacity = 50

// recentDisplay is how many recent records a snapshot carries.
const recentDisplay = 20

// State is the mutex-guarded shared state object.
type State struct {
	mu sync.RWMutex

	startTime         time.Time
	totalDetected     int64
	totalFixed        int64
	totalFailed       int64
	detectionCycles   int64
	connectionHealthy bool
	currentlyFixing   *models.DefectRecord
	lastCheck         *time.Time
	lastFix           *time.Time
	recentDetected    []models.DefectRecord // newest first
	recentFixed       []models.DefectRecord // newest first
	activity          *ringLog
}

// New creates an empty State.
func New() *State {
	return &State{
		startTime: time.Now().UTC(),
		activity:  newRingLog(activityCapacity),
	}
}

// Logf appends a formatted entry to the activity log and mirrors it to
// the process log.
func (s *State) Logf(level models.ActivityLevel, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("state: %s", msg)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity.append(models.ActivityEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   msg,
	})
}

// RecordDetected counts a newly detected defect. Called for every record
// a detector yields that is not a dedup suppression, including records
// that were subsequently dropped by a full queue.
func (s *State) RecordDetected(rec models.DefectRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalDetected++
	s.recentDetected = prepend(s.recentDetected, rec)
}

// RecordFixed counts a successfully repaired defect.
func (s *State) RecordFixed(rec models.DefectRecord) {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalFixed++
	s.lastFix = &now
	s.recentFixed = prepend(s.recentFixed, rec)
}

// RecordFailed counts a failed repair attempt.
func (s *State) RecordFailed(rec models.DefectRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalFailed++
}

// CycleCompleted counts one completed scanner pass.
func (s *State) CycleCompleted() {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.detectionCycles++
	s.lastCheck = &now
}

// SetConnectionHealthy records the last known reachability of the store.
func (s *State) SetConnectionHealthy(healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectionHealthy = healthy
}

// SetCurrentlyFixing publishes a copy of the record the repairer is
// working on.
func (s *State) SetCurrentlyFixing(rec models.DefectRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentlyFixing = &rec
}

// ClearCurrentlyFixing marks the repairer idle.
func (s *State) ClearCurrentlyFixing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentlyFixing = nil
}

// Snapshot returns a consistent deep copy of the shared state. The queue
// depth is supplied by the caller because the work queue is owned by the
// pipeline, not by State.
func (s *State) Snapshot(queueDepth int) models.StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := models.StatusSnapshot{
		ConnectionHealthy: s.connectionHealthy,
		TotalDetected:     s.totalDetected,
		TotalFixed:        s.totalFixed,
		TotalFailed:       s.totalFailed,
		DetectionCycles:   s.detectionCycles,
		QueueDepth:        queueDepth,
		FixerStatus:       models.FixerIdle,
		StartTime:         s.startTime,
		RecentDetected:    copyRecords(s.recentDetected, recentDisplay),
		RecentFixed:       copyRecords(s.recentFixed, recentDisplay),
		ActivityLog:       s.activity.newestFirst(),
	}

	if s.currentlyFixing != nil {
		rec := *s.currentlyFixing
		snap.CurrentlyFixing = &rec
		snap.FixerStatus = models.FixerFixing
	}
	if s.lastCheck != nil {
		t := *s.lastCheck
		snap.LastCheck = &t
	}
	if s.lastFix != nil {
		t := *s.lastFix
		snap.LastFix = &t
	}
	return snap
}

// prepend inserts rec at the front, trimming to recentCapacity.
func prepend(list []models.DefectRecord, rec models.DefectRecord) []models.DefectRecord {
	list = append([]models.DefectRecord{rec}, list...)
	if len(list) > recentCapacity {
		list = list[:recentCapacity]
	}
	return list
}

// copyRecords returns up to limit records from the front of the list.
func copyRecords(list []models.DefectRecord, limit int) []models.DefectRecord {
	if len(list) < limit {
		limit = len(list)
	}
	out := make([]models.DefectRecord, limit)
	copy(out, list[:limit])
	return out
}

// ringLog is a fixed-capacity circular buffer of activity entries with
// overwrite-oldest semantics.
type ringLog struct {
	entries []models.ActivityEntry
	next    int
	full    bool
}

func newRingLog(capacity int) *ringLog {
	return &ringLog{entries: make([]models.ActivityEntry, capacity)}
}

func (r *ringLog) append(e models.ActivityEntry) {
	r.entries[r.next] = e
	r.next++
	if r.next == len(r.entries) {
		r.next = 0
		r.full = true
	}
}

// newestFirst returns the buffered entries, most recent entry first.
func (r *ringLog) newestFirst() []models.ActivityEntry {
	size := r.next
	if r.full {
		size = len(r.entries)
	}
	out := make([]models.ActivityEntry, 0, size)
	for i := 1; i <= size; i++ {
		idx := (r.next - i + len(r.entries)) % len(r.entries)
		out = append(out, r.entries[idx])
	}
	return out
}
