package state

import (
	"bytes"
	"fmt"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ukdeo/Self-Healing-Database/pkg/models"
)

func testRecord(subject string) models.DefectRecord {
	return models.DefectRecord{
		ID:         "rec-" + subject,
		Kind:       models.KindDuplicateRecord,
		Collection: "users",
		Subject:    subject,
		Status:     models.StatusQueued,
		DetectedAt: time.Now().UTC(),
	}
}

func TestCounters(t *testing.T) {
	s := New()

	s.RecordDetected(testRecord("a"))
	s.RecordDetected(testRecord("b"))
	s.RecordFixed(testRecord("a"))
	s.RecordFailed(testRecord("b"))
	s.CycleCompleted()

	snap := s.Snapshot(5)
	if snap.TotalDetected != 2 {
		t.Errorf("TotalDetected = %d, want 2", snap.TotalDetected)
	}
	if snap.TotalFixed != 1 {
		t.Errorf("TotalFixed = %d, want 1", snap.TotalFixed)
	}
	if snap.TotalFailed != 1 {
		t.Errorf("TotalFailed = %d, want 1", snap.TotalFailed)
	}
	if snap.DetectionCycles != 1 {
		t.Errorf("DetectionCycles = %d, want 1", snap.DetectionCycles)
	}
	if snap.QueueDepth != 5 {
		t.Errorf("QueueDepth = %d, want 5", snap.QueueDepth)
	}
	if snap.LastCheck == nil {
		t.Error("LastCheck is nil after CycleCompleted")
	}
	if snap.LastFix == nil {
		t.Error("LastFix is nil after RecordFixed")
	}
}

func TestCurrentlyFixing(t *testing.T) {
	s := New()

	snap := s.Snapshot(0)
	if snap.FixerStatus != models.FixerIdle {
		t.Fatalf("FixerStatus = %s, want idle", snap.FixerStatus)
	}

	rec := testRecord("a")
	s.SetCurrentlyFixing(rec)
	snap = s.Snapshot(0)
	if snap.FixerStatus != models.FixerFixing {
		t.Errorf("FixerStatus = %s, want fixing", snap.FixerStatus)
	}
	if snap.CurrentlyFixing == nil || snap.CurrentlyFixing.ID != rec.ID {
		t.Errorf("CurrentlyFixing = %+v, want record %s", snap.CurrentlyFixing, rec.ID)
	}

	// The snapshot holds a copy, not a pointer into shared state.
	snap.CurrentlyFixing.Subject = "mutated"
	if got := s.Snapshot(0).CurrentlyFixing.Subject; got != "a" {
		t.Errorf("shared state subject changed to %q via snapshot", got)
	}

	s.ClearCurrentlyFixing()
	if got := s.Snapshot(0).FixerStatus; got != models.FixerIdle {
		t.Errorf("FixerStatus after clear = %s, want idle", got)
	}
}

func TestActivityLogBounded(t *testing.T) {
	s := New()

	for i := 0; i < activityCapacity+10; i++ {
		s.Logf(models.LevelInfo, "event %d", i)
	}

	snap := s.Snapshot(0)
	if len(snap.ActivityLog) != activityCapacity {
		t.Fatalf("ActivityLog has %d entries, want %d", len(snap.ActivityLog), activityCapacity)
	}
	if got := snap.ActivityLog[0].Message; got != fmt.Sprintf("event %d", activityCapacity+9) {
		t.Errorf("newest entry = %q, want the last logged event", got)
	}
	// The oldest retained entry is the first one not yet overwritten.
	last := snap.ActivityLog[len(snap.ActivityLog)-1].Message
	if last != "event 10" {
		t.Errorf("oldest entry = %q, want \"event 10\"", last)
	}
}

func TestLogfMirrorsWithPackagePrefix(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)

	s := New()
	s.Logf(models.LevelInfo, "fixed duplicate_record: duplicate email")

	if !strings.Contains(buf.String(), "state: fixed duplicate_record") {
		t.Errorf("process log line = %q, want a state: prefix", buf.String())
	}
	// The activity entry itself carries the bare message.
	snap := s.Snapshot(0)
	if len(snap.ActivityLog) != 1 || snap.ActivityLog[0].Message != "fixed duplicate_record: duplicate email" {
		t.Errorf("activity entry = %+v, want the unprefixed message", snap.ActivityLog)
	}
}

func TestRecentRecordsTrimmed(t *testing.T) {
	s := New()

	for i := 0; i < recentCapacity+20; i++ {
		s.RecordDetected(testRecord(fmt.Sprintf("subj-%d", i)))
	}

	snap := s.Snapshot(0)
	if len(snap.RecentDetected) != recentDisplay {
		t.Fatalf("RecentDetected has %d entries, want %d", len(snap.RecentDetected), recentDisplay)
	}
	want := fmt.Sprintf("subj-%d", recentCapacity+19)
	if snap.RecentDetected[0].Subject != want {
		t.Errorf("newest detected = %s, want %s", snap.RecentDetected[0].Subject, want)
	}
}

func TestSnapshotUnderConcurrentWriters(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
				s.RecordDetected(testRecord(fmt.Sprintf("scan-%d", i)))
				s.Logf(models.LevelWarning, "detected scan-%d", i)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
				rec := testRecord(fmt.Sprintf("fix-%d", i))
				s.SetCurrentlyFixing(rec)
				s.RecordFixed(rec)
				s.ClearCurrentlyFixing()
			}
		}
	}()

	deadline := time.After(100 * time.Millisecond)
	for {
		select {
		case <-deadline:
			close(stop)
			wg.Wait()
			snap := s.Snapshot(0)
			if snap.TotalDetected == 0 || snap.TotalFixed == 0 {
				t.Errorf("writers made no progress: detected=%d fixed=%d", snap.TotalDetected, snap.TotalFixed)
			}
			return
		default:
			snap := s.Snapshot(0)
			if snap.FixerStatus == models.FixerFixing && snap.CurrentlyFixing == nil {
				t.Fatal("snapshot reports fixing with no record")
			}
		}
	}
}
