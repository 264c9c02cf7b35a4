package repairer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ukdeo/Self-Healing-Database/internal/backup"
	"github.com/ukdeo/Self-Healing-Database/internal/queue"
	"github.com/ukdeo/Self-Healing-Database/internal/rules"
	"github.com/ukdeo/Self-Healing-Database/internal/state"
	"github.com/ukdeo/Self-Healing-Database/internal/store"
	"github.com/ukdeo/Self-Healing-Database/pkg/models"
)

var liveOptions = Options{
	AutoFix:         true,
	DryRun:          false,
	BackupBeforeFix: true,
	FixDelay:        time.Millisecond,
}

func newTestRepairer(t *testing.T, st store.Store, opts Options, history state.HistoryStore) (*Repairer, *queue.WorkQueue, *state.State) {
	t.Helper()
	catalog, err := rules.NewCatalog(rules.DefaultConfig())
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	q := queue.New(10)
	s := state.New()
	return New(st, catalog, q, s, backup.NewService(st), history, opts), q, s
}

func seedDuplicates(t *testing.T, st *store.MemStore) {
	t.Helper()
	docs := []store.Document{
		{"_id": "u1", "email": "dup@example.com"},
		{"_id": "u2", "email": "dup@example.com"},
	}
	if err := st.Insert(context.Background(), "users", docs); err != nil {
		t.Fatalf("seed users: %v", err)
	}
}

func detectOne(t *testing.T, st store.Store, kind models.DefectKind) *models.DefectRecord {
	t.Helper()
	catalog, err := rules.NewCatalog(rules.DefaultConfig())
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	found, err := catalog.Detect(context.Background(), st, kind)
	if err != nil {
		t.Fatalf("Detect %s: %v", kind, err)
	}
	if len(found) != 1 {
		t.Fatalf("Detect %s found %d defects, want 1", kind, len(found))
	}
	return &found[0]
}

func TestHandleFixesDefectAndTakesBackup(t *testing.T) {
	st := store.NewMemStore()
	seedDuplicates(t, st)
	r, q, s := newTestRepairer(t, st, liveOptions, nil)
	ctx := context.Background()

	rec := detectOne(t, st, models.KindDuplicateRecord)
	q.Push(rec)
	popped, _ := q.Pop(ctx)

	r.handle(ctx, popped)

	if popped.Status != models.StatusFixed {
		t.Errorf("Status = %s, want fixed (reason: %s)", popped.Status, popped.FailureReason)
	}
	if popped.FixedAt == nil {
		t.Error("FixedAt not stamped")
	}
	if got := st.Count("users"); got != 1 {
		t.Errorf("users has %d documents, want 1", got)
	}

	// A backup collection was created before the deletion.
	names, err := st.Collections(ctx)
	if err != nil {
		t.Fatalf("Collections: %v", err)
	}
	foundBackup := false
	for _, name := range names {
		if strings.Contains(name, "_backup_") {
			foundBackup = true
			if got := st.Count(name); got != 2 {
				t.Errorf("backup %s holds %d documents, want 2", name, got)
			}
		}
	}
	if !foundBackup {
		t.Error("no backup collection created for a destructive fix")
	}

	snap := s.Snapshot(q.Depth())
	if snap.TotalFixed != 1 || snap.TotalFailed != 0 {
		t.Errorf("totals fixed=%d failed=%d, want 1/0", snap.TotalFixed, snap.TotalFailed)
	}
	if snap.FixerStatus != models.FixerIdle {
		t.Errorf("FixerStatus = %s after handle, want idle", snap.FixerStatus)
	}

	// The dedup key is free again for re-detection.
	if q.Contains(popped.Key()) {
		t.Error("dedup key still held after the fix completed")
	}
}

// backupFailStore rejects writes to backup collections.
type backupFailStore struct {
	*store.MemStore
}

func (s *backupFailStore) Insert(ctx context.Context, collection string, docs []store.Document) error {
	if strings.Contains(collection, "_backup_") {
		return errors.New("disk full")
	}
	return s.MemStore.Insert(ctx, collection, docs)
}

func TestBackupFailureAbortsFix(t *testing.T) {
	mem := store.NewMemStore()
	seedDuplicates(t, mem)
	st := &backupFailStore{mem}
	r, q, s := newTestRepairer(t, st, liveOptions, nil)
	ctx := context.Background()

	rec := detectOne(t, st, models.KindDuplicateRecord)
	r.handle(ctx, rec)

	if rec.Status != models.StatusFailed {
		t.Errorf("Status = %s, want failed", rec.Status)
	}
	if !strings.Contains(rec.FailureReason, "backup failed") {
		t.Errorf("FailureReason = %q, want a backup failure", rec.FailureReason)
	}
	// No document was touched.
	if got := mem.Count("users"); got != 2 {
		t.Errorf("users has %d documents, want 2 untouched", got)
	}
	if got := s.Snapshot(q.Depth()).TotalFailed; got != 1 {
		t.Errorf("TotalFailed = %d, want 1", got)
	}
}

func TestAutoFixDisabledMarksFailed(t *testing.T) {
	st := store.NewMemStore()
	seedDuplicates(t, st)
	opts := liveOptions
	opts.AutoFix = false
	r, q, s := newTestRepairer(t, st, opts, nil)

	rec := detectOne(t, st, models.KindDuplicateRecord)
	r.handle(context.Background(), rec)

	if rec.Status != models.StatusFailed {
		t.Errorf("Status = %s, want failed", rec.Status)
	}
	if got := st.Count("users"); got != 2 {
		t.Errorf("users has %d documents, want 2 untouched", got)
	}
	// No backup either; nothing was going to change.
	names, _ := st.Collections(context.Background())
	for _, name := range names {
		if strings.Contains(name, "_backup_") {
			t.Errorf("backup %s created with auto fix disabled", name)
		}
	}
	if got := s.Snapshot(q.Depth()).TotalFailed; got != 1 {
		t.Errorf("TotalFailed = %d, want 1", got)
	}
}

func TestDryRunAdvancesCountersWithoutChanges(t *testing.T) {
	st := store.NewMemStore()
	seedDuplicates(t, st)
	opts := liveOptions
	opts.DryRun = true
	r, q, s := newTestRepairer(t, st, opts, nil)

	rec := detectOne(t, st, models.KindDuplicateRecord)
	r.handle(context.Background(), rec)

	if rec.Status != models.StatusFixed {
		t.Errorf("Status = %s, want fixed in dry run", rec.Status)
	}
	if got := st.Count("users"); got != 2 {
		t.Errorf("users has %d documents, want 2 untouched", got)
	}
	names, _ := st.Collections(context.Background())
	for _, name := range names {
		if strings.Contains(name, "_backup_") {
			t.Errorf("backup %s created during dry run", name)
		}
	}
	if got := s.Snapshot(q.Depth()).TotalFixed; got != 1 {
		t.Errorf("TotalFixed = %d, want 1", got)
	}
}

func TestInFlightFixFinishesAfterCancel(t *testing.T) {
	st := store.NewMemStore()
	seedDuplicates(t, st)
	r, q, s := newTestRepairer(t, st, liveOptions, nil)

	// A cancelled run context must not interrupt a fix that has
	// started: the backup and every delete still go through.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := detectOne(t, st, models.KindDuplicateRecord)
	r.handle(ctx, rec)

	if rec.Status != models.StatusFixed {
		t.Errorf("Status = %s, want fixed (reason: %s)", rec.Status, rec.FailureReason)
	}
	if got := st.Count("users"); got != 1 {
		t.Errorf("users has %d documents, want 1", got)
	}
	foundBackup := false
	names, _ := st.Collections(context.Background())
	for _, name := range names {
		if strings.Contains(name, "_backup_") {
			foundBackup = true
		}
	}
	if !foundBackup {
		t.Error("no backup collection created")
	}
	if got := s.Snapshot(q.Depth()).TotalFixed; got != 1 {
		t.Errorf("TotalFixed = %d, want 1", got)
	}
}

func TestDryRunOverridesAutoFixGate(t *testing.T) {
	st := store.NewMemStore()
	seedDuplicates(t, st)
	opts := liveOptions
	opts.AutoFix = false
	opts.DryRun = true
	r, q, s := newTestRepairer(t, st, opts, nil)

	rec := detectOne(t, st, models.KindDuplicateRecord)
	r.handle(context.Background(), rec)

	if rec.Status != models.StatusFixed {
		t.Errorf("Status = %s, want fixed in dry run regardless of the auto-fix gate", rec.Status)
	}
	if got := st.Count("users"); got != 2 {
		t.Errorf("users has %d documents, want 2 untouched", got)
	}
	snap := s.Snapshot(q.Depth())
	if snap.TotalFixed != 1 || snap.TotalFailed != 0 {
		t.Errorf("totals fixed=%d failed=%d, want 1/0", snap.TotalFixed, snap.TotalFailed)
	}
}

func TestFixFailureRecordsReason(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()
	orders := []store.Document{{"_id": "o1", "user_email": "ghost@example.com", "status": "pending"}}
	if err := st.Insert(ctx, "orders", orders); err != nil {
		t.Fatalf("seed orders: %v", err)
	}
	r, q, s := newTestRepairer(t, st, liveOptions, nil)

	rec := detectOne(t, st, models.KindOrphanedDocument)
	// The subject vanishes between detection and fix.
	if err := st.Delete(ctx, "orders", "o1"); err != nil {
		t.Fatalf("delete o1: %v", err)
	}
	r.handle(ctx, rec)

	if rec.Status != models.StatusFailed {
		t.Errorf("Status = %s, want failed", rec.Status)
	}
	if rec.FailureReason == "" {
		t.Error("FailureReason is empty")
	}
	if got := s.Snapshot(q.Depth()).TotalFailed; got != 1 {
		t.Errorf("TotalFailed = %d, want 1", got)
	}
}

// captureHistory records every defect outcome it is handed.
type captureHistory struct {
	records []*models.DefectRecord
	fail    bool
}

func (h *captureHistory) Record(ctx context.Context, rec *models.DefectRecord) error {
	if h.fail {
		return errors.New("postgres down")
	}
	h.records = append(h.records, rec)
	return nil
}

func (h *captureHistory) List(ctx context.Context, limit int) ([]*models.DefectRecord, error) {
	return h.records, nil
}

func TestOutcomesPersistToHistory(t *testing.T) {
	st := store.NewMemStore()
	seedDuplicates(t, st)
	history := &captureHistory{}
	r, _, _ := newTestRepairer(t, st, liveOptions, history)

	rec := detectOne(t, st, models.KindDuplicateRecord)
	r.handle(context.Background(), rec)

	if len(history.records) != 1 {
		t.Fatalf("history holds %d records, want 1", len(history.records))
	}
	if history.records[0].Status != models.StatusFixed {
		t.Errorf("persisted status = %s, want fixed", history.records[0].Status)
	}
}

func TestHistoryFailureDoesNotBlockRepairs(t *testing.T) {
	st := store.NewMemStore()
	seedDuplicates(t, st)
	r, q, s := newTestRepairer(t, st, liveOptions, &captureHistory{fail: true})

	rec := detectOne(t, st, models.KindDuplicateRecord)
	r.handle(context.Background(), rec)

	if rec.Status != models.StatusFixed {
		t.Errorf("Status = %s, want fixed despite history failure", rec.Status)
	}
	if got := s.Snapshot(q.Depth()).TotalFixed; got != 1 {
		t.Errorf("TotalFixed = %d, want 1", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	st := store.NewMemStore()
	r, _, _ := newTestRepairer(t, st, liveOptions, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
