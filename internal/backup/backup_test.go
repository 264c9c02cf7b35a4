package backup

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/ukdeo/Self-Healing-Database/internal/store"
)

func setupStore(t *testing.T) *store.MemStore {
	t.Helper()
	st := store.NewMemStore()
	docs := []store.Document{
		{"_id": "u1", "name": "Alice", "email": "alice@example.com"},
		{"_id": "u2", "name": "Bob", "email": "bob@example.com"},
		{"_id": "u3", "name": "Carol", "email": "carol@example.com"},
	}
	if err := st.Insert(context.Background(), "users", docs); err != nil {
		t.Fatalf("seed users: %v", err)
	}
	return st
}

func TestBackupNamesAndCopies(t *testing.T) {
	st := setupStore(t)
	svc := NewService(st)
	svc.now = func() time.Time {
		return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	}

	name, err := svc.Backup(context.Background(), "users", []string{"u1", "u2"})
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if name != "users_backup_20260314_092653" {
		t.Errorf("backup name = %q, want users_backup_20260314_092653", name)
	}
	if !regexp.MustCompile(`^users_backup_\d{8}_\d{6}$`).MatchString(name) {
		t.Errorf("backup name %q does not match the naming pattern", name)
	}
	if got := st.Count(name); got != 2 {
		t.Errorf("backup collection has %d documents, want 2", got)
	}
	// The source collection is untouched.
	if got := st.Count("users"); got != 3 {
		t.Errorf("source collection has %d documents, want 3", got)
	}
}

func TestBackupSkipsVanishedDocuments(t *testing.T) {
	st := setupStore(t)
	svc := NewService(st)

	name, err := svc.Backup(context.Background(), "users", []string{"u1", "gone"})
	if err != nil {
		t.Fatalf("Backup with one vanished id: %v", err)
	}
	if got := st.Count(name); got != 1 {
		t.Errorf("backup collection has %d documents, want 1", got)
	}
}

func TestBackupFailsWhenNothingFound(t *testing.T) {
	st := setupStore(t)
	svc := NewService(st)

	if _, err := svc.Backup(context.Background(), "users", []string{"gone1", "gone2"}); err == nil {
		t.Error("Backup succeeded with no reachable documents, want error")
	}
	if _, err := svc.Backup(context.Background(), "users", nil); err == nil {
		t.Error("Backup succeeded with no ids, want error")
	}
}

func TestList(t *testing.T) {
	st := setupStore(t)
	svc := NewService(st)

	ctx := context.Background()
	st.Insert(ctx, "users_backup_20260101_000000", []store.Document{{"_id": "u1"}})
	st.Insert(ctx, "orders_backup_20260102_000000", []store.Document{{"_id": "o1"}})
	st.Insert(ctx, "orders_orphaned", []store.Document{{"_id": "o2"}})

	names, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"orders_backup_20260102_000000", "users_backup_20260101_000000"}
	if len(names) != len(want) {
		t.Fatalf("List returned %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("List[%d] = %s, want %s", i, names[i], want[i])
		}
	}
}

func TestRestoreSkipsExistingDocuments(t *testing.T) {
	st := setupStore(t)
	svc := NewService(st)
	ctx := context.Background()

	name, err := svc.Backup(ctx, "users", []string{"u1", "u2"})
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if err := st.Delete(ctx, "users", "u1"); err != nil {
		t.Fatalf("delete u1: %v", err)
	}

	target, restored, err := svc.Restore(ctx, name)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if target != "users" {
		t.Errorf("restore target = %s, want users", target)
	}
	// u2 still exists and is skipped; only u1 comes back.
	if restored != 1 {
		t.Errorf("restored = %d, want 1", restored)
	}
	if got := st.Count("users"); got != 3 {
		t.Errorf("users has %d documents after restore, want 3", got)
	}
}

func TestRestoreRejectsNonBackupNames(t *testing.T) {
	st := setupStore(t)
	svc := NewService(st)

	if _, _, err := svc.Restore(context.Background(), "users"); err == nil {
		t.Error("Restore accepted a non-backup collection name")
	}
	if _, _, err := svc.Restore(context.Background(), "users_backup_19990101_000000"); err == nil {
		t.Error("Restore accepted a missing backup collection")
	}
}
