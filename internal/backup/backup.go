// Package backup copies documents into time-stamped side collections
// before destructive repairs, and restores them on request.
//
// Backups live inside the document store itself: each call creates a
// fresh `<collection>_backup_<timestamp>` collection, so calling twice
// for one logical fix produces two harmless copies and never loses data.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/ukdeo/Self-Healing-Database/internal/store"
)

// timestampFormat names backup collections as
// {collection}_backup_{YYYYMMDD_HHMMSS}.
const timestampFormat = "20060102_150405"

// backupMarker is the substring that identifies a backup collection.
const backupMarker = "_backup_"

// Service performs backup and restore operations against the store.
type Service struct {
	store store.Store

	// now is swappable for tests that assert on backup names.
	now func() time.Time
}

// NewService creates a backup Service on the given store.
func NewService(st store.Store) *Service {
	return &Service{store: st, now: func() time.Time { return time.Now().UTC() }}
}

// Backup copies the given documents into a new uniquely named side
// collection and returns its name. Documents that have vanished since
// detection are skipped with a warning; if none of the ids can be
// found, the backup fails so the caller aborts the fix.
func (s *Service) Backup(ctx context.Context, collection string, ids []string) (string, error) {
	if len(ids) == 0 {
		return "", fmt.Errorf("backup: no document ids given for %s", collection)
	}

	docs := make([]store.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := s.store.FindByID(ctx, collection, id)
		if errors.Is(err, store.ErrNotFound) {
			log.Printf("backup: warning: %s/%s vanished before backup", collection, id)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("backup: read %s/%s: %w", collection, id, err)
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("backup: none of %d documents found in %s", len(ids), collection)
	}

	name := fmt.Sprintf("%s%s%s", collection, backupMarker, s.now().Format(timestampFormat))
	if err := s.store.Insert(ctx, name, docs); err != nil {
		return "", fmt.Errorf("backup: write %s: %w", name, err)
	}

	log.Printf("backup: copied %d documents from %s to %s", len(docs), collection, name)
	return name, nil
}

// List returns the names of all backup collections, sorted.
func (s *Service) List(ctx context.Context) ([]string, error) {
	names, err := s.store.Collections(ctx)
	if err != nil {
		return nil, fmt.Errorf("backup: list collections: %w", err)
	}

	var backups []string
	for _, name := range names {
		if strings.Contains(name, backupMarker) {
			backups = append(backups, name)
		}
	}
	sort.Strings(backups)
	return backups, nil
}

// Restore copies documents from a backup collection back into its
// source collection. Documents whose id already exists in the source
// are skipped, so a restore never clobbers live data. Returns the
// source collection name and the number of documents restored.
func (s *Service) Restore(ctx context.Context, backupName string) (string, int, error) {
	idx := strings.Index(backupName, backupMarker)
	if idx <= 0 {
		return "", 0, fmt.Errorf("backup: %q is not a backup collection", backupName)
	}
	target := backupName[:idx]

	docs, err := s.store.FindAll(ctx, backupName)
	if err != nil {
		return "", 0, fmt.Errorf("backup: read %s: %w", backupName, err)
	}
	if len(docs) == 0 {
		return target, 0, fmt.Errorf("backup: %s is empty or missing", backupName)
	}

	restored := 0
	for _, doc := range docs {
		_, err := s.store.FindByID(ctx, target, doc.ID())
		if err == nil {
			continue // already present
		}
		if !errors.Is(err, store.ErrNotFound) {
			return target, restored, fmt.Errorf("backup: check %s/%s: %w", target, doc.ID(), err)
		}
		if err := s.store.Insert(ctx, target, []store.Document{doc}); err != nil {
			return target, restored, fmt.Errorf("backup: restore %s/%s: %w", target, doc.ID(), err)
		}
		restored++
	}

	log.Printf("backup: restored %d/%d documents from %s to %s", restored, len(docs), backupName, target)
	return target, restored, nil
}
