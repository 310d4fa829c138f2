package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/lehigh-university-libraries/examtag/internal/models"
)

func TestCreateSaveGet(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	session, err := store.Create([]byte("%PDF-1.7 fake"), []string{"batch1.pdf", "batch2.pdf"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if session.ID == "" {
		t.Fatal("Expected a session id")
	}

	combined, err := os.ReadFile(store.CombinedPath(session))
	if err != nil {
		t.Fatalf("Combined document not stored: %v", err)
	}
	if string(combined) != "%PDF-1.7 fake" {
		t.Errorf("Unexpected combined content %q", combined)
	}

	session.Tests = []models.TestRecord{
		{TestID: 1, Group: "A", NameBox: []byte("png-1")},
		{TestID: 2, Group: "B"},
	}
	session.Pages.Add(1, 0)
	session.Pages.Add(1, 1)
	session.Pages.Add(2, 2)
	session.Rotations = map[int]int{1: 180}
	session.Assignments = []models.StudentAssignment{{Student: "Jan Novak", TestID: 1}}
	if err := store.Save(session); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// a fresh store has an empty cache and must read from disk
	loaded, err := New(dir).Get(session.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if diff := cmp.Diff(session, loaded, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Session changed on reload (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(dir, session.ID, "namebox_1.png")); err != nil {
		t.Errorf("Expected name box preview on disk: %v", err)
	}
}

func TestGetMissing(t *testing.T) {
	store := New(t.TempDir())

	_, err := store.Get("does-not-exist")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	session, err := store.Create([]byte("pdf"), nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Delete(session.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, session.ID)); !os.IsNotExist(err) {
		t.Errorf("Expected session directory removed, stat returned %v", err)
	}
	if _, err := store.Get(session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound after delete, got %v", err)
	}
	if err := store.Delete(session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound on second delete, got %v", err)
	}
}

func TestList(t *testing.T) {
	store := New(t.TempDir())

	first, err := store.Create([]byte("one"), nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.Create([]byte("two"), nil)
	if err != nil {
		t.Fatal(err)
	}

	sessions, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(sessions))
	}
	ids := map[string]bool{sessions[0].ID: true, sessions[1].ID: true}
	if !ids[first.ID] || !ids[second.ID] {
		t.Errorf("Unexpected sessions listed: %v", ids)
	}
}
