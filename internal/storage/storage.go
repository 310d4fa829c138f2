package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/examtag/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

const (
	sessionFile  = "session.yaml"
	combinedFile = "combined.pdf"
)

// SessionStore keeps sessions on disk, one directory per session, with an
// in-memory cache in front.
type SessionStore struct {
	dir      string
	sessions map[string]*models.Session
	mu       sync.RWMutex
}

func New(dir string) *SessionStore {
	return &SessionStore{
		dir:      dir,
		sessions: make(map[string]*models.Session),
	}
}

// Dir returns the directory holding files of a session.
func (s *SessionStore) Dir(sessionID string) string {
	return filepath.Join(s.dir, sessionID)
}

// Create starts a session around a combined document and stores it.
func (s *SessionStore) Create(combined []byte, inputs []string) (*models.Session, error) {
	session := &models.Session{
		ID:           uuid.New().String(),
		CreatedAt:    time.Now().UTC(),
		Inputs:       inputs,
		CombinedPath: combinedFile,
		Pages:        models.PageIndex{},
	}

	dir := s.Dir(session.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, combinedFile), combined, 0644); err != nil {
		return nil, fmt.Errorf("failed to store combined document: %w", err)
	}
	if err := s.Save(session); err != nil {
		return nil, err
	}

	slog.Info("Created session", "id", session.ID, "inputs", len(inputs))
	return session, nil
}

// CombinedPath resolves the stored combined document of a session.
func (s *SessionStore) CombinedPath(session *models.Session) string {
	if filepath.IsAbs(session.CombinedPath) {
		return session.CombinedPath
	}
	return filepath.Join(s.Dir(session.ID), session.CombinedPath)
}

// Save writes the session file and any name-box previews held in memory.
func (s *SessionStore) Save(session *models.Session) error {
	dir := s.Dir(session.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	for i := range session.Tests {
		rec := &session.Tests[i]
		if len(rec.NameBox) == 0 {
			continue
		}
		rec.NameBoxFile = fmt.Sprintf("namebox_%d.png", rec.TestID)
		if err := os.WriteFile(filepath.Join(dir, rec.NameBoxFile), rec.NameBox, 0644); err != nil {
			return fmt.Errorf("failed to write name box preview: %w", err)
		}
	}

	data, err := yaml.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, sessionFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

// Get returns a cached session or loads it from disk.
func (s *SessionStore) Get(sessionID string) (*models.Session, error) {
	s.mu.RLock()
	session, exists := s.sessions[sessionID]
	s.mu.RUnlock()
	if exists {
		return session, nil
	}

	dir := s.Dir(sessionID)
	data, err := os.ReadFile(filepath.Join(dir, sessionFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	session = &models.Session{}
	if err := yaml.Unmarshal(data, session); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	if session.Pages == nil {
		session.Pages = models.PageIndex{}
	}
	for i := range session.Tests {
		rec := &session.Tests[i]
		if rec.NameBoxFile == "" {
			continue
		}
		png, err := os.ReadFile(filepath.Join(dir, rec.NameBoxFile))
		if err != nil {
			slog.Warn("Name box preview missing", "session", sessionID, "test_id", rec.TestID, "err", err)
			continue
		}
		rec.NameBox = png
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = session
	return session, nil
}

// List returns every stored session, oldest first.
func (s *SessionStore) List() ([]*models.Session, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var result []*models.Session
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		session, err := s.Get(e.Name())
		if err != nil {
			slog.Debug("Skipping directory without a session", "dir", e.Name(), "err", err)
			continue
		}
		result = append(result, session)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// Delete discards a session and every file stored with it.
func (s *SessionStore) Delete(sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	dir := s.Dir(sessionID)
	if _, err := os.Stat(filepath.Join(dir, sessionFile)); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	slog.Info("Deleted session", "id", sessionID)
	return nil
}
