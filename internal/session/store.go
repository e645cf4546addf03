// Package session persists generated presentations on disk so follow-up
// edits can address a deck by id across requests and process restarts.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deckforge-ai/presentation-platform/internal/model"
	"github.com/deckforge-ai/presentation-platform/pkg/logger"
	"github.com/deckforge-ai/presentation-platform/pkg/metrics"
)

// ErrNotFound signals an unknown or expired session id.
var ErrNotFound = errors.New("session not found")

const (
	documentFile = "deck.html"
	metaFile     = "meta.json"
	runsDir      = "runs"
)

// Store is a directory-per-session file store. Each session holds the
// current document, its metadata, and an audit artifact per run.
type Store struct {
	baseDir string
	logger  *logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates the store, making the base directory if needed.
func NewStore(baseDir string, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &Store{
		baseDir: baseDir,
		logger:  log,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// Create persists a new session and returns its metadata.
func (s *Store) Create(document, title string, slideCount int) (model.SessionMeta, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return model.SessionMeta{}, fmt.Errorf("generate session id: %w", err)
	}

	now := time.Now().UTC()
	meta := model.SessionMeta{
		ID:         id.String(),
		Title:      title,
		SlideCount: slideCount,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	dir := s.sessionDir(meta.ID)
	if err := os.MkdirAll(filepath.Join(dir, runsDir), 0o755); err != nil {
		return model.SessionMeta{}, fmt.Errorf("create session: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, documentFile), []byte(document), 0o644); err != nil {
		return model.SessionMeta{}, fmt.Errorf("write document: %w", err)
	}
	if err := s.writeMeta(dir, meta); err != nil {
		return model.SessionMeta{}, err
	}

	metrics.SessionsActive.Inc()
	s.logger.Info("session created",
		zap.String("session_id", meta.ID),
		zap.Int("slide_count", slideCount))
	return meta, nil
}

// Get returns the metadata for one session.
func (s *Store) Get(id string) (model.SessionMeta, error) {
	data, err := os.ReadFile(filepath.Join(s.sessionDir(id), metaFile))
	if err != nil {
		if os.IsNotExist(err) {
			return model.SessionMeta{}, ErrNotFound
		}
		return model.SessionMeta{}, fmt.Errorf("read session meta: %w", err)
	}
	var meta model.SessionMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return model.SessionMeta{}, fmt.Errorf("decode session meta: %w", err)
	}
	return meta, nil
}

// Document returns the current document of one session.
func (s *Store) Document(id string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.sessionDir(id), documentFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("read document: %w", err)
	}
	return string(data), nil
}

// UpdateDocument replaces the session's document and refreshes metadata.
func (s *Store) UpdateDocument(id, document, title string, slideCount int) (model.SessionMeta, error) {
	meta, err := s.Get(id)
	if err != nil {
		return model.SessionMeta{}, err
	}

	dir := s.sessionDir(id)
	if err := os.WriteFile(filepath.Join(dir, documentFile), []byte(document), 0o644); err != nil {
		return model.SessionMeta{}, fmt.Errorf("write document: %w", err)
	}

	if title != "" {
		meta.Title = title
	}
	meta.SlideCount = slideCount
	meta.UpdatedAt = time.Now().UTC()
	if err := s.writeMeta(dir, meta); err != nil {
		return model.SessionMeta{}, err
	}
	return meta, nil
}

// List returns all sessions, newest first.
func (s *Store) List() ([]model.SessionMeta, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessions := make([]model.SessionMeta, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		meta, err := s.Get(e.Name())
		if err != nil {
			continue // partially written or foreign directory
		}
		sessions = append(sessions, meta)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

// Delete removes a session and everything under it.
func (s *Store) Delete(id string) error {
	dir := s.sessionDir(id)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("stat session: %w", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	// Drop the edit lock with the session, or the map grows forever.
	s.mu.Lock()
	delete(s.locks, id)
	s.mu.Unlock()

	metrics.SessionsActive.Dec()
	return nil
}

// RunsDir returns the directory holding per-run audit artifacts for a
// session.
func (s *Store) RunsDir(id string) string {
	return filepath.Join(s.sessionDir(id), runsDir)
}

// Lock serializes edits to one session. Concurrent tweak requests on the
// same deck run one at a time; the returned function releases the lock.
func (s *Store) Lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Purge removes sessions not updated within the retention window. Returns
// the number removed.
func (s *Store) Purge(retention time.Duration) int {
	sessions, err := s.List()
	if err != nil {
		s.logger.Warn("session purge scan failed", zap.Error(err))
		return 0
	}

	cutoff := time.Now().UTC().Add(-retention)
	purged := 0
	for _, meta := range sessions {
		if meta.UpdatedAt.After(cutoff) {
			continue
		}
		if err := s.Delete(meta.ID); err != nil {
			s.logger.Warn("session purge failed",
				zap.String("session_id", meta.ID),
				zap.Error(err))
			continue
		}
		purged++
		metrics.SessionsPurgedTotal.Inc()
	}
	if purged > 0 {
		s.logger.Info("sessions purged", zap.Int("count", purged))
	}
	return purged
}

// StartGC runs Purge on the given interval until stop is closed.
func (s *Store) StartGC(interval, retention time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Purge(retention)
			case <-stop:
				return
			}
		}
	}()
}

func (s *Store) sessionDir(id string) string {
	// Defends the base directory against path traversal in ids.
	return filepath.Join(s.baseDir, filepath.Base(strings.TrimSpace(id)))
}

func (s *Store) writeMeta(dir string, meta model.SessionMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session meta: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metaFile), data, 0o644); err != nil {
		return fmt.Errorf("write session meta: %w", err)
	}
	return nil
}
