// Package history persists conversation turns and the append-only
// interaction log, and holds per-session in-memory conversation buffers.
package history

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"querybot/internal/models"
)

const (
	historyFile = "chat_history.json"
	logFile     = "interaction_log.jsonl"
)

// Store persists the conversation history as a JSON file and the interaction
// log as append-only JSON lines.
type Store struct {
	mu      sync.Mutex
	dir     string
	history string
	logPath string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage dir: %w", err)
	}
	return &Store{
		dir:     dir,
		history: filepath.Join(dir, historyFile),
		logPath: filepath.Join(dir, logFile),
	}, nil
}

// Append adds one turn to the persisted conversation history.
func (s *Store) Append(msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, err := s.loadLocked()
	if err != nil {
		return err
	}
	msgs = append(msgs, msg)
	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	if err := os.WriteFile(s.history, data, 0o644); err != nil {
		return fmt.Errorf("writing history: %w", err)
	}
	return nil
}

// Load returns the persisted conversation in order. A missing, empty or
// corrupt file yields an empty history, never an error.
func (s *Store) Load() ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() ([]models.Message, error) {
	data, err := os.ReadFile(s.history)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var msgs []models.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, nil
	}
	return msgs, nil
}

// Clear removes the persisted conversation history.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.history); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}

// Record appends one interaction to the log. A failed write is dropped with
// a warning: the log must never fail a user-facing response.
func (s *Store) Record(entry models.InteractionLogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		log.Warn().Err(err).Msg("Dropping interaction log entry")
		return
	}
	f, err := os.OpenFile(s.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Warn().Err(err).Msg("Dropping interaction log entry")
		return
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Warn().Err(err).Msg("Dropping interaction log entry")
	}
}

// Interactions reads the interaction log back, skipping unparseable lines.
func (s *Store) Interactions() ([]models.InteractionLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.logPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading interaction log: %w", err)
	}
	var entries []models.InteractionLogEntry
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var e models.InteractionLogEntry
		if err := dec.Decode(&e); err != nil {
			break
		}
		entries = append(entries, e)
	}
	return entries, nil
}
