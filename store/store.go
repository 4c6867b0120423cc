// Package store persists the room's durable state as three JSON files in the
// data directory: queue, provider-capable sessions, and history. Writes are
// best-effort and atomic (temp + rename), so a crash can lose the latest
// mutation but never corrupts a file.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/slate-fm/maestro/models"
)

const (
	queueFile    = "queue.json"
	sessionsFile = "sessions.json"
	historyFile  = "history.json"
)

// Store reads and writes the room's state files.
type Store struct {
	dir string
}

// New ensures the data directory exists.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the data directory path.
func (s *Store) Dir() string { return s.dir }

func (s *Store) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", name, err)
	}
	if _, err := pending.Write(data); err != nil {
		pending.Cleanup()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replacing %s: %w", name, err)
	}
	return nil
}

// read unmarshals a state file into v. A missing file is not an error; v is
// left untouched.
func (s *Store) read(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	return nil
}

// SaveQueue persists the user-submitted queue.
func (s *Store) SaveQueue(tracks []*models.Track) error {
	if tracks == nil {
		tracks = []*models.Track{}
	}
	return s.write(queueFile, tracks)
}

// LoadQueue returns the persisted user queue, empty if none.
func (s *Store) LoadQueue() ([]*models.Track, error) {
	var tracks []*models.Track
	if err := s.read(queueFile, &tracks); err != nil {
		return nil, err
	}
	return tracks, nil
}

// SaveSessions persists provider-capable sessions. Transport handles are not
// serialised (the field is json-ignored on the model).
func (s *Store) SaveSessions(sessions []*models.Session) error {
	if sessions == nil {
		sessions = []*models.Session{}
	}
	return s.write(sessionsFile, sessions)
}

// LoadSessions returns the persisted sessions, empty if none.
func (s *Store) LoadSessions() ([]*models.Session, error) {
	var sessions []*models.Session
	if err := s.read(sessionsFile, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// SaveHistory persists the event ledger.
func (s *Store) SaveHistory(events []*models.HistoryEvent) error {
	if events == nil {
		events = []*models.HistoryEvent{}
	}
	return s.write(historyFile, events)
}

// LoadHistory returns the persisted ledger, empty if none.
func (s *Store) LoadHistory() ([]*models.HistoryEvent, error) {
	var events []*models.HistoryEvent
	if err := s.read(historyFile, &events); err != nil {
		return nil, err
	}
	return events, nil
}
