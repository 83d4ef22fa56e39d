package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// State is the last successful position of one collection.
type State struct {
	Collection    string    `json:"collection"`
	LastValue     string    `json:"last_value"`
	LastSyncTime  time.Time `json:"last_sync_time"`
	ItemsExported int       `json:"items_exported"`
	LastError     string    `json:"last_error,omitempty"`
}

// StateManager keeps the states of several collections in one JSON file.
// Every change is written through.
type StateManager struct {
	mu     sync.RWMutex
	path   string
	states map[string]*State
	now    func() time.Time
}

// NewStateManager loads path when it exists.
func NewStateManager(path string) (*StateManager, error) {
	sm := &StateManager{path: path, states: map[string]*State{}, now: time.Now}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return sm, nil
	case err != nil:
		return nil, fmt.Errorf("read sync state: %w", err)
	}
	if err := json.Unmarshal(data, &sm.states); err != nil {
		return nil, fmt.Errorf("parse sync state %s: %w", path, err)
	}
	return sm, nil
}

// State returns a copy of the state of collection, zero when it never ran.
func (sm *StateManager) State(collection string) State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if s, ok := sm.states[collection]; ok {
		return *s
	}
	return State{Collection: collection}
}

// Update records a successful run. An empty last keeps the previous value:
// a run that found nothing new does not move the mark.
func (sm *StateManager) Update(collection, last string, items int) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	s := sm.entry(collection)
	if last != "" {
		s.LastValue = last
	}
	s.LastSyncTime = sm.now()
	s.ItemsExported = items
	s.LastError = ""
	return sm.save()
}

// Fail records a failed run without moving the mark.
func (sm *StateManager) Fail(collection string, runErr error) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	s := sm.entry(collection)
	s.LastSyncTime = sm.now()
	s.LastError = runErr.Error()
	return sm.save()
}

// Reset forgets collection so the next run reads everything again.
func (sm *StateManager) Reset(collection string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.states, collection)
	return sm.save()
}

func (sm *StateManager) Path() string { return sm.path }

func (sm *StateManager) entry(collection string) *State {
	s, ok := sm.states[collection]
	if !ok {
		s = &State{Collection: collection}
		sm.states[collection] = s
	}
	return s
}

// save replaces the file atomically.
func (sm *StateManager) save() error {
	data, err := json.MarshalIndent(sm.states, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sync state: %w", err)
	}
	if dir := filepath.Dir(sm.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create sync state dir: %w", err)
		}
	}
	tmp := sm.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write sync state: %w", err)
	}
	if err := os.Rename(tmp, sm.path); err != nil {
		return fmt.Errorf("replace sync state: %w", err)
	}
	return nil
}
