package retry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// DLQEntry is one payload whose retries ran out.
type DLQEntry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Operation   string    `json:"operation,omitempty"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error"`
	FailureType string    `json:"failure_type"`
	Data        any       `json:"data,omitempty"`
}

// DLQ is a dead letter queue persisted as a JSON array.
type DLQ struct {
	mu      sync.RWMutex
	config  DLQConfig
	entries []DLQEntry
	counter int
}

// NewDLQ opens the queue, loading existing entries from config.FilePath.
func NewDLQ(config DLQConfig) (*DLQ, error) {
	d := &DLQ{config: config, entries: []DLQEntry{}}
	if _, err := os.Stat(config.FilePath); err == nil {
		if err := d.Load(); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Add appends entry, dropping the oldest entries beyond MaxSize.
func (d *DLQ) Add(entry DLQEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.counter++
	entry.ID = fmt.Sprintf("dlq-%d-%d", time.Now().UnixNano(), d.counter)
	d.entries = append(d.entries, entry)

	if d.config.MaxSize > 0 && len(d.entries) > d.config.MaxSize {
		d.entries = d.entries[len(d.entries)-d.config.MaxSize:]
	}
	return d.saveLocked()
}

// Entries returns a copy of the queue.
func (d *DLQ) Entries() []DLQEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]DLQEntry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Remove deletes the entry with id.
func (d *DLQ) Remove(id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, e := range d.entries {
		if e.ID == id {
			d.entries = append(d.entries[:i], d.entries[i+1:]...)
			return true, d.saveLocked()
		}
	}
	return false, nil
}

// Clear empties the queue.
func (d *DLQ) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.entries = []DLQEntry{}
	return d.saveLocked()
}

// CleanupOld drops entries older than the retention period.
func (d *DLQ) CleanupOld() (int, error) {
	if d.config.RetentionPeriod == 0 {
		return 0, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := time.Now().Add(-d.config.RetentionPeriod)
	kept := make([]DLQEntry, 0, len(d.entries))
	for _, e := range d.entries {
		if e.Timestamp.After(cutoff) {
			kept = append(kept, e)
		}
	}

	removed := len(d.entries) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	d.entries = kept
	return removed, d.saveLocked()
}

// Replay hands every entry to fn and removes the ones fn accepts. Errors from
// fn are joined into the result.
func (d *DLQ) Replay(fn func(DLQEntry) error) (int, error) {
	var (
		replayed int
		errs     []error
	)
	for _, e := range d.Entries() {
		if err := fn(e); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.ID, err))
			continue
		}
		if _, err := d.Remove(e.ID); err != nil {
			return replayed, err
		}
		replayed++
	}
	return replayed, errors.Join(errs...)
}

func (d *DLQ) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Save writes the queue to disk.
func (d *DLQ) Save() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saveLocked()
}

func (d *DLQ) saveLocked() error {
	data, err := json.MarshalIndent(d.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dlq: %w", err)
	}
	if err := os.WriteFile(d.config.FilePath, data, 0o644); err != nil {
		return fmt.Errorf("write dlq: %w", err)
	}
	return nil
}

// Load replaces the in-memory queue with the file contents.
func (d *DLQ) Load() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := os.ReadFile(d.config.FilePath)
	if err != nil {
		return fmt.Errorf("read dlq: %w", err)
	}
	var entries []DLQEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("unmarshal dlq: %w", err)
	}
	d.entries = entries
	return nil
}

// DLQStats summarizes the queue.
type DLQStats struct {
	TotalEntries int
	OldestEntry  time.Time
	NewestEntry  time.Time
	FailureTypes map[string]int
	Operations   map[string]int
}

func (d *DLQ) Stats() DLQStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := DLQStats{
		TotalEntries: len(d.entries),
		FailureTypes: map[string]int{},
		Operations:   map[string]int{},
	}
	if len(d.entries) == 0 {
		return stats
	}
	stats.OldestEntry = d.entries[0].Timestamp
	stats.NewestEntry = d.entries[len(d.entries)-1].Timestamp
	for _, e := range d.entries {
		stats.FailureTypes[e.FailureType]++
		if e.Operation != "" {
			stats.Operations[e.Operation]++
		}
	}
	return stats
}
