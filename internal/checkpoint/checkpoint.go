// Package checkpoint records per-SKU progress in a JSON file so an
// interrupted run can resume where it stopped.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/maltedev/sku-scraper/internal/models"
)

type Status string

const (
	StatusPending Status = "pending"
	// StatusExtracted means a record was scraped but not yet written out.
	StatusExtracted Status = "extracted"
	// StatusCompleted is set once the record is in the output file.
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusBlocked   Status = "blocked"
)

type Entry struct {
	SKU       string          `json:"sku"`
	Retailer  models.Retailer `json:"retailer"`
	Status    Status          `json:"status"`
	Attempts  int             `json:"attempts"`
	AddedAt   time.Time       `json:"added_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Error     string          `json:"error,omitempty"`
}

// Store keeps entries in memory and rewrites the file on every change.
type Store struct {
	mu       sync.RWMutex
	entries  map[string]*Entry
	filename string
	now      func() time.Time
}

func Open(filename string) (*Store, error) {
	s := &Store{
		entries:  make(map[string]*Entry),
		filename: filename,
		now:      time.Now,
	}

	if err := s.load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	return s, nil
}

// Track registers tasks as pending unless they already have an entry.
func (s *Store) Track(tasks []models.SkuTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, t := range tasks {
		if _, ok := s.entries[t.Key()]; ok {
			continue
		}
		s.entries[t.Key()] = &Entry{
			SKU:       t.Identifier,
			Retailer:  t.Retailer,
			Status:    StatusPending,
			AddedAt:   now,
			UpdatedAt: now,
		}
	}
	return s.save()
}

// Update sets the status of a task and counts the attempts spent on it.
func (s *Store) Update(task models.SkuTask, status Status, attempts int, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[task.Key()]
	if !ok {
		e = &Entry{SKU: task.Identifier, Retailer: task.Retailer, AddedAt: now}
		s.entries[task.Key()] = e
	}

	e.Status = status
	e.Attempts += attempts
	e.UpdatedAt = now
	e.Error = errMsg

	return s.save()
}

func (s *Store) Get(task models.SkuTask) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[task.Key()]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Filter drops tasks that already completed, keeping the input order.
func (s *Store) Filter(tasks []models.SkuTask) []models.SkuTask {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.SkuTask, 0, len(tasks))
	for _, t := range tasks {
		if e, ok := s.entries[t.Key()]; ok && e.Status == StatusCompleted {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (s *Store) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int)
	for _, e := range s.entries {
		stats[string(e.Status)]++
	}
	stats["total"] = len(s.entries)
	return stats
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	// Write to temp file first so a crash never leaves a truncated checkpoint.
	tmpFile := s.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}

	return os.Rename(tmpFile, s.filename)
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.filename)
	if err != nil {
		return err
	}

	entries := make(map[string]*Entry)
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to decode checkpoint %s: %w", s.filename, err)
	}
	s.entries = entries
	return nil
}
