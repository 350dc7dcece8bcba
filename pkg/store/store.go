package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"zcash-near-intents/pkg/types"
)

const (
	DefaultFileName = ".zcash-near-intents-swaps.json"
)

// ErrNotFound is returned for an unknown swap id
var ErrNotFound = errors.New("swap record not found")

// Store persists swap results to a JSON file
type Store struct {
	filePath string
	mu       sync.RWMutex
	swaps    map[string]*types.SwapResult
}

// swapFile represents the JSON structure on disk
type swapFile struct {
	Swaps map[string]*types.SwapResult `json:"swaps"`
}

// New opens the store at filePath, or in the home directory when filePath is empty. A
// missing file is created on the first save.
func New(filePath string) (*Store, error) {
	if filePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		filePath = filepath.Join(home, DefaultFileName)
	}

	s := &Store{
		filePath: filePath,
		swaps:    make(map[string]*types.SwapResult),
	}

	if err := s.load(); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return nil, fmt.Errorf("failed to load swap history: %w", err)
	}

	return s, nil
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var f swapFile
	if err := json.Unmarshal(data, &f); err != nil {
		return errors.Wrap(err, "failed to unmarshal swap history")
	}

	s.swaps = f.Swaps
	if s.swaps == nil {
		s.swaps = make(map[string]*types.SwapResult)
	}
	return nil
}

// persist writes the whole map. Callers hold the write lock so file writes stay ordered.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(swapFile{Swaps: s.swaps}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal swap history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to temporary file first, then rename for atomic write
	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write swap history: %w", err)
	}
	if err := os.Rename(tempFile, s.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Save inserts or replaces the record for result.ID
func (s *Store) Save(result *types.SwapResult) error {
	if result == nil || result.ID == "" {
		return errors.New("swap record needs an id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.swaps[result.ID] = result.Clone()
	return s.persist()
}

// Get retrieves a record by swap id
func (s *Store) Get(id string) (*types.SwapResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.swaps[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "swap %s", id)
	}
	return r.Clone(), nil
}

// List returns every record, newest first
func (s *Store) List() []*types.SwapResult {
	return s.filter(func(*types.SwapResult) bool { return true })
}

// ListByStatus returns records with the given status, newest first
func (s *Store) ListByStatus(status types.SwapStatus) []*types.SwapResult {
	return s.filter(func(r *types.SwapResult) bool { return r.Status == status })
}

func (s *Store) filter(keep func(*types.SwapResult) bool) []*types.SwapResult {
	s.mu.RLock()
	out := make([]*types.SwapResult, 0, len(s.swaps))
	for _, r := range s.swaps {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Count returns the number of records
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.swaps)
}

// Path returns the storage file path
func (s *Store) Path() string {
	return s.filePath
}
