// Package checkpoint persists which row indices have completed so an
// interrupted run can resume without redoing finished work.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// State is the in-memory completion record for one run. It is not safe for
// concurrent use; the progress tracker serializes access behind its own lock.
type State struct {
	processed map[int]struct{}

	// Total is the full row count of the (possibly limited) input.
	Total int
	// Errors counts rows that completed with a row-level error.
	Errors int
	// LastUpdated is the timestamp of the most recent persist, RFC3339 UTC.
	LastUpdated time.Time
}

// NewState returns an empty state for a fresh run.
func NewState(total int) *State {
	return &State{processed: make(map[int]struct{}), Total: total}
}

// Mark records a row index as completed.
func (s *State) Mark(idx int) {
	s.processed[idx] = struct{}{}
}

// Has reports whether a row index completed in a previous or current run.
func (s *State) Has(idx int) bool {
	_, ok := s.processed[idx]
	return ok
}

// Count returns the number of completed rows.
func (s *State) Count() int {
	return len(s.processed)
}

// Indices returns the completed row indices in ascending order.
func (s *State) Indices() []int {
	out := make([]int, 0, len(s.processed))
	for idx := range s.processed {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

type stateJSON struct {
	ProcessedIndices []int  `json:"processed_indices"`
	Total            int    `json:"total"`
	Errors           int    `json:"errors"`
	LastUpdated      string `json:"last_updated"`
}

// Store loads and saves checkpoint state for one output target.
type Store struct {
	path string
}

// NewStore derives the checkpoint location from the output path: the final
// extension is replaced with ".progress.json", so a given output target always
// resumes from its own checkpoint.
func NewStore(outputPath string) *Store {
	return &Store{path: PathFor(outputPath)}
}

// PathFor returns the checkpoint file path for an output path.
func PathFor(outputPath string) string {
	ext := filepath.Ext(outputPath)
	return strings.TrimSuffix(outputPath, ext) + ".progress.json"
}

// Path returns the checkpoint file location.
func (st *Store) Path() string {
	return st.path
}

// Load reads the persisted state. A missing file fails soft and returns an
// empty state; a corrupt file is an error so a damaged checkpoint is never
// silently treated as a fresh run.
func (st *Store) Load() (*State, error) {
	data, err := os.ReadFile(st.path)
	if os.IsNotExist(err) {
		return NewState(0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var raw stateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", st.path, err)
	}

	s := NewState(raw.Total)
	s.Errors = raw.Errors
	for _, idx := range raw.ProcessedIndices {
		s.Mark(idx)
	}
	if raw.LastUpdated != "" {
		if ts, err := time.Parse(time.RFC3339, raw.LastUpdated); err == nil {
			s.LastUpdated = ts
		}
	}
	return s, nil
}

// Save atomically persists the full state: marshal with sorted indices, write
// to a temp file in the same directory, rename into place. Callers serialize
// calls to Save.
func (st *Store) Save(s *State) error {
	s.LastUpdated = time.Now().UTC()
	data, err := json.Marshal(stateJSON{
		ProcessedIndices: s.Indices(),
		Total:            s.Total,
		Errors:           s.Errors,
		LastUpdated:      s.LastUpdated.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	dir := filepath.Dir(st.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(st.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), st.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}
