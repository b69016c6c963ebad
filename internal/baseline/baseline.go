package baseline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// BaselineFileName is the name of the baseline file.
	BaselineFileName = "coverage_baseline.json"
)

// Record is the last known overall coverage of the target branch. It
// seeds the exact-coverage comparison when no CI reference is
// available.
type Record struct {
	Ratio      float64   `json:"ratio"`
	Commit     string    `json:"commit"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Store handles the persistence and modification of the baseline.
type Store interface {
	// Load reads the baseline from disk.
	Load() error

	// Save writes the baseline to disk.
	Save() error

	// Get returns the current record and whether one has been
	// recorded at all.
	Get() (Record, bool)

	// Update replaces the record with a new ratio and commit.
	Update(ratio float64, commit string)
}

// FileStore is a file-backed implementation of the Store interface.
type FileStore struct {
	mu       sync.Mutex
	filePath string
	record   Record
	present  bool
}

// NewFileStore creates a new FileStore for the given directory. The
// baseline will be stored at dir/coverage_baseline.json.
func NewFileStore(dir string) *FileStore {
	return &FileStore{
		filePath: filepath.Join(dir, BaselineFileName),
	}
}

// NewFileStoreAt creates a FileStore backed by an explicit file path.
func NewFileStoreAt(path string) *FileStore {
	return &FileStore{filePath: path}
}

// Load reads the baseline from disk. A missing file is not an error;
// it means no baseline has been recorded yet.
func (s *FileStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			s.record = Record{}
			s.present = false
			return nil
		}
		return fmt.Errorf("failed to read baseline file %s: %w", s.filePath, err)
	}

	if err := json.Unmarshal(data, &s.record); err != nil {
		return fmt.Errorf("failed to parse baseline file %s: %w", s.filePath, err)
	}
	s.present = true

	return nil
}

// Save writes the baseline to disk.
func (s *FileStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create baseline directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(s.record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal baseline: %w", err)
	}

	if err := os.WriteFile(s.filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write baseline file %s: %w", s.filePath, err)
	}

	return nil
}

// Get returns the current record and whether one has been recorded.
func (s *FileStore) Get() (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.record, s.present
}

// Update replaces the record with a new ratio and commit.
func (s *FileStore) Update(ratio float64, commit string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record = Record{
		Ratio:      ratio,
		Commit:     commit,
		RecordedAt: time.Now().UTC(),
	}
	s.present = true
}

// GetFilePath returns the path to the baseline file.
func (s *FileStore) GetFilePath() string {
	return s.filePath
}
