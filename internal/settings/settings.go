// Package settings persists the small amount of user state the coordinator
// owns: the game directory and the backend access token.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileName is the settings file inside the data directory.
const FileName = "settings.yaml"

// Settings is the persisted user state.
type Settings struct {
	GameDirectory      string `yaml:"game_directory,omitempty"`
	BackendAccessToken string `yaml:"backend_access_token,omitempty"`
}

// Store is the settings persistence boundary. Get is idempotent and Save
// is last-write-wins.
type Store interface {
	Get() Settings
	Save(Settings) error
}

// FileStore keeps Settings in a YAML file, caching the last read or write.
type FileStore struct {
	path string

	mu     sync.Mutex
	cached *Settings
}

// NewFileStore returns a FileStore at dir/settings.yaml. The file is created
// on first Save.
func NewFileStore(dir string) *FileStore {
	return &FileStore{path: filepath.Join(dir, FileName)}
}

// Path returns the settings file path.
func (s *FileStore) Path() string { return s.path }

// Get returns the stored settings. A missing or unreadable file yields the
// zero Settings.
func (s *FileStore) Get() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil {
		return *s.cached
	}
	var loaded Settings
	if data, err := os.ReadFile(s.path); err == nil {
		if err := yaml.Unmarshal(data, &loaded); err != nil {
			loaded = Settings{}
		}
	}
	s.cached = &loaded
	return loaded
}

// Save writes settings atomically via a temp file and rename.
func (s *FileStore) Save(settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace settings: %w", err)
	}

	saved := settings
	s.cached = &saved
	return nil
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu       sync.Mutex
	settings Settings
	saves    int
}

// NewMemoryStore returns a MemoryStore seeded with initial.
func NewMemoryStore(initial Settings) *MemoryStore {
	return &MemoryStore{settings: initial}
}

func (m *MemoryStore) Get() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

func (m *MemoryStore) Save(s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
	m.saves++
	return nil
}

// Saves returns how many times Save was called.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
