package tenant

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"flowboard/internal/timerange"
	"flowboard/internal/types"
)

// Theme values accepted in preferences.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Preferences is the locally persisted user state.
type Preferences struct {
	Tenants      []types.TenantConfig `yaml:"tenants" json:"tenants"`
	ActiveTenant string               `yaml:"active_tenant" json:"activeTenant"`
	DateRange    timerange.Range      `yaml:"date_range" json:"dateRange"`
	Theme        string               `yaml:"theme,omitempty" json:"theme,omitempty"`
}

// Normalize replaces unknown values with defaults.
func (p *Preferences) Normalize() {
	if !p.DateRange.Known() {
		p.DateRange = timerange.Default
	}
	if p.Theme != ThemeLight && p.Theme != ThemeDark {
		p.Theme = ""
	}
}

// Store loads and saves preferences.
type Store interface {
	Load() (Preferences, error)
	Save(Preferences) error
}

// DefaultPreferencesPath returns ~/.flowboard/preferences.yaml.
func DefaultPreferencesPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".flowboard", "preferences.yaml")
	}
	return filepath.Join(home, ".flowboard", "preferences.yaml")
}

// FileStore keeps preferences in a YAML file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store for path.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultPreferencesPath()
	}
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the file. A missing file yields default preferences.
func (s *FileStore) Load() (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prefs Preferences
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			prefs.Normalize()
			return prefs, nil
		}
		return prefs, fmt.Errorf("failed to read preferences %s: %w", s.path, err)
	}
	if err := yaml.Unmarshal(data, &prefs); err != nil {
		return Preferences{}, fmt.Errorf("failed to parse preferences %s: %w", s.path, err)
	}
	prefs.Normalize()
	return prefs, nil
}

// Save writes the file atomically.
func (s *FileStore) Save(prefs Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(&prefs)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create preferences dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace preferences: %w", err)
	}
	return nil
}

// MemoryStore keeps preferences in memory.
type MemoryStore struct {
	mu    sync.Mutex
	prefs Preferences
	saves int
}

func (m *MemoryStore) Load() (Preferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.prefs
	p.Tenants = append([]types.TenantConfig(nil), p.Tenants...)
	p.Normalize()
	return p, nil
}

func (m *MemoryStore) Save(p Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs = p
	m.saves++
	return nil
}

// Saves returns how many times Save was called.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
