package viewdef

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store loads and persists view definitions.
type Store interface {
	Load(name string) (*View, error)
	Save(v *View) error
	List() ([]string, error)
}

// FileStore keeps one YAML file per view in Dir.
type FileStore struct {
	Dir string
	mu  sync.Mutex
}

// NewFileStore returns a store rooted at dir.
func NewFileStore(dir string) *FileStore { return &FileStore{Dir: dir} }

func (s *FileStore) path(name string) string {
	return filepath.Join(s.Dir, name+".yaml")
}

// Load reads, validates and decodes the named view.
func (s *FileStore) Load(name string) (*View, error) {
	s.mu.Lock()
	data, err := os.ReadFile(s.path(name))
	s.mu.Unlock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("view %q: %w", name, ErrNotFound)
		}
		return nil, err
	}
	v, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("view %q: %w", name, err)
	}
	v.Bind(s)
	return v, nil
}

// Save writes the view as YAML.
func (s *FileStore) Save(v *View) error {
	if err := Check(v); err != nil {
		return err
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path(v.Name), data, 0o644)
}

// List returns the names of stored views, sorted.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(out)
	return out, nil
}

// MemoryStore keeps definitions in memory.
type MemoryStore struct {
	mu    sync.Mutex
	views map[string]*View
	Saves int
}

// NewMemoryStore returns a store holding views.
func NewMemoryStore(views ...*View) *MemoryStore {
	s := &MemoryStore{views: map[string]*View{}}
	for _, v := range views {
		v.Bind(s)
		s.views[v.Name] = v
	}
	return s
}

func (s *MemoryStore) Load(name string) (*View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.views[name]
	if !ok {
		return nil, fmt.Errorf("view %q: %w", name, ErrNotFound)
	}
	return v, nil
}

func (s *MemoryStore) Save(v *View) error {
	if err := Check(v); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v.Bind(s)
	s.views[v.Name] = v
	s.Saves++
	return nil
}

func (s *MemoryStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.views))
	for name := range s.views {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}
