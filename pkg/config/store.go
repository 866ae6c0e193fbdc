package config

import (
	"errors"
	"os"
	"sync"
)

// Store is the persisted key/value settings surface owned by the host.
type Store interface {
	Get() (Config, error)
	Put(cfg Config) error
}

// FileStore persists the configuration as a YAML file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

// Get loads the configuration. A missing file yields the defaults.
func (s *FileStore) Get() (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, err := Load(s.path)
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return Defaults(), nil
	}
	return cfg, err
}

func (s *FileStore) Put(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Save(s.path, cfg)
}

// MemoryStore keeps the configuration in memory.
type MemoryStore struct {
	mu  sync.RWMutex
	cfg Config
}

func NewMemoryStore(cfg Config) *MemoryStore {
	return &MemoryStore{cfg: cfg}
}

func (s *MemoryStore) Get() (Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg, nil
}

func (s *MemoryStore) Put(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	return nil
}
