// Package config resolves database aliases to connection settings.
//
// Settings are held in a Store, which may be filled programmatically or
// loaded from a YAML file:
//
//	default: apple
//	databases:
//	  apple:
//	    driver: mysql
//	    url: tcp(db:3306)/por
//	    username: app
//	    password: secret
package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultAlias is the alias used when none is configured.
const DefaultAlias = "default"

// ErrUnknownAlias is returned when no configuration exists for an alias.
var ErrUnknownAlias = errors.New("unknown database alias")

// Config describes how to reach one database target.
type Config struct {
	Alias    string
	Driver   string
	Endpoint string
	User     string
	Secret   string
}

// String describes the target without its secret.
func (c Config) String() string {
	return fmt.Sprintf("%s(%s@%s)", c.Driver, c.User, c.Endpoint)
}

// Source is the lookup contract consumed by the connection registry.
type Source interface {
	Lookup(alias string) (Config, error)
	Save(cfg Config)
	DefaultAlias() string
}

// Store is an in-memory alias table. It is safe for concurrent use.
type Store struct {
	mu           sync.RWMutex
	configs      map[string]Config
	defaultAlias string
}

// NewStore creates an empty store seeded with the given configurations.
func NewStore(configs ...Config) *Store {
	s := &Store{
		configs:      make(map[string]Config, len(configs)),
		defaultAlias: DefaultAlias,
	}
	for _, c := range configs {
		s.configs[c.Alias] = c
	}
	return s
}

// Lookup returns the configuration for alias. An empty alias means the default alias.
func (s *Store) Lookup(alias string) (Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if alias == "" {
		alias = s.defaultAlias
	}
	c, ok := s.configs[alias]
	if !ok {
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownAlias, alias)
	}
	return c, nil
}

// Save stores cfg under cfg.Alias, replacing any previous entry.
func (s *Store) Save(cfg Config) {
	s.mu.Lock()
	s.configs[cfg.Alias] = cfg
	s.mu.Unlock()
}

// Clone copies the configuration of src under the alias dst.
func (s *Store) Clone(src, dst string) error {
	c, err := s.Lookup(src)
	if err != nil {
		return err
	}
	c.Alias = dst
	s.Save(c)
	return nil
}

// Remove forgets alias.
func (s *Store) Remove(alias string) {
	s.mu.Lock()
	delete(s.configs, alias)
	s.mu.Unlock()
}

// Reset forgets every alias.
func (s *Store) Reset() {
	s.mu.Lock()
	s.configs = make(map[string]Config)
	s.mu.Unlock()
}

// Aliases returns the configured alias names in no particular order.
func (s *Store) Aliases() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.configs))
	for a := range s.configs {
		out = append(out, a)
	}
	return out
}

// DefaultAlias returns the alias used for empty lookups.
func (s *Store) DefaultAlias() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultAlias
}

// SetDefaultAlias changes the alias used for empty lookups.
func (s *Store) SetDefaultAlias(alias string) {
	s.mu.Lock()
	s.defaultAlias = alias
	s.mu.Unlock()
}

type fileEntry struct {
	Driver   string `yaml:"driver"`
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type file struct {
	Default   string               `yaml:"default"`
	Databases map[string]fileEntry `yaml:"databases"`
}

// Parse builds a store from YAML data.
func Parse(data []byte) (*Store, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	s := NewStore()
	if f.Default != "" {
		s.defaultAlias = f.Default
	}
	for alias, e := range f.Databases {
		if e.Driver == "" {
			return nil, fmt.Errorf("config: alias %q: driver is required", alias)
		}
		s.configs[alias] = Config{
			Alias:    alias,
			Driver:   e.Driver,
			Endpoint: e.URL,
			User:     e.Username,
			Secret:   e.Password,
		}
	}
	return s, nil
}

// Load reads a YAML configuration file.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Marshal renders the store back into the YAML file format.
func (s *Store) Marshal() ([]byte, error) {
	s.mu.RLock()
	f := file{
		Default:   s.defaultAlias,
		Databases: make(map[string]fileEntry, len(s.configs)),
	}
	for alias, c := range s.configs {
		f.Databases[alias] = fileEntry{
			Driver:   c.Driver,
			URL:      c.Endpoint,
			Username: c.User,
			Password: c.Secret,
		}
	}
	s.mu.RUnlock()

	return yaml.Marshal(&f)
}
