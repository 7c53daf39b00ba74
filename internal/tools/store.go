package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

// Section is one named group of configuration keys.
type Section = map[string]any

// Store holds the server-side configuration document the chatbot backend
// polls. Every mutation bumps the version so clients can detect changes with
// a single cheap call.
type Store struct {
	mu       sync.Mutex
	config   map[string]Section
	defaults map[string]Section
	version  int

	// path is the live config file; defaultsPath seeds reset/load_defaults.
	path         string
	defaultsPath string
}

// NewStore creates a store rooted at the given config file. defaultsPath may
// be empty when no defaults file exists.
func NewStore(path, defaultsPath string) *Store {
	return &Store{
		config:       make(map[string]Section),
		defaults:     make(map[string]Section),
		path:         path,
		defaultsPath: defaultsPath,
	}
}

// LoadInitial reads the defaults file and then the live config file, falling
// back to the defaults when the live file is absent or empty. The version
// starts at 1 once any configuration is in place.
func (s *Store) LoadInitial() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.defaultsPath != "" {
		if defaults, err := readConfigFile(s.defaultsPath); err == nil && len(defaults) > 0 {
			s.defaults = defaults
		}
	}

	config, err := readConfigFile(s.path)
	if err != nil || len(config) == 0 {
		s.config = copyConfig(s.defaults)
	} else {
		s.config = config
	}
	s.version = 1

	if len(s.config) == 0 {
		return fmt.Errorf("no configuration available from %s or %s", s.path, s.defaultsPath)
	}
	return nil
}

// Version returns the current version token.
func (s *Store) Version() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strconv.Itoa(s.version)
}

// Sections returns the sorted section names.
func (s *Store) Sections() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.config)
}

// ConfigJSON renders the configuration as indented JSON. When section is
// non-empty only that section is rendered; an unknown section yields a
// descriptive message the model can act on.
func (s *Store) ConfigJSON(section string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if section != "" {
		data, ok := s.config[section]
		if !ok {
			return "", fmt.Errorf("configuration section '%s' not found, available sections: %v", section, sortedKeys(s.config))
		}
		out, err := json.MarshalIndent(map[string]Section{section: data}, "", "  ")
		return string(out), err
	}

	out, err := json.MarshalIndent(s.config, "", "  ")
	return string(out), err
}

// Update changes one existing key. The value is parsed as JSON when possible
// so numbers and booleans keep their types; otherwise it is stored as a
// string. The change is persisted to the live config file.
func (s *Store) Update(section, key, value string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, ok := s.config[section]
	if !ok {
		return "", fmt.Errorf("configuration section '%s' not found, available sections: %v", section, sortedKeys(s.config))
	}
	oldValue, ok := sec[key]
	if !ok {
		return "", fmt.Errorf("configuration key '%s' not found in section '%s', available keys: %v", key, section, sortedKeys(sec))
	}

	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	}
	sec[key] = parsed
	s.version++

	if err := s.writeLocked(s.path); err != nil {
		return fmt.Sprintf("Updated %s.%s from '%v' to '%v' (warning: could not save to file - %v)", section, key, oldValue, parsed, err), nil
	}
	return fmt.Sprintf("Updated %s.%s from '%v' to '%v' (saved to server config, version %d)", section, key, oldValue, parsed, s.version), nil
}

// Save writes the current configuration to the named YAML file. A relative
// path resolves against the live config file's directory; an empty path
// targets the live config file itself.
func (s *Store) Save(path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.resolve(path)
	if err := s.writeLocked(target); err != nil {
		return "", fmt.Errorf("save configuration: %w", err)
	}
	return fmt.Sprintf("Configuration saved to %s", target), nil
}

// Load replaces the configuration from the named YAML file and bumps the
// version.
func (s *Store) Load(path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.resolve(path)
	config, err := readConfigFile(target)
	if err != nil {
		return "", fmt.Errorf("load configuration from %s: %w", target, err)
	}
	if len(config) == 0 {
		return "", fmt.Errorf("configuration file %s is empty or invalid", target)
	}

	s.config = config
	s.version++
	return fmt.Sprintf("Configuration loaded from %s (version %d)", target, s.version), nil
}

// Reset restores the defaults and persists them to the live config file.
func (s *Store) Reset() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.defaults) == 0 {
		return "", fmt.Errorf("default configuration not available")
	}
	s.config = copyConfig(s.defaults)
	s.version++

	if err := s.writeLocked(s.path); err != nil {
		return fmt.Sprintf("Configuration reset to defaults but could not save: %v", err), nil
	}
	return fmt.Sprintf("Configuration reset to default values (version %d)", s.version), nil
}

// LoadDefaults re-reads the defaults file and makes it the live
// configuration.
func (s *Store) LoadDefaults() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.defaultsPath == "" {
		return "", fmt.Errorf("no defaults file configured")
	}
	defaults, err := readConfigFile(s.defaultsPath)
	if err != nil || len(defaults) == 0 {
		return "", fmt.Errorf("could not load default configuration from %s", s.defaultsPath)
	}

	s.defaults = defaults
	s.config = copyConfig(defaults)
	s.version++
	return fmt.Sprintf("Default configuration loaded from %s (version %d)", s.defaultsPath, s.version), nil
}

// ListKeys renders the key layout. When section is non-empty only that
// section's keys are listed.
func (s *Store) ListKeys(section string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if section != "" {
		sec, ok := s.config[section]
		if !ok {
			return "", fmt.Errorf("configuration section '%s' not found, available sections: %v", section, sortedKeys(s.config))
		}
		return fmt.Sprintf("Keys in section '%s': %v", section, sortedKeys(sec)), nil
	}

	layout := make(map[string][]string, len(s.config))
	for name, sec := range s.config {
		layout[name] = sortedKeys(sec)
	}
	out, err := json.MarshalIndent(layout, "", "  ")
	return string(out), err
}

func (s *Store) resolve(path string) string {
	if path == "" {
		return s.path
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(filepath.Dir(s.path), path)
}

// writeLocked persists the config as YAML. Caller holds the lock.
func (s *Store) writeLocked(path string) error {
	out, err := yaml.Marshal(s.config)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

func readConfigFile(path string) (map[string]Section, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var config map[string]Section
	if err := yaml.Unmarshal(raw, &config); err != nil {
		return nil, err
	}
	return config, nil
}

func copyConfig(src map[string]Section) map[string]Section {
	out := make(map[string]Section, len(src))
	for name, sec := range src {
		cp := make(Section, len(sec))
		for k, v := range sec {
			cp[k] = v
		}
		out[name] = cp
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
