// Package configuration reads and writes the connection settings file.
package configuration

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"voicelink/infrastructure/settings"
)

var ErrNotFound = errors.New("configuration file does not exist")

type Manager struct {
	resolver resolver
}

// NewManager uses path, or the per-user default location when path is
// empty.
func NewManager(path string) *Manager {
	if path == "" {
		return &Manager{resolver: userResolver{}}
	}
	return &Manager{resolver: fixedResolver(path)}
}

func (m *Manager) Path() (string, error) {
	return m.resolver.resolve()
}

// Configuration reads the file, fills in defaults and validates it.
func (m *Manager) Configuration() (settings.Connection, error) {
	path, err := m.resolver.resolve()
	if err != nil {
		return settings.Connection{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings.Connection{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return settings.Connection{}, err
	}

	var conf settings.Connection
	if err := json.Unmarshal(data, &conf); err != nil {
		return settings.Connection{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	conf = conf.WithDefaults()
	if err := conf.Validate(); err != nil {
		return settings.Connection{}, fmt.Errorf("invalid configuration %s: %w", path, err)
	}
	return conf, nil
}

// Save writes conf, replacing the previous file atomically.
func (m *Manager) Save(conf settings.Connection) error {
	path, err := m.resolver.resolve()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(conf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	tmp := path + ".tmp"
	// the file holds the private identity
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
