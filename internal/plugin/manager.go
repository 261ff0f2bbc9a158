package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrPluginNotFound is returned when a requested plugin cannot be found.
var ErrPluginNotFound = errors.New("plugin not found")

// Manifest file names, in lookup order.
var manifestNames = []string{"plugin.json", "plugin.yaml", "plugin.yml"}

// Manager manages plugin discovery and access.
type Manager struct {
	pluginDir string
	plugins   map[string]*Plugin
	mu        sync.RWMutex
}

// NewManager creates a new plugin Manager with the given plugin directory.
func NewManager(pluginDir string) *Manager {
	return &Manager{
		pluginDir: pluginDir,
		plugins:   make(map[string]*Plugin),
	}
}

// Discover rescans the plugin directory. Each subdirectory holding a
// manifest is a plugin; subdirectories with unreadable manifests are
// logged and skipped. A missing directory yields no plugins.
func (m *Manager) Discover() error {
	plugins := make(map[string]*Plugin)

	info, err := os.Stat(m.pluginDir)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return err
	case info.IsDir():
		entries, err := os.ReadDir(m.pluginDir)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			p, err := loadPlugin(filepath.Join(m.pluginDir, entry.Name()))
			if err != nil {
				log.Printf("plugin: skipping %s: %v", entry.Name(), err)
				continue
			}
			if p != nil {
				plugins[p.Manifest.Name] = p
			}
		}
	}

	m.mu.Lock()
	m.plugins = plugins
	m.mu.Unlock()
	return nil
}

// loadPlugin reads the manifest of dir. It returns nil, nil when dir holds
// no manifest.
func loadPlugin(dir string) (*Plugin, error) {
	for _, name := range manifestNames {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}

		var manifest Manifest
		if filepath.Ext(name) == ".json" {
			err = json.Unmarshal(data, &manifest)
		} else {
			err = yaml.Unmarshal(data, &manifest)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if manifest.Name == "" || manifest.Executable == "" {
			return nil, fmt.Errorf("%s: name and executable are required", name)
		}

		return &Plugin{
			Manifest:   manifest,
			Path:       dir,
			Executable: filepath.Join(dir, manifest.Executable),
		}, nil
	}
	return nil, nil
}

// Get returns a plugin by name.
// Returns ErrPluginNotFound if the plugin does not exist.
func (m *Manager) Get(name string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plugin, ok := m.plugins[name]
	if !ok {
		return nil, ErrPluginNotFound
	}

	return plugin, nil
}

// List returns all discovered plugins sorted by name.
func (m *Manager) List() []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plugins := make([]*Plugin, 0, len(m.plugins))
	for _, plugin := range m.plugins {
		plugins = append(plugins, plugin)
	}
	sort.Slice(plugins, func(i, j int) bool {
		return plugins[i].Manifest.Name < plugins[j].Manifest.Name
	})

	return plugins
}

// PluginDir returns the plugin directory path.
func (m *Manager) PluginDir() string {
	return m.pluginDir
}
