// Package manifest handles nebula.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/nebula-lang/nebula/vm"
)

// Manifest represents a nebula.toml project configuration.
type Manifest struct {
	Project Project     `toml:"project"`
	Limits  Limits      `toml:"limits"`
	Cache   CacheConfig `toml:"cache"`
	Log     LogConfig   `toml:"log"`

	// Dir is the directory containing the nebula.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Limits tunes the VM execution limits. Zero values take the VM
// defaults; negative values are rejected at load time.
type Limits struct {
	StackSize     int `toml:"stack-size"`
	MaxFrames     int `toml:"max-frames"`
	MaxGlobals    int `toml:"max-globals"`
	MaxIterations int `toml:"max-iterations"`
}

// CacheConfig configures the compile cache. The cache is opt-in: a
// manifest without `[cache] enabled = true` runs without one.
type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `toml:"level"`
}

// Load parses a nebula.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "nebula.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}

	m.applyDefaults()
	return &m, nil
}

// FindAndLoad walks up from startDir to find a nebula.toml file, then
// loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "nebula.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Default returns the configuration used for manifest-less runs.
func Default() *Manifest {
	m := &Manifest{Log: LogConfig{Level: "info"}}
	m.applyDefaults()
	return m
}

// VMConfig translates the manifest limits into a VM configuration.
// Omitted limits keep the VM defaults.
func (m *Manifest) VMConfig() vm.Config {
	cfg := vm.DefaultConfig()
	if m.Limits.StackSize > 0 {
		cfg.StackSize = m.Limits.StackSize
	}
	if m.Limits.MaxFrames > 0 {
		cfg.MaxFrames = m.Limits.MaxFrames
	}
	if m.Limits.MaxGlobals > 0 {
		cfg.MaxGlobals = m.Limits.MaxGlobals
	}
	if m.Limits.MaxIterations > 0 {
		cfg.MaxIterations = m.Limits.MaxIterations
	}
	return cfg
}

func (m *Manifest) validate() error {
	limits := []struct {
		name  string
		value int
	}{
		{"stack-size", m.Limits.StackSize},
		{"max-frames", m.Limits.MaxFrames},
		{"max-globals", m.Limits.MaxGlobals},
		{"max-iterations", m.Limits.MaxIterations},
	}
	for _, l := range limits {
		if l.value < 0 {
			return fmt.Errorf("limits.%s must not be negative (got %d)", l.name, l.value)
		}
	}
	return nil
}

func (m *Manifest) applyDefaults() {
	if m.Cache.Path == "" {
		m.Cache.Path = filepath.Join(m.Dir, ".nebula", "cache.db")
	} else if !filepath.IsAbs(m.Cache.Path) && m.Dir != "" {
		m.Cache.Path = filepath.Join(m.Dir, m.Cache.Path)
	}
	if m.Log.Level == "" {
		m.Log.Level = "info"
	}
}
