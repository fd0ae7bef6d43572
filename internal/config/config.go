// Package config handles qcvm.toml host configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "qcvm.toml"

// Config represents a qcvm.toml file.
type Config struct {
	VM      VM      `toml:"vm"`
	Log     Log     `toml:"log"`
	Stats   Stats   `toml:"stats"`
	Profile Profile `toml:"profile"`

	// Dir is the directory containing the qcvm.toml file (set at load time).
	Dir string `toml:"-"`
}

// VM configures execution contexts.
type VM struct {
	RunawayLimit int  `toml:"runaway_limit"`
	MaxEntities  int  `toml:"max_entities"`
	Trace        bool `toml:"trace"`
}

// Log configures the commonlog backend.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Stats configures the player stats database.
type Stats struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Profile configures the profile report.
type Profile struct {
	Top int `toml:"top"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.VM.RunawayLimit <= 0 {
		c.VM.RunawayLimit = 0x1000000
	}
	if c.VM.MaxEntities <= 0 {
		c.VM.MaxEntities = 1024
	}
	if c.Stats.Path == "" {
		c.Stats.Path = "main.db"
	}
	if c.Profile.Top <= 0 {
		c.Profile.Top = 10
	}
}

// Load parses a qcvm.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	var c Config
	meta, err := toml.Decode(string(data), &c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q in %s", undecoded[0].String(), path)
	}
	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	c.applyDefaults()
	return &c, nil
}

// FindAndLoad walks up from startDir to find a qcvm.toml file and loads
// it. When none is found the defaults are returned.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// StatsPath returns the stats database path, resolved against the
// configuration directory when relative.
func (c *Config) StatsPath() string {
	if filepath.IsAbs(c.Stats.Path) || c.Dir == "" {
		return c.Stats.Path
	}
	return filepath.Join(c.Dir, c.Stats.Path)
}

// LogFile returns the log file path, or nil to log to stderr.
func (c *Config) LogFile() *string {
	if c.Log.File == "" {
		return nil
	}
	path := c.Log.File
	if !filepath.IsAbs(path) && c.Dir != "" {
		path = filepath.Join(c.Dir, path)
	}
	return &path
}
