// Package config handles pluspy.toml runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/pluslang/pluspy/heap"
	"github.com/pluslang/pluspy/jit"
)

// Config represents a pluspy.toml runtime configuration.
type Config struct {
	Heap HeapConfig `toml:"heap"`
	JIT  JITConfig  `toml:"jit"`
	Log  LogConfig  `toml:"log"`

	// Dir is the directory containing the pluspy.toml file (set at load time).
	Dir string `toml:"-"`
}

// HeapConfig tunes the memory core.
type HeapConfig struct {
	CeilingBytes        int `toml:"ceiling-bytes"`
	MinorThresholdBytes int `toml:"minor-threshold-bytes"`
	MajorThresholdBytes int `toml:"major-threshold-bytes"`
	PromoteAfter        int `toml:"promote-after"`
}

// JITConfig tunes the function cache.
type JITConfig struct {
	Enabled       bool   `toml:"enabled"`
	CacheCapacity int    `toml:"cache-capacity"`
	ProfilePath   string `toml:"profile-path"`
	WarmHotKeys   int    `toml:"warm-hot-keys"`
}

// LogConfig configures logging.
type LogConfig struct {
	Verbosity int `toml:"verbosity"`
}

// Default returns the configuration used when no pluspy.toml is present.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Heap.CeilingBytes <= 0 {
		c.Heap.CeilingBytes = heap.DefaultPoolCeiling
	}
	if c.Heap.MinorThresholdBytes <= 0 {
		c.Heap.MinorThresholdBytes = heap.DefaultMinorThreshold
	}
	if c.Heap.MajorThresholdBytes <= 0 {
		c.Heap.MajorThresholdBytes = heap.DefaultMajorThreshold
	}
	if c.Heap.PromoteAfter <= 0 {
		c.Heap.PromoteAfter = heap.DefaultPromoteAfter
	}
	if c.JIT.CacheCapacity <= 0 {
		c.JIT.CacheCapacity = jit.DefaultCapacity
	}
	if c.JIT.WarmHotKeys < 0 {
		c.JIT.WarmHotKeys = 0
	}
}

// Load parses a pluspy.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, "pluspy.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	c.applyDefaults()
	return &c, nil
}

// FindAndLoad walks up from startDir to find a pluspy.toml file, then loads
// and returns the configuration. Returns the defaults if none is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "pluspy.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return Default(), nil
		}
		dir = parent
	}
}

// HeapOptions translates the heap section to heap.Options.
func (c *Config) HeapOptions() heap.Options {
	return heap.Options{
		PoolCeilingBytes:    c.Heap.CeilingBytes,
		MinorThresholdBytes: c.Heap.MinorThresholdBytes,
		MajorThresholdBytes: c.Heap.MajorThresholdBytes,
		PromoteAfter:        c.Heap.PromoteAfter,
	}
}

// ProfilePath resolves the JIT profile database path relative to the
// configuration directory. Empty means no persistent profile.
func (c *Config) ProfilePath() string {
	if c.JIT.ProfilePath == "" {
		return ""
	}
	if filepath.IsAbs(c.JIT.ProfilePath) || c.Dir == "" {
		return c.JIT.ProfilePath
	}
	return filepath.Join(c.Dir, c.JIT.ProfilePath)
}
