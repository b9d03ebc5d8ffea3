// Package config loads the workspace configuration from
// .blockkernel/config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lexcodex/blockkernel/framework"
)

const configDirName = ".blockkernel"

// ConfigDir returns the workspace-local configuration directory.
func ConfigDir(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, configDirName)
}

// DefaultConfigPath returns .blockkernel/config.yaml within the workspace.
func DefaultConfigPath(workspace string) string {
	return filepath.Join(ConfigDir(workspace), "config.yaml")
}

// Config matches .blockkernel/config.yaml.
type Config struct {
	Workspace       string        `yaml:"-"`
	DefaultToolbox  string        `yaml:"default_toolbox"`
	DefaultLanguage string        `yaml:"default_language"`
	AllowedBlocks   []string      `yaml:"allowed_blocks,omitempty"`
	ToolboxPaths    []string      `yaml:"toolbox_paths"`
	KernelPaths     []string      `yaml:"kernel_paths"`
	GeneratorPaths  []string      `yaml:"generator_paths"`
	Session         SessionConfig `yaml:"session"`
	Store           StoreConfig   `yaml:"store"`
	Logging         LoggingConfig `yaml:"logging"`
}

// SessionConfig selects the session provider. An empty endpoint means the
// in-process local session.
type SessionConfig struct {
	Network  string `yaml:"network,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
}

// StoreConfig selects the document store.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// LoggingConfig describes log output.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	File        string `yaml:"file,omitempty"`
	Development bool   `yaml:"development,omitempty"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig(workspace string) *Config {
	dir := ConfigDir(workspace)
	return &Config{
		Workspace:       workspace,
		DefaultToolbox:  framework.DefaultToolbox,
		DefaultLanguage: framework.DefaultLanguage,
		ToolboxPaths:    []string{filepath.Join(dir, "toolboxes")},
		KernelPaths:     defaultKernelPaths(dir),
		GeneratorPaths:  []string{filepath.Join(dir, "generators")},
		Session:         SessionConfig{Network: "tcp"},
		Store:           StoreConfig{Driver: "file", Path: filepath.Join(dir, "documents")},
		Logging:         LoggingConfig{Level: "info"},
	}
}

// defaultKernelPaths lists the workspace kernel dir followed by the
// standard Jupyter locations.
func defaultKernelPaths(dir string) []string {
	paths := []string{filepath.Join(dir, "kernels")}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".local", "share", "jupyter", "kernels"))
	}
	return append(paths, "/usr/local/share/jupyter/kernels", "/usr/share/jupyter/kernels")
}

// Load reads the config or returns defaults when missing. The result is
// normalized.
func Load(path, workspace string) (*Config, error) {
	cfg := DefaultConfig(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, cfg.Normalize()
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Workspace = workspace
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to disk.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config missing")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Normalize makes every path absolute and fills missing defaults.
func (c *Config) Normalize() error {
	if c.Workspace == "" {
		return fmt.Errorf("workspace path required")
	}
	abs, err := filepath.Abs(c.Workspace)
	if err != nil {
		return fmt.Errorf("resolve workspace: %w", err)
	}
	c.Workspace = abs
	defaults := DefaultConfig(abs)
	if c.DefaultToolbox == "" {
		c.DefaultToolbox = defaults.DefaultToolbox
	}
	if c.DefaultLanguage == "" {
		c.DefaultLanguage = defaults.DefaultLanguage
	}
	if len(c.ToolboxPaths) == 0 {
		c.ToolboxPaths = defaults.ToolboxPaths
	}
	if len(c.KernelPaths) == 0 {
		c.KernelPaths = defaults.KernelPaths
	}
	if len(c.GeneratorPaths) == 0 {
		c.GeneratorPaths = defaults.GeneratorPaths
	}
	c.ToolboxPaths = c.expandAll(c.ToolboxPaths)
	c.KernelPaths = c.expandAll(c.KernelPaths)
	c.GeneratorPaths = c.expandAll(c.GeneratorPaths)
	if c.Session.Network == "" {
		c.Session.Network = "tcp"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = defaults.Store.Driver
	}
	if c.Store.Path == "" {
		c.Store.Path = defaults.Store.Path
	}
	c.Store.Path = c.expand(c.Store.Path)
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.Logging.File != "" {
		c.Logging.File = c.expand(c.Logging.File)
	}
	return nil
}

// Allowed returns the configured allow-list; nil when unrestricted.
func (c *Config) Allowed() framework.AllowList {
	if len(c.AllowedBlocks) == 0 {
		return nil
	}
	return framework.NewAllowList(c.AllowedBlocks...)
}

func (c *Config) expandAll(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p = c.expand(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// expand resolves ~ and workspace-relative paths.
func (c *Config) expand(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(c.Workspace, path)
}
