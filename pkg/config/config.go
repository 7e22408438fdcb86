// Package config loads buildinfo settings from TOML, .env files and the
// environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// DefaultPath is the configuration file read when none is given.
const DefaultPath = "buildinfo.toml"

// Environment variables that override the file.
const (
	EnvMakeOpts = "MAKEOPTS"
	EnvBuildDir = "IPXE_BUILD_DIR"
	EnvStore    = "BUILDINFO_DB"
)

// Config is the complete tool configuration.
type Config struct {
	Repository Repository `toml:"repository"`
	Analysis   Analysis   `toml:"analysis"`
	Store      Store      `toml:"store"`
	Build      Build      `toml:"build"`
}

// Repository locates the analysed working tree.
type Repository struct {
	Path   string `toml:"path"`
	Remote string `toml:"remote"`
	Branch string `toml:"branch"`
}

// Analysis selects what the commit walker collects.
type Analysis struct {
	Targets []string `toml:"targets"`
	Jobs    int      `toml:"jobs"`
}

// Store locates the results database.
type Store struct {
	Path string `toml:"path"`
}

// Build configures single-image builds.
type Build struct {
	Dir      string `toml:"dir"`
	MakeOpts string `toml:"makeopts"`
	Platform string `toml:"platform"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Repository: Repository{Path: ".", Remote: "origin", Branch: "master"},
		Analysis:   Analysis{Targets: []string{"bin"}, Jobs: 10},
		Store:      Store{Path: "buildinfo.db"},
		Build:      Build{Dir: "/var/tmp/ipxe", Platform: "pcbios"},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				keys := make([]string, len(undecoded))
				for i, k := range undecoded {
					keys[i] = k.String()
				}
				return nil, fmt.Errorf("read config %s: unknown keys %s", path, strings.Join(keys, ", "))
			}
		}
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvMakeOpts); v != "" {
		c.Build.MakeOpts = v
	}
	if v := strings.TrimSpace(getenv(EnvBuildDir)); v != "" {
		c.Build.Dir = v
	}
	if v := strings.TrimSpace(getenv(EnvStore)); v != "" {
		c.Store.Path = v
	}
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Repository.Path) == "" {
		return fmt.Errorf("config: repository.path is required")
	}
	if strings.TrimSpace(c.Repository.Remote) == "" {
		return fmt.Errorf("config: repository.remote is required")
	}
	if strings.TrimSpace(c.Repository.Branch) == "" {
		return fmt.Errorf("config: repository.branch is required")
	}
	if len(c.Analysis.Targets) == 0 {
		return fmt.Errorf("config: analysis.targets must name at least one directory")
	}
	labels := make(map[string]string, len(c.Analysis.Targets))
	for _, t := range c.Analysis.Targets {
		if strings.TrimSpace(t) == "" || filepath.IsAbs(t) {
			return fmt.Errorf("config: analysis target %q must be a relative directory", t)
		}
		// Artifacts are stored under the last path element.
		label := filepath.Base(filepath.Clean(t))
		if prev, ok := labels[label]; ok {
			return fmt.Errorf("config: analysis targets %q and %q both store as %q", prev, t, label)
		}
		labels[label] = t
	}
	if c.Analysis.Jobs < 0 {
		return fmt.Errorf("config: analysis.jobs must not be negative")
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("config: store.path is required")
	}
	return nil
}

// LoadDotEnv loads the given .env files into the process environment,
// skipping files that do not exist. Variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Write atomically writes cfg to path as TOML.
func Write(path string, cfg *Config) error {
	if cfg == nil {
		cfg = Default()
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("write config: encode: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".buildinfo-tmp-*")
	if err != nil {
		return fmt.Errorf("write config: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write config: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: rename: %w", err)
	}
	return nil
}
