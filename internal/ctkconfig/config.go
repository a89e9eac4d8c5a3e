// Package ctkconfig loads the module's YAML configuration, generalizing
// dimajix-llm-monitor/internal/config's env-var expansion scheme.
package ctkconfig

import (
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/queelius/ctk/internal/ctklog"
	"github.com/queelius/ctk/internal/validate"
)

// StoreConfig points at the on-disk store directory (spec.md §6.4): a single
// database file plus an optional media/ subdirectory owned by importers.
type StoreConfig struct {
	Dir string `yaml:"dir"`
}

// VFSConfig overrides the adaptive cache bounds of spec.md §4.4.3. Zero
// values fall back to the documented defaults (5s floor, 60s ceiling, cap
// after hit_count>=5).
type VFSConfig struct {
	MinTTLSeconds int `yaml:"min_ttl_seconds"`
	MaxTTLSeconds int `yaml:"max_ttl_seconds"`
	HitCountCap   int `yaml:"hit_count_cap"`
}

// ViewsConfig points at the view-document directory of spec.md §4.5.5.
type ViewsConfig struct {
	Dir string `yaml:"dir"`
}

// Config is the top-level configuration document.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Logging ctklog.Config `yaml:"logging"`
	VFS     VFSConfig     `yaml:"vfs"`
	Views   ViewsConfig   `yaml:"views"`
}

// LoadConfig reads filename, expands ${VAR} / ${VAR:-default} references,
// unmarshals YAML, and applies documented defaults.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	expanded := expandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Store.Dir == "" {
		cfg.Store.Dir = "."
	}
	if cfg.Views.Dir == "" {
		cfg.Views.Dir = "./views"
	}
	if cfg.VFS.MinTTLSeconds == 0 {
		cfg.VFS.MinTTLSeconds = 5
	}
	if cfg.VFS.MaxTTLSeconds == 0 {
		cfg.VFS.MaxTTLSeconds = 60
	}
	if cfg.VFS.HitCountCap == 0 {
		cfg.VFS.HitCountCap = 5
	}

	dirConstraints := validate.FileConstraints{MustExist: false, AllowRelative: true, AllowDir: true, AllowFile: false}
	resolvedStoreDir, err := validate.FilePath(cfg.Store.Dir, dirConstraints)
	if err != nil {
		return nil, err
	}
	cfg.Store.Dir = resolvedStoreDir

	resolvedViewsDir, err := validate.FilePath(cfg.Views.Dir, dirConstraints)
	if err != nil {
		return nil, err
	}
	cfg.Views.Dir = resolvedViewsDir

	return &cfg, nil
}

// expandEnv supports both ${VAR} and ${VAR:-default} substitution, exactly
// as dimajix-llm-monitor/internal/config's expandEnv does.
func expandEnv(s string) string {
	return os.Expand(s, func(key string) string {
		if idx := strings.Index(key, ":-"); idx >= 0 {
			name, def := key[:idx], key[idx+2:]
			if val, ok := os.LookupEnv(name); ok {
				return val
			}
			return def
		}
		return os.Getenv(key)
	})
}
