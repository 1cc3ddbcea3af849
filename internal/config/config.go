package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Ning0612/Tidyfs/internal/core/checksum"
	"github.com/Ning0612/Tidyfs/internal/domain"
)

// MinSaltBytes is the smallest accepted salt length
const MinSaltBytes = 16

// Config represents the complete configuration shared by the tools
type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	HashRename  HashRenameConfig  `mapstructure:"hashrename"`
	AppleDouble AppleDoubleConfig `mapstructure:"appledouble"`
	LineCount   LineCountConfig   `mapstructure:"linecount"`
	State       StateConfig       `mapstructure:"state"`
	Lock        LockConfig        `mapstructure:"lock"`
}

// LogConfig configures internal/logger
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	RedactHome bool   `mapstructure:"redact_home"`
	Legacy     bool   `mapstructure:"legacy"`

	File LogFileConfig `mapstructure:"file"`
}

// LogFileConfig configures the rotating log file
type LogFileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// HashRenameConfig configures the content-hash renamer
type HashRenameConfig struct {
	Algorithm        string `mapstructure:"algorithm"`
	SaltBytes        int    `mapstructure:"salt_bytes"`
	Workers          int    `mapstructure:"workers"`
	RetryOnCollision bool   `mapstructure:"retry_on_collision"`
}

// AppleDoubleConfig configures adcollect
type AppleDoubleConfig struct {
	TargetPrefix string `mapstructure:"target_prefix"`
}

// LineCountConfig configures linecount
type LineCountConfig struct {
	ExcludeDirs []string `mapstructure:"exclude_dirs"`
	ExcludeExts []string `mapstructure:"exclude_exts"`
}

// StateConfig configures run history
type StateConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// LockConfig configures the per-root batch lock
type LockConfig struct {
	Dir          string        `mapstructure:"dir"`
	StaleTimeout time.Duration `mapstructure:"stale_timeout"`
}

// Validate checks the configuration for values the tools cannot run with
func (c *Config) Validate() error {
	if _, err := checksum.ParseAlgorithm(c.HashRename.Algorithm); err != nil {
		return fmt.Errorf("%w: hashrename.algorithm: %w", domain.ErrConfigInvalid, err)
	}
	if c.HashRename.SaltBytes < MinSaltBytes {
		return fmt.Errorf("%w: hashrename.salt_bytes must be at least %d, got %d",
			domain.ErrConfigInvalid, MinSaltBytes, c.HashRename.SaltBytes)
	}
	if c.HashRename.Workers < 1 {
		return fmt.Errorf("%w: hashrename.workers must be at least 1, got %d",
			domain.ErrConfigInvalid, c.HashRename.Workers)
	}
	if c.AppleDouble.TargetPrefix == "" {
		return fmt.Errorf("%w: appledouble.target_prefix cannot be empty", domain.ErrConfigInvalid)
	}
	if filepath.Base(c.AppleDouble.TargetPrefix) != c.AppleDouble.TargetPrefix {
		return fmt.Errorf("%w: appledouble.target_prefix must be a plain name: %s",
			domain.ErrConfigInvalid, c.AppleDouble.TargetPrefix)
	}
	if c.Lock.StaleTimeout < 0 {
		return fmt.Errorf("%w: lock.stale_timeout cannot be negative", domain.ErrConfigInvalid)
	}
	if c.Log.File.Enabled && c.Log.File.Path == "" {
		return fmt.Errorf("%w: log.file.path is required when file logging is enabled", domain.ErrConfigInvalid)
	}
	return nil
}

// Algorithm returns the parsed hash algorithm; call after Validate
func (c *Config) Algorithm() checksum.Algorithm {
	algo, _ := checksum.ParseAlgorithm(c.HashRename.Algorithm)
	return algo
}

// StateDir returns the expanded state directory
func (c *Config) StateDir() string {
	return ExpandPath(c.State.Dir)
}

// LockDir returns the expanded lock directory
func (c *Config) LockDir() string {
	return ExpandPath(c.Lock.Dir)
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			if len(path) > 1 && (path[1] == '/' || path[1] == filepath.Separator) {
				path = filepath.Join(home, path[2:])
			} else if len(path) == 1 {
				path = home
			}
		}
	}
	path = os.ExpandEnv(path)
	return filepath.Clean(path)
}
