package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Ning0612/Tidyfs/internal/domain"
)

// DefaultConfigPaths returns the default paths to search for config files
func DefaultConfigPaths() []string {
	paths := []string{
		".",
		"./configs",
	}

	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "tidyfs"))
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "tidyfs"))
		paths = append(paths, filepath.Join(homeDir, ".tidyfs"))
	}

	return paths
}

// defaultDataDir is where history and locks live unless configured
func defaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".tidyfs")
	}
	return filepath.Join(os.TempDir(), "tidyfs")
}

func setDefaults(v *viper.Viper) {
	dataDir := defaultDataDir()

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.redact_home", false)
	v.SetDefault("log.legacy", false)
	v.SetDefault("log.file.enabled", false)
	v.SetDefault("log.file.path", filepath.Join(dataDir, "logs", "tidyfs.log"))
	v.SetDefault("log.file.max_size_mb", 10)
	v.SetDefault("log.file.max_age_days", 30)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.compress", true)

	v.SetDefault("hashrename.algorithm", "sha1")
	v.SetDefault("hashrename.salt_bytes", MinSaltBytes)
	v.SetDefault("hashrename.workers", 1)
	v.SetDefault("hashrename.retry_on_collision", false)

	v.SetDefault("appledouble.target_prefix", "AppleDoubleFiles")

	v.SetDefault("linecount.exclude_dirs", []string{"venv", ".git"})
	v.SetDefault("linecount.exclude_exts", []string{})

	v.SetDefault("state.enabled", true)
	v.SetDefault("state.dir", dataDir)

	v.SetDefault("lock.dir", filepath.Join(dataDir, "locks"))
	v.SetDefault("lock.stale_timeout", 24*time.Hour)
}

// Default returns the built-in configuration
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		panic(err) // defaults are static
	}
	return cfg
}

// Load reads a configuration file.
// If path is empty the default locations are searched for config.yaml and a
// missing file yields the defaults. An explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("TIDYFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		path = ExpandPath(path)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range DefaultConfigPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
		}
		// no config anywhere: run on defaults
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromString parses configuration from a YAML string on top of the defaults
func LoadFromString(yamlContent string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")

	if err := v.ReadConfig(strings.NewReader(yamlContent)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}
	return &cfg, nil
}
