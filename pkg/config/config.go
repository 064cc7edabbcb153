// Package config resolves the cache root and loads the global user
// configuration. The cache root defaults to a platform directory and is
// overridable with AGPM_CACHE_DIR.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// CacheDirEnv overrides the default cache root.
	CacheDirEnv = "AGPM_CACHE_DIR"

	// configFileName is the global config under the XDG config home.
	configFileName = "agpm.yaml"
)

// Config is the global user configuration.
type Config struct {
	// Cache holds cache-related settings.
	Cache CacheConfig `yaml:"cache"`

	// Install holds installation defaults.
	Install InstallConfig `yaml:"install"`
}

// CacheConfig holds cache-related settings.
type CacheConfig struct {
	// Dir overrides the cache root; the AGPM_CACHE_DIR environment
	// variable takes precedence over this.
	Dir string `yaml:"dir,omitempty"`
}

// InstallConfig holds installation defaults.
type InstallConfig struct {
	// MaxConcurrency bounds parallel resource installs; 0 means the
	// engine default (2x CPU count).
	MaxConcurrency int `yaml:"max_concurrency,omitempty"`
}

// CacheDir resolves the cache root: AGPM_CACHE_DIR, then the global
// config, then the platform default.
func CacheDir(cfg *Config) (string, error) {
	if env := os.Getenv(CacheDirEnv); env != "" {
		return filepath.Abs(env)
	}
	if cfg != nil && cfg.Cache.Dir != "" {
		return filepath.Abs(cfg.Cache.Dir)
	}
	return DefaultCacheDir()
}

// DefaultCacheDir returns the platform default cache root:
// ~/.agpm/cache on Unix-like systems, %LOCALAPPDATA%\agpm\cache on
// Windows.
func DefaultCacheDir() (string, error) {
	if runtime.GOOS == "windows" {
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "agpm", "cache"), nil
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".agpm", "cache"), nil
}

// ConfigPath returns the global config location under the XDG config home.
func ConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "agpm", configFileName)
}

// LoadGlobal loads the global configuration. A --config flag registered
// with viper takes precedence over the default path. A missing file yields
// defaults.
func LoadGlobal() (*Config, error) {
	configPath := viper.ConfigFileUsed()
	if configPath == "" {
		configPath = ConfigPath()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
	}
	return &cfg, nil
}

// MaxConcurrency returns the configured install concurrency or the engine
// default of twice the CPU count.
func (c *Config) MaxConcurrency() int {
	if c != nil && c.Install.MaxConcurrency > 0 {
		return c.Install.MaxConcurrency
	}
	return 2 * runtime.NumCPU()
}
