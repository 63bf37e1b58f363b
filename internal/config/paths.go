// Package config manages strata configuration and filesystem paths.
//
// Settings are resolved by viper from, in order of precedence, command-line
// flags, STRATA_* environment variables, the config file
// ($XDG_CONFIG_HOME/strata/config.yaml by default), and built-in defaults.
// The home directory (default ~/.strata) holds the layer registry, the name
// index, the mount index, and the lock file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Configuration keys understood by Load.
const (
	KeyConfigFile   = "config"
	KeyHome         = "home"
	KeyVerbosity    = "verbosity"
	KeyLockTimeout  = "lock_timeout"
	KeyMountBackend = "mount_backend"
)

// Defaults for the non-path settings.
const (
	DefaultVerbosity    = "warning"
	DefaultLockTimeout  = 5 * time.Second
	DefaultMountBackend = "overlay"
)

// Paths contains all the filesystem paths used by strata.
type Paths struct {
	// Root is the home directory (default: ~/.strata)
	Root string

	// Layers is the directory containing one subdirectory per layer
	Layers string

	// Names is the home-name index file
	Names string

	// Mounts is the active mount index file
	Mounts string

	// Lock is the file locked for every read-modify-write sequence
	Lock string
}

// PathsFor lays out the strata paths under root.
func PathsFor(root string) Paths {
	return Paths{
		Root:   root,
		Layers: filepath.Join(root, "layers"),
		Names:  filepath.Join(root, "names.json"),
		Mounts: filepath.Join(root, "mounts.json"),
		Lock:   filepath.Join(root, ".lock"),
	}
}

// DefaultRoot returns ~/.strata.
func DefaultRoot() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".strata"), nil
}

// EnsureDirectories creates all necessary directories if they don't exist.
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.Root, p.Layers} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Config is the resolved runtime configuration.
type Config struct {
	Paths        Paths
	Verbosity    string
	LockTimeout  time.Duration
	MountBackend string
	// ConfigFile is the file settings were read from, empty if none.
	ConfigFile string
}

// NewViper returns a viper instance with strata's defaults and environment
// binding. Flags are bound by the caller.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("STRATA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyVerbosity, DefaultVerbosity)
	v.SetDefault(KeyLockTimeout, DefaultLockTimeout)
	v.SetDefault(KeyMountBackend, DefaultMountBackend)
	return v
}

// Load reads the config file (if any) and resolves the final configuration.
func Load(v *viper.Viper) (*Config, error) {
	if cfg := v.GetString(KeyConfigFile); cfg != "" {
		v.SetConfigFile(cfg)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", cfg, err)
		}
	} else {
		v.AddConfigPath(configDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	root := v.GetString(KeyHome)
	if root == "" {
		var err error
		root, err = DefaultRoot()
		if err != nil {
			return nil, err
		}
	}
	root, err := expandHome(root)
	if err != nil {
		return nil, err
	}

	timeout := v.GetDuration(KeyLockTimeout)
	if timeout <= 0 {
		return nil, fmt.Errorf("invalid %s %q: must be a positive duration", KeyLockTimeout, v.GetString(KeyLockTimeout))
	}

	return &Config{
		Paths:        PathsFor(root),
		Verbosity:    v.GetString(KeyVerbosity),
		LockTimeout:  timeout,
		MountBackend: v.GetString(KeyMountBackend),
		ConfigFile:   v.ConfigFileUsed(),
	}, nil
}

// expandHome resolves a leading ~ and makes the path absolute.
func expandHome(path string) (string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("failed to expand home directory %s: %w", path, err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory %s: %w", path, err)
	}
	return abs, nil
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "strata")
	}
	if home, err := homedir.Dir(); err == nil {
		return filepath.Join(home, ".config", "strata")
	}
	return ".strata"
}
