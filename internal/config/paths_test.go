package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
)

func init() {
	// Tests change $HOME between cases
	homedir.DisableCache = true
}

func TestPathsFor(t *testing.T) {
	paths := PathsFor("/srv/strata")

	if paths.Layers != filepath.Join("/srv/strata", "layers") {
		t.Errorf("Layers path incorrect: got %s", paths.Layers)
	}
	if paths.Names != filepath.Join("/srv/strata", "names.json") {
		t.Errorf("Names path incorrect: got %s", paths.Names)
	}
	if paths.Mounts != filepath.Join("/srv/strata", "mounts.json") {
		t.Errorf("Mounts path incorrect: got %s", paths.Mounts)
	}
	if paths.Lock != filepath.Join("/srv/strata", ".lock") {
		t.Errorf("Lock path incorrect: got %s", paths.Lock)
	}
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		tmp := t.TempDir()
		t.Setenv("HOME", tmp)
		t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "xdg"))
		t.Setenv("STRATA_HOME", "")

		cfg, err := Load(NewViper())
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		if cfg.Paths.Root != filepath.Join(tmp, ".strata") {
			t.Errorf("Root = %s, want %s", cfg.Paths.Root, filepath.Join(tmp, ".strata"))
		}
		if cfg.Verbosity != DefaultVerbosity {
			t.Errorf("Verbosity = %s, want %s", cfg.Verbosity, DefaultVerbosity)
		}
		if cfg.LockTimeout != DefaultLockTimeout {
			t.Errorf("LockTimeout = %v, want %v", cfg.LockTimeout, DefaultLockTimeout)
		}
		if cfg.MountBackend != DefaultMountBackend {
			t.Errorf("MountBackend = %s, want %s", cfg.MountBackend, DefaultMountBackend)
		}
		if cfg.ConfigFile != "" {
			t.Errorf("ConfigFile = %s, want empty", cfg.ConfigFile)
		}
	})

	t.Run("environment overrides", func(t *testing.T) {
		tmp := t.TempDir()
		t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "xdg"))
		t.Setenv("STRATA_HOME", filepath.Join(tmp, "custom"))
		t.Setenv("STRATA_LOCK_TIMEOUT", "250ms")
		t.Setenv("STRATA_MOUNT_BACKEND", "fuse-overlayfs")

		cfg, err := Load(NewViper())
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Paths.Root != filepath.Join(tmp, "custom") {
			t.Errorf("Root = %s", cfg.Paths.Root)
		}
		if cfg.LockTimeout != 250*time.Millisecond {
			t.Errorf("LockTimeout = %v", cfg.LockTimeout)
		}
		if cfg.MountBackend != "fuse-overlayfs" {
			t.Errorf("MountBackend = %s", cfg.MountBackend)
		}
	})

	t.Run("config file", func(t *testing.T) {
		tmp := t.TempDir()
		t.Setenv("STRATA_HOME", "")
		cfgDir := filepath.Join(tmp, "xdg", "strata")
		if err := os.MkdirAll(cfgDir, 0755); err != nil {
			t.Fatal(err)
		}
		content := "home: " + filepath.Join(tmp, "fromfile") + "\nverbosity: debug\n"
		if err := os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "xdg"))

		cfg, err := Load(NewViper())
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Paths.Root != filepath.Join(tmp, "fromfile") {
			t.Errorf("Root = %s", cfg.Paths.Root)
		}
		if cfg.Verbosity != "debug" {
			t.Errorf("Verbosity = %s", cfg.Verbosity)
		}
		if cfg.ConfigFile == "" {
			t.Error("ConfigFile should be set")
		}
	})

	t.Run("explicit missing config file fails", func(t *testing.T) {
		v := NewViper()
		v.Set(KeyConfigFile, filepath.Join(t.TempDir(), "missing.yaml"))
		if _, err := Load(v); err == nil {
			t.Error("expected error for missing explicit config file")
		}
	})

	t.Run("tilde home expands", func(t *testing.T) {
		tmp := t.TempDir()
		t.Setenv("HOME", tmp)
		t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "xdg"))
		v := NewViper()
		v.Set(KeyHome, "~/layers-home")

		cfg, err := Load(v)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Paths.Root != filepath.Join(tmp, "layers-home") {
			t.Errorf("Root = %s", cfg.Paths.Root)
		}
	})
}

func TestEnsureDirectories(t *testing.T) {
	paths := PathsFor(filepath.Join(t.TempDir(), "home"))
	if err := paths.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{paths.Root, paths.Layers} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("%s should be a directory", dir)
		}
	}
	if err := paths.EnsureDirectories(); err != nil {
		t.Errorf("second EnsureDirectories failed: %v", err)
	}
}
