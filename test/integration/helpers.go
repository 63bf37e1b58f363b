// Package integration exercises strata against the host's overlay mounts.
//
// The tests need root and a kernel with overlayfs; they are skipped unless
// STRATA_INTEGRATION=1 is set.
package integration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danieljhkim/strata/internal/clock"
	"github.com/danieljhkim/strata/internal/config"
	"github.com/danieljhkim/strata/internal/engine"
	"github.com/danieljhkim/strata/internal/fsops"
	"github.com/danieljhkim/strata/internal/lock"
	"github.com/danieljhkim/strata/internal/logging"
	"github.com/danieljhkim/strata/internal/mounts"
	"github.com/danieljhkim/strata/internal/registry"
	"github.com/danieljhkim/strata/internal/unionfs"
)

type testEnv struct {
	eng   *engine.Engine
	paths config.Paths
	dir   string
}

// setupTestEngine builds an engine over a temporary home with the kernel
// overlay backend.
func setupTestEngine(t *testing.T) *testEnv {
	t.Helper()

	if os.Getenv("STRATA_INTEGRATION") != "1" {
		t.Skip("set STRATA_INTEGRATION=1 to run mount integration tests")
	}
	if os.Geteuid() != 0 {
		t.Skip("mount integration tests need root")
	}

	dir := t.TempDir()
	paths := config.PathsFor(filepath.Join(dir, "home"))
	if err := paths.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	log := logging.Discard()
	backend, err := unionfs.New(unionfs.BackendOverlay, log)
	if err != nil {
		t.Fatalf("unionfs.New failed: %v", err)
	}

	fs := fsops.NewOsFS()
	clk := &clock.RealClock{}
	reg := registry.NewFileRegistry(fs, clk, paths.Layers, paths.Names)
	tracker := mounts.NewTracker(fs, paths.Mounts, backend, clk, log)
	locker := lock.NewFileLock(paths.Lock, 5*time.Second)

	env := &testEnv{
		eng:   engine.New(reg, tracker, locker, fs, clk, log, paths),
		paths: paths,
		dir:   dir,
	}
	t.Cleanup(func() {
		// Leave no mounts behind, even on failure
		records, err := tracker.List()
		if err != nil {
			return
		}
		for _, rec := range records {
			_, _ = tracker.Unmount(rec.MountPoint)
		}
	})
	return env
}

func (env *testEnv) mountDir(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(env.dir, "mnt", name)
	if err := os.MkdirAll(p, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	return p
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile(%s) failed: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s) failed: %v", path, err)
	}
	return string(data)
}
