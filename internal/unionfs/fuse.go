package unionfs

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// FuseOverlay mounts through the fuse-overlayfs helper, which works without
// root on kernels that allow unprivileged FUSE mounts.
type FuseOverlay struct {
	log logrus.FieldLogger
	run func(name string, args ...string) ([]byte, error)
}

// NewFuseOverlay creates the fuse-overlayfs backend.
func NewFuseOverlay(log logrus.FieldLogger) *FuseOverlay {
	return &FuseOverlay{log: log, run: runCommand}
}

func runCommand(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

// Mount implements Mounter.
func (f *FuseOverlay) Mount(branches []string, writable, target string) error {
	if err := checkPaths(branches, writable, target); err != nil {
		return err
	}

	if writable != "" {
		if err := os.MkdirAll(fuseWorkDir(writable), 0755); err != nil {
			return fmt.Errorf("failed to create work directory: %w", err)
		}
	}

	var opts string
	if len(branches) == 0 {
		// fuse-overlayfs always needs a lower directory; an empty one inside
		// the layer's work directory stands in for "nothing below".
		empty := filepath.Join(WorkDir(writable), "lower")
		if err := os.MkdirAll(empty, 0755); err != nil {
			return fmt.Errorf("failed to create empty lower directory: %w", err)
		}
		opts = fuseOptions([]string{empty}, writable)
	} else {
		opts = fuseOptions(branches, writable)
	}

	f.log.WithField("target", target).Debugf("fuse-overlayfs -o %s", opts)
	return f.exec("fuse-overlayfs", "-o", opts, target)
}

// Unmount implements Mounter.
func (f *FuseOverlay) Unmount(target string) error {
	f.log.WithField("target", target).Debug("fusermount -u")
	return f.exec("fusermount", "-u", target)
}

func (f *FuseOverlay) exec(name string, args ...string) error {
	out, err := f.run(name, args...)
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// fuseOptions differs from the kernel options only in where the work
// directory goes: fuse-overlayfs keeps its own state under work/fuse.
func fuseOptions(branches []string, writable string) string {
	opts := "lowerdir=" + lowerDirs(branches)
	if writable != "" {
		opts += ",upperdir=" + writable + ",workdir=" + fuseWorkDir(writable)
	}
	return opts
}

func fuseWorkDir(writable string) string {
	return filepath.Join(WorkDir(writable), "fuse")
}
