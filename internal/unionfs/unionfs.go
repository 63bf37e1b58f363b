// Package unionfs presents a stack of directories as one merged directory.
//
// Branch lists are always passed root-to-leaf: branches[0] is the bottom of
// the stack. The writable branch, when set, sits on top of all of them and
// receives every write; read-only views pass an empty writable branch.
// Backends translate the order into whatever their mount options expect.
package unionfs

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/danieljhkim/strata/internal/errdefs"
)

// Mounter is the union-mount boundary.
type Mounter interface {
	// Mount stacks branches (root-to-leaf) with an optional writable branch
	// on top and attaches the result at target.
	Mount(branches []string, writable, target string) error

	// Unmount detaches whatever is mounted at target.
	Unmount(target string) error
}

// Backend names accepted by New.
const (
	BackendOverlay     = "overlay"
	BackendFuseOverlay = "fuse-overlayfs"
)

// Backends lists the names accepted by New.
var Backends = []string{BackendOverlay, BackendFuseOverlay}

// New returns the backend registered under name.
func New(name string, log logrus.FieldLogger) (Mounter, error) {
	switch name {
	case BackendOverlay:
		return NewOverlay(log), nil
	case BackendFuseOverlay:
		return NewFuseOverlay(log), nil
	}
	return nil, fmt.Errorf("%w: unknown mount backend %q (want one of %s)",
		errdefs.ErrInvalidArgument, name, strings.Join(Backends, ", "))
}

// WorkDir returns the overlay work directory paired with a writable branch:
// the sibling "work" directory inside the same layer.
func WorkDir(writable string) string {
	return filepath.Join(filepath.Dir(writable), "work")
}

// lowerDirs renders branches in overlay order, topmost first.
func lowerDirs(branches []string) string {
	top := slices.Clone(branches)
	slices.Reverse(top)
	return strings.Join(top, ":")
}

// checkPaths rejects paths that cannot be expressed in overlay mount
// options, which use ',' and ':' as separators.
func checkPaths(branches []string, writable, target string) error {
	if len(branches) == 0 && writable == "" {
		return fmt.Errorf("%w: nothing to mount at %s", errdefs.ErrInvalidArgument, target)
	}
	for _, p := range append(slices.Clone(branches), writable) {
		if strings.ContainsAny(p, ",:") {
			return fmt.Errorf("%w: branch path %q contains ',' or ':'", errdefs.ErrInvalidArgument, p)
		}
	}
	return nil
}

// overlayOptions builds the option string for an overlay mount of at least
// one lower branch.
func overlayOptions(branches []string, writable string) string {
	opts := "lowerdir=" + lowerDirs(branches)
	if writable != "" {
		opts += ",upperdir=" + writable + ",workdir=" + WorkDir(writable)
	}
	return opts
}
