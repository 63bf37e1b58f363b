// Package engine provides the core business logic for strata operations.
//
// The engine package acts as the orchestration layer between CLI commands and
// the lower-level stores. It resolves layer references, decides how a layer is
// mounted, and enforces the delete protocol.
//
// Key components:
//   - Engine: Main orchestrator that coordinates all operations
//   - Create/Mount/BranchAndMount: Layer creation and union mounts
//   - PlanDelete/Delete: Confirmed, post-order subtree deletion
//   - Metadata: Descriptions, tags, and read-only queries
//
// Every operation runs under the home lock: mutations take it exclusively and
// queries take it shared. The lock spans resolving the reference, deciding,
// calling the mount backend, and persisting, so concurrent invocations never
// act on a stale view of the graph or the mount index.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/danieljhkim/strata/internal/clock"
	"github.com/danieljhkim/strata/internal/config"
	"github.com/danieljhkim/strata/internal/errdefs"
	"github.com/danieljhkim/strata/internal/fsops"
	"github.com/danieljhkim/strata/internal/lock"
	"github.com/danieljhkim/strata/internal/mounts"
	"github.com/danieljhkim/strata/internal/refspec"
	"github.com/danieljhkim/strata/internal/registry"
)

// Engine orchestrates all strata operations.
// It is the main API surface called by the CLI.
type Engine struct {
	registry    registry.Registry
	tracker     *mounts.Tracker
	locker      lock.Locker
	fs          fsops.FS
	clock       clock.Clock
	log         logrus.FieldLogger
	configPaths config.Paths
}

// New creates a new Engine with the given dependencies.
func New(
	reg registry.Registry,
	tracker *mounts.Tracker,
	locker lock.Locker,
	fs fsops.FS,
	clk clock.Clock,
	log logrus.FieldLogger,
	paths config.Paths,
) *Engine {
	return &Engine{
		registry:    reg,
		tracker:     tracker,
		locker:      locker,
		fs:          fs,
		clock:       clk,
		log:         log,
		configPaths: paths,
	}
}

// update runs fn under the exclusive home lock.
func (e *Engine) update(ctx context.Context, fn func() error) error {
	return e.withLock(ctx, lock.Exclusive, fn)
}

// view runs fn under the shared home lock.
func (e *Engine) view(ctx context.Context, fn func() error) error {
	return e.withLock(ctx, lock.Shared, fn)
}

func (e *Engine) withLock(ctx context.Context, mode lock.Mode, fn func() error) error {
	held, err := e.locker.Acquire(ctx, mode)
	if err != nil {
		return err
	}
	defer func() {
		if err := held.Release(); err != nil {
			e.log.WithError(err).Warn("failed to release home lock")
		}
	}()

	return fn()
}

// snapshot is the state one operation works against: the graph and the
// names as loaded under the lock, plus the caller's context layer.
type snapshot struct {
	graph *registry.Graph
	names map[string]string
	scope refspec.Scope
}

// load reads the registry and maps cwd to its context layer.
func (e *Engine) load(cwd string) (*snapshot, error) {
	g, err := e.registry.Graph()
	if err != nil {
		return nil, fmt.Errorf("failed to load layer graph: %w", err)
	}
	names, err := e.registry.Names()
	if err != nil {
		return nil, fmt.Errorf("failed to load name index: %w", err)
	}

	contextLayer := ""
	if cwd != "" {
		rec, err := e.tracker.Enclosing(cwd)
		if err != nil {
			return nil, fmt.Errorf("failed to look up context layer: %w", err)
		}
		if rec != nil {
			contextLayer = rec.LayerID
		}
	}

	return &snapshot{
		graph: g,
		names: names,
		scope: refspec.Scope{Graph: g, Names: names, Context: contextLayer},
	}, nil
}

// resolve loads a snapshot and evaluates ref against it.
func (e *Engine) resolve(ref LayerRef) (string, *snapshot, error) {
	snap, err := e.load(ref.CWD)
	if err != nil {
		return "", nil, err
	}
	id, err := e.evalRef(ref.Ref, snap)
	if err != nil {
		return "", nil, err
	}
	return id, snap, nil
}

func (e *Engine) evalRef(ref string, snap *snapshot) (string, error) {
	id, err := refspec.Resolve(ref, snap.scope)
	if err != nil {
		return "", err
	}
	e.log.WithFields(logrus.Fields{"ref": ref, "layer": id}).Debug("resolved reference")
	return id, nil
}

// absMountPoint resolves a mount point against cwd.
func absMountPoint(cwd, mountPoint string) (string, error) {
	if mountPoint == "" {
		return "", fmt.Errorf("%w: mount point is required", errdefs.ErrInvalidArgument)
	}
	if !filepath.IsAbs(mountPoint) {
		if cwd == "" {
			return "", fmt.Errorf("%w: relative mount point %q without a working directory", errdefs.ErrInvalidArgument, mountPoint)
		}
		mountPoint = filepath.Join(cwd, mountPoint)
	}
	return filepath.Clean(mountPoint), nil
}

// checkMountPoint makes sure mountPoint is an existing, empty directory with
// no tracked mount on it.
func (e *Engine) checkMountPoint(mountPoint string) error {
	isDir, err := e.fs.IsDir(mountPoint)
	if err != nil {
		return fmt.Errorf("failed to stat mount point: %w", err)
	}
	if !isDir {
		return fmt.Errorf("%w: mount point %s is not a directory", errdefs.ErrInvalidArgument, mountPoint)
	}

	rec, err := e.tracker.Lookup(mountPoint)
	if err == nil {
		return fmt.Errorf("%w: %s (layer %s)", errdefs.ErrAlreadyMounted, mountPoint, rec.LayerID)
	}
	if errdefs.Kind(err) != errdefs.ErrNotMounted {
		return err
	}

	empty, err := e.fs.IsEmptyDir(mountPoint)
	if err != nil {
		return fmt.Errorf("failed to read mount point: %w", err)
	}
	if !empty {
		return fmt.Errorf("%w: mount point %s is not empty", errdefs.ErrInvalidArgument, mountPoint)
	}
	return nil
}

// branchPaths maps ids (leaf first, as returned by Graph.Ancestors) to their
// contents directories, root first.
func (e *Engine) branchPaths(chain []string) []string {
	paths := make([]string, 0, len(chain))
	for _, id := range slices.Backward(chain) {
		paths = append(paths, e.registry.ContentsPath(id))
	}
	return paths
}

// mountsByLayer groups every active mount point by layer.
func (e *Engine) mountsByLayer() (map[string][]string, error) {
	records, err := e.tracker.List()
	if err != nil {
		return nil, err
	}
	out := map[string][]string{}
	for _, r := range records {
		out[r.LayerID] = append(out[r.LayerID], r.MountPoint)
	}
	return out, nil
}
