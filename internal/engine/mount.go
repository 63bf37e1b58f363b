package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/danieljhkim/strata/internal/mounts"
)

// Mount mounts an existing layer.
//
// A leaf layer without another writable mount is mounted writable: its own
// contents take the writes and its ancestors are read-only below. Any other
// layer is mounted read-only, so a layer with children never changes
// underneath them.
func (e *Engine) Mount(ctx context.Context, req *MountRequest) (*MountResult, error) {
	mountPoint, err := absMountPoint(req.CWD, req.MountPoint)
	if err != nil {
		return nil, err
	}

	var result *MountResult
	err = e.update(ctx, func() error {
		id, snap, err := e.resolve(req.LayerRef)
		if err != nil {
			return err
		}
		if err := e.checkMountPoint(mountPoint); err != nil {
			return err
		}

		chain, err := snap.graph.Ancestors(id)
		if err != nil {
			return err
		}

		existing, err := e.tracker.Find(id)
		if err != nil {
			return err
		}
		hasWritable := slices.ContainsFunc(existing, func(r mounts.Record) bool { return !r.ReadOnly() })

		var branches []string
		writable := ""
		if len(snap.graph.Children(id)) == 0 && !hasWritable {
			branches = e.branchPaths(chain[1:])
			writable = e.registry.ContentsPath(id)
		} else {
			branches = e.branchPaths(chain)
		}

		rec, err := e.tracker.Mount(id, branches, writable, mountPoint)
		if err != nil {
			return err
		}
		result = &MountResult{Record: rec}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Unmount detaches a single tracked mount point.
func (e *Engine) Unmount(ctx context.Context, req *UnmountRequest) (*mounts.Record, error) {
	mountPoint, err := absMountPoint(req.CWD, req.MountPoint)
	if err != nil {
		return nil, err
	}

	var rec *mounts.Record
	err = e.update(ctx, func() error {
		rec, err = e.tracker.Unmount(mountPoint)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// BranchAndMount creates a child of the referenced layer and mounts it.
//
// Writable mounts of the source are frozen first: each is remounted with a
// fresh child of the source as its writable branch, so the source itself
// becomes immutable once it has children. The new child is then mounted with
// the chain root..source read-only and its own contents as the private
// writable branch.
func (e *Engine) BranchAndMount(ctx context.Context, req *BranchAndMountRequest) (*BranchAndMountResult, error) {
	mountPoint, err := absMountPoint(req.CWD, req.MountPoint)
	if err != nil {
		return nil, err
	}

	var result *BranchAndMountResult
	err = e.update(ctx, func() error {
		source, snap, err := e.resolve(req.LayerRef)
		if err != nil {
			return err
		}
		if err := e.checkMountPoint(mountPoint); err != nil {
			return err
		}

		chain, err := snap.graph.Ancestors(source)
		if err != nil {
			return err
		}
		branches := e.branchPaths(chain)

		frozen, err := e.freeze(source, branches)
		if err != nil {
			return fmt.Errorf("failed to freeze mounts of %s: %w", source, err)
		}

		child, err := e.registry.Create(source, req.Description)
		if err != nil {
			return fmt.Errorf("failed to create child layer: %w", err)
		}

		rec, err := e.tracker.Mount(child.ID, branches, e.registry.ContentsPath(child.ID), mountPoint)
		if err != nil {
			e.discard(child.ID)
			return err
		}

		e.log.WithFields(logrus.Fields{
			"layer":      child.ID,
			"parent":     source,
			"mountPoint": mountPoint,
		}).Info("branched and mounted")

		result = &BranchAndMountResult{
			Source: source,
			Child:  child,
			Record: rec,
			Frozen: frozen,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// freeze moves every writable mount of source onto a new child of source.
// branches is the chain root..source. Each step is persisted by the
// tracker as it happens, so a failure part way leaves an accurate index.
func (e *Engine) freeze(source string, branches []string) ([]FrozenMount, error) {
	existing, err := e.tracker.Find(source)
	if err != nil {
		return nil, err
	}

	frozen := []FrozenMount{}
	for _, rec := range existing {
		if rec.ReadOnly() {
			continue
		}

		child, err := e.registry.Create(source, nil)
		if err != nil {
			return frozen, fmt.Errorf("failed to create layer for %s: %w", rec.MountPoint, err)
		}

		if _, err := e.tracker.Unmount(rec.MountPoint); err != nil {
			e.discard(child.ID)
			return frozen, err
		}

		if _, err := e.tracker.Mount(child.ID, branches, e.registry.ContentsPath(child.ID), rec.MountPoint); err != nil {
			// The old writable mount is gone; put it back read-only so the
			// mount point keeps showing the same files.
			e.discard(child.ID)
			if _, rerr := e.tracker.Mount(source, branches, "", rec.MountPoint); rerr != nil {
				e.log.WithError(rerr).WithField("mountPoint", rec.MountPoint).Error("failed to restore frozen mount")
			}
			return frozen, err
		}

		e.log.WithFields(logrus.Fields{
			"mountPoint": rec.MountPoint,
			"layer":      source,
			"child":      child.ID,
		}).Info("froze writable mount")

		frozen = append(frozen, FrozenMount{
			MountPoint: rec.MountPoint,
			OldLayerID: source,
			NewLayerID: child.ID,
		})
	}
	return frozen, nil
}

// discard removes a layer created by a step that then failed.
func (e *Engine) discard(id string) {
	if err := e.registry.Delete(id); err != nil {
		e.log.WithError(err).WithField("layer", id).Error("failed to remove unused layer")
	}
}
