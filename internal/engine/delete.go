package engine

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/danieljhkim/strata/internal/errdefs"
)

// PlanDelete computes what deleting a layer would remove without changing
// anything. The CLI shows the plan, asks for confirmation, and passes the
// answers to Delete.
func (e *Engine) PlanDelete(ctx context.Context, ref LayerRef) (*DeletePlan, error) {
	var plan *DeletePlan
	err := e.view(ctx, func() error {
		id, snap, err := e.resolve(ref)
		if err != nil {
			return err
		}
		plan, err = e.plan(id, snap)
		return err
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (e *Engine) plan(id string, snap *snapshot) (*DeletePlan, error) {
	target, err := snap.graph.MustLayer(id)
	if err != nil {
		return nil, err
	}

	subtree := snap.graph.Subtree(id)
	recs, err := e.tracker.FindLayers(subtree)
	if err != nil {
		return nil, err
	}

	children := snap.graph.Children(id)
	if children == nil {
		children = []string{}
	}

	return &DeletePlan{
		Target:          target,
		DirectChildren:  children,
		DescendantCount: len(subtree) - 1,
		Mounts:          recs,
		Subtree:         subtree,
	}, nil
}

// Delete removes a layer and all of its descendants.
// Algorithm steps:
// 1. Re-plan under the exclusive lock
// 2. Check the confirmation against the plan; a descendant count that no
// longer matches means the tree changed since the user was asked
// 3. Unmount every mount in the subtree; any failure aborts before deleting
// 4. Delete descendants post-order, then the target
// 5. Drop home names pointing into the subtree
func (e *Engine) Delete(ctx context.Context, req *DeleteRequest) (*DeleteResult, error) {
	var result *DeleteResult
	err := e.update(ctx, func() error {
		// Step 1: Re-plan
		id, snap, err := e.resolve(req.LayerRef)
		if err != nil {
			return err
		}
		plan, err := e.plan(id, snap)
		if err != nil {
			return err
		}

		// Step 2: Check confirmation
		if err := checkConfirmation(plan, req.Confirm); err != nil {
			return err
		}

		log := e.log.WithFields(logrus.Fields{"layer": id, "descendants": plan.DescendantCount})

		// Step 3: Unmount the subtree
		result = &DeleteResult{Deleted: []string{}, Unmounted: []string{}}
		if plan.NeedsMountedConfirmation() {
			report, err := e.tracker.UnmountLayers(plan.Subtree)
			if report != nil {
				result.Unmounted = report.Unmounted
			}
			if err != nil {
				log.WithError(err).Warn("delete aborted: unmount failed")
				return fmt.Errorf("failed to unmount layer before delete, nothing was deleted: %w", err)
			}
		}

		// Step 4: Delete post-order
		for _, victim := range plan.Subtree {
			if err := e.registry.Delete(victim); err != nil {
				return fmt.Errorf("failed to delete layer %s after deleting %d layer(s): %w", victim, len(result.Deleted), err)
			}
			result.Deleted = append(result.Deleted, victim)
		}

		// Step 5: Drop names
		if err := e.registry.RemoveNamesFor(plan.Subtree...); err != nil {
			return fmt.Errorf("failed to remove names of deleted layers: %w", err)
		}

		log.Info("deleted layer")
		return nil
	})
	if err != nil {
		return result, err
	}
	return result, nil
}

func checkConfirmation(plan *DeletePlan, c Confirmation) error {
	if plan.NeedsMountedConfirmation() && !c.Mounted {
		return fmt.Errorf("%w: layer %s is mounted (%d mount point(s)) and must be unmounted first",
			errdefs.ErrConfirmationDeclined, plan.Target.ShortID(), len(plan.Mounts))
	}
	if plan.NeedsDescendantConfirmation() && c.Descendants != plan.DescendantCount {
		if c.Descendants > 0 {
			return fmt.Errorf("%w: confirmed %d descendant(s) but layer %s now has %d",
				errdefs.ErrConfirmationDeclined, c.Descendants, plan.Target.ShortID(), plan.DescendantCount)
		}
		return fmt.Errorf("%w: layer %s has %d descendant(s)",
			errdefs.ErrConfirmationDeclined, plan.Target.ShortID(), plan.DescendantCount)
	}
	return nil
}
