package engine

import (
	"context"
	"maps"
	"slices"

	"github.com/danieljhkim/strata/internal/mounts"
	"github.com/danieljhkim/strata/internal/registry"
	"github.com/danieljhkim/strata/internal/tree"
)

// Resolve evaluates a reference and returns the layer record.
func (e *Engine) Resolve(ctx context.Context, ref LayerRef) (*registry.Layer, error) {
	var layer *registry.Layer
	err := e.view(ctx, func() error {
		id, snap, err := e.resolve(ref)
		if err != nil {
			return err
		}
		layer, err = snap.graph.MustLayer(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return layer, nil
}

// Info describes a layer: its record, children, names, mounts, and tree.
func (e *Engine) Info(ctx context.Context, ref LayerRef) (*LayerInfo, error) {
	var info *LayerInfo
	err := e.view(ctx, func() error {
		id, snap, err := e.resolve(ref)
		if err != nil {
			return err
		}
		layer, err := snap.graph.MustLayer(id)
		if err != nil {
			return err
		}

		byLayer, err := e.mountsByLayer()
		if err != nil {
			return err
		}
		rendered, err := tree.Render(snap.graph, byLayer, id)
		if err != nil {
			return err
		}
		recs, err := e.tracker.Find(id)
		if err != nil {
			return err
		}

		names := []string{}
		for name, target := range snap.names {
			if target == id {
				names = append(names, name)
			}
		}
		slices.Sort(names)

		children := snap.graph.Children(id)
		if children == nil {
			children = []string{}
		}

		info = &LayerInfo{
			Layer:           layer,
			Children:        children,
			DescendantCount: snap.graph.DescendantCount(id),
			Names:           names,
			Mounts:          recs,
			Tree:            rendered,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// FindMounts returns the active mounts of a layer, sorted by mount point.
func (e *Engine) FindMounts(ctx context.Context, ref LayerRef) ([]mounts.Record, error) {
	var recs []mounts.Record
	err := e.view(ctx, func() error {
		id, _, err := e.resolve(ref)
		if err != nil {
			return err
		}
		recs, err = e.tracker.Find(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// UnmountAll unmounts every mount point of a layer. Every mount point is
// attempted; the result lists what was detached and err combines the
// failures. Calling it again on an unmounted layer does nothing.
func (e *Engine) UnmountAll(ctx context.Context, ref LayerRef) (*UnmountAllResult, error) {
	var result *UnmountAllResult
	err := e.update(ctx, func() error {
		id, _, err := e.resolve(ref)
		if err != nil {
			return err
		}
		report, err := e.tracker.UnmountAll(id)
		if report != nil {
			result = &UnmountAllResult{
				LayerID:   id,
				Unmounted: report.Unmounted,
				Failed:    make(map[string]string, len(report.Failed)),
			}
			for mp, ferr := range report.Failed {
				result.Failed[mp] = ferr.Error()
			}
		}
		return err
	})
	return result, err
}

// ListHomeLayers lists the layers registered under home names, by name.
func (e *Engine) ListHomeLayers(ctx context.Context) ([]HomeLayer, error) {
	var out []HomeLayer
	err := e.view(ctx, func() error {
		snap, err := e.load("")
		if err != nil {
			return err
		}
		byLayer, err := e.mountsByLayer()
		if err != nil {
			return err
		}

		out = make([]HomeLayer, 0, len(snap.names))
		for _, name := range slices.Sorted(maps.Keys(snap.names)) {
			id := snap.names[name]
			entry := HomeLayer{Name: name, LayerID: id}
			if l, ok := snap.graph.Layer(id); ok {
				entry.Description = l.Description
				entry.Descendants = snap.graph.DescendantCount(id)
			}
			entry.Mounted = len(byLayer[id])
			out = append(out, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
