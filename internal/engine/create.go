package engine

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/danieljhkim/strata/internal/errdefs"
	"github.com/danieljhkim/strata/internal/registry"
)

// Create creates a layer, optionally under a parent and under a home name.
func (e *Engine) Create(ctx context.Context, req *CreateRequest) (*CreateResult, error) {
	if req.Name != "" {
		if err := registry.ValidateName(req.Name); err != nil {
			return nil, err
		}
	}

	var result *CreateResult
	err := e.update(ctx, func() error {
		snap, err := e.load(req.CWD)
		if err != nil {
			return err
		}

		if req.Name != "" {
			if existing, ok := snap.names[req.Name]; ok {
				return fmt.Errorf("%w: name %q is registered to layer %s", errdefs.ErrAlreadyExists, req.Name, existing)
			}
		}

		parent := ""
		frozen := []FrozenMount{}
		if req.Parent != "" {
			parent, err = e.evalRef(req.Parent, snap)
			if err != nil {
				return fmt.Errorf("failed to resolve parent: %w", err)
			}

			// The parent stops being writable once it has a child
			chain, err := snap.graph.Ancestors(parent)
			if err != nil {
				return err
			}
			frozen, err = e.freeze(parent, e.branchPaths(chain))
			if err != nil {
				return fmt.Errorf("failed to freeze mounts of %s: %w", parent, err)
			}
		}

		layer, err := e.registry.Create(parent, req.Description)
		if err != nil {
			return fmt.Errorf("failed to create layer: %w", err)
		}

		if req.Name != "" {
			if err := e.registry.SetName(req.Name, layer.ID); err != nil {
				if derr := e.registry.Delete(layer.ID); derr != nil {
					e.log.WithError(derr).WithField("layer", layer.ID).Error("failed to roll back unnamed layer")
				}
				return fmt.Errorf("failed to register name: %w", err)
			}
		}

		e.log.WithFields(logrus.Fields{
			"layer":  layer.ID,
			"parent": parent,
			"name":   req.Name,
		}).Info("created layer")

		result = &CreateResult{Layer: layer, Name: req.Name, Frozen: frozen}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
