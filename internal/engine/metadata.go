package engine

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/danieljhkim/strata/internal/registry"
)

// Description returns a layer's description; nil means none is set.
func (e *Engine) Description(ctx context.Context, ref LayerRef) (*string, error) {
	layer, err := e.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return layer.Description, nil
}

// SetDescription sets a layer's description. The empty string is a valid
// description, distinct from none.
func (e *Engine) SetDescription(ctx context.Context, req *SetDescriptionRequest) (*registry.Layer, error) {
	return e.mutate(ctx, req.LayerRef, "set description", func(id string) error {
		return e.registry.SetDescription(id, req.Text)
	})
}

// ClearDescription removes a layer's description.
func (e *Engine) ClearDescription(ctx context.Context, ref LayerRef) (*registry.Layer, error) {
	return e.mutate(ctx, ref, "cleared description", func(id string) error {
		return e.registry.ClearDescription(id)
	})
}

// Tags returns a layer's tags, sorted.
func (e *Engine) Tags(ctx context.Context, ref LayerRef) ([]string, error) {
	layer, err := e.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return layer.Tags, nil
}

// SetTags replaces a layer's tag set.
func (e *Engine) SetTags(ctx context.Context, req *TagsRequest) (*registry.Layer, error) {
	return e.mutate(ctx, req.LayerRef, "set tags", func(id string) error {
		return e.registry.SetTags(id, req.Tags...)
	})
}

// AddTags adds tags to a layer. Tags already present are ignored.
func (e *Engine) AddTags(ctx context.Context, req *TagsRequest) (*registry.Layer, error) {
	return e.mutate(ctx, req.LayerRef, "added tags", func(id string) error {
		return e.registry.AddTags(id, req.Tags...)
	})
}

// RemoveTags removes tags from a layer. Tags not present are ignored.
func (e *Engine) RemoveTags(ctx context.Context, req *TagsRequest) (*registry.Layer, error) {
	return e.mutate(ctx, req.LayerRef, "removed tags", func(id string) error {
		return e.registry.RemoveTags(id, req.Tags...)
	})
}

// mutate resolves ref, applies fn, and returns the updated record, all
// under the exclusive lock.
func (e *Engine) mutate(ctx context.Context, ref LayerRef, what string, fn func(id string) error) (*registry.Layer, error) {
	var layer *registry.Layer
	err := e.update(ctx, func() error {
		id, _, err := e.resolve(ref)
		if err != nil {
			return err
		}
		if err := fn(id); err != nil {
			return err
		}
		layer, err = e.registry.Get(id)
		if err != nil {
			return err
		}
		e.log.WithFields(logrus.Fields{"layer": id, "tags": layer.Tags}).Info(what)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return layer, nil
}
