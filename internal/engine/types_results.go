package engine

import (
	"github.com/danieljhkim/strata/internal/mounts"
	"github.com/danieljhkim/strata/internal/registry"
)

// CreateResult represents the result of creating a layer.
type CreateResult struct {
	Layer *registry.Layer `json:"layer"`

	// Name is the registered home name, empty if none
	Name string `json:"name,omitempty"`

	// Frozen lists the writable mounts of the parent that were moved
	Frozen []FrozenMount `json:"frozen"`
}

// LayerInfo describes a layer and its neighbourhood.
type LayerInfo struct {
	Layer *registry.Layer `json:"layer"`

	// Children are the direct children in creation order
	Children []string `json:"children"`

	DescendantCount int `json:"descendantCount"`

	// Names are the home names registered for this layer
	Names []string `json:"names"`

	Mounts []mounts.Record `json:"mounts"`

	// Tree is the rendered tree with this layer highlighted
	Tree string `json:"tree"`
}

// MountResult represents the result of a mount.
type MountResult struct {
	Record *mounts.Record `json:"record"`
}

// FrozenMount is a writable mount that was moved onto a new child so the
// branched layer could become read-only.
type FrozenMount struct {
	MountPoint string `json:"mountPoint"`
	OldLayerID string `json:"oldLayerId"`
	NewLayerID string `json:"newLayerId"`
}

// BranchAndMountResult represents the result of branching a layer.
type BranchAndMountResult struct {
	// Source is the layer that was branched
	Source string `json:"source"`

	// Child is the new layer
	Child *registry.Layer `json:"child"`

	Record *mounts.Record `json:"record"`

	// Frozen lists the writable mounts of Source that were moved
	Frozen []FrozenMount `json:"frozen"`
}

// DeletePlan describes what deleting a layer would remove.
type DeletePlan struct {
	Target *registry.Layer `json:"target"`

	// DirectChildren are the target's children in creation order
	DirectChildren []string `json:"directChildren"`

	DescendantCount int `json:"descendantCount"`

	// Mounts are the active mounts of any layer in the subtree
	Mounts []mounts.Record `json:"mounts"`

	// Subtree is the deletion order: descendants post-order, then the target
	Subtree []string `json:"subtree"`
}

// NeedsMountedConfirmation reports whether part of the subtree is mounted.
func (p *DeletePlan) NeedsMountedConfirmation() bool {
	return len(p.Mounts) > 0
}

// NeedsDescendantConfirmation reports whether the target has descendants.
func (p *DeletePlan) NeedsDescendantConfirmation() bool {
	return p.DescendantCount > 0
}

// DeleteResult represents the result of a delete.
type DeleteResult struct {
	// Deleted lists removed layers in deletion order
	Deleted []string `json:"deleted"`

	// Unmounted lists mount points detached before deleting
	Unmounted []string `json:"unmounted"`
}

// UnmountAllResult represents the result of unmounting every use of a layer.
type UnmountAllResult struct {
	LayerID   string   `json:"layerId"`
	Unmounted []string `json:"unmounted"`

	// Failed maps mount points that stayed mounted to the reason
	Failed map[string]string `json:"failed"`
}

// HomeLayer is one entry of the home name index.
type HomeLayer struct {
	Name        string  `json:"name"`
	LayerID     string  `json:"layerId"`
	Description *string `json:"description"`
	Mounted     int     `json:"mounted"`
	Descendants int     `json:"descendants"`
}
