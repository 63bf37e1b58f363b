package engine

// LayerRef names a layer by reference expression.
type LayerRef struct {
	// Ref is the reference expression; empty means the context layer
	Ref string

	// CWD is the caller's working directory, used to find the context
	// layer and to resolve relative mount points
	CWD string
}

// CreateRequest represents a request to create a layer.
type CreateRequest struct {
	// Name registers the new layer in the home name index (optional)
	Name string

	// Parent is a reference to the parent layer; empty creates a root
	Parent string

	// CWD is the current working directory
	CWD string

	// Description is nil for no description
	Description *string
}

// MountRequest represents a request to mount an existing layer.
type MountRequest struct {
	LayerRef
	MountPoint string
}

// UnmountRequest represents a request to unmount a single mount point.
type UnmountRequest struct {
	CWD        string
	MountPoint string
}

// BranchAndMountRequest represents a request to branch a layer and mount
// the new child.
type BranchAndMountRequest struct {
	LayerRef
	MountPoint string

	// Description of the new child (optional)
	Description *string
}

// SetDescriptionRequest represents a request to set a layer description.
type SetDescriptionRequest struct {
	LayerRef
	Text string
}

// TagsRequest represents a request to change a layer's tags.
type TagsRequest struct {
	LayerRef
	Tags []string
}

// Confirmation carries the answers a user gave to the delete prompts.
type Confirmation struct {
	// Mounted confirms unmounting layers of the subtree that are mounted
	Mounted bool

	// Descendants must equal the descendant count shown to the user
	Descendants int
}

// DeleteRequest represents a request to delete a layer and its descendants.
type DeleteRequest struct {
	LayerRef
	Confirm Confirmation
}
