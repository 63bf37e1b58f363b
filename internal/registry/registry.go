// Package registry persists the layer graph of a strata home.
//
// Each layer is a directory under <home>/layers/<id>/ holding its record
// (layer.json), its file contents (contents/), and an overlay work directory
// (work/). A layer exists iff its layer.json exists: creation writes the
// record last and deletion removes it first, so a crash never leaves a
// half-registered layer. The parent link is the only stored edge; children
// and descendant counts are derived by Graph.
//
// Key components:
//   - Registry: Interface for layer lifecycle (create, load, mutate, delete)
//   - Layer: The persisted layer record
//   - Graph: Per-call snapshot with the derived child relation
//   - NameIndex: Home names mapped to layer IDs (names.json)
//
// The registry performs no locking of its own; callers hold the home lock.
package registry

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/danieljhkim/strata/internal/clock"
	"github.com/danieljhkim/strata/internal/errdefs"
	"github.com/danieljhkim/strata/internal/fsops"
)

const (
	recordName  = "layer.json"
	contentsDir = "contents"
	workDir     = "work"

	// ReservedName cannot be used as a name or tag: it addresses the root
	// of a tree in reference expressions.
	ReservedName = "root"
)

// Registry provides an interface for managing layers.
type Registry interface {
	// Create creates a new layer under parent (empty for a root layer).
	Create(parent string, description *string) (*Layer, error)

	// Get loads a single layer record.
	Get(id string) (*Layer, error)

	// List loads every layer in the home.
	List() ([]*Layer, error)

	// Graph loads every layer and indexes the derived child relation.
	Graph() (*Graph, error)

	// ChildrenOf returns the direct children of id in creation order.
	ChildrenOf(id string) ([]*Layer, error)

	// AncestorsOf returns the chain from id to its root, id first.
	AncestorsOf(id string) ([]*Layer, error)

	// SetDescription sets the description, which may be the empty string.
	SetDescription(id, text string) error

	// ClearDescription removes the description entirely.
	ClearDescription(id string) error

	// AddTags adds tags; existing tags are ignored.
	AddTags(id string, tags ...string) error

	// RemoveTags removes tags; missing tags are ignored.
	RemoveTags(id string, tags ...string) error

	// SetTags replaces the tag set.
	SetTags(id string, tags ...string) error

	// Delete removes a layer record and its directory.
	Delete(id string) error

	// Names returns the home name index.
	Names() (map[string]string, error)

	// SetName registers name for layer id.
	SetName(name, id string) error

	// RemoveNamesFor drops every name that points at one of ids.
	RemoveNamesFor(ids ...string) error

	// ContentsPath returns the directory holding a layer's files.
	ContentsPath(id string) string

	// WorkPath returns the overlay work directory of a layer.
	WorkPath(id string) string
}

// FileRegistry implements Registry using files on disk.
type FileRegistry struct {
	fs        fsops.FS
	clock     clock.Clock
	layersDir string
	namesPath string
	newID     func() string
}

// NewFileRegistry creates a new FileRegistry.
func NewFileRegistry(fs fsops.FS, clk clock.Clock, layersDir, namesPath string) *FileRegistry {
	return &FileRegistry{
		fs:        fs,
		clock:     clk,
		layersDir: layersDir,
		namesPath: namesPath,
		newID:     NewLayerID,
	}
}

// NewLayerID returns a random 128-bit ID as 32 lowercase hex digits.
func NewLayerID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

func (r *FileRegistry) layerDir(id string) string {
	return filepath.Join(r.layersDir, id)
}

func (r *FileRegistry) recordPath(id string) string {
	return filepath.Join(r.layersDir, id, recordName)
}

// ContentsPath returns the directory holding a layer's files.
func (r *FileRegistry) ContentsPath(id string) string {
	return filepath.Join(r.layersDir, id, contentsDir)
}

// WorkPath returns the overlay work directory of a layer.
func (r *FileRegistry) WorkPath(id string) string {
	return filepath.Join(r.layersDir, id, workDir)
}

// Create creates a new layer under parent (empty for a root layer).
func (r *FileRegistry) Create(parent string, description *string) (*Layer, error) {
	if parent != "" {
		if _, err := r.Get(parent); err != nil {
			return nil, fmt.Errorf("failed to load parent: %w", err)
		}
	}

	layers, err := r.List()
	if err != nil {
		return nil, err
	}
	var seq int64
	for _, l := range layers {
		seq = max(seq, l.Seq)
	}

	id, err := r.allocateID()
	if err != nil {
		return nil, err
	}

	for _, dir := range []string{r.ContentsPath(id), r.WorkPath(id)} {
		if err := r.fs.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create layer directory: %w", err)
		}
	}

	layer := &Layer{
		SchemaVersion: SchemaVersion,
		ID:            id,
		Parent:        parent,
		Description:   description,
		Tags:          []string{},
		Seq:           seq + 1,
		CreatedAt:     r.clock.Now(),
	}

	// The record is written last: until it exists the layer does not exist
	if err := r.save(layer); err != nil {
		_ = r.fs.RemoveAll(r.layerDir(id))
		return nil, err
	}

	return layer, nil
}

// allocateID draws IDs until one is unused. A collision is astronomically
// unlikely with random IDs but a custom generator in tests may repeat.
func (r *FileRegistry) allocateID() (string, error) {
	for range 3 {
		id := r.newID()
		exists, err := r.fs.Exists(r.layerDir(id))
		if err != nil {
			return "", fmt.Errorf("failed to check layer directory: %w", err)
		}
		if !exists {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: could not allocate an unused layer id", errdefs.ErrAlreadyExists)
}

// Get loads a single layer record.
func (r *FileRegistry) Get(id string) (*Layer, error) {
	if err := r.fs.ValidateIdentifier(id); err != nil {
		return nil, fmt.Errorf("%w: layer %q", errdefs.ErrNotFound, id)
	}

	data, err := r.fs.ReadFile(r.recordPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: layer %s", errdefs.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to read layer record: %w", err)
	}

	var layer Layer
	if err := json.Unmarshal(data, &layer); err != nil {
		return nil, fmt.Errorf("%w: layer %s: failed to unmarshal record: %v", errdefs.ErrCorruptGraph, id, err)
	}
	if layer.ID != id {
		return nil, fmt.Errorf("%w: record in %s claims id %s", errdefs.ErrCorruptGraph, id, layer.ID)
	}
	layer.Tags = normalizeTags(layer.Tags)

	return &layer, nil
}

// List loads every layer in the home. Directories without a record are
// skipped: they are either being created or being deleted.
func (r *FileRegistry) List() ([]*Layer, error) {
	entries, err := r.fs.ReadDir(r.layersDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read layers directory: %w", err)
	}

	layers := []*Layer{}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		layer, err := r.Get(entry.Name())
		if err != nil {
			if kind := errdefs.Kind(err); kind == errdefs.ErrNotFound {
				continue
			}
			return nil, err
		}
		layers = append(layers, layer)
	}

	return layers, nil
}

// Graph loads every layer and indexes the derived child relation.
func (r *FileRegistry) Graph() (*Graph, error) {
	layers, err := r.List()
	if err != nil {
		return nil, err
	}
	return NewGraph(layers), nil
}

// ChildrenOf returns the direct children of id in creation order.
func (r *FileRegistry) ChildrenOf(id string) ([]*Layer, error) {
	g, err := r.Graph()
	if err != nil {
		return nil, err
	}
	if _, err := g.MustLayer(id); err != nil {
		return nil, err
	}
	return g.layersOf(g.Children(id)), nil
}

// AncestorsOf returns the chain from id to its root, id first.
func (r *FileRegistry) AncestorsOf(id string) ([]*Layer, error) {
	g, err := r.Graph()
	if err != nil {
		return nil, err
	}
	chain, err := g.Ancestors(id)
	if err != nil {
		return nil, err
	}
	return g.layersOf(chain), nil
}

func (g *Graph) layersOf(ids []string) []*Layer {
	out := make([]*Layer, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.layers[id])
	}
	return out
}

// SetDescription sets the description, which may be the empty string.
func (r *FileRegistry) SetDescription(id, text string) error {
	return r.update(id, func(l *Layer) {
		l.Description = &text
	})
}

// ClearDescription removes the description entirely.
func (r *FileRegistry) ClearDescription(id string) error {
	return r.update(id, func(l *Layer) {
		l.Description = nil
	})
}

// AddTags adds tags; existing tags are ignored.
func (r *FileRegistry) AddTags(id string, tags ...string) error {
	if err := validateTags(tags); err != nil {
		return err
	}
	return r.update(id, func(l *Layer) {
		l.Tags = normalizeTags(append(l.Tags, tags...))
	})
}

// RemoveTags removes tags; missing tags are ignored.
func (r *FileRegistry) RemoveTags(id string, tags ...string) error {
	return r.update(id, func(l *Layer) {
		l.Tags = slices.DeleteFunc(l.Tags, func(t string) bool {
			return slices.Contains(tags, t)
		})
	})
}

// SetTags replaces the tag set.
func (r *FileRegistry) SetTags(id string, tags ...string) error {
	if err := validateTags(tags); err != nil {
		return err
	}
	return r.update(id, func(l *Layer) {
		l.Tags = normalizeTags(tags)
	})
}

// update loads, mutates, and atomically rewrites a layer record. Unchanged
// records are not rewritten.
func (r *FileRegistry) update(id string, mutate func(*Layer)) error {
	layer, err := r.Get(id)
	if err != nil {
		return err
	}

	before, err := json.Marshal(layer)
	if err != nil {
		return fmt.Errorf("failed to marshal layer record: %w", err)
	}
	mutate(layer)
	after, err := json.Marshal(layer)
	if err != nil {
		return fmt.Errorf("failed to marshal layer record: %w", err)
	}
	if string(before) == string(after) {
		return nil
	}

	return r.save(layer)
}

func (r *FileRegistry) save(layer *Layer) error {
	data, err := json.MarshalIndent(layer, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal layer record: %w", err)
	}

	if err := r.fs.AtomicWrite(r.recordPath(layer.ID), data, 0644); err != nil {
		return fmt.Errorf("failed to write layer record: %w", err)
	}

	return nil
}

// Delete removes a layer record and its directory. The record goes first so
// the layer disappears atomically; a leftover directory is invisible to List.
func (r *FileRegistry) Delete(id string) error {
	if err := r.fs.ValidateIdentifier(id); err != nil {
		return fmt.Errorf("%w: layer %q", errdefs.ErrNotFound, id)
	}

	if err := r.fs.Remove(r.recordPath(id)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: layer %s", errdefs.ErrNotFound, id)
		}
		return fmt.Errorf("failed to remove layer record: %w", err)
	}

	if err := r.fs.RemoveAll(r.layerDir(id)); err != nil {
		return fmt.Errorf("failed to remove layer directory: %w", err)
	}

	return nil
}

// Names returns the home name index.
func (r *FileRegistry) Names() (map[string]string, error) {
	idx, err := r.loadNames()
	if err != nil {
		return nil, err
	}
	return idx.Names, nil
}

// SetName registers name for layer id. Names are unique within a home.
func (r *FileRegistry) SetName(name, id string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if _, err := r.Get(id); err != nil {
		return err
	}

	idx, err := r.loadNames()
	if err != nil {
		return err
	}

	if existing, ok := idx.Names[name]; ok {
		if existing == id {
			return nil
		}
		return fmt.Errorf("%w: name %q is registered to layer %s", errdefs.ErrAlreadyExists, name, existing)
	}

	idx.Names[name] = id
	return r.saveNames(idx)
}

// RemoveNamesFor drops every name that points at one of ids.
func (r *FileRegistry) RemoveNamesFor(ids ...string) error {
	idx, err := r.loadNames()
	if err != nil {
		return err
	}

	changed := false
	for name, id := range idx.Names {
		if slices.Contains(ids, id) {
			delete(idx.Names, name)
			changed = true
		}
	}
	if !changed {
		return nil
	}

	return r.saveNames(idx)
}

func (r *FileRegistry) loadNames() (*NameIndex, error) {
	data, err := r.fs.ReadFile(r.namesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return NewNameIndex(), nil
		}
		return nil, fmt.Errorf("failed to read name index: %w", err)
	}

	var idx NameIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal name index: %v", errdefs.ErrCorruptGraph, err)
	}
	if idx.Names == nil {
		idx.Names = map[string]string{}
	}

	return &idx, nil
}

func (r *FileRegistry) saveNames(idx *NameIndex) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal name index: %w", err)
	}

	if err := r.fs.AtomicWrite(r.namesPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write name index: %w", err)
	}

	return nil
}

// ValidateName checks a home name.
func ValidateName(name string) error {
	if err := fsops.ValidateIdentifier(name); err != nil {
		return fmt.Errorf("%w: name: %v", errdefs.ErrInvalidArgument, err)
	}
	if name == ReservedName {
		return fmt.Errorf("%w: name %q is reserved", errdefs.ErrInvalidArgument, name)
	}
	return nil
}

// ValidateTag checks a tag. Tags share the name rules.
func ValidateTag(tag string) error {
	if err := fsops.ValidateIdentifier(tag); err != nil {
		return fmt.Errorf("%w: tag: %v", errdefs.ErrInvalidArgument, err)
	}
	if tag == ReservedName {
		return fmt.Errorf("%w: tag %q is reserved", errdefs.ErrInvalidArgument, tag)
	}
	return nil
}

func validateTags(tags []string) error {
	for _, t := range tags {
		if err := ValidateTag(t); err != nil {
			return err
		}
	}
	return nil
}
