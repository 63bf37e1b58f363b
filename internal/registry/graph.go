package registry

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/danieljhkim/strata/internal/errdefs"
)

// Graph is a read-only snapshot of the layer graph with the child relation
// derived from the stored parent links. It is built per call and never
// persisted, so it cannot go stale across processes.
type Graph struct {
	layers   map[string]*Layer
	children map[string][]string
	order    []string
}

// NewGraph indexes layers. Children of each node, and the overall order,
// follow creation order.
func NewGraph(layers []*Layer) *Graph {
	g := &Graph{
		layers:   make(map[string]*Layer, len(layers)),
		children: make(map[string][]string),
	}

	sorted := slices.Clone(layers)
	slices.SortFunc(sorted, compareCreation)

	for _, l := range sorted {
		g.layers[l.ID] = l
		g.order = append(g.order, l.ID)
		if l.Parent != "" {
			g.children[l.Parent] = append(g.children[l.Parent], l.ID)
		}
	}
	return g
}

func compareCreation(a, b *Layer) int {
	if c := cmp.Compare(a.Seq, b.Seq); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Len returns the number of layers.
func (g *Graph) Len() int {
	return len(g.order)
}

// Layer returns the layer with the given ID.
func (g *Graph) Layer(id string) (*Layer, bool) {
	l, ok := g.layers[id]
	return l, ok
}

// MustLayer returns the layer or an ErrNotFound error.
func (g *Graph) MustLayer(id string) (*Layer, error) {
	l, ok := g.layers[id]
	if !ok {
		return nil, fmt.Errorf("%w: layer %s", errdefs.ErrNotFound, id)
	}
	return l, nil
}

// IDs returns every layer ID in creation order.
func (g *Graph) IDs() []string {
	return slices.Clone(g.order)
}

// Roots returns the IDs of all root layers in creation order.
func (g *Graph) Roots() []string {
	var roots []string
	for _, id := range g.order {
		if g.layers[id].IsRoot() {
			roots = append(roots, id)
		}
	}
	return roots
}

// Children returns the direct children of id in creation order.
func (g *Graph) Children(id string) []string {
	return slices.Clone(g.children[id])
}

// Parent returns the parent of id; ok is false for roots and unknown IDs.
func (g *Graph) Parent(id string) (parent string, ok bool) {
	l, found := g.layers[id]
	if !found || l.IsRoot() {
		return "", false
	}
	return l.Parent, true
}

// Ancestors returns the chain from id up to its root, id first.
// A parent link that points at a missing layer, or loops back on itself,
// is reported as ErrCorruptGraph.
func (g *Graph) Ancestors(id string) ([]string, error) {
	if _, ok := g.layers[id]; !ok {
		return nil, fmt.Errorf("%w: layer %s", errdefs.ErrNotFound, id)
	}

	seen := map[string]bool{}
	chain := []string{}
	for cur := id; ; {
		if seen[cur] {
			return nil, fmt.Errorf("%w: cycle through layer %s", errdefs.ErrCorruptGraph, cur)
		}
		seen[cur] = true
		chain = append(chain, cur)

		l := g.layers[cur]
		if l.IsRoot() {
			return chain, nil
		}
		if _, ok := g.layers[l.Parent]; !ok {
			return nil, fmt.Errorf("%w: layer %s has missing parent %s", errdefs.ErrCorruptGraph, cur, l.Parent)
		}
		cur = l.Parent
	}
}

// Root returns the root of id's tree.
func (g *Graph) Root(id string) (string, error) {
	chain, err := g.Ancestors(id)
	if err != nil {
		return "", err
	}
	return chain[len(chain)-1], nil
}

// Descendants returns every descendant of id in post-order: each layer
// appears after all of its own descendants. id itself is not included.
func (g *Graph) Descendants(id string) []string {
	var out []string
	seen := map[string]bool{id: true}
	var walk func(string)
	walk = func(cur string) {
		for _, child := range g.children[cur] {
			if seen[child] {
				continue
			}
			seen[child] = true
			walk(child)
			out = append(out, child)
		}
	}
	walk(id)
	return out
}

// Subtree returns id's descendants followed by id: a safe deletion order.
func (g *Graph) Subtree(id string) []string {
	return append(g.Descendants(id), id)
}

// DescendantCount returns the size of the transitive closure of children.
func (g *Graph) DescendantCount(id string) int {
	return len(g.Descendants(id))
}

// InTree reports whether id belongs to the tree rooted at root.
func (g *Graph) InTree(root, id string) bool {
	r, err := g.Root(id)
	return err == nil && r == root
}
