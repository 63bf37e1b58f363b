package registry

import (
	"errors"
	"slices"
	"testing"

	"github.com/danieljhkim/strata/internal/errdefs"
)

// Builds:
//
//	r
//	├── a
//	│   ├── a1
//	│   └── a2
//	└── b
//	s
func testGraph() *Graph {
	return NewGraph([]*Layer{
		{ID: "a2", Parent: "a", Seq: 5},
		{ID: "r", Seq: 1},
		{ID: "b", Parent: "r", Seq: 3},
		{ID: "a", Parent: "r", Seq: 2},
		{ID: "a1", Parent: "a", Seq: 4},
		{ID: "s", Seq: 6},
	})
}

func TestGraph_Children(t *testing.T) {
	g := testGraph()

	if got := g.Children("r"); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("Children(r) = %v", got)
	}
	if got := g.Children("a"); !slices.Equal(got, []string{"a1", "a2"}) {
		t.Errorf("Children(a) = %v", got)
	}
	if got := g.Children("b"); len(got) != 0 {
		t.Errorf("Children(b) = %v", got)
	}
	if got := g.Roots(); !slices.Equal(got, []string{"r", "s"}) {
		t.Errorf("Roots() = %v", got)
	}
	if got := g.IDs(); !slices.Equal(got, []string{"r", "a", "b", "a1", "a2", "s"}) {
		t.Errorf("IDs() = %v", got)
	}
}

func TestGraph_SiblingTieBreak(t *testing.T) {
	g := NewGraph([]*Layer{
		{ID: "r", Seq: 1},
		{ID: "zz", Parent: "r", Seq: 2},
		{ID: "aa", Parent: "r", Seq: 2},
	})
	if got := g.Children("r"); !slices.Equal(got, []string{"aa", "zz"}) {
		t.Errorf("equal seq should order by id, got %v", got)
	}
}

func TestGraph_Ancestors(t *testing.T) {
	g := testGraph()

	chain, err := g.Ancestors("a2")
	if err != nil {
		t.Fatalf("Ancestors failed: %v", err)
	}
	if !slices.Equal(chain, []string{"a2", "a", "r"}) {
		t.Errorf("Ancestors(a2) = %v", chain)
	}

	root, err := g.Root("a1")
	if err != nil || root != "r" {
		t.Errorf("Root(a1) = %s, %v", root, err)
	}

	if parent, ok := g.Parent("a"); !ok || parent != "r" {
		t.Errorf("Parent(a) = %s, %v", parent, ok)
	}
	if _, ok := g.Parent("r"); ok {
		t.Error("root should have no parent")
	}

	if _, err := g.Ancestors("nope"); !errors.Is(err, errdefs.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGraph_CorruptParents(t *testing.T) {
	t.Run("cycle", func(t *testing.T) {
		g := NewGraph([]*Layer{
			{ID: "x", Parent: "y", Seq: 1},
			{ID: "y", Parent: "x", Seq: 2},
		})
		if _, err := g.Ancestors("x"); !errors.Is(err, errdefs.ErrCorruptGraph) {
			t.Errorf("expected ErrCorruptGraph, got %v", err)
		}
		// Descendant walks still terminate
		if n := g.DescendantCount("x"); n != 1 {
			t.Errorf("DescendantCount on cycle = %d, want 1", n)
		}
	})

	t.Run("dangling parent", func(t *testing.T) {
		g := NewGraph([]*Layer{{ID: "orphan", Parent: "gone", Seq: 1}})
		if _, err := g.Root("orphan"); !errors.Is(err, errdefs.ErrCorruptGraph) {
			t.Errorf("expected ErrCorruptGraph, got %v", err)
		}
	})
}

func TestGraph_Descendants(t *testing.T) {
	g := testGraph()

	desc := g.Descendants("r")
	if !slices.Equal(desc, []string{"a1", "a2", "a", "b"}) {
		t.Errorf("Descendants(r) post-order = %v", desc)
	}
	if n := g.DescendantCount("r"); n != 4 {
		t.Errorf("DescendantCount(r) = %d", n)
	}
	if n := g.DescendantCount("b"); n != 0 {
		t.Errorf("DescendantCount(b) = %d", n)
	}

	sub := g.Subtree("a")
	if !slices.Equal(sub, []string{"a1", "a2", "a"}) {
		t.Errorf("Subtree(a) = %v", sub)
	}

	// Post-order means no entry precedes one of its own descendants
	pos := map[string]int{}
	for i, id := range g.Subtree("r") {
		pos[id] = i
	}
	for id := range pos {
		if parent, ok := g.Parent(id); ok && pos[parent] < pos[id] {
			t.Errorf("%s deleted before its child %s", parent, id)
		}
	}

	if !g.InTree("r", "a2") || g.InTree("s", "a2") {
		t.Error("InTree mismatch")
	}
}
