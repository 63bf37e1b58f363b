package refspec

import (
	"fmt"
	"slices"
	"strings"

	"github.com/danieljhkim/strata/internal/errdefs"
	"github.com/danieljhkim/strata/internal/registry"
)

// minPrefixLen is the shortest id prefix accepted as a base.
const minPrefixLen = 4

// Scope is the state a reference is evaluated against.
type Scope struct {
	Graph *registry.Graph

	// Names maps home names to layer ids
	Names map[string]string

	// Context is the layer mounted at the caller's directory, or empty
	Context string
}

// Resolve parses ref and evaluates it.
func Resolve(ref string, scope Scope) (string, error) {
	expr, err := Parse(ref)
	if err != nil {
		return "", err
	}
	return Eval(expr, scope)
}

// Eval evaluates a parsed reference to a layer id.
func Eval(expr *Expr, scope Scope) (string, error) {
	id, err := evalBase(expr, scope)
	if err != nil {
		return "", err
	}

	for _, step := range expr.Steps {
		id, err = apply(scope.Graph, id, step)
		if err != nil {
			return "", fmt.Errorf("resolving %q: %w", expr.String(), err)
		}
	}
	return id, nil
}

func evalBase(expr *Expr, scope Scope) (string, error) {
	g := scope.Graph

	// treeRoot limits name, tag, and prefix matches to one tree when a home
	// is given.
	var anchor, treeRoot string
	if expr.HasHome {
		id, ok := scope.Names[expr.Home]
		if !ok {
			return "", fmt.Errorf("%w: home %q", errdefs.ErrNotFound, expr.Home)
		}
		if _, ok := g.Layer(id); !ok {
			return "", fmt.Errorf("%w: home %q points at missing layer %s", errdefs.ErrNotFound, expr.Home, id)
		}
		root, err := g.Root(id)
		if err != nil {
			return "", err
		}
		anchor, treeRoot = id, root
	} else {
		anchor = scope.Context
	}

	switch expr.Base {
	case "":
		if anchor == "" {
			return "", errdefs.ErrNoContextLayer
		}
		if _, ok := g.Layer(anchor); !ok {
			return "", fmt.Errorf("%w: context layer %s", errdefs.ErrNotFound, anchor)
		}
		return anchor, nil
	case RootKeyword:
		if anchor == "" {
			return "", errdefs.ErrNoContextLayer
		}
		return g.Root(anchor)
	}

	if _, ok := g.Layer(expr.Base); ok {
		if treeRoot != "" && !g.InTree(treeRoot, expr.Base) {
			return "", fmt.Errorf("%w: layer %s is not under home %q", errdefs.ErrNotFound, expr.Base, expr.Home)
		}
		return expr.Base, nil
	}

	inScope := func(id string) bool {
		return treeRoot == "" || g.InTree(treeRoot, id)
	}

	var matches []string
	if id, ok := scope.Names[expr.Base]; ok {
		if _, exists := g.Layer(id); exists && inScope(id) {
			matches = append(matches, id)
		}
	}
	for _, id := range g.IDs() {
		if l, _ := g.Layer(id); l.HasTag(expr.Base) && inScope(id) && !slices.Contains(matches, id) {
			matches = append(matches, id)
		}
	}
	if id, err := single(expr, matches, "name or tag"); id != "" || err != nil {
		return id, err
	}

	if len(expr.Base) >= minPrefixLen && isHex(expr.Base) {
		for _, id := range g.IDs() {
			if strings.HasPrefix(id, expr.Base) && inScope(id) {
				matches = append(matches, id)
			}
		}
		if id, err := single(expr, matches, "id prefix"); id != "" || err != nil {
			return id, err
		}
	}

	return "", fmt.Errorf("%w: no layer matches %q", errdefs.ErrNotFound, expr.String())
}

// single returns the only match, an ambiguity error for several, or
// ("", nil) for none.
func single(expr *Expr, matches []string, what string) (string, error) {
	switch len(matches) {
	case 0:
		return "", nil
	case 1:
		return matches[0], nil
	}
	short := make([]string, len(matches))
	for i, id := range matches {
		short[i] = shortID(id)
	}
	return "", fmt.Errorf("%w: %s %q matches %d layers: %s",
		errdefs.ErrAmbiguousReference, what, expr.Base, len(matches), strings.Join(short, ", "))
}

func apply(g *registry.Graph, id string, step Step) (string, error) {
	switch step.Kind {
	case StepParent:
		return parentOf(g, id)

	case StepChild:
		children := g.Children(id)
		if step.N > len(children) {
			return "", fmt.Errorf("%w: layer %s has %d children, no child %d",
				errdefs.ErrNotFound, shortID(id), len(children), step.N)
		}
		return children[step.N-1], nil

	case StepFirstChild:
		for range step.N {
			children := g.Children(id)
			if len(children) == 0 {
				return "", fmt.Errorf("%w: layer %s has no children", errdefs.ErrNotFound, shortID(id))
			}
			id = children[0]
		}
		return id, nil

	case StepAncestor:
		for range step.N {
			parent, err := parentOf(g, id)
			if err != nil {
				return "", err
			}
			id = parent
		}
		return id, nil
	}
	return "", fmt.Errorf("%w: unknown step %v", errdefs.ErrInvalidReference, step)
}

func parentOf(g *registry.Graph, id string) (string, error) {
	parent, ok := g.Parent(id)
	if !ok {
		return "", fmt.Errorf("%w: layer %s is a root and has no parent", errdefs.ErrNotFound, shortID(id))
	}
	if _, exists := g.Layer(parent); !exists {
		return "", fmt.Errorf("%w: layer %s has missing parent %s", errdefs.ErrCorruptGraph, shortID(id), parent)
	}
	return parent, nil
}

func isHex(s string) bool {
	for _, r := range s {
		if !('0' <= r && r <= '9' || 'a' <= r && r <= 'f') {
			return false
		}
	}
	return true
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
