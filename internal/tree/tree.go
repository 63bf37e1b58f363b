// Package tree renders a layer's whole tree as indented text.
package tree

import (
	"fmt"
	"strings"

	"github.com/danieljhkim/strata/internal/registry"
)

// Focus markers wrap the line of the layer the tree was requested for.
const (
	FocusOpen  = ">> "
	FocusClose = " <<"
)

// Render draws the tree containing focusID, starting from its root and
// walking children depth-first in creation order. mounted maps layer ids to
// their mount points; layers without mounts may be absent.
func Render(g *registry.Graph, mounted map[string][]string, focusID string) (string, error) {
	root, err := g.Root(focusID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	var walk func(id string, depth int)
	walk = func(id string, depth int) {
		line := Line(g, id, mounted[id])
		if id == focusID {
			line = FocusOpen + line + FocusClose
		}
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(line)
		b.WriteByte('\n')
		for _, child := range g.Children(id) {
			walk(child, depth+1)
		}
	}
	walk(root, 0)

	return b.String(), nil
}

// Line formats a single layer without indentation or focus markers.
func Line(g *registry.Graph, id string, mountPoints []string) string {
	l, _ := g.Layer(id)

	desc := "<none>"
	if l.Description != nil {
		desc = fmt.Sprintf("%q", *l.Description)
	}

	line := fmt.Sprintf("+-- Layer(id=%s, description=%s, tags=(%s), children=%d, descendants=%d)",
		l.ID, desc, strings.Join(l.Tags, ", "), len(g.Children(id)), g.DescendantCount(id))
	if len(mountPoints) > 0 {
		line += " mounted=[" + strings.Join(mountPoints, ", ") + "]"
	}
	return line
}
