package tree

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danieljhkim/strata/internal/errdefs"
	"github.com/danieljhkim/strata/internal/registry"
)

func strPtr(s string) *string { return &s }

func testGraph() *registry.Graph {
	return registry.NewGraph([]*registry.Layer{
		{ID: "r", Seq: 1, Description: strPtr("base"), Tags: []string{}},
		{ID: "a", Parent: "r", Seq: 2, Tags: []string{"v1", "wip"}},
		{ID: "a1", Parent: "a", Seq: 4, Description: strPtr(""), Tags: []string{}},
		{ID: "b", Parent: "r", Seq: 3, Tags: []string{}},
		{ID: "other", Seq: 5, Tags: []string{}},
	})
}

func TestRender(t *testing.T) {
	g := testGraph()
	mounted := map[string][]string{"a1": {"/mnt/x", "/mnt/y"}}

	out, err := Render(g, mounted, "a")
	require.NoError(t, err)

	want := strings.Join([]string{
		`+-- Layer(id=r, description="base", tags=(), children=2, descendants=3)`,
		`  >> +-- Layer(id=a, description=<none>, tags=(v1, wip), children=1, descendants=1) <<`,
		`    +-- Layer(id=a1, description="", tags=(), children=0, descendants=0) mounted=[/mnt/x, /mnt/y]`,
		`  +-- Layer(id=b, description=<none>, tags=(), children=0, descendants=0)`,
		``,
	}, "\n")
	assert.Equal(t, want, out)
}

func TestRender_FocusOnRoot(t *testing.T) {
	out, err := Render(testGraph(), nil, "other")
	require.NoError(t, err)
	assert.Equal(t, ">> +-- Layer(id=other, description=<none>, tags=(), children=0, descendants=0) <<\n", out)
}

func TestRender_Deterministic(t *testing.T) {
	g := testGraph()
	first, err := Render(g, nil, "a1")
	require.NoError(t, err)
	for range 5 {
		again, err := Render(g, nil, "a1")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRender_UnknownLayer(t *testing.T) {
	_, err := Render(testGraph(), nil, "missing")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}
