package integration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danieljhkim/strata/internal/engine"
)

func TestOverlay_IndependentBranches(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	base, err := env.eng.Create(ctx, &engine.CreateRequest{Name: "proj"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Seed the base layer through a writable mount
	seed := env.mountDir(t, "seed")
	if _, err := env.eng.Mount(ctx, &engine.MountRequest{LayerRef: engine.LayerRef{Ref: "proj"}, MountPoint: seed}); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	writeFile(t, filepath.Join(seed, "shared.txt"), "base")
	if _, err := env.eng.Unmount(ctx, &engine.UnmountRequest{MountPoint: seed}); err != nil {
		t.Fatalf("Unmount failed: %v", err)
	}

	mpA := env.mountDir(t, "a")
	mpB := env.mountDir(t, "b")
	resA, err := env.eng.BranchAndMount(ctx, &engine.BranchAndMountRequest{LayerRef: engine.LayerRef{Ref: "proj"}, MountPoint: mpA})
	if err != nil {
		t.Fatalf("BranchAndMount(a) failed: %v", err)
	}
	resB, err := env.eng.BranchAndMount(ctx, &engine.BranchAndMountRequest{LayerRef: engine.LayerRef{Ref: "proj"}, MountPoint: mpB})
	if err != nil {
		t.Fatalf("BranchAndMount(b) failed: %v", err)
	}
	if resA.Child.Parent != base.Layer.ID || resB.Child.Parent != base.Layer.ID {
		t.Fatal("branches should be children of the base layer")
	}

	if got := readFile(t, filepath.Join(mpA, "shared.txt")); got != "base" {
		t.Errorf("a sees %q, want base content", got)
	}

	writeFile(t, filepath.Join(mpA, "only-a.txt"), "a")
	writeFile(t, filepath.Join(mpB, "shared.txt"), "changed in b")

	if _, err := os.Stat(filepath.Join(mpB, "only-a.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("write in a is visible in b: %v", err)
	}
	if got := readFile(t, filepath.Join(mpA, "shared.txt")); got != "base" {
		t.Errorf("copy-up in b leaked into a: %q", got)
	}
	if got := readFile(t, filepath.Join(resB.Record.WritableOverlay, "shared.txt")); got != "changed in b" {
		t.Errorf("b's overlay holds %q", got)
	}
}

func TestOverlay_ReadOnlyView(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	if _, err := env.eng.Create(ctx, &engine.CreateRequest{Name: "proj"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := env.eng.Create(ctx, &engine.CreateRequest{Parent: "proj"}); err != nil {
		t.Fatalf("Create child failed: %v", err)
	}

	mp := env.mountDir(t, "ro")
	res, err := env.eng.Mount(ctx, &engine.MountRequest{LayerRef: engine.LayerRef{Ref: "proj"}, MountPoint: mp})
	if err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	if !res.Record.ReadOnly() {
		t.Fatal("a layer with children must mount read-only")
	}
	if err := os.WriteFile(filepath.Join(mp, "f"), []byte("x"), 0644); err == nil {
		t.Error("write through a read-only view succeeded")
	}

	out, err := env.eng.UnmountAll(ctx, engine.LayerRef{Ref: "proj"})
	if err != nil || len(out.Unmounted) != 1 {
		t.Fatalf("UnmountAll = %+v, %v", out, err)
	}
}
