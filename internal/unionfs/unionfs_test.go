package unionfs

import (
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danieljhkim/strata/internal/errdefs"
)

type mountCall struct {
	source, target, fstype string
	flags                  uintptr
	data                   string
}

type recordingKernel struct {
	mounts    []mountCall
	unmounts  []string
	failMount error
}

func (k *recordingKernel) mount(source, target, fstype string, flags uintptr, data string) error {
	k.mounts = append(k.mounts, mountCall{source, target, fstype, flags, data})
	return k.failMount
}

func (k *recordingKernel) unmount(target string) error {
	k.unmounts = append(k.unmounts, target)
	return nil
}

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestNew(t *testing.T) {
	m, err := New(BackendOverlay, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &Overlay{}, m)

	m, err = New(BackendFuseOverlay, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &FuseOverlay{}, m)

	_, err = New("aufs", testLogger())
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
}

func TestOverlay_Mount(t *testing.T) {
	root := "/h/layers/r/contents"
	mid := "/h/layers/m/contents"
	leaf := "/h/layers/l/contents"

	tests := []struct {
		name     string
		branches []string
		writable string
		want     []mountCall
	}{
		{
			name:     "writable root layer is a bind mount",
			writable: root,
			want:     []mountCall{{source: root, target: "/mnt", flags: flagBind}},
		},
		{
			name:     "single read-only branch is a read-only bind mount",
			branches: []string{root},
			want: []mountCall{
				{source: root, target: "/mnt", flags: flagBind},
				{target: "/mnt", flags: flagBind | flagRemount | flagReadOnly},
			},
		},
		{
			name:     "writable branch over ancestors",
			branches: []string{root, mid},
			writable: leaf,
			want: []mountCall{{
				source: "overlay", target: "/mnt", fstype: "overlay",
				data: "lowerdir=" + mid + ":" + root + ",upperdir=" + leaf + ",workdir=/h/layers/l/work",
			}},
		},
		{
			name:     "read-only view of several branches",
			branches: []string{root, mid, leaf},
			want: []mountCall{{
				source: "overlay", target: "/mnt", fstype: "overlay", flags: flagReadOnly,
				data: "lowerdir=" + leaf + ":" + mid + ":" + root,
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := &recordingKernel{}
			o := &Overlay{log: testLogger(), sys: k}

			require.NoError(t, o.Mount(tt.branches, tt.writable, "/mnt"))
			assert.Equal(t, tt.want, k.mounts)
		})
	}
}

func TestOverlay_MountErrors(t *testing.T) {
	t.Run("nothing to mount", func(t *testing.T) {
		o := &Overlay{log: testLogger(), sys: &recordingKernel{}}
		assert.ErrorIs(t, o.Mount(nil, "", "/mnt"), errdefs.ErrInvalidArgument)
	})

	t.Run("separator in path", func(t *testing.T) {
		o := &Overlay{log: testLogger(), sys: &recordingKernel{}}
		err := o.Mount([]string{"/a,b"}, "/c", "/mnt")
		assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
	})

	t.Run("failed remount undoes bind", func(t *testing.T) {
		k := &failSecondMount{}
		o := &Overlay{log: testLogger(), sys: k}
		err := o.Mount([]string{"/r"}, "", "/mnt")
		require.Error(t, err)
		assert.Equal(t, []string{"/mnt"}, k.unmounts)
	})
}

type failSecondMount struct {
	recordingKernel
}

func (k *failSecondMount) mount(source, target, fstype string, flags uintptr, data string) error {
	_ = k.recordingKernel.mount(source, target, fstype, flags, data)
	if len(k.mounts) == 2 {
		return errors.New("remount refused")
	}
	return nil
}

func TestOverlay_Unmount(t *testing.T) {
	k := &recordingKernel{}
	o := &Overlay{log: testLogger(), sys: k}
	require.NoError(t, o.Unmount("/mnt"))
	assert.Equal(t, []string{"/mnt"}, k.unmounts)
}

func TestFuseOverlay(t *testing.T) {
	base := t.TempDir()
	leaf := filepath.Join(base, "l", "contents")

	var got [][]string
	f := &FuseOverlay{log: testLogger(), run: func(name string, args ...string) ([]byte, error) {
		got = append(got, append([]string{name}, args...))
		return nil, nil
	}}

	require.NoError(t, f.Mount([]string{"/r", "/m"}, leaf, "/mnt"))
	require.NoError(t, f.Unmount("/mnt"))

	require.Len(t, got, 2)
	assert.Equal(t, []string{
		"fuse-overlayfs", "-o",
		"lowerdir=/m:/r,upperdir=" + leaf + ",workdir=" + filepath.Join(base, "l", "work", "fuse"),
		"/mnt",
	}, got[0])
	assert.Equal(t, []string{"fusermount", "-u", "/mnt"}, got[1])
	assert.DirExists(t, filepath.Join(base, "l", "work", "fuse"))
}

func TestFuseOverlay_NoLowerBranches(t *testing.T) {
	base := t.TempDir()
	leaf := filepath.Join(base, "r", "contents")

	var opts string
	f := &FuseOverlay{log: testLogger(), run: func(name string, args ...string) ([]byte, error) {
		opts = args[1]
		return nil, nil
	}}

	require.NoError(t, f.Mount(nil, leaf, "/mnt"))
	empty := filepath.Join(base, "r", "work", "lower")
	assert.True(t, strings.HasPrefix(opts, "lowerdir="+empty+",upperdir="+leaf))
	assert.DirExists(t, empty)
}

func TestFuseOverlay_CommandFailure(t *testing.T) {
	f := &FuseOverlay{log: testLogger(), run: func(name string, args ...string) ([]byte, error) {
		return []byte("fusermount: entry not found\n"), errors.New("exit status 1")
	}}

	err := f.Unmount("/mnt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry not found")
}
