package fsops

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name      string
		id        string
		wantError bool
	}{
		{name: "simple name", id: "project", wantError: false},
		{name: "dashes and underscores", id: "my_layer-123", wantError: false},
		{name: "hex layer id", id: "0f9a6c1e2b7d4e3f8a9b0c1d2e3f4a5b", wantError: false},
		{name: "dotted version tag", id: "v1.2", wantError: false},
		{name: "empty", id: "", wantError: true},
		{name: "current directory", id: ".", wantError: true},
		{name: "parent directory", id: "..", wantError: true},
		{name: "hidden", id: ".hidden", wantError: true},
		{name: "path separator", id: "a/b", wantError: true},
		{name: "backslash", id: `a\b`, wantError: true},
		{name: "home separator", id: "home:x", wantError: true},
		{name: "parent suffix", id: "x^", wantError: true},
		{name: "first child suffix", id: "x~2", wantError: true},
		{name: "ancestor suffix", id: "x@1", wantError: true},
		{name: "space", id: "two words", wantError: true},
		{name: "tab", id: "tab\there", wantError: true},
	}

	fs := NewMemFS()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fs.ValidateIdentifier(tt.id)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidateIdentifier(%q) error = %v, wantError %v", tt.id, err, tt.wantError)
			}
		})
	}
}

func TestAferoFS_AtomicWrite(t *testing.T) {
	fs := NewMemFS()

	t.Run("write to new file in missing directory", func(t *testing.T) {
		path := "/home/layers/abc/layer.json"
		content := []byte(`{"id":"abc"}`)

		if err := fs.AtomicWrite(path, content, 0644); err != nil {
			t.Fatalf("AtomicWrite failed: %v", err)
		}

		got, err := fs.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile failed: %v", err)
		}
		if string(got) != string(content) {
			t.Errorf("content mismatch: got %q, want %q", got, content)
		}
	})

	t.Run("overwrite leaves no temp files", func(t *testing.T) {
		path := "/home/names.json"
		if err := fs.AtomicWrite(path, []byte("first"), 0644); err != nil {
			t.Fatalf("first AtomicWrite failed: %v", err)
		}
		if err := fs.AtomicWrite(path, []byte("second"), 0644); err != nil {
			t.Fatalf("second AtomicWrite failed: %v", err)
		}

		got, err := fs.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile failed: %v", err)
		}
		if string(got) != "second" {
			t.Errorf("content not replaced: got %q", got)
		}

		entries, err := fs.ReadDir(filepath.Dir(path))
		if err != nil {
			t.Fatalf("ReadDir failed: %v", err)
		}
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), ".strata-tmp-") {
				t.Errorf("temp file left behind: %s", e.Name())
			}
		}
	})

	t.Run("on host filesystem", func(t *testing.T) {
		osfs := NewOsFS()
		path := filepath.Join(t.TempDir(), "mounts.json")
		if err := osfs.AtomicWrite(path, []byte("[]"), 0600); err != nil {
			t.Fatalf("AtomicWrite failed: %v", err)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat failed: %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("permissions = %v, want 0600", info.Mode().Perm())
		}
	})
}

func TestAferoFS_ReadDir(t *testing.T) {
	fs := NewMemFS()

	t.Run("missing directory is empty", func(t *testing.T) {
		entries, err := fs.ReadDir("/nope")
		if err != nil {
			t.Fatalf("ReadDir failed: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("expected no entries, got %d", len(entries))
		}
	})

	t.Run("lists entries", func(t *testing.T) {
		for _, d := range []string{"/layers/b", "/layers/a"} {
			if err := fs.MkdirAll(d, 0755); err != nil {
				t.Fatalf("MkdirAll failed: %v", err)
			}
		}
		entries, err := fs.ReadDir("/layers")
		if err != nil {
			t.Fatalf("ReadDir failed: %v", err)
		}
		if len(entries) != 2 || entries[0].Name() != "a" || entries[1].Name() != "b" {
			t.Errorf("unexpected entries: %v", entries)
		}
	})
}

func TestAferoFS_IsEmptyDir(t *testing.T) {
	mem := afero.NewMemMapFs()
	fs := New(mem)

	if err := fs.MkdirAll("/mnt/empty", 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := afero.WriteFile(mem, "/mnt/full/f", []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	empty, err := fs.IsEmptyDir("/mnt/empty")
	if err != nil || !empty {
		t.Errorf("IsEmptyDir(/mnt/empty) = %v, %v; want true, nil", empty, err)
	}

	empty, err = fs.IsEmptyDir("/mnt/full")
	if err != nil || empty {
		t.Errorf("IsEmptyDir(/mnt/full) = %v, %v; want false, nil", empty, err)
	}

	if _, err := fs.IsEmptyDir("/mnt/full/f"); err == nil {
		t.Error("IsEmptyDir on a file should fail")
	}

	if _, err := fs.IsEmptyDir("/mnt/missing"); !os.IsNotExist(err) {
		t.Errorf("IsEmptyDir on missing path error = %v, want not-exist", err)
	}
}

func TestAferoFS_Remove(t *testing.T) {
	fs := NewMemFS()
	if err := fs.AtomicWrite("/x/layer.json", []byte("{}"), 0644); err != nil {
		t.Fatalf("AtomicWrite failed: %v", err)
	}

	if err := fs.Remove("/x/layer.json"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	exists, err := fs.Exists("/x/layer.json")
	if err != nil || exists {
		t.Errorf("Exists after Remove = %v, %v", exists, err)
	}

	if err := fs.RemoveAll("/x"); err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}
	exists, err = fs.Exists("/x")
	if err != nil || exists {
		t.Errorf("Exists after RemoveAll = %v, %v", exists, err)
	}
}

func TestAferoFS_IsDir(t *testing.T) {
	fs := NewMemFS()
	if err := fs.AtomicWrite("/mnt/dir/file", []byte("x"), 0644); err != nil {
		t.Fatalf("AtomicWrite failed: %v", err)
	}

	tests := []struct {
		path string
		want bool
	}{
		{"/mnt/dir", true},
		{"/mnt/dir/file", false},
		{"/mnt/missing", false},
	}
	for _, tt := range tests {
		got, err := fs.IsDir(tt.path)
		if err != nil {
			t.Errorf("IsDir(%s) error = %v", tt.path, err)
		}
		if got != tt.want {
			t.Errorf("IsDir(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
