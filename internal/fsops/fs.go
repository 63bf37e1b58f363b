// Package fsops provides filesystem operations with safety guarantees.
//
// All registry and mount-index I/O in strata goes through the FS interface,
// which is backed by an afero.Fs so the persisted stores can be exercised on
// an in-memory filesystem in tests.
//
// Key features:
//   - Atomic writes using temp file + fsync + rename
//   - Identifier validation for names, tags, and layer ids
//   - Directory listing for layer discovery
package fsops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/spf13/afero"
)

// FS provides an abstraction for filesystem operations.
// All persisted-state mutations in strata must go through this interface.
type FS interface {
	// MkdirAll creates a directory and all parent directories.
	MkdirAll(path string, perm os.FileMode) error

	// Remove removes a file or empty directory.
	Remove(path string) error

	// RemoveAll removes a path and all its contents.
	RemoveAll(path string) error

	// AtomicWrite writes data to path atomically using temp file + rename.
	AtomicWrite(path string, data []byte, perm os.FileMode) error

	// ReadFile reads the entire contents of a file.
	ReadFile(path string) ([]byte, error)

	// ReadDir lists the names of the directory entries in path.
	// A missing directory yields an empty list.
	ReadDir(path string) ([]os.FileInfo, error)

	// Exists checks if a path exists.
	Exists(path string) (bool, error)

	// IsEmptyDir reports whether path is a directory with no entries.
	IsEmptyDir(path string) (bool, error)

	// IsDir reports whether path exists and is a directory.
	IsDir(path string) (bool, error)

	// ValidateIdentifier validates an identifier for safety.
	ValidateIdentifier(id string) error
}

// AferoFS implements FS on top of an afero.Fs.
type AferoFS struct {
	fs afero.Fs
}

// NewOsFS creates an FS backed by the host filesystem.
func NewOsFS() *AferoFS {
	return &AferoFS{fs: afero.NewOsFs()}
}

// NewMemFS creates an FS backed by memory. Used in tests.
func NewMemFS() *AferoFS {
	return &AferoFS{fs: afero.NewMemMapFs()}
}

// New wraps an arbitrary afero.Fs.
func New(fs afero.Fs) *AferoFS {
	return &AferoFS{fs: fs}
}

// Afero returns the underlying afero.Fs.
func (f *AferoFS) Afero() afero.Fs {
	return f.fs
}

// MkdirAll creates a directory and all parent directories.
func (f *AferoFS) MkdirAll(path string, perm os.FileMode) error {
	return f.fs.MkdirAll(path, perm)
}

// Remove removes a file or empty directory.
func (f *AferoFS) Remove(path string) error {
	return f.fs.Remove(path)
}

// RemoveAll removes a path and all its contents.
func (f *AferoFS) RemoveAll(path string) error {
	return f.fs.RemoveAll(path)
}

// AtomicWrite writes data to path atomically using temp file + rename.
func (f *AferoFS) AtomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := f.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	// Temp file lives next to the target so the rename stays on one filesystem
	tmpFile, err := afero.TempFile(f.fs, dir, ".strata-tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			_ = tmpFile.Close()
			_ = f.fs.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := f.fs.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := f.fs.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	tmpFile = nil
	return nil
}

// ReadFile reads the entire contents of a file.
func (f *AferoFS) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(f.fs, path)
}

// ReadDir lists directory entries sorted by name.
func (f *AferoFS) ReadDir(path string) ([]os.FileInfo, error) {
	entries, err := afero.ReadDir(f.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return []os.FileInfo{}, nil
		}
		return nil, err
	}
	return entries, nil
}

// Exists checks if a path exists.
func (f *AferoFS) Exists(path string) (bool, error) {
	return afero.Exists(f.fs, path)
}

// IsEmptyDir reports whether path is a directory with no entries.
func (f *AferoFS) IsEmptyDir(path string) (bool, error) {
	info, err := f.fs.Stat(path)
	if err != nil {
		return false, err
	}
	if !info.IsDir() {
		return false, fmt.Errorf("%s is not a directory", path)
	}
	return afero.IsEmpty(f.fs, path)
}

// IsDir reports whether path exists and is a directory.
func (f *AferoFS) IsDir(path string) (bool, error) {
	ok, err := afero.IsDir(f.fs, path)
	if err != nil && os.IsNotExist(err) {
		return false, nil
	}
	return ok, err
}

// ValidateIdentifier validates an identifier (layer name, tag, layer id) for
// safety. Identifiers end up as path components and inside reference
// expressions, so separators, traversal, whitespace, and the reference
// metacharacters are all rejected.
func (f *AferoFS) ValidateIdentifier(id string) error {
	return ValidateIdentifier(id)
}

// ValidateIdentifier is the package-level form of AferoFS.ValidateIdentifier.
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("invalid identifier: empty")
	}

	if strings.ContainsAny(id, `/\`) || strings.Contains(id, string(filepath.Separator)) {
		return fmt.Errorf("invalid identifier %q: must not contain path separators", id)
	}

	if id == "." || id == ".." || strings.HasPrefix(id, ".") {
		return fmt.Errorf("invalid identifier %q: must not start with a dot", id)
	}

	if strings.ContainsAny(id, ":^~@") {
		return fmt.Errorf("invalid identifier %q: must not contain any of ':^~@'", id)
	}

	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("invalid identifier %q: must not contain whitespace", id)
		}
	}

	return nil
}
