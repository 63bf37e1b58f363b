// Package unionfstest provides an in-process union mount for tests.
//
// Fake does not attach anything to the host: it remembers which branch stack
// is "mounted" at each target and serves reads and writes through that stack,
// so tests can observe copy-up isolation without privileges.
package unionfstest

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"syscall"

	"github.com/spf13/afero"
)

// View is one active fake mount.
type View struct {
	Branches []string
	Writable string
}

// Fake implements unionfs.Mounter in memory.
type Fake struct {
	fs afero.Fs

	mu    sync.Mutex
	views map[string]View

	// FailMount and FailUnmount inject backend errors per target
	FailMount   map[string]error
	FailUnmount map[string]error

	// Calls records "mount <target>" and "unmount <target>" in order
	Calls []string
}

// New creates a Fake that reads and writes branch files through fs.
func New(fs afero.Fs) *Fake {
	return &Fake{
		fs:          fs,
		views:       map[string]View{},
		FailMount:   map[string]error{},
		FailUnmount: map[string]error{},
	}
}

// Mount implements unionfs.Mounter.
func (f *Fake) Mount(branches []string, writable, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, "mount "+target)
	if err := f.FailMount[target]; err != nil {
		return err
	}
	if _, busy := f.views[target]; busy {
		return &os.PathError{Op: "mount", Path: target, Err: syscall.EBUSY}
	}
	f.views[target] = View{Branches: slices.Clone(branches), Writable: writable}
	return nil
}

// Unmount implements unionfs.Mounter.
func (f *Fake) Unmount(target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, "unmount "+target)
	if err := f.FailUnmount[target]; err != nil {
		return err
	}
	if _, ok := f.views[target]; !ok {
		return &os.PathError{Op: "umount", Path: target, Err: syscall.EINVAL}
	}
	delete(f.views, target)
	return nil
}

// View returns the stack mounted at target.
func (f *Fake) View(target string) (View, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, ok := f.views[target]
	return v, ok
}

// Mounted returns every active target.
func (f *Fake) Mounted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	targets := make([]string, 0, len(f.views))
	for t := range f.views {
		targets = append(targets, t)
	}
	slices.Sort(targets)
	return targets
}

// ReadFile reads name through the mount at target: the writable branch
// first, then the read-only branches from leaf to root.
func (f *Fake) ReadFile(target, name string) ([]byte, error) {
	v, ok := f.View(target)
	if !ok {
		return nil, fmt.Errorf("%s is not mounted", target)
	}

	stack := slices.Clone(v.Branches)
	if v.Writable != "" {
		stack = append(stack, v.Writable)
	}
	for i := len(stack) - 1; i >= 0; i-- {
		data, err := afero.ReadFile(f.fs, filepath.Join(stack[i], name))
		if err == nil {
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	return nil, &os.PathError{Op: "open", Path: filepath.Join(target, name), Err: os.ErrNotExist}
}

// WriteFile writes name through the mount at target. Writes land in the
// writable branch; read-only views reject them with EROFS.
func (f *Fake) WriteFile(target, name string, data []byte) error {
	v, ok := f.View(target)
	if !ok {
		return fmt.Errorf("%s is not mounted", target)
	}
	if v.Writable == "" {
		return &os.PathError{Op: "write", Path: filepath.Join(target, name), Err: syscall.EROFS}
	}

	path := filepath.Join(v.Writable, name)
	if err := f.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return afero.WriteFile(f.fs, path, data, 0644)
}
