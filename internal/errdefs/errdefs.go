// Package errdefs defines the error kinds reported by strata.
//
// Every failure that reaches the CLI wraps exactly one of the sentinel errors
// below, so callers can branch on the kind with errors.Is regardless of how
// much context was added on the way up.
package errdefs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates a reference, layer id, name, or mount point does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyMounted indicates the mount point already has an active mount record.
	ErrAlreadyMounted = errors.New("already mounted")

	// ErrNotMounted indicates the mount point has no active mount record.
	ErrNotMounted = errors.New("not mounted")

	// ErrAmbiguousReference indicates a reference matched more than one layer.
	ErrAmbiguousReference = errors.New("ambiguous reference")

	// ErrNoContextLayer indicates no reference was given and the current
	// directory is not a tracked mount point.
	ErrNoContextLayer = errors.New("no layer given and current directory is not a layer mount")

	// ErrCorruptGraph indicates the persisted parent graph is inconsistent.
	ErrCorruptGraph = errors.New("corrupt layer graph")

	// ErrStoreLocked indicates the home lock could not be acquired in time.
	ErrStoreLocked = errors.New("store locked by another process")

	// ErrMountBackend indicates the union-mount backend failed.
	ErrMountBackend = errors.New("mount backend error")

	// ErrConfirmationDeclined indicates a required confirmation was not given.
	ErrConfirmationDeclined = errors.New("confirmation declined")

	// ErrInvalidReference indicates a reference expression could not be parsed.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrInvalidArgument indicates a malformed name, tag, or path.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAlreadyExists indicates a name or layer id is already taken.
	ErrAlreadyExists = errors.New("already exists")
)

// MountBackendError carries the details of a failed union-mount call.
type MountBackendError struct {
	Op       string
	Target   string
	Branches []string
	Writable string
	Err      error
}

func (e *MountBackendError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Op, e.Target)
	if len(e.Branches) > 0 {
		fmt.Fprintf(&b, " (branches=%s", strings.Join(e.Branches, ":"))
		if e.Writable != "" {
			fmt.Fprintf(&b, " writable=%s", e.Writable)
		}
		b.WriteString(")")
	} else if e.Writable != "" {
		fmt.Fprintf(&b, " (writable=%s)", e.Writable)
	}
	fmt.Fprintf(&b, ": %v: %v", ErrMountBackend, e.Err)
	return b.String()
}

// Unwrap exposes both the kind and the underlying OS error.
func (e *MountBackendError) Unwrap() []error {
	return []error{ErrMountBackend, e.Err}
}

// kinds is ordered by exit code.
var kinds = []error{
	ErrNotFound,
	ErrAlreadyMounted,
	ErrNotMounted,
	ErrAmbiguousReference,
	ErrNoContextLayer,
	ErrCorruptGraph,
	ErrStoreLocked,
	ErrMountBackend,
	ErrConfirmationDeclined,
	ErrInvalidReference,
	ErrInvalidArgument,
	ErrAlreadyExists,
}

// Kind returns the sentinel error err wraps, or nil if it wraps none.
func Kind(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// ExitCode maps an error to a process exit code. Unclassified errors exit 1;
// each kind gets its own code starting at 2.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	for i, k := range kinds {
		if errors.Is(err, k) {
			return i + 2
		}
	}
	return 1
}
