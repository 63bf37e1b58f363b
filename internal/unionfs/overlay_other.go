//go:build !linux

package unionfs

import (
	"fmt"
	"runtime"

	"github.com/danieljhkim/strata/internal/errdefs"
)

const (
	flagBind     = 1 << 0
	flagRemount  = 1 << 1
	flagReadOnly = 1 << 2
)

type hostKernel struct{}

func (hostKernel) mount(source, target, fstype string, flags uintptr, data string) error {
	return fmt.Errorf("%w: kernel overlay mounts are not supported on %s", errdefs.ErrInvalidArgument, runtime.GOOS)
}

func (hostKernel) unmount(target string) error {
	return fmt.Errorf("%w: kernel overlay mounts are not supported on %s", errdefs.ErrInvalidArgument, runtime.GOOS)
}
