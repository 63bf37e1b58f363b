//go:build linux

package unionfs

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	flagBind     = unix.MS_BIND
	flagRemount  = unix.MS_REMOUNT
	flagReadOnly = unix.MS_RDONLY
)

type hostKernel struct{}

func (hostKernel) mount(source, target, fstype string, flags uintptr, data string) error {
	err := unix.Mount(source, target, fstype, flags, data)
	if errors.Is(err, unix.EPERM) {
		return fmt.Errorf("%w (kernel overlay mounts need root; try mount_backend=%s)", err, BackendFuseOverlay)
	}
	return err
}

func (hostKernel) unmount(target string) error {
	return unix.Unmount(target, 0)
}
