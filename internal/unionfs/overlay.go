package unionfs

import (
	"github.com/sirupsen/logrus"
)

// mountMode is how a branch stack is realized by the kernel.
type mountMode int

const (
	modeBind mountMode = iota
	modeBindReadOnly
	modeOverlay
)

// planKernelMount decides between a plain bind mount and an overlay.
// Overlay needs two lower directories when there is no upper, and at least
// one lower when there is, so the degenerate stacks become bind mounts.
func planKernelMount(branches []string, writable string) (mode mountMode, source string) {
	switch {
	case len(branches) == 0:
		return modeBind, writable
	case writable == "" && len(branches) == 1:
		return modeBindReadOnly, branches[0]
	}
	return modeOverlay, "overlay"
}

// Overlay mounts with the kernel overlay filesystem. It needs CAP_SYS_ADMIN.
type Overlay struct {
	log logrus.FieldLogger
	sys kernel
}

// kernel is the mount(2)/umount2(2) pair, swappable in tests.
type kernel interface {
	mount(source, target, fstype string, flags uintptr, data string) error
	unmount(target string) error
}

// NewOverlay creates the kernel overlay backend.
func NewOverlay(log logrus.FieldLogger) *Overlay {
	return &Overlay{log: log, sys: hostKernel{}}
}

// Mount implements Mounter.
func (o *Overlay) Mount(branches []string, writable, target string) error {
	if err := checkPaths(branches, writable, target); err != nil {
		return err
	}

	mode, source := planKernelMount(branches, writable)
	switch mode {
	case modeBind:
		o.log.WithField("target", target).Debugf("bind mounting %s", source)
		return o.sys.mount(source, target, "", flagBind, "")

	case modeBindReadOnly:
		o.log.WithField("target", target).Debugf("read-only bind mounting %s", source)
		if err := o.sys.mount(source, target, "", flagBind, ""); err != nil {
			return err
		}
		if err := o.sys.mount("", target, "", flagBind|flagRemount|flagReadOnly, ""); err != nil {
			_ = o.sys.unmount(target)
			return err
		}
		return nil
	}

	opts := overlayOptions(branches, writable)
	o.log.WithField("target", target).Debugf("mounting overlay %s", opts)
	var flags uintptr
	if writable == "" {
		flags = flagReadOnly
	}
	return o.sys.mount(source, target, "overlay", flags, opts)
}

// Unmount implements Mounter.
func (o *Overlay) Unmount(target string) error {
	o.log.WithField("target", target).Debug("unmounting")
	return o.sys.unmount(target)
}
