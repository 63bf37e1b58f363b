// Package mounts tracks which layers are mounted where.
//
// The tracker is the only writer of <home>/mounts.json. Every change goes
// through the union-mount backend first and is recorded only when the backend
// succeeds, so the index never claims a mount that does not exist. The index
// is re-read at the start of every operation; callers hold the home lock.
package mounts

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/danieljhkim/strata/internal/clock"
	"github.com/danieljhkim/strata/internal/errdefs"
	"github.com/danieljhkim/strata/internal/fsops"
	"github.com/danieljhkim/strata/internal/unionfs"
)

// SchemaVersion is written into mounts.json.
const SchemaVersion = 1

// Record is one active mount.
type Record struct {
	LayerID    string `json:"layerId"`
	MountPoint string `json:"mountPoint"`

	// WritableOverlay is the branch receiving writes, empty for read-only views
	WritableOverlay string `json:"writableOverlay,omitempty"`

	// Branches are the read-only branches, root-to-leaf
	Branches []string `json:"branches"`

	MountedAt time.Time `json:"mountedAt"`
}

// ReadOnly reports whether the mount has no writable branch.
func (r Record) ReadOnly() bool {
	return r.WritableOverlay == ""
}

type index struct {
	SchemaVersion int      `json:"schemaVersion"`
	Mounts        []Record `json:"mounts"`
}

// Tracker owns the mount index and drives the backend.
type Tracker struct {
	fs      fsops.FS
	path    string
	backend unionfs.Mounter
	clock   clock.Clock
	log     logrus.FieldLogger
}

// NewTracker creates a tracker persisting to path.
func NewTracker(fs fsops.FS, path string, backend unionfs.Mounter, clk clock.Clock, log logrus.FieldLogger) *Tracker {
	return &Tracker{
		fs:      fs,
		path:    path,
		backend: backend,
		clock:   clk,
		log:     log,
	}
}

// Mount mounts branches plus an optional writable overlay at mountPoint and
// records the result. Nothing is recorded if the backend fails.
func (t *Tracker) Mount(layerID string, branches []string, writable, mountPoint string) (*Record, error) {
	mountPoint, err := normalize(mountPoint)
	if err != nil {
		return nil, err
	}

	records, err := t.load()
	if err != nil {
		return nil, err
	}
	if i := indexOf(records, mountPoint); i >= 0 {
		return nil, fmt.Errorf("%w: %s (layer %s)", errdefs.ErrAlreadyMounted, mountPoint, records[i].LayerID)
	}

	log := t.log.WithFields(logrus.Fields{"layer": layerID, "mountPoint": mountPoint})
	if err := t.backend.Mount(branches, writable, mountPoint); err != nil {
		log.WithError(err).Warn("mount failed")
		return nil, &errdefs.MountBackendError{
			Op:       "mount",
			Target:   mountPoint,
			Branches: branches,
			Writable: writable,
			Err:      err,
		}
	}

	rec := Record{
		LayerID:         layerID,
		MountPoint:      mountPoint,
		WritableOverlay: writable,
		Branches:        slices.Clone(branches),
		MountedAt:       t.clock.Now(),
	}
	if rec.Branches == nil {
		rec.Branches = []string{}
	}

	if err := t.save(append(records, rec)); err != nil {
		// An unrecorded mount would be invisible to every other command
		if uerr := t.backend.Unmount(mountPoint); uerr != nil {
			log.WithError(uerr).Error("failed to roll back unrecorded mount")
		}
		return nil, err
	}

	log.WithField("writable", writable != "").Info("mounted")
	return &rec, nil
}

// Unmount detaches mountPoint and drops its record. The record stays if the
// backend fails.
func (t *Tracker) Unmount(mountPoint string) (*Record, error) {
	mountPoint, err := normalize(mountPoint)
	if err != nil {
		return nil, err
	}

	records, err := t.load()
	if err != nil {
		return nil, err
	}
	i := indexOf(records, mountPoint)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", errdefs.ErrNotMounted, mountPoint)
	}
	rec := records[i]

	if err := t.unmountRecord(rec); err != nil {
		return nil, err
	}

	if err := t.saveAfterUnmount(slices.Delete(records, i, i+1), rec.MountPoint); err != nil {
		return nil, err
	}
	return &rec, nil
}

// saveAfterUnmount persists records once mountPoints are already detached.
// The write is retried once; if it still fails the index keeps listing mount
// points that are gone, which is logged so it can be repaired by hand.
func (t *Tracker) saveAfterUnmount(records []Record, mountPoints ...string) error {
	err := t.save(records)
	if err == nil {
		return nil
	}
	t.log.WithError(err).Warn("failed to save mount index, retrying")
	if err = t.save(records); err == nil {
		return nil
	}
	t.log.WithError(err).WithField("mountPoints", mountPoints).
		Error("mount index still lists mount points that are no longer mounted")
	return err
}

func (t *Tracker) unmountRecord(rec Record) error {
	log := t.log.WithFields(logrus.Fields{"layer": rec.LayerID, "mountPoint": rec.MountPoint})
	if err := t.backend.Unmount(rec.MountPoint); err != nil {
		log.WithError(err).Warn("unmount failed")
		return &errdefs.MountBackendError{Op: "unmount", Target: rec.MountPoint, Err: err}
	}
	log.Info("unmounted")
	return nil
}

// UnmountReport is the outcome of a batch unmount.
type UnmountReport struct {
	// Unmounted lists the mount points that were detached
	Unmounted []string

	// Failed maps mount points to the backend error that kept them mounted
	Failed map[string]error
}

// Err combines every failure, or returns nil.
func (r *UnmountReport) Err() error {
	var err error
	for _, mp := range slices.Sorted(maps.Keys(r.Failed)) {
		err = multierr.Append(err, r.Failed[mp])
	}
	return err
}

// UnmountAll detaches every mount of layerID. Each mount point is attempted;
// the index is saved once afterwards and reflects exactly the successes.
func (t *Tracker) UnmountAll(layerID string) (*UnmountReport, error) {
	return t.UnmountLayers([]string{layerID})
}

// UnmountLayers detaches every mount of any of layerIDs.
func (t *Tracker) UnmountLayers(layerIDs []string) (*UnmountReport, error) {
	records, err := t.load()
	if err != nil {
		return nil, err
	}

	report := &UnmountReport{Unmounted: []string{}, Failed: map[string]error{}}
	kept := make([]Record, 0, len(records))
	for _, rec := range records {
		if !slices.Contains(layerIDs, rec.LayerID) {
			kept = append(kept, rec)
			continue
		}
		if err := t.unmountRecord(rec); err != nil {
			report.Failed[rec.MountPoint] = err
			kept = append(kept, rec)
			continue
		}
		report.Unmounted = append(report.Unmounted, rec.MountPoint)
	}

	if len(report.Unmounted) > 0 {
		if err := t.saveAfterUnmount(kept, report.Unmounted...); err != nil {
			return report, multierr.Append(report.Err(), err)
		}
	}

	return report, report.Err()
}

// List returns every active record sorted by mount point.
func (t *Tracker) List() ([]Record, error) {
	return t.load()
}

// Find returns the records of layerID sorted by mount point.
func (t *Tracker) Find(layerID string) ([]Record, error) {
	return t.FindLayers([]string{layerID})
}

// FindLayers returns the records of any of layerIDs sorted by mount point.
func (t *Tracker) FindLayers(layerIDs []string) ([]Record, error) {
	records, err := t.load()
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(records, func(r Record) bool {
		return !slices.Contains(layerIDs, r.LayerID)
	}), nil
}

// Lookup returns the record at mountPoint, or ErrNotMounted.
func (t *Tracker) Lookup(mountPoint string) (*Record, error) {
	mountPoint, err := normalize(mountPoint)
	if err != nil {
		return nil, err
	}
	records, err := t.load()
	if err != nil {
		return nil, err
	}
	i := indexOf(records, mountPoint)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", errdefs.ErrNotMounted, mountPoint)
	}
	return &records[i], nil
}

// Enclosing returns the record whose mount point is path or the nearest
// directory above it. It returns nil when path is not under any mount.
func (t *Tracker) Enclosing(path string) (*Record, error) {
	path, err := normalize(path)
	if err != nil {
		return nil, err
	}
	records, err := t.load()
	if err != nil {
		return nil, err
	}

	var best *Record
	for i := range records {
		mp := records[i].MountPoint
		if !within(path, mp) {
			continue
		}
		if best == nil || len(mp) > len(best.MountPoint) {
			best = &records[i]
		}
	}
	return best, nil
}

func within(path, dir string) bool {
	if path == dir {
		return true
	}
	if dir == string(filepath.Separator) {
		return true
	}
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}

func (t *Tracker) load() ([]Record, error) {
	data, err := t.fs.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("failed to read mount index: %w", err)
	}

	var idx index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal mount index: %v", errdefs.ErrCorruptGraph, err)
	}
	if idx.Mounts == nil {
		idx.Mounts = []Record{}
	}
	sortRecords(idx.Mounts)
	return idx.Mounts, nil
}

func (t *Tracker) save(records []Record) error {
	sortRecords(records)
	idx := index{SchemaVersion: SchemaVersion, Mounts: records}
	if idx.Mounts == nil {
		idx.Mounts = []Record{}
	}

	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal mount index: %w", err)
	}
	if err := t.fs.AtomicWrite(t.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write mount index: %w", err)
	}
	return nil
}

func sortRecords(records []Record) {
	slices.SortFunc(records, func(a, b Record) int {
		return strings.Compare(a.MountPoint, b.MountPoint)
	})
}

func indexOf(records []Record, mountPoint string) int {
	return slices.IndexFunc(records, func(r Record) bool {
		return r.MountPoint == mountPoint
	})
}

// normalize cleans an absolute mount point. Relative paths are the caller's
// job to resolve against its working directory.
func normalize(mountPoint string) (string, error) {
	if !filepath.IsAbs(mountPoint) {
		return "", fmt.Errorf("%w: mount point %q is not absolute", errdefs.ErrInvalidArgument, mountPoint)
	}
	return filepath.Clean(mountPoint), nil
}

