package cli

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/danieljhkim/strata/internal/engine"
	"github.com/danieljhkim/strata/internal/mounts"
)

var mountCmd = &cobra.Command{
	Use:   "mount <mount-point>",
	Short: "Mount a layer",
	Long: `Mount a layer at an existing, empty directory.

A leaf layer that is not already mounted writable elsewhere is mounted
read-write. Layers with children, and leaves that already have a writable
mount, are mounted read-only.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}
		ref, err := layerRef(cmd)
		if err != nil {
			return err
		}

		result, err := eng.Mount(cmd.Context(), &engine.MountRequest{LayerRef: ref, MountPoint: args[0]})
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), result)
		}
		rec := result.Record
		printSuccess(cmd.OutOrStdout(), fmt.Sprintf("Mounted layer %s at %s (%s)", rec.LayerID, rec.MountPoint, permission(*rec)))
		return nil
	},
}

var unmountCmd = &cobra.Command{
	Use:   "unmount <mount-point>",
	Short: "Unmount a single mount point",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}

		rec, err := eng.Unmount(cmd.Context(), &engine.UnmountRequest{CWD: cwd, MountPoint: args[0]})
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), rec)
		}
		printSuccess(cmd.OutOrStdout(), fmt.Sprintf("Unmounted layer %s from %s", rec.LayerID, rec.MountPoint))
		return nil
	},
}

var unmountAllCmd = &cobra.Command{
	Use:     "unmount-all",
	Aliases: []string{"unmount_all"},
	Short:   "Unmount every use of a layer",
	Long: `Unmount every mount point of the layer. Each mount point is attempted even
if an earlier one fails; running it again on an unmounted layer does nothing.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}
		ref, err := layerRef(cmd)
		if err != nil {
			return err
		}

		result, err := eng.UnmountAll(cmd.Context(), ref)
		if result == nil {
			return err
		}

		if jsonOutput {
			if encErr := outputJSON(cmd.OutOrStdout(), result); encErr != nil {
				return errors.Join(err, encErr)
			}
			return err
		}

		w := cmd.OutOrStdout()
		if len(result.Unmounted) == 0 && len(result.Failed) == 0 {
			printEmptyState(w, fmt.Sprintf("Layer %s is not mounted", result.LayerID))
			return nil
		}
		for _, mp := range result.Unmounted {
			printSuccess(w, fmt.Sprintf("Unmounted %s", mp))
		}
		for _, mp := range slices.Sorted(maps.Keys(result.Failed)) {
			printWarning(cmd.ErrOrStderr(), fmt.Sprintf("Failed to unmount %s: %s", mp, result.Failed[mp]))
		}
		return err
	},
}

var findMountsCmd = &cobra.Command{
	Use:     "find-mounts",
	Aliases: []string{"find_mounts"},
	Short:   "Find where a layer is mounted",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}
		ref, err := layerRef(cmd)
		if err != nil {
			return err
		}

		recs, err := eng.FindMounts(cmd.Context(), ref)
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), recs)
		}

		w := cmd.OutOrStdout()
		for _, rec := range recs {
			_, _ = fmt.Fprintf(w, "%s=%s at %s ", layerBranch(rec), permission(rec), rec.MountPoint)
			_, _ = dimColor.Fprintf(w, "(mounted %s)\n", humanize.Time(rec.MountedAt))
		}
		return nil
	},
}

// permission is "rw" for a mount with a writable branch and "ro" otherwise.
func permission(rec mounts.Record) string {
	if rec.ReadOnly() {
		return "ro"
	}
	return "rw"
}

// layerBranch is the branch of the mounted layer itself: the writable
// overlay, or the top read-only branch of a read-only view.
func layerBranch(rec mounts.Record) string {
	if !rec.ReadOnly() {
		return rec.WritableOverlay
	}
	if len(rec.Branches) == 0 {
		return ""
	}
	return rec.Branches[len(rec.Branches)-1]
}

func init() {
	addLayerFlag(mountCmd)
	addLayerFlag(unmountAllCmd)
	addLayerFlag(findMountsCmd)
}
