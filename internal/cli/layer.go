package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/strata/internal/engine"
)

var (
	createParent      string
	createDescription string
)

var createCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a new layer",
	Long: `Create a new layer.

Without --parent the layer starts a new tree. A name registers the layer in
the home name index so it can be referenced as NAME or NAME:<suffix>.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}

		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}

		req := &engine.CreateRequest{
			Parent: createParent,
			CWD:    cwd,
		}
		if len(args) == 1 {
			req.Name = args[0]
		}
		if cmd.Flags().Changed("description") {
			req.Description = &createDescription
		}

		result, err := eng.Create(cmd.Context(), req)
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), result)
		}

		w := cmd.OutOrStdout()
		for _, f := range result.Frozen {
			printWarning(w, fmt.Sprintf("Moved writable mount %s to new layer %s", f.MountPoint, f.NewLayerID))
		}
		printSuccess(w, fmt.Sprintf("Created layer %s", result.Layer.ID))
		if result.Name != "" {
			printLabelValue(w, "Name", result.Name)
		}
		if result.Layer.Parent != "" {
			printLabelValue(w, "Parent", result.Layer.Parent)
		}
		return nil
	},
}

var branchAndMountDescription string

var branchAndMountCmd = &cobra.Command{
	Use:     "branch-and-mount <mount-point>",
	Aliases: []string{"branch_and_mount"},
	Short:   "Branch a layer and mount the new child",
	Long: `Create a new child of the layer and mount it at the mount point.

The child gets its own writable overlay on top of the layer's read-only
history, so branches of the same layer never see each other's writes. Writable
mounts of the branched layer itself are first moved onto fresh children of
their own, after which the branched layer is immutable.`,
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

		req := &engine.BranchAndMountRequest{
			LayerRef:   ref,
			MountPoint: args[0],
		}
		if cmd.Flags().Changed("description") {
			req.Description = &branchAndMountDescription
		}

		result, err := eng.BranchAndMount(cmd.Context(), req)
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), result)
		}

		w := cmd.OutOrStdout()
		for _, f := range result.Frozen {
			printWarning(w, fmt.Sprintf("Moved writable mount %s to new layer %s", f.MountPoint, f.NewLayerID))
		}
		printSuccess(w, fmt.Sprintf("Branched layer %s at %s", result.Child.ID, result.Record.MountPoint))
		printLabelValue(w, "Parent", result.Source)
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the tree a layer belongs to",
	Long: `Show the whole tree containing the layer, depth-first from its root,
with the layer itself marked.`,
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

		info, err := eng.Info(cmd.Context(), ref)
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), info)
		}

		printTree(cmd.OutOrStdout(), info.Tree)
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Print the full id of a layer reference",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}
		ref, err := layerRef(cmd)
		if err != nil {
			return err
		}

		layer, err := eng.Resolve(cmd.Context(), ref)
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), layer)
		}
		printInfo(cmd.OutOrStdout(), layer.ID)
		return nil
	},
}

func init() {
	createCmd.Flags().StringVarP(&createParent, "parent", "p", "", "Parent layer reference (default: new root)")
	createCmd.Flags().StringVar(&createDescription, "description", "", "Description of the new layer")

	addLayerFlag(branchAndMountCmd)
	branchAndMountCmd.Flags().StringVar(&branchAndMountDescription, "description", "", "Description of the new child")

	addLayerFlag(infoCmd)
	addLayerFlag(resolveCmd)
}
