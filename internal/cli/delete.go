package cli

import (
	"bufio"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/strata/internal/engine"
	"github.com/danieljhkim/strata/internal/errdefs"
)

var deleteNoPrompt bool

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a layer and all its descendants",
	Long: `Delete a layer permanently, together with every layer below it.

You'll be asked to confirm before anything is removed:
  - If the layer or a descendant is mounted, it must be unmounted first;
    confirming unmounts it
  - The final prompt states how many descendants will be deleted

Use --no-prompt to answer yes to both. If the tree changes between the prompt
and the delete, nothing is deleted.`,
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

		plan, err := eng.PlanDelete(cmd.Context(), ref)
		if err != nil {
			return err
		}

		confirm := engine.Confirmation{
			Mounted:     plan.NeedsMountedConfirmation(),
			Descendants: plan.DescendantCount,
		}
		if !deleteNoPrompt {
			confirm, err = promptDelete(cmd, plan)
			if err != nil {
				return err
			}
		}

		result, err := eng.Delete(cmd.Context(), &engine.DeleteRequest{LayerRef: ref, Confirm: confirm})
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), result)
		}

		w := cmd.OutOrStdout()
		for _, mp := range result.Unmounted {
			printInfo(w, fmt.Sprintf("Unmounted %s", mp))
		}
		printSuccess(w, fmt.Sprintf("Deleted layer %s and %s",
			plan.Target.ID, countOf(len(result.Deleted)-1, "descendant", "descendants")))
		return nil
	},
}

// promptDelete asks the delete questions on stderr, keeping stdout clean
// for --json, and returns the answers. Declining either prompt aborts.
func promptDelete(cmd *cobra.Command, plan *engine.DeletePlan) (engine.Confirmation, error) {
	w := cmd.ErrOrStderr()
	r := bufio.NewReader(cmd.InOrStdin())
	id := plan.Target.ShortID()
	var confirm engine.Confirmation

	if plan.NeedsDescendantConfirmation() {
		printWarning(w, fmt.Sprintf("This layer has %s and %s in total.",
			countOf(len(plan.DirectChildren), "direct child", "direct children"),
			countOf(plan.DescendantCount, "descendant", "descendants")))
	}

	if plan.NeedsMountedConfirmation() {
		printWarning(w, fmt.Sprintf("Layer %s or its descendants are currently mounted at:", id))
		mps := make([]string, 0, len(plan.Mounts))
		for _, rec := range plan.Mounts {
			mps = append(mps, rec.MountPoint)
		}
		printList(w, mps, 1)
		if !promptConfirm(w, r, "Must unmount first. Continue?") {
			return confirm, fmt.Errorf("%w: layer %s is still mounted", errdefs.ErrConfirmationDeclined, id)
		}
		confirm.Mounted = true
	}

	question := fmt.Sprintf("This will irreversibly delete %s and all %s. Continue?",
		id, countOf(plan.DescendantCount, "descendant", "descendants"))
	if !promptConfirm(w, r, warningColor.Sprint(question)) {
		return confirm, fmt.Errorf("%w: deletion of layer %s cancelled", errdefs.ErrConfirmationDeclined, id)
	}
	confirm.Descendants = plan.DescendantCount
	return confirm, nil
}

func init() {
	addLayerFlag(deleteCmd)
	deleteCmd.Flags().BoolVar(&deleteNoPrompt, "no-prompt", false, "Confirm every prompt without asking")
}
