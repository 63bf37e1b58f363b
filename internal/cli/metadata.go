package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/strata/internal/engine"
	"github.com/danieljhkim/strata/internal/registry"
)

var descriptionUnset bool

var descriptionCmd = &cobra.Command{
	Use:   "description [text]",
	Short: "Get or set a layer description",
	Long: `Print the layer description, or set it when text is given.

An empty string is a valid description and is different from having none;
use --unset to remove the description.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if descriptionUnset && len(args) > 0 {
			return fmt.Errorf("cannot combine a description with --unset")
		}

		eng, err := newEngine()
		if err != nil {
			return err
		}
		ref, err := layerRef(cmd)
		if err != nil {
			return err
		}

		var layer *registry.Layer
		switch {
		case descriptionUnset:
			layer, err = eng.ClearDescription(cmd.Context(), ref)
		case len(args) == 1:
			layer, err = eng.SetDescription(cmd.Context(), &engine.SetDescriptionRequest{LayerRef: ref, Text: args[0]})
		default:
			desc, err := eng.Description(cmd.Context(), ref)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(cmd.OutOrStdout(), map[string]any{"description": desc})
			}
			if desc != nil {
				printInfo(cmd.OutOrStdout(), *desc)
			}
			return nil
		}
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), layer)
		}
		printSuccess(cmd.OutOrStdout(), fmt.Sprintf("Updated description of layer %s", layer.ShortID()))
		return nil
	},
}

var tagsCmd = &cobra.Command{
	Use:   "tags [tag...]",
	Short: "Get or set layer tags",
	Long:  `Print the layer's tags, or replace them with the given set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}
		ref, err := layerRef(cmd)
		if err != nil {
			return err
		}

		if len(args) == 0 {
			tags, err := eng.Tags(cmd.Context(), ref)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(cmd.OutOrStdout(), map[string]any{"tags": tags})
			}
			if len(tags) > 0 {
				printInfo(cmd.OutOrStdout(), strings.Join(tags, ", "))
			}
			return nil
		}

		layer, err := eng.SetTags(cmd.Context(), &engine.TagsRequest{LayerRef: ref, Tags: args})
		return reportTags(cmd, layer, err)
	},
}

var addTagsCmd = &cobra.Command{
	Use:     "add-tags <tag>...",
	Aliases: []string{"add_tags"},
	Short:   "Add tags to a layer",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}
		ref, err := layerRef(cmd)
		if err != nil {
			return err
		}

		layer, err := eng.AddTags(cmd.Context(), &engine.TagsRequest{LayerRef: ref, Tags: args})
		return reportTags(cmd, layer, err)
	},
}

var removeTagsCmd = &cobra.Command{
	Use:     "remove-tags <tag>...",
	Aliases: []string{"remove_tags"},
	Short:   "Remove tags from a layer",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}
		ref, err := layerRef(cmd)
		if err != nil {
			return err
		}

		layer, err := eng.RemoveTags(cmd.Context(), &engine.TagsRequest{LayerRef: ref, Tags: args})
		return reportTags(cmd, layer, err)
	},
}

// reportTags prints the tag set after a tag update.
func reportTags(cmd *cobra.Command, layer *registry.Layer, err error) error {
	if err != nil {
		return err
	}
	if jsonOutput {
		return outputJSON(cmd.OutOrStdout(), layer)
	}

	w := cmd.OutOrStdout()
	printSuccess(w, fmt.Sprintf("Updated tags of layer %s", layer.ShortID()))
	if len(layer.Tags) == 0 {
		printEmptyState(w, "No tags")
		return nil
	}
	printList(w, layer.Tags, 1)
	return nil
}

func init() {
	addLayerFlag(descriptionCmd)
	descriptionCmd.Flags().BoolVar(&descriptionUnset, "unset", false, "Remove the description")

	addLayerFlag(tagsCmd)
	addLayerFlag(addTagsCmd)
	addLayerFlag(removeTagsCmd)
}
