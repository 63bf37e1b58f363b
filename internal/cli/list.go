package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

var listHomeLayersCmd = &cobra.Command{
	Use:     "list-home-layers",
	Aliases: []string{"list_home_layers", "ls"},
	Short:   "List the named layers of the home directory",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}

		layers, err := eng.ListHomeLayers(cmd.Context())
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), layers)
		}

		w := cmd.OutOrStdout()
		if len(layers) == 0 {
			printEmptyState(w, "No named layers. Create one with 'strata create NAME'.")
			return nil
		}

		rows := make([][]string, 0, len(layers))
		for _, l := range layers {
			desc := ""
			if l.Description != nil {
				desc = *l.Description
			}
			rows = append(rows, []string{
				l.Name,
				l.LayerID,
				strconv.Itoa(l.Mounted),
				strconv.Itoa(l.Descendants),
				desc,
			})
		}
		printTable(w, []string{"NAME", "LAYER", "MOUNTS", "DESCENDANTS", "DESCRIPTION"}, rows)
		return nil
	},
}
