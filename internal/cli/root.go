package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	jsonOutput bool

	// Colors for help output sections
	groupTitleColor   = color.New(color.FgCyan, color.Bold)
	sectionTitleColor = color.New(color.FgBlue, color.Bold)
)

// rootCmd is the root command for strata.
var rootCmd = &cobra.Command{
	Use:     "strata",
	Version: "dev",
	Short:   "Branchable layered filesystem manager",
	Long: `strata manages trees of filesystem layers and mounts them as union views.

Each layer stores only what changed relative to its parent. Mounting a layer
stacks its ancestors read-only underneath it; branching a layer creates a new
child with its own private writable overlay.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSession(cmd)
		if err != nil {
			return err
		}
		current = s
		return nil
	},
}

func SetVersion(v string) {
	if v == "" {
		return
	}
	rootCmd.Version = v
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

// customHelpFunc returns a custom help function that colors group titles
func customHelpFunc(cmd *cobra.Command, args []string) {
	var help strings.Builder

	if cmd.Long != "" {
		help.WriteString(cmd.Long)
		help.WriteString("\n\n")
	} else if cmd.Short != "" {
		help.WriteString(cmd.Short)
		help.WriteString("\n\n")
	}

	help.WriteString(sectionTitleColor.Sprint("Usage:"))
	help.WriteString("\n")
	fmt.Fprintf(&help, "  %s\n\n", cmd.UseLine())

	if len(cmd.Aliases) > 0 {
		help.WriteString(sectionTitleColor.Sprint("Aliases:"))
		help.WriteString("\n")
		fmt.Fprintf(&help, "  %s\n\n", strings.Join(cmd.Aliases, ", "))
	}

	for _, group := range cmd.Groups() {
		help.WriteString(groupTitleColor.Sprint(group.Title))
		help.WriteString("\n")

		for _, c := range cmd.Commands() {
			if c.GroupID == group.ID && !c.Hidden {
				fmt.Fprintf(&help, "  %-17s %s\n", c.Name(), c.Short)
			}
		}
		help.WriteString("\n")
	}

	hasUngrouped := false
	for _, c := range cmd.Commands() {
		if c.GroupID == "" && !c.Hidden {
			if !hasUngrouped {
				help.WriteString(sectionTitleColor.Sprint("Additional Commands:"))
				help.WriteString("\n")
				hasUngrouped = true
			}
			fmt.Fprintf(&help, "  %-17s %s\n", c.Name(), c.Short)
		}
	}
	if hasUngrouped {
		help.WriteString("\n")
	}

	if cmd.HasAvailableLocalFlags() || cmd.HasAvailablePersistentFlags() {
		help.WriteString(sectionTitleColor.Sprint("Flags:"))
		help.WriteString("\n")
		help.WriteString(cmd.LocalFlags().FlagUsages())
		help.WriteString(cmd.InheritedFlags().FlagUsages())
		help.WriteString("\n")
	}

	fmt.Fprintf(&help, "Use \"%s [command] --help\" for more information about a command.\n", cmd.CommandPath())

	fmt.Fprint(cmd.OutOrStdout(), help.String())
}

func init() {
	rootCmd.SetHelpFunc(customHelpFunc)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	flags.String("home", "", "Home directory holding the layers (default ~/.strata)")
	flags.StringP("verbosity", "V", "", "Log level: a logrus level name or a number from 0 (panic) to 6 (trace)")
	flags.String("config", "", "Config file (default $XDG_CONFIG_HOME/strata/config.yaml)")

	rootCmd.AddGroup(&cobra.Group{
		ID:    "layer-lifecycle",
		Title: "Layer Lifecycle:",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "mounts",
		Title: "Mounts:",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "metadata",
		Title: "Layer Metadata:",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "queries",
		Title: "Queries:",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "cli-tooling",
		Title: "CLI & Tooling:",
	})

	// CLI & Tooling commands
	versionCmd := &cobra.Command{
		Use:     "version",
		Short:   "Print the strata CLI version",
		Args:    cobra.NoArgs,
		GroupID: "cli-tooling",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), rootCmd.Version)
		},
	}
	rootCmd.AddCommand(versionCmd)

	helpCmd := &cobra.Command{
		Use:     "help [command]",
		Short:   "Help about any command",
		GroupID: "cli-tooling",
		Run: func(cmd *cobra.Command, args []string) {
			target, _, err := cmd.Root().Find(args)
			if err != nil || target == nil {
				target = cmd.Root()
			}
			_ = target.Help()
		},
	}
	rootCmd.SetHelpCommand(helpCmd)

	completionCmd := &cobra.Command{
		Use:     "completion",
		Short:   "Generate the autocompletion script for the specified shell",
		GroupID: "cli-tooling",
		Long: `Generate the autocompletion script for strata for the specified shell.
See each sub-command's help for details on how to use the generated script.`,
	}
	completionCmd.AddCommand(&cobra.Command{
		Use:                   "bash",
		Short:                 "Generate the autocompletion script for bash",
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.GenBashCompletion(cmd.OutOrStdout())
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:                   "zsh",
		Short:                 "Generate the autocompletion script for zsh",
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.GenZshCompletion(cmd.OutOrStdout())
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:                   "fish",
		Short:                 "Generate the autocompletion script for fish",
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.GenFishCompletion(cmd.OutOrStdout(), true)
		},
	})
	rootCmd.AddCommand(completionCmd)

	// Layer Lifecycle commands
	createCmd.GroupID = "layer-lifecycle"
	branchAndMountCmd.GroupID = "layer-lifecycle"
	deleteCmd.GroupID = "layer-lifecycle"
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(branchAndMountCmd)
	rootCmd.AddCommand(deleteCmd)

	// Mount commands
	mountCmd.GroupID = "mounts"
	unmountCmd.GroupID = "mounts"
	unmountAllCmd.GroupID = "mounts"
	findMountsCmd.GroupID = "mounts"
	rootCmd.AddCommand(mountCmd)
	rootCmd.AddCommand(unmountCmd)
	rootCmd.AddCommand(unmountAllCmd)
	rootCmd.AddCommand(findMountsCmd)

	// Metadata commands
	descriptionCmd.GroupID = "metadata"
	tagsCmd.GroupID = "metadata"
	addTagsCmd.GroupID = "metadata"
	removeTagsCmd.GroupID = "metadata"
	rootCmd.AddCommand(descriptionCmd)
	rootCmd.AddCommand(tagsCmd)
	rootCmd.AddCommand(addTagsCmd)
	rootCmd.AddCommand(removeTagsCmd)

	// Query commands
	infoCmd.GroupID = "queries"
	resolveCmd.GroupID = "queries"
	listHomeLayersCmd.GroupID = "queries"
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(listHomeLayersCmd)
}

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}
