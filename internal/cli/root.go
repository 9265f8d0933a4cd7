package cli

import (
	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	user       string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:   "questlog",
		Short: "Turn journal entries into experience on a skill graph",
		Long: "Questlog reads what you did, maps it onto a growing graph of actions, skills and " +
			"characteristics, and levels up every concept your work touched.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to YAML config (default $QUESTLOG_CONFIG)")
	rootCmd.PersistentFlags().StringVarP(&flags.user, "user", "u", "", "user id to act on (default \"default\")")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newServeCmd(flags))
	rootCmd.AddCommand(newLogCmd(flags))
	rootCmd.AddCommand(newImportCmd(flags))
	rootCmd.AddCommand(newGraphCmd(flags))
	rootCmd.AddCommand(newStatsCmd(flags))
	rootCmd.AddCommand(newClearCmd(flags))
	return rootCmd
}

// Execute runs the questlog command tree.
func Execute() error {
	return newRootCmd().Execute()
}
