package cli

import (
	"github.com/spf13/cobra"
)

// GlobalFlags holds global flag values
type GlobalFlags struct {
	ConfigFile string
	Verbose    bool
	Quiet      bool
	Output     string
}

var globalFlags GlobalFlags

// AddGlobalFlags adds global flags to the root command
func AddGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(
		&globalFlags.ConfigFile,
		"config",
		"",
		"config file (default is $HOME/.config/reposync/config.yaml)",
	)
	cmd.PersistentFlags().BoolVarP(
		&globalFlags.Verbose,
		"verbose",
		"v",
		false,
		"verbose output",
	)
	cmd.PersistentFlags().BoolVarP(
		&globalFlags.Quiet,
		"quiet",
		"q",
		false,
		"suppress non-error output",
	)
	cmd.PersistentFlags().StringVarP(
		&globalFlags.Output,
		"output",
		"o",
		"",
		"output format: human, json (default from config)",
	)
}

// GetGlobalFlags returns the global flags
func GetGlobalFlags() *GlobalFlags {
	return &globalFlags
}

// TargetFlags select the repository directory and source a command works on
type TargetFlags struct {
	Repo      string
	Source    string
	Machine   string
	Directory string
}

// addTargetFlags registers the target selection flags on cmd
func addTargetFlags(cmd *cobra.Command, f *TargetFlags) {
	cmd.Flags().StringVarP(&f.Repo, "repo", "r", "", "repository directory (overrides the configured directory)")
	cmd.Flags().StringVarP(&f.Source, "source", "s", "", "source directory on this machine")
	cmd.Flags().StringVarP(&f.Machine, "machine", "m", "", "machine name (default from config, then host name)")
	cmd.Flags().StringVarP(&f.Directory, "directory", "d", "", "configured repository directory to use")
}
