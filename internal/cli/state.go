package cli

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var stateFlags struct {
	TargetFlags
	Yes bool
}

// NewStateCommand creates the state command
func NewStateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset the recorded sync state",
		Long:  `Show the sides recorded in the sync state of a repository directory, or remove it.`,
	}

	cmd.AddCommand(newStateShowCommand())
	cmd.AddCommand(newStateResetCommand())

	return cmd
}

func newStateShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the recorded sides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(stateFlags.TargetFlags)
			if err != nil {
				return err
			}
			defer s.close()

			st, err := s.engine.LoadState()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if s.cfg.Output.Format == "json" {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(st)
			}

			fmt.Fprintf(out, "State file: %s\n", s.engine.StatePath())
			fmt.Fprintf(out, "Version:    %d\n", st.Version)
			if !st.UpdatedAt.IsZero() {
				fmt.Fprintf(out, "Updated:    %s\n", st.UpdatedAt.Local().Format(time.RFC3339))
			}
			fmt.Fprintf(out, "\nSides:\n")
			for _, name := range st.SideNames() {
				marker := ""
				if name == s.target.Machine {
					marker = " (this machine)"
				}
				fmt.Fprintf(out, "  %-20s %d files%s\n", name, len(st.Sides[name]), marker)
			}
			return nil
		},
	}
	addTargetFlags(cmd, &stateFlags.TargetFlags)
	return cmd
}

func newStateResetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Remove the sync state",
		Long: `Remove the sync state of a repository directory. The next inspection
records the current trees as synchronized, for every machine.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(stateFlags.TargetFlags)
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.lockRepository(commandContext(cmd)); err != nil {
				return err
			}

			if !stateFlags.Yes {
				ok, err := confirm(cmd, fmt.Sprintf("Remove %s?", s.engine.StatePath()))
				if err != nil || !ok {
					return err
				}
			}

			if err := s.engine.ResetState(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sync state removed: %s\n", s.engine.StatePath())
			return nil
		},
	}
	addTargetFlags(cmd, &stateFlags.TargetFlags)
	cmd.Flags().BoolVarP(&stateFlags.Yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}
