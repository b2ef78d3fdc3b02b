package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sdejongh/reposync/pkg/output"
	"github.com/sdejongh/reposync/pkg/sync"
)

var inspectFlags TargetFlags

// NewInspectCommand creates the inspect command
func NewInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show what changed since the last synchronization",
		Long: `Scan the repository directory and the source of this machine, compare
both against the recorded sync state and print the proposed actions.
Nothing is copied or deleted. On the very first run the current trees are
recorded as synchronized.`,
		Args: cobra.NoArgs,
		RunE: runInspect,
	}

	addTargetFlags(cmd, &inspectFlags)

	return cmd
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	s, err := openSession(inspectFlags)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.lockRepository(ctx); err != nil {
		return err
	}

	ins, err := s.engine.Inspect(ctx)
	s.finishProgress()
	if err != nil {
		return fmt.Errorf("inspection failed: %w", err)
	}

	return s.formatter.Plan(cmd.OutOrStdout(), planFor(s, ins))
}

// planFor builds the printable plan of an inspection
func planFor(s *session, ins *sync.Inspection) *output.Plan {
	return &output.Plan{
		RepoPath:     s.target.Repo,
		SourcePath:   s.target.Source,
		Machine:      s.target.Machine,
		Bootstrapped: ins.Bootstrapped,
		KnownMachine: ins.KnownMachine,
		Repo:         ins.Repo,
		Source:       ins.Source,
		ChangeSet:    ins.ChangeSet,
	}
}
