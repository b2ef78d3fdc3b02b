package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sdejongh/reposync/pkg/logging"
	"github.com/sdejongh/reposync/pkg/models"
	"github.com/sdejongh/reposync/pkg/reconcile"
)

// SyncFlags holds sync command flags
type SyncFlags struct {
	TargetFlags
	Set    []string
	DryRun bool
	Yes    bool
}

var syncFlags SyncFlags

// NewSyncCommand creates the sync command
func NewSyncCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize the repository directory with this machine",
		Long: `Inspect the repository directory and the source of this machine, then
apply the proposed copies and deletions after confirmation.

Conflicts are never resolved automatically. Use --set to choose an
operation for a path, for instance:

  reposync sync --set docs/plan.md=UseSource --set old.txt=NoOp

Operations: UseRepo, UseSource, DeleteRepo, DeleteSource, NoOp.
The sync state is only updated when every action succeeded.`,
		Args: cobra.NoArgs,
		RunE: runSync,
	}

	addTargetFlags(cmd, &syncFlags.TargetFlags)
	cmd.Flags().StringArrayVar(&syncFlags.Set, "set", nil, "override the operation of a path (path=Operation, repeatable)")
	cmd.Flags().BoolVar(&syncFlags.DryRun, "dry-run", false, "print the plan without applying it")
	cmd.Flags().BoolVarP(&syncFlags.Yes, "yes", "y", false, "apply without asking for confirmation")

	return cmd
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	overrides, err := parseOverrides(syncFlags.Set)
	if err != nil {
		return err
	}

	s, err := openSession(syncFlags.TargetFlags)
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

	ins.ChangeSet.OnEdit(func(edited []reconcile.Elem) {
		for _, e := range edited {
			s.logger.Info(ctx, "operation changed", logging.Fields{"path": e.Path, "op": e.Operation})
		}
	})
	for _, o := range overrides {
		if s.engine.Excluded(o.Path) {
			return &models.ValidationError{Field: "set", Message: fmt.Sprintf("%s is excluded from synchronization", o.Path)}
		}
		if err := ins.ChangeSet.SetOperation(o.Path, o.Op); err != nil {
			return err
		}
	}
	ins.ChangeSet.NotifyEdits()

	out := cmd.OutOrStdout()
	if err := s.formatter.Plan(out, planFor(s, ins)); err != nil {
		return err
	}

	if syncFlags.DryRun || !ins.ChangeSet.HasActions() {
		return nil
	}

	if !syncFlags.Yes {
		if s.cfg.Output.Format == "json" {
			return &models.ValidationError{Field: "yes", Message: "--yes is required with JSON output"}
		}
		ok, err := confirm(cmd, fmt.Sprintf("Apply %d actions?", ins.ChangeSet.Stats().Actions()))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Aborted, nothing was changed.")
			return nil
		}
	}

	report, err := s.engine.Apply(ctx, ins)
	s.finishProgress()
	if report != nil {
		if ferr := s.formatter.Report(out, report); ferr != nil && err == nil {
			err = ferr
		}
	}
	if err != nil {
		return &ExitError{Code: models.StatusFailed.ExitCode(), Err: fmt.Errorf("sync failed: %w", err)}
	}

	if code := report.ExitCode(); code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}
