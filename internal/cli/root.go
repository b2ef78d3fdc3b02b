package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sdejongh/reposync/pkg/models"
	"github.com/sdejongh/reposync/pkg/state"
)

// NewRootCommand builds the reposync command tree
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "reposync",
		Short: "Reconcile a shared repository with per-machine working copies",
		Long: `reposync keeps a central repository directory and the working copy of
each machine in step. It records, per machine, the modification times seen
at the last synchronization, detects what changed on each side since then
and proposes copies and deletions. Files changed on both sides are reported
as conflicts and left alone until you choose an operation.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add global flags
	AddGlobalFlags(rootCmd)

	// Add commands
	rootCmd.AddCommand(NewInspectCommand())
	rootCmd.AddCommand(NewSyncCommand())
	rootCmd.AddCommand(NewStateCommand())
	rootCmd.AddCommand(NewConfigCommand())
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

// Execute runs the command tree and returns the process exit code
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := NewRootCommand()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	if reportsError(err) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	} else if cancelled(err) {
		fmt.Fprintln(stderr, "Cancelled.")
	}
	return exitCode(err)
}

// reportsError tells whether err deserves an error line. A report already
// explains an ExitError without a cause, and cancelling is not a failure.
func reportsError(err error) bool {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return false
	}
	return !cancelled(err)
}

func cancelled(err error) bool {
	return errors.Is(err, models.ErrCancelled) || errors.Is(err, context.Canceled)
}

// exitLocked is returned when another process holds the repository lock
const exitLocked = 2

// exitCode maps an error to the exit code of the matching sync status
func exitCode(err error) int {
	var exitErr *ExitError
	switch {
	case errors.As(err, &exitErr):
		return exitErr.Code
	case cancelled(err):
		return models.StatusCancelled.ExitCode()
	case errors.Is(err, state.ErrLocked):
		return exitLocked
	default:
		return 1
	}
}
