package models

import (
	"fmt"
	"time"
)

// ExecutionReport represents the results of applying a change set
type ExecutionReport struct {
	// ID identifies the run in logs and JSON output
	ID string `json:"id"`

	RepoPath   string `json:"repo_path"`
	SourcePath string `json:"source_path"`
	Machine    string `json:"machine"`

	// Timing
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`

	// Statistics
	CopiesPlanned  int   `json:"copies_planned"`
	DeletesPlanned int   `json:"deletes_planned"`
	FilesCopied    int   `json:"files_copied"`
	FilesDeleted   int   `json:"files_deleted"`
	DirsRemoved    int   `json:"dirs_removed"`
	BytesCopied    int64 `json:"bytes_copied"`

	// AllCompleted is true only when every planned copy and delete succeeded
	AllCompleted bool `json:"all_completed"`

	// StateSaved is true when the sync state was rewritten after the run
	StateSaved bool `json:"state_saved"`

	// Errors that stopped a batch
	Errors []ExecError `json:"errors,omitempty"`

	// Warnings that did not affect completion, e.g. directory cleanup failures
	Warnings []string `json:"warnings,omitempty"`

	// Overall status
	Status SyncStatus `json:"status"`
}

// Nothing reports whether the change set contained no action at all
func (r *ExecutionReport) Nothing() bool {
	return r.CopiesPlanned == 0 && r.DeletesPlanned == 0
}

// Summary returns the one-line outcome of the run
func (r *ExecutionReport) Summary() string {
	if r.Nothing() {
		return "No actions to take"
	}
	return fmt.Sprintf("%d files copied and %d files deleted", r.FilesCopied, r.FilesDeleted)
}

// ExitCode returns the process exit code for the report
func (r *ExecutionReport) ExitCode() int {
	return r.Status.ExitCode()
}

// SyncStatus represents the overall result
type SyncStatus string

const (
	// StatusSuccess indicates all operations completed successfully
	StatusSuccess SyncStatus = "success"
	// StatusPartial indicates a batch stopped before completing
	StatusPartial SyncStatus = "partial"
	// StatusFailed indicates the run could not determine its outcome
	StatusFailed SyncStatus = "failed"
	// StatusCancelled indicates the operation was cancelled
	StatusCancelled SyncStatus = "cancelled"
)

// ExecError represents a failed copy or delete
type ExecError struct {
	FilePath  string        `json:"file_path"`
	Operation FileOperation `json:"operation"`
	Error     string        `json:"error"`
	Timestamp time.Time     `json:"timestamp"`
}

// ExitCode returns the appropriate exit code for the sync status
func (s SyncStatus) ExitCode() int {
	switch s {
	case StatusSuccess:
		return 0
	case StatusCancelled:
		return 3
	default:
		return 1
	}
}
