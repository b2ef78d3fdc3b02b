package models

import (
	"fmt"
	"strings"
)

// FileOperation is the action planned for a single path
type FileOperation string

const (
	// OpNoOp leaves both sides untouched
	OpNoOp FileOperation = "NoOp"
	// OpUseRepo copies the repository version over the source
	OpUseRepo FileOperation = "UseRepo"
	// OpUseSource copies the source version over the repository
	OpUseSource FileOperation = "UseSource"
	// OpDeleteRepo removes the repository copy
	OpDeleteRepo FileOperation = "DeleteRepo"
	// OpDeleteSource removes the source copy
	OpDeleteSource FileOperation = "DeleteSource"
)

// AllOperations lists every operation in display order
var AllOperations = []FileOperation{OpUseRepo, OpUseSource, OpDeleteRepo, OpDeleteSource, OpNoOp}

// IsCopy reports whether the operation copies a file between the sides
func (op FileOperation) IsCopy() bool {
	return op == OpUseRepo || op == OpUseSource
}

// IsDelete reports whether the operation removes a file
func (op FileOperation) IsDelete() bool {
	return op == OpDeleteRepo || op == OpDeleteSource
}

// NeedsRepo reports whether the operation requires the repository copy to exist
func (op FileOperation) NeedsRepo() bool {
	return op == OpUseRepo || op == OpDeleteRepo
}

// NeedsSource reports whether the operation requires the source copy to exist
func (op FileOperation) NeedsSource() bool {
	return op == OpUseSource || op == OpDeleteSource
}

// Valid reports whether op is one of the known operations
func (op FileOperation) Valid() bool {
	for _, known := range AllOperations {
		if op == known {
			return true
		}
	}
	return false
}

// ParseFileOperation parses an operation name case-insensitively.
// Dashed forms such as "use-repo" are accepted too.
func ParseFileOperation(s string) (FileOperation, error) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "-", ""))
	for _, op := range AllOperations {
		if strings.ToLower(string(op)) == norm {
			return op, nil
		}
	}
	return "", &ValidationError{
		Field:   "operation",
		Message: fmt.Sprintf("unknown operation %q (must be one of UseRepo, UseSource, DeleteRepo, DeleteSource, NoOp)", s),
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
