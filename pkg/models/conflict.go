package models

// ConflictStatus flags a path whose two sides changed incompatibly
type ConflictStatus string

const (
	// NoConflict is the status of every path that can be resolved automatically
	NoConflict ConflictStatus = "none"
	// Conflict marks a path that needs a decision from the user
	Conflict ConflictStatus = "conflict"
)

// ConflictType categorizes different kinds of conflicts
type ConflictType string

const (
	// ConflictModifyModify indicates both sides modified the file
	ConflictModifyModify ConflictType = "modify-modify"
	// ConflictDeleteModify indicates the repository deleted, the source modified
	ConflictDeleteModify ConflictType = "delete-modify"
	// ConflictModifyDelete indicates the repository modified, the source deleted
	ConflictModifyDelete ConflictType = "modify-delete"
	// ConflictCreateCreate indicates same file created on both sides
	ConflictCreateCreate ConflictType = "create-create"
)

// Description returns a human-readable description of the conflict type
func (t ConflictType) Description() string {
	switch t {
	case ConflictModifyModify:
		return "modified on both sides"
	case ConflictDeleteModify:
		return "deleted in repository, modified in source"
	case ConflictModifyDelete:
		return "modified in repository, deleted in source"
	case ConflictCreateCreate:
		return "created on both sides"
	default:
		return "unknown conflict"
	}
}
