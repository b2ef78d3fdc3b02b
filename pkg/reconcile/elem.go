package reconcile

import (
	"time"

	"github.com/sdejongh/reposync/pkg/models"
)

// ChangeType categorizes what happened to a path on one side since the
// last synchronization
type ChangeType string

const (
	ChangeCreated  ChangeType = "created"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
	ChangeNone     ChangeType = "none"
)

// Category groups elements the way the change set is presented to a user
type Category string

const (
	// CategoryNew is a path unknown to one side, present on the other
	CategoryNew Category = "new"
	// CategoryDeleted is a path recorded on a side but gone from it
	CategoryDeleted Category = "deleted"
	// CategoryChanged is everything else
	CategoryChanged Category = "changed"
)

// Elem is the reconciliation result for a single path
type Elem struct {
	Path string

	// Current timestamps, nil when the path is absent on that side
	RepoDate   *time.Time
	SourceDate *time.Time

	// Timestamps recorded at the last synchronization, nil when unrecorded
	RepoRecorded   *time.Time
	SourceRecorded *time.Time

	RepoChange   ChangeType
	SourceChange ChangeType

	Operation    models.FileOperation
	Conflict     models.ConflictStatus
	ConflictType models.ConflictType

	edited bool
}

// Edited reports whether the operation was set by the user
func (e Elem) Edited() bool {
	return e.edited
}

// IsConflict reports whether the element is in conflict
func (e Elem) IsConflict() bool {
	return e.Conflict == models.Conflict
}

// Changed reports whether either side changed since the last sync
func (e Elem) Changed() bool {
	return e.RepoChange != ChangeNone || e.SourceChange != ChangeNone
}

// Category returns the presentation group of the element
func (e Elem) Category() Category {
	if e.RepoChange == ChangeDeleted || e.SourceChange == ChangeDeleted {
		return CategoryDeleted
	}
	if (e.RepoDate == nil && e.RepoRecorded == nil) || (e.SourceDate == nil && e.SourceRecorded == nil) {
		return CategoryNew
	}
	return CategoryChanged
}

// detectChange determines what kind of change occurred on one side
func detectChange(current, recorded *time.Time) ChangeType {
	switch {
	case current != nil && recorded == nil:
		return ChangeCreated
	case current == nil && recorded != nil:
		return ChangeDeleted
	case current != nil && !current.Equal(*recorded):
		return ChangeModified
	default:
		return ChangeNone
	}
}

// defaultAction applies the classification rules, in priority order:
//  1. absent on both sides: nothing to do
//  2. changed on exactly one side: propagate that side
//  3. deleted on exactly one side: delete the other copy
//  4. changed on both sides: conflict, unless both now carry the same timestamp
//  5. unchanged: nothing to do
func defaultAction(e Elem) (models.FileOperation, models.ConflictStatus, models.ConflictType) {
	repoChanged := e.RepoChange != ChangeNone
	sourceChanged := e.SourceChange != ChangeNone

	switch {
	case e.RepoDate == nil && e.SourceDate == nil:
		return models.OpNoOp, models.NoConflict, ""

	case repoChanged && !sourceChanged:
		if e.RepoChange == ChangeDeleted {
			return models.OpDeleteSource, models.NoConflict, ""
		}
		return models.OpUseRepo, models.NoConflict, ""

	case sourceChanged && !repoChanged:
		if e.SourceChange == ChangeDeleted {
			return models.OpDeleteRepo, models.NoConflict, ""
		}
		return models.OpUseSource, models.NoConflict, ""

	case repoChanged && sourceChanged:
		if e.RepoDate != nil && e.SourceDate != nil && e.RepoDate.Equal(*e.SourceDate) {
			return models.OpNoOp, models.NoConflict, ""
		}
		return models.OpNoOp, models.Conflict, conflictType(e.RepoChange, e.SourceChange)

	default:
		return models.OpNoOp, models.NoConflict, ""
	}
}

func conflictType(repo, source ChangeType) models.ConflictType {
	switch {
	case repo == ChangeDeleted:
		return models.ConflictDeleteModify
	case source == ChangeDeleted:
		return models.ConflictModifyDelete
	case repo == ChangeCreated && source == ChangeCreated:
		return models.ConflictCreateCreate
	default:
		return models.ConflictModifyModify
	}
}
