package reconcile

import (
	"fmt"
	"sync"

	"github.com/sdejongh/reposync/pkg/models"
)

// EditFunc is notified with the elements whose operation changed
type EditFunc func(elems []Elem)

// ChangeSet is an insertion-ordered, path-keyed collection of elements.
// Callers read copies of the elements and edit operations only through
// SetOperation, so SetDefaultActions can tell user edits apart.
type ChangeSet struct {
	mu        sync.RWMutex
	order     []string
	elems     map[string]*Elem
	observers []EditFunc
	pending   []string
}

// NewChangeSet creates an empty change set
func NewChangeSet() *ChangeSet {
	return &ChangeSet{elems: make(map[string]*Elem)}
}

// add inserts e, replacing any element with the same path in place
func (cs *ChangeSet) add(e Elem) {
	if _, ok := cs.elems[e.Path]; !ok {
		cs.order = append(cs.order, e.Path)
	}
	cp := e
	cs.elems[e.Path] = &cp
}

// Len returns the number of elements
func (cs *ChangeSet) Len() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.order)
}

// Get returns a copy of the element for path
func (cs *ChangeSet) Get(path string) (Elem, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	e, ok := cs.elems[path]
	if !ok {
		return Elem{}, false
	}
	return *e, true
}

// Elems returns copies of all elements in insertion order
func (cs *ChangeSet) Elems() []Elem {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([]Elem, 0, len(cs.order))
	for _, path := range cs.order {
		out = append(out, *cs.elems[path])
	}
	return out
}

// Changed returns copies of the elements where either side changed, plus
// every element that carries an operation
func (cs *ChangeSet) Changed() []Elem {
	var out []Elem
	for _, e := range cs.Elems() {
		if e.Changed() || e.Operation != models.OpNoOp {
			out = append(out, e)
		}
	}
	return out
}

// Paths returns the element paths in insertion order
func (cs *ChangeSet) Paths() []string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([]string, len(cs.order))
	copy(out, cs.order)
	return out
}

// SetDefaultActions assigns the default operation and conflict status to
// every element. Elements edited through SetOperation keep their operation.
// Calling it repeatedly yields the same result.
func (cs *ChangeSet) SetDefaultActions() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, path := range cs.order {
		e := cs.elems[path]
		op, status, ctype := defaultAction(*e)
		e.Conflict = status
		e.ConflictType = ctype
		if !e.edited {
			e.Operation = op
		}
	}
}

// SetOperation changes the operation of path and marks it as edited.
// An operation needing a copy that is absent is rejected: UseRepo and
// DeleteRepo need the repository copy, UseSource and DeleteSource the
// source copy. The edit is queued for NotifyEdits.
func (cs *ChangeSet) SetOperation(path string, op models.FileOperation) error {
	if !op.Valid() {
		return &models.ValidationError{Field: "operation", Message: fmt.Sprintf("unknown operation %q", op)}
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	e, ok := cs.elems[path]
	if !ok {
		return &models.ValidationError{Field: "path", Message: fmt.Sprintf("%s is not part of the change set", path)}
	}

	if op.NeedsRepo() && e.RepoDate == nil {
		return &models.ValidationError{Field: "operation", Message: fmt.Sprintf("%s: %s needs the repository copy, which does not exist", path, op)}
	}
	if op.NeedsSource() && e.SourceDate == nil {
		return &models.ValidationError{Field: "operation", Message: fmt.Sprintf("%s: %s needs the source copy, which does not exist", path, op)}
	}

	e.Operation = op
	e.edited = true
	cs.pending = append(cs.pending, path)
	return nil
}

// ResetOperation drops the user edit on path and restores its default
func (cs *ChangeSet) ResetOperation(path string) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	e, ok := cs.elems[path]
	if !ok || !e.edited {
		return false
	}
	e.edited = false
	e.Operation, _, _ = defaultAction(*e)
	cs.pending = append(cs.pending, path)
	return true
}

// OnEdit registers fn to be called by NotifyEdits
func (cs *ChangeSet) OnEdit(fn EditFunc) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.observers = append(cs.observers, fn)
}

// NotifyEdits delivers the elements edited since the previous call to every
// observer, once per path, in edit order.
func (cs *ChangeSet) NotifyEdits() {
	cs.mu.Lock()
	seen := make(map[string]bool, len(cs.pending))
	var edited []Elem
	for _, path := range cs.pending {
		if seen[path] {
			continue
		}
		seen[path] = true
		edited = append(edited, *cs.elems[path])
	}
	cs.pending = nil
	observers := append([]EditFunc(nil), cs.observers...)
	cs.mu.Unlock()

	if len(edited) == 0 {
		return
	}
	for _, fn := range observers {
		fn(edited)
	}
}

// Stats counts operations and conflicts
type Stats struct {
	UseRepo      int `json:"use_repo"`
	UseSource    int `json:"use_source"`
	DeleteRepo   int `json:"delete_repo"`
	DeleteSource int `json:"delete_source"`
	NoOp         int `json:"noop"`
	Conflicts    int `json:"conflicts"`
	Unresolved   int `json:"unresolved"`
	Edited       int `json:"edited"`
}

// Actions returns the number of copy and delete operations
func (s Stats) Actions() int {
	return s.UseRepo + s.UseSource + s.DeleteRepo + s.DeleteSource
}

// Count returns the number of elements carrying op
func (s Stats) Count(op models.FileOperation) int {
	switch op {
	case models.OpUseRepo:
		return s.UseRepo
	case models.OpUseSource:
		return s.UseSource
	case models.OpDeleteRepo:
		return s.DeleteRepo
	case models.OpDeleteSource:
		return s.DeleteSource
	default:
		return s.NoOp
	}
}

// Stats computes operation counts over the change set
func (cs *ChangeSet) Stats() Stats {
	var s Stats
	for _, e := range cs.Elems() {
		switch e.Operation {
		case models.OpUseRepo:
			s.UseRepo++
		case models.OpUseSource:
			s.UseSource++
		case models.OpDeleteRepo:
			s.DeleteRepo++
		case models.OpDeleteSource:
			s.DeleteSource++
		default:
			s.NoOp++
		}
		if e.IsConflict() {
			s.Conflicts++
			if e.Operation == models.OpNoOp {
				s.Unresolved++
			}
		}
		if e.edited {
			s.Edited++
		}
	}
	return s
}

// HasActions reports whether any element carries a copy or delete
func (cs *ChangeSet) HasActions() bool {
	return cs.Stats().Actions() > 0
}
