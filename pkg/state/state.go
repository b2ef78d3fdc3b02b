// Package state persists the per-side file timestamps recorded at the end
// of the last successful synchronization.
package state

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/afero"

	"github.com/sdejongh/reposync/pkg/models"
)

const (
	// RepositorySide is the fixed side name of the repository tree
	RepositorySide = "repository"

	// FileName is the state file kept at the repository root
	FileName = ".reposync-state.json"

	// TempFileName is written first and renamed over FileName
	TempFileName = FileName + ".tmp"

	// CurrentVersion is the state format written by Save
	CurrentVersion = 1
)

// Side maps relative paths to the timestamp recorded for one side
type Side map[string]time.Time

// SyncState represents the state of every side at the last successful sync.
// The repository side and one side per machine share the same file.
type SyncState struct {
	// Version for state file format compatibility
	Version int `json:"version"`

	// UpdatedAt is when the state was last written
	UpdatedAt time.Time `json:"updated_at,omitempty"`

	// Sides maps a side name to its recorded timestamps
	Sides map[string]Side `json:"sides"`
}

// New creates an empty sync state
func New() *SyncState {
	return &SyncState{
		Version: CurrentVersion,
		Sides:   make(map[string]Side),
	}
}

// Bootstrap builds the state of a first run: the repository side and the
// machine side are copied from the snapshots.
func Bootstrap(repo, source models.Snapshot, machine string) *SyncState {
	s := New()
	s.SetSide(RepositorySide, SideFromSnapshot(repo))
	s.SetSide(machine, SideFromSnapshot(source))
	return s
}

// SideFromSnapshot projects a snapshot onto its timestamps
func SideFromSnapshot(snap models.Snapshot) Side {
	return Side(snap.Timestamps())
}

// Side returns the recorded timestamps of a side
func (s *SyncState) Side(name string) (Side, bool) {
	side, ok := s.Sides[name]
	return side, ok
}

// SetSide replaces a side. Timestamps are stored in UTC.
func (s *SyncState) SetSide(name string, side Side) {
	if s.Sides == nil {
		s.Sides = make(map[string]Side)
	}
	out := make(Side, len(side))
	for path, t := range side {
		out[path] = t.UTC()
	}
	s.Sides[name] = out
}

// SideNames returns the side names in lexical order
func (s *SyncState) SideNames() []string {
	names := make([]string, 0, len(s.Sides))
	for name := range s.Sides {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Baseline returns the recorded repository and machine sides. The
// repository side is shared by every machine and is always returned. When
// the machine has never synchronized against this repository its own side
// is empty and known is false.
func (s *SyncState) Baseline(machine string) (repo, source Side, known bool) {
	repo = s.Sides[RepositorySide]
	if repo == nil {
		repo = Side{}
	}
	source, known = s.Sides[machine]
	if source == nil {
		source = Side{}
	}
	return repo, source, known
}

// Clone returns a deep copy of the state
func (s *SyncState) Clone() *SyncState {
	out := &SyncState{
		Version:   s.Version,
		UpdatedAt: s.UpdatedAt,
		Sides:     make(map[string]Side, len(s.Sides)),
	}
	for name, side := range s.Sides {
		cp := make(Side, len(side))
		for path, t := range side {
			cp[path] = t
		}
		out.Sides[name] = cp
	}
	return out
}

// Path returns the state file location for a repository root
func Path(repoRoot string) string {
	return filepath.Join(repoRoot, FileName)
}

// Store reads and writes state files on a filesystem
type Store struct {
	fs afero.Fs
}

// NewStore creates a store on fsys
func NewStore(fsys afero.Fs) *Store {
	return &Store{fs: fsys}
}

var defaultStore = NewStore(afero.NewOsFs())

// DefaultStore returns the store on the local filesystem
func DefaultStore() *Store {
	return defaultStore
}

// Load reads the state file from the local filesystem
func Load(path string) (*SyncState, error) {
	return defaultStore.Load(path)
}

// Save writes the state file to the local filesystem
func Save(st *SyncState, path string) error {
	return defaultStore.Save(st, path)
}

// Clear removes the state file from the local filesystem
func Clear(path string) error {
	return defaultStore.Clear(path)
}

// Load reads the state file. A missing file yields models.ErrStateNotFound;
// a file that cannot be decoded yields a *models.ParseError. Unknown fields
// and newer versions are accepted.
func (st *Store) Load(path string) (*SyncState, error) {
	data, err := afero.ReadFile(st.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", models.ErrStateNotFound, path)
		}
		return nil, models.NewIOError("read", path, err)
	}

	var state SyncState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, &models.ParseError{Path: path, Err: err}
	}

	if state.Sides == nil {
		state.Sides = make(map[string]Side)
	}
	for name, side := range state.Sides {
		if side == nil {
			state.Sides[name] = Side{}
		}
	}

	return &state, nil
}

// Save persists the state atomically: the content goes to a temporary file
// in the same directory which is synced and then renamed over the target.
// On failure the previous file is left untouched.
func (st *Store) Save(s *SyncState, path string) error {
	out := s.Clone()
	if out.Version < CurrentVersion {
		out.Version = CurrentVersion
	}
	out.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmpPath := filepath.Join(filepath.Dir(path), TempFileName)
	if err := st.writeTemp(tmpPath, data); err != nil {
		_ = st.fs.Remove(tmpPath)
		return models.NewIOError("write", tmpPath, err)
	}

	if err := st.fs.Rename(tmpPath, path); err != nil {
		_ = st.fs.Remove(tmpPath)
		return models.NewIOError("rename", path, err)
	}

	s.UpdatedAt = out.UpdatedAt
	return nil
}

func (st *Store) writeTemp(path string, data []byte) error {
	f, err := st.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

// Clear removes the state file; a missing file is not an error
func (st *Store) Clear(path string) error {
	err := st.fs.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return models.NewIOError("remove", path, err)
	}
	return nil
}
