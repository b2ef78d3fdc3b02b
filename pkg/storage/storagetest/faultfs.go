// Package storagetest provides filesystem helpers for tests of packages
// built on top of storage.Backend.
package storagetest

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// Op names a filesystem call that can be made to fail
type Op string

const (
	OpOpen     Op = "open"
	OpOpenFile Op = "openfile"
	OpRemove   Op = "remove"
	OpRename   Op = "rename"
	OpStat     Op = "stat"
	OpChtimes  Op = "chtimes"
)

// FaultFs wraps an afero.Fs and fails selected calls. Faults are keyed by
// operation and matched against the base name of the path, so a fault on
// OpOpenFile for "b.txt" also hits the temporary file a storage write uses.
type FaultFs struct {
	afero.Fs

	mu     sync.Mutex
	faults map[Op]map[string]error
	calls  map[Op]int
}

// NewFaultFs wraps fsys
func NewFaultFs(fsys afero.Fs) *FaultFs {
	return &FaultFs{
		Fs:     fsys,
		faults: make(map[Op]map[string]error),
		calls:  make(map[Op]int),
	}
}

// Fail makes op fail with err for any path whose base name contains name.
// Pick names that are not substrings of other names used by the test.
func (f *FaultFs) Fail(op Op, name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.faults[op] == nil {
		f.faults[op] = make(map[string]error)
	}
	f.faults[op][name] = err
}

// Reset removes every fault
func (f *FaultFs) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = make(map[Op]map[string]error)
}

// Calls returns how many times op was invoked
func (f *FaultFs) Calls(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FaultFs) check(op Op, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	base := filepath.Base(name)
	for pattern, err := range f.faults[op] {
		if strings.Contains(base, pattern) {
			return &os.PathError{Op: string(op), Path: name, Err: err}
		}
	}
	return nil
}

func (f *FaultFs) Open(name string) (afero.File, error) {
	if err := f.check(OpOpen, name); err != nil {
		return nil, err
	}
	return f.Fs.Open(name)
}

func (f *FaultFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if err := f.check(OpOpenFile, name); err != nil {
		return nil, err
	}
	return f.Fs.OpenFile(name, flag, perm)
}

func (f *FaultFs) Create(name string) (afero.File, error) {
	if err := f.check(OpOpenFile, name); err != nil {
		return nil, err
	}
	return f.Fs.Create(name)
}

func (f *FaultFs) Remove(name string) error {
	if err := f.check(OpRemove, name); err != nil {
		return err
	}
	return f.Fs.Remove(name)
}

func (f *FaultFs) Rename(oldname, newname string) error {
	if err := f.check(OpRename, newname); err != nil {
		return err
	}
	return f.Fs.Rename(oldname, newname)
}

func (f *FaultFs) Stat(name string) (os.FileInfo, error) {
	if err := f.check(OpStat, name); err != nil {
		return nil, err
	}
	return f.Fs.Stat(name)
}

func (f *FaultFs) Chtimes(name string, atime, mtime time.Time) error {
	if err := f.check(OpChtimes, name); err != nil {
		return err
	}
	return f.Fs.Chtimes(name, atime, mtime)
}

// WriteFile creates path (and its parents) on fsys with content and mtime
func WriteFile(fsys afero.Fs, path, content string, mtime time.Time) error {
	if err := fsys.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := afero.WriteFile(fsys, path, []byte(content), 0644); err != nil {
		return err
	}
	if mtime.IsZero() {
		return nil
	}
	return fsys.Chtimes(path, mtime, mtime)
}
