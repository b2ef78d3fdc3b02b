package models

import (
	"sort"
	"time"
)

// FileMetadata describes a regular file found by a scan
type FileMetadata struct {
	// Path is relative to the scanned root, forward-slash separated
	Path string `json:"path"`

	// Size in bytes
	Size int64 `json:"size"`

	// ModTime is the last modification time reported by the filesystem
	ModTime time.Time `json:"mod_time"`
}

// Snapshot maps relative paths to the metadata of a single scan.
// It is never mutated once the scan that produced it returns.
type Snapshot map[string]FileMetadata

// Timestamps returns the path -> modification time projection of the snapshot
func (s Snapshot) Timestamps() map[string]time.Time {
	out := make(map[string]time.Time, len(s))
	for path, meta := range s {
		out[path] = meta.ModTime
	}
	return out
}

// Paths returns the snapshot's paths in lexical order
func (s Snapshot) Paths() []string {
	paths := make([]string, 0, len(s))
	for path := range s {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// TotalSize sums the size of every file in the snapshot
func (s Snapshot) TotalSize() int64 {
	var total int64
	for _, meta := range s {
		total += meta.Size
	}
	return total
}

// Lookup returns the modification time of path, or nil if absent
func (s Snapshot) Lookup(path string) *time.Time {
	meta, ok := s[path]
	if !ok {
		return nil
	}
	t := meta.ModTime
	return &t
}
