// Package exclude decides which paths a scan leaves out of its snapshot.
//
// Three rule kinds are combined: regular expressions matched against the
// forward-slash relative path, glob patterns, and an optional gitignore-style
// file read from each scanned root. A directory that matches prunes its
// whole subtree.
package exclude

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/sabhiram/go-gitignore"
)

// Rules is an immutable, compiled set of exclusion rules
type Rules struct {
	regexes  []*regexp.Regexp
	globs    []string
	reserved map[string]bool
	ignore   *gitignore.GitIgnore

	// IgnoreFile is the per-root ignore file name, empty to disable
	IgnoreFile string
}

// New compiles the regex and glob lists. Glob patterns follow these rules:
//   - a pattern without "/" matches the base name at any depth: *.tmp, .DS_Store
//   - a trailing "/" restricts the pattern to directories: node_modules/
//   - any other pattern matches the full relative path: build/**, **/cache/*
func New(regexes, globs []string) (*Rules, error) {
	r := &Rules{reserved: make(map[string]bool)}

	for _, expr := range regexes {
		if expr == "" {
			continue
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude regex %q: %w", expr, err)
		}
		r.regexes = append(r.regexes, re)
	}

	for _, g := range globs {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		if !doublestar.ValidatePattern(strings.TrimSuffix(g, "/")) {
			return nil, fmt.Errorf("invalid exclude glob %q", g)
		}
		r.globs = append(r.globs, g)
	}

	return r, nil
}

// MustNew is New for static rule lists; it panics on invalid input
func MustNew(regexes, globs []string) *Rules {
	r, err := New(regexes, globs)
	if err != nil {
		panic(err)
	}
	return r
}

// Reserve returns a copy of r that also excludes the given root-level
// file names. Used for files the tool itself keeps inside a root.
func (r *Rules) Reserve(names ...string) *Rules {
	out := r.clone()
	for _, n := range names {
		if n != "" {
			out.reserved[n] = true
		}
	}
	return out
}

// WithIgnoreLines returns a copy of r that additionally applies the given
// gitignore-style lines.
func (r *Rules) WithIgnoreLines(lines []string) *Rules {
	out := r.clone()
	if len(lines) > 0 {
		out.ignore = gitignore.CompileIgnoreLines(lines...)
	}
	return out
}

func (r *Rules) clone() *Rules {
	if r == nil {
		return &Rules{reserved: make(map[string]bool)}
	}
	out := *r
	out.reserved = make(map[string]bool, len(r.reserved))
	for k, v := range r.reserved {
		out.reserved[k] = v
	}
	return &out
}

// Match reports whether rel (forward-slash, relative to the root) is
// excluded, either directly or because one of its parent directories is.
func (r *Rules) Match(rel string, isDir bool) bool {
	if r == nil || rel == "" || rel == "." {
		return false
	}
	if r.reserved[rel] {
		return true
	}

	parts := strings.Split(rel, "/")
	for i := 1; i < len(parts); i++ {
		if r.matchEntry(strings.Join(parts[:i], "/"), true) {
			return true
		}
	}
	return r.matchEntry(rel, isDir)
}

// MatchEntry is Match without the parent-directory check. Walkers that
// prune excluded directories only need this one.
func (r *Rules) MatchEntry(rel string, isDir bool) bool {
	if r == nil || rel == "" || rel == "." {
		return false
	}
	return r.reserved[rel] || r.matchEntry(rel, isDir)
}

func (r *Rules) matchEntry(rel string, isDir bool) bool {
	for _, re := range r.regexes {
		if re.MatchString(rel) || (isDir && re.MatchString(rel+"/")) {
			return true
		}
	}

	base := path.Base(rel)
	for _, g := range r.globs {
		if matchGlob(g, rel, base, isDir) {
			return true
		}
	}

	if r.ignore != nil {
		if r.ignore.MatchesPath(rel) || (isDir && r.ignore.MatchesPath(rel+"/")) {
			return true
		}
	}

	return false
}

func matchGlob(pattern, rel, base string, isDir bool) bool {
	if strings.HasSuffix(pattern, "/") {
		if !isDir {
			return false
		}
		pattern = strings.TrimSuffix(pattern, "/")
	}

	if !strings.Contains(pattern, "/") {
		ok, _ := doublestar.Match(pattern, base)
		return ok
	}

	ok, _ := doublestar.Match(strings.TrimPrefix(pattern, "/"), rel)
	return ok
}

// Empty reports whether the rules exclude nothing besides reserved names
func (r *Rules) Empty() bool {
	return r == nil || (len(r.regexes) == 0 && len(r.globs) == 0 && r.ignore == nil)
}
