// Package selection resolves include/exclude paths, glob patterns, and
// named pattern groups into a predicate usable for local traversal and
// into argument lists the snapshot engine understands (§4.2).
package selection

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/auriora/timelocker/pkg/errs"
)

// Kind tags whether a path/pattern/group belongs to the include or
// exclude side of a selection (§3 "Selection kind").
type Kind string

const (
	Include Kind = "include"
	Exclude Kind = "exclude"
)

// ProgressTracker receives a running file count during traversal, every
// ~1000 files (§4.2 "Traversal optimization").
type ProgressTracker interface {
	Track(filesSeen int)
}

const progressInterval = 1000

type groupMembership struct {
	group *PatternGroup
	kind  Kind
}

// FileSelection is the aggregate described in §3: two path sets, two
// pattern sets, named pattern groups layered on top, and a lazily
// recompiled cache of the pattern sets guarded by one dirty flag.
type FileSelection struct {
	mu sync.Mutex

	includePaths    map[string]struct{}
	excludePaths    map[string]struct{}
	includePatterns map[string]struct{}
	excludePatterns map[string]struct{}
	groups          map[string]groupMembership

	compiledInclude []*compiledPattern
	compiledExclude []*compiledPattern
	dirty           bool

	Tracker ProgressTracker
}

// New returns an empty FileSelection.
func New() *FileSelection {
	return &FileSelection{
		includePaths:    map[string]struct{}{},
		excludePaths:    map[string]struct{}{},
		includePatterns: map[string]struct{}{},
		excludePatterns: map[string]struct{}{},
		groups:          map[string]groupMembership{},
		dirty:           true,
	}
}

func clean(path string) string {
	return filepath.Clean(path)
}

// AddPath adds path to the include or exclude path set.
func (fs *FileSelection) AddPath(path string, kind Kind) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.pathSet(kind)[clean(path)] = struct{}{}
}

// RemovePath removes path from the include or exclude path set.
func (fs *FileSelection) RemovePath(path string, kind Kind) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.pathSet(kind), clean(path))
}

// AddPattern adds a glob pattern and marks the compiled cache dirty.
func (fs *FileSelection) AddPattern(pattern string, kind Kind) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.patternSet(kind)[pattern] = struct{}{}
	fs.dirty = true
}

// RemovePattern removes a glob pattern and marks the compiled cache dirty.
func (fs *FileSelection) RemovePattern(pattern string, kind Kind) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.patternSet(kind), pattern)
	fs.dirty = true
}

// AddPatternGroup unions group's patterns into the include or exclude
// pattern set and remembers the association so RemovePatternGroup can
// un-union exactly this group's contribution later (§C.1).
func (fs *FileSelection) AddPatternGroup(group *PatternGroup, kind Kind) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	set := fs.patternSet(kind)
	for _, p := range group.Patterns {
		set[p] = struct{}{}
	}
	fs.groups[group.Name] = groupMembership{group: group, kind: kind}
	fs.dirty = true
}

// AddPatternGroupByName looks up name in CommonGroups and adds it.
func (fs *FileSelection) AddPatternGroupByName(name string, kind Kind) error {
	group, ok := CommonGroups[name]
	if !ok {
		return errs.Newf(errs.KindValidation, "unknown pattern group: %s", name)
	}
	fs.AddPatternGroup(group, kind)
	return nil
}

// RemovePatternGroup un-unions exactly the patterns contributed by the
// named group, leaving patterns added from any other source untouched.
func (fs *FileSelection) RemovePatternGroup(name string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	membership, ok := fs.groups[name]
	if !ok {
		return
	}
	set := fs.patternSet(membership.kind)
	for _, p := range membership.group.Patterns {
		delete(set, p)
	}
	delete(fs.groups, name)
	fs.dirty = true
}

func (fs *FileSelection) pathSet(kind Kind) map[string]struct{} {
	if kind == Exclude {
		return fs.excludePaths
	}
	return fs.includePaths
}

func (fs *FileSelection) patternSet(kind Kind) map[string]struct{} {
	if kind == Exclude {
		return fs.excludePatterns
	}
	return fs.includePatterns
}

// compile recompiles the pattern caches if the dirty flag is set.
// Compilation failures are invariant violations (a user-supplied glob
// that cannot translate to a regex means a bug in globToRegex, not a
// recoverable input error), so this panics rather than returning error.
func (fs *FileSelection) compile() {
	if !fs.dirty {
		return
	}
	fs.compiledInclude = compileSorted(fs.includePatterns)
	fs.compiledExclude = compileSorted(fs.excludePatterns)
	fs.dirty = false
}

func compileSorted(patterns map[string]struct{}) []*compiledPattern {
	names := make([]string, 0, len(patterns))
	for p := range patterns {
		names = append(names, p)
	}
	sort.Strings(names)
	out := make([]*compiledPattern, 0, len(names))
	for _, p := range names {
		compiled, err := compilePattern(p)
		if err != nil {
			panic("selection: invalid pattern survived staging: " + p)
		}
		out = append(out, compiled)
	}
	return out
}

// ShouldIncludeFile runs the seven-step matching algorithm of §4.2.
func (fs *FileSelection) ShouldIncludeFile(path string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.compile()
	return fs.shouldIncludeLocked(clean(path))
}

func (fs *FileSelection) shouldIncludeLocked(path string) bool {
	if _, ok := fs.excludePaths[path]; ok {
		return false
	}
	for excludeRoot := range fs.excludePaths {
		if isPrefixPath(excludeRoot, path) {
			return false
		}
	}
	if matchesAny(fs.compiledExclude, path) {
		return false
	}
	if _, ok := fs.includePaths[path]; ok {
		return true
	}
	for includeRoot := range fs.includePaths {
		if isPrefixPath(includeRoot, path) {
			return true
		}
	}
	if len(fs.compiledInclude) > 0 {
		return matchesAny(fs.compiledInclude, path)
	}
	return false
}

// isPrefixPath reports whether root is an ancestor directory of (or
// equal to) path.
func isPrefixPath(root, path string) bool {
	root = strings.TrimRight(toSlash(root), "/")
	p := toSlash(path)
	if p == root {
		return true
	}
	return strings.HasPrefix(p, root+"/")
}

// Validate enforces §3's invariant: at least one include path must be
// directory-shaped (ends in a separator, has no extension, or exists on
// disk as a directory).
func (fs *FileSelection) Validate() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for p := range fs.includePaths {
		if looksLikeDirectory(p) {
			return nil
		}
	}
	return errs.New(errs.KindValidation, "file selection requires at least one directory-shaped include path")
}

func looksLikeDirectory(path string) bool {
	if strings.HasSuffix(path, string(os.PathSeparator)) || strings.HasSuffix(path, "/") {
		return true
	}
	if filepath.Ext(path) == "" {
		return true
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return true
	}
	return false
}

// GetBackupPaths returns the include-path strings for the engine.
func (fs *FileSelection) GetBackupPaths() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return sortedKeys(fs.includePaths)
}

// GetExcludeArgs returns a flattened [--exclude, <val>]* sequence
// covering both exclude patterns and explicit exclude paths.
func (fs *FileSelection) GetExcludeArgs() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var args []string
	for _, p := range sortedKeys(fs.excludePatterns) {
		args = append(args, "--exclude", p)
	}
	for _, p := range sortedKeys(fs.excludePaths) {
		args = append(args, "--exclude", p)
	}
	return args
}

// ToEngineArgs projects the whole selection into the engine's argument
// grammar: include paths as positionals, then exclude patterns, then
// explicit exclude paths (§4.2 "Engine argument projection").
func (fs *FileSelection) ToEngineArgs() []string {
	fs.mu.Lock()
	includes := sortedKeys(fs.includePaths)
	fs.mu.Unlock()

	args := append([]string{}, includes...)
	args = append(args, fs.GetExcludeArgs()...)
	return args
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
