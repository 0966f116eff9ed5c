// Package workspace maps user identifiers onto sandboxed directories for
// submitted function files and generated plot artifacts.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Workspace roots each user's files under two fixed base directories,
// creating per-user subdirectories lazily. External processes run with the
// workspace root as working directory, so paths handed to them are always
// relative to Root.
type Workspace struct {
	// Root is the working directory for the validator and generator.
	Root string
	// FunctionsDir and PlotsDir are relative to Root.
	FunctionsDir string
	PlotsDir     string

	// mu excludes CleanAll against in-flight jobs: jobs hold the read
	// lock for their whole run, CleanAll takes the write lock.
	mu    sync.RWMutex
	users sync.Map // user -> *sync.Mutex
}

// New returns a workspace rooted at root. functionsDir and plotsDir are
// paths relative to root.
func New(root, functionsDir, plotsDir string) *Workspace {
	return &Workspace{
		Root:         root,
		FunctionsDir: functionsDir,
		PlotsDir:     plotsDir,
	}
}

// ValidSegment reports whether s is safe to use as a single path element.
// Anything empty, absolute, containing a separator, or a ".." segment is
// rejected before it ever reaches a filesystem call.
func ValidSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	if strings.ContainsAny(s, `/\`) {
		return false
	}
	return true
}

// FunctionsPath returns the absolute per-user functions directory, with
// extra elements joined below it.
func (w *Workspace) FunctionsPath(user string, elem ...string) string {
	parts := append([]string{w.Root, w.FunctionsDir, user}, elem...)
	return filepath.Join(parts...)
}

// PlotsPath returns the absolute per-user plots directory, with extra
// elements joined below it.
func (w *Workspace) PlotsPath(user string, elem ...string) string {
	parts := append([]string{w.Root, w.PlotsDir, user}, elem...)
	return filepath.Join(parts...)
}

// EnsureFunctionsDir creates the per-user functions directory if missing.
func (w *Workspace) EnsureFunctionsDir(user string) error {
	return os.MkdirAll(w.FunctionsPath(user), 0o755)
}

// EnsurePlotsDir creates the per-user plots directory if missing.
func (w *Workspace) EnsurePlotsDir(user string) error {
	return os.MkdirAll(w.PlotsPath(user), 0o755)
}

// Rel strips the workspace root from an absolute path, yielding the form
// the external programs expect.
func (w *Workspace) Rel(path string) string {
	return strings.TrimPrefix(path, w.Root+string(filepath.Separator))
}

// Acquire takes the per-user lock (plus the shared read lock against
// CleanAll) and returns the matching release func.
func (w *Workspace) Acquire(user string) func() {
	w.mu.RLock()
	v, _ := w.users.LoadOrStore(user, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return func() {
		mu.Unlock()
		w.mu.RUnlock()
	}
}

// CleanAll deletes every per-user subdirectory under both base directories.
// Idempotent: missing roots and already-empty roots are fine.
func (w *Workspace) CleanAll() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	for _, dir := range []string{
		filepath.Join(w.Root, w.FunctionsDir),
		filepath.Join(w.Root, w.PlotsDir),
	} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to list %s: %w", dir, err)
			}
			continue
		}
		for _, e := range entries {
			path := filepath.Join(dir, e.Name())
			if err := os.RemoveAll(path); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("failed to remove %s: %w", path, err)
			}
		}
	}
	if firstErr != nil {
		slog.Error("Workspace cleanup incomplete", "error", firstErr)
	}
	return firstErr
}
