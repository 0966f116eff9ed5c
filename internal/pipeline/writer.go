package pipeline

import (
	"log/slog"
	"os"

	"github.com/datavista/launchsim/internal/workspace"
)

// SubmissionWriter persists user-submitted function definitions into the
// per-user sandbox.
type SubmissionWriter struct {
	WS *workspace.Workspace
}

// Write stores source under the user's functions directory as outName and
// returns the absolute path. An empty return value is the failure sentinel:
// callers must not run any external process against it.
func (sw *SubmissionWriter) Write(user, outName string, source []byte) string {
	if !workspace.ValidSegment(user) || !workspace.ValidSegment(outName) {
		slog.Error("Rejected unsafe submission path", "user", user, "out", outName)
		return ""
	}

	// Directory creation failure is not fatal by itself; the write below
	// fails and reports instead.
	if err := sw.WS.EnsureFunctionsDir(user); err != nil {
		slog.Error("Failed to create functions dir", "user", user, "error", err)
	}

	path := sw.WS.FunctionsPath(user, outName)
	if err := os.WriteFile(path, source, 0o644); err != nil {
		slog.Error("Failed to write submission file", "path", path, "error", err)
		return ""
	}
	return path
}
