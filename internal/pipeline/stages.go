package pipeline

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/datavista/launchsim/internal/procexec"
	"github.com/datavista/launchsim/internal/workspace"
)

// ValidationStage runs the external validator against a submitted function
// file. It is purely a gate: no filesystem mutation of its own, the exit
// code is the verdict.
type ValidationStage struct {
	Bin    string
	Runner *procexec.Runner
	WS     *workspace.Workspace
}

// Run invokes the validator with relPath (relative to the workspace root,
// which is also the working directory), truncating logPath and filling it
// with the validator's combined output. Returns the process exit code.
func (v *ValidationStage) Run(ctx context.Context, relPath, logPath string) int {
	code, err := v.Runner.Run(ctx, v.WS.Root, logPath, false, v.Bin, relPath)
	if err != nil {
		slog.Error("Validation stage failed to run", "error", err)
		return -1
	}
	return code
}

// GenerationStage runs the external generator over a validated function
// file, producing the plot artifact in the user's plots directory.
type GenerationStage struct {
	Bin    string
	Runner *procexec.Runner
	WS     *workspace.Workspace

	// Layers, when positive, is passed as a trailing numeric argument to
	// select the multi-layer generator variant.
	Layers int
}

// Run ensures the user's plots directory exists, then invokes the generator
// with the relative function path and the relative artifact path, appending
// its combined output to logPath so the validation output is preserved.
// Returns the process exit code.
func (g *GenerationStage) Run(ctx context.Context, user, relPath, outPlot, logPath string) int {
	if err := g.WS.EnsurePlotsDir(user); err != nil {
		slog.Error("Failed to create plots dir", "user", user, "error", err)
	}

	relPlot := g.WS.Rel(g.WS.PlotsPath(user, outPlot))
	args := []string{relPath, relPlot}
	if g.Layers > 0 {
		args = append(args, strconv.Itoa(g.Layers))
	}

	code, err := g.Runner.Run(ctx, g.WS.Root, logPath, true, g.Bin, args...)
	if err != nil {
		slog.Error("Generation stage failed to run", "error", err)
		return -1
	}
	return code
}
