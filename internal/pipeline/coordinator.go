// Package pipeline implements the submit → validate → generate → report
// flow for user-authored simulation functions.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/datavista/launchsim/internal/domain"
	"github.com/datavista/launchsim/internal/workspace"
)

// Coordinator drives one submission through every stage and aggregates the
// log. It never returns errors: the JobResult encodes the outcome, and the
// log text is returned no matter which branch was taken.
type Coordinator struct {
	Writer   *SubmissionWriter
	Validate *ValidationStage
	Generate *GenerationStage
	WS       *workspace.Workspace
}

var _ domain.Pipeline = (*Coordinator)(nil)

// NewCoordinator wires a coordinator over a workspace with the given
// validator and generator stages.
func NewCoordinator(ws *workspace.Workspace, v *ValidationStage, g *GenerationStage) *Coordinator {
	return &Coordinator{
		Writer:   &SubmissionWriter{WS: ws},
		Validate: v,
		Generate: g,
		WS:       ws,
	}
}

// Run executes the pipeline for one job. The per-user workspace lock is held
// for the whole run, so a concurrent refresh cannot wipe directories under
// an in-flight job.
func (c *Coordinator) Run(ctx context.Context, job domain.Job) domain.JobResult {
	res := domain.JobResult{JobID: job.ID, User: job.User}

	// The plot name never reaches the filesystem unless generation runs,
	// but reject traversal attempts before doing anything at all.
	if !workspace.ValidSegment(job.OutPlot) {
		slog.Error("Rejected unsafe plot name", "user", job.User, "outplot", job.OutPlot)
		res.Outcome = domain.OutcomeWriteFailed
		res.Log = fmt.Sprintf("invalid plot name %q for user %q\n", job.OutPlot, job.User)
		return res
	}

	release := c.WS.Acquire(job.User)
	defer release()

	path := c.Writer.Write(job.User, job.OutName, []byte(job.Source))
	res.WrittenPath = path
	if path == "" {
		res.Outcome = domain.OutcomeWriteFailed
		res.Log = fmt.Sprintf("failed to write submission %q for user %q\n", job.OutName, job.User)
		return res
	}

	logPath := path + ".log"
	relPath := c.WS.Rel(path)

	res.ValidationStatus = c.Validate.Run(ctx, relPath, logPath)
	slog.Info("Validation finished", "user", job.User, "out", job.OutName, "status", res.ValidationStatus)

	if res.ValidationStatus == 0 {
		res.GenerationStatus = c.Generate.Run(ctx, job.User, relPath, job.OutPlot, logPath)
		if res.GenerationStatus == 0 {
			res.Outcome = domain.OutcomeOK
			slog.Info("Simulation data completed", "user", job.User, "outplot", job.OutPlot)
		} else {
			res.Outcome = domain.OutcomeGenerationFailed
			slog.Warn("Simulation generation failed", "user", job.User, "out", job.OutName, "status", res.GenerationStatus)
		}
	} else {
		res.Outcome = domain.OutcomeValidationFailed
		slog.Warn("Function validation failed", "user", job.User, "out", job.OutName)
	}

	res.Log = readLog(logPath)
	return res
}

// readLog returns the log file's content, or "" if it was never created.
func readLog(logPath string) string {
	data, err := os.ReadFile(logPath)
	if err != nil {
		return ""
	}
	return string(data)
}
