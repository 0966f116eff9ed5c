package domain

import "context"

// Job is one user-submitted simulation request: a 2-D function definition
// plus the names the caller wants for the persisted file and the plot artifact.
type Job struct {
	ID      string `json:"id"`
	User    string `json:"user"`
	OutName string `json:"out"`
	OutPlot string `json:"outplot"`
	Source  string `json:"source"`

	// RawID is the internal Stream ID from Redis (e.g. 1700000-0).
	// We need this to Acknowledge the message later.
	RawID string `json:"-"`
}

// JobOutcome classifies how far a submission got through the pipeline.
// The raw log text remains the primary payload for callers; the outcome
// exists so programmatic consumers do not have to string-match the log.
type JobOutcome string

const (
	// OutcomeOK means the submission validated and the plot artifact was produced.
	OutcomeOK JobOutcome = "ok"
	// OutcomeGenerationFailed means validation passed but the generator exited non-zero.
	OutcomeGenerationFailed JobOutcome = "generation-failed"
	// OutcomeValidationFailed means the external validator rejected the submission.
	OutcomeValidationFailed JobOutcome = "validation-failed"
	// OutcomeWriteFailed means the submission never made it to disk; no
	// external process was run.
	OutcomeWriteFailed JobOutcome = "write-failed"
)

// JobResult carries the pipeline verdict plus the aggregated log of every
// stage that actually ran, in execution order.
type JobResult struct {
	JobID   string     `json:"job_id,omitempty"`
	User    string     `json:"user"`
	Outcome JobOutcome `json:"outcome"`

	// WrittenPath is the absolute path of the persisted submission,
	// empty when the write failed.
	WrittenPath string `json:"-"`

	// ValidationStatus is the validator's exit code. GenerationStatus is
	// the generator's exit code and is only meaningful for OutcomeOK and
	// OutcomeGenerationFailed.
	ValidationStatus int `json:"validation_status"`
	GenerationStatus int `json:"generation_status"`

	Log string `json:"log"`
}

// Pipeline runs a submission end to end: persist, validate, generate, read
// back the log. Implementations never return an error across this boundary;
// every failure mode is encoded in the JobResult.
type Pipeline interface {
	Run(ctx context.Context, job Job) JobResult
}
