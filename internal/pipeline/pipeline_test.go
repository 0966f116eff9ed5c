package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datavista/launchsim/internal/domain"
	"github.com/datavista/launchsim/internal/procexec"
	"github.com/datavista/launchsim/internal/workspace"
)

// validatorScript accepts anything that does not contain "notafunction" and
// drops a marker file in the working directory so tests can tell it ran.
const validatorScript = `#!/bin/sh
touch validated.marker
echo "validating $1"
if grep -q notafunction "$1"; then
	echo "parse error in $1"
	exit 1
fi
exit 0
`

// generatorScript writes a stub artifact at the requested relative path and
// drops its own marker.
const generatorScript = `#!/bin/sh
touch generated.marker
echo "generating $2 from $1"
echo '{}' > "$2"
exit 0
`

type harness struct {
	ws    *workspace.Workspace
	coord *Coordinator
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	root := t.TempDir()
	ws := workspace.New(root, "functions/user", "plots/user")

	scripts := filepath.Join(root, "scripts")
	require.NoError(t, os.MkdirAll(scripts, 0o755))
	validator := filepath.Join(scripts, "test_funcs2d")
	generator := filepath.Join(scripts, "gen_heatmap")
	require.NoError(t, os.WriteFile(validator, []byte(validatorScript), 0o755))
	require.NoError(t, os.WriteFile(generator, []byte(generatorScript), 0o755))

	runner := &procexec.Runner{}
	coord := NewCoordinator(
		ws,
		&ValidationStage{Bin: validator, Runner: runner, WS: ws},
		&GenerationStage{Bin: generator, Runner: runner, WS: ws},
	)
	return &harness{ws: ws, coord: coord}
}

func (h *harness) ranValidator() bool {
	_, err := os.Stat(filepath.Join(h.ws.Root, "validated.marker"))
	return err == nil
}

func (h *harness) ranGenerator() bool {
	_, err := os.Stat(filepath.Join(h.ws.Root, "generated.marker"))
	return err == nil
}

func TestRunSuccess(t *testing.T) {
	h := newHarness(t)

	res := h.coord.Run(context.Background(), domain.Job{
		User:    "alice",
		OutName: "f1.cfg",
		OutPlot: "f1.json",
		Source:  "100\tx*y",
	})

	assert.Equal(t, domain.OutcomeOK, res.Outcome)
	assert.Equal(t, 0, res.ValidationStatus)
	assert.Equal(t, 0, res.GenerationStatus)
	assert.Equal(t, h.ws.FunctionsPath("alice", "f1.cfg"), res.WrittenPath)

	// Submission persisted verbatim.
	data, err := os.ReadFile(res.WrittenPath)
	require.NoError(t, err)
	assert.Equal(t, "100\tx*y", string(data))

	// Artifact lands in the user's plots directory.
	_, err = os.Stat(h.ws.PlotsPath("alice", "f1.json"))
	require.NoError(t, err)

	// Both stages appear in the log, validation first.
	vIdx := strings.Index(res.Log, "validating functions/user/alice/f1.cfg")
	gIdx := strings.Index(res.Log, "generating plots/user/alice/f1.json from functions/user/alice/f1.cfg")
	require.GreaterOrEqual(t, vIdx, 0, "log: %q", res.Log)
	require.GreaterOrEqual(t, gIdx, 0, "log: %q", res.Log)
	assert.Less(t, vIdx, gIdx)
}

func TestRunValidationFailureSkipsGeneration(t *testing.T) {
	h := newHarness(t)

	res := h.coord.Run(context.Background(), domain.Job{
		User:    "alice",
		OutName: "f2.cfg",
		OutPlot: "f2.json",
		Source:  "abc\tnotafunction(",
	})

	assert.Equal(t, domain.OutcomeValidationFailed, res.Outcome)
	assert.NotEqual(t, 0, res.ValidationStatus)
	assert.True(t, h.ranValidator())
	assert.False(t, h.ranGenerator())

	_, err := os.Stat(h.ws.PlotsPath("alice", "f2.json"))
	assert.True(t, os.IsNotExist(err))

	assert.Contains(t, res.Log, "parse error")
	assert.NotContains(t, res.Log, "generating")
}

func TestRunWriteFailure(t *testing.T) {
	h := newHarness(t)

	// Occupy the functions base dir with a regular file so neither the
	// directory nor the submission file can be created.
	require.NoError(t, os.WriteFile(filepath.Join(h.ws.Root, "functions"), []byte("in the way"), 0o644))

	res := h.coord.Run(context.Background(), domain.Job{
		User:    "alice",
		OutName: "f1.cfg",
		OutPlot: "f1.json",
		Source:  "100\tx*y",
	})

	assert.Equal(t, domain.OutcomeWriteFailed, res.Outcome)
	assert.Empty(t, res.WrittenPath)
	assert.Contains(t, res.Log, "failed to write submission")
	assert.False(t, h.ranValidator(), "no subprocess may run after a write failure")
	assert.False(t, h.ranGenerator())
}

func TestRunRejectsTraversal(t *testing.T) {
	h := newHarness(t)

	for _, job := range []domain.Job{
		{User: "../evil", OutName: "f1.cfg", OutPlot: "f1.json"},
		{User: "alice", OutName: "../../f1.cfg", OutPlot: "f1.json"},
		{User: "alice", OutName: "f1.cfg", OutPlot: "../f1.json"},
		{User: "alice", OutName: "f1.cfg", OutPlot: ""},
	} {
		res := h.coord.Run(context.Background(), job)
		assert.Equal(t, domain.OutcomeWriteFailed, res.Outcome, "job %+v", job)
		assert.False(t, h.ranValidator(), "job %+v", job)
		if !workspace.ValidSegment(job.OutPlot) {
			// A bad plot name is reported as such, not as a write failure.
			assert.Contains(t, res.Log, "invalid plot name", "job %+v", job)
		}
	}

	// Nothing escaped the workspace root.
	_, err := os.Stat(filepath.Join(filepath.Dir(h.ws.Root), "evil"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunLogLifetimeIsOneSubmission(t *testing.T) {
	h := newHarness(t)

	job := domain.Job{User: "alice", OutName: "f1.cfg", OutPlot: "f1.json", Source: "100\tx*y"}
	first := h.coord.Run(context.Background(), job)
	second := h.coord.Run(context.Background(), job)

	require.Equal(t, domain.OutcomeOK, first.Outcome)
	require.Equal(t, domain.OutcomeOK, second.Outcome)

	// The log is overwritten per call, never merged across submissions.
	assert.Equal(t, 1, strings.Count(second.Log, "validating"))
	assert.Equal(t, 1, strings.Count(second.Log, "generating"))
}

func TestRunUsersDoNotCollide(t *testing.T) {
	h := newHarness(t)

	for _, user := range []string{"alice", "bob"} {
		res := h.coord.Run(context.Background(), domain.Job{
			User:    user,
			OutName: "f1.cfg",
			OutPlot: "f1.json",
			Source:  "100\t" + user,
		})
		require.Equal(t, domain.OutcomeOK, res.Outcome)
	}

	alice, err := os.ReadFile(h.ws.FunctionsPath("alice", "f1.cfg"))
	require.NoError(t, err)
	bob, err := os.ReadFile(h.ws.FunctionsPath("bob", "f1.cfg"))
	require.NoError(t, err)
	assert.NotEqual(t, string(alice), string(bob))
}
