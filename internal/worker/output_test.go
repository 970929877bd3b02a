package worker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/netrun/internal/models"
)

func TestScanForErrors(t *testing.T) {
	tests := []struct {
		name   string
		output string
		marker string
		found  bool
	}{
		{"clean output", "interface GigabitEthernet0/1\n description uplink", "", false},
		{"invalid input", "% Invalid input detected at '^' marker.", "% Invalid input", true},
		{"invalid input long form", "foo\nInvalid input detected\nbar", "Invalid input detected", true},
		{"generic error", "Error: cannot apply", "Error:", true},
		{"ambiguous", "% Ambiguous command:  \"sh\"", "Ambiguous command", true},
		{"incomplete", "% Incomplete command.", "Incomplete command", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			marker, found := scanForErrors(tt.output)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.marker, marker)
		})
	}
}

func TestUnifiedDiff(t *testing.T) {
	diff, err := unifiedDiff("line one\nline two\n", "line one\nline changed\n")
	require.NoError(t, err)

	assert.Contains(t, diff, "--- pre")
	assert.Contains(t, diff, "+++ post")
	assert.Contains(t, diff, "-line two")
	assert.Contains(t, diff, "+line changed")
}

func TestUnifiedDiff_IdenticalInputsEmpty(t *testing.T) {
	diff, err := unifiedDiff("same\n", "same\n")
	require.NoError(t, err)
	assert.Empty(t, diff)
}

func TestFinishCancelled(t *testing.T) {
	result := &models.DeviceExecutionResult{Status: models.ExecutionStatusSuccess, Attempts: 1}
	logs := []string{"Connecting to 10.0.0.1:22..."}

	out := finishCancelled(result, logs)

	assert.Equal(t, models.ExecutionStatusCancelled, out.Status)
	assert.Equal(t, "Job was cancelled by user request", out.Error)
	assert.Equal(t, []string{
		"Connecting to 10.0.0.1:22...",
		"Execution cancelled by user request",
	}, out.Logs)
	assert.False(t, out.LogTrimmed)
}

func TestFinishFailed_TrimsOversizedLogs(t *testing.T) {
	result := &models.DeviceExecutionResult{Status: models.ExecutionStatusSuccess, Attempts: 1}
	logs := []string{"first", strings.Repeat("y", models.MaxLogBytes+64)}

	out := finishFailed(result, logs, "Execution error: boom")

	assert.Equal(t, models.ExecutionStatusFailed, out.Status)
	assert.Equal(t, "Execution error: boom", out.Error)
	assert.True(t, out.LogTrimmed)
	assert.Equal(t, "first", out.Logs[0])
}
