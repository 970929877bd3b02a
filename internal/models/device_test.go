package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeviceTarget(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    DeviceTarget
		wantErr bool
	}{
		{name: "host and port", input: "10.0.0.1:2222", want: DeviceTarget{Host: "10.0.0.1", Port: 2222}},
		{name: "host only defaults port", input: "10.0.0.1", want: DeviceTarget{Host: "10.0.0.1", Port: 22}},
		{name: "hostname", input: "edge-sw1.example.net:22", want: DeviceTarget{Host: "edge-sw1.example.net", Port: 22}},
		{name: "surrounding whitespace", input: "  10.0.0.1:22  ", want: DeviceTarget{Host: "10.0.0.1", Port: 22}},
		{name: "empty", input: "", wantErr: true},
		{name: "missing host", input: ":22", wantErr: true},
		{name: "non-numeric port", input: "10.0.0.1:ssh", wantErr: true},
		{name: "port out of range", input: "10.0.0.1:70000", wantErr: true},
		{name: "zero port", input: "10.0.0.1:0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDeviceTarget(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeviceTarget_Key(t *testing.T) {
	target := NewDeviceTarget("10.0.0.1", 0)
	assert.Equal(t, "10.0.0.1:22", target.Key())
	assert.Equal(t, 22, target.Port)
}

func TestDeviceResult_TerminalIsSetOnce(t *testing.T) {
	result := NewDeviceResult(DeviceTarget{Host: "10.0.0.1", Port: 22})
	assert.Equal(t, DeviceStatusQueued, result.Status)

	result.MarkRunning()
	require.NotNil(t, result.StartedAt)

	result.ApplyExecution(&DeviceExecutionResult{
		Status:   ExecutionStatusSuccess,
		Logs:     []string{"applied"},
		Attempts: 1,
	})
	assert.Equal(t, DeviceStatusSuccess, result.Status)
	require.NotNil(t, result.CompletedAt)
	firstCompleted := *result.CompletedAt

	// A later cancel or re-apply must not overwrite the terminal outcome
	result.MarkCancelled()
	assert.Equal(t, DeviceStatusSuccess, result.Status)

	result.ApplyExecution(NewFailedExecution("late failure"))
	assert.Equal(t, DeviceStatusSuccess, result.Status)
	assert.Equal(t, firstCompleted, *result.CompletedAt)
}

func TestDeviceResult_Clone(t *testing.T) {
	result := NewDeviceResult(DeviceTarget{Host: "10.0.0.1", Port: 22})
	result.MarkRunning()
	result.Logs = append(result.Logs, "connecting")

	clone := result.Clone()
	clone.Logs[0] = "mutated"
	clone.Status = DeviceStatusFailed

	assert.Equal(t, "connecting", result.Logs[0])
	assert.Equal(t, DeviceStatusRunning, result.Status)
}
