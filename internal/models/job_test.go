package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobCreate_ApplyDefaults(t *testing.T) {
	create := &JobCreate{
		Canary:   DeviceTarget{Host: "10.1.0.1"},
		Commands: "interface Gi0/1\n description uplink",
	}
	create.ApplyDefaults()

	assert.Equal(t, VerifyModeCanary, create.VerifyMode)
	assert.Equal(t, 5, create.ConcurrencyLimit)
	assert.Equal(t, 1.0, create.StaggerDelay)
	require.NotNil(t, create.StopOnError)
	assert.True(t, *create.StopOnError)
	assert.Equal(t, 22, create.Canary.Port)
}

func TestJobCreate_ApplyDefaultsKeepsExplicitValues(t *testing.T) {
	stop := false
	create := &JobCreate{
		Canary:           DeviceTarget{Host: "10.1.0.1", Port: 2222},
		Commands:         "show version",
		VerifyMode:       VerifyModeAll,
		ConcurrencyLimit: 2,
		StaggerDelay:     0.5,
		StopOnError:      &stop,
	}
	create.ApplyDefaults()

	assert.Equal(t, VerifyModeAll, create.VerifyMode)
	assert.Equal(t, 2, create.ConcurrencyLimit)
	assert.Equal(t, 0.5, create.StaggerDelay)
	assert.False(t, *create.StopOnError)
	assert.Equal(t, 2222, create.Canary.Port)
}

func TestSplitCommandBlock(t *testing.T) {
	cmds := SplitCommandBlock("interface Gi0/1\n\n  description uplink  \n\nend\n")
	assert.Equal(t, []string{"interface Gi0/1", "description uplink", "end"}, cmds)

	assert.Empty(t, SplitCommandBlock("\n  \n"))
}

func TestDeviceTarget_KeyFormat(t *testing.T) {
	assert.Equal(t, "10.1.0.1:22", NewDeviceTarget("10.1.0.1", 0).Key())
	assert.Equal(t, "10.1.0.1:2222", NewDeviceTarget("10.1.0.1", 2222).Key())
}

func TestJobStatus_ExitCode(t *testing.T) {
	assert.Equal(t, 0, JobStatusCompleted.ExitCode())
	assert.Equal(t, 1, JobStatusFailed.ExitCode())
	assert.Equal(t, 130, JobStatusCancelled.ExitCode())
}

func TestJobRecord_EffectiveVerifyCmds(t *testing.T) {
	job := &JobRecord{
		VerifyMode: VerifyModeCanary,
		VerifyCmds: []string{},
		DeviceParams: map[string]DeviceParams{
			"10.1.0.1:22": {Host: "10.1.0.1", Port: 22, VerifyCmds: []string{"show run"}},
			"10.1.0.2:22": {Host: "10.1.0.2", Port: 22, VerifyCmds: []string{"show run"}},
		},
	}

	assert.Equal(t, []string{"show run"}, job.EffectiveVerifyCmds("10.1.0.1:22", true))
	assert.Nil(t, job.EffectiveVerifyCmds("10.1.0.2:22", false), "canary mode skips non-canary verify")

	job.VerifyMode = VerifyModeAll
	assert.Equal(t, []string{"show run"}, job.EffectiveVerifyCmds("10.1.0.2:22", false))

	job.VerifyCmds = []string{"show ip int brief"}
	assert.Equal(t, []string{"show ip int brief"}, job.EffectiveVerifyCmds("10.1.0.2:22", false),
		"job-level override wins over snapshot commands")

	job.VerifyMode = VerifyModeNone
	assert.Nil(t, job.EffectiveVerifyCmds("10.1.0.1:22", true))
}

func TestJobRecord_CloneIsDeep(t *testing.T) {
	create := &JobCreate{
		Canary:   DeviceTarget{Host: "10.1.0.1", Port: 22},
		Commands: "show version",
	}
	create.ApplyDefaults()
	job := NewJobRecord(create)
	target := DeviceTarget{Host: "10.1.0.1", Port: 22}
	job.Targets = []DeviceTarget{target}
	job.DeviceResults[target.Key()] = NewDeviceResult(target)
	job.DeviceParams[target.Key()] = DeviceParams{
		Host: "10.1.0.1", Port: 22, DeviceType: "cisco_ios",
		Username: "admin", Password: "secret", VerifyCmds: []string{"show run"},
	}

	clone := job.Clone()
	clone.DeviceResults[target.Key()].Status = DeviceStatusFailed
	clone.DeviceResults[target.Key()].Logs = append(clone.DeviceResults[target.Key()].Logs, "extra")
	params := clone.DeviceParams[target.Key()]
	params.VerifyCmds[0] = "mutated"

	assert.Equal(t, DeviceStatusQueued, job.DeviceResults[target.Key()].Status)
	assert.Empty(t, job.DeviceResults[target.Key()].Logs)
	assert.Equal(t, "show run", job.DeviceParams[target.Key()].VerifyCmds[0])
}

func TestDeviceResult_TerminalStatusSetOnce(t *testing.T) {
	target := DeviceTarget{Host: "10.1.0.1", Port: 22}
	result := NewDeviceResult(target)
	result.MarkRunning()
	require.Equal(t, DeviceStatusRunning, result.Status)
	require.NotNil(t, result.StartedAt)

	result.ApplyExecution(&DeviceExecutionResult{Status: ExecutionStatusSuccess, Attempts: 1})
	require.Equal(t, DeviceStatusSuccess, result.Status)
	firstCompleted := result.CompletedAt

	result.ApplyExecution(&DeviceExecutionResult{Status: ExecutionStatusFailed, Error: "late", Attempts: 2})
	assert.Equal(t, DeviceStatusSuccess, result.Status, "terminal status must not change")
	assert.Equal(t, firstCompleted, result.CompletedAt)

	result.MarkCancelled()
	assert.Equal(t, DeviceStatusSuccess, result.Status)
}
