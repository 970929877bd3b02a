// -----------------------------------------------------------------------
// SSH device worker - applies a command block over an interactive session
// -----------------------------------------------------------------------

package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/netrun/internal/interfaces"
	"github.com/ternarybob/netrun/internal/models"
)

// Connection and command pacing for real devices.
const (
	DefaultConnectTimeout  = 10 * time.Second
	DefaultCommandTimeout  = 20 * time.Second
	connectionRetryBackoff = 5 * time.Second
)

// Settings carries worker tunables resolved from configuration.
type Settings struct {
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	// SimulatedDelay paces each simulated device run.
	SimulatedDelay time.Duration
	// ScenarioFile optionally scripts simulated per-device outcomes.
	ScenarioFile string
}

// normalized returns settings with timeout defaults filled in.
func (s Settings) normalized() Settings {
	if s.ConnectTimeout <= 0 {
		s.ConnectTimeout = DefaultConnectTimeout
	}
	if s.CommandTimeout <= 0 {
		s.CommandTimeout = DefaultCommandTimeout
	}
	return s
}

// New selects the device worker for the configured mode. Anything except
// "simulated" gets the real SSH worker.
func New(logger arbor.ILogger, mode string, settings Settings) (interfaces.DeviceWorker, error) {
	if strings.EqualFold(mode, "simulated") {
		return NewSimulatedWorker(logger, settings)
	}
	return NewSSHWorker(logger, settings), nil
}

// SSHWorker executes configuration pushes against real devices. Results are
// always tagged; connection and command failures never escape as errors or
// panics.
type SSHWorker struct {
	logger   arbor.ILogger
	settings Settings
}

// NewSSHWorker creates the real device worker.
func NewSSHWorker(logger arbor.ILogger, settings Settings) interfaces.DeviceWorker {
	return &SSHWorker{logger: logger, settings: settings.normalized()}
}

// Run applies the command block to one device with pre/post verification.
// Cancel is observed before connecting, before each verify command, and
// between apply and post-verify.
func (w *SSHWorker) Run(ctx context.Context, target models.DeviceTarget, params models.DeviceParams,
	commands []string, verifyCmds []string, opts interfaces.RunOptions, cancel interfaces.CancelSignal) *models.DeviceExecutionResult {

	w.logger.Debug().
		Str("device", target.Key()).
		Int("commands", len(commands)).
		Bool("canary", opts.IsCanary).
		Msg("Starting device execution")

	result := &models.DeviceExecutionResult{Status: models.ExecutionStatusSuccess, Attempts: 1}
	var logs []string
	addLog := func(line string) { logs = append(logs, line) }
	isCancelled := func() bool { return cancel.IsCancelled() || ctx.Err() != nil }

	if isCancelled() {
		return finishCancelled(result, logs)
	}

	maxRetries := 0
	if !opts.IsCanary {
		maxRetries = 1
	}

	var shell *deviceShell
	for attempt := 0; ; attempt++ {
		addLog(fmt.Sprintf("Connecting to %s:%d...", params.Host, params.Port))
		if isCancelled() {
			return finishCancelled(result, logs)
		}
		sh, err := dialShell(params, w.settings.ConnectTimeout, w.settings.CommandTimeout)
		if err == nil {
			shell = sh
			addLog("Connected successfully")
			break
		}
		if attempt < maxRetries && opts.RetryOnConnectionError {
			addLog(fmt.Sprintf("Connection failed: %v. Retrying in 5s...", err))
			if !cancel.SleepInterruptible(connectionRetryBackoff) {
				return finishCancelled(result, logs)
			}
			continue
		}
		addLog(fmt.Sprintf("Connection failed: %v", err))
		return finishFailed(result, logs, fmt.Sprintf("Connection failed: %v", err))
	}
	defer shell.Close()

	if len(verifyCmds) > 0 {
		addLog("Running pre-verification commands...")
		outputs := make([]string, 0, len(verifyCmds))
		for _, cmd := range verifyCmds {
			if isCancelled() {
				return finishCancelled(result, logs)
			}
			addLog("  > " + cmd)
			out, err := shell.run(cmd)
			if err != nil {
				addLog(fmt.Sprintf("ERROR: %v", err))
				return finishFailed(result, logs, fmt.Sprintf("Execution error: %v", err))
			}
			outputs = append(outputs, out)
		}
		result.PreOutput = strings.Join(outputs, "\n")
		addLog("Pre-verification complete")
	}

	addLog("Applying configuration commands...")
	for _, cmd := range commands {
		if isCancelled() {
			return finishCancelled(result, logs)
		}
		addLog("  > " + cmd)
	}
	applyOutput, err := shell.applyConfig(params.DeviceType, commands)
	result.ApplyOutput = applyOutput
	if err != nil {
		addLog(fmt.Sprintf("ERROR: %v", err))
		return finishFailed(result, logs, fmt.Sprintf("Execution error: %v", err))
	}
	addLog("Configuration applied")

	if marker, found := scanForErrors(applyOutput); found {
		msg := "Command error detected: " + marker
		addLog("ERROR: " + msg)
		return finishFailed(result, logs, msg)
	}

	if len(verifyCmds) > 0 {
		addLog("Running post-verification commands...")
		outputs := make([]string, 0, len(verifyCmds))
		for _, cmd := range verifyCmds {
			if isCancelled() {
				return finishCancelled(result, logs)
			}
			addLog("  > " + cmd)
			out, err := shell.run(cmd)
			if err != nil {
				addLog(fmt.Sprintf("ERROR: %v", err))
				return finishFailed(result, logs, fmt.Sprintf("Execution error: %v", err))
			}
			outputs = append(outputs, out)
		}
		result.PostOutput = strings.Join(outputs, "\n")
		addLog("Post-verification complete")

		if diff, diffErr := unifiedDiff(result.PreOutput, result.PostOutput); diffErr == nil {
			result.Diff = diff
			addLog("Diff created")
		}
	}

	shell.Close()
	addLog("Disconnected")

	return finishSuccess(result, logs)
}
