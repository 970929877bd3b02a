// -----------------------------------------------------------------------
// Simulated device worker - scripted outcomes without reachable devices
// -----------------------------------------------------------------------

package worker

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/netrun/internal/interfaces"
	"github.com/ternarybob/netrun/internal/models"
)

// Scenario scripts simulated outcomes by device key. Outcomes for a key are
// consumed one per attempt; a missing or exhausted key succeeds. Valid
// outcome values are "success", "failed", and "cancelled".
type Scenario struct {
	Outcomes map[string][]string `yaml:"outcomes"`
	DelaysMS map[string]int      `yaml:"delays_ms"`
}

// LoadScenario reads and parses a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	return &sc, nil
}

// SimulatedWorker fabricates device executions for local runs and tests. It
// honors the same cancel checkpoints as the SSH worker and produces the same
// log line shapes.
type SimulatedWorker struct {
	logger arbor.ILogger
	delay  time.Duration

	mu      sync.Mutex
	pending map[string][]string
	delays  map[string]time.Duration
}

// NewSimulatedWorker creates a simulated worker, loading the scenario file
// from settings when one is configured.
func NewSimulatedWorker(logger arbor.ILogger, settings Settings) (interfaces.DeviceWorker, error) {
	w := &SimulatedWorker{
		logger:  logger,
		delay:   settings.SimulatedDelay,
		pending: make(map[string][]string),
		delays:  make(map[string]time.Duration),
	}
	if settings.ScenarioFile != "" {
		sc, err := LoadScenario(settings.ScenarioFile)
		if err != nil {
			return nil, err
		}
		w.applyScenario(sc)
		logger.Info().
			Str("scenario", settings.ScenarioFile).
			Int("scripted_devices", len(sc.Outcomes)).
			Msg("Simulated worker scenario loaded")
	}
	return w, nil
}

// NewSimulatedWorkerFromScenario builds a simulated worker around an
// in-memory scenario.
func NewSimulatedWorkerFromScenario(logger arbor.ILogger, delay time.Duration, sc *Scenario) *SimulatedWorker {
	w := &SimulatedWorker{
		logger:  logger,
		delay:   delay,
		pending: make(map[string][]string),
		delays:  make(map[string]time.Duration),
	}
	if sc != nil {
		w.applyScenario(sc)
	}
	return w
}

func (w *SimulatedWorker) applyScenario(sc *Scenario) {
	for key, outcomes := range sc.Outcomes {
		w.pending[key] = append([]string{}, outcomes...)
	}
	for key, ms := range sc.DelaysMS {
		w.delays[key] = time.Duration(ms) * time.Millisecond
	}
}

// nextOutcome consumes the next scripted outcome for the device, defaulting
// to success when the script is missing or exhausted.
func (w *SimulatedWorker) nextOutcome(key string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	queue := w.pending[key]
	if len(queue) == 0 {
		return string(models.ExecutionStatusSuccess)
	}
	outcome := queue[0]
	w.pending[key] = queue[1:]
	return strings.ToLower(strings.TrimSpace(outcome))
}

func (w *SimulatedWorker) delayFor(key string) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	if d, ok := w.delays[key]; ok {
		return d
	}
	return w.delay
}

// Run fabricates one device execution following the scripted outcome.
func (w *SimulatedWorker) Run(ctx context.Context, target models.DeviceTarget, params models.DeviceParams,
	commands []string, verifyCmds []string, opts interfaces.RunOptions, cancel interfaces.CancelSignal) *models.DeviceExecutionResult {

	key := target.Key()
	result := &models.DeviceExecutionResult{Status: models.ExecutionStatusSuccess, Attempts: 1}
	var logs []string
	addLog := func(line string) { logs = append(logs, line) }
	isCancelled := func() bool { return cancel.IsCancelled() || ctx.Err() != nil }

	if isCancelled() {
		return finishCancelled(result, logs)
	}

	addLog(fmt.Sprintf("Connecting to %s:%d...", params.Host, params.Port))
	if delay := w.delayFor(key); delay > 0 {
		if !cancel.SleepInterruptible(delay) {
			return finishCancelled(result, logs)
		}
	}
	addLog("Connected successfully")

	if len(verifyCmds) > 0 {
		addLog("Running pre-verification commands...")
		outputs := make([]string, 0, len(verifyCmds))
		for _, cmd := range verifyCmds {
			if isCancelled() {
				return finishCancelled(result, logs)
			}
			addLog("  > " + cmd)
			outputs = append(outputs, simulatedVerifyOutput(key, cmd, "pre"))
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

	switch w.nextOutcome(key) {
	case string(models.ExecutionStatusCancelled):
		return finishCancelled(result, logs)
	case string(models.ExecutionStatusFailed):
		result.ApplyOutput = "% Invalid input detected at '^' marker."
		addLog("Configuration applied")
		marker, _ := scanForErrors(result.ApplyOutput)
		msg := "Command error detected: " + marker
		addLog("ERROR: " + msg)
		return finishFailed(result, logs, msg)
	default:
		result.ApplyOutput = strings.Join(commands, "\n")
		addLog("Configuration applied")
	}

	if len(verifyCmds) > 0 {
		addLog("Running post-verification commands...")
		outputs := make([]string, 0, len(verifyCmds))
		for _, cmd := range verifyCmds {
			if isCancelled() {
				return finishCancelled(result, logs)
			}
			addLog("  > " + cmd)
			outputs = append(outputs, simulatedVerifyOutput(key, cmd, "post"))
		}
		result.PostOutput = strings.Join(outputs, "\n")
		addLog("Post-verification complete")

		if diff, err := unifiedDiff(result.PreOutput, result.PostOutput); err == nil {
			result.Diff = diff
			addLog("Diff created")
		}
	}

	addLog("Disconnected")
	return finishSuccess(result, logs)
}

// simulatedVerifyOutput fabricates deterministic verify output that changes
// between the pre and post phases so runs produce a visible diff.
func simulatedVerifyOutput(key, cmd, phase string) string {
	return fmt.Sprintf("%s output from %s (captured %s-apply)", cmd, key, phase)
}
