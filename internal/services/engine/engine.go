// -----------------------------------------------------------------------
// Execution engine - canary-first rollout with bounded, staggered
// fan-out, cooperative pause/cancel, and per-device retry
// -----------------------------------------------------------------------

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/netrun/internal/interfaces"
	"github.com/ternarybob/netrun/internal/models"
	"github.com/ternarybob/netrun/internal/services/control"
)

// completion carries one finished device execution back to the admission
// loop.
type completion struct {
	key  string
	exec *models.DeviceExecutionResult
}

// Engine drives a job from running to a terminal status: the canary device
// first, strictly alone, then the remaining devices under the concurrency
// cap with an optional stagger between admissions. The engine is the only
// component that publishes events during a run; workers just return tagged
// results.
type Engine struct {
	logger    arbor.ILogger
	worker    interfaces.DeviceWorker
	registry  interfaces.JobRegistry
	bus       interfaces.EventBus
	pausePoll time.Duration

	mu      sync.Mutex
	results map[string]*models.JobRunSummary
}

// New creates an execution engine wired to the given worker, registry, and
// event bus.
func New(logger arbor.ILogger, worker interfaces.DeviceWorker, registry interfaces.JobRegistry, bus interfaces.EventBus) *Engine {
	return &Engine{
		logger:    logger,
		worker:    worker,
		registry:  registry,
		bus:       bus,
		pausePoll: control.DefaultPausePollInterval,
		results:   make(map[string]*models.JobRunSummary),
	}
}

// Result returns the stored summary of the job's most recent run.
func (e *Engine) Result(jobID string) (*models.JobRunSummary, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	summary, ok := e.results[jobID]
	return summary, ok
}

// DropResult forgets the stored summary for an evicted job.
func (e *Engine) DropResult(jobID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.results, jobID)
}

// RunJob executes one run of the job to completion and returns its summary.
// The error return covers only a missing job; execution problems are folded
// into the summary and the job record. The caller owns the lifecycle start
// transition; the engine applies the terminal one.
func (e *Engine) RunJob(ctx context.Context, jobID string, req *models.RunRequest, ctl *control.Control) (summary *models.JobRunSummary, err error) {
	job, jerr := e.registry.Get(jobID)
	if jerr != nil {
		return nil, jerr
	}
	if ctl == nil {
		ctl = control.New()
	}
	cfg := req.ConfigFor(job)
	if cfg.ConcurrencyLimit < 1 {
		cfg.ConcurrencyLimit = 1
	}
	if cfg.NonCanaryRetryLimit < 0 {
		cfg.NonCanaryRetryLimit = 0
	}

	summary = models.NewJobRunSummary(jobID)
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().
				Str("job_id", jobID).
				Str("panic", fmt.Sprint(r)).
				Msg("Job run panicked")
			e.finish(summary, models.JobStatusFailed)
		}
	}()

	targets, canary := resolveRunTargets(job, req)
	canaryKey := canary.Key()

	e.logger.Info().
		Str("job_id", jobID).
		Str("canary", canaryKey).
		Int("devices", len(targets)).
		Int("concurrency", cfg.ConcurrencyLimit).
		Bool("stop_on_error", cfg.StopOnError).
		Msg("Starting job run")

	e.bus.Publish(models.NewJobStatusEvent(jobID, models.JobStatusRunning, ""))

	if ctl.IsCancelled() {
		return e.finish(summary, models.JobStatusCancelled), nil
	}

	if !containsTarget(targets, canaryKey) {
		exec := models.NewFailedExecution("Canary is not part of target devices")
		summary.DeviceResults[canaryKey] = exec
		e.recordCanaryMismatch(jobID, canary, exec)
		return e.finish(summary, models.JobStatusFailed), nil
	}

	// Canary phase. No peers in flight, no connection retry: a canary
	// failure has to surface before anything else is touched.
	e.markRunning(jobID, canaryKey, "Starting canary")
	ctl.WaitWhilePaused(e.pausePoll)
	if ctl.IsCancelled() {
		e.markCancelledBeforeRun(jobID, canaryKey)
		return e.finish(summary, models.JobStatusCancelled), nil
	}

	canaryExec := e.runDevice(ctx, job, canary, true, ctl)
	summary.DeviceResults[canaryKey] = canaryExec
	e.applyCompletion(jobID, canaryKey, canaryExec)

	if canaryExec.Status != models.ExecutionStatusSuccess {
		e.logger.Warn().
			Str("job_id", jobID).
			Str("canary", canaryKey).
			Str("status", string(canaryExec.Status)).
			Msg("Canary did not succeed, run stopped")
		final := models.JobStatusFailed
		if canaryExec.Status == models.ExecutionStatusCancelled {
			final = models.JobStatusCancelled
		}
		return e.finish(summary, final), nil
	}

	pending := remainingTargets(targets, canaryKey)
	if len(pending) == 0 {
		return e.finish(summary, models.JobStatusCompleted), nil
	}

	cancelObserved := e.runFanOut(ctx, job, summary, pending, cfg, ctl)

	return e.finish(summary, finalStatus(summary, cancelObserved || ctl.IsCancelled())), nil
}

// runFanOut admits the post-canary devices in order, keeping at most
// cfg.ConcurrencyLimit in flight and sleeping the stagger delay after each
// admission. Admission halts on cancel, and on the first non-success result
// when stop-on-error is set; in-flight devices always drain to a result
// before return. Reports whether a cancel was observed.
func (e *Engine) runFanOut(ctx context.Context, job *models.JobRecord, summary *models.JobRunSummary, pending []models.DeviceTarget, cfg models.RunConfig, ctl *control.Control) bool {
	// Buffered for every possible completion so workers never block on send
	// after the loop stops receiving.
	completions := make(chan completion, len(pending))
	inFlight := 0
	cancelObserved := false

	cancelPending := func() {
		for _, target := range pending {
			e.markCancelledBeforeRun(job.JobID, target.Key())
		}
		pending = nil
	}

	for len(pending) > 0 || inFlight > 0 {
		ctl.WaitWhilePaused(e.pausePoll)

		if ctl.IsCancelled() {
			cancelObserved = true
		}
		if cancelObserved && len(pending) > 0 {
			cancelPending()
		}

		for len(pending) > 0 && inFlight < cfg.ConcurrencyLimit {
			if cfg.StopOnError && anyNonSuccess(summary) {
				e.logger.Info().
					Str("job_id", job.JobID).
					Int("pending", len(pending)).
					Msg("Stopping admission after device failure")
				cancelPending()
				break
			}
			if ctl.IsCancelled() {
				cancelObserved = true
				cancelPending()
				break
			}

			target := pending[0]
			pending = pending[1:]
			e.markRunning(job.JobID, target.Key(), "")
			inFlight++
			go func(target models.DeviceTarget) {
				completions <- completion{
					key:  target.Key(),
					exec: e.runDeviceWithRetry(ctx, job, target, cfg, ctl),
				}
			}(target)

			if d := cfg.StaggerDuration(); d > 0 {
				if !ctl.SleepInterruptible(d) {
					cancelObserved = true
					break
				}
			}
		}

		if inFlight == 0 {
			break
		}

		comp := <-completions
		inFlight--
		summary.DeviceResults[comp.key] = comp.exec
		e.applyCompletion(job.JobID, comp.key, comp.exec)
		if comp.exec.Status == models.ExecutionStatusCancelled {
			// A worker saw the cancel flag first; latch it so the loop and
			// any peers stop as well.
			cancelObserved = true
			ctl.Cancel()
		}
	}
	return cancelObserved
}

// runDevice invokes the worker once for one device.
func (e *Engine) runDevice(ctx context.Context, job *models.JobRecord, target models.DeviceTarget, isCanary bool, ctl *control.Control) *models.DeviceExecutionResult {
	key := target.Key()
	exec := e.worker.Run(ctx, target, job.DeviceParams[key],
		models.SplitCommandBlock(job.Commands),
		job.EffectiveVerifyCmds(key, isCanary),
		interfaces.RunOptions{IsCanary: isCanary, RetryOnConnectionError: !isCanary},
		ctl)
	if exec == nil {
		exec = models.NewFailedExecution("No execution result")
	}
	if exec.Attempts < 1 {
		exec.Attempts = 1
	}
	return exec
}

// runDeviceWithRetry applies the non-canary retry policy around runDevice:
// failed results retry up to the limit with a backoff sleep between
// attempts; cancelled results never retry. Logs accumulate across attempts
// under the usual size cap, and Attempts counts worker invocations.
func (e *Engine) runDeviceWithRetry(ctx context.Context, job *models.JobRecord, target models.DeviceTarget, cfg models.RunConfig, ctl *control.Control) *models.DeviceExecutionResult {
	var accumulated []string
	var last *models.DeviceExecutionResult
	anyTrimmed := false

	for attempt := 0; attempt <= cfg.NonCanaryRetryLimit; attempt++ {
		if ctl.IsCancelled() {
			exec := models.NewCancelledExecution()
			if attempt > 0 {
				exec.Attempts = attempt
			}
			exec.Logs, exec.LogTrimmed = models.TrimLogLines(append(accumulated, exec.Logs...))
			exec.LogTrimmed = exec.LogTrimmed || anyTrimmed
			return exec
		}

		exec := e.runDevice(ctx, job, target, false, ctl)
		exec.Attempts = attempt + 1
		accumulated = append(accumulated, exec.Logs...)
		anyTrimmed = anyTrimmed || exec.LogTrimmed
		last = exec

		if exec.Status != models.ExecutionStatusFailed {
			break
		}
		if attempt < cfg.NonCanaryRetryLimit {
			e.logger.Debug().
				Str("job_id", job.JobID).
				Str("device", target.Key()).
				Int("attempt", exec.Attempts).
				Msg("Device attempt failed, retrying")
			if d := cfg.BackoffDuration(); d > 0 {
				ctl.SleepInterruptible(d)
			}
		}
	}

	last.Logs, last.LogTrimmed = models.TrimLogLines(accumulated)
	last.LogTrimmed = last.LogTrimmed || anyTrimmed
	return last
}

// markRunning transitions the device result to running and publishes the
// running event.
func (e *Engine) markRunning(jobID, key, message string) {
	if err := e.registry.UpdateDeviceResult(jobID, key, func(r *models.DeviceResult) {
		r.MarkRunning()
	}); err != nil {
		e.logger.Warn().Err(err).
			Str("job_id", jobID).
			Str("device", key).
			Msg("Could not mark device running")
	}
	e.bus.Publish(models.NewDeviceStatusEvent(jobID, key, models.DeviceStatusRunning, message))
}

// markCancelledBeforeRun stamps a cancelled terminal state for a device
// whose worker was never invoked.
func (e *Engine) markCancelledBeforeRun(jobID, key string) {
	if err := e.registry.UpdateDeviceResult(jobID, key, func(r *models.DeviceResult) {
		r.MarkCancelled()
	}); err != nil {
		e.logger.Warn().Err(err).
			Str("job_id", jobID).
			Str("device", key).
			Msg("Could not mark device cancelled")
	}
	e.bus.Publish(models.NewDeviceStatusEvent(jobID, key, models.DeviceStatusCancelled, "Cancelled before execution"))
}

// applyCompletion copies a worker result into the registry, publishes the
// captured log lines, then the terminal device event.
func (e *Engine) applyCompletion(jobID, key string, exec *models.DeviceExecutionResult) {
	if err := e.registry.UpdateDeviceResult(jobID, key, func(r *models.DeviceResult) {
		r.ApplyExecution(exec)
	}); err != nil {
		e.logger.Warn().Err(err).
			Str("job_id", jobID).
			Str("device", key).
			Msg("Could not record device result")
	}
	for _, line := range exec.Logs {
		e.bus.Publish(models.NewLogEvent(jobID, key, line))
	}
	e.bus.Publish(models.NewDeviceStatusEvent(jobID, key, deviceStatusOf(exec.Status), exec.Error))
}

// recordCanaryMismatch attaches a failed result for a canary that is not in
// the run's target set, so the job record explains why nothing ran.
func (e *Engine) recordCanaryMismatch(jobID string, canary models.DeviceTarget, exec *models.DeviceExecutionResult) {
	if err := e.registry.EnsureDeviceResult(jobID, canary); err != nil {
		e.logger.Warn().Err(err).
			Str("job_id", jobID).
			Str("device", canary.Key()).
			Msg("Could not attach canary result")
	}
	if err := e.registry.UpdateDeviceResult(jobID, canary.Key(), func(r *models.DeviceResult) {
		r.ApplyExecution(exec)
	}); err != nil {
		e.logger.Warn().Err(err).
			Str("job_id", jobID).
			Str("device", canary.Key()).
			Msg("Could not record canary result")
	}
	e.bus.Publish(models.NewDeviceStatusEvent(jobID, canary.Key(), models.DeviceStatusFailed, exec.Error))
}

// finish stamps the terminal status on the summary, applies the lifecycle
// transition, stores the summary, and publishes job_complete last.
func (e *Engine) finish(summary *models.JobRunSummary, status models.JobStatus) *models.JobRunSummary {
	summary.Status = status
	e.applyLifecycle(summary.JobID, lifecycleEventFor(status))

	e.mu.Lock()
	e.results[summary.JobID] = summary
	e.mu.Unlock()

	e.bus.Publish(models.NewJobCompleteEvent(summary.JobID, status))
	e.logger.Info().
		Str("job_id", summary.JobID).
		Str("status", string(status)).
		Int("devices", len(summary.DeviceResults)).
		Msg("Job run finished")
	return summary
}

// applyLifecycle runs the registry state machine. An invalid transition
// means the terminal state was already reached through the control API and
// is not an error here.
func (e *Engine) applyLifecycle(jobID string, event models.JobEvent) {
	if _, err := e.registry.ApplyEvent(jobID, event); err != nil {
		var invalid *models.InvalidTransitionError
		if errors.As(err, &invalid) {
			return
		}
		e.logger.Warn().Err(err).
			Str("job_id", jobID).
			Str("event", string(event)).
			Msg("Lifecycle transition failed")
	}
}

// lifecycleEventFor maps a terminal run status onto the job state machine.
func lifecycleEventFor(status models.JobStatus) models.JobEvent {
	switch status {
	case models.JobStatusCompleted:
		return models.JobEventComplete
	case models.JobStatusCancelled:
		return models.JobEventCancel
	default:
		return models.JobEventFail
	}
}

// deviceStatusOf maps a worker execution status onto the device lifecycle.
func deviceStatusOf(status models.ExecutionStatus) models.DeviceStatus {
	switch status {
	case models.ExecutionStatusSuccess:
		return models.DeviceStatusSuccess
	case models.ExecutionStatusCancelled:
		return models.DeviceStatusCancelled
	default:
		return models.DeviceStatusFailed
	}
}

// finalStatus decides the terminal status after fan-out: an observed cancel
// wins, any failure fails the job, and a full sweep of successes completes
// it. Anything else means devices were cancelled underway.
func finalStatus(summary *models.JobRunSummary, cancelObserved bool) models.JobStatus {
	if cancelObserved {
		return models.JobStatusCancelled
	}
	anyFailed := false
	allSuccess := true
	for _, exec := range summary.DeviceResults {
		switch exec.Status {
		case models.ExecutionStatusFailed:
			anyFailed = true
			allSuccess = false
		case models.ExecutionStatusCancelled:
			allSuccess = false
		}
	}
	switch {
	case anyFailed:
		return models.JobStatusFailed
	case allSuccess:
		return models.JobStatusCompleted
	default:
		return models.JobStatusCancelled
	}
}

// resolveRunTargets returns the run's target list and canary after applying
// the request's optional narrowing. Targets the job does not track are
// dropped: there is no parameter snapshot to run them with. Duplicates
// collapse to their first occurrence.
func resolveRunTargets(job *models.JobRecord, req *models.RunRequest) ([]models.DeviceTarget, models.DeviceTarget) {
	targets := job.Targets
	if req != nil && len(req.Devices) > 0 {
		targets = make([]models.DeviceTarget, 0, len(req.Devices))
		for _, d := range req.Devices {
			targets = append(targets, models.NewDeviceTarget(d.Host, d.Port))
		}
	}

	seen := make(map[string]bool, len(targets))
	resolved := make([]models.DeviceTarget, 0, len(targets))
	for _, target := range targets {
		key := target.Key()
		if seen[key] {
			continue
		}
		if _, tracked := job.DeviceResults[key]; !tracked {
			continue
		}
		seen[key] = true
		resolved = append(resolved, target)
	}

	canary := job.Canary
	if req != nil && req.Canary != nil {
		canary = models.NewDeviceTarget(req.Canary.Host, req.Canary.Port)
	}
	return resolved, canary
}

func containsTarget(targets []models.DeviceTarget, key string) bool {
	for _, t := range targets {
		if t.Key() == key {
			return true
		}
	}
	return false
}

// remainingTargets returns targets minus the canary, preserving order.
func remainingTargets(targets []models.DeviceTarget, canaryKey string) []models.DeviceTarget {
	out := make([]models.DeviceTarget, 0, len(targets))
	for _, t := range targets {
		if t.Key() != canaryKey {
			out = append(out, t)
		}
	}
	return out
}

// anyNonSuccess reports whether any device the run has finished so far did
// not succeed.
func anyNonSuccess(summary *models.JobRunSummary) bool {
	for _, exec := range summary.DeviceResults {
		if exec.Status != models.ExecutionStatusSuccess {
			return true
		}
	}
	return false
}
