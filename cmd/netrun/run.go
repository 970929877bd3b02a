package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/ternarybob/netrun/internal/app"
	"github.com/ternarybob/netrun/internal/models"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Import devices and run one configuration push to completion",
	Long: `Imports a device CSV, creates a single job from a command file, runs it
synchronously, and streams execution events to stdout. The canary device
runs first and alone; Ctrl+C requests a cooperative cancel.

Exit code 0 on success, 1 on failure, 130 when cancelled.`,
	RunE: runRun,
}

var (
	runDevicesPath  string
	runCommandsPath string
	runCanary       string
	runJobName      string
	runVerifyMode   string
	runConcurrency  int
	runStagger      float64
	runStopOnError  bool
)

func init() {
	runCmd.Flags().StringVar(&runDevicesPath, "devices", "", "Device CSV file (required)")
	runCmd.Flags().StringVar(&runCommandsPath, "commands", "", "Configuration command file (required)")
	runCmd.Flags().StringVar(&runCanary, "canary", "", "Canary device as host[:port] (default: first validated device)")
	runCmd.Flags().StringVar(&runJobName, "name", "", "Job name")
	runCmd.Flags().StringVar(&runVerifyMode, "verify-mode", "", "Verify mode: none, canary, or all (default canary)")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "Concurrent devices after the canary (default 5)")
	runCmd.Flags().Float64Var(&runStagger, "stagger", 0, "Seconds between device admissions (default 1.0)")
	runCmd.Flags().BoolVar(&runStopOnError, "stop-on-error", true, "Stop admitting devices after a failure")
	_ = runCmd.MarkFlagRequired("devices")
	_ = runCmd.MarkFlagRequired("commands")
}

func runRun(cmd *cobra.Command, args []string) error {
	switch runVerifyMode {
	case "", string(models.VerifyModeNone), string(models.VerifyModeCanary), string(models.VerifyModeAll):
	default:
		return fmt.Errorf("invalid verify mode %q: expected none, canary, or all", runVerifyMode)
	}

	devicesCSV, err := os.ReadFile(runDevicesPath)
	if err != nil {
		return fmt.Errorf("failed to read device CSV: %w", err)
	}
	commands, err := os.ReadFile(runCommandsPath)
	if err != nil {
		return fmt.Errorf("failed to read command file: %w", err)
	}

	application, err := app.New(config, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	exitCode, err := executeOneShot(application, string(devicesCSV), string(commands))
	if closeErr := application.Close(); closeErr != nil {
		logger.Warn().Err(closeErr).Msg("Failed to close application")
	}
	if err != nil {
		return err
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}

// executeOneShot imports the devices, creates a job over all of them, runs
// it synchronously, and returns the process exit code for its terminal
// status.
func executeOneShot(application *app.App, devicesCSV, commands string) (int, error) {
	report, err := application.Importer.ImportCSV(devicesCSV)
	if err != nil {
		return 0, fmt.Errorf("device import failed: %w", err)
	}

	fmt.Printf("Imported %d device(s): %d validated, %d failed\n", report.Imported, report.Validated, report.Failed)
	for _, row := range report.FailedRows {
		fmt.Printf("  row %d: %s\n", row.Row, row.Error)
	}
	for _, device := range report.Devices {
		if !device.ConnectionOK && device.ErrorMessage != "" {
			fmt.Printf("  %s: %s\n", device.Key(), device.ErrorMessage)
		}
	}
	if report.Validated == 0 {
		return 0, fmt.Errorf("no devices passed connection validation")
	}

	canary, err := resolveCanary(application)
	if err != nil {
		return 0, err
	}

	stopOnError := runStopOnError
	record, err := application.Registry.Create(&models.JobCreate{
		JobName:          runJobName,
		Canary:           canary,
		Commands:         commands,
		VerifyMode:       models.VerifyMode(runVerifyMode),
		ConcurrencyLimit: runConcurrency,
		StaggerDelay:     runStagger,
		StopOnError:      &stopOnError,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create job: %w", err)
	}

	fmt.Printf("Job %s created: %d device(s), canary %s\n\n", record.JobID, len(record.Targets), canary.Key())

	// Stream execution events to stdout until the terminal event arrives
	streamDone := make(chan struct{})
	var streamOnce sync.Once
	unsubscribe := application.Bus.Subscribe(record.JobID, 0, func(event models.ExecutionEvent) error {
		printEvent(event)
		if event.Type == models.EventTypeJobComplete {
			streamOnce.Do(func() { close(streamDone) })
		}
		return nil
	})
	defer unsubscribe()

	if _, err := application.Registry.ApplyEvent(record.JobID, models.JobEventStart); err != nil {
		return 0, fmt.Errorf("failed to start job: %w", err)
	}

	ctl := application.Controls.GetOrCreate(record.JobID)
	ctl.Reset()

	// First Ctrl+C requests a cooperative cancel; the in-flight device
	// finishes before the run winds down
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		if _, ok := <-sigChan; ok {
			fmt.Println("\nCancel requested - waiting for in-flight device to finish")
			ctl.Cancel()
		}
	}()

	summary, err := application.Engine.RunJob(context.Background(), record.JobID, nil, ctl)
	if err != nil {
		return 0, fmt.Errorf("run failed: %w", err)
	}

	// Let the already-published terminal event reach the printer
	select {
	case <-streamDone:
	case <-time.After(2 * time.Second):
	}

	printSummary(application, summary)
	return summary.Status.ExitCode(), nil
}

// resolveCanary picks the canary target: the --canary flag when given,
// otherwise the first validated device in import order.
func resolveCanary(application *app.App) (models.DeviceTarget, error) {
	if runCanary != "" {
		return models.ParseDeviceTarget(runCanary)
	}
	for _, profile := range application.Inventory.List() {
		if profile.ConnectionOK {
			return profile.Target(), nil
		}
	}
	return models.DeviceTarget{}, fmt.Errorf("no validated device available as canary")
}

func printEvent(event models.ExecutionEvent) {
	ts := event.Timestamp.Local().Format("15:04:05")
	switch event.Type {
	case models.EventTypeLog:
		fmt.Printf("%s    %s | %s\n", ts, event.Device, event.Message)
	case models.EventTypeDeviceStatus:
		fmt.Printf("%s >> %s %s %s\n", ts, event.Device, strings.ToUpper(event.Status), event.Message)
	case models.EventTypeJobStatus:
		fmt.Printf("%s == job %s %s\n", ts, event.Status, event.Message)
	case models.EventTypeJobComplete:
		fmt.Printf("%s == job complete: %s\n", ts, event.Status)
	}
}

func printSummary(application *app.App, summary *models.JobRunSummary) {
	fmt.Printf("\nRun finished: %s\n", strings.ToUpper(string(summary.Status)))

	// Print per-device outcomes in admission order when the record is
	// still available
	keys := make([]string, 0, len(summary.DeviceResults))
	if record, err := application.Registry.Get(summary.JobID); err == nil {
		keys = record.OrderedKeys()
	}
	if len(keys) == 0 {
		for key := range summary.DeviceResults {
			keys = append(keys, key)
		}
	}

	for _, key := range keys {
		result, ok := summary.DeviceResults[key]
		if !ok {
			continue
		}
		line := fmt.Sprintf("  %-24s %-10s attempts=%d", key, result.Status, result.Attempts)
		if result.Error != "" {
			line += "  " + result.Error
		}
		fmt.Println(line)
	}
}
