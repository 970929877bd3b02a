package app

import (
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/netrun/internal/common"
	"github.com/ternarybob/netrun/internal/handlers"
	"github.com/ternarybob/netrun/internal/interfaces"
	"github.com/ternarybob/netrun/internal/services/control"
	"github.com/ternarybob/netrun/internal/services/engine"
	"github.com/ternarybob/netrun/internal/services/events"
	"github.com/ternarybob/netrun/internal/services/inventory"
	"github.com/ternarybob/netrun/internal/services/registry"
	"github.com/ternarybob/netrun/internal/worker"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Device inventory
	Inventory   interfaces.DeviceInventory
	Validator   interfaces.ConnectionValidator
	Importer    *inventory.Importer
	Revalidator *inventory.Revalidator

	// Run pipeline
	Bus          interfaces.EventBus
	Registry     interfaces.JobRegistry
	Controls     *control.Store
	Worker       interfaces.DeviceWorker
	StatusRunner interfaces.StatusRunner
	Engine       *engine.Engine
	Coordinator  *engine.Coordinator

	// HTTP handlers
	APIHandler     *handlers.APIHandler
	DeviceHandler  *handlers.DeviceHandler
	CommandHandler *handlers.CommandHandler
	JobHandler     *handlers.JobHandler
	WSHandler      *handlers.WebSocketHandler

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config:     cfg,
		Logger:     logger,
		shutdownCh: make(chan struct{}),
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Str("worker_mode", cfg.Worker.Mode).
		Str("validator_mode", cfg.Validator.Mode).
		Int("history_limit", cfg.Engine.HistoryLimit).
		Msg("Application initialization complete")

	return app, nil
}

// initServices initializes all business services in dependency order.
//
// RUN PIPELINE ARCHITECTURE:
// 1. Inventory - validated device profiles loaded from CSV imports
// 2. EventBus - per-job append-only event log with live subscribers
// 3. Registry - job records, lifecycle transitions, terminal-job eviction
// 4. Engine - canary-first staggered execution against the device worker
// 5. Coordinator - single-flight guard for asynchronous runs
func (a *App) initServices() error {
	// Initialize device inventory with import-time connection validation
	a.Inventory = inventory.NewStore(a.Logger)
	a.Validator = inventory.NewValidator(a.Logger, a.Config.Validator.Mode, a.Config.Validator.ConnectTimeoutDuration())
	a.Importer = inventory.NewImporter(a.Logger, a.Inventory, a.Validator)
	a.Logger.Debug().
		Str("validator_mode", a.Config.Validator.Mode).
		Msg("Device inventory initialized")

	// Periodic revalidation keeps connection status fresh between imports
	a.Revalidator = inventory.NewRevalidator(a.Logger, a.Inventory, a.Validator)
	if schedule := a.Config.Validator.RevalidateSchedule; schedule != "" {
		if err := a.Revalidator.Start(schedule); err != nil {
			a.Logger.Warn().Err(err).Str("schedule", schedule).Msg("Failed to start inventory revalidator")
		} else {
			a.Logger.Debug().Str("schedule", schedule).Msg("Inventory revalidator started")
		}
	}

	// Initialize event bus
	a.Bus = events.NewBus(a.Logger, a.Config.WebSocket.EventSendTimeoutDuration())
	a.Logger.Debug().Msg("Event bus initialized")

	// Initialize job registry; evicted jobs drop their buffered events,
	// stored run result, and execution control
	a.Controls = control.NewStore()
	a.Registry = registry.NewService(a.Logger, a.Inventory, a.Config.Engine.HistoryLimit, func(jobID string) {
		a.Bus.Drop(jobID)
		a.Controls.Delete(jobID)
		if a.Engine != nil {
			a.Engine.DropResult(jobID)
		}
	})
	a.Logger.Debug().Int("history_limit", a.Config.Engine.HistoryLimit).Msg("Job registry initialized")

	// Initialize device worker (real SSH or simulated)
	settings := worker.Settings{
		ConnectTimeout: a.Config.Worker.ConnectTimeoutDuration(),
		CommandTimeout: a.Config.Worker.CommandTimeoutDuration(),
		SimulatedDelay: a.Config.Worker.SimulatedDelay(),
		ScenarioFile:   a.Config.Worker.ScenarioFile,
	}
	deviceWorker, err := worker.New(a.Logger, a.Config.Worker.Mode, settings)
	if err != nil {
		return fmt.Errorf("failed to initialize device worker: %w", err)
	}
	a.Worker = deviceWorker
	a.StatusRunner = worker.NewStatusRunner(a.Logger, a.Config.Worker.Mode, settings)
	a.Logger.Debug().Str("mode", a.Config.Worker.Mode).Msg("Device worker initialized")

	// Initialize execution engine and async run coordinator
	a.Engine = engine.New(a.Logger, a.Worker, a.Registry, a.Bus)
	a.Coordinator = engine.NewCoordinator()
	a.Logger.Debug().Msg("Execution engine initialized")

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.requestShutdown)
	a.DeviceHandler = handlers.NewDeviceHandler(a.Importer, a.Inventory, a.Logger)
	a.CommandHandler = handlers.NewCommandHandler(a.StatusRunner, a.Inventory, a.Logger)
	a.JobHandler = handlers.NewJobHandler(a.Registry, a.Bus, a.Engine, a.Coordinator, a.Controls, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.Registry, a.Bus, a.Logger, &a.Config.WebSocket)
	a.Logger.Debug().
		Int("throttle_intervals", len(a.Config.WebSocket.ThrottleIntervals)).
		Msg("HTTP handlers initialized")
}

func (a *App) requestShutdown() {
	a.shutdownOnce.Do(func() {
		close(a.shutdownCh)
	})
}

// ShutdownRequested signals when a shutdown was requested over HTTP.
func (a *App) ShutdownRequested() <-chan struct{} {
	return a.shutdownCh
}

// Close closes all application resources
func (a *App) Close() error {
	// Cancel live runs and wait for them to finalize so their terminal
	// events reach subscribers before the bus goes away
	if a.Controls != nil {
		a.Controls.CancelAll()
	}
	if a.Coordinator != nil {
		a.Coordinator.WaitAll()
	}

	// Stop periodic revalidation
	if a.Revalidator != nil {
		a.Revalidator.Stop()
	}

	// Disconnect streaming clients
	if a.WSHandler != nil {
		a.WSHandler.CloseAll()
	}

	// Close event bus
	if a.Bus != nil {
		a.Bus.Close()
	}

	a.Logger.Info().Msg("Application closed")
	return nil
}
