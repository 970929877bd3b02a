// -----------------------------------------------------------------------
// Periodic inventory revalidation - refreshes connection status on a
// cron schedule without evicting devices
// -----------------------------------------------------------------------

package inventory

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/netrun/internal/interfaces"
)

// Revalidator re-runs the connection validator over the current inventory on
// a schedule, refreshing connection_ok and error_message in place. It never
// evicts devices and never touches the parameter snapshots of existing jobs.
type Revalidator struct {
	store     interfaces.DeviceInventory
	validator interfaces.ConnectionValidator
	cron      *cron.Cron
	logger    arbor.ILogger

	mu      sync.Mutex
	running bool
}

// NewRevalidator creates a stopped revalidator.
func NewRevalidator(logger arbor.ILogger, store interfaces.DeviceInventory, validator interfaces.ConnectionValidator) *Revalidator {
	return &Revalidator{
		store:     store,
		validator: validator,
		cron:      cron.New(),
		logger:    logger,
	}
}

// Start schedules revalidation with the given cron expression. An empty
// expression disables the revalidator.
func (r *Revalidator) Start(cronExpr string) error {
	if cronExpr == "" {
		r.logger.Debug().Msg("Inventory revalidation disabled")
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("revalidator already running")
	}
	if _, err := r.cron.AddFunc(cronExpr, r.RevalidateAll); err != nil {
		return fmt.Errorf("failed to add revalidation job: %w", err)
	}
	r.cron.Start()
	r.running = true

	r.logger.Info().
		Str("cron_expr", cronExpr).
		Msg("Inventory revalidation scheduled")
	return nil
}

// Stop halts the schedule. Safe to call on a never-started revalidator.
func (r *Revalidator) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.running = false
	r.logger.Info().Msg("Inventory revalidation stopped")
}

// RevalidateAll checks every stored profile and replaces the inventory with
// refreshed validation outcomes.
func (r *Revalidator) RevalidateAll() {
	profiles := r.store.List()
	if len(profiles) == 0 {
		return
	}

	changed := 0
	for i := range profiles {
		ok, errMsg := r.validator.Validate(profiles[i])
		if profiles[i].ConnectionOK != ok || profiles[i].ErrorMessage != errMsg {
			changed++
		}
		profiles[i].ConnectionOK = ok
		profiles[i].ErrorMessage = errMsg
	}
	r.store.Replace(profiles)

	r.logger.Info().
		Int("devices", len(profiles)).
		Int("changed", changed).
		Msg("Inventory revalidation finished")
}
