// -----------------------------------------------------------------------
// Job registry - thread-safe job store with lifecycle transitions,
// device parameter snapshots, and bounded terminal-job history
// -----------------------------------------------------------------------

package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/netrun/internal/interfaces"
	"github.com/ternarybob/netrun/internal/models"
)

// DefaultHistoryLimit is the number of terminal jobs retained.
const DefaultHistoryLimit = 50

// Service implements the JobRegistry interface. One coarse mutex serializes
// every record mutation; reads hand out deep copies so callers never touch
// live state.
type Service struct {
	mu           sync.Mutex
	jobs         map[string]*models.JobRecord
	order        []string
	inventory    interfaces.DeviceInventory
	historyLimit int
	onEvict      func(jobID string)
	logger       arbor.ILogger
}

// NewService creates a job registry backed by the given inventory. A
// historyLimit of zero or less selects DefaultHistoryLimit. onEvict, when
// not nil, is invoked outside the registry lock for each evicted job.
func NewService(logger arbor.ILogger, inventory interfaces.DeviceInventory, historyLimit int, onEvict func(jobID string)) interfaces.JobRegistry {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Service{
		jobs:         make(map[string]*models.JobRecord),
		inventory:    inventory,
		historyLimit: historyLimit,
		onEvict:      onEvict,
		logger:       logger,
	}
}

// Create assembles a queued job, snapshotting connection parameters for
// every requested target from the current inventory.
func (s *Service) Create(create *models.JobCreate) (*models.JobRecord, error) {
	create.ApplyDefaults()

	if len(create.CommandLines()) == 0 {
		return nil, models.NewValidationError("Commands cannot be empty")
	}

	targets := create.Devices
	if len(targets) == 0 {
		for _, profile := range s.inventory.List() {
			targets = append(targets, profile.Target())
		}
	}
	if len(targets) == 0 {
		return nil, models.NewValidationError("No devices available: import devices first or specify targets")
	}

	// Snapshot parameters before taking the registry lock; the inventory has
	// its own synchronization.
	params := make(map[string]models.DeviceParams, len(targets)+1)
	lookup := func(target models.DeviceTarget) error {
		key := target.Key()
		if _, ok := params[key]; ok {
			return nil
		}
		profile, ok := s.inventory.GetByKey(key)
		if !ok {
			return models.NewValidationError("Device not found in inventory: %s", key)
		}
		params[key] = models.DeviceParams{
			Host:       profile.Host,
			Port:       profile.Port,
			DeviceType: profile.DeviceType,
			Username:   profile.Username,
			Password:   profile.Password,
			VerifyCmds: append([]string{}, profile.VerifyCmds...),
		}
		return nil
	}
	for _, target := range targets {
		if err := lookup(target); err != nil {
			return nil, err
		}
	}
	if err := lookup(create.Canary); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		if s.jobs[id].Status.IsActive() {
			return nil, models.ErrActiveJobConflict
		}
	}

	record := models.NewJobRecord(create)
	seen := make(map[string]bool, len(targets))
	for _, target := range targets {
		key := target.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		record.Targets = append(record.Targets, target)
		record.DeviceResults[key] = models.NewDeviceResult(target)
	}
	record.DeviceParams = params

	s.jobs[record.JobID] = record
	s.order = append(s.order, record.JobID)

	s.logger.Info().
		Str("job_id", record.JobID).
		Str("job_name", record.JobName).
		Int("devices", len(record.Targets)).
		Str("canary", record.Canary.Key()).
		Msg("Job created")

	return record.Clone(), nil
}

// Get returns a copy of the job or ErrJobNotFound.
func (s *Service) Get(jobID string) (*models.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.jobs[jobID]
	if !ok {
		return nil, models.ErrJobNotFound
	}
	return record.Clone(), nil
}

// List returns copies of all retained jobs, newest first.
func (s *Service) List() []*models.JobRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.JobRecord, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.jobs[s.order[i]].Clone())
	}
	return out
}

// Active returns the current non-terminal job, or nil. The single-active
// guard in Create keeps this to at most one.
func (s *Service) Active() *models.JobRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.order) - 1; i >= 0; i-- {
		record := s.jobs[s.order[i]]
		if record.Status.IsActive() {
			return record.Clone()
		}
	}
	return nil
}

// ApplyEvent runs the lifecycle state machine and stamps timestamps. A
// transition into a terminal state trims history.
func (s *Service) ApplyEvent(jobID string, event models.JobEvent) (*models.JobRecord, error) {
	clone, evicted, err := s.applyEventLocked(jobID, event)
	if err != nil {
		return nil, err
	}
	for _, id := range evicted {
		if s.onEvict != nil {
			s.onEvict(id)
		}
	}
	return clone, nil
}

func (s *Service) applyEventLocked(jobID string, event models.JobEvent) (*models.JobRecord, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.jobs[jobID]
	if !ok {
		return nil, nil, models.ErrJobNotFound
	}

	next, err := models.Transition(record.Status, event)
	if err != nil {
		return nil, nil, err
	}

	previous := record.Status
	record.Status = next
	now := time.Now().UTC()
	if event == models.JobEventStart && record.StartedAt == nil {
		record.StartedAt = &now
	}
	if next.IsTerminal() && record.CompletedAt == nil {
		record.CompletedAt = &now
	}

	s.logger.Info().
		Str("job_id", jobID).
		Str("event", string(event)).
		Str("from", string(previous)).
		Str("to", string(next)).
		Msg("Job transitioned")

	var evicted []string
	if next.IsTerminal() {
		evicted = s.trimHistory()
	}
	return record.Clone(), evicted, nil
}

// UpdateDeviceResult mutates one device result under the registry lock,
// atomically with respect to Get and List.
func (s *Service) UpdateDeviceResult(jobID, key string, fn func(*models.DeviceResult)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.jobs[jobID]
	if !ok {
		return models.ErrJobNotFound
	}
	result, ok := record.DeviceResults[key]
	if !ok {
		return models.ErrDeviceNotFound
	}
	fn(result)
	return nil
}

// EnsureDeviceResult attaches a queued result for the target when the job
// does not already track one.
func (s *Service) EnsureDeviceResult(jobID string, target models.DeviceTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.jobs[jobID]
	if !ok {
		return models.ErrJobNotFound
	}
	key := target.Key()
	if _, ok := record.DeviceResults[key]; ok {
		return nil
	}
	record.Targets = append(record.Targets, target)
	record.DeviceResults[key] = models.NewDeviceResult(target)
	return nil
}

// trimHistory evicts the oldest terminal jobs by completed_at once the
// terminal count exceeds the history limit. Caller holds the lock.
func (s *Service) trimHistory() []string {
	type terminalJob struct {
		id          string
		completedAt time.Time
	}

	var terminal []terminalJob
	for _, id := range s.order {
		record := s.jobs[id]
		if !record.Status.IsTerminal() {
			continue
		}
		completed := record.CreatedAt
		if record.CompletedAt != nil {
			completed = *record.CompletedAt
		}
		terminal = append(terminal, terminalJob{id: id, completedAt: completed})
	}
	if len(terminal) <= s.historyLimit {
		return nil
	}

	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].completedAt.Before(terminal[j].completedAt)
	})

	var evicted []string
	for _, victim := range terminal[:len(terminal)-s.historyLimit] {
		delete(s.jobs, victim.id)
		evicted = append(evicted, victim.id)
	}
	if len(evicted) > 0 {
		kept := s.order[:0]
		for _, id := range s.order {
			if _, ok := s.jobs[id]; ok {
				kept = append(kept, id)
			}
		}
		s.order = kept
		s.logger.Debug().
			Int("evicted", len(evicted)).
			Int("retained", len(s.jobs)).
			Msg("Trimmed job history")
	}
	return evicted
}
