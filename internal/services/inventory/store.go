// -----------------------------------------------------------------------
// Device inventory - in-memory store of imported device profiles
// -----------------------------------------------------------------------

package inventory

import (
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/netrun/internal/interfaces"
	"github.com/ternarybob/netrun/internal/models"
)

// Store implements the DeviceInventory interface. Imports replace the whole
// profile list atomically; jobs keep their own parameter snapshots, so a
// replace never disturbs a running job.
type Store struct {
	mu       sync.RWMutex
	profiles []models.DeviceProfile
	logger   arbor.ILogger
}

// NewStore creates an empty device inventory.
func NewStore(logger arbor.ILogger) interfaces.DeviceInventory {
	return &Store{logger: logger}
}

// Replace swaps the inventory for the given profiles.
func (s *Store) Replace(profiles []models.DeviceProfile) {
	copied := make([]models.DeviceProfile, len(profiles))
	copy(copied, profiles)
	for i := range copied {
		copied[i].VerifyCmds = append([]string{}, profiles[i].VerifyCmds...)
	}

	s.mu.Lock()
	s.profiles = copied
	s.mu.Unlock()

	s.logger.Info().Int("devices", len(copied)).Msg("Device inventory replaced")
}

// List returns all profiles in import order.
func (s *Store) List() []models.DeviceProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.DeviceProfile, len(s.profiles))
	copy(out, s.profiles)
	for i := range out {
		out[i].VerifyCmds = append([]string{}, s.profiles[i].VerifyCmds...)
	}
	return out
}

// GetByKey looks up a profile by its "host:port" key.
func (s *Store) GetByKey(key string) (models.DeviceProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, profile := range s.profiles {
		if profile.Key() == key {
			profile.VerifyCmds = append([]string{}, profile.VerifyCmds...)
			return profile, true
		}
	}
	return models.DeviceProfile{}, false
}

// Count returns the number of stored profiles.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}
