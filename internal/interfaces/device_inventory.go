package interfaces

import "github.com/ternarybob/netrun/internal/models"

// ImportReport summarizes one CSV import. Devices lists every parsed
// profile with its validation outcome; only profiles with ConnectionOK
// enter the inventory.
type ImportReport struct {
	Imported   int                    `json:"imported"`
	Validated  int                    `json:"validated"`
	Failed     int                    `json:"failed"`
	FailedRows []ImportRowError       `json:"failed_rows"`
	Devices    []models.DeviceProfile `json:"devices"`
}

// ImportRowError reports one unparseable CSV row. Row numbers are 1-based
// counting the header as row 1.
type ImportRowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// DeviceInventory is the in-memory device store. Imports replace the whole
// inventory atomically; reads return copies.
type DeviceInventory interface {
	// Replace swaps the inventory for the given profiles.
	Replace(profiles []models.DeviceProfile)

	// List returns all profiles in import order.
	List() []models.DeviceProfile

	// GetByKey looks up a profile by its "host:port" key.
	GetByKey(key string) (models.DeviceProfile, bool)

	// Count returns the number of stored profiles.
	Count() int
}
