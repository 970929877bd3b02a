// -----------------------------------------------------------------------
// CSV device import - parse, connection-validate, replace inventory
// -----------------------------------------------------------------------

package inventory

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/netrun/internal/interfaces"
	"github.com/ternarybob/netrun/internal/models"
)

// requiredColumns are checked in this order so error messages are stable.
var requiredColumns = []string{"host", "device_type", "username", "password"}

// Importer parses device CSV content, validates connections, and replaces
// the inventory with the profiles that pass.
type Importer struct {
	store     interfaces.DeviceInventory
	validator interfaces.ConnectionValidator
	logger    arbor.ILogger
}

// NewImporter creates a CSV importer bound to a store and a validator.
func NewImporter(logger arbor.ILogger, store interfaces.DeviceInventory, validator interfaces.ConnectionValidator) *Importer {
	return &Importer{
		store:     store,
		validator: validator,
		logger:    logger,
	}
}

// ImportCSV parses header-based CSV. Required columns: host, device_type,
// username, password. Optional: port (default 22), name, verify_cmds
// (semicolon-separated). Row numbers in the report are 1-based with the
// header as row 1. The inventory is replaced atomically with the profiles
// whose connection check passed.
func (i *Importer) ImportCSV(content string) (*interfaces.ImportReport, error) {
	reader := csv.NewReader(strings.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, models.NewValidationError("CSV content is empty")
	}
	if err != nil {
		return nil, models.NewValidationError("Invalid CSV: %v", err)
	}
	for idx := range header {
		header[idx] = strings.TrimSpace(header[idx])
	}

	var (
		parsed     []models.DeviceProfile
		failedRows []interfaces.ImportRowError
	)

	rowNumber := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		rowNumber++
		if err != nil {
			failedRows = append(failedRows, interfaces.ImportRowError{
				Row:   rowNumber,
				Error: fmt.Sprintf("Invalid CSV row: %v", err),
			})
			continue
		}

		row := make(map[string]string, len(header))
		for idx, name := range header {
			if idx < len(record) {
				row[name] = strings.TrimSpace(record[idx])
			}
		}

		var missing []string
		for _, column := range requiredColumns {
			if row[column] == "" {
				missing = append(missing, column)
			}
		}
		if len(missing) > 0 {
			failedRows = append(failedRows, interfaces.ImportRowError{
				Row:   rowNumber,
				Error: "Missing required fields: " + strings.Join(missing, ", "),
			})
			continue
		}

		port := 22
		if raw := row["port"]; raw != "" {
			parsedPort, perr := strconv.Atoi(raw)
			if perr != nil || parsedPort < 1 || parsedPort > 65535 {
				failedRows = append(failedRows, interfaces.ImportRowError{
					Row:   rowNumber,
					Error: "Invalid port value: " + raw,
				})
				continue
			}
			port = parsedPort
		}

		var verifyCmds []string
		for _, cmd := range strings.Split(row["verify_cmds"], ";") {
			if trimmed := strings.TrimSpace(cmd); trimmed != "" {
				verifyCmds = append(verifyCmds, trimmed)
			}
		}

		parsed = append(parsed, models.DeviceProfile{
			Host:       row["host"],
			Port:       port,
			DeviceType: row["device_type"],
			Username:   row["username"],
			Password:   row["password"],
			Name:       row["name"],
			VerifyCmds: verifyCmds,
		})
	}

	stored := make([]models.DeviceProfile, 0, len(parsed))
	validated := 0
	for idx := range parsed {
		ok, errMsg := i.validator.Validate(parsed[idx])
		parsed[idx].ConnectionOK = ok
		parsed[idx].ErrorMessage = errMsg
		if ok {
			validated++
			stored = append(stored, parsed[idx])
		} else {
			i.logger.Warn().
				Str("device", parsed[idx].Key()).
				Str("error", errMsg).
				Msg("Device failed connection validation")
		}
	}
	i.store.Replace(stored)

	i.logger.Info().
		Int("parsed", len(parsed)).
		Int("validated", validated).
		Int("failed_rows", len(failedRows)).
		Msg("Device import finished")

	return &interfaces.ImportReport{
		Imported:   len(parsed),
		Validated:  validated,
		Failed:     len(failedRows),
		FailedRows: failedRows,
		Devices:    parsed,
	}, nil
}
