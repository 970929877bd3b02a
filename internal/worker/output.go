// -----------------------------------------------------------------------
// Shared worker output handling - error markers, diffs, result finishers
// -----------------------------------------------------------------------

package worker

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/ternarybob/netrun/internal/models"
)

// errorMarkers are the output fragments network operating systems print when
// a configuration command is rejected.
var errorMarkers = []string{
	"% Invalid input",
	"Invalid input detected",
	"Error:",
	"Ambiguous command",
	"Incomplete command",
}

// scanForErrors returns the first marker found in the output.
func scanForErrors(output string) (string, bool) {
	for _, marker := range errorMarkers {
		if strings.Contains(output, marker) {
			return marker, true
		}
	}
	return "", false
}

// unifiedDiff renders a unified diff between the pre and post verification
// captures with three lines of context.
func unifiedDiff(pre, post string) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(pre),
		B:        difflib.SplitLines(post),
		FromFile: "pre",
		ToFile:   "post",
		Context:  3,
	})
}

// finishCancelled stamps the cancel outcome onto a result, appending the
// cancel sentinel log line and attaching the capped log.
func finishCancelled(result *models.DeviceExecutionResult, logs []string) *models.DeviceExecutionResult {
	logs = append(logs, "Execution cancelled by user request")
	result.Status = models.ExecutionStatusCancelled
	result.Error = "Job was cancelled by user request"
	result.Logs, result.LogTrimmed = models.TrimLogLines(logs)
	return result
}

// finishFailed stamps a failure outcome onto a result with the capped log.
func finishFailed(result *models.DeviceExecutionResult, logs []string, errMsg string) *models.DeviceExecutionResult {
	result.Status = models.ExecutionStatusFailed
	result.Error = errMsg
	result.Logs, result.LogTrimmed = models.TrimLogLines(logs)
	return result
}

// finishSuccess attaches the capped log to a successful result.
func finishSuccess(result *models.DeviceExecutionResult, logs []string) *models.DeviceExecutionResult {
	result.Logs, result.LogTrimmed = models.TrimLogLines(logs)
	return result
}
