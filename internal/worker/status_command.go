// -----------------------------------------------------------------------
// Status command runner - read-only exec commands outside any job
// -----------------------------------------------------------------------

package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/netrun/internal/interfaces"
	"github.com/ternarybob/netrun/internal/models"
)

// disruptivePatterns are command prefixes the status runner refuses to send.
// Matching is on the start of each lowercased command line.
var disruptivePatterns = []string{
	"configure",
	"conf t",
	"reload",
	"write erase",
	"erase",
	"delete",
	"format",
	"debug",
}

// CheckDisruptiveCommands returns a ValidationError when any line of the
// block starts with a pattern known to change device state.
func CheckDisruptiveCommands(commands string) error {
	for _, line := range models.SplitCommandBlock(commands) {
		lowered := strings.ToLower(line)
		for _, pattern := range disruptivePatterns {
			if strings.HasPrefix(lowered, pattern) {
				return models.NewValidationError("Potentially disruptive commands are not allowed: %s", line)
			}
		}
	}
	return nil
}

// NewStatusRunner selects the status runner for the configured mode.
func NewStatusRunner(logger arbor.ILogger, mode string, settings Settings) interfaces.StatusRunner {
	if strings.EqualFold(mode, "simulated") {
		return &SimulatedStatusRunner{delay: settings.SimulatedDelay}
	}
	return &SSHStatusRunner{logger: logger, settings: settings.normalized()}
}

// SSHStatusRunner executes read-only exec commands over a short-lived
// interactive session.
type SSHStatusRunner struct {
	logger   arbor.ILogger
	settings Settings
}

// RunStatusCommands connects, runs each line in exec mode, and returns the
// combined transcript as "$ <cmd>" blocks. Disruptive blocks are rejected
// before any connection attempt.
func (r *SSHStatusRunner) RunStatusCommands(ctx context.Context, params models.DeviceParams, commands string) (string, error) {
	if err := CheckDisruptiveCommands(commands); err != nil {
		return "", err
	}
	lines := models.SplitCommandBlock(commands)
	if len(lines) == 0 {
		return "", models.NewValidationError("Commands cannot be empty")
	}

	r.logger.Debug().
		Str("device", params.Key()).
		Int("commands", len(lines)).
		Msg("Running status commands")

	shell, err := dialShell(params, r.settings.ConnectTimeout, r.settings.CommandTimeout)
	if err != nil {
		return "", fmt.Errorf("connection failed: %w", err)
	}
	defer shell.Close()

	var out strings.Builder
	for _, cmd := range lines {
		if err := ctx.Err(); err != nil {
			return out.String(), err
		}
		output, err := shell.run(cmd)
		if err != nil {
			return out.String(), fmt.Errorf("command %q: %w", cmd, err)
		}
		if out.Len() > 0 {
			out.WriteString("\n")
		}
		out.WriteString("$ " + cmd + "\n" + output)
	}
	return out.String(), nil
}

// SimulatedStatusRunner fabricates transcripts for local scaffolding. It
// applies the same disruptive-command guard as the real runner.
type SimulatedStatusRunner struct {
	delay time.Duration
}

// RunStatusCommands fabricates one output block per command line.
func (r *SimulatedStatusRunner) RunStatusCommands(ctx context.Context, params models.DeviceParams, commands string) (string, error) {
	if err := CheckDisruptiveCommands(commands); err != nil {
		return "", err
	}
	lines := models.SplitCommandBlock(commands)
	if len(lines) == 0 {
		return "", models.NewValidationError("Commands cannot be empty")
	}
	if r.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(r.delay):
		}
	}

	var out strings.Builder
	for i, cmd := range lines {
		if i > 0 {
			out.WriteString("\n")
		}
		fmt.Fprintf(&out, "$ %s\nsimulated output from %s", cmd, params.Key())
	}
	return out.String(), nil
}
