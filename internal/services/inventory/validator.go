// -----------------------------------------------------------------------
// Connection validators - real SSH handshake or simulated pass-through
// -----------------------------------------------------------------------

package inventory

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/netrun/internal/interfaces"
	"github.com/ternarybob/netrun/internal/models"
)

// DefaultValidateTimeout matches the worker connection timeout.
const DefaultValidateTimeout = 10 * time.Second

// NewValidator selects the validator for the configured mode. Anything but
// "simulated" gets the real SSH validator.
func NewValidator(logger arbor.ILogger, mode string, timeout time.Duration) interfaces.ConnectionValidator {
	if strings.EqualFold(mode, "simulated") {
		return NewSimulatedValidator()
	}
	return NewSSHValidator(logger, timeout)
}

// SSHValidator checks a device by completing an SSH handshake and opening a
// session, then disconnecting.
type SSHValidator struct {
	timeout time.Duration
	logger  arbor.ILogger
}

// NewSSHValidator creates a real connection validator. A timeout of zero or
// less selects DefaultValidateTimeout.
func NewSSHValidator(logger arbor.ILogger, timeout time.Duration) interfaces.ConnectionValidator {
	if timeout <= 0 {
		timeout = DefaultValidateTimeout
	}
	return &SSHValidator{timeout: timeout, logger: logger}
}

// Validate dials the device and opens a throwaway session.
func (v *SSHValidator) Validate(profile models.DeviceProfile) (bool, string) {
	config := &ssh.ClientConfig{
		User:            profile.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(profile.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         v.timeout,
	}
	addr := net.JoinHostPort(profile.Host, strconv.Itoa(profile.Port))

	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return false, classifyConnectError(err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return false, fmt.Sprintf("Connection error: %v", err)
	}
	session.Close()
	return true, ""
}

// classifyConnectError maps dial failures onto the three operator-facing
// categories used since the first importer version.
func classifyConnectError(err error) string {
	var netErr net.Error
	switch {
	case strings.Contains(err.Error(), "unable to authenticate"):
		return fmt.Sprintf("Authentication failed: %v", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Sprintf("Connection timeout: %v", err)
	default:
		return fmt.Sprintf("Connection error: %v", err)
	}
}

// SimulatedValidator accepts every device. Used for local scaffolding and
// tests without reachable devices.
type SimulatedValidator struct{}

// NewSimulatedValidator creates the pass-through validator.
func NewSimulatedValidator() interfaces.ConnectionValidator {
	return &SimulatedValidator{}
}

// Validate always reports success.
func (v *SimulatedValidator) Validate(profile models.DeviceProfile) (bool, string) {
	return true, ""
}
