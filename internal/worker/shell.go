// -----------------------------------------------------------------------
// Interactive SSH shell - pty session with prompt-scraped command output
// -----------------------------------------------------------------------

package worker

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/ternarybob/netrun/internal/models"
)

// promptPattern matches a trailing network CLI prompt: a hostname fragment
// followed by one of the common mode terminators, e.g. "edge-1>",
// "edge-1#", "edge-1(config)#".
var promptPattern = regexp.MustCompile(`[\w.()\-@/:]+[>#$%]\s*$`)

const readChunkSize = 4096

// deviceShell drives one interactive session. Network devices rarely honor
// exec channels, so every command goes through a pty shell and output is
// scraped up to the next prompt.
type deviceShell struct {
	client      *ssh.Client
	session     *ssh.Session
	stdin       io.WriteCloser
	reads       chan []byte
	closed      chan struct{}
	closeOnce   sync.Once
	readTimeout time.Duration
}

// dialShell connects, opens a pty shell, waits for the first prompt, and
// disables output paging.
func dialShell(params models.DeviceParams, connectTimeout, readTimeout time.Duration) (*deviceShell, error) {
	config := &ssh.ClientConfig{
		User: params.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(params.Password),
			ssh.KeyboardInteractive(func(name, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = params.Password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         connectTimeout,
	}
	addr := net.JoinHostPort(params.Host, strconv.Itoa(params.Port))

	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, err
	}
	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, err
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("vt100", 80, 512, modes); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("pty request failed: %w", err)
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, err
	}
	if err := session.Shell(); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("shell request failed: %w", err)
	}

	sh := &deviceShell{
		client:      client,
		session:     session,
		stdin:       stdin,
		reads:       make(chan []byte, 32),
		closed:      make(chan struct{}),
		readTimeout: readTimeout,
	}
	go sh.readLoop(stdout)

	// Nudge the device into printing a prompt, then swallow the login banner.
	fmt.Fprint(stdin, "\n")
	if _, err := sh.readUntilPrompt(); err != nil {
		sh.Close()
		return nil, fmt.Errorf("no device prompt: %w", err)
	}
	sh.disablePaging(params.DeviceType)
	return sh, nil
}

// run sends one command and returns its output with the echoed command and
// the trailing prompt stripped.
func (s *deviceShell) run(cmd string) (string, error) {
	if _, err := fmt.Fprintf(s.stdin, "%s\n", cmd); err != nil {
		return "", err
	}
	raw, err := s.readUntilPrompt()
	if err != nil {
		return "", err
	}
	return cleanOutput(raw, cmd), nil
}

// applyConfig enters configuration mode, applies each command in order, and
// leaves configuration mode. The combined output is returned so callers can
// scan it for device error markers.
func (s *deviceShell) applyConfig(deviceType string, commands []string) (string, error) {
	enter, exit := configModeCommands(deviceType)
	sequence := make([]string, 0, len(commands)+2)
	sequence = append(sequence, enter)
	sequence = append(sequence, commands...)
	sequence = append(sequence, exit)

	var out strings.Builder
	for _, cmd := range sequence {
		raw, err := s.run(cmd)
		if err != nil {
			return out.String(), err
		}
		if raw != "" {
			out.WriteString(raw)
			out.WriteString("\n")
		}
	}
	return strings.TrimRight(out.String(), "\n"), nil
}

// Close tears down the session and transport. Safe to call more than once.
func (s *deviceShell) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.session.Close()
		s.client.Close()
	})
}

// disablePaging turns off terminal paging so long command output arrives in
// one read. Output is discarded; an unknown platform just pages.
func (s *deviceShell) disablePaging(deviceType string) {
	cmd := "terminal length 0"
	if strings.HasPrefix(deviceType, "juniper") {
		cmd = "set cli screen-length 0"
	}
	_, _ = s.run(cmd)
}

// readLoop feeds raw output chunks to the reads channel until the session
// closes.
func (s *deviceShell) readLoop(r io.Reader) {
	defer close(s.reads)
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case s.reads <- chunk:
			case <-s.closed:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// readUntilPrompt accumulates output until the last line matches the prompt
// pattern or the read timeout elapses. The raw accumulated text is returned
// in both cases so callers can report partial output.
func (s *deviceShell) readUntilPrompt() (string, error) {
	var buf bytes.Buffer
	deadline := time.NewTimer(s.readTimeout)
	defer deadline.Stop()
	for {
		select {
		case chunk, ok := <-s.reads:
			if !ok {
				return buf.String(), errors.New("session closed")
			}
			buf.Write(chunk)
			if promptPattern.MatchString(lastLine(buf.String())) {
				return buf.String(), nil
			}
		case <-deadline.C:
			return buf.String(), fmt.Errorf("timed out after %s waiting for device prompt", s.readTimeout)
		}
	}
}

// configModeCommands returns the enter/exit command pair for the platform.
func configModeCommands(deviceType string) (string, string) {
	if strings.HasPrefix(deviceType, "juniper") {
		return "configure", "commit and-quit"
	}
	return "configure terminal", "end"
}

func lastLine(text string) string {
	if idx := strings.LastIndexByte(text, '\n'); idx >= 0 {
		return text[idx+1:]
	}
	return text
}

// cleanOutput strips the echoed command, the trailing prompt line, and
// carriage returns from raw shell output.
func cleanOutput(raw, cmd string) string {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")

	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	if start < len(lines) && strings.TrimSpace(lines[start]) == strings.TrimSpace(cmd) {
		start++
	}

	end := len(lines)
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	if end > start && promptPattern.MatchString(lines[end-1]) {
		end--
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}
