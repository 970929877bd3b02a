package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/netrun/internal/models"
	"github.com/ternarybob/netrun/internal/services/inventory"
	"github.com/ternarybob/netrun/internal/worker"
)

var assertConnErr = errors.New("connection failed: dial tcp 10.0.0.1:22: i/o timeout")

// stubStatusRunner implements interfaces.StatusRunner for handler tests.
type stubStatusRunner struct {
	runFunc func(params models.DeviceParams, commands string) (string, error)
}

func (s *stubStatusRunner) RunStatusCommands(ctx context.Context, params models.DeviceParams, commands string) (string, error) {
	if err := worker.CheckDisruptiveCommands(commands); err != nil {
		return "", err
	}
	if s.runFunc != nil {
		return s.runFunc(params, commands)
	}
	return "$ " + commands + "\nstub output", nil
}

func newCommandHandler(t *testing.T, runner *stubStatusRunner) *CommandHandler {
	t.Helper()
	logger := arbor.NewLogger()
	store := inventory.NewStore(logger)
	store.Replace([]models.DeviceProfile{testProfile("10.0.0.1")})
	return NewCommandHandler(runner, store, logger)
}

func TestExecHandler(t *testing.T) {
	handler := newCommandHandler(t, &stubStatusRunner{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/commands/exec", jsonBody(t, map[string]interface{}{
		"host":     "10.0.0.1",
		"port":     22,
		"commands": "show version",
	}))
	handler.ExecHandler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, decodeJSON(rec, &resp))
	assert.Contains(t, resp["output"], "show version")
}

func TestExecHandlerDefaultsPort(t *testing.T) {
	var seen models.DeviceParams
	handler := newCommandHandler(t, &stubStatusRunner{
		runFunc: func(params models.DeviceParams, commands string) (string, error) {
			seen = params
			return "ok", nil
		},
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/commands/exec", jsonBody(t, map[string]interface{}{
		"host":     "10.0.0.1",
		"commands": "show clock",
	}))
	handler.ExecHandler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10.0.0.1:22", seen.Key())
}

func TestExecHandlerUnmanagedDevice(t *testing.T) {
	handler := newCommandHandler(t, &stubStatusRunner{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/commands/exec", jsonBody(t, map[string]interface{}{
		"host":     "192.0.2.55",
		"port":     22,
		"commands": "show version",
	}))
	handler.ExecHandler(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecHandlerRejectsDisruptiveCommands(t *testing.T) {
	handler := newCommandHandler(t, &stubStatusRunner{})

	for _, block := range []string{
		"configure terminal",
		"conf t\nntp server 10.0.0.5",
		"show version\nreload",
		"write erase",
	} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/commands/exec", jsonBody(t, map[string]interface{}{
			"host":     "10.0.0.1",
			"port":     22,
			"commands": block,
		}))
		handler.ExecHandler(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "block %q should be rejected", block)

		var resp map[string]string
		require.NoError(t, decodeJSON(rec, &resp))
		assert.Contains(t, resp["error"], "disruptive")
	}
}

func TestExecHandlerValidation(t *testing.T) {
	handler := newCommandHandler(t, &stubStatusRunner{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/commands/exec", jsonBody(t, map[string]interface{}{
		"port":     22,
		"commands": "show version",
	}))
	handler.ExecHandler(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "host is required")

	rec = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/api/commands/exec", strings.NewReader("{not json"))
	handler.ExecHandler(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExecHandlerConnectionFailure(t *testing.T) {
	handler := newCommandHandler(t, &stubStatusRunner{
		runFunc: func(params models.DeviceParams, commands string) (string, error) {
			return "", assertConnErr
		},
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/commands/exec", jsonBody(t, map[string]interface{}{
		"host":     "10.0.0.1",
		"port":     22,
		"commands": "show version",
	}))
	handler.ExecHandler(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
