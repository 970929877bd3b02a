package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/netrun/internal/common"
	"github.com/ternarybob/netrun/internal/interfaces"
	"github.com/ternarybob/netrun/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WebSocketHandler streams a job's execution events to clients. Each
// connection subscribes to one job and receives raw ExecutionEvent JSON
// frames, backfilled from the requested cursor; the stream closes after
// job_complete is delivered.
type WebSocketHandler struct {
	logger      arbor.ILogger
	registry    interfaces.JobRegistry
	bus         interfaces.EventBus
	clients     map[*websocket.Conn]bool
	clientMutex map[*websocket.Conn]*sync.Mutex
	mu          sync.RWMutex
	throttlers  map[models.EventType]*rate.Limiter
}

// NewWebSocketHandler creates the event stream handler. Throttle intervals
// are optional; event types without a configured limiter stream unthrottled,
// and job_complete is never throttled.
func NewWebSocketHandler(registry interfaces.JobRegistry, bus interfaces.EventBus, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:      logger,
		registry:    registry,
		bus:         bus,
		clients:     make(map[*websocket.Conn]bool),
		clientMutex: make(map[*websocket.Conn]*sync.Mutex),
		throttlers:  make(map[models.EventType]*rate.Limiter),
	}

	// Initialize throttlers from config (only if explicitly configured)
	// Nil throttlers = no throttling (disabled)
	if config != nil {
		for eventType, intervalStr := range config.ThrottleIntervals {
			duration, err := time.ParseDuration(intervalStr)
			if err != nil {
				logger.Warn().
					Err(err).
					Str("event_type", eventType).
					Str("interval", intervalStr).
					Msg("Failed to parse throttle interval - throttler disabled")
				continue
			}
			h.throttlers[models.EventType(eventType)] = rate.NewLimiter(rate.Every(duration), 1)
			logger.Debug().
				Str("event_type", eventType).
				Str("interval", intervalStr).
				Msg("Throttler initialized")
		}
	}

	return h
}

// HandleJobStream handles WebSocket connections for a job's event stream.
// GET /ws/jobs/{id}?start=N
func (h *WebSocketHandler) HandleJobStream(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 || pathParts[2] == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}
	jobID := pathParts[2]

	// Reject unknown jobs before upgrading so the client gets a plain 404.
	if _, err := h.registry.Get(jobID); err != nil {
		WriteServiceError(w, err)
		return
	}

	start := 0
	if startStr := r.URL.Query().Get("start"); startStr != "" {
		if parsed, err := strconv.Atoi(startStr); err == nil && parsed >= 0 {
			start = parsed
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	writeMu := &sync.Mutex{}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = writeMu
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().
		Str("job_id", jobID).
		Int("start", start).
		Msgf("WebSocket client connected (total: %d)", clientCount)

	complete := make(chan struct{})
	var completeOnce sync.Once

	unsubscribe := h.bus.Subscribe(jobID, start, func(event models.ExecutionEvent) error {
		if event.Type != models.EventTypeJobComplete {
			if limiter := h.throttlers[event.Type]; limiter != nil && !limiter.Allow() {
				return nil
			}
		}

		data, err := json.Marshal(event)
		if err != nil {
			return err
		}

		writeMu.Lock()
		err = conn.WriteMessage(websocket.TextMessage, data)
		writeMu.Unlock()
		if err != nil {
			return err
		}

		if event.Type == models.EventTypeJobComplete {
			completeOnce.Do(func() { close(complete) })
		}
		return nil
	})

	// Handle client disconnection
	stopped := make(chan struct{})
	defer func() {
		unsubscribe()
		close(stopped)

		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().
			Str("job_id", jobID).
			Msgf("WebSocket client disconnected (remaining: %d)", remaining)
	}()

	// Close the connection from our side once the terminal event is out;
	// this unblocks the read loop below.
	go func() {
		select {
		case <-complete:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job complete"),
				time.Now().Add(time.Second))
			conn.Close()
		case <-stopped:
		}
	}()

	// Read messages from client (keep connection alive, detect disconnect)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// CloseAll disconnects every client. Used during shutdown.
func (h *WebSocketHandler) CloseAll() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}
