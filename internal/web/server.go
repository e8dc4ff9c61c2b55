package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/guidoenr/presetdeck/internal/audio"
	"github.com/guidoenr/presetdeck/internal/playback"
)

// DefaultInterval is how often status is pushed to websocket clients.
const DefaultInterval = 500 * time.Millisecond

// CommandKind names a remote control action.
type CommandKind string

const (
	CommandNext   CommandKind = "next"
	CommandPrev   CommandKind = "prev"
	CommandToggle CommandKind = "toggle"
	CommandDevice CommandKind = "device"
)

// Command is queued for the host loop. HTTP goroutines never touch host state.
type Command struct {
	Kind     CommandKind `json:"kind"`
	DeviceID string      `json:"deviceId,omitempty"`
	Label    string      `json:"label,omitempty"`
}

// Status is the snapshot published by the host loop.
type Status struct {
	Preset       string         `json:"preset"`
	Playback     playback.State `json:"playback"`
	Audio        string         `json:"audio"`
	FPS          float64        `json:"fps"`
	RenderWidth  int            `json:"renderWidth"`
	RenderHeight int            `json:"renderHeight"`
	Upscaler     string         `json:"upscaler"`
	LastStatus   string         `json:"lastStatus"`
}

// Server exposes status over REST and websocket and accepts control commands.
type Server struct {
	mu       sync.RWMutex
	status   Status
	devices  []audio.DeviceInfo
	clients  map[*websocketClient]bool
	commands chan Command
	upgrader websocket.Upgrader
	interval time.Duration
	log      *zap.SugaredLogger
}

type websocketClient struct {
	conn   *websocket.Conn
	send   chan []byte
	server *Server
}

type deviceRequest struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// NewServer returns a server with an empty snapshot.
func NewServer(logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Server{
		clients:  make(map[*websocketClient]bool),
		commands: make(chan Command, 16),
		interval: DefaultInterval,
		log:      logger.Named("web"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// SetInterval changes the broadcast period. Call before Run.
func (s *Server) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// Commands delivers queued control commands.
func (s *Server) Commands() <-chan Command {
	return s.commands
}

// Publish replaces the status snapshot.
func (s *Server) Publish(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// PublishDevices replaces the device list snapshot.
func (s *Server) PublishDevices(devices []audio.DeviceInfo) {
	s.mu.Lock()
	s.devices = append([]audio.DeviceInfo(nil), devices...)
	s.mu.Unlock()
}

// Snapshot returns the current status.
func (s *Server) Snapshot() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/devices", s.handleDevices)
	mux.HandleFunc("/api/next", s.handleCommand(CommandNext))
	mux.HandleFunc("/api/prev", s.handleCommand(CommandPrev))
	mux.HandleFunc("/api/toggle", s.handleCommand(CommandToggle))
	mux.HandleFunc("/api/device", s.handleDevice)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go s.broadcastLoop(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Infow("control server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.mu.RLock()
	devices := append([]audio.DeviceInfo{}, s.devices...)
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleCommand(kind CommandKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.enqueue(w, Command{Kind: kind})
	}
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req deviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.enqueue(w, Command{Kind: CommandDevice, DeviceID: req.ID, Label: req.Label})
}

func (s *Server) enqueue(w http.ResponseWriter, cmd Command) {
	select {
	case s.commands <- cmd:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	default:
		http.Error(w, "command queue full", http.StatusServiceUnavailable)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debugw("websocket upgrade failed", "error", err)
		return
	}

	client := &websocketClient{
		conn:   conn,
		send:   make(chan []byte, 16),
		server: s,
	}

	s.mu.Lock()
	s.clients[client] = true
	s.mu.Unlock()

	go client.writePump()
	go client.readPump()
}

func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeClients()
			return
		case <-ticker.C:
			data, err := json.Marshal(s.Snapshot())
			if err != nil {
				continue
			}
			s.broadcast(data)
		}
	}
}

func (s *Server) broadcast(message []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		select {
		case client.send <- message:
		default:
			close(client.send)
			delete(s.clients, client)
		}
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		close(client.send)
		delete(s.clients, client)
	}
}

func (c *websocketClient) readPump() {
	defer func() {
		c.server.mu.Lock()
		if c.server.clients[c] {
			delete(c.server.clients, c)
			close(c.send)
		}
		c.server.mu.Unlock()
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *websocketClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
