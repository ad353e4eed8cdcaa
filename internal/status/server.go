// Package status provides the real-time sync status surface.
//
// The server broadcasts pending-count changes, per-entry sync progress,
// cache-warming steps, and sync completion to connected WebSocket clients.
// This is the push feed behind the status badge, the sync progress view, and
// the warming progress view.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// MessageType names the kind of event a frame carries.
type MessageType string

const (
	// MessageTypeQueueChanged carries the new pending count for the badge.
	MessageTypeQueueChanged MessageType = "queue_changed"

	// MessageTypeEntryState carries one queued mutation's transition while
	// the processor replays it.
	MessageTypeEntryState MessageType = "entry_state"

	// MessageTypeSyncComplete summarizes a finished replay pass.
	MessageTypeSyncComplete MessageType = "sync_complete"

	// MessageTypeConnectivity reports an online/offline flip.
	MessageTypeConnectivity MessageType = "connectivity"

	// MessageTypeCacheStep carries one dashboard warming step's progress.
	MessageTypeCacheStep MessageType = "cache_step"
)

// Message is one frame on the feed. Data holds the type-specific payload.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// QueueChangedData is the payload for queue_changed frames.
type QueueChangedData struct {
	Pending int `json:"pending"`
}

// EntryStateData is the payload for entry_state frames.
type EntryStateData struct {
	EntryID    string `json:"entry_id"`
	Action     string `json:"action"`
	Label      string `json:"label"`
	Status     string `json:"status"` // pending, syncing, success, error
	RetryCount int    `json:"retry_count"`
}

// SyncCompleteData is the payload for sync_complete frames.
type SyncCompleteData struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// ConnectivityData is the payload for connectivity frames.
type ConnectivityData struct {
	Online bool `json:"online"`
}

// CacheStepData is the payload for cache_step frames: one table fetch of a
// dashboard warming operation moving through pending, loading, done or error.
type CacheStepData struct {
	StepID string `json:"step_id"`
	Label  string `json:"label"`
	Status string `json:"status"`
}

// Server accepts WebSocket clients and fans status frames out to them. The
// feed is one-way; client input is read and discarded to keep connections
// alive.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// Config holds server configuration
type Config struct {
	// Port to listen on (default: 8473). Zero asks the OS for a free port;
	// read the result from GetAddr.
	Port int

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Port:   8473,
		Logger: log.Default(),
	}
}

// NewServer creates a status WebSocket server. Call Start to begin serving.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:      fmt.Sprintf(":%d", config.Port),
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    config.Logger,
	}
}

// Start binds the listener and begins serving the feed.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleRoot)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Status server listening on %s", s.addr)
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop closes every client connection and shuts the server down.
func (s *Server) Stop() error {
	s.logger.Println("Stopping status server")

	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()

	s.logger.Println("Status server stopped")
	return nil
}

// Broadcast queues a frame for every connected client. The feed is lossy:
// when the buffer is full the frame is dropped rather than stalling the
// caller, since a later frame supersedes it anyway.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
		return
	default:
		s.logger.Println("Warning: broadcast channel full, dropping message")
	}
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}

			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			// Writes happen outside the lock; a slow client must not
			// stall connects and disconnects.
			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					s.logger.Printf("Failed to send to client: %v", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Printf("Client connected (total: %d)", clientCount)

	go s.readLoop(conn)
}

// readLoop drains client input until the connection dies, then unregisters
// it. The read result is discarded; frames only flow server to client.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		_, _, err := conn.Read(s.ctx)
		if err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Client disconnected (total: %d)", clientCount)
	} else {
		s.clientsMu.Unlock()
	}
}

// handleHealth reports liveness and the connected client count.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.clientsMu.RLock()
	clientCount := len(s.clients)
	s.clientsMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": clientCount,
	})
}

// handleRoot serves a landing page pointing at the feed and health check.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>fieldsync status</title>
</head>
<body>
    <h1>fieldsync Status Server</h1>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <p>Health check: <a href="/health">/health</a></p>
    <p>Connect a WebSocket client to receive live sync status updates.</p>
</body>
</html>`, r.Host)
}

// GetAddr returns the bound listening address once Start has run, or the
// configured address before that.
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns how many clients are currently connected. The daemon
// uses this to skip progress pushes nobody is watching.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
