// Package feed provides a real-time WebSocket feed of workspace changes.
//
// Clients connecting to /ws first receive a snapshot of the document with
// its version, then every applied patch tagged with the version it
// produced, and a summary after every save pass. Patches whose version is
// not newer than the snapshot's are already reflected in it and can be
// dropped by the client.
//
// Clients may also submit patches. These go through the same path as local
// edits: they are applied to the live document and reach the disk via the
// save scheduler.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/vzcode/vzsync/internal/metrics"
	"github.com/vzcode/vzsync/internal/patch"
	"github.com/vzcode/vzsync/internal/workspace"
)

// MessageType defines the type of feed message
type MessageType string

const (
	// MessageTypeSnapshot carries the whole document; sent on connect.
	MessageTypeSnapshot MessageType = "snapshot"

	// MessageTypePatch carries one applied patch.
	MessageTypePatch MessageType = "patch"

	// MessageTypeSave summarizes a reconciliation pass.
	MessageTypeSave MessageType = "save"

	// MessageTypeSubmit is sent by clients to propose a patch.
	MessageTypeSubmit MessageType = "submit"

	// MessageTypeError reports a rejected submission to its sender.
	MessageTypeError MessageType = "error"
)

// Message is the envelope of every feed frame.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// SnapshotData is the payload of a snapshot message.
type SnapshotData struct {
	Version  uint64              `json:"version"`
	Document *workspace.Document `json:"document"`
}

// PatchData is the payload of patch and submit messages.
type PatchData struct {
	Version uint64      `json:"version,omitempty"`
	Patch   patch.Patch `json:"patch"`
}

// SaveData is the payload of a save message.
type SaveData struct {
	Steps      int           `json:"steps"`
	Creates    int           `json:"creates"`
	Updates    int           `json:"updates"`
	Renames    int           `json:"renames"`
	Deletes    int           `json:"deletes"`
	DurationMS float64       `json:"duration_ms"`
	Failures   []FailureData `json:"failures,omitempty"`
}

// FailureData describes one failed filesystem step.
type FailureData struct {
	Action string `json:"action"`
	Path   string `json:"path"`
	From   string `json:"from,omitempty"`
	Error  string `json:"error"`
}

// ErrorData is the payload of an error message.
type ErrorData struct {
	Error string `json:"error"`
}

// NewMessage marshals data into a message of type t.
func NewMessage(t MessageType, data any) (Message, error) {
	msg := Message{Type: t, Timestamp: time.Now()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Message{}, fmt.Errorf("failed to marshal %s data: %w", t, err)
		}
		msg.Data = raw
	}
	return msg, nil
}

// Config holds server configuration
type Config struct {
	// Addr to listen on (default: ":3030"). Use port 0 for a random port.
	Addr string

	// Logger for server activity (default: slog.Default)
	Logger *slog.Logger

	// Metrics, when set, is served on /metrics and records HTTP requests
	// and the client count.
	Metrics *metrics.Metrics

	// Snapshot returns the current document and version for new clients.
	Snapshot func() (*workspace.Document, uint64)

	// OnSubmit receives patches submitted by clients. Submissions are
	// rejected when nil.
	OnSubmit func(patch.Patch) error
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Addr:   ":3030",
		Logger: slog.Default().With("component", "feed"),
	}
}

// Server manages WebSocket connections and broadcasts feed messages
type Server struct {
	config   *Config
	listener net.Listener
	server   *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *slog.Logger
}

// NewServer creates a new feed server
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Addr == "" {
		config.Addr = DefaultConfig().Addr
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		config:    config,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 256),
		ctx:       ctx,
		cancel:    cancel,
		logger:    config.Logger,
	}
}

// Handler returns the HTTP routes of the feed.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)

	var plain http.Handler = http.HandlerFunc(s.handleHealth)
	if m := s.config.Metrics; m != nil {
		mux.Handle("/metrics", m.Middleware(m.Handler()))
		plain = m.Middleware(plain)
	}
	mux.Handle("/health", plain)
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

// Start begins the HTTP server and WebSocket handler
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("feed server listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("feed server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	s.logger.Info("stopping feed server")

	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()
	s.recordClients()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()
	s.logger.Info("feed server stopped")
	return nil
}

// Broadcast queues a message for all connected clients. Messages are
// dropped when the queue is full.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Warn("broadcast channel full, dropping message", "type", msg.Type)
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
				s.logger.Error("failed to marshal message", "type", msg.Type, "error", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range clients {
				if err := s.write(conn, data); err != nil {
					s.logger.Warn("failed to send to client", "error", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) write(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func (s *Server) send(conn *websocket.Conn, t MessageType, payload any) error {
	msg, err := NewMessage(t, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.write(conn, data)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	// The snapshot is written while holding the client lock so no
	// broadcast can reach this client before it.
	s.clientsMu.Lock()
	var snap SnapshotData
	if s.config.Snapshot != nil {
		snap.Document, snap.Version = s.config.Snapshot()
	} else {
		snap.Document = workspace.New()
	}
	if err := s.send(conn, MessageTypeSnapshot, snap); err != nil {
		s.clientsMu.Unlock()
		s.logger.Warn("failed to send snapshot", "error", err)
		_ = conn.Close(websocket.StatusInternalError, "snapshot failed")
		return
	}
	s.clients[conn] = true
	count := len(s.clients)
	s.clientsMu.Unlock()

	s.recordClients()
	s.logger.Info("client connected", "clients", count)

	s.wg.Add(1)
	go s.readLoop(conn)
}

// readLoop handles client submissions and disconnects.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.wg.Done()
	defer s.removeClient(conn)

	for {
		_, data, err := conn.Read(s.ctx)
		if err != nil {
			return
		}
		if err := s.handleClientMessage(data); err != nil {
			s.logger.Warn("rejected client message", "error", err)
			if err := s.send(conn, MessageTypeError, ErrorData{Error: err.Error()}); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleClientMessage(data []byte) error {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}
	if msg.Type != MessageTypeSubmit {
		return fmt.Errorf("unsupported message type %q", msg.Type)
	}
	if s.config.OnSubmit == nil {
		return errors.New("submissions are disabled")
	}
	var pd PatchData
	if err := json.Unmarshal(msg.Data, &pd); err != nil {
		return fmt.Errorf("invalid patch: %w", err)
	}
	return s.config.OnSubmit(pd.Patch)
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; !exists {
		s.clientsMu.Unlock()
		return
	}
	delete(s.clients, conn)
	count := len(s.clients)
	s.clientsMu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
	s.recordClients()
	s.logger.Info("client disconnected", "clients", count)
}

func (s *Server) recordClients() {
	if s.config.Metrics != nil {
		s.config.Metrics.SetFeedClients(s.ClientCount())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>vzsync</title>
</head>
<body>
    <h1>vzsync workspace feed</h1>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <p>Health check: <a href="/health">/health</a></p>
</body>
</html>`, r.Host)
}

// GetAddr returns the server's listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
