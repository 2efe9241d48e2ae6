// Package livefeed serves journal snapshots to WebSocket clients.
//
// Snapshots are full state, so the server keeps the latest message per topic
// and replays them to every client that connects. Clients never send data;
// the read loop only detects disconnects.
package livefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// MessageType defines the type of feed message
type MessageType string

const (
	// MessageTypeSnapshot carries the full current records of one kind.
	MessageTypeSnapshot MessageType = "snapshot"
)

// Message is one feed frame.
type Message struct {
	Type      MessageType     `json:"type"`
	Topic     string          `json:"topic"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Server manages WebSocket connections and broadcasts feed messages
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	// latest holds the last message per topic for replay on connect. Only
	// the broadcast loop touches it.
	latest map[string][]byte

	broadcast chan Message
	joins     chan *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	writeTimeout time.Duration
	logger       *zap.Logger
}

// Config holds server configuration
type Config struct {
	// Addr to listen on (default: 127.0.0.1:8787). Port 0 picks a free port.
	Addr string

	// WriteTimeout bounds one frame write to one client (default: 5s).
	WriteTimeout time.Duration

	// Logger for server activity (default: no-op)
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Addr:         "127.0.0.1:8787",
		WriteTimeout: 5 * time.Second,
		Logger:       zap.NewNop(),
	}
}

// NewServer creates a new feed server
func NewServer(config *Config) *Server {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.Addr == "" {
		config.Addr = defaults.Addr
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:         config.Addr,
		clients:      make(map[*websocket.Conn]bool),
		latest:       make(map[string][]byte),
		broadcast:    make(chan Message, 100),
		joins:        make(chan *websocket.Conn),
		ctx:          ctx,
		cancel:       cancel,
		writeTimeout: config.WriteTimeout,
		logger:       config.Logger,
	}
}

// Handler returns the HTTP routes of the feed.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start begins the HTTP server and the broadcast loop
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
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
		s.logger.Info("feed listening", zap.String("addr", ln.Addr().String()))
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("feed server failed", zap.Error(err))
		}
	}()

	return nil
}

// Stop closes all clients and shuts the server down.
func (s *Server) Stop() error {
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	var err error
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := s.server.Shutdown(ctx); serr != nil {
			err = fmt.Errorf("failed to shut down feed: %w", serr)
		}
	}

	s.wg.Wait()
	s.logger.Info("feed stopped")
	return err
}

// Publish queues a message for every connected client. The message replaces
// the replayed state of its topic. Messages are dropped when the queue is full.
func (s *Server) Publish(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Warn("broadcast queue full, dropping message", zap.String("topic", msg.Topic))
	}
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case conn := <-s.joins:
			s.join(conn)

		case msg := <-s.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Error("failed to marshal message", zap.String("topic", msg.Topic), zap.Error(err))
				continue
			}
			if msg.Topic != "" {
				s.latest[msg.Topic] = data
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range clients {
				if err := s.write(conn, data); err != nil {
					s.logger.Debug("failed to send to client", zap.Error(err))
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) write(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// join replays the latest message of every topic, in topic order, and then
// registers the client. It runs on the broadcast loop, so no broadcast can
// slip between the replay and the registration.
func (s *Server) join(conn *websocket.Conn) {
	topics := make([]string, 0, len(s.latest))
	for t := range s.latest {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	for _, t := range topics {
		if err := s.write(conn, s.latest[t]); err != nil {
			_ = conn.Close(websocket.StatusInternalError, "replay failed")
			return
		}
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	count := len(s.clients)
	s.clientsMu.Unlock()
	s.logger.Debug("client connected", zap.Int("count", count))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	select {
	case s.joins <- conn:
	case <-s.ctx.Done():
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	s.wg.Add(1)
	go s.readLoop(conn)
}

// readLoop detects client disconnects.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.wg.Done()
	defer s.removeClient(conn)

	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
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
	s.logger.Debug("client disconnected", zap.Int("count", count))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
