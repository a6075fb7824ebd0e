// Package dashboard serves live viewport sync state over WebSocket.
//
// Connected clients receive a JSON message for every serviced host event,
// every recorded session snapshot and every applied scene script. A client
// that connects late first receives the most recent snapshot.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// MessageType defines the type of dashboard message.
type MessageType string

const (
	// MessageTypeEvent carries one serviced host event.
	MessageTypeEvent MessageType = "event"

	// MessageTypeSnapshot carries a session snapshot.
	MessageTypeSnapshot MessageType = "snapshot"

	// MessageTypeScript reports an applied scene script.
	MessageTypeScript MessageType = "script"

	// MessageTypeHello is the first message on a connection.
	MessageTypeHello MessageType = "hello"
)

// Message is one dashboard broadcast.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Config holds server configuration.
type Config struct {
	// Port to listen on. Zero picks a free port.
	Port int

	// Host to bind (default: localhost).
	Host string

	// Logger for server activity (default: stderr logger).
	Logger *log.Logger
}

// DefaultConfig returns the default server settings.
func DefaultConfig() *Config {
	return &Config{
		Port:   7420,
		Host:   "127.0.0.1",
		Logger: log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
	}
}

// Server manages WebSocket clients and fans messages out to them.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server
	logger   *log.Logger

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]struct{}

	lastMu   sync.Mutex
	last     *Message // latest snapshot, replayed to new clients
	sent     int
	dropped  int
	outgoing chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a stopped server.
func NewServer(cfg *Config) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = DefaultConfig().Logger
	}
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:     net.JoinHostPort(host, fmt.Sprint(cfg.Port)),
		logger:   cfg.Logger,
		clients:  make(map[*websocket.Conn]struct{}),
		outgoing: make(chan Message, 256),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/snapshot", s.handleSnapshot)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(2)
	go s.broadcastLoop()
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()
	return nil
}

// Stop closes every client and shuts the server down.
func (s *Server) Stop() error {
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("dashboard shutdown: %w", err)
		}
	}
	s.wg.Wait()
	return nil
}

// Broadcast queues msg for every client. It never blocks; when the queue
// is full the message is dropped.
func (s *Server) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.Type == MessageTypeSnapshot {
		s.lastMu.Lock()
		m := msg
		s.last = &m
		s.lastMu.Unlock()
	}
	select {
	case <-s.ctx.Done():
	case s.outgoing <- msg:
	default:
		s.lastMu.Lock()
		s.dropped++
		s.lastMu.Unlock()
		s.logger.Println("Warning: broadcast queue full, dropping message")
	}
}

// BroadcastData marshals data into a message of the given type.
func (s *Server) BroadcastData(typ MessageType, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", typ, err)
	}
	s.Broadcast(Message{Type: typ, Data: raw})
	return nil
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.outgoing:
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Warning: failed to marshal message: %v", err)
				continue
			}
			for _, conn := range s.snapshotClients() {
				if err := s.write(conn, data); err != nil {
					s.logger.Printf("Warning: failed to send to client: %v", err)
					s.removeClient(conn)
				}
			}
			s.lastMu.Lock()
			s.sent++
			s.lastMu.Unlock()
		}
	}
}

func (s *Server) snapshotClients() []*websocket.Conn {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	out := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		out = append(out, conn)
	}
	return out
}

func (s *Server) write(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.logger.Printf("Warning: WebSocket upgrade failed: %v", err)
		return
	}

	s.lastMu.Lock()
	last := s.last
	s.lastMu.Unlock()

	// The greeting goes out under the client lock so no broadcast can
	// overtake it.
	s.clientsMu.Lock()
	s.clients[conn] = struct{}{}
	count := len(s.clients)
	hello, _ := json.Marshal(Message{Type: MessageTypeHello, Timestamp: time.Now()})
	err = s.write(conn, hello)
	if err == nil && last != nil {
		if data, merr := json.Marshal(last); merr == nil {
			err = s.write(conn, data)
		}
	}
	s.clientsMu.Unlock()
	if err != nil {
		s.removeClient(conn)
		return
	}
	s.logger.Printf("Client connected (total: %d)", count)

	go s.readLoop(conn)
}

// readLoop only detects disconnects; client messages are ignored.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)
	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, ok := s.clients[conn]; !ok {
		s.clientsMu.Unlock()
		return
	}
	delete(s.clients, conn)
	count := len(s.clients)
	s.clientsMu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
	s.logger.Printf("Client disconnected (total: %d)", count)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.lastMu.Lock()
	sent, dropped := s.sent, s.dropped
	s.lastMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
		"sent":    sent,
		"dropped": dropped,
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.lastMu.Lock()
	last := s.last
	s.lastMu.Unlock()
	if last == nil {
		http.Error(w, "no snapshot yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(last.Data)
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
