// Package channeltest provides an in-process Game Coordinator backend
// speaking Engine.IO v4 / Socket.IO v5 over websocket, for tests.
package channeltest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Command is one event received from a client.
type Command struct {
	Name    string
	Payload json.RawMessage
	Token   string
}

// Server is a fake backend. Zero or more clients may be connected; Emit
// sends to all of them.
type Server struct {
	*httptest.Server

	upgrader     websocket.Upgrader
	pingInterval time.Duration

	mu       sync.Mutex
	all      map[*serverConn]struct{}
	conns    map[*serverConn]struct{}
	tokens   []string
	rejected map[string]bool
	silent   bool
	dials    int

	commands chan Command
}

type serverConn struct {
	ws    *websocket.Conn
	token string
	wmu   sync.Mutex
	done  chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithPingInterval sets the Engine.IO ping interval advertised and used.
func WithPingInterval(d time.Duration) Option {
	return func(s *Server) {
		s.pingInterval = d
	}
}

// NewServer starts a fake backend. Close it with Close.
func NewServer(opts ...Option) *Server {
	s := &Server{
		pingInterval: 25 * time.Second,
		all:          make(map[*serverConn]struct{}),
		conns:        make(map[*serverConn]struct{}),
		rejected:     make(map[string]bool),
		commands:     make(chan Command, 256),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// SocketURL returns the URL to configure the channel with.
func (s *Server) SocketURL() string {
	return s.URL + "/"
}

// Reject makes the server refuse namespace connects carrying token.
func (s *Server) Reject(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected[token] = true
}

// SetSilent makes the server stop answering namespace connects.
func (s *Server) SetSilent(silent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silent = silent
}

// Tokens returns the token of every accepted connection, in order.
func (s *Server) Tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tokens...)
}

// Dials returns how many websocket upgrades were served.
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// Connections returns the number of live client connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Commands delivers every client event in arrival order.
func (s *Server) Commands() <-chan Command { return s.commands }

// Emit sends a Socket.IO event to every connected client. A nil payload
// sends the name alone.
func (s *Server) Emit(topic string, payload any) error {
	args := []any{topic}
	if payload != nil {
		args = append(args, payload)
	}
	body, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return s.broadcast(append([]byte("42"), body...))
}

// EmitRaw sends a raw Socket.IO event body, e.g. `["TOPIC",{...}]`.
func (s *Server) EmitRaw(body string) error {
	return s.broadcast([]byte("42" + body))
}

// Close drops every client and shuts the server down.
func (s *Server) Close() {
	s.DropAll()
	s.Server.Close()
}

// DropAll closes every client connection without a goodbye.
func (s *Server) DropAll() {
	s.mu.Lock()
	conns := make([]*serverConn, 0, len(s.all))
	for c := range s.all {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.ws.Close()
	}
}

func (s *Server) broadcast(frame []byte) error {
	s.mu.Lock()
	conns := make([]*serverConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if len(conns) == 0 {
		return fmt.Errorf("channeltest: no connected clients")
	}
	for _, c := range conns {
		if err := c.write(frame); err != nil {
			return err
		}
	}
	return nil
}

func (c *serverConn) write(frame []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/socket.io") ||
		r.URL.Query().Get("EIO") != "4" ||
		r.URL.Query().Get("transport") != "websocket" {
		http.Error(w, "bad engine.io request", http.StatusBadRequest)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &serverConn{ws: ws, done: make(chan struct{})}
	s.mu.Lock()
	s.dials++
	s.all[c] = struct{}{}
	s.mu.Unlock()

	defer func() {
		close(c.done)
		_ = ws.Close()
		s.mu.Lock()
		delete(s.all, c)
		delete(s.conns, c)
		s.mu.Unlock()
	}()

	open, _ := json.Marshal(map[string]any{
		"sid":          uuid.NewString(),
		"upgrades":     []string{},
		"pingInterval": s.pingInterval.Milliseconds(),
		"pingTimeout":  20000,
		"maxPayload":   1000000,
	})
	if err := c.write(append([]byte("0"), open...)); err != nil {
		return
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		frame := string(data)
		switch {
		case frame == "3":
		case frame == "41":
			return
		case strings.HasPrefix(frame, "40"):
			if !s.acceptConnect(c, frame[2:]) {
				return
			}
		case strings.HasPrefix(frame, "42"):
			s.recordCommand(c, frame[2:])
		}
	}
}

func (s *Server) acceptConnect(c *serverConn, body string) bool {
	var auth struct {
		Token string `json:"token"`
	}
	_ = json.Unmarshal([]byte(body), &auth)

	s.mu.Lock()
	rejected := s.rejected[auth.Token]
	silent := s.silent
	s.mu.Unlock()

	if silent {
		return true
	}
	if rejected {
		_ = c.write([]byte(`44{"message":"invalid token"}`))
		return false
	}

	c.token = auth.Token
	if err := c.write([]byte(`40{"sid":"` + uuid.NewString() + `"}`)); err != nil {
		return false
	}
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.tokens = append(s.tokens, auth.Token)
	s.mu.Unlock()

	go s.pingLoop(c)
	return true
}

func (s *Server) pingLoop(c *serverConn) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.write([]byte("2")); err != nil {
				return
			}
		}
	}
}

func (s *Server) recordCommand(c *serverConn, body string) {
	var args []json.RawMessage
	if err := json.Unmarshal([]byte(body), &args); err != nil || len(args) == 0 {
		return
	}
	var name string
	if err := json.Unmarshal(args[0], &name); err != nil {
		return
	}
	cmd := Command{Name: name, Token: c.token}
	if len(args) > 1 {
		cmd.Payload = args[1]
	}
	select {
	case s.commands <- cmd:
	default:
	}
}
