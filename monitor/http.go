// Package monitor serves a local view of the live conversation: a transcript
// API, a websocket feed of transcript changes, and Prometheus metrics.
package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bosley/parley/convo"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10
)

// FeedMessage is one websocket update: a transcript entry that was appended,
// revised, or removed.
type FeedMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   convo.Entry `json:"payload"`
}

type Server struct {
	addr       string
	transcript *convo.Transcript
	registry   *prometheus.Registry
	upgrader   websocket.Upgrader

	mu          sync.Mutex
	subscribers map[*feedConnection]struct{}

	server *http.Server
}

type feedConnection struct {
	conn      *websocket.Conn
	send      chan []byte
	monitor   *Server
	closeOnce sync.Once
}

func NewServer(addr string, transcript *convo.Transcript, registry *prometheus.Registry) *Server {
	return &Server{
		addr:       addr,
		transcript: transcript,
		registry:   registry,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local viewer only
			},
		},
		subscribers: make(map[*feedConnection]struct{}),
	}
}

// Start serves until the context ends.
func (s *Server) Start(ctx context.Context) error {
	router := mux.NewRouter()
	router.HandleFunc("/api/transcript", s.handleTranscript).Methods("GET")
	router.HandleFunc("/ws", s.handleWebSocket)
	router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: router,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("Monitor server error", "error", err)
		}
	}()
	slog.Info("Monitor listening", "addr", s.addr)

	<-ctx.Done()
	return s.server.Shutdown(context.Background())
}

// Broadcast pushes a transcript change to every connected feed. Wire it to
// Transcript.OnChange.
func (s *Server) Broadcast(entry convo.Entry) {
	msg := FeedMessage{
		Type:      "transcript",
		Timestamp: time.Now(),
		Payload:   entry,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal feed message", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subscribers {
		select {
		case sub.send <- data:
		default:
			slog.Warn("Feed subscriber falling behind, dropping update")
		}
	}
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	entries := s.transcript.Entries()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		slog.Error("Failed to encode transcript", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Feed upgrade failed", "error", err)
		return
	}

	sub := &feedConnection{
		conn:    conn,
		send:    make(chan []byte, 256),
		monitor: s,
	}

	s.mu.Lock()
	s.subscribers[sub] = struct{}{}
	s.mu.Unlock()

	go sub.writePump()
	go sub.readPump()
}

func (s *Server) unregister(sub *feedConnection) {
	s.mu.Lock()
	delete(s.subscribers, sub)
	s.mu.Unlock()
}

func (c *feedConnection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *feedConnection) readPump() {
	defer func() {
		c.monitor.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("Feed read error", "error", err)
			}
			break
		}
	}
}
