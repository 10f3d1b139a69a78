// Package channel maintains the persistent bidirectional connection to the
// backend for one conversation. Each conversation gets its own Channel
// instance with typed events and structured teardown; there is no
// process-wide listener registry to leak across re-entry.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	sendBuffer  = 64
	eventBuffer = 64
)

var ErrDisconnected = errors.New("channel: connection closed")

type Config struct {
	// URL is the websocket endpoint, e.g. wss://host/stream.
	URL string

	// Conversation scopes the channel; a fresh id is minted upstream when
	// none exists.
	Conversation string

	// Token authenticates submitted turns.
	Token string

	HandshakeTimeout time.Duration
}

// Channel is a long-lived connection scoped to one conversation. Events are
// delivered in arrival order on a single channel; commands may be issued from
// any goroutine.
type Channel struct {
	config Config
	conn   *websocket.Conn

	send   chan []byte
	events chan Event

	// pendingTurn holds the correlation id announced by the most recent
	// audio_generated frame, consumed by the next binary frame.
	mu          sync.Mutex
	pendingTurn uuid.UUID

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects and starts the read/write pumps.
func Dial(ctx context.Context, config Config) (*Channel, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("websocket URL cannot be empty")
	}
	if config.Conversation == "" {
		return nil, fmt.Errorf("conversation id cannot be empty")
	}

	dialer := websocket.Dialer{HandshakeTimeout: config.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", config.URL, err)
	}

	c := &Channel{
		config: config,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
	}

	go c.writePump()
	go c.readPump()

	slog.Debug("Channel connected",
		"url", config.URL,
		"conversation", config.Conversation)
	return c, nil
}

// Events returns the inbound event stream. The channel is closed after a
// final KindDisconnected event when the connection ends.
func (c *Channel) Events() <-chan Event { return c.events }

func (c *Channel) Conversation() string { return c.config.Conversation }

// SubmitTurn sends a user turn. Fire-and-continue: the reply arrives later as
// fragment and turn_complete events. Conversation and token default to the
// channel's own when the request leaves them empty.
func (c *Channel) SubmitTurn(req TurnRequest) error {
	conversation := req.Conversation
	if conversation == "" {
		conversation = c.config.Conversation
	}
	token := req.Token
	if token == "" {
		token = c.config.Token
	}
	return c.command(wireMessage, messageData{
		Message: messageBody{
			Text:        req.Text,
			Type:        "text",
			Attachments: []string{},
		},
		Context:      req.Context,
		Conversation: conversation,
		Token:        token,
	})
}

// RequestSpeech asks the backend to synthesize a finished turn. The turn id
// rides along so audio can be correlated instead of relying purely on
// delivery order.
func (c *Channel) RequestSpeech(turnID uuid.UUID, text string) error {
	return c.command(wireSpeechRequest, speechRequestData{
		Text: text,
		Turn: turnID.String(),
	})
}

// Close tears down the connection and both pumps. The event channel closes
// once the read pump drains.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *Channel) command(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", event, err)
	}
	raw, err := json.Marshal(frame{Event: event, Data: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}

	// Check for teardown first: the send buffer may still have room after
	// the connection is gone.
	select {
	case <-c.done:
		return ErrDisconnected
	default:
	}

	select {
	case c.send <- raw:
		return nil
	case <-c.done:
		return ErrDisconnected
	}
}

func (c *Channel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Error("Channel write failed", "error", err)
				c.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *Channel) readPump() {
	defer close(c.events)

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			reason := err.Error()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				reason = "connection closed by peer"
			}
			c.Close()
			c.events <- Event{Kind: KindDisconnected, Reason: reason}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			if event, ok := c.parseFrame(data); ok {
				c.events <- event
			}
		case websocket.BinaryMessage:
			c.events <- Event{
				Kind:   KindAudioReady,
				Audio:  data,
				TurnID: c.takePendingTurn(),
			}
		}
	}
}

// parseFrame maps a wire frame to an Event. Frames that carry no pipeline
// event (audio announcements, video notifications, unknown types) return
// ok=false.
func (c *Channel) parseFrame(data []byte) (Event, bool) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		slog.Warn("Discarding malformed channel frame", "error", err)
		return Event{}, false
	}

	switch f.Event {
	case wireResponse:
		var d responseData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			slog.Warn("Discarding malformed response frame", "error", err)
			return Event{}, false
		}
		return Event{Kind: KindFragment, Text: d.Chunk}, true

	case wireResponseFinished:
		var d responseFinishedData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			slog.Warn("Discarding malformed responseFinished frame", "error", err)
			return Event{}, false
		}
		return Event{Kind: KindTurnComplete, Text: d.AIResponse}, true

	case wireOutOfBalance:
		var d outOfBalanceData
		json.Unmarshal(f.Data, &d)
		return Event{Kind: KindBalanceExhausted, Reason: d.Reason}, true

	case wireAudioGenerated:
		var d audioGeneratedData
		json.Unmarshal(f.Data, &d)
		if id, err := uuid.Parse(d.Turn); err == nil {
			c.setPendingTurn(id)
		}
		return Event{}, false

	case wireVideoGenerated:
		// Nothing in this pipeline consumes video.
		slog.Debug("Ignoring video_generated event")
		return Event{}, false

	default:
		slog.Debug("Ignoring unknown channel event", "event", f.Event)
		return Event{}, false
	}
}

func (c *Channel) setPendingTurn(id uuid.UUID) {
	c.mu.Lock()
	c.pendingTurn = id
	c.mu.Unlock()
}

func (c *Channel) takePendingTurn() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.pendingTurn
	c.pendingTurn = uuid.Nil
	return id
}
