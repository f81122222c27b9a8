package realtime

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Message types on the subscription channel.
const (
	MessageSubscribe    = "subscribe"
	MessageUnsubscribe  = "unsubscribe"
	MessageSubscribed   = "subscribed"
	MessageUnsubscribed = "unsubscribed"
	MessageError        = "error"
)

// ControlMessage is what clients send, and the acknowledgement shape.
type ControlMessage struct {
	Type          string `json:"type"`
	TransactionID string `json:"transactionId,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Client is one WebSocket connection. A read pump handles subscribe and
// unsubscribe messages; a write pump drains queued events and keeps the
// connection alive with pings.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func NewClient(logger *slog.Logger, hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: logger.With("component", "ws_client", "remote_addr", conn.RemoteAddr().String()),
	}
}

// Run serves the connection until it closes.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

func (c *Client) Send(event transfer.StatusEvent) bool {
	b, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("Failed to marshal status event", "transaction_id", event.TransactionID, "error", err)
		return true
	}
	return c.enqueue(b)
}

func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Client) enqueue(b []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *Client) reply(msg ControlMessage) {
	b, _ := json.Marshal(msg)
	if !c.enqueue(b) {
		c.Close()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveSubscriber(c)
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ControlMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("WebSocket closed unexpectedly", "error", err)
			}
			return
		}

		id := strings.TrimSpace(msg.TransactionID)
		switch msg.Type {
		case MessageSubscribe:
			if id == "" {
				c.reply(ControlMessage{Type: MessageError, Error: "transactionId is required"})
				continue
			}
			c.hub.Subscribe(id, c)
			c.reply(ControlMessage{Type: MessageSubscribed, TransactionID: id})
		case MessageUnsubscribe:
			c.hub.Unsubscribe(id, c)
			c.reply(ControlMessage{Type: MessageUnsubscribed, TransactionID: id})
		default:
			c.reply(ControlMessage{Type: MessageError, Error: "unknown message type: " + msg.Type})
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
