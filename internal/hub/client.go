package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Sanket2004/text-sharing-app/internal/service"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// Client binds one WebSocket connection to its session and outbound queue.
// The read pump is the connection's single session goroutine, so events from
// one client are always handled in order.
type Client struct {
	id        string
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	session   *Session
	closeOnce sync.Once
}

// NewClient registers a new client with the hub and wires up its session.
// Call Run to start the pumps.
func NewClient(h *Hub, conn *websocket.Conn, presence *service.PresenceService, pipeline *service.MessageService) *Client {
	c := &Client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
	}
	c.session = newSession(c, presence, pipeline)
	h.add(c)
	return c
}

// ID returns the connection identifier assigned for this client's lifetime.
func (c *Client) ID() string { return c.id }

// Session exposes the session state machine bound to this connection.
func (c *Client) Session() *Session { return c.session }

// Run starts the read and write pumps.
func (c *Client) Run() {
	go c.writePump()
	go c.readPump()
}

// enqueue places a payload on the outbound queue without blocking. A full
// queue means the consumer is too slow; the payload is dropped.
func (c *Client) enqueue(payload []byte) (ok bool) {
	defer func() {
		// The send channel may close concurrently with a broadcast.
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeSend closes the outbound queue exactly once.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// readPump reads frames from the WebSocket and drives the session. It exits
// on any read error, running disconnect cleanup on the way out.
func (c *Client) readPump() {
	logCtx := logrus.WithField("conn_id", c.id)
	defer func() {
		c.session.Disconnect()
		c.hub.remove(c)
		_ = c.conn.Close()
		logCtx.Debug("Read pump exited")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error")
			} else {
				logCtx.Debug("WebSocket connection closed")
			}
			return
		}
		if messageType != websocket.TextMessage {
			logCtx.Debugf("Ignoring non-text message type %d", messageType)
			continue
		}
		c.session.HandleEvent(raw)
	}
}

// writePump drains the send channel into the WebSocket and keeps the
// connection alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	logCtx := logrus.WithField("conn_id", c.id)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		logCtx.Debug("Write pump exited")
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logCtx.WithError(err).Warn("Failed to write message to websocket")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logCtx.WithError(err).Warn("Failed to send ping message")
				return
			}
		}
	}
}
