package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quizbattle/quizbattle-go/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

// router receives the client's inbound messages and its close
type router interface {
	route(ctx context.Context, c *Client, msg model.Message)
	closed(ctx context.Context, c *Client)
}

// Client is one websocket connection bound to an authenticated user.
// Reads and writes run on their own goroutines; Send never blocks the
// caller.
type Client struct {
	UserID model.UserID

	conn   *websocket.Conn
	send   chan model.Message
	router router
	logger *slog.Logger

	mu     sync.Mutex
	roomID model.RoomID
}

func newClient(conn *websocket.Conn, userID model.UserID, r router, logger *slog.Logger) *Client {
	return &Client{
		UserID: userID,
		conn:   conn,
		send:   make(chan model.Message, sendBuffer),
		router: r,
		logger: logger.With(slog.String("user_id", string(userID))),
	}
}

// Send queues a message for delivery, dropping it if the client cannot
// keep up. A dropped message never blocks the hub.
func (c *Client) Send(msg model.Message) {
	select {
	case c.send <- msg:
	default:
		c.logger.Warn("dropping message, client backlogged",
			slog.String("type", string(msg.Type)))
	}
}

// SetRoom records which room the client is in
func (c *Client) SetRoom(roomID model.RoomID) {
	c.mu.Lock()
	c.roomID = roomID
	c.mu.Unlock()
}

// Room returns the room the client is in, or empty
func (c *Client) Room() model.RoomID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// run drives the connection until it closes
func (c *Client) run(ctx context.Context) {
	go c.writePump()
	c.readPump(ctx)
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.router.closed(ctx, c)
		close(c.send)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("connection closed unexpectedly", slog.String("error", err.Error()))
			}
			return
		}

		var msg model.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.Send(model.NewMessage(model.EventError, model.ErrorPayload{
				Code:    "BAD_MESSAGE",
				Message: "malformed message",
			}))
			continue
		}

		c.router.route(ctx, c, msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
