package gateway

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	sendBufferSize = 32
	writeTimeout   = 10 * time.Second
)

// Client is one authenticated websocket connection. Outbound frames
// go through a buffered channel so a slow reader never blocks a room
// broadcast.
type Client struct {
	id     string
	userID string

	conn *websocket.Conn
	send chan Envelope

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(id, userID string, conn *websocket.Conn) *Client {
	return &Client{
		id:     id,
		userID: userID,
		conn:   conn,
		send:   make(chan Envelope, sendBufferSize),
		done:   make(chan struct{}),
	}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }

// Send queues an event for delivery. Frames are dropped when the
// buffer is full; the client resyncs from state on its next join.
func (c *Client) Send(ev Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

func (c *Client) writeLoop(ctx context.Context, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case ev := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, c.conn, ev)
			cancel()
			if err != nil {
				logger.Debug("websocket write failed",
					zap.String("conn", c.id),
					zap.String("event", ev.Event),
					zap.Error(err))
				c.close()
				return
			}
		}
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close(websocket.StatusNormalClosure, "bye")
		}
	})
}
