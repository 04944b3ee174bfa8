package websocket

import (
	"context"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
)

// Client relays one subscription over a WebSocket connection.
type Client struct {
	sub  *Subscription
	conn *ws.Conn
}

func NewClient(sub *Subscription, conn *ws.Conn) *Client {
	return &Client{
		sub:  sub,
		conn: conn,
	}
}

// Run writes first (typically the snapshot), then relays events until the
// connection closes. The subscription is released on return.
func (c *Client) Run(ctx context.Context, first []byte) {
	defer c.sub.Unsubscribe()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if first != nil {
		if err := c.conn.Write(ctx, ws.MessageText, first); err != nil {
			return
		}
	}

	go func() {
		c.writePump(ctx)
		cancel()
	}()
	c.readPump(ctx)
}

// readPump reads and discards all incoming messages. It returns on error
// (connection close), which triggers cleanup.
func (c *Client) readPump(ctx context.Context) {
	for {
		_, _, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
	}
}

// writePump drains the subscription and writes messages to the WebSocket.
// It also sends periodic pings to detect stale connections.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.sub.Events():
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
