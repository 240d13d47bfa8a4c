package controlplane

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// dialTimeout bounds how long Dial waits for the daemon's websocket
// handshake before reporting it unreachable (spec §6 exit code 1).
const dialTimeout = 5 * time.Second

// Client is a one-shot control-plane connection: Dial, Send a single
// command, read its response, Close.
type Client struct {
	conn *websocket.Conn
}

// Dial opens a control-plane connection to addr (e.g.
// "ws://127.0.0.1:7070/v1/control").
func Dial(addr string) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("control plane: daemon unreachable at %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Send writes req and blocks for its correlated response.
func (c *Client) Send(ctx context.Context, req *Message) (*Message, error) {
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
		c.conn.SetReadDeadline(deadline)
	}
	if err := c.conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("control plane: send failed: %w", err)
	}
	var resp Message
	if err := c.conn.ReadJSON(&resp); err != nil {
		return nil, fmt.Errorf("control plane: no response: %w", err)
	}
	if resp.Type == RespError {
		msg, _ := resp.Payload["error"].(string)
		return &resp, fmt.Errorf("%s", msg)
	}
	return &resp, nil
}
