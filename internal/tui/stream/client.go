// Package stream implements the WebSocket client side of the alert gateway:
// dial, token handshake, then a channel of decoded alerts.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chain-sentinel/internal/schema"
)

// ErrAuthRejected is returned when the gateway refuses the token.
var ErrAuthRejected = errors.New("stream: authentication rejected")

const handshakeTimeout = 15 * time.Second

// Client is a connected, authenticated alert stream.
type Client struct {
	conn   *websocket.Conn
	alerts chan *schema.FiredAlert

	closeOnce sync.Once
	done      chan struct{}
	err       error
}

// Dial connects to the gateway's /ws/alerts endpoint, sends the token frame,
// and waits for the authenticated confirmation before returning.
func Dial(ctx context.Context, url, token string) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("stream: dial %s: %w", url, err)
	}

	if err := handshake(conn, token); err != nil {
		conn.Close()
		return nil, err
	}

	c := &Client{
		conn:   conn,
		alerts: make(chan *schema.FiredAlert, 64),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// handshake sends the token envelope and expects the gateway's status frame.
func handshake(conn *websocket.Conn, token string) error {
	frame, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return err
	}

	conn.SetWriteDeadline(time.Now().Add(handshakeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("stream: send token: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, 4401, 4408) {
			return ErrAuthRejected
		}
		return fmt.Errorf("stream: read confirmation: %w", err)
	}

	var status struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(msg, &status); err != nil || status.Status != "authenticated" {
		return fmt.Errorf("stream: unexpected handshake frame %q", msg)
	}

	conn.SetReadDeadline(time.Time{})
	return nil
}

// Alerts returns the channel of decoded alerts. It is closed when the
// connection ends; check Err afterwards for the cause.
func (c *Client) Alerts() <-chan *schema.FiredAlert {
	return c.alerts
}

// Err reports why the stream ended, once Alerts is closed.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close tears down the connection.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.conn.Close()
	})
	return nil
}

func (c *Client) readLoop() {
	defer close(c.alerts)
	defer close(c.done)

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.err = err
			}
			return
		}

		var alert schema.FiredAlert
		if err := json.Unmarshal(msg, &alert); err != nil {
			// Skip frames that aren't alerts (e.g. future server notices).
			continue
		}
		c.alerts <- &alert
	}
}
