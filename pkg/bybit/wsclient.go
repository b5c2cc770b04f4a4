package bybit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	reconnectDelay = 3 * time.Second
	pingInterval   = 20 * time.Second
)

// WSClient handles WebSocket connection to Bybit and message routing.
type WSClient struct {
	url     string
	args    []string
	dialer  *websocket.Dialer
	handler func([]byte)
	logger  *zap.Logger

	mu   sync.Mutex // guards conn and writes to it
	conn *websocket.Conn
}

// NewWSClient creates a client that subscribes to topics on every (re)connect.
func NewWSClient(url string, topics []string, timeout time.Duration, logger *zap.Logger) *WSClient {
	return &WSClient{
		url:    url,
		args:   topics,
		dialer: &websocket.Dialer{HandshakeTimeout: timeout},
		logger: logger,
	}
}

// SetMessageHandler sets the function to handle incoming messages.
func (c *WSClient) SetMessageHandler(h func([]byte)) {
	c.handler = h
}

// Connect establishes the WebSocket connection and subscribes to the
// configured topics. It does not start the listener.
func (c *WSClient) Connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.logger.Error("Failed to connect to WebSocket", zap.String("url", c.url), zap.Error(err))
		return err
	}

	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	c.mu.Unlock()
	c.logger.Info("WebSocket connected", zap.String("url", c.url), zap.Strings("topics", c.args))

	if err := c.writeJSON(map[string]interface{}{"op": "subscribe", "args": c.args}); err != nil {
		c.logger.Error("Failed to send subscription", zap.Error(err))
		return fmt.Errorf("websocket subscribe failed: %w", err)
	}
	return nil
}

// Listen reads messages until ctx is cancelled, reconnecting after read errors.
func (c *WSClient) Listen(ctx context.Context) {
	go c.keepAlive(ctx)
	go func() {
		<-ctx.Done()
		c.Close()
	}()

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("WebSocket read error", zap.Error(err))

			// Retry reconnecting until the context ends
			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(reconnectDelay):
				}
				if err := c.Connect(ctx); err != nil {
					c.logger.Warn("Retrying reconnect...")
					continue
				}
				c.logger.Info("Reconnected successfully")
				break
			}
			continue
		}

		if c.handler != nil {
			c.handler(msg)
		}
	}
}

// Close closes the current connection.
func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// keepAlive sends the application-level ping Bybit expects to keep the stream open.
func (c *WSClient) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.writeJSON(map[string]string{"op": "ping"}); err != nil {
				c.logger.Debug("ping failed", zap.Error(err))
			}
		}
	}
}

func (c *WSClient) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	return c.conn.WriteJSON(v)
}
