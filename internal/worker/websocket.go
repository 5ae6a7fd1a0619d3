package worker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Signal is a server-to-worker message.
type Signal struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// Command is a worker-to-server message.
type Command struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// WebSocketClient is the transport between a worker and the dispatch
// endpoint. The bearer token travels in the Authorization header, never
// in the URL.
type WebSocketClient struct {
	url    string
	token  string
	conn   *websocket.Conn
	logger *slog.Logger
}

func NewWebSocketClient(serverURL, token string, logger *slog.Logger) *WebSocketClient {
	return &WebSocketClient{
		url:    serverURL,
		token:  token,
		logger: logger,
	}
}

func (c *WebSocketClient) Connect(ctx context.Context) error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.conn = conn
	c.logger.Info("websocket connected", slog.String("url", c.url))
	return nil
}

func (c *WebSocketClient) ReadSignal(context.Context) (*Signal, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("not connected")
	}
	var signal Signal
	if err := c.conn.ReadJSON(&signal); err != nil {
		return nil, fmt.Errorf("read signal: %w", err)
	}
	c.logger.Debug("received signal", slog.String("type", signal.Type))
	return &signal, nil
}

func (c *WebSocketClient) WriteCommand(_ context.Context, cmd *Command) error {
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	c.logger.Debug("sending command", slog.String("type", cmd.Type))
	if err := c.conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	return nil
}

func (c *WebSocketClient) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
