// Package messaging talks to an external messaging bridge over a websocket
// bus. The bridge owns the real chat client; this side only asks it to
// send messages and list peers.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/net/proxy"
)

// Message kinds exchanged with the bridge.
const (
	KindSend     = "send"
	KindContacts = "contacts"
	KindAck      = "ack"
	KindError    = "error"
)

const defaultTimeout = 10 * time.Second

// ErrNotConnected is returned when no bus URL is configured.
var ErrNotConnected = errors.New("not connected to messaging bridge")

// BusMessage is the JSON frame sent both ways. Replies carry the request ID.
type BusMessage struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	To      string `json:"to"`
	Kind    string `json:"kind"`
	Content string `json:"content,omitempty"`
	Session string `json:"session,omitempty"`
	Peers   []Peer `json:"peers,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Peer is a chat the bridge can deliver to.
type Peer struct {
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
	ID       string `json:"id,omitempty"`
}

// Config configures a Client.
type Config struct {
	URL     string
	Proxy   string // optional SOCKS5 host:port
	Token   string // sent as a bearer token on connect
	Session string // default bridge session
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client is a request/reply client for the bridge. Calls are serialized;
// the connection is dialed lazily and re-dialed after a failure.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	session string
}

// New returns a Client. It does not dial.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	d := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.Timeout,
	}
	if cfg.Proxy != "" {
		socks, err := proxy.SOCKS5("tcp", cfg.Proxy, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("creating SOCKS5 dialer: %w", err)
		}
		d.Proxy = nil
		d.NetDialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := socks.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return socks.Dial(network, addr)
		}
	}

	return &Client{cfg: cfg, dialer: d, logger: cfg.Logger, session: cfg.Session}, nil
}

// Configured reports whether a bridge URL is set.
func (c *Client) Configured() bool {
	return c.cfg.URL != ""
}

// UseSession selects the bridge session used by later calls.
func (c *Client) UseSession(session string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = session
}

// Send asks the bridge to deliver text to recipient. A recipient starting
// with "@" is a username; anything else is matched by chat name.
func (c *Client) Send(ctx context.Context, recipient, text string) (bool, string) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return false, "No recipient given"
	}
	reply, err := c.roundTrip(ctx, BusMessage{Kind: KindSend, To: recipient, Content: text})
	if errors.Is(err, ErrNotConnected) {
		return false, "Not connected to Telegram"
	}
	if err != nil {
		c.logger.Error("sending message", "recipient", recipient, "error", err)
		return false, fmt.Sprintf("Error sending message: %v", err)
	}
	if reply.Kind == KindError {
		return false, reply.Error
	}
	c.logger.Info("message sent", "recipient", recipient)
	return true, fmt.Sprintf("Message sent to %s", recipient)
}

// Contacts lists the peers known to the bridge.
func (c *Client) Contacts(ctx context.Context) ([]Peer, error) {
	reply, err := c.roundTrip(ctx, BusMessage{Kind: KindContacts})
	if err != nil {
		return nil, err
	}
	if reply.Kind == KindError {
		return nil, errors.New(reply.Error)
	}
	return reply.Peers, nil
}

// Close closes the connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropLocked()
}

func (c *Client) roundTrip(ctx context.Context, req BusMessage) (*BusMessage, error) {
	if !c.Configured() {
		return nil, ErrNotConnected
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}

	req.ID = uuid.New().String()
	req.From = "jarvis"
	req.Session = c.session

	deadline := time.Now().Add(c.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetWriteDeadline(deadline)
	c.conn.SetReadDeadline(deadline)

	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("writing to bus: %w", err)
	}

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.dropLocked()
			return nil, fmt.Errorf("reading from bus: %w", err)
		}
		var m BusMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			c.logger.Warn("ignoring malformed bus frame", "error", err)
			continue
		}
		if m.ID == req.ID {
			return &m, nil
		}
		c.logger.Debug("ignoring unrelated bus frame", "id", m.ID, "kind", m.Kind)
	}
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dialing bus: %w", err)
	}
	c.conn = conn
	c.logger.Info("connected to messaging bus", "url", c.cfg.URL)
	return nil
}

func (c *Client) dropLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
