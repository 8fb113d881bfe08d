package xrpld

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/ledgerpay/settlement/monitoring"
)

// State is the connection lifecycle state of the client.
type State uint8

const (
	// StateDisconnected means no connection is established. The next
	// call dials on demand.
	StateDisconnected State = iota

	// StateConnecting means a dial is in progress.
	StateConnecting

	// StateConnected means the websocket connection is live.
	StateConnected
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Config holds configuration for the ledger node client.
type Config struct {
	// URL is the websocket endpoint of the ledger node.
	URL string

	// HandshakeTimeout bounds the websocket dial.
	// Default: 10 seconds
	HandshakeTimeout time.Duration

	// WriteTimeout bounds a single request write.
	// Default: 10 seconds
	WriteTimeout time.Duration

	// PollInterval is how often to poll for submission validation.
	// Default: 2 seconds
	PollInterval time.Duration

	// ExpiryBuffer is how many ledgers past LastLedgerSequence to observe
	// before classifying a submission as unresolved.
	// Default: 2
	ExpiryBuffer uint32

	// RateLimit is the number of requests per second allowed.
	// Default: 20
	RateLimit int
}

// DefaultConfig returns a default configuration for the given endpoint.
func DefaultConfig(url string) *Config {
	return &Config{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		PollInterval:     2 * time.Second,
		ExpiryBuffer:     2,
		RateLimit:        20,
	}
}

// response is the node's reply envelope for a single request.
type response struct {
	ID           uint64          `json:"id"`
	Status       string          `json:"status"`
	Type         string          `json:"type"`
	Result       json.RawMessage `json:"result"`
	ErrorName    string          `json:"error"`
	ErrorMessage string          `json:"error_message"`
}

// Client is the single shared connection to the ledger node. The connection
// is established lazily and re-dialed on demand after a disconnect; requests
// that were in flight when the connection dropped fail with
// ErrConnectionLost instead of being silently retried. No state is cached
// across calls: every read re-queries the ledger.
type Client struct {
	cfg *Config

	limiter *rate.Limiter

	// mu guards conn, state, everConnected and closed.
	mu            sync.Mutex
	conn          *websocket.Conn
	state         State
	everConnected bool
	closed        bool

	// writeMu serializes request writes over the shared connection.
	writeMu sync.Mutex

	// pendingMu guards pending. Each in-flight request owns a buffered
	// channel; a closed channel signals a lost connection.
	pendingMu sync.Mutex
	pending   map[uint64]chan *response

	nextID atomic.Uint64
}

// NewClient creates a new ledger node client. No connection is made until
// the first call.
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig("")
	}

	return &Client{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit),
		pending: make(map[uint64]chan *response),
	}
}

// Connect establishes the connection eagerly. Calls connect on demand, so
// using Connect is optional.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.ensureConnected(ctx)
	return err
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close tears down the connection. The client cannot be reused afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// ensureConnected returns the live connection, dialing if necessary.
func (c *Client) ensureConnected(ctx context.Context) (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}
	if c.state == StateConnected {
		return c.conn, nil
	}

	if c.cfg.URL == "" {
		return nil, fmt.Errorf("no ledger node URL configured")
	}

	c.state = StateConnecting

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		c.state = StateDisconnected
		return nil, fmt.Errorf("failed to dial %s: %w", c.cfg.URL, err)
	}

	c.conn = conn
	c.state = StateConnected

	if c.everConnected {
		monitoring.LedgerReconnects.Inc()
		log.Infof("Reconnected to ledger node %s", c.cfg.URL)
	} else {
		log.Infof("Connected to ledger node %s", c.cfg.URL)
	}
	c.everConnected = true

	go c.readLoop(conn)

	return conn, nil
}

// readLoop dispatches responses to their pending requests until the
// connection fails.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var resp response
		if err := conn.ReadJSON(&resp); err != nil {
			c.teardown(conn, err)
			return
		}

		// Anything other than a direct response (e.g. stream
		// messages) is ignored.
		if resp.Type != "response" {
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.pendingMu.Unlock()

		if ok {
			ch <- &resp
		}
	}
}

// teardown marks the connection as lost and fails every in-flight request.
func (c *Client) teardown(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.state = StateDisconnected
		if !c.closed {
			log.Warnf("Ledger connection lost: %v", err)
		}
	}
	c.mu.Unlock()

	_ = conn.Close()

	c.pendingMu.Lock()
	channels := make([]chan *response, 0, len(c.pending))
	for id, ch := range c.pending {
		channels = append(channels, ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	for _, ch := range channels {
		close(ch)
	}
}

// call performs one request/response exchange with the node.
func (c *Client) call(ctx context.Context, command string,
	params map[string]any) (json.RawMessage, error) {

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	conn, err := c.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}

	id := c.nextID.Add(1)
	ch := make(chan *response, 1)

	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	req := make(map[string]any, len(params)+2)
	for k, v := range params {
		req[k] = v
	}
	req["id"] = id
	req["command"] = command

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	err = conn.WriteJSON(req)
	c.writeMu.Unlock()

	if err != nil {
		c.unregister(id)
		c.teardown(conn, err)
		return nil, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("%s: %w", command,
				ErrConnectionLost)
		}

		if resp.Status == "error" {
			return nil, &RPCError{
				Name:    resp.ErrorName,
				Message: resp.ErrorMessage,
			}
		}

		return resp.Result, nil

	case <-ctx.Done():
		// The request already left this process; like a dropped
		// connection, its fate is unknown.
		c.unregister(id)
		return nil, fmt.Errorf("%s: %w: %v", command, ErrConnectionLost,
			ctx.Err())
	}
}

// unregister drops a pending request registration.
func (c *Client) unregister(id uint64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}
