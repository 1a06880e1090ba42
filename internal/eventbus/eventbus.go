// Package eventbus is an optional NATS pub/sub transport so an
// out-of-process file watcher can publish (event, path) pairs to a
// LiveSyncCoordinator running in a different process, instead of
// calling HandlePartialSync in-process (SPEC_FULL.md §11). Grounded on
// inful-docbuilder's NATSClient (internal/linkverify/nats_client.go):
// a connect attempt that is non-fatal on failure, a mutex-guarded
// connection handle, and reconnect-on-first-use via ensureConnected.
// This package only needs core NATS pub/sub, not JetStream.
package eventbus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
)

// FileEventSubject is the subject LiveSyncCoordinator's out-of-process
// watcher publishes to.
const FileEventSubject = "nsbuild.file_events"

// FileEvent mirrors livesync.Event on the wire.
type FileEvent struct {
	Path string `json:"path"`
	Kind string `json:"kind"` // "add", "change", or "unlink"
}

// Client is a NATS connection that reconnects lazily on first use if
// the initial Connect attempt failed.
type Client struct {
	url          string
	mu           sync.RWMutex
	conn         *nats.Conn
	reconnecting atomic.Bool
	logger       *slog.Logger
}

// Connect attempts an initial connection to url. Connection failure is
// non-fatal: the returned Client retries on first Publish/Subscribe
// call.
func Connect(url string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{url: url, logger: logger}
	if err := c.connect(); err != nil {
		logger.Warn("initial NATS connection failed, will retry on first use", "url", url, "err", err)
	}
	return c
}

func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	conn, err := nats.Connect(c.url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(*nats.Conn, error) {}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS at %s: %w", c.url, err)
	}
	c.conn = conn
	return nil
}

func (c *Client) ensureConnected() error {
	c.mu.RLock()
	connected := c.conn != nil && c.conn.IsConnected()
	c.mu.RUnlock()
	if connected {
		return nil
	}
	if c.reconnecting.Swap(true) {
		return fmt.Errorf("eventbus: reconnection already in progress")
	}
	defer c.reconnecting.Store(false)
	return c.connect()
}

// PublishFileEvent publishes one file-change event for a remote
// coordinator to consume.
func (c *Client) PublishFileEvent(ev FileEvent) error {
	if err := c.ensureConnected(); err != nil {
		return fmt.Errorf("NATS not connected: %w", err)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshalling file event: %w", err)
	}
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if err := conn.Publish(FileEventSubject, data); err != nil {
		return fmt.Errorf("publishing file event: %w", err)
	}
	return nil
}

// SubscribeFileEvents invokes handler for every FileEvent published to
// FileEventSubject until the returned unsubscribe func is called.
func (c *Client) SubscribeFileEvents(handler func(FileEvent)) (func() error, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, fmt.Errorf("NATS not connected: %w", err)
	}
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	sub, err := conn.Subscribe(FileEventSubject, func(msg *nats.Msg) {
		var ev FileEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			c.logger.Warn("discarding malformed file event", "err", err)
			return
		}
		handler(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", FileEventSubject, err)
	}
	return sub.Unsubscribe, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	return nil
}
