// Package garp sends the "VM is live" gratuitous-ARP notification to an
// external notifier service over a small length-prefixed framing. The wire
// protocol past the frame boundary belongs to the notifier and is not
// specified here (spec.md §6).
package garp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// ErrDisabled indicates no notifier endpoint was configured.
var ErrDisabled = errors.New("garp: notifier disabled")

// Notifier announces a MAC/IP binding to the upstream gARP service.
type Notifier interface {
	SendGarp(mac [6]byte, ip [4]byte) error
}

// Noop is a Notifier that does nothing; used when no notifier is configured.
type Noop struct{}

func (Noop) SendGarp([6]byte, [4]byte) error { return nil }

// Client is a Notifier that dials a TCP endpoint lazily and reconnects on
// every failure, mirroring how the rest of this codebase treats optional
// external collaborators (see internal/server/resolver).
type Client struct {
	addr    string
	timeout time.Duration

	mu   sync.Mutex
	conn net.Conn
}

// New constructs a Client for addr ("host:port"). addr == "" yields a
// disabled client whose SendGarp always returns ErrDisabled.
func New(addr string) *Client {
	return &Client{addr: strings.TrimSpace(addr), timeout: 5 * time.Second}
}

// Enabled reports whether this client has a configured endpoint.
func (c *Client) Enabled() bool {
	return c != nil && c.addr != ""
}

// SendGarp writes one frame: 4-byte big-endian length, then the 6-byte MAC
// followed by the 4-byte IPv4 address (length is always 10, kept explicit so
// the notifier's framing can grow without a wire-format break).
func (c *Client) SendGarp(mac [6]byte, ip [4]byte) error {
	if !c.Enabled() {
		return ErrDisabled
	}

	conn, err := c.connection()
	if err != nil {
		return fmt.Errorf("garp: dial %s: %w", c.addr, err)
	}

	payload := make([]byte, 4+10)
	binary.BigEndian.PutUint32(payload[0:4], 10)
	copy(payload[4:10], mac[:])
	copy(payload[10:14], ip[:])

	if err := conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		c.drop()
		return fmt.Errorf("garp: set deadline: %w", err)
	}
	if _, err := conn.Write(payload); err != nil {
		c.drop()
		return fmt.Errorf("garp: write frame: %w", err)
	}
	return nil
}

func (c *Client) connection() (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}
	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return conn, nil
}

// drop discards the current connection so the next SendGarp redials.
func (c *Client) drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Close releases the underlying connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

var _ Notifier = (*Client)(nil)
var _ Notifier = Noop{}
