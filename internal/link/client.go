// Package link streams vessel updates and capture requests as NDJSON to a
// socket-tcp-proxy, reconnecting for as long as the process runs.
package link

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"aiscam-svr/internal/capture"
	"aiscam-svr/internal/observability"
	"aiscam-svr/internal/pipeline"
)

type Option func(*Client)

// WithRetry sets the wait after a failed dial and after a dropped connection.
func WithRetry(dial, reconnect time.Duration) Option {
	return func(c *Client) {
		c.dialRetry = dial
		c.reconnect = reconnect
	}
}

// WithQueue sets how many lines may wait for the connection.
func WithQueue(size int) Option {
	return func(c *Client) { c.queueSize = size }
}

// Client is safe for concurrent use. A nil *Client is a disabled link.
type Client struct {
	addr      string
	logger    *slog.Logger
	dialRetry time.Duration
	reconnect time.Duration
	queueSize int

	out   chan []byte
	state atomic.Int32
}

// New returns nil when addr is empty.
func New(addr string, lg *slog.Logger, opts ...Option) *Client {
	if lg == nil {
		lg = slog.Default()
	}
	if addr == "" {
		lg.Info("link: disabled (no proxy address configured)")
		return nil
	}
	c := &Client{
		addr:      addr,
		logger:    lg.With("component", "link"),
		dialRetry: 5 * time.Second,
		reconnect: 2 * time.Second,
		queueSize: 256,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.out = make(chan []byte, c.queueSize)
	c.state.Store(int32(StateDisconnected))
	return c
}

func (c *Client) State() State {
	if c == nil {
		return StateDisabled
	}
	return State(c.state.Load())
}

// Run keeps the connection up until ctx is done.
func (c *Client) Run(ctx context.Context) {
	if c == nil {
		return
	}
	d := net.Dialer{Timeout: 5 * time.Second}
	for {
		conn, err := d.DialContext(ctx, "tcp", c.addr)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("link: dial failed", "addr", c.addr, "err", err)
			if !sleep(ctx, c.dialRetry) {
				return
			}
			continue
		}

		c.state.Store(int32(StateConnected))
		c.logger.Info("link: connected", "remote", conn.RemoteAddr().String())

		done := make(chan struct{})
		go func() {
			c.readLoop(conn)
			close(done)
		}()
		c.writeLoop(ctx, conn, done)
		_ = conn.Close()
		<-done
		c.state.Store(int32(StateDisconnected))

		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("link: connection closed, reconnecting...")
		if !sleep(ctx, c.reconnect) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Client) writeLoop(ctx context.Context, conn net.Conn, readDone <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-readDone:
			return
		case b := <-c.out:
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if _, err := conn.Write(b); err != nil {
				observability.LinkSendErrors.Inc()
				c.logger.Warn("link: write failed", "err", err)
				return
			}
		}
	}
}

func (c *Client) readLoop(conn net.Conn) {
	r := bufio.NewScanner(conn)
	for r.Scan() {
		c.logger.Debug("link: incoming line", "line", r.Text())
	}
	if err := r.Err(); err != nil && err != io.EOF {
		c.logger.Debug("link: read error", "err", err)
	}
}

func (c *Client) sendNDJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case c.out <- append(b, '\n'):
		return nil
	default:
		observability.LinkSendErrors.Inc()
		return fmt.Errorf("link: queue full")
	}
}

type vesselPayload struct {
	VesselUpdate bool `json:"vessel_update"`
	*pipeline.VesselView
}

type captureDuePayload struct {
	CaptureDue bool `json:"capture_due"`
	capture.Request
}

// PublishVessel queues a vessel_update line.
func (c *Client) PublishVessel(v *pipeline.VesselView) {
	if c == nil || v == nil {
		return
	}
	if err := c.sendNDJSON(vesselPayload{VesselUpdate: true, VesselView: v}); err != nil {
		c.logger.Debug("link: send vessel_update failed", "mmsi", v.MMSI, "err", err)
	}
}

func (c *Client) Name() string { return "link" }

// Send queues a capture_due line.
func (c *Client) Send(_ context.Context, req capture.Request) error {
	if c == nil {
		return nil
	}
	return c.sendNDJSON(captureDuePayload{CaptureDue: true, Request: req})
}
