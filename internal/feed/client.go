package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"rtg-maker-bot/internal/exchange"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Client is the duplex exchange connection. Inbound frames are decoded and
// handed to the session loop in arrival order; outbound order actions are
// written on the same connection. Reconnection is owned here, but after
// maxFailures consecutive connect attempts Run gives up and surfaces the
// failure so the session can engage its kill switch.
type Client struct {
	url            string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	maxFailures    int
	log            *zap.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	onOpen   []func(ctx context.Context) error
	reconns  int
	failures int
}

func New(url string, reconnectDelay, pingInterval time.Duration, maxFailures int, log *zap.Logger) *Client {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	return &Client{
		url:            url,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		maxFailures:    maxFailures,
		log:            log,
	}
}

// OnOpen registers a hook replayed on every (re)connect, e.g. the gateway's
// login frame.
func (c *Client) OnOpen(fn func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOpen = append(c.onOpen, fn)
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return err
	}
	c.conn = conn
	return nil
}

// Send writes one encoded frame. It does not retry: a failed write leaves
// the order state unknown and the caller decides how to reconcile.
func (c *Client) Send(ctx context.Context, data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("feed not connected")
	}
	return conn.Write(ctx, websocket.MessageBinary, data)
}

// Reconnects reports how many times the connection was re-established.
func (c *Client) Reconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconns
}

// Run reads frames until ctx is cancelled or the connection is declared
// dead. Decoded events are delivered synchronously, preserving exchange
// sequence order as decision order.
func (c *Client) Run(ctx context.Context, handler func(exchange.Event)) error {
	for {
		if err := c.ensureConnected(ctx); err != nil {
			c.mu.Lock()
			c.failures++
			failures := c.failures
			c.mu.Unlock()
			if failures >= c.maxFailures {
				return fmt.Errorf("feed connect failed %d times: %w", failures, err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.reconnectDelay):
			}
			continue
		}
		c.mu.Lock()
		c.failures = 0
		c.mu.Unlock()
		pingCtx, cancel := context.WithCancel(ctx)
		pingDone := make(chan struct{})
		go func() {
			defer close(pingDone)
			c.pingLoop(pingCtx)
		}()
		err := c.readLoop(ctx, handler)
		cancel()
		<-pingDone
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logReadLoopError(err)
		c.resetConn()
		c.mu.Lock()
		c.reconns++
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.reconnectDelay):
		}
	}
}

func (c *Client) ensureConnected(ctx context.Context) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	hooks := append([]func(context.Context) error(nil), c.onOpen...)
	c.mu.Unlock()
	for _, fn := range hooks {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) readLoop(ctx context.Context, handler func(exchange.Event)) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("feed not connected")
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		ev, err := exchange.DecodeEvent(data)
		if err != nil {
			c.log.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		if handler != nil {
			handler(ev)
		}
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	interval := c.pingInterval
	c.mu.Unlock()
	if conn == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.Ping(ctx); err != nil {
				return
			}
		}
	}
}

func (c *Client) logReadLoopError(err error) {
	if c.log == nil || err == nil {
		return
	}
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure {
		c.log.Info("feed read loop ended", zap.Error(err))
		return
	}
	c.log.Warn("feed read loop ended", zap.Error(err))
}

func (c *Client) resetConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "reset")
		c.conn = nil
	}
}
