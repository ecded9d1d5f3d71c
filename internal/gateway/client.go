package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"rtg-maker-bot/internal/exchange"
	"rtg-maker-bot/internal/state"

	"go.uber.org/zap"
)

const liveOrderKeyPrefix = "order:live:"

// Transport writes one encoded frame to the exchange. The feed client
// implements it; tests substitute a capture.
type Transport interface {
	Send(ctx context.Context, data []byte) error
}

// Client turns the engine's intents into wire frames. Inserts are journaled
// to the kv store before they leave, so a restarted session can cancel
// leftovers it no longer has a table for; terminal lifecycle events clear
// the journal entry.
type Client struct {
	transport Transport
	store     state.Store
	log       *zap.Logger

	mu   sync.Mutex
	live map[uint64]struct{}
}

func New(transport Transport, store state.Store, log *zap.Logger) *Client {
	return &Client{
		transport: transport,
		store:     store,
		log:       log,
		live:      make(map[uint64]struct{}),
	}
}

// Login authenticates the connection. Sent on every (re)connect.
func (c *Client) Login(ctx context.Context, team, secret string) error {
	if team == "" {
		return errors.New("gateway team name is required")
	}
	data, err := exchange.EncodeIntent(exchange.Login{Team: team, Secret: secret})
	if err != nil {
		return err
	}
	return c.send(ctx, data)
}

// Send transmits the cycle's intents in the order the engine emitted them.
// A failed send leaves that order's state unknown; the error is surfaced so
// the session can reconcile by cancelling rather than resubmitting blindly.
func (c *Client) Send(ctx context.Context, intents []exchange.Intent) error {
	for _, intent := range intents {
		data, err := exchange.EncodeIntent(intent)
		if err != nil {
			return err
		}
		if ins, ok := intent.(exchange.Insert); ok {
			// Inserts are journaled first and never retried: a failed write
			// leaves the order state unknown, and resubmitting blindly risks
			// duplicate exposure. Cancels and amends are idempotent.
			c.journalInsert(ctx, ins.OrderID)
			if err := c.transport.Send(ctx, data); err != nil {
				return fmt.Errorf("send insert: %w", err)
			}
			continue
		}
		if err := c.send(ctx, data); err != nil {
			return fmt.Errorf("send intent: %w", err)
		}
	}
	return nil
}

// MarkTerminal clears the journal entry once an order reached a terminal
// lifecycle status.
func (c *Client) MarkTerminal(ctx context.Context, orderID uint64) {
	c.mu.Lock()
	delete(c.live, orderID)
	c.mu.Unlock()
	if c.store == nil {
		return
	}
	if err := c.store.Delete(ctx, liveOrderKey(orderID)); err != nil {
		c.log.Warn("failed to clear order journal entry", zap.Uint64("order_id", orderID), zap.Error(err))
	}
}

// OutstandingOrders returns journaled order ids from a previous session that
// never reached a terminal status. The session cancels them at startup so a
// crashed run leaves nothing resting.
func (c *Client) OutstandingOrders(ctx context.Context) ([]uint64, error) {
	if c.store == nil {
		return nil, nil
	}
	keys, err := c.store.Keys(ctx, liveOrderKeyPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(keys))
	for _, key := range keys {
		raw := strings.TrimPrefix(key, liveOrderKeyPrefix)
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.log.Warn("skipping malformed order journal key", zap.String("key", key))
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *Client) journalInsert(ctx context.Context, orderID uint64) {
	c.mu.Lock()
	c.live[orderID] = struct{}{}
	c.mu.Unlock()
	if c.store == nil {
		return
	}
	if err := c.store.Set(ctx, liveOrderKey(orderID), timestampMS()); err != nil {
		c.log.Warn("failed to journal order id", zap.Uint64("order_id", orderID), zap.Error(err))
	}
}

func (c *Client) send(ctx context.Context, data []byte) error {
	backoff := 200 * time.Millisecond
	for attempt := 0; attempt < 3; attempt++ {
		err := c.transport.Send(ctx, data)
		if err == nil {
			return nil
		}
		if attempt == 2 {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

func liveOrderKey(orderID uint64) string {
	return liveOrderKeyPrefix + strconv.FormatUint(orderID, 10)
}

func timestampMS() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}
