package engine

import (
	"rtg-maker-bot/internal/exchange"
)

// Order is one entry in the live order table, keyed by the id this agent
// assigned. Entries are removed once a terminal lifecycle event arrives.
type Order struct {
	ID         uint64
	Instrument exchange.Instrument
	Side       exchange.Side
	Price      int64
	Remaining  int64
	Status     exchange.OrderStatus
	Hedge      bool
	CreatedMS  int64
}

type OrderTable struct {
	orders map[uint64]*Order
	nextID uint64
}

func NewOrderTable() *OrderTable {
	return &OrderTable{orders: make(map[uint64]*Order), nextID: 1}
}

func (t *OrderTable) NextID() uint64 {
	id := t.nextID
	t.nextID++
	return id
}

func (t *OrderTable) Add(o *Order) {
	t.orders[o.ID] = o
}

func (t *OrderTable) Get(id uint64) (*Order, bool) {
	o, ok := t.orders[id]
	return o, ok
}

func (t *OrderTable) Remove(id uint64) {
	delete(t.orders, id)
}

// LiveQuote returns the resting (non-hedge, not cancel-pending) quote on one
// side. During a replace sequence more than one may transiently exist; the
// newest is authoritative.
func (t *OrderTable) LiveQuote(instrument exchange.Instrument, side exchange.Side) *Order {
	var best *Order
	for _, o := range t.orders {
		if o.Hedge || o.Instrument != instrument || o.Side != side {
			continue
		}
		if o.Status == exchange.StatusCancelPending || o.Status.Terminal() {
			continue
		}
		if best == nil || o.ID > best.ID {
			best = o
		}
	}
	return best
}

// PendingHedgeVolume is the signed Future volume of in-flight hedge orders,
// counted so a hedge is not doubled while its fill is still in transit.
func (t *OrderTable) PendingHedgeVolume() int64 {
	var total int64
	for _, o := range t.orders {
		if !o.Hedge || o.Status.Terminal() {
			continue
		}
		if o.Side == exchange.SideBuy {
			total += o.Remaining
		} else {
			total -= o.Remaining
		}
	}
	return total
}

// Live returns all non-terminal orders; the session cancels them at
// teardown.
func (t *OrderTable) Live() []*Order {
	out := make([]*Order, 0, len(t.orders))
	for _, o := range t.orders {
		if !o.Status.Terminal() {
			out = append(out, o)
		}
	}
	return out
}

func (t *OrderTable) Len() int {
	return len(t.orders)
}
