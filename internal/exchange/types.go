package exchange

// Instrument identifies one of the two tradable books. The numeric values
// match the exchange feed encoding.
type Instrument int

const (
	InstrumentFuture Instrument = 0
	InstrumentETF    Instrument = 1
)

func (i Instrument) String() string {
	switch i {
	case InstrumentFuture:
		return "FUTURE"
	case InstrumentETF:
		return "ETF"
	}
	return "UNKNOWN"
}

type Side int

const (
	SideSell Side = 0
	SideBuy  Side = 1
)

func (s Side) String() string {
	if s == SideBuy {
		return "BUY"
	}
	return "SELL"
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Lifespan is the exchange-side time in force.
type Lifespan int

const (
	LifespanImmediateOrCancel Lifespan = 0
	LifespanGoodForDay        Lifespan = 1
)

type OrderStatus string

const (
	StatusPending         OrderStatus = "PENDING"
	StatusLive            OrderStatus = "LIVE"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusCancelPending   OrderStatus = "CANCEL_PENDING"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusRejected        OrderStatus = "REJECTED"
)

// Terminal reports whether no further lifecycle events are expected.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusCancelled, StatusFilled, StatusRejected:
		return true
	}
	return false
}

// PriceLevel is one aggregated depth level. Prices are integer cents,
// volumes integer lots, as on the wire.
type PriceLevel struct {
	Price  int64 `json:"price" msgpack:"p"`
	Volume int64 `json:"volume" msgpack:"v"`
}

// Event is one inbound feed message, delivered in exchange sequence order.
type Event interface{ isEvent() }

type BookUpdate struct {
	Instrument Instrument   `json:"instrument" msgpack:"i"`
	Sequence   uint64       `json:"sequence" msgpack:"s"`
	Bids       []PriceLevel `json:"bids" msgpack:"b"`
	Asks       []PriceLevel `json:"asks" msgpack:"a"`
	TimeMS     int64        `json:"time_ms" msgpack:"t"`
}

type TradeTick struct {
	Instrument Instrument `json:"instrument" msgpack:"i"`
	Sequence   uint64     `json:"sequence" msgpack:"s"`
	Price      int64      `json:"price" msgpack:"p"`
	Volume     int64      `json:"volume" msgpack:"v"`
	TimeMS     int64      `json:"time_ms" msgpack:"t"`
}

// OrderAck confirms an insert reached the book. The id is the one this
// agent assigned, never an exchange-side id.
type OrderAck struct {
	OrderID uint64 `json:"order_id" msgpack:"o"`
}

type OrderReject struct {
	OrderID uint64 `json:"order_id" msgpack:"o"`
	Reason  string `json:"reason" msgpack:"r"`
}

type OrderCancelled struct {
	OrderID   uint64 `json:"order_id" msgpack:"o"`
	Remaining int64  `json:"remaining" msgpack:"q"`
}

// Fill reports an execution against one of our orders. FillID is the
// exchange execution sequence and is the idempotency key: retransmitted
// fills carry the same FillID.
type Fill struct {
	FillID     uint64     `json:"fill_id" msgpack:"f"`
	OrderID    uint64     `json:"order_id" msgpack:"o"`
	Instrument Instrument `json:"instrument" msgpack:"i"`
	Side       Side       `json:"side" msgpack:"d"`
	Price      int64      `json:"price" msgpack:"p"`
	Volume     int64      `json:"volume" msgpack:"v"`
	TimeMS     int64      `json:"time_ms" msgpack:"t"`
}

// Timer is injected by the session runner, not the exchange; it drives the
// periodic hedge check through the same single-writer loop.
type Timer struct {
	TimeMS int64 `json:"time_ms" msgpack:"t"`
}

func (BookUpdate) isEvent()     {}
func (TradeTick) isEvent()      {}
func (OrderAck) isEvent()       {}
func (OrderReject) isEvent()    {}
func (OrderCancelled) isEvent() {}
func (Fill) isEvent()           {}
func (Timer) isEvent()          {}

// Intent is one outbound order action. Price changes are always modeled as
// cancel plus insert; Amend only shrinks size.
type Intent interface{ isIntent() }

type Insert struct {
	OrderID    uint64     `json:"order_id" msgpack:"o"`
	Instrument Instrument `json:"instrument" msgpack:"i"`
	Side       Side       `json:"side" msgpack:"d"`
	Price      int64      `json:"price" msgpack:"p"`
	Volume     int64      `json:"volume" msgpack:"v"`
	Lifespan   Lifespan   `json:"lifespan" msgpack:"l"`
}

type Cancel struct {
	OrderID uint64 `json:"order_id" msgpack:"o"`
}

type Amend struct {
	OrderID   uint64 `json:"order_id" msgpack:"o"`
	NewVolume int64  `json:"new_volume" msgpack:"v"`
}

// Login authenticates the session before any order action is accepted.
type Login struct {
	Team   string `json:"team" msgpack:"n"`
	Secret string `json:"secret" msgpack:"k"`
}

func (Insert) isIntent() {}
func (Cancel) isIntent() {}
func (Amend) isIntent()  {}
func (Login) isIntent()  {}
