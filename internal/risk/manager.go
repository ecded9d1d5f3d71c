package risk

import (
	"go.uber.org/zap"

	"rtg-maker-bot/internal/exchange"
)

// Limits are immutable after session start.
type Limits struct {
	// MaxPosition bounds |position| per instrument, in lots.
	MaxPosition map[exchange.Instrument]int64
	// MaxOrders bounds total live orders across instruments.
	MaxOrders int
	// MaxOrdersPerSide bounds resting orders per instrument side.
	MaxOrdersPerSide int
	// MaxOrderSize bounds a single order, in lots.
	MaxOrderSize int64
}

type sideKey struct {
	instrument exchange.Instrument
	side       exchange.Side
}

// Manager owns Position: the single source of truth for inventory, mutated
// only on confirmed fills. It also tracks open-order exposure so that limit
// checks are on the projected position (current plus everything that could
// still fill), and deduplicates fills by their exchange execution id.
//
// It is driven exclusively from the event loop and carries no lock.
type Manager struct {
	limits Limits
	log    *zap.Logger

	position map[exchange.Instrument]int64
	// costBasis is the volume-weighted entry price of the current position,
	// used for the mark-to-market hedge trigger.
	costBasis map[exchange.Instrument]float64

	openExposure map[sideKey]int64
	openOrders   map[sideKey]int

	seenFills   map[uint64]struct{}
	seenHistory []uint64
	seenCap     int
}

func NewManager(limits Limits, log *zap.Logger) *Manager {
	if limits.MaxPosition == nil {
		limits.MaxPosition = make(map[exchange.Instrument]int64)
	}
	return &Manager{
		limits:       limits,
		log:          log,
		position:     make(map[exchange.Instrument]int64),
		costBasis:    make(map[exchange.Instrument]float64),
		openExposure: make(map[sideKey]int64),
		openOrders:   make(map[sideKey]int),
		seenFills:    make(map[uint64]struct{}),
		seenCap:      4096,
	}
}

func (m *Manager) Limits() Limits {
	return m.limits
}

func (m *Manager) Position(instrument exchange.Instrument) int64 {
	return m.position[instrument]
}

// CostBasis returns the VWAP entry price of the open position; zero when flat.
func (m *Manager) CostBasis(instrument exchange.Instrument) float64 {
	return m.costBasis[instrument]
}

// CanInsert reports whether an order of the given size keeps the projected
// position (position plus same-side open exposure plus this order) within
// the limit. Denied is a normal skip signal, not an error.
func (m *Manager) CanInsert(instrument exchange.Instrument, side exchange.Side, size int64) bool {
	if size <= 0 {
		return false
	}
	if m.limits.MaxOrderSize > 0 && size > m.limits.MaxOrderSize {
		return false
	}
	if m.limits.MaxOrders > 0 && m.totalOpenOrders() >= m.limits.MaxOrders {
		return false
	}
	if m.limits.MaxOrdersPerSide > 0 && m.openOrders[sideKey{instrument, side}] >= m.limits.MaxOrdersPerSide {
		return false
	}
	return size <= m.Headroom(instrument, side)
}

// Headroom is the largest additional order size on a side that keeps the
// projected position within the limit. Never negative.
func (m *Manager) Headroom(instrument exchange.Instrument, side exchange.Side) int64 {
	limit, ok := m.limits.MaxPosition[instrument]
	if !ok || limit <= 0 {
		return 0
	}
	pos := m.position[instrument]
	open := m.openExposure[sideKey{instrument, side}]
	var room int64
	if side == exchange.SideBuy {
		room = limit - pos - open
	} else {
		room = limit + pos - open
	}
	if room < 0 {
		return 0
	}
	return room
}

// ReserveOpen records an order as open exposure. Called when the intent is
// emitted, before any acknowledgement.
func (m *Manager) ReserveOpen(instrument exchange.Instrument, side exchange.Side, size int64) {
	key := sideKey{instrument, side}
	m.openExposure[key] += size
	m.openOrders[key]++
}

// ReleaseOpen returns exposure when an order shrinks or leaves the book.
// terminal additionally releases the order-count slot.
func (m *Manager) ReleaseOpen(instrument exchange.Instrument, side exchange.Side, size int64, terminal bool) {
	key := sideKey{instrument, side}
	m.openExposure[key] -= size
	if m.openExposure[key] < 0 {
		m.openExposure[key] = 0
	}
	if terminal {
		if m.openOrders[key]--; m.openOrders[key] < 0 {
			m.openOrders[key] = 0
		}
	}
}

func (m *Manager) totalOpenOrders() int {
	var total int
	for _, n := range m.openOrders {
		total += n
	}
	return total
}

// OpenOrderCount reports live orders on one instrument side.
func (m *Manager) OpenOrderCount(instrument exchange.Instrument, side exchange.Side) int {
	return m.openOrders[sideKey{instrument, side}]
}

// ApplyFill mutates the position for a confirmed execution. Duplicate
// deliveries (retransmission) are detected by fill id and ignored; the return
// value reports whether the fill was applied.
func (m *Manager) ApplyFill(fillID uint64, instrument exchange.Instrument, side exchange.Side, size int64, price int64) bool {
	if size <= 0 {
		return false
	}
	if _, dup := m.seenFills[fillID]; dup {
		m.log.Debug("duplicate fill ignored", zap.Uint64("fill_id", fillID))
		return false
	}
	m.seenFills[fillID] = struct{}{}
	m.seenHistory = append(m.seenHistory, fillID)
	if len(m.seenHistory) > m.seenCap {
		evict := m.seenHistory[:len(m.seenHistory)-m.seenCap]
		for _, id := range evict {
			delete(m.seenFills, id)
		}
		m.seenHistory = m.seenHistory[len(m.seenHistory)-m.seenCap:]
	}

	delta := size
	if side == exchange.SideSell {
		delta = -size
	}
	before := m.position[instrument]
	after := before + delta
	m.position[instrument] = after
	m.updateCostBasis(instrument, before, after, delta, float64(price))
	return true
}

func (m *Manager) updateCostBasis(instrument exchange.Instrument, before, after, delta int64, price float64) {
	switch {
	case after == 0:
		m.costBasis[instrument] = 0
	case before == 0 || (before > 0) != (after > 0):
		// Opened or flipped through zero: basis restarts at the fill price.
		m.costBasis[instrument] = price
	case (delta > 0) == (before > 0):
		// Same-direction add: volume-weighted average.
		prev := m.costBasis[instrument]
		total := abs64(before) + abs64(delta)
		m.costBasis[instrument] = (prev*float64(abs64(before)) + price*float64(abs64(delta))) / float64(total)
	}
	// Reductions that do not flip keep the existing basis.
}

// UnrealizedPnL marks the open position against mid. Negative is a loss.
func (m *Manager) UnrealizedPnL(instrument exchange.Instrument, mid float64) float64 {
	pos := m.position[instrument]
	if pos == 0 || mid <= 0 {
		return 0
	}
	return (mid - m.costBasis[instrument]) * float64(pos)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
