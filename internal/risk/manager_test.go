package risk

import (
	"testing"

	"go.uber.org/zap"

	"rtg-maker-bot/internal/exchange"
)

func newTestManager() *Manager {
	return NewManager(Limits{
		MaxPosition: map[exchange.Instrument]int64{
			exchange.InstrumentETF:    100,
			exchange.InstrumentFuture: 100,
		},
		MaxOrders:        8,
		MaxOrdersPerSide: 4,
		MaxOrderSize:     50,
	}, zap.NewNop())
}

func TestHeadroomProjectsOpenExposure(t *testing.T) {
	m := newTestManager()
	if got := m.Headroom(exchange.InstrumentETF, exchange.SideBuy); got != 100 {
		t.Fatalf("expected headroom 100, got %d", got)
	}
	m.ReserveOpen(exchange.InstrumentETF, exchange.SideBuy, 30)
	if got := m.Headroom(exchange.InstrumentETF, exchange.SideBuy); got != 70 {
		t.Fatalf("expected headroom 70 with 30 open, got %d", got)
	}
	// The sell side is unaffected by buy-side exposure.
	if got := m.Headroom(exchange.InstrumentETF, exchange.SideSell); got != 100 {
		t.Fatalf("expected sell headroom 100, got %d", got)
	}
}

func TestHeadroomAfterFills(t *testing.T) {
	m := newTestManager()
	m.ApplyFill(1, exchange.InstrumentETF, exchange.SideBuy, 60, 10000)
	if got := m.Headroom(exchange.InstrumentETF, exchange.SideBuy); got != 40 {
		t.Fatalf("expected buy headroom 40 at position 60, got %d", got)
	}
	if got := m.Headroom(exchange.InstrumentETF, exchange.SideSell); got != 160 {
		t.Fatalf("expected sell headroom 160 at position 60, got %d", got)
	}
}

func TestCanInsertDeniesBeyondLimit(t *testing.T) {
	m := newTestManager()
	m.ApplyFill(1, exchange.InstrumentETF, exchange.SideBuy, 80, 10000)
	if m.CanInsert(exchange.InstrumentETF, exchange.SideBuy, 30) {
		t.Fatalf("expected denial: projected position 110 exceeds limit 100")
	}
	if !m.CanInsert(exchange.InstrumentETF, exchange.SideBuy, 20) {
		t.Fatalf("expected approval: projected position exactly at limit")
	}
}

func TestCanInsertDeniesOversizedOrder(t *testing.T) {
	m := newTestManager()
	if m.CanInsert(exchange.InstrumentETF, exchange.SideBuy, 51) {
		t.Fatalf("expected denial above max order size")
	}
	if m.CanInsert(exchange.InstrumentETF, exchange.SideBuy, 0) {
		t.Fatalf("expected denial for zero size")
	}
}

func TestCanInsertDeniesBeyondPerSideCount(t *testing.T) {
	m := newTestManager()
	for i := 0; i < 4; i++ {
		m.ReserveOpen(exchange.InstrumentETF, exchange.SideBuy, 5)
	}
	if m.CanInsert(exchange.InstrumentETF, exchange.SideBuy, 5) {
		t.Fatalf("expected denial at per-side order cap")
	}
	if !m.CanInsert(exchange.InstrumentETF, exchange.SideSell, 5) {
		t.Fatalf("expected other side unaffected by cap")
	}
}

func TestReleaseOpenReturnsHeadroom(t *testing.T) {
	m := newTestManager()
	m.ReserveOpen(exchange.InstrumentETF, exchange.SideBuy, 40)
	m.ReleaseOpen(exchange.InstrumentETF, exchange.SideBuy, 40, true)
	if got := m.Headroom(exchange.InstrumentETF, exchange.SideBuy); got != 100 {
		t.Fatalf("expected full headroom after release, got %d", got)
	}
	if got := m.OpenOrderCount(exchange.InstrumentETF, exchange.SideBuy); got != 0 {
		t.Fatalf("expected zero open orders after terminal release, got %d", got)
	}
}

func TestDuplicateFillIgnored(t *testing.T) {
	m := newTestManager()
	if !m.ApplyFill(7, exchange.InstrumentETF, exchange.SideBuy, 10, 10000) {
		t.Fatalf("expected first fill applied")
	}
	if m.ApplyFill(7, exchange.InstrumentETF, exchange.SideBuy, 10, 10000) {
		t.Fatalf("expected duplicate fill rejected")
	}
	if got := m.Position(exchange.InstrumentETF); got != 10 {
		t.Fatalf("expected position 10 after duplicate ignored, got %d", got)
	}
}

func TestPositionNeverExceedsLimitUnderConfirmedFlow(t *testing.T) {
	m := newTestManager()
	limit := m.Limits().MaxPosition[exchange.InstrumentETF]
	var fillID uint64
	// Reserve-then-fill in max-size chunks until denied; the invariant is
	// that honoring CanInsert keeps |position| within the limit.
	for i := 0; i < 20; i++ {
		size := int64(50)
		if !m.CanInsert(exchange.InstrumentETF, exchange.SideBuy, size) {
			size = m.Headroom(exchange.InstrumentETF, exchange.SideBuy)
			if size == 0 {
				break
			}
		}
		m.ReserveOpen(exchange.InstrumentETF, exchange.SideBuy, size)
		fillID++
		m.ApplyFill(fillID, exchange.InstrumentETF, exchange.SideBuy, size, 10000)
		m.ReleaseOpen(exchange.InstrumentETF, exchange.SideBuy, size, true)
	}
	if pos := m.Position(exchange.InstrumentETF); pos > limit {
		t.Fatalf("position %d exceeded limit %d", pos, limit)
	}
}

func TestCostBasisVWAPAndFlip(t *testing.T) {
	m := newTestManager()
	m.ApplyFill(1, exchange.InstrumentETF, exchange.SideBuy, 10, 10000)
	m.ApplyFill(2, exchange.InstrumentETF, exchange.SideBuy, 10, 10200)
	if got := m.CostBasis(exchange.InstrumentETF); got != 10100 {
		t.Fatalf("expected VWAP basis 10100, got %v", got)
	}
	// Reduction keeps the basis.
	m.ApplyFill(3, exchange.InstrumentETF, exchange.SideSell, 5, 10500)
	if got := m.CostBasis(exchange.InstrumentETF); got != 10100 {
		t.Fatalf("expected basis kept on reduce, got %v", got)
	}
	// Flip through zero restarts at the fill price.
	m.ApplyFill(4, exchange.InstrumentETF, exchange.SideSell, 25, 9900)
	if got := m.Position(exchange.InstrumentETF); got != -10 {
		t.Fatalf("expected position -10 after flip, got %d", got)
	}
	if got := m.CostBasis(exchange.InstrumentETF); got != 9900 {
		t.Fatalf("expected basis reset to 9900 on flip, got %v", got)
	}
	// Back to flat zeroes the basis.
	m.ApplyFill(5, exchange.InstrumentETF, exchange.SideBuy, 10, 9800)
	if got := m.CostBasis(exchange.InstrumentETF); got != 0 {
		t.Fatalf("expected zero basis when flat, got %v", got)
	}
}

func TestUnrealizedPnL(t *testing.T) {
	m := newTestManager()
	m.ApplyFill(1, exchange.InstrumentETF, exchange.SideBuy, 10, 10000)
	if got := m.UnrealizedPnL(exchange.InstrumentETF, 10050); got != 500 {
		t.Fatalf("expected +500 unrealized, got %v", got)
	}
	if got := m.UnrealizedPnL(exchange.InstrumentETF, 9900); got != -1000 {
		t.Fatalf("expected -1000 unrealized, got %v", got)
	}
	if got := m.UnrealizedPnL(exchange.InstrumentFuture, 10000); got != 0 {
		t.Fatalf("expected zero unrealized when flat, got %v", got)
	}
}

func TestSeenFillSetBounded(t *testing.T) {
	m := newTestManager()
	m.seenCap = 4
	for id := uint64(1); id <= 6; id++ {
		// Alternate sides so the position stays inside the limit.
		side := exchange.SideBuy
		if id%2 == 0 {
			side = exchange.SideSell
		}
		m.ApplyFill(id, exchange.InstrumentETF, side, 1, 10000)
	}
	if len(m.seenFills) != 4 {
		t.Fatalf("expected seen set capped at 4, got %d", len(m.seenFills))
	}
	// The evicted id is accepted again; the bounded set trades perfect
	// dedup of ancient retransmissions for bounded memory.
	if !m.ApplyFill(1, exchange.InstrumentETF, exchange.SideBuy, 1, 10000) {
		t.Fatalf("expected evicted fill id accepted")
	}
}
