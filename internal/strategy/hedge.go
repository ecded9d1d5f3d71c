package strategy

import (
	"math"
	"time"

	"rtg-maker-bot/internal/exchange"
)

// HedgeConfig tunes the "hedge as late as possible" policy. Every rebalance
// crosses the Future spread, so the deficit is allowed to ride until one of
// the triggers fires.
type HedgeConfig struct {
	// DeficitFrac is the deficit, as a fraction of the ETF position limit,
	// beyond which a hedge fires immediately.
	DeficitFrac float64
	// MaxMtmLoss is the unrealized loss (currency units, positive number) on
	// the unhedged inventory beyond which a hedge fires regardless of size.
	MaxMtmLoss float64
	// MaxAge bounds how long any nonzero deficit may ride, covering
	// sub-threshold residue carried forward from a capped hedge.
	MaxAge time.Duration
	// SlipTicks is how far through the opposing side the marketable limit
	// price reaches.
	SlipTicks int64
	TickSize  int64
	// OneToOne forces a 1:1 hedge ratio (dynamic-spread variant); otherwise
	// the regression beta is used when available.
	OneToOne bool
}

// HedgeOrder is a marketable Future order. It crosses the spread: the point
// is risk reduction, not earning the spread.
type HedgeOrder struct {
	Side     exchange.Side
	Price    int64
	Volume   int64
	Lifespan exchange.Lifespan
}

type HedgeInputs struct {
	EtfPosition    int64
	FuturePosition int64
	PositionLimit  int64
	Beta           float64
	BetaOK         bool

	FutureBestBid int64
	FutureBestAsk int64
	HasBestBid    bool
	HasBestAsk    bool

	// UnrealizedPnL marks the ETF inventory against its mid; losses are
	// negative.
	UnrealizedPnL float64

	// BuyHeadroom/SellHeadroom are the Future-side risk limits; a hedge is
	// capped to them and the residual deficit carries forward.
	BuyHeadroom  int64
	SellHeadroom int64

	Now time.Time
}

type HedgePolicy struct {
	cfg         HedgeConfig
	firstBreach time.Time
}

func NewHedgePolicy(cfg HedgeConfig) *HedgePolicy {
	return &HedgePolicy{cfg: cfg}
}

// Deficit is the Future volume still needed to neutralize the ETF inventory:
// target Future position minus actual. Positive means buy Futures.
func (p *HedgePolicy) Deficit(in HedgeInputs) int64 {
	beta := 1.0
	if !p.cfg.OneToOne && in.BetaOK && in.Beta > 0 {
		beta = in.Beta
	}
	target := int64(math.Round(-beta * float64(in.EtfPosition)))
	return target - in.FuturePosition
}

// Decide returns the hedge order to send this cycle, or nil. At most one
// order is emitted per call; a capped hedge leaves the residual deficit to
// be retried on the next trigger.
func (p *HedgePolicy) Decide(in HedgeInputs) *HedgeOrder {
	deficit := p.Deficit(in)
	if deficit == 0 {
		p.firstBreach = time.Time{}
		return nil
	}
	if p.firstBreach.IsZero() {
		p.firstBreach = in.Now
	}

	threshold := int64(math.Round(p.cfg.DeficitFrac * float64(in.PositionLimit)))
	if threshold < 1 {
		threshold = 1
	}
	triggered := abs64(deficit) >= threshold
	if !triggered && p.cfg.MaxMtmLoss > 0 && in.UnrealizedPnL <= -p.cfg.MaxMtmLoss {
		triggered = true
	}
	if !triggered && p.cfg.MaxAge > 0 && in.Now.Sub(p.firstBreach) >= p.cfg.MaxAge {
		triggered = true
	}
	if !triggered {
		return nil
	}

	tick := p.cfg.TickSize
	if tick <= 0 {
		tick = 1
	}
	var order HedgeOrder
	if deficit > 0 {
		if !in.HasBestAsk {
			return nil
		}
		volume := min64(deficit, in.BuyHeadroom)
		if volume <= 0 {
			return nil
		}
		order = HedgeOrder{
			Side:     exchange.SideBuy,
			Price:    in.FutureBestAsk + p.cfg.SlipTicks*tick,
			Volume:   volume,
			Lifespan: exchange.LifespanImmediateOrCancel,
		}
	} else {
		if !in.HasBestBid {
			return nil
		}
		volume := min64(-deficit, in.SellHeadroom)
		if volume <= 0 {
			return nil
		}
		price := in.FutureBestBid - p.cfg.SlipTicks*tick
		if price < tick {
			price = tick
		}
		order = HedgeOrder{
			Side:     exchange.SideSell,
			Price:    price,
			Volume:   volume,
			Lifespan: exchange.LifespanImmediateOrCancel,
		}
	}
	p.firstBreach = time.Time{}
	return &order
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
