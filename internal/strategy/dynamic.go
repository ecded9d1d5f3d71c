package strategy

import "math"

// DynamicConfig tunes the dynamic-spread variant, which quotes off the ETF's
// own book without a cross-instrument regression.
type DynamicConfig struct {
	Quote QuoteConfig
	// BaseSpreadFrac is the half-spread floor.
	BaseSpreadFrac float64
	// VolGain widens the spread per unit of realized return volatility.
	VolGain float64
	// ImbalanceGain shifts the reference price toward the heavy book side.
	ImbalanceGain float64
	// PositionFactorMax and PositionSensitivity shape the widening of the
	// accumulating side: factor = 1 + (max-1) * (|pos|/limit)^sensitivity.
	PositionFactorMax   float64
	PositionSensitivity float64
	// OrderThresholdFrac is the inventory fraction beyond which the
	// accumulating side is widened by the position factor.
	OrderThresholdFrac float64
	// RebalanceFrac is the inventory fraction beyond which the reducing
	// quote is pulled halfway into the spread to force a fill.
	RebalanceFrac float64
}

type DynamicSpreadPolicy struct {
	cfg DynamicConfig
}

func NewDynamicSpreadPolicy(cfg DynamicConfig) *DynamicSpreadPolicy {
	return &DynamicSpreadPolicy{cfg: cfg}
}

func (p *DynamicSpreadPolicy) positionFactor(position, limit int64) float64 {
	if limit <= 0 || p.cfg.PositionFactorMax <= 1 {
		return 1
	}
	frac := float64(abs64(position)) / float64(limit)
	return 1 + (p.cfg.PositionFactorMax-1)*math.Pow(frac, p.cfg.PositionSensitivity)
}

func (p *DynamicSpreadPolicy) Quotes(snap Snapshot, liveBid, liveAsk *SideQuote) Decision {
	if !snap.EtfMidOK || snap.EtfMid <= 0 {
		return withdrawAll(liveBid, liveAsk)
	}
	spread := p.cfg.BaseSpreadFrac + p.cfg.VolGain*snap.Volatility
	ref := snap.EtfMid * (1 + p.cfg.ImbalanceGain*snap.Imbalance*spread)

	bidFrac := spread
	askFrac := spread
	var posFrac float64
	if snap.PositionLimit > 0 {
		posFrac = float64(snap.Position) / float64(snap.PositionLimit)
	}
	if math.Abs(posFrac) > p.cfg.OrderThresholdFrac {
		factor := p.positionFactor(snap.Position, snap.PositionLimit)
		if snap.Position > 0 {
			bidFrac *= factor
		} else {
			askFrac *= factor
		}
	}

	bidPx := ref * (1 - bidFrac)
	askPx := ref * (1 + askFrac)
	if p.cfg.RebalanceFrac > 0 {
		if posFrac >= p.cfg.RebalanceFrac {
			askPx -= (askPx - bidPx) / 2
		} else if posFrac <= -p.cfg.RebalanceFrac {
			bidPx += (askPx - bidPx) / 2
		}
	}
	bidPx, askPx = applySkew(bidPx, askPx, snap.Position, snap.PositionLimit, p.cfg.Quote.SkewGain)
	return finishDecision(p.cfg.Quote, snap, liveBid, liveAsk, bidPx, askPx)
}
