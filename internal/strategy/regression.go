package strategy

// RegressionConfig tunes the rolling-regression variant. Fractions are of
// the reference price (e.g. 0.001 = 10 bps half-spread).
type RegressionConfig struct {
	Quote QuoteConfig
	// BaseSpreadFrac is the half-spread when the estimator is confident and
	// the residual is unremarkable.
	BaseSpreadFrac float64
	// ConservativeSpreadFrac replaces the base on the side the residual
	// z-score flags as adverse.
	ConservativeSpreadFrac float64
	// VarianceGain widens both sides proportionally to residual std / price.
	VarianceGain float64
	// DegradedSpreadFrac is the half-spread used below the estimator's
	// minimum sample count, quoting around the ETF's own mid.
	DegradedSpreadFrac float64
}

// RegressionPolicy derives fair value from the cross-instrument regression
// and widens asymmetrically when the current residual sits more than one
// standard deviation from the fit.
type RegressionPolicy struct {
	cfg RegressionConfig
}

func NewRegressionPolicy(cfg RegressionConfig) *RegressionPolicy {
	return &RegressionPolicy{cfg: cfg}
}

func (p *RegressionPolicy) Quotes(snap Snapshot, liveBid, liveAsk *SideQuote) Decision {
	var ref, bidFrac, askFrac float64
	switch {
	case snap.FairValueOK && snap.FairValue > 0:
		ref = snap.FairValue
		bidFrac = p.cfg.BaseSpreadFrac
		askFrac = p.cfg.BaseSpreadFrac
		if snap.ResidualStd > 0 {
			widen := p.cfg.VarianceGain * snap.ResidualStd / ref
			bidFrac += widen
			askFrac += widen
			z := snap.Residual / snap.ResidualStd
			if z > 1 {
				askFrac = p.cfg.ConservativeSpreadFrac + widen
			} else if z < -1 {
				bidFrac = p.cfg.ConservativeSpreadFrac + widen
			}
		}
	case snap.EtfMidOK && snap.EtfMid > 0:
		// Insufficient regression samples: degraded-confidence mode around
		// the ETF's own mid with a widened spread, never a refusal to quote.
		ref = snap.EtfMid
		bidFrac = p.cfg.DegradedSpreadFrac
		askFrac = p.cfg.DegradedSpreadFrac
	default:
		return withdrawAll(liveBid, liveAsk)
	}

	bidPx := ref * (1 - bidFrac)
	askPx := ref * (1 + askFrac)
	bidPx, askPx = applySkew(bidPx, askPx, snap.Position, snap.PositionLimit, p.cfg.Quote.SkewGain)
	return finishDecision(p.cfg.Quote, snap, liveBid, liveAsk, bidPx, askPx)
}
