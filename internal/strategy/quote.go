package strategy

import "math"

// QuoteConfig is shared by both policy variants.
type QuoteConfig struct {
	// TickSize in cents; all quoted prices are aligned to it.
	TickSize int64
	// LotSize is the preferred quote size before headroom shrinking.
	LotSize int64
	// SkewGain scales the inventory price shift: both quotes move against the
	// sign of the position by SkewGain * (position/limit) * half-spread.
	SkewGain float64
	// MinRepriceTicks is the minimum drift, in ticks, before a resting quote
	// is cancelled and replaced. Guards rate-limited actions against churn.
	MinRepriceTicks int64
	// MaxOrderSize caps a single quote's volume. Zero means uncapped.
	MaxOrderSize int64
}

func alignDown(price float64, tick int64) int64 {
	if tick <= 0 {
		tick = 1
	}
	p := int64(math.Floor(price))
	aligned := p / tick * tick
	if aligned < 0 {
		return 0
	}
	return aligned
}

func alignUp(price float64, tick int64) int64 {
	if tick <= 0 {
		tick = 1
	}
	p := int64(math.Ceil(price))
	aligned := p / tick * tick
	if aligned < p {
		aligned += tick
	}
	if aligned < 0 {
		return 0
	}
	return aligned
}

// applySkew shifts both raw prices against the position sign. A long book
// lowers both its bid and its ask, discouraging further buys and encouraging
// sells; the inventory self-corrects through price rather than through
// immediate hedging.
func applySkew(bidPx, askPx float64, position, limit int64, gain float64) (float64, float64) {
	if limit <= 0 || position == 0 || gain <= 0 {
		return bidPx, askPx
	}
	half := (askPx - bidPx) / 2
	if half <= 0 {
		return bidPx, askPx
	}
	shift := gain * (float64(position) / float64(limit)) * half
	return bidPx - shift, askPx - shift
}

// finishDecision turns raw target prices into per-side actions: tick
// alignment, own-cross and market-cross clamping, headroom sizing, and the
// reprice threshold against the live quote.
func finishDecision(cfg QuoteConfig, snap Snapshot, liveBid, liveAsk *SideQuote, bidRaw, askRaw float64) Decision {
	tick := cfg.TickSize
	if tick <= 0 {
		tick = 1
	}
	bidPx := alignDown(bidRaw, tick)
	askPx := alignUp(askRaw, tick)

	// Never let our own bid meet our own ask.
	if bidPx > 0 && askPx > 0 && bidPx >= askPx {
		askPx = bidPx + tick
	}
	// Stay passive: do not cross the opposing book side.
	if snap.HasBestAsk && bidPx >= snap.EtfBestAsk {
		bidPx = snap.EtfBestAsk - tick
	}
	if snap.HasBestBid && askPx <= snap.EtfBestBid {
		askPx = snap.EtfBestBid + tick
	}

	bidVol := clampVolume(cfg.LotSize, snap.BidHeadroom, cfg.MaxOrderSize)
	askVol := clampVolume(cfg.LotSize, snap.AskHeadroom, cfg.MaxOrderSize)

	return Decision{
		Bid: sideDecision(liveBid, bidPx, bidVol, cfg.MinRepriceTicks, tick),
		Ask: sideDecision(liveAsk, askPx, askVol, cfg.MinRepriceTicks, tick),
	}
}

// clampVolume shrinks a quote to whatever fits: the preferred lot, the
// remaining position headroom, and the per-order size cap. Shrinking keeps
// the side quoted where an oversized order would be rejected outright.
func clampVolume(lot, headroom, maxSize int64) int64 {
	if headroom <= 0 {
		return 0
	}
	v := headroom
	if lot > 0 && lot < v {
		v = lot
	}
	if maxSize > 0 && maxSize < v {
		v = maxSize
	}
	return v
}

func sideDecision(live *SideQuote, price, volume int64, minRepriceTicks, tick int64) SideDecision {
	if price <= 0 || volume <= 0 {
		if live != nil {
			return SideDecision{Action: ActionWithdraw}
		}
		return SideDecision{Action: ActionNone}
	}
	if live == nil {
		return SideDecision{Action: ActionPlace, Price: price, Volume: volume}
	}
	drift := abs64(price - live.Price)
	if drift >= minRepriceTicks*tick && drift > 0 {
		return SideDecision{Action: ActionReplace, Price: price, Volume: volume}
	}
	// Same price level: shrink in place rather than losing queue priority.
	if volume < live.Volume {
		return SideDecision{Action: ActionAmend, Price: live.Price, Volume: volume}
	}
	return SideDecision{Action: ActionKeep, Price: live.Price, Volume: live.Volume}
}

func withdrawAll(liveBid, liveAsk *SideQuote) Decision {
	var d Decision
	d.Bid = SideDecision{Action: ActionNone}
	d.Ask = SideDecision{Action: ActionNone}
	if liveBid != nil {
		d.Bid.Action = ActionWithdraw
	}
	if liveAsk != nil {
		d.Ask.Action = ActionWithdraw
	}
	return d
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
