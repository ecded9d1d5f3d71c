package strategy

import "testing"

func TestAlignDownAndUp(t *testing.T) {
	if got := alignDown(10050.7, 100); got != 10000 {
		t.Fatalf("expected 10000, got %d", got)
	}
	if got := alignUp(10050.2, 100); got != 10100 {
		t.Fatalf("expected 10100, got %d", got)
	}
	if got := alignUp(10100, 100); got != 10100 {
		t.Fatalf("expected exact price unchanged, got %d", got)
	}
	if got := alignDown(-50, 100); got != 0 {
		t.Fatalf("expected negative clamped to 0, got %d", got)
	}
}

func TestApplySkewShiftsAgainstPosition(t *testing.T) {
	// Long position shifts both prices down.
	bid, ask := applySkew(9900, 10100, 50, 100, 1.0)
	if bid >= 9900 || ask >= 10100 {
		t.Fatalf("expected downward shift for long position, got bid %v ask %v", bid, ask)
	}
	if ask-bid != 200 {
		t.Fatalf("expected spread preserved, got %v", ask-bid)
	}
	// Short position shifts both up.
	bid, ask = applySkew(9900, 10100, -50, 100, 1.0)
	if bid <= 9900 || ask <= 10100 {
		t.Fatalf("expected upward shift for short position, got bid %v ask %v", bid, ask)
	}
	// Flat position leaves prices alone.
	bid, ask = applySkew(9900, 10100, 0, 100, 1.0)
	if bid != 9900 || ask != 10100 {
		t.Fatalf("expected no shift when flat, got bid %v ask %v", bid, ask)
	}
}

func TestSideDecisionKeepBelowRepriceThreshold(t *testing.T) {
	live := &SideQuote{Price: 10000, Volume: 10}
	dec := sideDecision(live, 10050, 10, 2, 100)
	if dec.Action != ActionKeep {
		t.Fatalf("expected KEEP below 2-tick threshold, got %v", dec.Action)
	}
	dec = sideDecision(live, 10200, 10, 2, 100)
	if dec.Action != ActionReplace || dec.Price != 10200 {
		t.Fatalf("expected REPLACE at 2-tick drift, got %+v", dec)
	}
}

func TestSideDecisionAmendsShrinkInPlace(t *testing.T) {
	live := &SideQuote{Price: 10000, Volume: 10}
	dec := sideDecision(live, 10000, 6, 1, 100)
	if dec.Action != ActionAmend || dec.Volume != 6 {
		t.Fatalf("expected AMEND to 6, got %+v", dec)
	}
	// Growing at the same price keeps the resting order; queue priority is
	// worth more than the extra size.
	dec = sideDecision(live, 10000, 20, 1, 100)
	if dec.Action != ActionKeep {
		t.Fatalf("expected KEEP when target volume grows, got %+v", dec)
	}
}

func TestSideDecisionWithdrawsOnNoTarget(t *testing.T) {
	live := &SideQuote{Price: 10000, Volume: 10}
	if dec := sideDecision(live, 0, 10, 1, 100); dec.Action != ActionWithdraw {
		t.Fatalf("expected WITHDRAW for zero price, got %v", dec.Action)
	}
	if dec := sideDecision(live, 10000, 0, 1, 100); dec.Action != ActionWithdraw {
		t.Fatalf("expected WITHDRAW for zero volume, got %v", dec.Action)
	}
	if dec := sideDecision(nil, 0, 0, 1, 100); dec.Action != ActionNone {
		t.Fatalf("expected NONE with nothing live, got %v", dec.Action)
	}
}

func TestClampVolume(t *testing.T) {
	if got := clampVolume(10, 100, 0); got != 10 {
		t.Fatalf("expected lot size 10, got %d", got)
	}
	if got := clampVolume(10, 4, 0); got != 4 {
		t.Fatalf("expected shrink to headroom 4, got %d", got)
	}
	if got := clampVolume(10, 0, 0); got != 0 {
		t.Fatalf("expected 0 for no headroom, got %d", got)
	}
	if got := clampVolume(0, 100, 25); got != 25 {
		t.Fatalf("expected shrink to order cap 25, got %d", got)
	}
	if got := clampVolume(10, 100, 25); got != 10 {
		t.Fatalf("expected lot 10 under cap 25, got %d", got)
	}
}

func TestFinishDecisionShrinksToOrderCap(t *testing.T) {
	// Headroom above the per-order cap must shrink the quote, not suppress
	// the side entirely.
	cfg := QuoteConfig{TickSize: 100, LotSize: 0, MinRepriceTicks: 1, MaxOrderSize: 30}
	snap := Snapshot{BidHeadroom: 200, AskHeadroom: 200}
	dec := finishDecision(cfg, snap, nil, nil, 9900, 10100)
	if dec.Bid.Action != ActionPlace || dec.Bid.Volume != 30 {
		t.Fatalf("expected bid placed at cap 30, got %+v", dec.Bid)
	}
	if dec.Ask.Action != ActionPlace || dec.Ask.Volume != 30 {
		t.Fatalf("expected ask placed at cap 30, got %+v", dec.Ask)
	}
}

func TestFinishDecisionClampsOwnCross(t *testing.T) {
	cfg := QuoteConfig{TickSize: 100, LotSize: 10, MinRepriceTicks: 1}
	snap := Snapshot{BidHeadroom: 10, AskHeadroom: 10}
	dec := finishDecision(cfg, snap, nil, nil, 10000, 10000)
	if dec.Bid.Price >= dec.Ask.Price {
		t.Fatalf("expected own quotes uncrossed, got bid %d ask %d", dec.Bid.Price, dec.Ask.Price)
	}
}

func TestFinishDecisionStaysPassive(t *testing.T) {
	cfg := QuoteConfig{TickSize: 100, LotSize: 10, MinRepriceTicks: 1}
	snap := Snapshot{
		EtfBestBid: 9900, HasBestBid: true,
		EtfBestAsk: 10100, HasBestAsk: true,
		BidHeadroom: 10, AskHeadroom: 10,
	}
	dec := finishDecision(cfg, snap, nil, nil, 10300, 9800)
	if dec.Bid.Price >= snap.EtfBestAsk {
		t.Fatalf("expected bid below best ask, got %d", dec.Bid.Price)
	}
	if dec.Ask.Price <= snap.EtfBestBid {
		t.Fatalf("expected ask above best bid, got %d", dec.Ask.Price)
	}
}
