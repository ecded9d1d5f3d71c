package engine

import (
	"time"

	"go.uber.org/zap"

	"rtg-maker-bot/internal/estimator"
	"rtg-maker-bot/internal/exchange"
	"rtg-maker-bot/internal/market"
	"rtg-maker-bot/internal/metrics"
	"rtg-maker-bot/internal/risk"
	"rtg-maker-bot/internal/strategy"
)

// Budget gates outbound order actions against the exchange message rate
// limit. A denied action is skipped and re-evaluated on the next cycle.
type Budget interface {
	Allow() bool
}

type unlimitedBudget struct{}

func (unlimitedBudget) Allow() bool { return true }

// Config holds the engine's own knobs; the policies carry theirs.
type Config struct {
	// SampleInterval accepts every Nth book update into the regression
	// window (1 = every update).
	SampleInterval int
	// ImbalanceDepth is how many levels feed the book-imbalance measure.
	ImbalanceDepth int
	// QuoteTTLMS forces a refresh of a resting quote older than this many
	// milliseconds; zero disables.
	QuoteTTLMS int64
}

// Engine is the per-event orchestrator: market state update, estimator
// update, risk snapshot, quote and hedge decisions, intent emission. It is
// synchronous per event, so feed ordering is preserved as decision ordering,
// and none of the state it owns needs locking.
type Engine struct {
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Metrics

	market *market.State
	est    *estimator.Estimator
	vol    *estimator.VolWindow
	risk   *risk.Manager
	quote  strategy.QuotePolicy
	hedge  *strategy.HedgePolicy
	sm     *strategy.QuoteStateMachine
	orders *OrderTable
	budget Budget

	sampleTick int
	lastTimeMS int64
	clock      func() time.Time
}

func New(cfg Config, mkt *market.State, est *estimator.Estimator, vol *estimator.VolWindow,
	riskMgr *risk.Manager, quote strategy.QuotePolicy, hedge *strategy.HedgePolicy,
	budget Budget, m *metrics.Metrics, log *zap.Logger) *Engine {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 1
	}
	if cfg.ImbalanceDepth <= 0 {
		cfg.ImbalanceDepth = 3
	}
	if budget == nil {
		budget = unlimitedBudget{}
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Engine{
		cfg:     cfg,
		log:     log,
		metrics: m,
		market:  mkt,
		est:     est,
		vol:     vol,
		risk:    riskMgr,
		quote:   quote,
		hedge:   hedge,
		sm:      strategy.NewQuoteStateMachine(),
		orders:  NewOrderTable(),
		budget:  budget,
		clock:   time.Now,
	}
}

func (e *Engine) Orders() *OrderTable {
	return e.orders
}

func (e *Engine) Market() *market.State {
	return e.market
}

func (e *Engine) QuoteState() strategy.QuoteState {
	return e.sm.Current()
}

// Process consumes one inbound event and returns the ordered intents for
// this cycle: cancels first, then hedge orders, then quote inserts. It must
// complete before the next event is handled.
func (e *Engine) Process(ev exchange.Event) []exchange.Intent {
	switch v := ev.(type) {
	case exchange.BookUpdate:
		e.noteTime(v.TimeMS)
		e.market.ApplyBook(v)
		e.observe(v.Instrument)
		return e.evaluate()
	case exchange.TradeTick:
		e.noteTime(v.TimeMS)
		e.market.ApplyTrade(v)
		return nil
	case exchange.OrderAck:
		e.onAck(v)
		return nil
	case exchange.OrderReject:
		e.onReject(v)
		return nil
	case exchange.OrderCancelled:
		e.onCancelled(v)
		return nil
	case exchange.Fill:
		e.noteTime(v.TimeMS)
		if e.onFill(v) {
			return e.evaluate()
		}
		return nil
	case exchange.Timer:
		e.noteTime(v.TimeMS)
		return e.evaluate()
	}
	return nil
}

func (e *Engine) noteTime(ms int64) {
	if ms > e.lastTimeMS {
		e.lastTimeMS = ms
	}
}

func (e *Engine) now() time.Time {
	if e.lastTimeMS > 0 {
		return time.UnixMilli(e.lastTimeMS)
	}
	return e.clock()
}

// observe feeds the estimators at the configured cadence once both mids
// exist, and tracks ETF realized volatility on every ETF update.
func (e *Engine) observe(updated exchange.Instrument) {
	etfMid, etfOK := e.market.Mid(exchange.InstrumentETF)
	futMid, futOK := e.market.Mid(exchange.InstrumentFuture)
	if updated == exchange.InstrumentETF && etfOK {
		e.vol.Observe(etfMid)
	}
	if !etfOK || !futOK {
		return
	}
	e.sampleTick++
	if e.sampleTick%e.cfg.SampleInterval != 0 {
		return
	}
	e.est.Observe(futMid, etfMid)
}

func (e *Engine) onAck(ev exchange.OrderAck) {
	order, ok := e.orders.Get(ev.OrderID)
	if !ok {
		e.log.Warn("ack for unknown order", zap.Uint64("order_id", ev.OrderID))
		return
	}
	if order.Status == exchange.StatusPending {
		order.Status = exchange.StatusLive
		if !order.Hedge && e.sm.Current() == strategy.StateRepricing {
			e.sm.Apply(strategy.EventSettle)
		}
	}
}

func (e *Engine) onReject(ev exchange.OrderReject) {
	order, ok := e.orders.Get(ev.OrderID)
	if !ok {
		e.log.Warn("reject for unknown order", zap.Uint64("order_id", ev.OrderID))
		return
	}
	e.log.Warn("order rejected",
		zap.Uint64("order_id", ev.OrderID),
		zap.String("instrument", order.Instrument.String()),
		zap.String("reason", ev.Reason),
	)
	e.metrics.GatewayRejects.Inc()
	// The replace path already released exposure when the cancel went out.
	if order.Status != exchange.StatusCancelPending {
		e.risk.ReleaseOpen(order.Instrument, order.Side, order.Remaining, true)
	}
	order.Status = exchange.StatusRejected
	e.orders.Remove(order.ID)
	e.syncQuoteState()
	// No blind resubmit: the next cycle re-evaluates from current state.
}

func (e *Engine) onCancelled(ev exchange.OrderCancelled) {
	order, ok := e.orders.Get(ev.OrderID)
	if !ok {
		return
	}
	if order.Status != exchange.StatusCancelPending {
		e.risk.ReleaseOpen(order.Instrument, order.Side, order.Remaining, true)
	}
	order.Status = exchange.StatusCancelled
	e.orders.Remove(order.ID)
	e.syncQuoteState()
}

// onFill reconciles a confirmed execution; returns false for duplicates.
func (e *Engine) onFill(ev exchange.Fill) bool {
	order, known := e.orders.Get(ev.OrderID)
	instrument := ev.Instrument
	side := ev.Side
	if known {
		instrument = order.Instrument
		side = order.Side
	}
	if !e.risk.ApplyFill(ev.FillID, instrument, side, ev.Volume, ev.Price) {
		e.metrics.DuplicateFills.Inc()
		return false
	}
	e.metrics.FillsApplied.Inc()
	if known {
		order.Remaining -= ev.Volume
		if order.Remaining < 0 {
			order.Remaining = 0
		}
		if order.Status != exchange.StatusCancelPending {
			terminal := order.Remaining == 0
			e.risk.ReleaseOpen(instrument, side, ev.Volume, terminal)
			if terminal {
				order.Status = exchange.StatusFilled
				e.orders.Remove(order.ID)
				e.syncQuoteState()
			} else {
				order.Status = exchange.StatusPartiallyFilled
			}
		} else if order.Remaining == 0 {
			// Fill raced our cancel; the order is done either way.
			order.Status = exchange.StatusFilled
			e.orders.Remove(order.ID)
		}
	} else {
		e.log.Warn("fill for unknown order", zap.Uint64("order_id", ev.OrderID))
	}
	return true
}

func (e *Engine) syncQuoteState() {
	bid := e.orders.LiveQuote(exchange.InstrumentETF, exchange.SideBuy)
	ask := e.orders.LiveQuote(exchange.InstrumentETF, exchange.SideSell)
	if bid == nil && ask == nil && e.sm.Current() != strategy.StateNoQuote {
		e.sm.Apply(strategy.EventWithdraw)
	}
}

// evaluate runs one full decision cycle. Reducing exposure takes priority
// over resuming quoting, so the hedge order precedes quote inserts; cancels
// precede everything that adds.
func (e *Engine) evaluate() []exchange.Intent {
	var cancels, adds []exchange.Intent

	hedgeIntent := e.hedgeIntent()

	liveBid := e.orders.LiveQuote(exchange.InstrumentETF, exchange.SideBuy)
	liveAsk := e.orders.LiveQuote(exchange.InstrumentETF, exchange.SideSell)
	decision := e.quote.Quotes(e.snapshot(liveBid, liveAsk), sideQuote(liveBid), sideQuote(liveAsk))

	bidCancels, bidAdds := e.applySide(exchange.SideBuy, decision.Bid, liveBid)
	askCancels, askAdds := e.applySide(exchange.SideSell, decision.Ask, liveAsk)
	cancels = append(cancels, bidCancels...)
	cancels = append(cancels, askCancels...)
	adds = append(adds, bidAdds...)
	adds = append(adds, askAdds...)

	intents := make([]exchange.Intent, 0, len(cancels)+len(adds)+1)
	intents = append(intents, cancels...)
	if hedgeIntent != nil {
		intents = append(intents, hedgeIntent)
	}
	intents = append(intents, adds...)
	return intents
}

func (e *Engine) snapshot(liveBid, liveAsk *Order) strategy.Snapshot {
	snap := strategy.Snapshot{
		Position:      e.risk.Position(exchange.InstrumentETF),
		PositionLimit: e.risk.Limits().MaxPosition[exchange.InstrumentETF],
		Imbalance:     e.market.Imbalance(exchange.InstrumentETF, e.cfg.ImbalanceDepth),
		Volatility:    e.vol.Std(),
	}
	if mid, ok := e.market.Mid(exchange.InstrumentETF); ok {
		snap.EtfMid = mid
		snap.EtfMidOK = true
	}
	if bid, ok := e.market.BestBid(exchange.InstrumentETF); ok {
		snap.EtfBestBid = bid.Price
		snap.HasBestBid = true
	}
	if ask, ok := e.market.BestAsk(exchange.InstrumentETF); ok {
		snap.EtfBestAsk = ask.Price
		snap.HasBestAsk = true
	}
	if futMid, ok := e.market.Mid(exchange.InstrumentFuture); ok {
		if fv, ok := e.est.FairValue(futMid); ok {
			snap.FairValue = fv
			snap.FairValueOK = true
			snap.ResidualStd = e.est.ResidualStd()
			if snap.EtfMidOK {
				snap.Residual = snap.EtfMid - fv
			}
		}
	}
	// A resting quote can always be cancelled, so its size is part of the
	// headroom offered back to the policy.
	snap.BidHeadroom = e.risk.Headroom(exchange.InstrumentETF, exchange.SideBuy)
	if liveBid != nil {
		snap.BidHeadroom += liveBid.Remaining
	}
	snap.AskHeadroom = e.risk.Headroom(exchange.InstrumentETF, exchange.SideSell)
	if liveAsk != nil {
		snap.AskHeadroom += liveAsk.Remaining
	}
	return snap
}

func (e *Engine) hedgeIntent() exchange.Intent {
	inputs := strategy.HedgeInputs{
		EtfPosition:    e.risk.Position(exchange.InstrumentETF),
		FuturePosition: e.risk.Position(exchange.InstrumentFuture) + e.orders.PendingHedgeVolume(),
		PositionLimit:  e.risk.Limits().MaxPosition[exchange.InstrumentETF],
		Beta:           e.est.Beta(),
		BetaOK:         e.est.Ready(),
		BuyHeadroom:    e.risk.Headroom(exchange.InstrumentFuture, exchange.SideBuy),
		SellHeadroom:   e.risk.Headroom(exchange.InstrumentFuture, exchange.SideSell),
		Now:            e.now(),
	}
	if bid, ok := e.market.BestBid(exchange.InstrumentFuture); ok {
		inputs.FutureBestBid = bid.Price
		inputs.HasBestBid = true
	}
	if ask, ok := e.market.BestAsk(exchange.InstrumentFuture); ok {
		inputs.FutureBestAsk = ask.Price
		inputs.HasBestAsk = true
	}
	if mid, ok := e.market.Mid(exchange.InstrumentETF); ok {
		inputs.UnrealizedPnL = e.risk.UnrealizedPnL(exchange.InstrumentETF, mid)
	}
	order := e.hedge.Decide(inputs)
	if order == nil {
		return nil
	}
	if !e.risk.CanInsert(exchange.InstrumentFuture, order.Side, order.Volume) {
		e.metrics.HedgesCapped.Inc()
		return nil
	}
	if !e.budget.Allow() {
		return nil
	}
	id := e.orders.NextID()
	e.orders.Add(&Order{
		ID:         id,
		Instrument: exchange.InstrumentFuture,
		Side:       order.Side,
		Price:      order.Price,
		Remaining:  order.Volume,
		Status:     exchange.StatusPending,
		Hedge:      true,
		CreatedMS:  e.lastTimeMS,
	})
	e.risk.ReserveOpen(exchange.InstrumentFuture, order.Side, order.Volume)
	e.metrics.HedgesPlaced.Inc()
	e.log.Info("hedging",
		zap.String("side", order.Side.String()),
		zap.Int64("volume", order.Volume),
		zap.Int64("price", order.Price),
	)
	return exchange.Insert{
		OrderID:    id,
		Instrument: exchange.InstrumentFuture,
		Side:       order.Side,
		Price:      order.Price,
		Volume:     order.Volume,
		Lifespan:   order.Lifespan,
	}
}

func (e *Engine) applySide(side exchange.Side, dec strategy.SideDecision, live *Order) (cancels, adds []exchange.Intent) {
	if dec.Action == strategy.ActionKeep && live != nil && e.quoteExpired(live) {
		dec = strategy.SideDecision{Action: strategy.ActionReplace, Price: dec.Price, Volume: dec.Volume}
	}
	switch dec.Action {
	case strategy.ActionPlace:
		if intent := e.placeQuote(side, dec.Price, dec.Volume, false); intent != nil {
			adds = append(adds, intent)
			e.sm.Apply(strategy.EventPlace)
		}
	case strategy.ActionReplace:
		if live == nil {
			return nil, nil
		}
		// A replace needs two slots, one for the cancel and one for the
		// replacing insert. Both are taken up front so a budget that runs
		// out mid-sequence never tears the quote down without a replacement.
		if !e.budget.Allow() || !e.budget.Allow() {
			return nil, nil
		}
		cancels = append(cancels, e.cancelOrder(live))
		if intent := e.placeQuote(side, dec.Price, dec.Volume, true); intent != nil {
			adds = append(adds, intent)
			e.metrics.Reprices.Inc()
			e.sm.Apply(strategy.EventReprice)
		}
	case strategy.ActionAmend:
		if live == nil || dec.Volume >= live.Remaining {
			return nil, nil
		}
		if !e.budget.Allow() {
			return nil, nil
		}
		e.risk.ReleaseOpen(live.Instrument, side, live.Remaining-dec.Volume, false)
		live.Remaining = dec.Volume
		adds = append(adds, exchange.Amend{OrderID: live.ID, NewVolume: dec.Volume})
	case strategy.ActionWithdraw:
		if live == nil {
			return nil, nil
		}
		if !e.budget.Allow() {
			return nil, nil
		}
		cancels = append(cancels, e.cancelOrder(live))
		e.syncQuoteState()
	}
	return cancels, adds
}

func (e *Engine) quoteExpired(live *Order) bool {
	return e.cfg.QuoteTTLMS > 0 && live.CreatedMS > 0 && e.lastTimeMS-live.CreatedMS >= e.cfg.QuoteTTLMS
}

// cancelOrder releases the order's exposure at emission time. The entry
// stays in the table as CANCEL_PENDING until the terminal event arrives, so
// a fill that races the cancel still reconciles against it.
func (e *Engine) cancelOrder(live *Order) exchange.Intent {
	e.risk.ReleaseOpen(live.Instrument, live.Side, live.Remaining, true)
	live.Status = exchange.StatusCancelPending
	return exchange.Cancel{OrderID: live.ID}
}

// placeQuote validates and records a new ETF quote. reserved marks callers
// that already took the budget slot for the insert.
func (e *Engine) placeQuote(side exchange.Side, price, volume int64, reserved bool) exchange.Intent {
	if price <= 0 || volume <= 0 {
		return nil
	}
	if !e.risk.CanInsert(exchange.InstrumentETF, side, volume) {
		e.metrics.QuotesSuppressed.Inc()
		return nil
	}
	if !reserved && !e.budget.Allow() {
		return nil
	}
	id := e.orders.NextID()
	e.orders.Add(&Order{
		ID:         id,
		Instrument: exchange.InstrumentETF,
		Side:       side,
		Price:      price,
		Remaining:  volume,
		Status:     exchange.StatusPending,
		CreatedMS:  e.lastTimeMS,
	})
	e.risk.ReserveOpen(exchange.InstrumentETF, side, volume)
	e.metrics.QuotesPlaced.Inc()
	return exchange.Insert{
		OrderID:    id,
		Instrument: exchange.InstrumentETF,
		Side:       side,
		Price:      price,
		Volume:     volume,
		Lifespan:   exchange.LifespanGoodForDay,
	}
}

func sideQuote(o *Order) *strategy.SideQuote {
	if o == nil {
		return nil
	}
	return &strategy.SideQuote{Price: o.Price, Volume: o.Remaining}
}
