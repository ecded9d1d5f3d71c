package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"rtg-maker-bot/internal/config"
	"rtg-maker-bot/internal/engine"
	"rtg-maker-bot/internal/estimator"
	"rtg-maker-bot/internal/exchange"
	"rtg-maker-bot/internal/feed"
	"rtg-maker-bot/internal/gateway"
	"rtg-maker-bot/internal/journal"
	"rtg-maker-bot/internal/market"
	"rtg-maker-bot/internal/metrics"
	"rtg-maker-bot/internal/risk"
	"rtg-maker-bot/internal/state"
	"rtg-maker-bot/internal/state/sqlite"
	"rtg-maker-bot/internal/strategy"
)

// eventBuffer bounds the feed-to-engine channel. The engine is synchronous
// per event; the buffer only absorbs short bursts.
const eventBuffer = 256

type App struct {
	cfg     *config.Config
	log     *zap.Logger
	store   *sqlite.Store
	feed    *feed.Client
	gateway *gateway.Client
	engine  *engine.Engine
	risk    *risk.Manager
	est     *estimator.Estimator
	hedge   *strategy.HedgePolicy
	journal *journal.Writer
	metrics *metrics.Metrics
	prom    *metrics.Prometheus

	lastReconnects int
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}

	m := metrics.NewNoop()
	var prom *metrics.Prometheus
	if cfg.Metrics.Listen != "" {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}

	feedClient := feed.New(cfg.Feed.URL, cfg.Feed.ReconnectDelay, cfg.Feed.PingInterval, cfg.Feed.MaxFailures, log)
	gw := gateway.New(feedClient, store, log)
	team, secret := config.Credentials()
	if team == "" {
		return nil, fmt.Errorf("%s is required", config.EnvTeamName)
	}
	feedClient.OnOpen(func(ctx context.Context) error {
		return gw.Login(ctx, team, secret)
	})

	jw, err := journal.New(journal.Config{
		Enabled:         cfg.Journal.Enabled,
		DSN:             cfg.Journal.DSN,
		Schema:          cfg.Journal.Schema,
		QueueSize:       cfg.Journal.QueueSize,
		MaxOpenConns:    cfg.Journal.MaxOpenConns,
		MaxIdleConns:    cfg.Journal.MaxIdleConns,
		ConnMaxLifetime: cfg.Journal.ConnMaxLifetime,
	}, log)
	if err != nil {
		store.Close()
		return nil, err
	}

	limits := risk.Limits{
		MaxPosition: map[exchange.Instrument]int64{
			exchange.InstrumentETF:    cfg.Risk.PositionLimit,
			exchange.InstrumentFuture: cfg.Risk.FuturePositionLimit,
		},
		MaxOrders:        cfg.Risk.MaxOrders,
		MaxOrdersPerSide: cfg.Risk.MaxOrdersPerSide,
		MaxOrderSize:     cfg.Risk.MaxOrderSize,
	}
	riskMgr := risk.NewManager(limits, log)

	mkt := market.NewState(cfg.Estimator.TradeWindow)
	est := estimator.New(cfg.Estimator.Window, cfg.Estimator.MinSamples)
	vol := estimator.NewVolWindow(cfg.Estimator.VolWindow)

	quotePolicy, oneToOne, err := BuildQuotePolicy(cfg.Strategy, cfg.Risk.MaxOrderSize)
	if err != nil {
		store.Close()
		return nil, err
	}
	hedgePolicy := strategy.NewHedgePolicy(strategy.HedgeConfig{
		DeficitFrac: cfg.Hedge.DeficitFrac,
		MaxMtmLoss:  cfg.Hedge.MaxMtmLoss,
		MaxAge:      cfg.Hedge.MaxAge,
		SlipTicks:   cfg.Hedge.SlipTicks,
		TickSize:    cfg.Strategy.TickSize,
		OneToOne:    oneToOne,
	})

	throttle := gateway.NewThrottle(cfg.Gateway.RateLimit, cfg.Gateway.RateInterval)
	eng := engine.New(engine.Config{
		SampleInterval: cfg.Estimator.SampleInterval,
		ImbalanceDepth: cfg.Strategy.ImbalanceDepth,
		QuoteTTLMS:     cfg.Strategy.QuoteTTL.Milliseconds(),
	}, mkt, est, vol, riskMgr, quotePolicy, hedgePolicy, throttle, m, log)

	return &App{
		cfg:     cfg,
		log:     log,
		store:   store,
		feed:    feedClient,
		gateway: gw,
		engine:  eng,
		risk:    riskMgr,
		est:     est,
		hedge:   hedgePolicy,
		journal: jw,
		metrics: m,
		prom:    prom,
	}, nil
}

// BuildQuotePolicy selects the configured variant. The boolean reports
// whether the hedge should use a 1:1 ratio instead of the regression beta.
func BuildQuotePolicy(cfg config.StrategyConfig, maxOrderSize int64) (strategy.QuotePolicy, bool, error) {
	quote := strategy.QuoteConfig{
		TickSize:        cfg.TickSize,
		LotSize:         cfg.LotSize,
		SkewGain:        cfg.SkewGain,
		MinRepriceTicks: cfg.MinRepriceTicks,
		MaxOrderSize:    maxOrderSize,
	}
	switch cfg.Variant {
	case config.VariantRollingRegression:
		return strategy.NewRegressionPolicy(strategy.RegressionConfig{
			Quote:                  quote,
			BaseSpreadFrac:         cfg.BaseSpread,
			ConservativeSpreadFrac: cfg.ConservativeSpread,
			VarianceGain:           cfg.VarianceGain,
			DegradedSpreadFrac:     cfg.DegradedSpread,
		}), false, nil
	case config.VariantDynamicSpread:
		return strategy.NewDynamicSpreadPolicy(strategy.DynamicConfig{
			Quote:               quote,
			BaseSpreadFrac:      cfg.BaseSpread,
			VolGain:             cfg.VolGain,
			ImbalanceGain:       cfg.ImbalanceGain,
			PositionFactorMax:   cfg.PositionFactorMax,
			PositionSensitivity: cfg.PositionSensitivity,
			OrderThresholdFrac:  cfg.OrderThresholdFrac,
			RebalanceFrac:       cfg.RebalanceFrac,
		}), true, nil
	default:
		return nil, false, fmt.Errorf("unknown strategy variant %q", cfg.Variant)
	}
}

// Run drives the session until the context is cancelled or the feed gives up
// reconnecting. Everything that touches the engine runs on this goroutine.
func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	if a.journal != nil {
		a.journal.Start(ctx)
		defer a.journal.Close()
	}
	if a.prom != nil {
		a.serveMetrics(ctx)
	}
	if err := a.feed.Connect(ctx); err != nil {
		return err
	}
	a.cancelLeftovers(ctx)

	events := make(chan exchange.Event, eventBuffer)
	feedErr := make(chan error, 1)
	go func() {
		feedErr <- a.feed.Run(ctx, func(ev exchange.Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		})
	}()

	ticker := time.NewTicker(a.cfg.Hedge.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.shutdown(a.cfg.Hedge.FlattenOnExit)
			return ctx.Err()
		case err := <-feedErr:
			a.metrics.KillSwitchEngaged.Inc()
			a.log.Error("feed unrecoverable, engaging kill switch", zap.Error(err))
			a.shutdown(a.cfg.Hedge.FlattenOnExit)
			if err == nil {
				err = errors.New("feed stopped")
			}
			return err
		case ev := <-events:
			a.step(ctx, ev)
		case now := <-ticker.C:
			a.step(ctx, exchange.Timer{TimeMS: now.UnixMilli()})
			a.snapshotSession(ctx, now)
			a.sampleReconnects()
		}
	}
}

// step runs one decision cycle and transmits its intents.
func (a *App) step(ctx context.Context, ev exchange.Event) {
	intents := a.engine.Process(ev)
	a.markTerminal(ctx, ev)
	a.journalFill(ev)
	if len(intents) == 0 {
		return
	}
	a.journalIntents(intents)
	if err := a.gateway.Send(ctx, intents); err != nil {
		a.log.Warn("intent send failed", zap.Error(err))
	}
}

// markTerminal clears the gateway's crash-recovery journal entry once an
// order can no longer produce fills.
func (a *App) markTerminal(ctx context.Context, ev exchange.Event) {
	switch v := ev.(type) {
	case exchange.OrderCancelled:
		a.gateway.MarkTerminal(ctx, v.OrderID)
	case exchange.OrderReject:
		a.gateway.MarkTerminal(ctx, v.OrderID)
	case exchange.Fill:
		if _, live := a.engine.Orders().Get(v.OrderID); !live {
			a.gateway.MarkTerminal(ctx, v.OrderID)
		}
	}
}

func (a *App) journalFill(ev exchange.Event) {
	fill, ok := ev.(exchange.Fill)
	if !ok {
		return
	}
	a.journal.EnqueueFill(journal.FillRecord{
		Time:       time.UnixMilli(fill.TimeMS),
		FillID:     fill.FillID,
		OrderID:    fill.OrderID,
		Instrument: fill.Instrument.String(),
		Side:       fill.Side.String(),
		Price:      fill.Price,
		Volume:     fill.Volume,
		Position:   a.risk.Position(fill.Instrument),
	})
}

func (a *App) journalIntents(intents []exchange.Intent) {
	now := time.Now()
	for _, intent := range intents {
		switch v := intent.(type) {
		case exchange.Insert:
			a.journal.EnqueueQuote(journal.QuoteRecord{
				Time:       now,
				OrderID:    v.OrderID,
				Instrument: v.Instrument.String(),
				Side:       v.Side.String(),
				Action:     "insert",
				Price:      v.Price,
				Volume:     v.Volume,
			})
		case exchange.Cancel:
			a.journal.EnqueueQuote(journal.QuoteRecord{Time: now, OrderID: v.OrderID, Action: "cancel"})
		case exchange.Amend:
			a.journal.EnqueueQuote(journal.QuoteRecord{Time: now, OrderID: v.OrderID, Action: "amend", Volume: v.NewVolume})
		}
	}
}

func (a *App) snapshotSession(ctx context.Context, now time.Time) {
	etfPos := a.risk.Position(exchange.InstrumentETF)
	futPos := a.risk.Position(exchange.InstrumentFuture)
	beta := a.est.Beta()
	deficit := int64(math.Round(-beta*float64(etfPos))) - futPos
	snap := state.SessionSnapshot{
		EtfPosition:    etfPos,
		FuturePosition: futPos,
		HedgeDeficit:   deficit,
		Beta:           beta,
		OpenOrders:     a.engine.Orders().Len(),
		QuoteState:     string(a.engine.QuoteState()),
		UpdatedAtMS:    now.UnixMilli(),
	}
	if mid, ok := a.engine.Market().Mid(exchange.InstrumentETF); ok {
		snap.EtfMid = mid
		snap.UnrealizedPnL = a.risk.UnrealizedPnL(exchange.InstrumentETF, mid)
	}
	if mid, ok := a.engine.Market().Mid(exchange.InstrumentFuture); ok {
		snap.FutureMid = mid
	}
	if err := state.SaveSessionSnapshot(ctx, a.store, snap); err != nil {
		a.log.Warn("session snapshot save failed", zap.Error(err))
	}
	a.journal.EnqueuePosition(journal.PositionRecord{
		Time:           now,
		EtfPosition:    snap.EtfPosition,
		FuturePosition: snap.FuturePosition,
		HedgeDeficit:   snap.HedgeDeficit,
		Beta:           snap.Beta,
		EtfMid:         snap.EtfMid,
		FutureMid:      snap.FutureMid,
		UnrealizedPnL:  snap.UnrealizedPnL,
		OpenOrders:     snap.OpenOrders,
		QuoteState:     snap.QuoteState,
	})
}

func (a *App) sampleReconnects() {
	if n := a.feed.Reconnects(); n > a.lastReconnects {
		for i := a.lastReconnects; i < n; i++ {
			a.metrics.FeedReconnects.Inc()
		}
		a.lastReconnects = n
	}
}

// cancelLeftovers issues cancels for orders journaled by a previous session
// that never reached a terminal state. On a fresh exchange session the
// cancels bounce off harmlessly; after a process crash they tidy up.
func (a *App) cancelLeftovers(ctx context.Context) {
	ids, err := a.gateway.OutstandingOrders(ctx)
	if err != nil {
		a.log.Warn("outstanding order scan failed", zap.Error(err))
		return
	}
	if len(ids) == 0 {
		return
	}
	a.log.Info("cancelling leftover orders from previous session", zap.Int("count", len(ids)))
	intents := make([]exchange.Intent, 0, len(ids))
	for _, id := range ids {
		intents = append(intents, exchange.Cancel{OrderID: id})
	}
	if err := a.gateway.Send(ctx, intents); err != nil {
		a.log.Warn("leftover cancel send failed", zap.Error(err))
	}
	for _, id := range ids {
		a.gateway.MarkTerminal(ctx, id)
	}
}

// shutdown cancels everything still working and optionally closes the
// residual hedge deficit with a marketable order. Best effort: the feed may
// already be gone, in which case GFD orders die with the session anyway.
func (a *App) shutdown(flatten bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var intents []exchange.Intent
	for _, order := range a.engine.Orders().Live() {
		intents = append(intents, exchange.Cancel{OrderID: order.ID})
	}
	if flatten {
		if intent := a.flattenFuture(); intent != nil {
			intents = append(intents, intent)
		}
	}
	if len(intents) == 0 {
		return
	}
	if err := a.gateway.Send(ctx, intents); err != nil {
		a.log.Warn("shutdown send failed", zap.Error(err))
	}
}

// flattenFuture trades the Future toward the hedge target, not toward zero.
// An ETF position left over at teardown keeps its hedge; only the uncovered
// residual gets closed. A fully hedged book produces no order at all.
func (a *App) flattenFuture() exchange.Intent {
	deficit := a.hedge.Deficit(strategy.HedgeInputs{
		EtfPosition:    a.risk.Position(exchange.InstrumentETF),
		FuturePosition: a.risk.Position(exchange.InstrumentFuture),
		Beta:           a.est.Beta(),
		BetaOK:         a.est.Ready(),
	})
	if deficit == 0 {
		return nil
	}
	side := exchange.SideBuy
	volume := deficit
	if deficit < 0 {
		side = exchange.SideSell
		volume = -deficit
	}
	// Marketable limit a few ticks through the touch, IOC so nothing rests.
	slip := a.cfg.Hedge.SlipTicks * a.cfg.Strategy.TickSize
	var price int64
	if side == exchange.SideSell {
		bid, ok := a.marketBestBid()
		if !ok {
			return nil
		}
		price = bid - slip
	} else {
		ask, ok := a.marketBestAsk()
		if !ok {
			return nil
		}
		price = ask + slip
	}
	if price <= 0 {
		return nil
	}
	return exchange.Insert{
		OrderID:    a.engine.Orders().NextID(),
		Instrument: exchange.InstrumentFuture,
		Side:       side,
		Price:      price,
		Volume:     volume,
		Lifespan:   exchange.LifespanImmediateOrCancel,
	}
}

func (a *App) marketBestBid() (int64, bool) {
	bid, ok := a.engine.Market().BestBid(exchange.InstrumentFuture)
	if !ok {
		return 0, false
	}
	return bid.Price, true
}

func (a *App) marketBestAsk() (int64, bool) {
	ask, ok := a.engine.Market().BestAsk(exchange.InstrumentFuture)
	if !ok {
		return 0, false
	}
	return ask.Price, true
}

func (a *App) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.prom.Handler())
	server := &http.Server{Addr: a.cfg.Metrics.Listen, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
