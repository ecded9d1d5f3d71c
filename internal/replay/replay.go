// Package replay drives the decision engine from a recorded event log,
// offline, with no exchange connection. It exists to answer "what would the
// strategy have done" against captured sessions before a config change goes
// live.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"rtg-maker-bot/internal/app"
	"rtg-maker-bot/internal/config"
	"rtg-maker-bot/internal/engine"
	"rtg-maker-bot/internal/estimator"
	"rtg-maker-bot/internal/exchange"
	"rtg-maker-bot/internal/market"
	"rtg-maker-bot/internal/metrics"
	"rtg-maker-bot/internal/risk"
	"rtg-maker-bot/internal/state"
	"rtg-maker-bot/internal/strategy"
)

// record is one line of the JSONL event log.
type record struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// Result summarizes one replay run.
type Result struct {
	Events          int     `json:"events"`
	Inserts         int     `json:"inserts"`
	Cancels         int     `json:"cancels"`
	Amends          int     `json:"amends"`
	FillsApplied    int     `json:"fills_applied"`
	EtfPosition     int64   `json:"etf_position"`
	FuturePosition  int64   `json:"future_position"`
	Beta            float64 `json:"beta"`
	UnrealizedPnL   float64 `json:"unrealized_pnl"`
	FinalQuoteState string  `json:"final_quote_state"`
}

const resultKey = "replay:last_result"

// Session replays events through a freshly built engine. Rate limiting is
// disabled: offline there is nothing to protect, and budget-suppressed
// actions would make runs non-reproducible against partial logs.
type Session struct {
	engine *engine.Engine
	risk   *risk.Manager
	est    *estimator.Estimator
	mkt    *market.State
	result Result
}

func NewSession(cfg *config.Config, log *zap.Logger) (*Session, error) {
	quotePolicy, oneToOne, err := app.BuildQuotePolicy(cfg.Strategy, cfg.Risk.MaxOrderSize)
	if err != nil {
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
	hedgePolicy := strategy.NewHedgePolicy(strategy.HedgeConfig{
		DeficitFrac: cfg.Hedge.DeficitFrac,
		MaxMtmLoss:  cfg.Hedge.MaxMtmLoss,
		MaxAge:      cfg.Hedge.MaxAge,
		SlipTicks:   cfg.Hedge.SlipTicks,
		TickSize:    cfg.Strategy.TickSize,
		OneToOne:    oneToOne,
	})
	eng := engine.New(engine.Config{
		SampleInterval: cfg.Estimator.SampleInterval,
		ImbalanceDepth: cfg.Strategy.ImbalanceDepth,
		QuoteTTLMS:     cfg.Strategy.QuoteTTL.Milliseconds(),
	}, mkt, est, vol, riskMgr, quotePolicy, hedgePolicy, nil, metrics.NewNoop(), log)
	return &Session{engine: eng, risk: riskMgr, est: est, mkt: mkt}, nil
}

// Run consumes the log to EOF. Malformed lines abort with the line number;
// a truncated recording should be fixed, not silently partially replayed.
func (s *Session) Run(r io.Reader) (Result, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		ev, err := decodeLine(raw)
		if err != nil {
			return s.result, fmt.Errorf("line %d: %w", line, err)
		}
		s.step(ev)
	}
	if err := sc.Err(); err != nil {
		return s.result, err
	}
	s.finish()
	return s.result, nil
}

// RunFile replays a log from disk.
func (s *Session) RunFile(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()
	return s.Run(f)
}

func (s *Session) step(ev exchange.Event) {
	s.result.Events++
	if _, ok := ev.(exchange.Fill); ok {
		s.result.FillsApplied++
	}
	for _, intent := range s.engine.Process(ev) {
		switch intent.(type) {
		case exchange.Insert:
			s.result.Inserts++
		case exchange.Cancel:
			s.result.Cancels++
		case exchange.Amend:
			s.result.Amends++
		}
	}
}

func (s *Session) finish() {
	s.result.EtfPosition = s.risk.Position(exchange.InstrumentETF)
	s.result.FuturePosition = s.risk.Position(exchange.InstrumentFuture)
	s.result.Beta = s.est.Beta()
	s.result.FinalQuoteState = string(s.engine.QuoteState())
	if mid, ok := s.mkt.Mid(exchange.InstrumentETF); ok {
		s.result.UnrealizedPnL = s.risk.UnrealizedPnL(exchange.InstrumentETF, mid)
	}
}

// SaveResult persists the run summary so successive replays of the same
// config can be compared from the kv store.
func SaveResult(ctx context.Context, store state.Store, result Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return store.Set(ctx, resultKey, string(data))
}

// LoadResult returns the previous run's summary, if any.
func LoadResult(ctx context.Context, store state.Store) (Result, bool, error) {
	value, ok, err := store.Get(ctx, resultKey)
	if err != nil || !ok {
		return Result{}, false, err
	}
	var result Result
	if err := json.Unmarshal([]byte(value), &result); err != nil {
		return Result{}, false, err
	}
	return result, true, nil
}

func decodeLine(data []byte) (exchange.Event, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	switch rec.Type {
	case "book":
		var ev exchange.BookUpdate
		if err := json.Unmarshal(rec.Body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case "trade":
		var ev exchange.TradeTick
		if err := json.Unmarshal(rec.Body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case "ack":
		var ev exchange.OrderAck
		if err := json.Unmarshal(rec.Body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case "reject":
		var ev exchange.OrderReject
		if err := json.Unmarshal(rec.Body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case "cancelled":
		var ev exchange.OrderCancelled
		if err := json.Unmarshal(rec.Body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case "fill":
		var ev exchange.Fill
		if err := json.Unmarshal(rec.Body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case "timer":
		var ev exchange.Timer
		if err := json.Unmarshal(rec.Body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	}
	return nil, fmt.Errorf("%w: %q", exchange.ErrUnknownFrame, rec.Type)
}
