package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// FillRecord is one confirmed execution, as applied to the position.
type FillRecord struct {
	Time       time.Time
	FillID     uint64
	OrderID    uint64
	Instrument string
	Side       string
	Price      int64
	Volume     int64
	Position   int64
}

// QuoteRecord is one quote action the engine emitted.
type QuoteRecord struct {
	Time       time.Time
	OrderID    uint64
	Instrument string
	Side       string
	Action     string
	Price      int64
	Volume     int64
}

// PositionRecord is the periodic risk snapshot.
type PositionRecord struct {
	Time           time.Time
	EtfPosition    int64
	FuturePosition int64
	HedgeDeficit   int64
	Beta           float64
	EtfMid         float64
	FutureMid      float64
	UnrealizedPnL  float64
	OpenOrders     int
	QuoteState     string
}

// Config mirrors the session config's journal block.
type Config struct {
	Enabled         bool
	DSN             string
	Schema          string
	QueueSize       int
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Writer records the session asynchronously into postgres. The event loop
// only ever enqueues; a full queue drops rather than blocking a decision
// cycle, and the drop is counted.
type Writer struct {
	db     *sql.DB
	log    *zap.Logger
	schema string

	fills     chan FillRecord
	quotes    chan QuoteRecord
	positions chan PositionRecord

	started  atomic.Bool
	dropFill atomic.Uint64
	dropQt   atomic.Uint64
	dropPos  atomic.Uint64
}

// New returns (nil, nil) when the journal is disabled; a nil *Writer is a
// safe no-op receiver throughout.
func New(cfg Config, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("journal dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:        db,
		log:       log,
		schema:    schema,
		fills:     make(chan FillRecord, queueSize),
		quotes:    make(chan QuoteRecord, queueSize),
		positions: make(chan PositionRecord, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueueFill(record FillRecord) {
	if w == nil {
		return
	}
	select {
	case w.fills <- record:
	default:
		if w.dropFill.Add(1) == 1 && w.log != nil {
			w.log.Warn("journal fill queue full")
		}
	}
}

func (w *Writer) EnqueueQuote(record QuoteRecord) {
	if w == nil {
		return
	}
	select {
	case w.quotes <- record:
	default:
		if w.dropQt.Add(1) == 1 && w.log != nil {
			w.log.Warn("journal quote queue full")
		}
	}
}

func (w *Writer) EnqueuePosition(record PositionRecord) {
	if w == nil {
		return
	}
	select {
	case w.positions <- record:
	default:
		if w.dropPos.Add(1) == 1 && w.log != nil {
			w.log.Warn("journal position queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case record := <-w.fills:
			w.writeFill(ctx, record)
		case record := <-w.quotes:
			w.writeQuote(ctx, record)
		case record := <-w.positions:
			w.writePosition(ctx, record)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("journal db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		fill_id BIGINT NOT NULL,
		order_id BIGINT NOT NULL,
		instrument TEXT NOT NULL,
		side TEXT NOT NULL,
		price BIGINT NOT NULL,
		volume BIGINT NOT NULL,
		position BIGINT NOT NULL,
		PRIMARY KEY (fill_id)
	)`, w.table("fills"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		order_id BIGINT NOT NULL,
		instrument TEXT NOT NULL,
		side TEXT NOT NULL,
		action TEXT NOT NULL,
		price BIGINT NOT NULL,
		volume BIGINT NOT NULL
	)`, w.table("quotes"))); err != nil {
		return err
	}
	return w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		etf_position BIGINT NOT NULL,
		future_position BIGINT NOT NULL,
		hedge_deficit BIGINT NOT NULL,
		beta DOUBLE PRECISION NOT NULL,
		etf_mid DOUBLE PRECISION NOT NULL,
		future_mid DOUBLE PRECISION NOT NULL,
		unrealized_pnl DOUBLE PRECISION NOT NULL,
		open_orders INTEGER NOT NULL,
		quote_state TEXT NOT NULL
	)`, w.table("position_snapshots")))
}

func (w *Writer) writeFill(ctx context.Context, record FillRecord) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, fill_id, order_id, instrument, side, price, volume, position
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	ON CONFLICT (fill_id) DO NOTHING`, w.table("fills"))
	if _, err := w.db.ExecContext(ctx, query,
		record.Time,
		int64(record.FillID),
		int64(record.OrderID),
		record.Instrument,
		record.Side,
		record.Price,
		record.Volume,
		record.Position,
	); err != nil && w.log != nil {
		w.log.Warn("journal fill insert failed", zap.Error(err))
	}
}

func (w *Writer) writeQuote(ctx context.Context, record QuoteRecord) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, order_id, instrument, side, action, price, volume
	) VALUES ($1,$2,$3,$4,$5,$6,$7)`, w.table("quotes"))
	if _, err := w.db.ExecContext(ctx, query,
		record.Time,
		int64(record.OrderID),
		record.Instrument,
		record.Side,
		record.Action,
		record.Price,
		record.Volume,
	); err != nil && w.log != nil {
		w.log.Warn("journal quote insert failed", zap.Error(err))
	}
}

func (w *Writer) writePosition(ctx context.Context, record PositionRecord) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, etf_position, future_position, hedge_deficit, beta, etf_mid, future_mid,
		unrealized_pnl, open_orders, quote_state
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`, w.table("position_snapshots"))
	if _, err := w.db.ExecContext(ctx, query,
		record.Time,
		record.EtfPosition,
		record.FuturePosition,
		record.HedgeDeficit,
		record.Beta,
		record.EtfMid,
		record.FutureMid,
		record.UnrealizedPnL,
		record.OpenOrders,
		record.QuoteState,
	); err != nil && w.log != nil {
		w.log.Warn("journal position insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
