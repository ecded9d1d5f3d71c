package replay

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"rtg-maker-bot/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Strategy: config.StrategyConfig{
			Variant:            config.VariantRollingRegression,
			TickSize:           1,
			LotSize:            10,
			MinRepriceTicks:    1,
			SkewGain:           0.8,
			BaseSpread:         0.001,
			ConservativeSpread: 0.002,
			DegradedSpread:     0.003,
		},
		Estimator: config.EstimatorConfig{
			Window:         16,
			MinSamples:     4,
			SampleInterval: 1,
			VolWindow:      16,
			TradeWindow:    32,
		},
		Risk: config.RiskConfig{
			PositionLimit:       100,
			FuturePositionLimit: 100,
			MaxOrders:           8,
			MaxOrdersPerSide:    4,
			MaxOrderSize:        50,
		},
		Hedge: config.HedgeConfig{DeficitFrac: 0.1},
	}
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession(testConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}

const sampleLog = `{"type":"book","body":{"instrument":1,"bids":[{"price":9900,"volume":5}],"asks":[{"price":10100,"volume":5}],"time_ms":1000}}
{"type":"trade","body":{"instrument":1,"price":10000,"volume":2,"time_ms":1001}}
{"type":"fill","body":{"fill_id":1,"order_id":77,"instrument":1,"side":1,"price":9900,"volume":5,"time_ms":1002}}
{"type":"timer","body":{"time_ms":2000}}
`

func TestRunCountsEventsAndFills(t *testing.T) {
	s := newTestSession(t)
	result, err := s.Run(strings.NewReader(sampleLog))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Events != 4 {
		t.Fatalf("events = %d", result.Events)
	}
	if result.FillsApplied != 1 {
		t.Fatalf("fills applied = %d", result.FillsApplied)
	}
	if result.EtfPosition != 5 {
		t.Fatalf("etf position = %d", result.EtfPosition)
	}
	if result.FuturePosition != 0 {
		t.Fatalf("future position = %d", result.FuturePosition)
	}
	// Marked against the 10000 mid after buying at 9900.
	if result.UnrealizedPnL != 500 {
		t.Fatalf("unrealized pnl = %v", result.UnrealizedPnL)
	}
}

func TestRunSkipsBlankLines(t *testing.T) {
	s := newTestSession(t)
	log := "\n" + `{"type":"timer","body":{"time_ms":1}}` + "\n\n"
	result, err := s.Run(strings.NewReader(log))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Events != 1 {
		t.Fatalf("events = %d", result.Events)
	}
}

func TestRunMalformedLineAborts(t *testing.T) {
	s := newTestSession(t)
	log := `{"type":"timer","body":{"time_ms":1}}` + "\n{broken\n"
	_, err := s.Run(strings.NewReader(log))
	if err == nil {
		t.Fatalf("expected error for malformed line")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("error should carry the line number: %v", err)
	}
}

func TestRunUnknownRecordType(t *testing.T) {
	s := newTestSession(t)
	_, err := s.Run(strings.NewReader(`{"type":"heartbeat","body":{}}` + "\n"))
	if err == nil || !strings.Contains(err.Error(), "heartbeat") {
		t.Fatalf("expected unknown type error, got %v", err)
	}
}

func TestRunFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	if err := os.WriteFile(path, []byte(sampleLog), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	s := newTestSession(t)
	result, err := s.RunFile(path)
	if err != nil {
		t.Fatalf("run file: %v", err)
	}
	if result.Events != 4 {
		t.Fatalf("events = %d", result.Events)
	}
}

func TestRunFileMissing(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.RunFile(filepath.Join(t.TempDir(), "absent.jsonl")); err == nil {
		t.Fatalf("expected error for missing log")
	}
}

type resultStore struct {
	data map[string]string
}

func (s *resultStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *resultStore) Set(_ context.Context, key, value string) error {
	s.data[key] = value
	return nil
}

func (s *resultStore) Delete(_ context.Context, key string) error {
	delete(s.data, key)
	return nil
}

func (s *resultStore) Keys(_ context.Context, _ string) ([]string, error) { return nil, nil }

func (s *resultStore) Close() error { return nil }

func TestSaveLoadResult(t *testing.T) {
	store := &resultStore{data: make(map[string]string)}
	ctx := context.Background()
	in := Result{Events: 9, Inserts: 3, EtfPosition: -4, Beta: 0.5, FinalQuoteState: "QUOTING"}
	if err := SaveResult(ctx, store, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, ok, err := LoadResult(ctx, store)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if out != in {
		t.Fatalf("got %+v want %+v", out, in)
	}
}

func TestLoadResultAbsent(t *testing.T) {
	store := &resultStore{data: make(map[string]string)}
	if _, ok, err := LoadResult(context.Background(), store); ok || err != nil {
		t.Fatalf("expected absent result, ok=%v err=%v", ok, err)
	}
}

func TestNewSessionRejectsUnknownVariant(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy.Variant = "grid"
	if _, err := NewSession(cfg, zap.NewNop()); err == nil {
		t.Fatalf("expected error for unknown variant")
	}
}
