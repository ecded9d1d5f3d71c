package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"

	"rtg-maker-bot/internal/config"
	"rtg-maker-bot/internal/logging"
	"rtg-maker-bot/internal/replay"
	"rtg-maker-bot/internal/state/sqlite"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	eventsPath := flag.String("events", "", "path to JSONL event log")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	log := logging.New(cfg.Log)
	if *eventsPath == "" {
		log.Error("-events is required")
		os.Exit(2)
	}

	session, err := replay.NewSession(cfg, log)
	if err != nil {
		log.Error("failed to build session", zap.Error(err))
		os.Exit(1)
	}
	result, err := session.RunFile(*eventsPath)
	if err != nil {
		log.Error("replay failed", zap.Error(err))
		os.Exit(1)
	}
	log.Info("replay finished",
		zap.Int("events", result.Events),
		zap.Int("inserts", result.Inserts),
		zap.Int("cancels", result.Cancels),
		zap.Int("amends", result.Amends),
		zap.Int("fills", result.FillsApplied),
		zap.Int64("etf_position", result.EtfPosition),
		zap.Int64("future_position", result.FuturePosition),
		zap.Float64("beta", result.Beta),
		zap.Float64("unrealized_pnl", result.UnrealizedPnL),
		zap.String("quote_state", result.FinalQuoteState),
	)

	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		log.Error("state dir create failed", zap.Error(err))
		os.Exit(1)
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		log.Error("state store open failed", zap.Error(err))
		os.Exit(1)
	}
	defer store.Close()
	if err := replay.SaveResult(context.Background(), store, result); err != nil {
		log.Error("result save failed", zap.Error(err))
		os.Exit(1)
	}
}
