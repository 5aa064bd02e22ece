package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/EgorLis/Bottlebot/internal/bot"
	"github.com/EgorLis/Bottlebot/internal/config"
	"github.com/EgorLis/Bottlebot/internal/logger"
	"github.com/EgorLis/Bottlebot/internal/metrics"
)

func main() {
	cfgPath := flag.String("config", "conf/bottlebot.yaml", "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	zl, err := logger.New(config.GetEnv(), cfg.Logging.Level)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = zl.Sync() }()

	metrics.Register()

	b, err := bot.New(cfg, zl)
	if err != nil {
		zl.Fatal("bot init failed", zap.Error(err))
	}

	if err := b.Start(); err != nil {
		zl.Fatal("bot start failed", zap.Error(err))
	}
	defer b.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zl.Info("running… press Ctrl+C to stop")

	<-ctx.Done()
}
