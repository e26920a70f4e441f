// Package main 扣费重放 worker 入口（ledger-worker）
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ai-toolkit-api/internal/config"
	"ai-toolkit-api/internal/infrastructure/messaging"
	"ai-toolkit-api/internal/wire"
	"ai-toolkit-api/pkg/logger"
	"ai-toolkit-api/pkg/tracer"
)

// dlqAlertThreshold 死信队列积压告警阈值
const dlqAlertThreshold = 10

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "ledger-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(ctx) }()

	worker, cleanup, err := wire.InitializeLedgerWorker(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize ledger worker", err)
	}
	defer cleanup()

	worker.Consumer.RegisterHandler(messaging.MessageTypeDebitRetry, func(msgCtx context.Context, msg *messaging.Message) error {
		var payload messaging.DebitRetryMessage
		if err := msg.UnmarshalPayload(&payload); err != nil {
			return err
		}
		return worker.Ledger.Replay(msgCtx, payload.PendingDebit())
	})

	if err := worker.Consumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start consumer", err)
	}
	go worker.Consumer.MonitorDLQ(ctx, dlqAlertThreshold)

	log := logger.FromContext(ctx)
	log.Info("ledger-worker started", "stream", string(messaging.StreamDebitRetry))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("ledger-worker shutting down")
	worker.Consumer.Stop()
}
