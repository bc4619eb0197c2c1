package main

import (
	"context"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"

	"tg-meds-bot/internal/adapters/repo"
	"tg-meds-bot/internal/adapters/telegram"
	"tg-meds-bot/internal/infra/config"
	"tg-meds-bot/internal/infra/db"
	"tg-meds-bot/internal/infra/log"
	"tg-meds-bot/internal/infra/metrics"
	"tg-meds-bot/internal/usecase/reminder"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv, "scheduler")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось подключиться к БД")
	}
	defer pool.Close()
	if err := repo.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("не удалось применить миграции")
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать бота")
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)
	metrics.StartServer(ctx, logger, cfg.MetricsAddr)

	repoAdapter := repo.NewPostgres(pool)
	transport := telegram.NewTransport(botAPI, logger)
	service := reminder.NewService(repoAdapter, transport, logger,
		cfg.PollInterval(), cfg.RepeatInterval(), cfg.CallTimeout())

	service.Run(ctx)
	logger.Info().Msg("остановка планировщика")
}
