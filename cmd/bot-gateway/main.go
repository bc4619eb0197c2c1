package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"tg-meds-bot/internal/adapters/bot"
	"tg-meds-bot/internal/adapters/repo"
	"tg-meds-bot/internal/domain"
	"tg-meds-bot/internal/infra/cache"
	"tg-meds-bot/internal/infra/config"
	"tg-meds-bot/internal/infra/db"
	"tg-meds-bot/internal/infra/log"
	"tg-meds-bot/internal/infra/metrics"
	"tg-meds-bot/internal/infra/queue"
	"tg-meds-bot/internal/usecase/schedule"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv, "bot-gateway")

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

	repoAdapter := repo.NewPostgres(pool)
	scheduleService := schedule.NewService(repoAdapter, cfg.DefaultTZOffset)

	var jobs domain.CommandQueue
	var dedupe domain.Cache
	if cfg.AMQPURL != "" {
		rabbit, err := queue.NewRabbitCommandQueue(cfg.AMQPURL, cfg.Queues.Commands)
		if err != nil {
			logger.Fatal().Err(err).Msg("не удалось подключиться к RabbitMQ")
		}
		defer rabbit.Close()
		jobs = rabbit
	}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		dedupe = cache.NewRedis(client)
		if jobs == nil {
			jobs = queue.NewRedisCommandQueue(client, cfg.Queues.Commands)
		}
	}
	if jobs == nil {
		logger.Fatal().Msg("не настроена очередь команд: нужен AMQP_URL или REDIS_ADDR")
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать бота")
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)
	metrics.StartServer(ctx, logger, cfg.MetricsAddr)

	h := bot.NewHandler(botAPI, logger, scheduleService, jobs, dedupe)

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/bot/webhook", func(w http.ResponseWriter, req *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(req.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.HandleUpdate(req.Context(), update)
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: r}
	go func() {
		logger.Info().Int("port", cfg.Port).Msg("бот-гейтвей запущен")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("остановка бот-гейтвея")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
