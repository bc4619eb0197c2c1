package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"tg-meds-bot/internal/adapters/bot"
	"tg-meds-bot/internal/adapters/llm"
	"tg-meds-bot/internal/adapters/repo"
	"tg-meds-bot/internal/adapters/telegram"
	"tg-meds-bot/internal/domain"
	"tg-meds-bot/internal/infra/cache"
	"tg-meds-bot/internal/infra/config"
	"tg-meds-bot/internal/infra/db"
	"tg-meds-bot/internal/infra/log"
	"tg-meds-bot/internal/infra/metrics"
	"tg-meds-bot/internal/infra/openai"
	"tg-meds-bot/internal/infra/queue"
	"tg-meds-bot/internal/usecase/schedule"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv, "worker")

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
	var intentCache domain.Cache
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
		intentCache = cache.NewRedis(client)
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

	var intents domain.IntentService
	if cfg.LLM.APIKey != "" {
		llmClient := openai.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLMTimeout())
		intents = llm.NewService(llmClient, cfg.LLM.Model, cfg.LLMTimeout(), intentCache, cfg.LLMCacheTTL(), logger)
	} else {
		logger.Warn().Msg("ключ LLM не задан, используется эвристический разбор команд")
		intents = llm.NewSimple()
	}
	transport := telegram.NewTransport(botAPI, logger)
	processor := bot.NewProcessor(botAPI, logger, intents, scheduleService, transport)

	metrics.MustRegister(prometheus.DefaultRegisterer)
	metrics.StartServer(ctx, logger, cfg.MetricsAddr)

	logger.Info().Msg("воркер команд запущен")
	for {
		job, ack, err := jobs.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				break
			}
			logger.Error().Err(err).Msg("ошибка чтения из очереди")
			continue
		}
		processor.Process(ctx, job)
		if aerr := ack(true); aerr != nil {
			logger.Error().Err(aerr).Str("job", job.ID).Msg("не удалось подтвердить задачу")
		}
	}
	logger.Info().Msg("остановка воркера")
}
