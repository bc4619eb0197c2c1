package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	Telegram struct {
		Token      string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL string `envconfig:"TG_WEBHOOK_URL"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	AMQPURL string `envconfig:"AMQP_URL"`

	LLM struct {
		APIKey          string `envconfig:"LLM_API_KEY"`
		BaseURL         string `envconfig:"LLM_BASE_URL"`
		Model           string `envconfig:"LLM_MODEL" default:"gpt-4.1-mini"`
		TimeoutSeconds  int    `envconfig:"LLM_TIMEOUT_SECONDS" default:"30"`
		CacheTTLSeconds int    `envconfig:"LLM_CACHE_TTL_SECONDS" default:"600"`
	} `envconfig:""`

	Scheduler struct {
		PollIntervalSeconds int `envconfig:"POLL_INTERVAL_SECONDS" default:"60"`
		RepeatIntervalHours int `envconfig:"REMINDER_REPEAT_INTERVAL_HOURS" default:"1"`
		CallTimeoutSeconds  int `envconfig:"CALL_TIMEOUT_SECONDS" default:"10"`
	} `envconfig:""`

	DefaultTZOffset string `envconfig:"DEFAULT_TZ_OFFSET" default:"+03:00"`

	Queues struct {
		Commands string `envconfig:"COMMAND_QUEUE_KEY" default:"command_jobs"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// PollInterval возвращает интервал опроса планировщика.
func (c AppConfig) PollInterval() time.Duration {
	return time.Duration(c.Scheduler.PollIntervalSeconds) * time.Second
}

// RepeatInterval возвращает интервал повторных напоминаний.
func (c AppConfig) RepeatInterval() time.Duration {
	return time.Duration(c.Scheduler.RepeatIntervalHours) * time.Hour
}

// CallTimeout возвращает таймаут одного внешнего вызова.
func (c AppConfig) CallTimeout() time.Duration {
	return time.Duration(c.Scheduler.CallTimeoutSeconds) * time.Second
}

// LLMTimeout возвращает таймаут запроса к LLM.
func (c AppConfig) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// LLMCacheTTL возвращает срок жизни кэша ответов LLM.
func (c AppConfig) LLMCacheTTL() time.Duration {
	return time.Duration(c.LLM.CacheTTLSeconds) * time.Second
}
