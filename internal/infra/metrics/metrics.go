package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	RemindersSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reminders_sent_total",
		Help: "Отправленные напоминания по видам: initial, repeat, missed",
	}, []string{"kind"})

	RemindersAckedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reminders_acked_total",
		Help: "Подтверждённые приёмы (кнопка или команда)",
	})

	DosesSupersededTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "doses_superseded_total",
		Help: "Дозы, автоматически закрытые приходом следующей",
	})

	SchedulerTickSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_tick_seconds",
		Help:    "Длительность полного прохода планировщика",
		Buckets: prometheus.DefBuckets,
	})

	SchedulerErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_errors_total",
		Help: "Ошибки планировщика по стадиям",
	}, []string{"stage"})

	CommandJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "command_jobs_total",
		Help: "Команды пользователей по распознанному типу",
	}, []string{"intent"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	LLMGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "Длительность генерации ответа LLM",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LLMTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Количество токенов, использованных LLM",
	}, []string{"model", "type"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		RemindersSentTotal,
		RemindersAckedTotal,
		DosesSupersededTotal,
		SchedulerTickSeconds,
		SchedulerErrorsTotal,
		CommandJobsTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
		LLMGenerationDuration,
		LLMTokensTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveLLMGeneration записывает длительность и токены генерации LLM.
func ObserveLLMGeneration(model string, duration time.Duration, promptTokens, completionTokens, totalTokens int) {
	if model == "" {
		model = "unknown"
	}
	LLMGenerationDuration.WithLabelValues(model).Observe(duration.Seconds())
	if promptTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
	if totalTokens <= 0 {
		totalTokens = promptTokens + completionTokens
	}
	if totalTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "total").Add(float64(totalTokens))
	}
}

// IncReminderSent увеличивает счётчик отправленных напоминаний.
func IncReminderSent(kind string) {
	RemindersSentTotal.WithLabelValues(kind).Inc()
}

// IncReminderAck увеличивает счётчик подтверждённых приёмов.
func IncReminderAck() {
	RemindersAckedTotal.Inc()
}

// IncDoseSuperseded увеличивает счётчик автоматически закрытых доз.
func IncDoseSuperseded() {
	DosesSupersededTotal.Inc()
}

// IncSchedulerError увеличивает счётчик ошибок планировщика.
func IncSchedulerError(stage string) {
	SchedulerErrorsTotal.WithLabelValues(stage).Inc()
}

// IncCommandJob увеличивает счётчик обработанных команд.
func IncCommandJob(intent string) {
	CommandJobsTotal.WithLabelValues(intent).Inc()
}
