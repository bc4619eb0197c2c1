package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-meds-bot/internal/adapters/telegram"
	"tg-meds-bot/internal/domain"
	"tg-meds-bot/internal/infra/metrics"
	"tg-meds-bot/internal/usecase/schedule"
)

// Telegram повторяет доставку апдейта, если вебхук не успел ответить;
// ключ дубликата живёт дольше любого разумного цикла ретраев.
const updateDedupeTTL = 10 * time.Minute

// Handler обслуживает вебхук бота. Свободный текст уходит в очередь команд
// и разбирается воркером, нажатия кнопок обрабатываются сразу.
type Handler struct {
	bot        *tgbotapi.BotAPI
	log        zerolog.Logger
	scheduleUC *schedule.Service
	jobs       domain.CommandQueue
	dedupe     domain.Cache
}

// NewHandler создаёт обработчик. Кэш дубликатов необязателен.
func NewHandler(bot *tgbotapi.BotAPI, log zerolog.Logger, scheduleUC *schedule.Service, jobs domain.CommandQueue, dedupe domain.Cache) *Handler {
	return &Handler{bot: bot, log: log, scheduleUC: scheduleUC, jobs: jobs, dedupe: dedupe}
}

// HandleUpdate обрабатывает входящий апдейт. Повторные доставки того же
// апдейта отсеиваются по его идентификатору.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	process := func() error {
		if upd.Message != nil {
			h.handleMessage(ctx, upd.Message)
		} else if upd.CallbackQuery != nil {
			h.handleCallback(ctx, upd.CallbackQuery)
		}
		return nil
	}
	if h.dedupe == nil {
		_ = process()
		return
	}
	key := "update:" + strconv.Itoa(upd.UpdateID)
	if err := h.dedupe.Once(key, updateDedupeTTL, process); err != nil {
		// Кэш недоступен: лучше обработать дубликат, чем потерять апдейт.
		h.log.Error().Err(err).Str("key", key).Msg("не удалось проверить дубликат апдейта")
		_ = process()
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	// Пользователь сразу видит, что бот занялся его сообщением.
	thinkingID := 0
	start := time.Now()
	thinking, err := h.bot.Send(tgbotapi.NewMessage(msg.Chat.ID, "думаю..."))
	metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(msg.Chat.ID, 10), start, err)
	if err != nil {
		h.log.Error().Err(err).Int64("chat", msg.Chat.ID).Msg("не удалось отправить промежуточное сообщение")
	} else {
		thinkingID = thinking.MessageID
	}

	job := domain.CommandJob{
		ID:                uuid.NewString(),
		UserID:            msg.From.ID,
		ChatID:            msg.Chat.ID,
		Text:              text,
		ThinkingMessageID: thinkingID,
		RequestedAt:       time.Now().UTC(),
	}
	if err := h.jobs.Enqueue(ctx, job); err != nil {
		h.log.Error().Err(err).Str("job", job.ID).Msg("не удалось поставить команду в очередь")
		h.reply(msg.Chat.ID, "Произошла ошибка при обработке команды. Попробуйте еще раз.")
	}
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	ack, ok := telegram.ParseAckCallback(cb.Data)
	if !ok {
		h.log.Warn().Str("data", cb.Data).Msg("callback неизвестного формата")
		h.answerCallback(cb.ID, "")
		return
	}
	med, err := h.scheduleUC.MarkTaken(ctx, cb.From.ID, ack)
	switch {
	case errors.Is(err, schedule.ErrStaleAck):
		h.answerCallback(cb.ID, "Напоминание устарело")
		return
	case errors.Is(err, domain.ErrMedicationNotFound):
		h.answerCallback(cb.ID, "Этого лекарства уже нет в расписании")
		return
	case err != nil:
		h.log.Error().Err(err).Int64("user", cb.From.ID).Msg("не удалось отметить приём")
		h.answerCallback(cb.ID, "Произошла ошибка, попробуйте еще раз")
		return
	}
	metrics.IncReminderAck()

	if cb.Message != nil {
		edit := tgbotapi.NewEditMessageText(cb.Message.Chat.ID, cb.Message.MessageID,
			cb.Message.Text+"\n\n✅ Принято")
		start := time.Now()
		_, err := h.bot.Request(edit)
		metrics.ObserveNetworkRequest("telegram_bot", "edit_message", strconv.FormatInt(cb.Message.Chat.ID, 10), start, err)
		if err != nil {
			h.log.Debug().Err(err).Msg("не удалось обновить сообщение напоминания")
		}
	}
	h.answerCallback(cb.ID, "Отмечено ✓")
	h.log.Info().Int64("user", cb.From.ID).Int64("medication", med.ID).Msg("приём подтверждён кнопкой")
}

func (h *Handler) answerCallback(id, text string) {
	if id == "" {
		return
	}
	if _, err := h.bot.Request(tgbotapi.NewCallback(id, text)); err != nil {
		h.log.Debug().Err(err).Msg("не удалось ответить на callback")
	}
}

func (h *Handler) reply(chatID int64, text string) {
	for _, part := range telegram.SplitMessage(text) {
		start := time.Now()
		_, err := h.bot.Send(tgbotapi.NewMessage(chatID, part))
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			h.log.Error().Err(err).Msg("не удалось отправить сообщение")
			return
		}
	}
}
