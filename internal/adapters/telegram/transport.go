package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-meds-bot/internal/domain"
	"tg-meds-bot/internal/infra/metrics"
)

// Transport отправляет напоминания через Bot API. К каждому напоминанию
// прикрепляется кнопка отметки приёма с callback-данными "taken:{id}:{date}".
type Transport struct {
	bot *tgbotapi.BotAPI
	log zerolog.Logger
}

var _ domain.ReminderTransport = (*Transport)(nil)

// NewTransport создаёт транспорт напоминаний.
func NewTransport(bot *tgbotapi.BotAPI, log zerolog.Logger) *Transport {
	return &Transport{bot: bot, log: log}
}

// AckCallbackData кодирует callback-данные кнопки отметки приёма.
func AckCallbackData(ack domain.AckRef) string {
	return fmt.Sprintf("taken:%d:%s", ack.MedicationID, ack.Date)
}

// ParseAckCallback разбирает callback-данные кнопки. Второе значение
// false для данных чужого формата.
func ParseAckCallback(data string) (domain.AckRef, bool) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[0] != "taken" {
		return domain.AckRef{}, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return domain.AckRef{}, false
	}
	if _, err := time.Parse("2006-01-02", parts[2]); err != nil {
		return domain.AckRef{}, false
	}
	return domain.AckRef{MedicationID: id, Date: parts[2]}, true
}

func ackKeyboard(ack domain.AckRef) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Принял", AckCallbackData(ack)),
		),
	)
}

// SendReminder отправляет напоминание и возвращает идентификатор сообщения.
func (t *Transport) SendReminder(ctx context.Context, userID int64, text string, ack domain.AckRef) (int, error) {
	msg := tgbotapi.NewMessage(userID, text)
	msg.ReplyMarkup = ackKeyboard(ack)

	start := time.Now()
	sent, err := t.bot.Send(msg)
	metrics.ObserveNetworkRequest("telegram_bot", "send_reminder", strconv.FormatInt(userID, 10), start, err)
	if err != nil {
		return 0, fmt.Errorf("отправка напоминания: %w", err)
	}
	return sent.MessageID, nil
}

// EditReminder меняет текст существующего напоминания, сохраняя кнопку.
func (t *Transport) EditReminder(ctx context.Context, userID int64, messageID int, text string, ack domain.AckRef) error {
	keyboard := ackKeyboard(ack)
	edit := tgbotapi.NewEditMessageTextAndMarkup(userID, messageID, text, keyboard)

	start := time.Now()
	_, err := t.bot.Request(edit)
	metrics.ObserveNetworkRequest("telegram_bot", "edit_reminder", strconv.FormatInt(userID, 10), start, err)
	if err != nil {
		return fmt.Errorf("редактирование напоминания: %w", err)
	}
	return nil
}

// DeleteReminder удаляет сообщение с напоминанием.
func (t *Transport) DeleteReminder(ctx context.Context, userID int64, messageID int) error {
	del := tgbotapi.NewDeleteMessage(userID, messageID)

	start := time.Now()
	_, err := t.bot.Request(del)
	metrics.ObserveNetworkRequest("telegram_bot", "delete_reminder", strconv.FormatInt(userID, 10), start, err)
	if err != nil {
		return fmt.Errorf("удаление напоминания: %w", err)
	}
	return nil
}
