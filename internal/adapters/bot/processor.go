package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-meds-bot/internal/adapters/telegram"
	"tg-meds-bot/internal/domain"
	"tg-meds-bot/internal/infra/metrics"
	"tg-meds-bot/internal/usecase/schedule"
)

const helpText = "Привет! Я бот для управления приемом медикаментов.\n\n" +
	"Пишите мне обычным текстом, например:\n" +
	"• «добавь аспирин 200 мг в 9 утра и в 21:00»\n" +
	"• «принял аспирин»\n" +
	"• «удали аспирин»\n" +
	"• «перенеси аспирин на 10:00»\n" +
	"• «покажи расписание»\n\n" +
	"Для начала укажите ваш часовой пояс, например: «моя часовая зона Москва»."

// Processor исполняет команды из очереди: распознаёт намерение через LLM,
// меняет расписание и отвечает пользователю.
type Processor struct {
	bot        *tgbotapi.BotAPI
	log        zerolog.Logger
	intents    domain.IntentService
	scheduleUC *schedule.Service
	transport  domain.ReminderTransport
}

// NewProcessor создаёт обработчик команд.
func NewProcessor(bot *tgbotapi.BotAPI, log zerolog.Logger, intents domain.IntentService, scheduleUC *schedule.Service, transport domain.ReminderTransport) *Processor {
	return &Processor{bot: bot, log: log, intents: intents, scheduleUC: scheduleUC, transport: transport}
}

// Process выполняет одну команду и отвечает в чат. Ошибки исполнения
// не возвращаются наружу: пользователь в любом случае получает ответ,
// поэтому задача из очереди считается обработанной.
func (p *Processor) Process(ctx context.Context, job domain.CommandJob) {
	reply, err := p.execute(ctx, job)
	if err != nil {
		p.log.Error().Err(err).Str("job", job.ID).Int64("user", job.UserID).Msg("ошибка обработки команды")
		reply = "Произошла ошибка при обработке команды. Попробуйте еще раз."
	}

	if job.ThinkingMessageID != 0 {
		del := tgbotapi.NewDeleteMessage(job.ChatID, job.ThinkingMessageID)
		if _, derr := p.bot.Request(del); derr != nil {
			p.log.Debug().Err(derr).Msg("не удалось удалить промежуточное сообщение")
		}
	}
	p.reply(job.ChatID, reply)
}

// execute разбирает команду и возвращает текст ответа.
func (p *Processor) execute(ctx context.Context, job domain.CommandJob) (string, error) {
	if _, err := p.scheduleUC.EnsureUser(ctx, job.UserID); err != nil {
		return "", err
	}

	intent, err := p.intents.Classify(ctx, job.Text)
	if err != nil {
		return "", fmt.Errorf("классификация команды: %w", err)
	}
	metrics.IncCommandJob(string(intent))
	p.log.Info().Str("job", job.ID).Int64("user", job.UserID).Str("intent", string(intent)).Msg("команда распознана")

	switch intent {
	case domain.IntentAdd:
		return p.executeAdd(ctx, job)
	case domain.IntentDone:
		return p.executeDone(ctx, job)
	case domain.IntentDelete:
		return p.executeDelete(ctx, job)
	case domain.IntentTimeChange:
		return p.executeTimeChange(ctx, job)
	case domain.IntentDoseChange:
		return p.executeDoseChange(ctx, job)
	case domain.IntentTimezoneChange:
		return p.executeTimezone(ctx, job)
	case domain.IntentList:
		return p.executeList(ctx, job)
	case domain.IntentHelp:
		return helpText, nil
	default:
		return "Не удалось распознать команду. Попробуйте переформулировать.", nil
	}
}

func (p *Processor) executeAdd(ctx context.Context, job domain.CommandJob) (string, error) {
	items, err := p.intents.ParseAdd(ctx, job.Text)
	if err != nil {
		return "", fmt.Errorf("разбор команды добавления: %w", err)
	}
	if len(items) == 0 {
		return "Не удалось распознать название медикамента или время приема. Попробуйте переформулировать.", nil
	}
	result, err := p.scheduleUC.AddMedications(ctx, job.UserID, items)
	if errors.Is(err, schedule.ErrNoTimes) {
		return "Не удалось распознать название медикамента или время приема. Попробуйте переформулировать.", nil
	}
	if err != nil {
		return "", err
	}

	var lines []string
	if len(result.Added) > 0 {
		if len(result.Added) == 1 {
			lines = append(lines, "Добавлено: "+describeMedication(result.Added[0]))
		} else {
			lines = append(lines, "Добавлено:")
			for _, m := range result.Added {
				lines = append(lines, "• "+describeMedication(m))
			}
		}
	}
	for _, m := range result.Duplicates {
		lines = append(lines, fmt.Sprintf("%s в %s уже есть в расписании.", capitalize(m.Name), m.Time))
	}
	if len(lines) == 0 {
		return "Все эти медикаменты уже есть в расписании.", nil
	}
	return strings.Join(lines, "\n"), nil
}

func (p *Processor) executeDone(ctx context.Context, job domain.CommandJob) (string, error) {
	meds, _, reply, err := p.selectMedications(ctx, job, p.intents.ParseDone)
	if reply != "" || err != nil {
		return reply, err
	}
	marked, err := p.scheduleUC.MarkTakenByIDs(ctx, job.UserID, medicationIDs(meds))
	if errors.Is(err, domain.ErrMedicationNotFound) {
		return "Не удалось найти указанный медикамент в вашем расписании.", nil
	}
	if err != nil {
		return "", err
	}
	p.removeReminders(ctx, job.UserID, marked)
	return "Отмечено как принято ✓", nil
}

func (p *Processor) executeDelete(ctx context.Context, job domain.CommandJob) (string, error) {
	meds, _, reply, err := p.selectMedications(ctx, job, p.intents.ParseDelete)
	if reply != "" || err != nil {
		return reply, err
	}
	removed, err := p.scheduleUC.DeleteMedications(ctx, job.UserID, medicationIDs(meds))
	if errors.Is(err, domain.ErrMedicationNotFound) {
		return "У вас нет такого медикамента в расписании.", nil
	}
	if err != nil {
		return "", err
	}
	p.removeReminders(ctx, job.UserID, removed)
	if len(removed) == 1 {
		return "Медикамент удален из расписания.", nil
	}
	return fmt.Sprintf("Удалено медикаментов: %d", len(removed)), nil
}

func (p *Processor) executeTimeChange(ctx context.Context, job domain.CommandJob) (string, error) {
	meds, sel, reply, err := p.selectMedications(ctx, job, p.intents.ParseTimeChange)
	if reply != "" || err != nil {
		return reply, err
	}
	if len(sel.NewTimes) == 0 {
		return "Не удалось определить медикамент или новое время. Попробуйте переформулировать.", nil
	}
	var applied []string
	for _, m := range meds {
		times, err := p.scheduleUC.ChangeTime(ctx, job.UserID, m.ID, sel.NewTimes)
		if errors.Is(err, domain.ErrMedicationNotFound) || errors.Is(err, domain.ErrInvalidClock) {
			continue
		}
		if err != nil {
			return "", err
		}
		applied = times
	}
	if len(applied) == 0 {
		return "Не удалось определить медикамент или новое время. Попробуйте переформулировать.", nil
	}
	return "Время приема изменено на " + strings.Join(applied, " и "), nil
}

func (p *Processor) executeDoseChange(ctx context.Context, job domain.CommandJob) (string, error) {
	meds, sel, reply, err := p.selectMedications(ctx, job, p.intents.ParseDoseChange)
	if reply != "" || err != nil {
		return reply, err
	}
	dosage := strings.TrimSpace(sel.NewDosage)
	if dosage == "" {
		return "Не удалось определить медикамент или новую дозировку. Попробуйте переформулировать.", nil
	}
	changed := false
	for _, m := range meds {
		err := p.scheduleUC.ChangeDosage(ctx, job.UserID, m.ID, dosage)
		if errors.Is(err, domain.ErrMedicationNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		changed = true
	}
	if !changed {
		return "Не удалось найти указанный медикамент в вашем расписании.", nil
	}
	return "Дозировка изменена на " + dosage, nil
}

func (p *Processor) executeTimezone(ctx context.Context, job domain.CommandJob) (string, error) {
	tz, err := p.intents.ParseTimezone(ctx, job.Text)
	if err != nil {
		return "", fmt.Errorf("разбор часового пояса: %w", err)
	}
	if tz.Status != domain.SelectionSuccess || tz.Offset == "" {
		if tz.Message != "" {
			return tz.Message, nil
		}
		return "Не удалось определить часовой пояс. Попробуйте переформулировать.", nil
	}
	err = p.scheduleUC.ChangeTimezone(ctx, job.UserID, tz.Offset)
	if errors.Is(err, schedule.ErrInvalidTimezone) {
		return "Не удалось определить часовой пояс. Попробуйте переформулировать.", nil
	}
	if err != nil {
		return "", err
	}
	return "Часовой пояс изменен на " + tz.Offset, nil
}

func (p *Processor) executeList(ctx context.Context, job domain.CommandJob) (string, error) {
	meds, err := p.scheduleUC.ListSchedule(ctx, job.UserID)
	if err != nil {
		return "", err
	}
	return FormatSchedule(meds), nil
}

type selectionParser func(ctx context.Context, text string, schedule []domain.Medication) (domain.Selection, error)

// selectMedications выполняет общий для done/delete/time_change/dose_change
// разбор: получает расписание, спрашивает LLM и сверяет её ответ с настоящими
// записями. Непустой reply означает готовый ответ пользователю без изменений.
func (p *Processor) selectMedications(ctx context.Context, job domain.CommandJob, parse selectionParser) ([]domain.Medication, domain.Selection, string, error) {
	meds, err := p.scheduleUC.ListSchedule(ctx, job.UserID)
	if err != nil {
		return nil, domain.Selection{}, "", err
	}
	if len(meds) == 0 {
		return nil, domain.Selection{}, "У вас нет медикаментов в расписании.", nil
	}
	sel, err := parse(ctx, job.Text, meds)
	if err != nil {
		return nil, domain.Selection{}, "", fmt.Errorf("разбор команды: %w", err)
	}
	switch sel.Status {
	case domain.SelectionClarification:
		msg := sel.Message
		if msg == "" {
			msg = "Уточните, пожалуйста, о каком медикаменте идет речь."
		}
		return nil, sel, msg, nil
	case domain.SelectionNotFound:
		return nil, sel, "Не удалось найти указанный медикамент в вашем расписании.", nil
	}
	matched := resolveMedications(meds, sel)
	if len(matched) == 0 {
		return nil, sel, "Не удалось найти указанный медикамент в вашем расписании.", nil
	}
	return matched, sel, "", nil
}

// resolveMedications сверяет ответ LLM с расписанием. Идентификаторы из
// ответа считаются недоверенным вводом: берутся только существующие,
// а при пустом пересечении записи ищутся по названию.
func resolveMedications(meds []domain.Medication, sel domain.Selection) []domain.Medication {
	byID := make(map[int64]domain.Medication, len(meds))
	for _, m := range meds {
		byID[m.ID] = m
	}
	var matched []domain.Medication
	for _, id := range sel.MedicationIDs {
		if m, ok := byID[id]; ok {
			matched = append(matched, m)
		}
	}
	if len(matched) > 0 {
		return matched
	}
	name := strings.TrimSpace(sel.Name)
	if name == "" {
		return nil
	}
	for _, m := range meds {
		if strings.EqualFold(m.Name, name) {
			matched = append(matched, m)
		}
	}
	return matched
}

func medicationIDs(meds []domain.Medication) []int64 {
	ids := make([]int64, 0, len(meds))
	for _, m := range meds {
		ids = append(ids, m.ID)
	}
	return ids
}

// removeReminders убирает из чата висящие напоминания записей,
// которые отметили принятыми или удалили.
func (p *Processor) removeReminders(ctx context.Context, userID int64, meds []domain.Medication) {
	for _, m := range meds {
		if m.ReminderMessageID == nil {
			continue
		}
		if err := p.transport.DeleteReminder(ctx, userID, *m.ReminderMessageID); err != nil {
			p.log.Debug().Err(err).Int64("medication", m.ID).Msg("не удалось удалить напоминание")
		}
	}
}

// FormatSchedule группирует расписание по названию и дозировке.
func FormatSchedule(meds []domain.Medication) string {
	if len(meds) == 0 {
		return "У вас пока нет медикаментов в расписании."
	}
	type groupKey struct {
		name   string
		dosage string
	}
	order := make([]groupKey, 0, len(meds))
	times := make(map[groupKey][]string, len(meds))
	for _, m := range meds {
		key := groupKey{name: strings.ToLower(m.Name), dosage: m.Dosage}
		if _, ok := times[key]; !ok {
			order = append(order, key)
		}
		times[key] = append(times[key], m.Time)
	}

	lines := []string{"Вы принимаете:"}
	for i, key := range order {
		ts := times[key]
		sort.Strings(ts)
		line := fmt.Sprintf("%d) в %s — %s", i+1, strings.Join(ts, " и "), capitalize(key.name))
		if key.dosage != "" {
			line += " " + key.dosage
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func describeMedication(m domain.Medication) string {
	s := capitalize(m.Name)
	if m.Dosage != "" {
		s += " " + m.Dosage
	}
	return s + " в " + m.Time
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

func (p *Processor) reply(chatID int64, text string) {
	for _, part := range telegram.SplitMessage(text) {
		start := time.Now()
		_, err := p.bot.Send(tgbotapi.NewMessage(chatID, part))
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			p.log.Error().Err(err).Msg("не удалось отправить ответ")
			return
		}
	}
}
