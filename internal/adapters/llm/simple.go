package llm

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"tg-meds-bot/internal/domain"
)

// Simple реализует доменный интерфейс IntentService эвристикой: ключевые
// слова и регулярные выражения вместо LLM. Используется в тестах и при
// запуске без ключа API. Понимает заметно меньше формулировок, чем модель,
// но ведёт себя детерминированно.
type Simple struct{}

// NewSimple создаёт эвристический разборщик команд.
func NewSimple() *Simple {
	return &Simple{}
}

var _ domain.IntentService = (*Simple)(nil)

var (
	clockRe  = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	dosageRe = regexp.MustCompile(`\d+(?:[.,]\d+)?\s*(?:мг|мкг|г|мл|таблетк\w*|капсул\w*|капл\w*|ед\.?)`)
	offsetRe = regexp.MustCompile(`[+-]\d{1,2}(?::\d{2})?`)
)

// dayParts переводит слова времени суток в часы приёма.
var dayParts = map[string]string{
	"утром":   "09:00",
	"днем":    "14:00",
	"днём":    "14:00",
	"вечером": "20:00",
	"на ночь": "22:00",
}

// cityOffsets покрывает города, которые называют чаще всего.
var cityOffsets = map[string]string{
	"калининград":     "+02:00",
	"москва":          "+03:00",
	"москве":          "+03:00",
	"санкт-петербург": "+03:00",
	"питер":           "+03:00",
	"самара":          "+04:00",
	"екатеринбург":    "+05:00",
	"омск":            "+06:00",
	"новосибирск":     "+07:00",
	"красноярск":      "+07:00",
	"иркутск":         "+08:00",
	"якутск":          "+09:00",
	"владивосток":     "+10:00",
}

// Classify определяет тип команды по ключевым словам.
func (s *Simple) Classify(_ context.Context, text string) (domain.Intent, error) {
	t := strings.ToLower(strings.TrimSpace(text))
	switch {
	case t == "":
		return domain.IntentUnknown, nil
	case containsAny(t, "/help", "помощь", "что ты умеешь", "как пользоваться"):
		return domain.IntentHelp, nil
	case containsAny(t, "/list", "список", "расписание", "что я принимаю"):
		return domain.IntentList, nil
	case containsAny(t, "часовой пояс", "таймзон", "timezone") || strings.Contains(t, "пояс"):
		return domain.IntentTimezoneChange, nil
	case containsAny(t, "дозировк", "дозу"):
		return domain.IntentDoseChange, nil
	case containsAny(t, "удали", "убери", "больше не принимаю"):
		return domain.IntentDelete, nil
	case containsAny(t, "перенеси", "измени время", "поменяй время", "вместо"):
		return domain.IntentTimeChange, nil
	case containsAny(t, "принял", "приняла", "выпил", "выпила", "готово"):
		return domain.IntentDone, nil
	case containsAny(t, "добавь", "напоминай", "принимать", "пить") ||
		(clockRe.MatchString(t) && len(strings.Fields(t)) <= 6):
		return domain.IntentAdd, nil
	default:
		return domain.IntentUnknown, nil
	}
}

// ParseAdd извлекает название, дозировку и времена приёма. Названием
// считается первое слово, не являющееся служебным, временем или числом.
func (s *Simple) ParseAdd(_ context.Context, text string) ([]domain.ParsedMedication, error) {
	t := strings.ToLower(strings.TrimSpace(text))
	times := extractTimes(t)
	if len(times) == 0 {
		return nil, nil
	}
	name := extractName(t)
	if name == "" {
		return nil, nil
	}
	dosage := strings.TrimSpace(dosageRe.FindString(t))
	return []domain.ParsedMedication{{Name: name, Dosage: dosage, Times: times}}, nil
}

// ParseDone находит в тексте названия из расписания.
func (s *Simple) ParseDone(_ context.Context, text string, schedule []domain.Medication) (domain.Selection, error) {
	return selectByName(text, schedule, nil, ""), nil
}

// ParseDelete находит в тексте названия из расписания.
func (s *Simple) ParseDelete(_ context.Context, text string, schedule []domain.Medication) (domain.Selection, error) {
	return selectByName(text, schedule, nil, ""), nil
}

// ParseTimeChange находит препарат и новые времена приёма.
func (s *Simple) ParseTimeChange(_ context.Context, text string, schedule []domain.Medication) (domain.Selection, error) {
	times := extractTimes(strings.ToLower(text))
	if len(times) == 0 {
		return domain.Selection{
			Status:  domain.SelectionClarification,
			Message: "Укажите новое время приёма в формате ЧЧ:ММ.",
		}, nil
	}
	return selectByName(text, schedule, times, ""), nil
}

// ParseDoseChange находит препарат и новую дозировку.
func (s *Simple) ParseDoseChange(_ context.Context, text string, schedule []domain.Medication) (domain.Selection, error) {
	dosage := strings.TrimSpace(dosageRe.FindString(strings.ToLower(text)))
	if dosage == "" {
		return domain.Selection{
			Status:  domain.SelectionClarification,
			Message: "Укажите новую дозировку, например: 200 мг.",
		}, nil
	}
	return selectByName(text, schedule, nil, dosage), nil
}

// ParseTimezone распознаёт смещение вида +05:00 или название города.
func (s *Simple) ParseTimezone(_ context.Context, text string) (domain.TimezoneChange, error) {
	t := strings.ToLower(strings.TrimSpace(text))
	if raw := offsetRe.FindString(t); raw != "" {
		offset, err := normalizeOffset(raw)
		if err == nil {
			return domain.TimezoneChange{Status: domain.SelectionSuccess, Offset: offset}, nil
		}
	}
	for city, offset := range cityOffsets {
		if strings.Contains(t, city) {
			return domain.TimezoneChange{Status: domain.SelectionSuccess, Offset: offset, City: city}, nil
		}
	}
	return domain.TimezoneChange{
		Status:  domain.SelectionClarification,
		Message: "Укажите смещение от UTC, например: +03:00.",
	}, nil
}

func selectByName(text string, schedule []domain.Medication, newTimes []string, newDosage string) domain.Selection {
	t := strings.ToLower(text)
	var ids []int64
	var name string
	for _, m := range schedule {
		if strings.Contains(t, strings.ToLower(m.Name)) {
			ids = append(ids, m.ID)
			name = m.Name
		}
	}
	// При единственном препарате в расписании уточнять нечего.
	if len(ids) == 0 && len(schedule) == 1 {
		ids = []int64{schedule[0].ID}
		name = schedule[0].Name
	}
	if len(ids) == 0 {
		return domain.Selection{Status: domain.SelectionNotFound}
	}
	return domain.Selection{
		Status:        domain.SelectionSuccess,
		Name:          name,
		MedicationIDs: ids,
		NewTimes:      newTimes,
		NewDosage:     newDosage,
	}
}

func extractTimes(t string) []string {
	seen := map[string]struct{}{}
	var times []string
	add := func(clock string) {
		normalized, err := domain.NormalizeClock(clock)
		if err != nil {
			return
		}
		if _, ok := seen[normalized]; ok {
			return
		}
		seen[normalized] = struct{}{}
		times = append(times, normalized)
	}
	for _, m := range clockRe.FindAllString(t, -1) {
		add(m)
	}
	for part, clock := range dayParts {
		if strings.Contains(t, part) {
			add(clock)
		}
	}
	return times
}

// stopWords не могут быть названием препарата.
var stopWords = map[string]struct{}{
	"добавь": {}, "добавить": {}, "напоминай": {}, "напоминать": {},
	"принимать": {}, "принимаю": {}, "пить": {}, "мне": {}, "про": {},
	"в": {}, "и": {}, "по": {}, "на": {}, "ночь": {}, "каждый": {},
	"день": {}, "утром": {}, "днем": {}, "днём": {}, "вечером": {},
	"мг": {}, "мкг": {}, "г": {}, "мл": {},
}

func extractName(t string) string {
	for _, word := range strings.Fields(t) {
		word = strings.Trim(word, ".,!?;")
		if word == "" {
			continue
		}
		if _, ok := stopWords[word]; ok {
			continue
		}
		if clockRe.MatchString(word) {
			continue
		}
		if _, err := strconv.Atoi(word); err == nil {
			continue
		}
		if strings.HasPrefix(word, "таблетк") || strings.HasPrefix(word, "капсул") {
			continue
		}
		return word
	}
	return ""
}

func normalizeOffset(raw string) (string, error) {
	sign := raw[:1]
	rest := raw[1:]
	hh, mm := rest, "00"
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		hh, mm = rest[:i], rest[i+1:]
	}
	if len(hh) == 1 {
		hh = "0" + hh
	}
	offset := sign + hh + ":" + mm
	if _, err := domain.ParseUTCOffset(offset); err != nil {
		return "", err
	}
	return offset, nil
}

func containsAny(t string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(t, sub) {
			return true
		}
	}
	return false
}
