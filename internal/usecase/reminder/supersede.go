package reminder

import (
	"time"

	"tg-meds-bot/internal/domain"
)

// SupersededBy возвращает приёмы того же препарата (имя без учёта регистра),
// чьи напоминания всё ещё висят к моменту срабатывания более поздней дозы
// firing. Каждый из них автоматически отмечается принятым: потребность в
// прошлой дозе снята приходом следующей. При нескольких висящих закрываются
// все, а не только ближайший.
func SupersededBy(user domain.User, firing domain.Medication, now time.Time) []domain.Medication {
	var out []domain.Medication
	for _, m := range user.SameName(firing.Name, firing.ID) {
		if outstandingToday(m, user.UTCOffset, now) {
			out = append(out, m)
		}
	}
	return out
}
