package reminder

import (
	"time"

	"tg-meds-bot/internal/domain"
)

// ShouldRepeat решает, пора ли повторить висящее напоминание.
//
// Вызывается на каждом тике, то есть намного чаще интервала повтора: внутри
// интервала возвращает false, на границе true, после чего оркестратор
// обновляет LastReminderSentAt и следующая граница отсчитывается от повтора.
// Запись без отметки отправки трактуется как «ещё не отправляли», а не как
// «только что отправили».
func ShouldRepeat(med domain.Medication, offset string, now time.Time, interval time.Duration) bool {
	if !outstandingToday(med, offset, now) {
		return false
	}
	if med.LastReminderSentAt == nil || med.LastReminderSentAt.IsZero() {
		return true
	}
	return now.Sub(*med.LastReminderSentAt) >= interval
}
