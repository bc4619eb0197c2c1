package reminder

import (
	"time"

	"tg-meds-bot/internal/domain"
)

// ShouldRecover решает, надо ли отправить пропущенное уведомление: время
// приёма прошло сегодня дальше окна своевременного срабатывания, а ни одной
// отправки за сегодня не было (например, процесс лежал в назначенную минуту).
//
// Ограничено остатком текущих локальных суток: после местной полуночи дата
// сравнения меняется и вчерашний пропуск просто не виден. Расписание
// ежедневное, догонять прошлый день нечем.
func ShouldRecover(med domain.Medication, offset string, now time.Time, poll time.Duration) bool {
	if takenToday(med, offset, now) || notifiedToday(med, offset, now) {
		return false
	}
	local, err := domain.LocalTime(offset, now)
	if err != nil {
		return false
	}
	sched, err := domain.ParseClock(med.Time)
	if err != nil {
		return false
	}
	return minutesOfDay(local)-sched > graceMinutes(poll)
}
