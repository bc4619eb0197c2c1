package reminder

import (
	"time"

	"tg-meds-bot/internal/domain"
)

// ShouldNotify решает, наступило ли «сейчас» время сегодняшнего приёма.
//
// Срабатывание по фронту, а не по уровню: сравнение «больше или равно»
// ограничено окном в один интервал опроса после назначенной минуты, поэтому
// добавленный днём медикамент с утренним временем не получит уведомление
// немедленно, а тики после назначенной минуты не срабатывают повторно.
// Приём, чьё время прошло дальше этого окна без единой отправки, закрывает
// ShouldRecover, и только он: пути «вовремя» и «догоняя» взаимоисключающие.
func ShouldNotify(med domain.Medication, offset string, now time.Time, poll time.Duration) bool {
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
	delta := minutesOfDay(local) - sched
	return delta >= 0 && delta <= graceMinutes(poll)
}
