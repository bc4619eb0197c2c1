package reminder

import (
	"time"

	"tg-meds-bot/internal/domain"
)

// Состояние приёма на (медикамент, локальный день). Нигде не хранится:
// выводится на каждом тике из сохранённых отметок времени.
const (
	StatePending    = "PENDING"
	StateDue        = "DUE"
	StateNotified   = "NOTIFIED"
	StateRepeating  = "REPEATING"
	StateTaken      = "TAKEN"
	StateSuperseded = "SUPERSEDED"
)

func minutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// takenToday сообщает, подтверждён ли приём в текущих локальных сутках.
func takenToday(med domain.Medication, offset string, now time.Time) bool {
	return med.LastTakenAt != nil && domain.SameLocalDay(offset, *med.LastTakenAt, now)
}

// notifiedToday сообщает, уходило ли сегодня хоть одно уведомление.
func notifiedToday(med domain.Medication, offset string, now time.Time) bool {
	return med.LastReminderSentAt != nil && domain.SameLocalDay(offset, *med.LastReminderSentAt, now)
}

// outstandingToday сообщает, висит ли неподтверждённое сегодняшнее напоминание.
// Запись без отметки отправки, но с сообщением считается висящей: так ведёт
// себя состояние, недописанное из-за сбоя между отправкой и сохранением.
func outstandingToday(med domain.Medication, offset string, now time.Time) bool {
	if med.ReminderMessageID == nil || takenToday(med, offset, now) {
		return false
	}
	if med.LastReminderSentAt == nil {
		return true
	}
	return notifiedToday(med, offset, now)
}

// graceMinutes переводит интервал опроса в ширину окна своевременного
// срабатывания, минимум одна минута.
func graceMinutes(poll time.Duration) int {
	minutes := int((poll + time.Minute - 1) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

// State возвращает выведенное состояние приёма; используется в журналах и тестах.
func State(med domain.Medication, offset string, now time.Time, repeatInterval time.Duration) string {
	if takenToday(med, offset, now) {
		return StateTaken
	}
	if notifiedToday(med, offset, now) || med.ReminderMessageID != nil && outstandingToday(med, offset, now) {
		if ShouldRepeat(med, offset, now, repeatInterval) {
			return StateRepeating
		}
		return StateNotified
	}
	local, err := domain.LocalTime(offset, now)
	if err != nil {
		return StatePending
	}
	sched, err := domain.ParseClock(med.Time)
	if err != nil {
		return StatePending
	}
	if minutesOfDay(local) >= sched {
		return StateDue
	}
	return StatePending
}
