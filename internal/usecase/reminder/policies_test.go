package reminder

import (
	"testing"
	"time"

	"tg-meds-bot/internal/domain"
)

const msk = "+03:00"

// at возвращает момент UTC, которому в поясе +03:00 соответствует
// локальное время hour:min тех же суток 2026-08-29.
func at(hour, min int) time.Time {
	return time.Date(2026, 8, 29, hour, min, 0, 0, time.UTC).Add(-3 * time.Hour)
}

func med(clock string) domain.Medication {
	return domain.Medication{ID: 1, Name: "аспирин", Dosage: "200 мг", Time: clock}
}

func TestShouldNotifyWindow(t *testing.T) {
	poll := time.Minute
	m := med("11:00")

	cases := []struct {
		hour, min int
		want      bool
	}{
		{10, 59, false},
		{11, 0, true},
		{11, 1, true},
		{11, 2, false},
		{19, 0, false},
	}
	for _, tc := range cases {
		if got := ShouldNotify(m, msk, at(tc.hour, tc.min), poll); got != tc.want {
			t.Fatalf("в %02d:%02d ожидали %v, получили %v", tc.hour, tc.min, tc.want, got)
		}
	}
}

func TestShouldNotifySuppressedAfterSend(t *testing.T) {
	m := med("11:00")
	sent := at(11, 0)
	m.LastReminderSentAt = &sent
	if ShouldNotify(m, msk, at(11, 1), time.Minute) {
		t.Fatal("после отправки уведомление не должно повторяться на следующих тиках")
	}
}

func TestShouldNotifySuppressedAfterAck(t *testing.T) {
	m := med("11:00")
	taken := at(9, 30)
	m.LastTakenAt = &taken
	if ShouldNotify(m, msk, at(11, 0), time.Minute) {
		t.Fatal("досрочно отмеченный приём не должен уведомляться")
	}
}

func TestShouldNotifyYesterdayStateIgnored(t *testing.T) {
	m := med("11:00")
	taken := at(11, 0).Add(-24 * time.Hour)
	sent := taken
	m.LastTakenAt = &taken
	m.LastReminderSentAt = &sent
	if !ShouldNotify(m, msk, at(11, 0), time.Minute) {
		t.Fatal("вчерашние отметки не должны гасить сегодняшнее уведомление")
	}
}

func TestShouldRepeatInterval(t *testing.T) {
	m := med("11:00")
	messageID := 10
	sent := at(11, 0)
	m.ReminderMessageID = &messageID
	m.LastReminderSentAt = &sent

	if ShouldRepeat(m, msk, at(11, 1), time.Hour) {
		t.Fatal("повтор внутри интервала запрещён")
	}
	if ShouldRepeat(m, msk, at(11, 59), time.Hour) {
		t.Fatal("повтор внутри интервала запрещён")
	}
	if !ShouldRepeat(m, msk, at(12, 0), time.Hour) {
		t.Fatal("на границе интервала повтор обязан сработать")
	}

	// После повтора отсчёт идёт от новой отметки отправки.
	resent := at(12, 0)
	m.LastReminderSentAt = &resent
	if ShouldRepeat(m, msk, at(12, 30), time.Hour) {
		t.Fatal("после повтора интервал отсчитывается заново")
	}
}

func TestShouldRepeatRequiresOutstanding(t *testing.T) {
	m := med("11:00")
	sent := at(11, 0)
	m.LastReminderSentAt = &sent
	if ShouldRepeat(m, msk, at(13, 0), time.Hour) {
		t.Fatal("без висящего сообщения повторять нечего")
	}

	messageID := 10
	m.ReminderMessageID = &messageID
	taken := at(12, 0)
	m.LastTakenAt = &taken
	if ShouldRepeat(m, msk, at(13, 0), time.Hour) {
		t.Fatal("подтверждённый приём не должен напоминаться")
	}
}

func TestShouldRepeatMissingSentAt(t *testing.T) {
	m := med("11:00")
	messageID := 10
	m.ReminderMessageID = &messageID
	if !ShouldRepeat(m, msk, at(13, 0), time.Hour) {
		t.Fatal("сообщение без отметки отправки трактуется как давно висящее")
	}
}

func TestShouldRepeatIgnoresYesterdayMessage(t *testing.T) {
	m := med("11:00")
	messageID := 10
	sent := at(11, 0).Add(-24 * time.Hour)
	m.ReminderMessageID = &messageID
	m.LastReminderSentAt = &sent
	if ShouldRepeat(m, msk, at(9, 0), time.Hour) {
		t.Fatal("вчерашнее сообщение не повторяется в новых сутках")
	}
}

func TestShouldRecover(t *testing.T) {
	m := med("09:00")
	poll := time.Minute

	if ShouldRecover(m, msk, at(8, 30), poll) {
		t.Fatal("до назначенного времени догонять нечего")
	}
	if ShouldRecover(m, msk, at(9, 1), poll) {
		t.Fatal("окно своевременного срабатывания принадлежит ShouldNotify")
	}
	if !ShouldRecover(m, msk, at(13, 0), poll) {
		t.Fatal("пропущенное утреннее время должно догоняться днём")
	}

	sent := at(13, 0)
	m.LastReminderSentAt = &sent
	if ShouldRecover(m, msk, at(14, 0), poll) {
		t.Fatal("после любой сегодняшней отправки догон не нужен")
	}
}

func TestShouldRecoverSameDayOnly(t *testing.T) {
	m := med("23:50")
	next := at(0, 10).Add(24 * time.Hour)
	if ShouldRecover(m, msk, next, time.Minute) {
		t.Fatal("вчерашний пропуск не догоняется после местной полуночи")
	}
}

func TestNotifyAndRecoverExclusive(t *testing.T) {
	m := med("11:00")
	for minute := 0; minute < 24*60; minute++ {
		now := at(0, 0).Add(time.Duration(minute) * time.Minute)
		notify := ShouldNotify(m, msk, now, time.Minute)
		catchUp := ShouldRecover(m, msk, now, time.Minute)
		if notify && catchUp {
			t.Fatalf("минута %d: пути «вовремя» и «догоняя» сработали одновременно", minute)
		}
	}
}

func TestSupersededBy(t *testing.T) {
	messageID := 10
	sent := at(13, 0)
	user := domain.User{
		ID:        42,
		UTCOffset: msk,
		Medications: []domain.Medication{
			{ID: 1, Name: "героин", Time: "13:00", ReminderMessageID: &messageID, LastReminderSentAt: &sent},
			{ID: 2, Name: "Героин", Time: "15:00"},
			{ID: 3, Name: "аспирин", Time: "13:00", ReminderMessageID: &messageID, LastReminderSentAt: &sent},
		},
	}
	firing := user.Medications[1]

	superseded := SupersededBy(user, firing, at(15, 0))
	if len(superseded) != 1 || superseded[0].ID != 1 {
		t.Fatalf("ожидали закрытие только висящей дозы того же препарата, получили %+v", superseded)
	}
}

func TestSupersededBySkipsAcked(t *testing.T) {
	messageID := 10
	sent := at(13, 0)
	taken := at(13, 5)
	user := domain.User{
		ID:        42,
		UTCOffset: msk,
		Medications: []domain.Medication{
			{ID: 1, Name: "героин", Time: "13:00", LastReminderSentAt: &sent, LastTakenAt: &taken, ReminderMessageID: &messageID},
			{ID: 2, Name: "героин", Time: "15:00"},
		},
	}
	if got := SupersededBy(user, user.Medications[1], at(15, 0)); len(got) != 0 {
		t.Fatalf("подтверждённая доза не закрывается повторно: %+v", got)
	}
}

func TestSupersededByClosesAllOutstanding(t *testing.T) {
	id1, id2 := 10, 11
	sent1, sent2 := at(9, 0), at(13, 0)
	user := domain.User{
		ID:        42,
		UTCOffset: msk,
		Medications: []domain.Medication{
			{ID: 1, Name: "героин", Time: "09:00", ReminderMessageID: &id1, LastReminderSentAt: &sent1},
			{ID: 2, Name: "героин", Time: "13:00", ReminderMessageID: &id2, LastReminderSentAt: &sent2},
			{ID: 3, Name: "героин", Time: "15:00"},
		},
	}
	got := SupersededBy(user, user.Medications[2], at(15, 0))
	if len(got) != 2 {
		t.Fatalf("должны закрыться обе висящие дозы, получили %d", len(got))
	}
}

func TestReminderText(t *testing.T) {
	m := med("11:00")
	if got := ReminderText(m, false); got != "Надо принять:\nАспирин (200 мг)" {
		t.Fatalf("неожиданный текст: %q", got)
	}
	if got := ReminderText(m, true); got != "Надо принять (пропущено):\nАспирин (200 мг)" {
		t.Fatalf("неожиданный текст: %q", got)
	}
	m.Dosage = ""
	if got := RepeatText(m); got != "Напоминание:\nАспирин" {
		t.Fatalf("неожиданный текст: %q", got)
	}
}

func TestStateDerivation(t *testing.T) {
	m := med("11:00")
	if got := State(m, msk, at(10, 0), time.Hour); got != StatePending {
		t.Fatalf("до времени приёма ожидали PENDING, получили %s", got)
	}
	if got := State(m, msk, at(11, 30), time.Hour); got != StateDue {
		t.Fatalf("после времени без отправки ожидали DUE, получили %s", got)
	}

	messageID := 10
	sent := at(11, 0)
	m.ReminderMessageID = &messageID
	m.LastReminderSentAt = &sent
	if got := State(m, msk, at(11, 30), time.Hour); got != StateNotified {
		t.Fatalf("после отправки ожидали NOTIFIED, получили %s", got)
	}
	if got := State(m, msk, at(12, 30), time.Hour); got != StateRepeating {
		t.Fatalf("по истечении интервала ожидали REPEATING, получили %s", got)
	}

	taken := at(12, 40)
	m.LastTakenAt = &taken
	if got := State(m, msk, at(12, 45), time.Hour); got != StateTaken {
		t.Fatalf("после подтверждения ожидали TAKEN, получили %s", got)
	}
}
