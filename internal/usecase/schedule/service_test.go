package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"tg-meds-bot/internal/domain"
)

type stubRepo struct {
	users map[int64]domain.User
}

func newStubRepo() *stubRepo { return &stubRepo{users: map[int64]domain.User{}} }

func (r *stubRepo) GetUser(_ context.Context, id int64) (domain.User, error) {
	user, ok := r.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (r *stubRepo) SaveUser(_ context.Context, user domain.User) error {
	r.users[user.ID] = user
	return nil
}

func (r *stubRepo) ListUserIDs(context.Context) ([]int64, error) {
	ids := make([]int64, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	return ids, nil
}

func newTestService(repo *stubRepo) *Service {
	svc := NewService(repo, "+03:00")
	svc.now = func() time.Time { return time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestEnsureUserCreatesWithDefaultOffset(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	user, err := svc.EnsureUser(context.Background(), 42)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if user.UTCOffset != "+03:00" {
		t.Fatalf("новый пользователь должен получить пояс по умолчанию, получили %s", user.UTCOffset)
	}
	if _, ok := repo.users[42]; !ok {
		t.Fatalf("пользователь должен сохраниться")
	}
}

func TestAddMedications(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	result, err := svc.AddMedications(context.Background(), 42, []domain.ParsedMedication{
		{Name: "Аспирин", Dosage: "200 мг", Times: []string{"9:00", "21:00"}},
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(result.Added) != 2 {
		t.Fatalf("ожидали 2 записи, получили %d", len(result.Added))
	}
	if result.Added[0].Name != "аспирин" || result.Added[0].Time != "09:00" {
		t.Fatalf("имя и время должны нормализоваться: %+v", result.Added[0])
	}
	if result.Added[0].ID == result.Added[1].ID {
		t.Fatalf("идентификаторы должны быть уникальны")
	}
}

func TestAddMedicationsDuplicateCaseInsensitive(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	if _, err := svc.AddMedications(context.Background(), 42, []domain.ParsedMedication{
		{Name: "героин", Times: []string{"13:00"}},
	}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	result, err := svc.AddMedications(context.Background(), 42, []domain.ParsedMedication{
		{Name: "Героин", Dosage: "другая дозировка", Times: []string{"13:00"}},
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(result.Added) != 0 || len(result.Duplicates) != 1 {
		t.Fatalf("пара имя-время уникальна независимо от регистра и дозировки: %+v", result)
	}
	if len(repo.users[42].Medications) != 1 {
		t.Fatalf("дубликат не должен записываться")
	}
}

func TestAddMedicationsNoValidTimes(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	_, err := svc.AddMedications(context.Background(), 42, []domain.ParsedMedication{
		{Name: "аспирин", Times: []string{"25:00", "ерунда"}},
	})
	if !errors.Is(err, ErrNoTimes) {
		t.Fatalf("ожидали ErrNoTimes, получили %v", err)
	}
}

func TestDeleteMedicationsUnknownID(t *testing.T) {
	repo := newStubRepo()
	repo.users[42] = domain.User{ID: 42, UTCOffset: "+03:00", Medications: []domain.Medication{
		{ID: 1, Name: "аспирин", Time: "09:00"},
	}}
	svc := newTestService(repo)

	_, err := svc.DeleteMedications(context.Background(), 42, []int64{999})
	if !errors.Is(err, domain.ErrMedicationNotFound) {
		t.Fatalf("ожидали ErrMedicationNotFound, получили %v", err)
	}
	if len(repo.users[42].Medications) != 1 {
		t.Fatalf("расписание не должно меняться")
	}
}

func TestDeleteMedicationsKeepsMessageRefs(t *testing.T) {
	messageID := 7
	repo := newStubRepo()
	repo.users[42] = domain.User{ID: 42, UTCOffset: "+03:00", Medications: []domain.Medication{
		{ID: 1, Name: "аспирин", Time: "09:00", ReminderMessageID: &messageID},
		{ID: 2, Name: "витамин д", Time: "10:00"},
	}}
	svc := newTestService(repo)

	removed, err := svc.DeleteMedications(context.Background(), 42, []int64{1})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(removed) != 1 || removed[0].ReminderMessageID == nil || *removed[0].ReminderMessageID != 7 {
		t.Fatalf("удалённая запись должна вернуться со ссылкой на сообщение: %+v", removed)
	}
	if len(repo.users[42].Medications) != 1 || repo.users[42].Medications[0].ID != 2 {
		t.Fatalf("должна остаться только вторая запись")
	}
}

func TestChangeTimeSingleResetsReminderState(t *testing.T) {
	messageID := 7
	sent := time.Now()
	repo := newStubRepo()
	repo.users[42] = domain.User{ID: 42, UTCOffset: "+03:00", Medications: []domain.Medication{
		{ID: 1, Name: "аспирин", Time: "09:00", ReminderMessageID: &messageID, LastReminderSentAt: &sent},
	}}
	svc := newTestService(repo)

	applied, err := svc.ChangeTime(context.Background(), 42, 1, []string{"10:30"})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(applied) != 1 || applied[0] != "10:30" {
		t.Fatalf("неожиданные времена: %v", applied)
	}
	med := repo.users[42].Medications[0]
	if med.Time != "10:30" || med.ReminderMessageID != nil || med.LastReminderSentAt != nil {
		t.Fatalf("смена времени должна сбрасывать состояние напоминаний: %+v", med)
	}
}

func TestChangeTimeMultipleSplitsEntry(t *testing.T) {
	repo := newStubRepo()
	repo.users[42] = domain.User{ID: 42, UTCOffset: "+03:00", Medications: []domain.Medication{
		{ID: 1, Name: "аспирин", Dosage: "200 мг", Time: "09:00"},
	}}
	svc := newTestService(repo)

	applied, err := svc.ChangeTime(context.Background(), 42, 1, []string{"10:00", "22:00"})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(applied) != 2 {
		t.Fatalf("ожидали 2 времени, получили %v", applied)
	}
	meds := repo.users[42].Medications
	if len(meds) != 2 {
		t.Fatalf("запись должна разделиться на две, получили %d", len(meds))
	}
	for _, m := range meds {
		if m.Name != "аспирин" || m.Dosage != "200 мг" {
			t.Fatalf("название и дозировка должны сохраниться: %+v", m)
		}
	}
}

func TestChangeTimezoneInvalid(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	err := svc.ChangeTimezone(context.Background(), 42, "Москва")
	if !errors.Is(err, ErrInvalidTimezone) {
		t.Fatalf("ожидали ErrInvalidTimezone, получили %v", err)
	}
	err = svc.ChangeTimezone(context.Background(), 42, "+15:00")
	if !errors.Is(err, ErrInvalidTimezone) {
		t.Fatalf("смещение вне диапазона должно отклоняться, получили %v", err)
	}
}

func TestMarkTakenClearsReminder(t *testing.T) {
	messageID := 7
	repo := newStubRepo()
	repo.users[42] = domain.User{ID: 42, UTCOffset: "+03:00", Medications: []domain.Medication{
		{ID: 1, Name: "аспирин", Time: "09:00", ReminderMessageID: &messageID},
	}}
	svc := newTestService(repo)

	med, err := svc.MarkTaken(context.Background(), 42, domain.AckRef{MedicationID: 1, Date: "2026-08-29"})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if med.ReminderMessageID == nil || *med.ReminderMessageID != 7 {
		t.Fatalf("возвращается запись до очистки ссылки: %+v", med)
	}
	saved := repo.users[42].Medications[0]
	if saved.LastTakenAt == nil || saved.ReminderMessageID != nil {
		t.Fatalf("подтверждение должно сохраниться: %+v", saved)
	}
}

func TestMarkTakenStaleDate(t *testing.T) {
	repo := newStubRepo()
	repo.users[42] = domain.User{ID: 42, UTCOffset: "+03:00", Medications: []domain.Medication{
		{ID: 1, Name: "аспирин", Time: "09:00"},
	}}
	svc := newTestService(repo)

	_, err := svc.MarkTaken(context.Background(), 42, domain.AckRef{MedicationID: 1, Date: "2026-08-28"})
	if !errors.Is(err, ErrStaleAck) {
		t.Fatalf("вчерашняя кнопка должна отклоняться, получили %v", err)
	}
	if repo.users[42].Medications[0].LastTakenAt != nil {
		t.Fatalf("устаревшее подтверждение не должно менять состояние")
	}
}

func TestListScheduleSorted(t *testing.T) {
	repo := newStubRepo()
	repo.users[42] = domain.User{ID: 42, UTCOffset: "+03:00", Medications: []domain.Medication{
		{ID: 1, Name: "парацетамол", Time: "18:00"},
		{ID: 2, Name: "витамин д", Time: "09:00"},
		{ID: 3, Name: "аспирин", Time: "09:00"},
	}}
	svc := newTestService(repo)

	meds, err := svc.ListSchedule(context.Background(), 42)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if meds[0].Name != "аспирин" || meds[1].Name != "витамин д" || meds[2].Name != "парацетамол" {
		t.Fatalf("ожидали сортировку по времени и названию: %+v", meds)
	}
}
