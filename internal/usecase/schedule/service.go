package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"tg-meds-bot/internal/domain"
)

// ErrInvalidTimezone возвращается, если указан некорректный часовой пояс.
var ErrInvalidTimezone = errors.New("invalid timezone")

// ErrNoTimes возвращается, если команда добавления не содержит ни одного времени.
var ErrNoTimes = errors.New("no times provided")

// ErrStaleAck возвращается при подтверждении приёма за уже прошедший день.
var ErrStaleAck = errors.New("stale acknowledgement")

// Service отвечает за расписание пользователя: добавление, удаление,
// правки и отметки приёма. Потребитель движка напоминаний; идентификаторы,
// пришедшие от LLM, сюда попадают только после сверки с расписанием, но
// сервис всё равно отвечает ErrMedicationNotFound на неизвестные.
type Service struct {
	users         domain.UserRepo
	defaultOffset string
	now           func() time.Time
}

// NewService создаёт сервис.
func NewService(users domain.UserRepo, defaultOffset string) *Service {
	return &Service{users: users, defaultOffset: defaultOffset, now: time.Now}
}

// EnsureUser возвращает пользователя, заводя его при первом обращении
// с часовым поясом по умолчанию.
func (s *Service) EnsureUser(ctx context.Context, userID int64) (domain.User, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, fmt.Errorf("чтение пользователя: %w", err)
	}
	now := s.now().UTC()
	user = domain.User{ID: userID, UTCOffset: s.defaultOffset, CreatedAt: now, UpdatedAt: now}
	if err := s.users.SaveUser(ctx, user); err != nil {
		return domain.User{}, fmt.Errorf("создание пользователя: %w", err)
	}
	return user, nil
}

// AddResult описывает итог добавления: что записано, что уже было.
type AddResult struct {
	Added      []domain.Medication
	Duplicates []domain.Medication
}

// AddMedications добавляет разобранные медикаменты. Пара (имя, время)
// уникальна без учёта регистра имени; дубликат не сливается, а пропускается.
func (s *Service) AddMedications(ctx context.Context, userID int64, items []domain.ParsedMedication) (AddResult, error) {
	var result AddResult
	user, err := s.EnsureUser(ctx, userID)
	if err != nil {
		return result, err
	}

	sawTime := false
	for _, item := range items {
		name := strings.ToLower(strings.TrimSpace(item.Name))
		if name == "" {
			continue
		}
		for _, raw := range item.Times {
			clock, err := domain.NormalizeClock(raw)
			if err != nil {
				continue
			}
			sawTime = true
			candidate := domain.Medication{Name: name, Dosage: strings.TrimSpace(item.Dosage), Time: clock}
			if user.HasMedication(name, clock) {
				result.Duplicates = append(result.Duplicates, candidate)
				continue
			}
			candidate.ID = user.NextMedicationID()
			user.Medications = append(user.Medications, candidate)
			result.Added = append(result.Added, candidate)
		}
	}
	if !sawTime {
		return AddResult{}, ErrNoTimes
	}
	if len(result.Added) == 0 {
		return result, nil
	}
	user.UpdatedAt = s.now().UTC()
	if err := s.users.SaveUser(ctx, user); err != nil {
		return AddResult{}, fmt.Errorf("сохранение расписания: %w", err)
	}
	return result, nil
}

// DeleteMedications удаляет записи по идентификаторам и возвращает удалённые
// (с ещё не затёртыми ссылками на сообщения, чтобы вызвавший мог их убрать).
// Ни одного известного идентификатора — ErrMedicationNotFound.
func (s *Service) DeleteMedications(ctx context.Context, userID int64, ids []int64) ([]domain.Medication, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("чтение пользователя: %w", err)
	}
	known := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := user.FindMedication(id); ok {
			known[id] = struct{}{}
		}
	}
	if len(known) == 0 {
		return nil, domain.ErrMedicationNotFound
	}
	var removed []domain.Medication
	kept := user.Medications[:0]
	for _, m := range user.Medications {
		if _, ok := known[m.ID]; ok {
			removed = append(removed, m)
			continue
		}
		kept = append(kept, m)
	}
	user.Medications = kept
	user.UpdatedAt = s.now().UTC()
	if err := s.users.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("сохранение расписания: %w", err)
	}
	return removed, nil
}

// ChangeTime меняет время приёма. Одно новое время правит запись на месте,
// несколько — заменяют её отдельной записью на каждое время (как при
// добавлении, с проверкой дубликатов). Возвращает применённые времена.
func (s *Service) ChangeTime(ctx context.Context, userID, medicationID int64, newTimes []string) ([]string, error) {
	if len(newTimes) == 0 {
		return nil, ErrNoTimes
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("чтение пользователя: %w", err)
	}
	idx := -1
	for i, m := range user.Medications {
		if m.ID == medicationID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, domain.ErrMedicationNotFound
	}
	original := user.Medications[idx]

	normalized := make([]string, 0, len(newTimes))
	for _, raw := range newTimes {
		clock, err := domain.NormalizeClock(raw)
		if err != nil {
			return nil, err
		}
		normalized = append(normalized, clock)
	}

	if len(normalized) == 1 {
		if user.HasMedication(original.Name, normalized[0]) && original.Time != normalized[0] {
			return nil, fmt.Errorf("%s в %s уже в расписании", original.Name, normalized[0])
		}
		user.Medications[idx].Time = normalized[0]
		// Смена времени начинает заново сегодняшний цикл уведомлений.
		user.Medications[idx].ReminderMessageID = nil
		user.Medications[idx].LastReminderSentAt = nil
	} else {
		kept := append([]domain.Medication{}, user.Medications[:idx]...)
		kept = append(kept, user.Medications[idx+1:]...)
		user.Medications = kept
		applied := normalized[:0]
		for _, clock := range normalized {
			if user.HasMedication(original.Name, clock) {
				continue
			}
			user.Medications = append(user.Medications, domain.Medication{
				ID:     user.NextMedicationID(),
				Name:   original.Name,
				Dosage: original.Dosage,
				Time:   clock,
			})
			applied = append(applied, clock)
		}
		normalized = applied
	}

	user.UpdatedAt = s.now().UTC()
	if err := s.users.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("сохранение расписания: %w", err)
	}
	return normalized, nil
}

// ChangeDosage меняет дозировку записи.
func (s *Service) ChangeDosage(ctx context.Context, userID, medicationID int64, dosage string) error {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("чтение пользователя: %w", err)
	}
	for i, m := range user.Medications {
		if m.ID == medicationID {
			user.Medications[i].Dosage = strings.TrimSpace(dosage)
			user.UpdatedAt = s.now().UTC()
			if err := s.users.SaveUser(ctx, user); err != nil {
				return fmt.Errorf("сохранение расписания: %w", err)
			}
			return nil
		}
	}
	return domain.ErrMedicationNotFound
}

// ChangeTimezone сохраняет смещение часового пояса пользователя.
func (s *Service) ChangeTimezone(ctx context.Context, userID int64, offset string) error {
	if _, err := domain.ParseUTCOffset(offset); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTimezone, err)
	}
	user, err := s.EnsureUser(ctx, userID)
	if err != nil {
		return err
	}
	user.UTCOffset = offset
	user.UpdatedAt = s.now().UTC()
	if err := s.users.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("сохранение пользователя: %w", err)
	}
	return nil
}

// MarkTaken подтверждает приём по кнопке уведомления. Дата в AckRef — это
// локальная дата дня, которому принадлежало уведомление: нажатие на
// вчерашнюю кнопку не трогает сегодняшнее состояние и вернёт ErrStaleAck.
// Возвращает запись до очистки ссылки на сообщение.
func (s *Service) MarkTaken(ctx context.Context, userID int64, ack domain.AckRef) (domain.Medication, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return domain.Medication{}, fmt.Errorf("чтение пользователя: %w", err)
	}
	today, err := domain.LocalDate(user.UTCOffset, s.now().UTC())
	if err != nil {
		return domain.Medication{}, err
	}
	if ack.Date != today {
		return domain.Medication{}, ErrStaleAck
	}
	marked, err := s.markTaken(&user, []int64{ack.MedicationID})
	if err != nil {
		return domain.Medication{}, err
	}
	if err := s.users.SaveUser(ctx, user); err != nil {
		return domain.Medication{}, fmt.Errorf("сохранение пользователя: %w", err)
	}
	return marked[0], nil
}

// MarkTakenByIDs подтверждает приём, выраженный текстовой командой.
// Возвращает записи до очистки ссылок на сообщения.
func (s *Service) MarkTakenByIDs(ctx context.Context, userID int64, ids []int64) ([]domain.Medication, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("чтение пользователя: %w", err)
	}
	marked, err := s.markTaken(&user, ids)
	if err != nil {
		return nil, err
	}
	if err := s.users.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("сохранение пользователя: %w", err)
	}
	return marked, nil
}

func (s *Service) markTaken(user *domain.User, ids []int64) ([]domain.Medication, error) {
	now := s.now().UTC()
	var marked []domain.Medication
	for _, id := range ids {
		for i, m := range user.Medications {
			if m.ID != id {
				continue
			}
			marked = append(marked, m)
			taken := now
			user.Medications[i].LastTakenAt = &taken
			// Подтверждение всегда снимает висящее напоминание.
			user.Medications[i].ReminderMessageID = nil
			break
		}
	}
	if len(marked) == 0 {
		return nil, domain.ErrMedicationNotFound
	}
	user.UpdatedAt = now
	return marked, nil
}

// ListSchedule возвращает расписание, отсортированное по времени приёма.
func (s *Service) ListSchedule(ctx context.Context, userID int64) ([]domain.Medication, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("чтение пользователя: %w", err)
	}
	meds := append([]domain.Medication(nil), user.Medications...)
	sort.Slice(meds, func(i, j int) bool {
		if meds[i].Time == meds[j].Time {
			return meds[i].Name < meds[j].Name
		}
		return meds[i].Time < meds[j].Time
	})
	return meds, nil
}
