package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tg-meds-bot/internal/domain"
	"tg-meds-bot/internal/infra/metrics"
)

// Service — оркестратор напоминаний: единственное место с побочными
// эффектами. Решения принимают чистые функции ShouldNotify, ShouldRepeat,
// SupersededBy и ShouldRecover; сервис переводит их в отправки, правки и
// отметки приёма, изолируя ошибки на уровне отдельного медикамента.
type Service struct {
	users          domain.UserRepo
	transport      domain.ReminderTransport
	log            zerolog.Logger
	pollInterval   time.Duration
	repeatInterval time.Duration
	callTimeout    time.Duration
	now            func() time.Time
}

// NewService создаёт оркестратор.
func NewService(users domain.UserRepo, transport domain.ReminderTransport, log zerolog.Logger, pollInterval, repeatInterval, callTimeout time.Duration) *Service {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	if repeatInterval <= 0 {
		repeatInterval = time.Hour
	}
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	return &Service{
		users:          users,
		transport:      transport,
		log:            log,
		pollInterval:   pollInterval,
		repeatInterval: repeatInterval,
		callTimeout:    callTimeout,
		now:            time.Now,
	}
}

// Run крутит цикл опроса до отмены контекста. Тик выполняется до конца,
// отмена проверяется только между тиками.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	s.log.Info().Dur("interval", s.pollInterval).Msg("планировщик напоминаний запущен")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("планировщик напоминаний остановлен")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick выполняет один полный проход по всем пользователям.
func (s *Service) Tick(ctx context.Context) {
	start := s.now()
	listCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	ids, err := s.users.ListUserIDs(listCtx)
	cancel()
	if err != nil {
		metrics.IncSchedulerError("list_users")
		s.log.Error().Err(err).Msg("не удалось получить список пользователей")
		return
	}
	for _, id := range ids {
		if err := s.processUser(ctx, id); err != nil {
			metrics.IncSchedulerError("process_user")
			s.log.Error().Err(err).Int64("user", id).Msg("не удалось обработать пользователя")
		}
	}
	metrics.SchedulerTickSeconds.Observe(time.Since(start).Seconds())
}

func (s *Service) processUser(ctx context.Context, id int64) error {
	now := s.now().UTC()
	getCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	user, err := s.users.GetUser(getCtx, id)
	cancel()
	if errors.Is(err, domain.ErrUserNotFound) {
		// Запись пропала или не прочиталась между списком и чтением.
		return nil
	}
	if err != nil {
		return fmt.Errorf("чтение пользователя: %w", err)
	}
	if _, err := domain.ParseUTCOffset(user.UTCOffset); err != nil {
		return fmt.Errorf("часовой пояс пользователя: %w", err)
	}

	changed := false
	for i := range user.Medications {
		if s.processMedication(ctx, &user, i, now) {
			changed = true
		}
	}
	if !changed {
		return nil
	}
	user.UpdatedAt = now
	saveCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	if err := s.users.SaveUser(saveCtx, user); err != nil {
		return fmt.Errorf("сохранение пользователя: %w", err)
	}
	return nil
}

// processMedication применяет к одному медикаменту ровно один класс действия
// за тик: закрытие прошлых доз с немедленной отправкой, повтор или догон.
// Возвращает, изменилось ли состояние агрегата.
func (s *Service) processMedication(ctx context.Context, user *domain.User, idx int, now time.Time) bool {
	med := user.Medications[idx]
	switch {
	case ShouldNotify(med, user.UTCOffset, now, s.pollInterval):
		changed := s.retireSuperseded(ctx, user, med, now)
		if s.sendInitial(ctx, user, idx, now, false) {
			changed = true
		}
		return changed
	case ShouldRepeat(med, user.UTCOffset, now, s.repeatInterval):
		return s.sendRepeat(ctx, user, idx, now)
	case ShouldRecover(med, user.UTCOffset, now, s.pollInterval):
		// Догон это поздняя отправка того же приёма, прошлые дозы
		// закрываются так же, как при срабатывании вовремя.
		changed := s.retireSuperseded(ctx, user, med, now)
		if s.sendInitial(ctx, user, idx, now, true) {
			changed = true
		}
		return changed
	}
	return false
}

// retireSuperseded отмечает принятыми висящие прошлые дозы того же препарата
// и убирает их напоминания, прежде чем уйдёт уведомление о новой дозе.
func (s *Service) retireSuperseded(ctx context.Context, user *domain.User, firing domain.Medication, now time.Time) bool {
	superseded := SupersededBy(*user, firing, now)
	if len(superseded) == 0 {
		return false
	}
	byID := make(map[int64]struct{}, len(superseded))
	for _, m := range superseded {
		byID[m.ID] = struct{}{}
	}
	for i := range user.Medications {
		m := &user.Medications[i]
		if _, ok := byID[m.ID]; !ok {
			continue
		}
		if m.ReminderMessageID != nil {
			s.deleteReminder(ctx, user.ID, *m.ReminderMessageID)
		}
		taken := now
		m.LastTakenAt = &taken
		m.ReminderMessageID = nil
		metrics.IncDoseSuperseded()
		s.log.Info().Int64("user", user.ID).Int64("medication", m.ID).
			Str("name", m.Name).Str("time", m.Time).
			Msg("прошлая доза закрыта приходом следующей")
	}
	return true
}

func (s *Service) sendInitial(ctx context.Context, user *domain.User, idx int, now time.Time, missed bool) bool {
	med := user.Medications[idx]
	date, err := domain.LocalDate(user.UTCOffset, now)
	if err != nil {
		return false
	}
	// Вчерашнее неснятое сообщение убирается перед свежей отправкой.
	if med.ReminderMessageID != nil {
		s.deleteReminder(ctx, user.ID, *med.ReminderMessageID)
	}
	ack := domain.AckRef{MedicationID: med.ID, Date: date}
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	msgID, err := s.transport.SendReminder(callCtx, user.ID, ReminderText(med, missed), ack)
	if err != nil {
		metrics.IncSchedulerError("send")
		s.log.Error().Err(err).Int64("user", user.ID).Int64("medication", med.ID).
			Msg("не удалось отправить уведомление")
		return false
	}
	sent := now
	user.Medications[idx].ReminderMessageID = &msgID
	user.Medications[idx].LastReminderSentAt = &sent
	kind := "initial"
	if missed {
		kind = "missed"
	}
	metrics.IncReminderSent(kind)
	s.log.Info().Int64("user", user.ID).Int64("medication", med.ID).
		Str("name", med.Name).Str("time", med.Time).Bool("missed", missed).
		Msg("уведомление отправлено")
	return true
}

func (s *Service) sendRepeat(ctx context.Context, user *domain.User, idx int, now time.Time) bool {
	med := user.Medications[idx]
	date, err := domain.LocalDate(user.UTCOffset, now)
	if err != nil {
		return false
	}
	ack := domain.AckRef{MedicationID: med.ID, Date: date}
	text := RepeatText(med)

	if med.ReminderMessageID != nil {
		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		err = s.transport.EditReminder(callCtx, user.ID, *med.ReminderMessageID, text, ack)
		cancel()
		if err == nil {
			sent := now
			user.Medications[idx].LastReminderSentAt = &sent
			metrics.IncReminderSent("repeat")
			return true
		}
		s.log.Debug().Err(err).Int64("user", user.ID).Int64("medication", med.ID).
			Msg("правка напоминания не удалась, отправляем заново")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	msgID, err := s.transport.SendReminder(callCtx, user.ID, text, ack)
	if err != nil {
		metrics.IncSchedulerError("repeat")
		s.log.Error().Err(err).Int64("user", user.ID).Int64("medication", med.ID).
			Msg("не удалось повторить напоминание")
		return false
	}
	sent := now
	user.Medications[idx].ReminderMessageID = &msgID
	user.Medications[idx].LastReminderSentAt = &sent
	metrics.IncReminderSent("repeat")
	return true
}

func (s *Service) deleteReminder(ctx context.Context, userID int64, messageID int) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	if err := s.transport.DeleteReminder(callCtx, userID, messageID); err != nil {
		// Сообщение могли удалить руками; для нас это не ошибка.
		s.log.Debug().Err(err).Int64("user", userID).Int("message", messageID).
			Msg("не удалось удалить старое напоминание")
	}
}
