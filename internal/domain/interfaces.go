package domain

import (
	"context"
	"time"
)

// UserRepo управляет агрегатами пользователей. Запись всегда полная:
// SaveUser атомарно заменяет пользователя вместе со всем расписанием.
type UserRepo interface {
	GetUser(ctx context.Context, id int64) (User, error)
	SaveUser(ctx context.Context, user User) error
	ListUserIDs(ctx context.Context) ([]int64, error)
}

// ReminderTransport доставляет напоминания в чат. Возвращаемый из SendReminder
// идентификатор сообщения становится activeReminderRef медикамента.
type ReminderTransport interface {
	SendReminder(ctx context.Context, userID int64, text string, ack AckRef) (int, error)
	EditReminder(ctx context.Context, userID int64, messageID int, text string, ack AckRef) error
	DeleteReminder(ctx context.Context, userID int64, messageID int) error
}

// Intent — тип команды, распознанный LLM.
type Intent string

const (
	IntentAdd            Intent = "add"
	IntentDone           Intent = "done"
	IntentDelete         Intent = "delete"
	IntentTimeChange     Intent = "time_change"
	IntentDoseChange     Intent = "dose_change"
	IntentTimezoneChange Intent = "timezone_change"
	IntentList           Intent = "list"
	IntentHelp           Intent = "help"
	IntentUnknown        Intent = "unknown"
)

// ParsedMedication — результат разбора команды добавления.
type ParsedMedication struct {
	Name   string   `json:"medication_name"`
	Dosage string   `json:"dosage,omitempty"`
	Times  []string `json:"times"`
}

// SelectionStatus — статус разбора команды, адресующей существующие записи.
type SelectionStatus string

const (
	SelectionSuccess       SelectionStatus = "success"
	SelectionNotFound      SelectionStatus = "not_found"
	SelectionClarification SelectionStatus = "clarification_needed"
)

// Selection — результат разбора команды над существующим расписанием
// (отметка приёма, удаление, смена времени или дозировки).
// MedicationIDs приходят от LLM и считаются недоверенным вводом: перед любым
// изменением состояния их сверяют с настоящим расписанием.
type Selection struct {
	Status        SelectionStatus `json:"status"`
	Name          string          `json:"medication_name"`
	MedicationIDs []int64         `json:"medication_ids,omitempty"`
	NewTimes      []string        `json:"new_times,omitempty"`
	NewDosage     string          `json:"new_dosage,omitempty"`
	Message       string          `json:"message,omitempty"`
}

// TimezoneChange — результат разбора команды смены часового пояса.
type TimezoneChange struct {
	Status  SelectionStatus `json:"status"`
	Offset  string          `json:"timezone_offset"`
	City    string          `json:"city_name,omitempty"`
	Message string          `json:"message,omitempty"`
}

// IntentService понимает свободный текст пользователя: сперва классифицирует
// команду, затем извлекает параметры. Расписание передаётся как контекст.
type IntentService interface {
	Classify(ctx context.Context, text string) (Intent, error)
	ParseAdd(ctx context.Context, text string) ([]ParsedMedication, error)
	ParseDone(ctx context.Context, text string, schedule []Medication) (Selection, error)
	ParseDelete(ctx context.Context, text string, schedule []Medication) (Selection, error)
	ParseTimeChange(ctx context.Context, text string, schedule []Medication) (Selection, error)
	ParseDoseChange(ctx context.Context, text string, schedule []Medication) (Selection, error)
	ParseTimezone(ctx context.Context, text string) (TimezoneChange, error)
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
