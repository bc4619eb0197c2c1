package domain

import (
	"errors"
	"strings"
	"time"
)

// ErrUserNotFound возвращается хранилищем, если пользователь не заведён.
var ErrUserNotFound = errors.New("user not found")

// ErrMedicationNotFound возвращается при обращении к несуществующему медикаменту.
var ErrMedicationNotFound = errors.New("medication not found")

// User описывает пользователя Telegram вместе с его расписанием приёма.
// Агрегат целиком: хранилище читает и записывает его только полностью.
type User struct {
	ID          int64
	UTCOffset   string
	Medications []Medication
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Medication описывает одно время приёма одного медикамента.
// Несколько приёмов в день одного препарата — это несколько записей с одним
// именем и разным временем.
type Medication struct {
	ID     int64
	Name   string
	Dosage string
	Time   string // "HH:MM" в локальном времени пользователя

	// Состояние сегодняшнего приёма. Сбрасывается неявно: каждое поле
	// сравнивается с сегодняшней локальной датой пользователя.
	LastTakenAt        *time.Time
	ReminderMessageID  *int
	LastReminderSentAt *time.Time
}

// AckRef связывает подтверждение приёма с конкретным приёмом конкретного дня.
// Дата нужна, чтобы нажатие на вчерашнюю кнопку не меняло сегодняшнее состояние.
type AckRef struct {
	MedicationID int64
	Date         string // "YYYY-MM-DD" локальной даты пользователя
}

// NextMedicationID возвращает идентификатор для новой записи: максимум плюс один.
func (u *User) NextMedicationID() int64 {
	var max int64
	for _, m := range u.Medications {
		if m.ID > max {
			max = m.ID
		}
	}
	return max + 1
}

// FindMedication возвращает запись по идентификатору.
func (u *User) FindMedication(id int64) (Medication, bool) {
	for _, m := range u.Medications {
		if m.ID == id {
			return m, true
		}
	}
	return Medication{}, false
}

// HasMedication проверяет наличие пары (имя, время) без учёта регистра имени.
// Дозировка в ключ уникальности не входит.
func (u *User) HasMedication(name, clock string) bool {
	for _, m := range u.Medications {
		if strings.EqualFold(m.Name, name) && m.Time == clock {
			return true
		}
	}
	return false
}

// SameName возвращает все записи с указанным именем без учёта регистра,
// кроме записи с идентификатором except.
func (u *User) SameName(name string, except int64) []Medication {
	var out []Medication
	for _, m := range u.Medications {
		if m.ID == except {
			continue
		}
		if strings.EqualFold(m.Name, name) {
			out = append(out, m)
		}
	}
	return out
}
