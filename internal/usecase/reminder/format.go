package reminder

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"tg-meds-bot/internal/domain"
)

// ReminderText собирает текст первого уведомления о приёме.
func ReminderText(med domain.Medication, missed bool) string {
	header := "Надо принять:"
	if missed {
		header = "Надо принять (пропущено):"
	}
	return header + "\n" + displayName(med)
}

// RepeatText собирает текст повторного напоминания.
func RepeatText(med domain.Medication) string {
	return "Напоминание:\n" + displayName(med)
}

func displayName(med domain.Medication) string {
	name := capitalize(med.Name)
	if med.Dosage == "" {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, med.Dosage)
}

func capitalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
