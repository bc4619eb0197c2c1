package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidOffset возвращается при некорректной строке смещения часового пояса.
var ErrInvalidOffset = errors.New("invalid utc offset")

// ErrInvalidClock возвращается при некорректном времени формата HH:MM.
var ErrInvalidClock = errors.New("invalid clock time")

const (
	minOffsetMinutes = -12 * 60
	maxOffsetMinutes = 14 * 60
)

// ParseUTCOffset разбирает смещение вида "+03:00" или "-05:30" и возвращает
// фиксированную зону без правил перехода на летнее время. Требуются знак,
// двузначные часы и минуты; допустимый диапазон от -12:00 до +14:00
// включительно.
func ParseUTCOffset(offset string) (*time.Location, error) {
	minutes, err := offsetMinutes(offset)
	if err != nil {
		return nil, err
	}
	return time.FixedZone("UTC"+offset, minutes*60), nil
}

func offsetMinutes(offset string) (int, error) {
	if len(offset) != 6 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOffset, offset)
	}
	sign := 0
	switch offset[0] {
	case '+':
		sign = 1
	case '-':
		sign = -1
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidOffset, offset)
	}
	if offset[3] != ':' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOffset, offset)
	}
	hh, ok1 := twoDigits(offset[1], offset[2])
	mm, ok2 := twoDigits(offset[4], offset[5])
	if !ok1 || !ok2 || mm > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOffset, offset)
	}
	total := sign * (hh*60 + mm)
	if total < minOffsetMinutes || total > maxOffsetMinutes {
		return 0, fmt.Errorf("%w: %q вне диапазона -12:00..+14:00", ErrInvalidOffset, offset)
	}
	return total, nil
}

func twoDigits(a, b byte) (int, bool) {
	if a < '0' || a > '9' || b < '0' || b > '9' {
		return 0, false
	}
	return int(a-'0')*10 + int(b-'0'), true
}

// LocalTime переводит момент времени в локальные часы пользователя.
func LocalTime(offset string, instant time.Time) (time.Time, error) {
	loc, err := ParseUTCOffset(offset)
	if err != nil {
		return time.Time{}, err
	}
	return instant.In(loc), nil
}

// LocalDate возвращает локальную календарную дату пользователя в формате YYYY-MM-DD.
func LocalDate(offset string, instant time.Time) (string, error) {
	local, err := LocalTime(offset, instant)
	if err != nil {
		return "", err
	}
	return local.Format("2006-01-02"), nil
}

// SameLocalDay сообщает, приходятся ли два момента на одну локальную дату пользователя.
func SameLocalDay(offset string, a, b time.Time) bool {
	loc, err := ParseUTCOffset(offset)
	if err != nil {
		return false
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// ParseClock разбирает время приёма формата HH:MM (24 часа) и возвращает
// минуты с полуночи. Принимает и незаполненный нулями час ("9:00").
func ParseClock(clock string) (int, error) {
	parsed, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, clock)
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}

// NormalizeClock приводит время приёма к каноническому виду "15:04".
func NormalizeClock(clock string) (string, error) {
	minutes, err := ParseClock(clock)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60), nil
}
