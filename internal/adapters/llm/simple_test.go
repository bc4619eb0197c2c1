package llm

import (
	"context"
	"testing"

	"tg-meds-bot/internal/domain"
)

func TestSimpleClassify(t *testing.T) {
	cases := []struct {
		text string
		want domain.Intent
	}{
		{"добавь аспирин 200 мг в 10:00", domain.IntentAdd},
		{"принял аспирин", domain.IntentDone},
		{"удали героин", domain.IntentDelete},
		{"перенеси аспирин на 11:00", domain.IntentTimeChange},
		{"измени дозировку аспирина на 400 мг", domain.IntentDoseChange},
		{"мой часовой пояс +05:00", domain.IntentTimezoneChange},
		{"покажи список", domain.IntentList},
		{"помощь", domain.IntentHelp},
		{"какая сегодня погода", domain.IntentUnknown},
	}
	s := NewSimple()
	for _, tc := range cases {
		got, err := s.Classify(context.Background(), tc.text)
		if err != nil {
			t.Fatalf("текст %q: не ожидали ошибку: %v", tc.text, err)
		}
		if got != tc.want {
			t.Fatalf("текст %q: ожидали %s, получили %s", tc.text, tc.want, got)
		}
	}
}

func TestSimpleParseAdd(t *testing.T) {
	s := NewSimple()
	meds, err := s.ParseAdd(context.Background(), "добавь аспирин 200 мг утром и в 20:00")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(meds) != 1 {
		t.Fatalf("ожидали одну запись, получили %d", len(meds))
	}
	if meds[0].Name != "аспирин" {
		t.Fatalf("ожидали аспирин, получили %q", meds[0].Name)
	}
	if meds[0].Dosage != "200 мг" {
		t.Fatalf("ожидали дозировку 200 мг, получили %q", meds[0].Dosage)
	}
	if len(meds[0].Times) != 2 {
		t.Fatalf("ожидали два времени, получили %v", meds[0].Times)
	}
}

func TestSimpleParseAddNoTimes(t *testing.T) {
	s := NewSimple()
	meds, err := s.ParseAdd(context.Background(), "добавь аспирин")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(meds) != 0 {
		t.Fatalf("без времени приёма записей быть не должно: %v", meds)
	}
}

func TestSimpleParseDoneMatchesByName(t *testing.T) {
	schedule := []domain.Medication{
		{ID: 1, Name: "аспирин", Time: "10:00"},
		{ID: 2, Name: "героин", Time: "13:00"},
	}
	s := NewSimple()
	sel, err := s.ParseDone(context.Background(), "принял героин", schedule)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if sel.Status != domain.SelectionSuccess {
		t.Fatalf("ожидали success, получили %s", sel.Status)
	}
	if len(sel.MedicationIDs) != 1 || sel.MedicationIDs[0] != 2 {
		t.Fatalf("ожидали [2], получили %v", sel.MedicationIDs)
	}
}

func TestSimpleParseDoneSingleMedicationFallback(t *testing.T) {
	schedule := []domain.Medication{{ID: 7, Name: "аспирин", Time: "10:00"}}
	s := NewSimple()
	sel, err := s.ParseDone(context.Background(), "принял", schedule)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if sel.Status != domain.SelectionSuccess || len(sel.MedicationIDs) != 1 || sel.MedicationIDs[0] != 7 {
		t.Fatalf("ожидали единственный препарат без уточнения, получили %+v", sel)
	}
}

func TestSimpleParseTimeChangeRequiresClock(t *testing.T) {
	schedule := []domain.Medication{{ID: 1, Name: "аспирин", Time: "10:00"}}
	s := NewSimple()
	sel, err := s.ParseTimeChange(context.Background(), "перенеси аспирин попозже", schedule)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if sel.Status != domain.SelectionClarification {
		t.Fatalf("без времени ожидали clarification, получили %s", sel.Status)
	}

	sel, err = s.ParseTimeChange(context.Background(), "перенеси аспирин на 11:30", schedule)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if sel.Status != domain.SelectionSuccess || len(sel.NewTimes) != 1 || sel.NewTimes[0] != "11:30" {
		t.Fatalf("ожидали новое время 11:30, получили %+v", sel)
	}
}

func TestSimpleParseTimezone(t *testing.T) {
	s := NewSimple()

	tz, err := s.ParseTimezone(context.Background(), "поставь пояс +5:00")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if tz.Status != domain.SelectionSuccess || tz.Offset != "+05:00" {
		t.Fatalf("ожидали +05:00, получили %+v", tz)
	}

	tz, err = s.ParseTimezone(context.Background(), "я живу во Владивостоке")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if tz.Status != domain.SelectionSuccess || tz.Offset != "+10:00" {
		t.Fatalf("ожидали +10:00, получили %+v", tz)
	}

	tz, err = s.ParseTimezone(context.Background(), "смени часовой пояс")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if tz.Status != domain.SelectionClarification {
		t.Fatalf("ожидали clarification, получили %+v", tz)
	}
}
