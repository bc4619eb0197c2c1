package llm

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-meds-bot/internal/domain"
	openai "tg-meds-bot/internal/infra/openai"
)

type stubCompletion struct {
	content  string
	requests []openai.ChatCompletionRequest
}

func (s *stubCompletion) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.requests = append(s.requests, req)
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatMessage{Content: s.content}}},
	}, nil
}

type memoryCache struct {
	data map[string][]byte
}

func newMemoryCache() *memoryCache { return &memoryCache{data: map[string][]byte{}} }

func (c *memoryCache) Once(string, time.Duration, func() error) error { return nil }

func (c *memoryCache) Set(key string, value []byte, _ time.Duration) error {
	c.data[key] = value
	return nil
}

func (c *memoryCache) Get(key string) ([]byte, error) { return c.data[key], nil }

func TestClassifyCachesResult(t *testing.T) {
	stub := &stubCompletion{content: `{"command_type": "add"}`}
	svc := NewService(stub, "test-model", time.Second, newMemoryCache(), time.Minute, zerolog.Nop())

	intent, err := svc.Classify(context.Background(), "добавь аспирин в 9 утра")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if intent != domain.IntentAdd {
		t.Fatalf("ожидали add, получили %s", intent)
	}

	if _, err := svc.Classify(context.Background(), "добавь аспирин в 9 утра"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(stub.requests) != 1 {
		t.Fatalf("повторная классификация должна идти из кэша, запросов %d", len(stub.requests))
	}
}

func TestClassifyUnknownType(t *testing.T) {
	stub := &stubCompletion{content: `{"command_type": "launch_rockets"}`}
	svc := NewService(stub, "test-model", time.Second, nil, 0, zerolog.Nop())

	intent, err := svc.Classify(context.Background(), "что-то странное")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if intent != domain.IntentUnknown {
		t.Fatalf("неизвестный тип должен сводиться к unknown, получили %s", intent)
	}
}

func TestParseAddDropsEmptyEntries(t *testing.T) {
	stub := &stubCompletion{content: `{"medications": [
		{"medication_name": "Аспирин", "dosage": "200 мг", "times": ["09:00", "21:00"]},
		{"medication_name": "", "times": ["10:00"]},
		{"medication_name": "Лоперамид", "times": []}
	]}`}
	svc := NewService(stub, "test-model", time.Second, nil, 0, zerolog.Nop())

	meds, err := svc.ParseAdd(context.Background(), "добавь аспирин 200 мг в 9 и 21")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(meds) != 1 {
		t.Fatalf("ожидали 1 лекарство, получили %d", len(meds))
	}
	if meds[0].Name != "Аспирин" || len(meds[0].Times) != 2 {
		t.Fatalf("неожиданный результат разбора: %+v", meds[0])
	}
}

func TestParseDonePassesScheduleContext(t *testing.T) {
	stub := &stubCompletion{content: `{"status": "success", "medication_name": "аспирин", "medication_ids": [2]}`}
	svc := NewService(stub, "test-model", time.Second, nil, 0, zerolog.Nop())

	schedule := []domain.Medication{
		{ID: 1, Name: "витамин д", Time: "09:00"},
		{ID: 2, Name: "аспирин", Time: "21:00"},
	}
	sel, err := svc.ParseDone(context.Background(), "принял аспирин", schedule)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if sel.Status != domain.SelectionSuccess {
		t.Fatalf("ожидали success, получили %s", sel.Status)
	}
	if len(sel.MedicationIDs) != 1 || sel.MedicationIDs[0] != 2 {
		t.Fatalf("неожиданные идентификаторы: %v", sel.MedicationIDs)
	}

	prompt := stub.requests[0].Messages[1].Content
	if !strings.Contains(prompt, `"аспирин"`) || !strings.Contains(prompt, `"id":2`) {
		t.Fatalf("расписание не попало в промпт: %s", prompt)
	}
}

func TestParseTimezoneDefaultsToClarification(t *testing.T) {
	stub := &stubCompletion{content: `{"timezone_offset": ""}`}
	svc := NewService(stub, "test-model", time.Second, nil, 0, zerolog.Nop())

	tz, err := svc.ParseTimezone(context.Background(), "поменяй пояс")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if tz.Status != domain.SelectionClarification {
		t.Fatalf("пустой статус должен сводиться к clarification_needed, получили %s", tz.Status)
	}
}
