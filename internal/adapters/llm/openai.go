package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tg-meds-bot/internal/domain"
	openai "tg-meds-bot/internal/infra/openai"
)

type chatCompletionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Service понимает свободный текст пользователя через Chat Completions.
// Разбор двухэтапный: сперва классификация команды, затем отдельный промпт
// извлекает параметры с расписанием пользователя в качестве контекста.
type Service struct {
	client   chatCompletionClient
	model    string
	timeout  time.Duration
	cache    domain.Cache
	cacheTTL time.Duration
	log      zerolog.Logger
}

var _ domain.IntentService = (*Service)(nil)

// NewService создаёт сервис распознавания команд. Кэш необязателен.
func NewService(client chatCompletionClient, model string, timeout time.Duration, cache domain.Cache, cacheTTL time.Duration, log zerolog.Logger) *Service {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{client: client, model: model, timeout: timeout, cache: cache, cacheTTL: cacheTTL, log: log}
}

func (s *Service) complete(ctx context.Context, system, user string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: 0.1,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleSystem, Content: system},
			{Role: openai.RoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ResponseFormatTypeJSONObject,
		},
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("openai completion: пустой ответ")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("распаковка ответа LLM: %w", err)
	}
	return nil
}

type classifyResponse struct {
	CommandType string `json:"command_type"`
}

var knownIntents = map[domain.Intent]struct{}{
	domain.IntentAdd:            {},
	domain.IntentDone:           {},
	domain.IntentDelete:         {},
	domain.IntentTimeChange:     {},
	domain.IntentDoseChange:     {},
	domain.IntentTimezoneChange: {},
	domain.IntentList:           {},
	domain.IntentHelp:           {},
	domain.IntentUnknown:        {},
}

// Classify определяет тип команды. Результат кэшируется по тексту сообщения,
// одинаковые формулировки не ходят в LLM повторно.
func (s *Service) Classify(ctx context.Context, text string) (domain.Intent, error) {
	key := classifyCacheKey(text)
	if s.cache != nil {
		if raw, err := s.cache.Get(key); err == nil && len(raw) > 0 {
			intent := domain.Intent(raw)
			if _, ok := knownIntents[intent]; ok {
				return intent, nil
			}
		}
	}

	var parsed classifyResponse
	if err := s.complete(ctx, classifySystemPrompt, text, &parsed); err != nil {
		return domain.IntentUnknown, err
	}
	intent := domain.Intent(strings.ToLower(strings.TrimSpace(parsed.CommandType)))
	if _, ok := knownIntents[intent]; !ok {
		s.log.Debug().Str("command_type", parsed.CommandType).Msg("LLM вернул неизвестный тип команды")
		intent = domain.IntentUnknown
	}

	if s.cache != nil {
		if err := s.cache.Set(key, []byte(intent), s.cacheTTL); err != nil {
			s.log.Debug().Err(err).Msg("не удалось закэшировать тип команды")
		}
	}
	return intent, nil
}

func classifyCacheKey(text string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))
	return "intent:" + hex.EncodeToString(sum[:])
}

type addResponse struct {
	Medications []domain.ParsedMedication `json:"medications"`
}

// ParseAdd извлекает список лекарств из команды добавления.
func (s *Service) ParseAdd(ctx context.Context, text string) ([]domain.ParsedMedication, error) {
	var parsed addResponse
	if err := s.complete(ctx, addSystemPrompt, text, &parsed); err != nil {
		return nil, err
	}
	meds := make([]domain.ParsedMedication, 0, len(parsed.Medications))
	for _, m := range parsed.Medications {
		m.Name = strings.TrimSpace(m.Name)
		if m.Name == "" || len(m.Times) == 0 {
			continue
		}
		meds = append(meds, m)
	}
	return meds, nil
}

// ParseDone разбирает команду отметки приёма.
func (s *Service) ParseDone(ctx context.Context, text string, schedule []domain.Medication) (domain.Selection, error) {
	return s.parseSelection(ctx, doneSystemPrompt, text, schedule)
}

// ParseDelete разбирает команду удаления.
func (s *Service) ParseDelete(ctx context.Context, text string, schedule []domain.Medication) (domain.Selection, error) {
	return s.parseSelection(ctx, deleteSystemPrompt, text, schedule)
}

// ParseTimeChange разбирает команду смены времени приёма.
func (s *Service) ParseTimeChange(ctx context.Context, text string, schedule []domain.Medication) (domain.Selection, error) {
	return s.parseSelection(ctx, timeChangeSystemPrompt, text, schedule)
}

// ParseDoseChange разбирает команду смены дозировки.
func (s *Service) ParseDoseChange(ctx context.Context, text string, schedule []domain.Medication) (domain.Selection, error) {
	return s.parseSelection(ctx, doseChangeSystemPrompt, text, schedule)
}

func (s *Service) parseSelection(ctx context.Context, system, text string, schedule []domain.Medication) (domain.Selection, error) {
	var sel domain.Selection
	if err := s.complete(ctx, system, selectionUserPrompt(text, schedule), &sel); err != nil {
		return domain.Selection{}, err
	}
	if sel.Status == "" {
		sel.Status = domain.SelectionNotFound
	}
	return sel, nil
}

// ParseTimezone разбирает команду смены часового пояса.
func (s *Service) ParseTimezone(ctx context.Context, text string) (domain.TimezoneChange, error) {
	var tz domain.TimezoneChange
	if err := s.complete(ctx, timezoneSystemPrompt, text, &tz); err != nil {
		return domain.TimezoneChange{}, err
	}
	if tz.Status == "" {
		tz.Status = domain.SelectionClarification
	}
	return tz, nil
}
