package domain

import (
	"context"
	"time"
)

// CommandJob содержит свободнотекстовую команду пользователя, ожидающую
// разбора и исполнения воркером.
type CommandJob struct {
	ID                string    `json:"job_id"`
	UserID            int64     `json:"user_id"`
	ChatID            int64     `json:"chat_id"`
	Text              string    `json:"text"`
	ThinkingMessageID int       `json:"thinking_message_id,omitempty"`
	RequestedAt       time.Time `json:"requested_at"`
}

// CommandAckFunc подтверждает обработку задачи или возвращает её в очередь.
type CommandAckFunc func(success bool) error

// CommandQueue описывает очередь свободнотекстовых команд между гейтвеем и воркером.
type CommandQueue interface {
	Enqueue(ctx context.Context, job CommandJob) error
	Receive(ctx context.Context) (CommandJob, CommandAckFunc, error)
}
