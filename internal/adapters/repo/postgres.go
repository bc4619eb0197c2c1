package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tg-meds-bot/internal/domain"
	"tg-meds-bot/internal/infra/metrics"
)

// Postgres реализует domain.UserRepo на основе pgxpool.
// Агрегат пользователя пишется только целиком: запись идёт в одной
// транзакции, поэтому частично обновлённого расписания не бывает.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.UserRepo = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// GetUser читает пользователя вместе со всем расписанием.
func (p *Postgres) GetUser(ctx context.Context, id int64) (domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	var user domain.User
	err := p.pool.QueryRow(ctx,
		`SELECT id, utc_offset, created_at, updated_at FROM users WHERE id=$1`, id).
		Scan(&user.ID, &user.UTCOffset, &user.CreatedAt, &user.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "get_user", "users", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("выборка пользователя: %w", err)
	}

	rows, err := p.pool.Query(ctx,
		`SELECT id, name, dosage, time_of_day, last_taken_at, reminder_message_id, last_reminder_sent_at
		 FROM medications WHERE user_id=$1 ORDER BY id`, id)
	if err != nil {
		return domain.User{}, fmt.Errorf("выборка расписания: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m domain.Medication
		var messageID *int64
		if err := rows.Scan(&m.ID, &m.Name, &m.Dosage, &m.Time, &m.LastTakenAt, &messageID, &m.LastReminderSentAt); err != nil {
			return domain.User{}, fmt.Errorf("чтение записи расписания: %w", err)
		}
		if messageID != nil {
			v := int(*messageID)
			m.ReminderMessageID = &v
		}
		user.Medications = append(user.Medications, m)
	}
	if err := rows.Err(); err != nil {
		return domain.User{}, fmt.Errorf("обход расписания: %w", err)
	}
	return user, nil
}

// SaveUser атомарно заменяет агрегат: строку пользователя и все записи расписания.
func (p *Postgres) SaveUser(ctx context.Context, user domain.User) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("открытие транзакции: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO users (id, utc_offset, created_at, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET utc_offset = EXCLUDED.utc_offset, updated_at = EXCLUDED.updated_at`,
		user.ID, user.UTCOffset, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("запись пользователя: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM medications WHERE user_id=$1`, user.ID); err != nil {
		return fmt.Errorf("очистка расписания: %w", err)
	}
	for _, m := range user.Medications {
		var messageID *int64
		if m.ReminderMessageID != nil {
			v := int64(*m.ReminderMessageID)
			messageID = &v
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO medications (user_id, id, name, dosage, time_of_day, last_taken_at, reminder_message_id, last_reminder_sent_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			user.ID, m.ID, m.Name, m.Dosage, m.Time, m.LastTakenAt, messageID, m.LastReminderSentAt)
		if err != nil {
			return fmt.Errorf("запись расписания: %w", err)
		}
	}
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "save_user", "users", start, err)
	if err != nil {
		return fmt.Errorf("фиксация транзакции: %w", err)
	}
	return nil
}

// ListUserIDs возвращает идентификаторы всех пользователей.
func (p *Postgres) ListUserIDs(ctx context.Context) ([]int64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT id FROM users ORDER BY id`)
	metrics.ObserveNetworkRequest("postgres", "list_user_ids", "users", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка пользователей: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("чтение идентификатора: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("обход пользователей: %w", err)
	}
	return ids, nil
}
