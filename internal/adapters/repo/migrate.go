package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         BIGINT PRIMARY KEY,
		utc_offset TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS medications (
		user_id               BIGINT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		id                    BIGINT NOT NULL,
		name                  TEXT NOT NULL,
		dosage                TEXT NOT NULL DEFAULT '',
		time_of_day           TEXT NOT NULL,
		last_taken_at         TIMESTAMPTZ,
		reminder_message_id   BIGINT,
		last_reminder_sent_at TIMESTAMPTZ,
		PRIMARY KEY (user_id, id)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS medications_user_name_time_uniq
		ON medications (user_id, lower(name), time_of_day)`,
}

// Migrate создаёт схему БД. Запускается при старте каждого бинаря,
// все выражения идемпотентны.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("применение миграции: %w", err)
		}
	}
	return nil
}
