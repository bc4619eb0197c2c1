package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tg-meds-bot/internal/domain"
)

// RedisCommandQueue реализует очередь команд на базе Redis lists.
type RedisCommandQueue struct {
	client *redis.Client
	key    string
}

// NewRedisCommandQueue создаёт очередь по указанному ключу.
func NewRedisCommandQueue(client *redis.Client, key string) *RedisCommandQueue {
	return &RedisCommandQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisCommandQueue) Enqueue(ctx context.Context, job domain.CommandJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди. Подтверждение с success=false
// возвращает задачу в хвост очереди на повторную обработку.
func (q *RedisCommandQueue) Receive(ctx context.Context) (domain.CommandJob, domain.CommandAckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.CommandJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.CommandJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.CommandJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.CommandJob{}, nil, errors.New("redis queue: unexpected response")
		}
		raw := []byte(res[1])
		var job domain.CommandJob
		if err := json.Unmarshal(raw, &job); err != nil {
			return domain.CommandJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			return q.client.LPush(context.Background(), q.key, raw).Err()
		}
		return job, ack, nil
	}
}
