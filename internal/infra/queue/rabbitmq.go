package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tg-meds-bot/internal/domain"
	"tg-meds-bot/internal/infra/metrics"
)

// RabbitCommandQueue реализует очередь команд через AMQP.
type RabbitCommandQueue struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	queue      string
	deliveries <-chan amqp.Delivery
}

// NewRabbitCommandQueue подключается к брокеру и объявляет устойчивую очередь.
func NewRabbitCommandQueue(amqpURL, queue string) (*RabbitCommandQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &RabbitCommandQueue{conn: conn, channel: channel, queue: queue}, nil
}

// Enqueue публикует задачу в очередь.
func (q *RabbitCommandQueue) Enqueue(ctx context.Context, job domain.CommandJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.channel.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди. Подтверждение с success=false
// делает Nack с повторной доставкой.
func (q *RabbitCommandQueue) Receive(ctx context.Context) (domain.CommandJob, domain.CommandAckFunc, error) {
	if q.deliveries == nil {
		deliveries, err := q.channel.Consume(q.queue, "", false, false, false, false, nil)
		if err != nil {
			return domain.CommandJob{}, nil, fmt.Errorf("consume: %w", err)
		}
		q.deliveries = deliveries
	}
	select {
	case <-ctx.Done():
		return domain.CommandJob{}, nil, ctx.Err()
	case delivery, ok := <-q.deliveries:
		if !ok {
			return domain.CommandJob{}, nil, errors.New("amqp: delivery channel closed")
		}
		var job domain.CommandJob
		if err := json.Unmarshal(delivery.Body, &job); err != nil {
			// Нечитаемое сообщение нет смысла доставлять повторно.
			_ = delivery.Nack(false, false)
			return domain.CommandJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return delivery.Ack(false)
			}
			return delivery.Nack(false, true)
		}
		return job, ack, nil
	}
}

// Close освобождает канал и соединение.
func (q *RabbitCommandQueue) Close() error {
	var errs []error
	if q.channel != nil {
		if err := q.channel.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if q.conn != nil {
		if err := q.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
