// Package dedup хранит идентификаторы уже подтверждённых событий провайдера,
// чтобы повторные доставки не доходили до журнала покупок.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL покрывает окно повторной доставки Stripe (до трёх суток).
const DefaultTTL = 72 * time.Hour

// RedisJournal хранит журнал событий в Redis.
type RedisJournal struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisJournal создаёт журнал событий поверх Redis по указанному адресу.
func NewRedisJournal(addr, serviceName string, ttl time.Duration) *RedisJournal {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisJournal{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: serviceName,
		ttl:    ttl,
	}
}

func (j *RedisJournal) key(eventID string) string {
	return fmt.Sprintf("%s:webhook-event:%s", j.prefix, eventID)
}

// Seen сообщает, было ли событие уже подтверждено.
func (j *RedisJournal) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := j.client.Exists(ctx, j.key(eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Remember отмечает событие как подтверждённое.
func (j *RedisJournal) Remember(ctx context.Context, eventID string) error {
	if err := j.client.Set(ctx, j.key(eventID), time.Now().Unix(), j.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping проверяет доступность Redis.
func (j *RedisJournal) Ping(ctx context.Context) error {
	return j.client.Ping(ctx).Err()
}

// Close закрывает соединения с Redis.
func (j *RedisJournal) Close() error {
	return j.client.Close()
}

// Nop ничего не помнит. Используется, когда Redis не настроен.
type Nop struct{}

func (Nop) Seen(context.Context, string) (bool, error) { return false, nil }

func (Nop) Remember(context.Context, string) error { return nil }
