package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"sticker-studio-server/modules/common/config"
)

const (
	QueueKey      = "stickers:queue"
	EventsChannel = "stickers:events"

	cancelKeyPrefix = "stickers:cancel:"
	cancelFlagTTL   = 24 * time.Hour
)

// Connect - Redis 연결 생성 및 ping 확인
func Connect(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	log.Info().Str("addr", cfg.GetRedisAddr()).Bool("tls", cfg.RedisUseTLS).Msg("🔌 Connecting to Redis")

	var tlsConfig *tls.Config
	if cfg.RedisUseTLS {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Username:     cfg.RedisUsername,
		Password:     cfg.RedisPassword,
		TLSConfig:    tlsConfig,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Info().Msg("✅ Redis connected")
	return rdb, nil
}

// Queue wraps the generation job list and its cancel flags.
type Queue struct {
	rdb *redis.Client
}

func NewQueue(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

// Enqueue - LPUSH generation id, 큐 길이 반환
func (q *Queue) Enqueue(ctx context.Context, generationID string) (int64, error) {
	n, err := q.rdb.LPush(ctx, QueueKey, generationID).Result()
	if err != nil {
		return 0, fmt.Errorf("redis LPUSH failed: %w", err)
	}
	log.Info().Str("generation_id", generationID).Int64("position", n).Msg("📥 Generation enqueued")
	return n, nil
}

// Dequeue - BRPOP with timeout. Returns "" and no error when the wait elapses.
func (q *Queue) Dequeue(ctx context.Context, wait time.Duration) (string, error) {
	result, err := q.rdb.BRPop(ctx, wait, QueueKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis BRPOP failed: %w", err)
	}
	// result[0]은 key, result[1]이 generation id
	return result[1], nil
}

// SetCancelled - 취소 플래그 설정 (24h TTL)
func (q *Queue) SetCancelled(ctx context.Context, generationID string) error {
	if err := q.rdb.Set(ctx, cancelKeyPrefix+generationID, "1", cancelFlagTTL).Err(); err != nil {
		return fmt.Errorf("failed to set cancel flag: %w", err)
	}
	return nil
}

// IsCancelled - 취소 플래그 확인. Redis 오류는 취소 아님으로 취급.
func (q *Queue) IsCancelled(ctx context.Context, generationID string) bool {
	n, err := q.rdb.Exists(ctx, cancelKeyPrefix+generationID).Result()
	if err != nil {
		log.Warn().Err(err).Str("generation_id", generationID).Msg("⚠️  Cancel flag lookup failed")
		return false
	}
	return n > 0
}

// Publish - 이벤트 채널로 payload 발행
func Publish(ctx context.Context, rdb *redis.Client, payload []byte) error {
	if err := rdb.Publish(ctx, EventsChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis PUBLISH failed: %w", err)
	}
	return nil
}
