package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	redisutil "sticker-studio-server/modules/common/redis"
)

// Event types
const (
	EventGenerationCompleted = "generation_completed"
	EventGenerationFailed    = "generation_failed"
	EventGenerationCancelled = "generation_cancelled"
)

// Event - 사용자에게 전달되는 generation 상태 변경 메시지
type Event struct {
	Type          string    `json:"type"`
	UserID        string    `json:"user_id"`
	GenerationID  string    `json:"generation_id"`
	Status        string    `json:"status"`
	ResultImageID string    `json:"result_image_id,omitempty"`
	ErrorCode     string    `json:"error_code,omitempty"`
	Message       string    `json:"message,omitempty"`
	At            time.Time `json:"at"`
}

// Publisher - Redis 채널로 이벤트 발행
type Publisher struct {
	rdb *redis.Client
}

func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return redisutil.Publish(ctx, p.rdb, payload)
}
