package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "stickers:session:"

var ErrNoSession = errors.New("session not found")

// SessionStore - Redis 기반 세션 저장소 (token → user id, sliding TTL)
type SessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSessionStore(rdb *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{rdb: rdb, ttl: ttl}
}

// Create - 새 세션 토큰 발급
func (s *SessionStore) Create(ctx context.Context, userID string) (string, error) {
	token := uuid.NewString()
	if err := s.rdb.Set(ctx, sessionKeyPrefix+token, userID, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}
	return token, nil
}

// Lookup - 토큰으로 user id 조회, 조회 시 만료 시간 연장
func (s *SessionStore) Lookup(ctx context.Context, token string) (string, error) {
	key := sessionKeyPrefix + token
	userID, err := s.rdb.GetEx(ctx, key, s.ttl).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("failed to read session: %w", err)
	}
	return userID, nil
}

// Delete - 세션 삭제 (없어도 오류 아님)
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	if err := s.rdb.Del(ctx, sessionKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// TTL returns the idle lifetime of a session.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}
