package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// AuthRepository 保存演示用两步验证的挑战与验证码哈希，均带过期时间。
type AuthRepository interface {
	SaveChallenge(ctx context.Context, challengeID, email string, ttl time.Duration) error
	GetChallengeEmail(ctx context.Context, challengeID string) (string, bool, error)
	SaveCodeHash(ctx context.Context, challengeID, hash string, ttl time.Duration) error
	GetCodeHash(ctx context.Context, challengeID string) (string, bool, error)
	DeleteChallenge(ctx context.Context, challengeID string) error
}

func challengeKey(id string) string { return "auth:challenge:" + id }
func codeKey(id string) string      { return "auth:code:" + id }

type redisAuthRepository struct {
	redisClient *redis.Client
}

// NewRedisAuthRepository 创建一个基于 Redis 的 AuthRepository。
func NewRedisAuthRepository(redisClient *redis.Client) AuthRepository {
	return &redisAuthRepository{redisClient: redisClient}
}

func (r *redisAuthRepository) SaveChallenge(ctx context.Context, challengeID, email string, ttl time.Duration) error {
	if err := r.redisClient.Set(ctx, challengeKey(challengeID), email, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save challenge: %w", err)
	}
	return nil
}

func (r *redisAuthRepository) GetChallengeEmail(ctx context.Context, challengeID string) (string, bool, error) {
	return r.get(ctx, challengeKey(challengeID))
}

func (r *redisAuthRepository) SaveCodeHash(ctx context.Context, challengeID, hash string, ttl time.Duration) error {
	if err := r.redisClient.Set(ctx, codeKey(challengeID), hash, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save code: %w", err)
	}
	return nil
}

func (r *redisAuthRepository) GetCodeHash(ctx context.Context, challengeID string) (string, bool, error) {
	return r.get(ctx, codeKey(challengeID))
}

func (r *redisAuthRepository) DeleteChallenge(ctx context.Context, challengeID string) error {
	return r.redisClient.Del(ctx, challengeKey(challengeID), codeKey(challengeID)).Err()
}

func (r *redisAuthRepository) get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.redisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

type expiringValue struct {
	value     string
	expiresAt time.Time
}

// MemoryAuthRepository 是进程内的 AuthRepository。
type MemoryAuthRepository struct {
	mu   sync.Mutex
	data map[string]expiringValue
	now  func() time.Time
}

// NewMemoryAuthRepository 创建一个空的内存 AuthRepository。
func NewMemoryAuthRepository() *MemoryAuthRepository {
	return &MemoryAuthRepository{data: make(map[string]expiringValue), now: time.Now}
}

func (r *MemoryAuthRepository) set(key, value string, ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key] = expiringValue{value: value, expiresAt: r.now().Add(ttl)}
}

func (r *MemoryAuthRepository) get(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.data[key]
	if !ok {
		return "", false
	}
	if !r.now().Before(v.expiresAt) {
		delete(r.data, key)
		return "", false
	}
	return v.value, true
}

func (r *MemoryAuthRepository) SaveChallenge(_ context.Context, challengeID, email string, ttl time.Duration) error {
	r.set(challengeKey(challengeID), email, ttl)
	return nil
}

func (r *MemoryAuthRepository) GetChallengeEmail(_ context.Context, challengeID string) (string, bool, error) {
	v, ok := r.get(challengeKey(challengeID))
	return v, ok, nil
}

func (r *MemoryAuthRepository) SaveCodeHash(_ context.Context, challengeID, hash string, ttl time.Duration) error {
	r.set(codeKey(challengeID), hash, ttl)
	return nil
}

func (r *MemoryAuthRepository) GetCodeHash(_ context.Context, challengeID string) (string, bool, error) {
	v, ok := r.get(codeKey(challengeID))
	return v, ok, nil
}

func (r *MemoryAuthRepository) DeleteChallenge(_ context.Context, challengeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, challengeKey(challengeID))
	delete(r.data, codeKey(challengeID))
	return nil
}
