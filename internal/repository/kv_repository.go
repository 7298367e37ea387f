// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"careerkit-go/internal/model"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KVRepository 是一个最小的持久化键值存储接口。
// found 为 false 表示键不存在，此时 err 为 nil。
type KVRepository interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

type redisKVRepository struct {
	redisClient *redis.Client
}

// NewRedisKVRepository 创建一个基于 Redis 的 KVRepository。键不设置过期时间。
func NewRedisKVRepository(redisClient *redis.Client) KVRepository {
	return &redisKVRepository{redisClient: redisClient}
}

func (r *redisKVRepository) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.redisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return val, true, nil
}

func (r *redisKVRepository) Set(ctx context.Context, key, value string) error {
	if err := r.redisClient.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

func (r *redisKVRepository) Delete(ctx context.Context, key string) error {
	return r.redisClient.Del(ctx, key).Err()
}

type gormKVRepository struct {
	db *gorm.DB
}

// NewGormKVRepository 创建一个基于 GORM 的 KVRepository，数据存放在 kv_entries 表。
func NewGormKVRepository(db *gorm.DB) KVRepository {
	return &gormKVRepository{db: db}
}

func (r *gormKVRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var entry model.KVEntry
	err := r.db.WithContext(ctx).Where("`key` = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

// Set 以 upsert 的方式写入整段值。
func (r *gormKVRepository) Set(ctx context.Context, key, value string) error {
	entry := model.KVEntry{Key: key, Value: value, UpdatedAt: time.Now()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}

func (r *gormKVRepository) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Delete(&model.KVEntry{}, "`key` = ?", key).Error
}

// MemoryKVRepository 是进程内的 KVRepository，用于测试和无外部依赖的运行模式。
type MemoryKVRepository struct {
	mu   sync.RWMutex
	data map[string]string
	// FailWrites 为 true 时 Set 返回 ErrWriteFailed，用于模拟存储配额耗尽。
	FailWrites bool
	// FailReads 为 true 时 Get 返回 ErrReadFailed，用于模拟存储不可达。
	FailReads bool
}

var (
	// ErrWriteFailed 是 MemoryKVRepository 模拟写入失败时返回的错误。
	ErrWriteFailed = errors.New("kv write failed")
	// ErrReadFailed 是 MemoryKVRepository 模拟读取失败时返回的错误。
	ErrReadFailed = errors.New("kv read failed")
)

// NewMemoryKVRepository 创建一个空的内存 KVRepository。
func NewMemoryKVRepository() *MemoryKVRepository {
	return &MemoryKVRepository{data: make(map[string]string)}
}

func (r *MemoryKVRepository) Get(_ context.Context, key string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.FailReads {
		return "", false, ErrReadFailed
	}
	v, ok := r.data[key]
	return v, ok, nil
}

func (r *MemoryKVRepository) Set(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWrites {
		return ErrWriteFailed
	}
	r.data[key] = value
	return nil
}

func (r *MemoryKVRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, key)
	return nil
}
