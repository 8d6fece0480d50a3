// Package dedup drops repeated deliveries of the same inbound message. Chat
// transports retry on timeouts, and a repeated deposit must not be executed
// twice.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL       = 10 * time.Minute
	defaultCacheSize = 10000
	defaultKeyPrefix = "stacksave:seen:"
)

// Guard 判断消息 ID 是否已经处理过。首次出现的 ID 会被记录。
type Guard interface {
	Seen(ctx context.Context, id string) (bool, error)
}

// Nop 从不认为消息重复。
type Nop struct{}

// Seen 实现 Guard。
func (Nop) Seen(context.Context, string) (bool, error) { return false, nil }

// MemoryGuard 使用带过期时间的 LRU 在进程内去重。
type MemoryGuard struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, struct{}]
}

// NewMemoryGuard 创建进程内去重器。
func NewMemoryGuard(size int, ttl time.Duration) *MemoryGuard {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &MemoryGuard{cache: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

// Seen 实现 Guard。没有 ID 的消息永远不会被视为重复。
func (g *MemoryGuard) Seen(_ context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.cache.Get(id); ok {
		return true, nil
	}
	g.cache.Add(id, struct{}{})
	return false, nil
}

// setNXer 是 go-redis 客户端中去重所需的方法。
type setNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisConfig 描述 Redis 去重器的连接参数。
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// RedisGuard 通过 SET NX 在多个实例之间共享去重状态。
type RedisGuard struct {
	client setNXer
	closer func() error
	prefix string
	ttl    time.Duration
}

// NewRedisGuard 连接 Redis 并创建去重器。
func NewRedisGuard(ctx context.Context, cfg RedisConfig) (*RedisGuard, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	g := newRedisGuard(client, cfg.Prefix, cfg.TTL)
	g.closer = client.Close
	return g, nil
}

func newRedisGuard(client setNXer, prefix string, ttl time.Duration) *RedisGuard {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisGuard{client: client, prefix: prefix, ttl: ttl}
}

// Seen 实现 Guard。
func (g *RedisGuard) Seen(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, nil
	}
	created, err := g.client.SetNX(ctx, g.prefix+id, 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("Redis 去重失败: %w", err)
	}
	return !created, nil
}

// Close 关闭 Redis 连接。
func (g *RedisGuard) Close() error {
	if g == nil || g.closer == nil {
		return nil
	}
	return g.closer()
}
