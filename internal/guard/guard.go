// Package guard 保证同一 (habit, date) 同时只有一个打卡切换在执行。
package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/habitlog/internal/logger"
	"github.com/redis/go-redis/v9"
)

// ErrBusy 表示同一键已有请求在处理
var ErrBusy = errors.New("toggle already in flight")

// Guard 获取键上的短期锁，返回的 release 必须调用
type Guard interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Key 生成 (habit, date) 的锁键
func Key(habitID uint, date time.Time) string {
	return fmt.Sprintf("habitlog:toggle:%d:%s", habitID, date.Format("2006-01-02"))
}

// MemoryGuard 是单进程内的实现
type MemoryGuard struct {
	mu      sync.Mutex
	holders map[string]struct{}
}

// NewMemoryGuard 构造 MemoryGuard
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{holders: make(map[string]struct{})}
}

func (g *MemoryGuard) Acquire(_ context.Context, key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, held := g.holders[key]; held {
		return nil, ErrBusy
	}
	g.holders[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.holders, key)
			g.mu.Unlock()
		})
	}, nil
}

// RedisGuard 通过 SETNX + TTL 在多实例之间共享锁
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// releaseScript 只删除自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewRedisGuard 连接 addr 并构造 RedisGuard；释放失败通过 log 记录
func NewRedisGuard(addr string, ttl time.Duration, log *logger.Logger) *RedisGuard {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisGuard{client: client, ttl: ttl, log: log}
}

// Ping 检查连接
func (g *RedisGuard) Ping(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}

// Close 关闭底层连接
func (g *RedisGuard) Close() error {
	return g.client.Close()
}

func (g *RedisGuard) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire toggle lock: %w", err)
	}
	if !ok {
		return nil, ErrBusy
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			deleted, err := releaseScript.Run(releaseCtx, g.client, []string{key}, token).Int()
			switch {
			case err != nil:
				g.log.Warn("release toggle lock failed", "key", key, "error", err)
			case deleted == 0:
				g.log.Warn("toggle lock expired before release", "key", key, "ttl", g.ttl)
			}
		})
	}, nil
}
