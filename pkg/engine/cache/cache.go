package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultFreshFor  = 30 * time.Second
	DefaultRetainFor = 10 * time.Minute
)

type entry struct {
	value     any
	fetchedAt time.Time
	dirty     bool
}

type Options struct {
	// FreshFor 窗口内直接返回缓存，不重新请求
	FreshFor time.Duration
	// RetainFor 超过后整个条目被清掉，失败时也不再回退到旧值
	RetainFor time.Duration
	Now       func() time.Time
	Logger    *zap.Logger
}

// QueryCache 按键缓存远端查询结果
// 失效只是打标记，下次读取时才重新请求；同一键的并发请求合并为一次
type QueryCache struct {
	mu      sync.Mutex
	entries map[string]*entry
	group   singleflight.Group

	fresh  time.Duration
	retain time.Duration
	now    func() time.Time
	log    *zap.Logger
}

func New(opts Options) *QueryCache {
	if opts.FreshFor <= 0 {
		opts.FreshFor = DefaultFreshFor
	}
	if opts.RetainFor < opts.FreshFor {
		opts.RetainFor = DefaultRetainFor
		if opts.RetainFor < opts.FreshFor {
			opts.RetainFor = opts.FreshFor
		}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &QueryCache{
		entries: make(map[string]*entry),
		fresh:   opts.FreshFor,
		retain:  opts.RetainFor,
		now:     opts.Now,
		log:     opts.Logger,
	}
}

// lookup 返回缓存值以及是否新鲜
func (c *QueryCache) lookup(key string) (any, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false, false
	}
	age := c.now().Sub(e.fetchedAt)
	if age > c.retain {
		delete(c.entries, key)
		return nil, false, false
	}
	return e.value, true, !e.dirty && age <= c.fresh
}

// Set 直接写入新鲜值，用于调用方已经拿到权威数据的场合
func (c *QueryCache) Set(key string, value any) {
	c.mu.Lock()
	c.entries[key] = &entry{value: value, fetchedAt: c.now()}
	c.mu.Unlock()
}

// Get 新鲜值直接返回；否则请求远端，请求失败时回退到保留期内的旧值
func (c *QueryCache) Get(ctx context.Context, key string, fetch func(context.Context) (any, error)) (any, error) {
	cached, found, fresh := c.lookup(key)
	if fresh {
		return cached, nil
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, value)
		return value, nil
	})
	if err != nil {
		if found {
			c.log.Debug("serving stale cache entry", zap.String("key", key), zap.Error(err))
			return cached, nil
		}
		return nil, err
	}
	if shared {
		c.log.Debug("joined in-flight fetch", zap.String("key", key))
	}
	return v, nil
}

// Fetch Get 的泛型包装
func Fetch[T any](ctx context.Context, c *QueryCache, key string, fetch func(context.Context) (T, error)) (T, error) {
	v, err := c.Get(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache key %q holds %T", key, v)
	}
	return typed, nil
}

// Invalidate 标记为过期，不发请求
func (c *QueryCache) Invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		if e, ok := c.entries[key]; ok {
			e.dirty = true
		}
	}
}

func (c *QueryCache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if strings.HasPrefix(key, prefix) {
			e.dirty = true
		}
	}
}

// IsDirty 条目存在且已被标记失效
func (c *QueryCache) IsDirty(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return ok && e.dirty
}

// Clear 身份切换时清空全部条目
func (c *QueryCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
}

// Sweep 删除超过保留期的条目，返回删除数量
func (c *QueryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if now.Sub(e.fetchedAt) > c.retain {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// StartSweeper 定期清理，ctx 取消时退出
func (c *QueryCache) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = c.retain
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.log.Debug("cache swept", zap.Int("removed", n))
			}
		}
	}
}

// Poll 按固定间隔强制刷新某个键并回调新值，立即执行一次，ctx 取消时退出
// 用于不依赖用户操作也会变化的数据（体力恢复）
func (c *QueryCache) Poll(ctx context.Context, key string, interval time.Duration, fetch func(context.Context) (any, error), onValue func(any)) {
	tick := func() {
		c.Invalidate(key)
		v, err := c.Get(ctx, key, fetch)
		if err != nil {
			c.log.Debug("poll failed", zap.String("key", key), zap.Error(err))
			return
		}
		onValue(v)
	}

	tick()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}

// 用户相关的缓存键
func ProfileKey(userID uint) string    { return fmt.Sprintf("profile:%d", userID) }
func DailyKey(userID uint) string      { return fmt.Sprintf("daily:%d", userID) }
func EnergyKey(userID uint) string     { return fmt.Sprintf("energy:%d", userID) }
func MilestonesKey(userID uint) string { return fmt.Sprintf("missions:%d", userID) }
func LeaderboardKey(limit int) string  { return fmt.Sprintf("%s%d", LeaderboardPrefix, limit) }

const LeaderboardPrefix = "leaderboard:"
