package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/example/shop-core/internal/domain"
	"github.com/example/shop-core/pkg/metrics"
)

// DurableTier — внешний уровень кэша, переживающий процесс. Реализации
// живут в этом пакете; снаружи тип нужен только для передачи в NewLayered.
type DurableTier interface {
	get(ctx context.Context, key string) (data []byte, tags []string, ttl time.Duration, ok bool, err error)
	set(ctx context.Context, key string, data []byte, ttl time.Duration, tags []string) error
	delete(ctx context.Context, keys ...string) error
	deleteByPattern(ctx context.Context, pattern string) error
	deleteByTags(ctx context.Context, tags ...string) error
	clear(ctx context.Context) error
}

// Layered — read-through кэш: память первой, durable-уровень (Redis)
// опционален. Инвалидация best-effort и никогда не роняет мутацию.
type Layered struct {
	mem     *memoryTier
	durable DurableTier // nil допустим
	log     *zap.Logger
	met     *metrics.CoreMetrics

	hits   atomic.Uint64
	misses atomic.Uint64
}

func NewLayered(log *zap.Logger, durable DurableTier, met *metrics.CoreMetrics) *Layered {
	return &Layered{
		mem:     newMemoryTier(),
		durable: durable,
		log:     log,
		met:     met,
	}
}

func (c *Layered) Remember(ctx context.Context, key string, ttl time.Duration, dest any, loader func(context.Context) (any, error), tags ...string) error {
	ok, err := c.Get(ctx, key, dest)
	if err != nil {
		c.log.Warn("cache read failed, recomputing", zap.String("key", key), zap.Error(err))
	}
	if err == nil && ok {
		return nil
	}
	v, err := loader(ctx)
	if err != nil {
		return err
	}
	if err := c.Set(ctx, key, v, ttl, tags...); err != nil {
		c.log.Warn("cache store failed", zap.String("key", key), zap.Error(err))
	}
	return assign(v, dest)
}

func (c *Layered) Set(ctx context.Context, key string, value any, ttl time.Duration, tags ...string) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	c.mem.set(key, data, tags, expiresAt)
	if c.durable != nil {
		if err := c.durable.set(ctx, key, data, ttl, tags); err != nil {
			return fmt.Errorf("durable set: %w", err)
		}
	}
	return nil
}

func (c *Layered) Get(ctx context.Context, key string, dest any) (bool, error) {
	if data, ok := c.mem.get(key, time.Now()); ok {
		c.hits.Add(1)
		c.tick("memory", "hit")
		return true, json.Unmarshal(data, dest)
	}
	c.tick("memory", "miss")
	if c.durable != nil {
		data, tags, ttl, ok, err := c.durable.get(ctx, key)
		if err != nil {
			c.misses.Add(1)
			c.tick("durable", "error")
			return false, fmt.Errorf("durable get: %w", err)
		}
		if ok {
			c.hits.Add(1)
			c.tick("durable", "hit")
			// подселяем обратно в память на остаток TTL, с исходными
			// тегами, чтобы инвалидация по тегам нашла и эту копию
			var expiresAt time.Time
			if ttl > 0 {
				expiresAt = time.Now().Add(ttl)
			}
			c.mem.set(key, data, tags, expiresAt)
			return true, json.Unmarshal(data, dest)
		}
		c.tick("durable", "miss")
	}
	c.misses.Add(1)
	return false, nil
}

func (c *Layered) Delete(ctx context.Context, keys ...string) error {
	c.mem.delete(keys...)
	if c.durable != nil {
		return c.durable.delete(ctx, keys...)
	}
	return nil
}

func (c *Layered) DeleteByPattern(ctx context.Context, pattern string) error {
	c.mem.deleteByPattern(pattern)
	if c.durable != nil {
		return c.durable.deleteByPattern(ctx, pattern)
	}
	return nil
}

func (c *Layered) DeleteByTags(ctx context.Context, tags ...string) error {
	c.mem.deleteByTags(tags...)
	if c.durable != nil {
		return c.durable.deleteByTags(ctx, tags...)
	}
	return nil
}

func (c *Layered) Clear(ctx context.Context) error {
	c.mem.clear()
	if c.durable != nil {
		return c.durable.clear(ctx)
	}
	return nil
}

func (c *Layered) CleanExpired(ctx context.Context) error {
	removed := c.mem.cleanExpired(time.Now())
	if removed > 0 {
		c.log.Debug("swept expired cache entries", zap.Int("removed", removed))
	}
	// durable-уровень чистит TTL сам
	return nil
}

func (c *Layered) Stats() domain.CacheStats {
	return domain.CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.mem.len(),
	}
}

// StartSweeper запускает фоновую очистку просроченных записей до отмены ctx.
func (c *Layered) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_ = c.CleanExpired(ctx)
			}
		}
	}()
}

func (c *Layered) tick(tier, outcome string) {
	if c.met != nil {
		c.met.CacheOps.WithLabelValues(tier, outcome).Inc()
	}
}

func assign(v, dest any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal loaded value: %w", err)
	}
	return json.Unmarshal(data, dest)
}

var _ domain.Cache = (*Layered)(nil)
