package cache

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/shop-core/internal/domain"
)

func newTestCache() *Layered {
	return NewLayered(zap.NewNop(), nil, nil)
}

// fakeDurable — durable-уровень в памяти для тестов подселения.
type fakeDurable struct {
	entries map[string]redisEntry
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{entries: make(map[string]redisEntry)}
}

func (f *fakeDurable) get(ctx context.Context, key string) ([]byte, []string, time.Duration, bool, error) {
	e, ok := f.entries[key]
	if !ok {
		return nil, nil, 0, false, nil
	}
	return e.Data, e.Tags, time.Minute, true, nil
}

func (f *fakeDurable) set(ctx context.Context, key string, data []byte, ttl time.Duration, tags []string) error {
	f.entries[key] = redisEntry{Data: data, Tags: tags}
	return nil
}

func (f *fakeDurable) delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.entries, k)
	}
	return nil
}

func (f *fakeDurable) deleteByPattern(ctx context.Context, pattern string) error { return nil }

func (f *fakeDurable) deleteByTags(ctx context.Context, tags ...string) error {
	for k, e := range f.entries {
		for _, et := range e.Tags {
			for _, t := range tags {
				if et == t {
					delete(f.entries, k)
				}
			}
		}
	}
	return nil
}

func (f *fakeDurable) clear(ctx context.Context) error {
	f.entries = make(map[string]redisEntry)
	return nil
}

func TestRememberComputesOnceThenHits(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return map[string]int{"stock": 5}, nil
	}

	var got map[string]int
	if err := c.Remember(ctx, "product:p1", time.Minute, &got, loader); err != nil {
		t.Fatalf("Remember() error = %v", err)
	}
	if got["stock"] != 5 {
		t.Errorf("Remember() = %v, want stock 5", got)
	}
	if err := c.Remember(ctx, "product:p1", time.Minute, &got, loader); err != nil {
		t.Fatalf("Remember() second call error = %v", err)
	}
	if calls != 1 {
		t.Errorf("loader called %d times, want 1", calls)
	}

	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 {
		t.Errorf("Stats() = %+v, want 1 hit 1 miss", st)
	}
}

func TestRememberRecomputesAfterTTL(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return calls, nil
	}

	var v int
	_ = c.Remember(ctx, "k", 10*time.Millisecond, &v, loader)
	time.Sleep(20 * time.Millisecond)
	if err := c.Remember(ctx, "k", 10*time.Millisecond, &v, loader); err != nil {
		t.Fatalf("Remember() error = %v", err)
	}
	if v != 2 {
		t.Errorf("Remember() after expiry = %d, want recomputed value 2", v)
	}
}

func TestDeleteByPattern(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()

	_ = c.Set(ctx, "orders:list:a", 1, time.Minute)
	_ = c.Set(ctx, "orders:list:b", 2, time.Minute)
	_ = c.Set(ctx, "product:p1", 3, time.Minute)

	if err := c.DeleteByPattern(ctx, "orders:list:*"); err != nil {
		t.Fatalf("DeleteByPattern() error = %v", err)
	}

	var v int
	if ok, _ := c.Get(ctx, "orders:list:a", &v); ok {
		t.Error("orders:list:a survived pattern delete")
	}
	if ok, _ := c.Get(ctx, "product:p1", &v); !ok {
		t.Error("product:p1 should not match the pattern")
	}
}

func TestDeleteByTags(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()

	_ = c.Set(ctx, "order:o1", 1, time.Minute, "order:o1", domain.TagOrders)
	_ = c.Set(ctx, "orders:stats", 2, time.Minute, domain.TagOrders)
	_ = c.Set(ctx, "product:p1", 3, time.Minute, "product:p1")

	if err := c.DeleteByTags(ctx, domain.TagOrders); err != nil {
		t.Fatalf("DeleteByTags() error = %v", err)
	}

	var v int
	if ok, _ := c.Get(ctx, "order:o1", &v); ok {
		t.Error("order:o1 survived tag delete")
	}
	if ok, _ := c.Get(ctx, "orders:stats", &v); ok {
		t.Error("orders:stats survived tag delete")
	}
	if ok, _ := c.Get(ctx, "product:p1", &v); !ok {
		t.Error("product:p1 has a different tag and should survive")
	}
}

func TestInvalidateProductForcesRecompute(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()
	id := domain.ProductID("p1")

	stock := int64(10)
	loader := func(context.Context) (any, error) { return stock, nil }

	var v int64
	_ = c.Remember(ctx, domain.ProductKey(id), time.Minute, &v, loader, domain.ProductTag(id), domain.TagProducts)
	if v != 10 {
		t.Fatalf("initial Remember() = %d, want 10", v)
	}

	stock = 7
	c.InvalidateProduct(ctx, id)

	if err := c.Remember(ctx, domain.ProductKey(id), time.Minute, &v, loader, domain.ProductTag(id), domain.TagProducts); err != nil {
		t.Fatalf("Remember() error = %v", err)
	}
	if v != 7 {
		t.Errorf("Remember() after invalidation = %d, want recomputed 7", v)
	}
}

func TestDurableRehydrateKeepsTags(t *testing.T) {
	durable := newFakeDurable()
	c := NewLayered(zap.NewNop(), durable, nil)
	ctx := context.Background()
	id := domain.ProductID("p1")

	if err := c.Set(ctx, domain.ProductKey(id), 10, time.Minute, domain.ProductTag(id), domain.TagProducts); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// копия в памяти вытеснена, durable-уровень ещё держит запись
	c.mem.delete(domain.ProductKey(id))

	var v int64
	if ok, err := c.Get(ctx, domain.ProductKey(id), &v); err != nil || !ok {
		t.Fatalf("Get() = %v, %v, want durable hit", ok, err)
	}
	if v != 10 {
		t.Fatalf("Get() = %d, want 10", v)
	}

	// подселённая копия обязана сняться вместе со всеми по тегу
	c.InvalidateProduct(ctx, id)
	if ok, _ := c.Get(ctx, domain.ProductKey(id), &v); ok {
		t.Error("rehydrated entry survived tag invalidation")
	}
}

func TestCleanExpired(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()

	_ = c.Set(ctx, "short", 1, 5*time.Millisecond)
	_ = c.Set(ctx, "long", 2, time.Minute)
	_ = c.Set(ctx, "forever", 3, 0)

	time.Sleep(10 * time.Millisecond)
	if err := c.CleanExpired(ctx); err != nil {
		t.Fatalf("CleanExpired() error = %v", err)
	}

	if got := c.Stats().Entries; got != 2 {
		t.Errorf("entries after sweep = %d, want 2", got)
	}
}

func TestClear(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()

	_ = c.Set(ctx, "a", 1, time.Minute, "t")
	_ = c.Set(ctx, "b", 2, time.Minute)
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if got := c.Stats().Entries; got != 0 {
		t.Errorf("entries after clear = %d, want 0", got)
	}
}
