package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTier — внешний durable-уровень кэша для согласованности между
// процессами. Все ключи живут под общим префиксом.
type RedisTier struct {
	cli    *redis.Client
	prefix string
}

func NewRedisTier(cli *redis.Client, prefix string) *RedisTier {
	if prefix == "" {
		prefix = "cache:"
	}
	return &RedisTier{cli: cli, prefix: prefix}
}

func (r *RedisTier) key(k string) string { return r.prefix + k }
func (r *RedisTier) tagKey(t string) string {
	return r.prefix + "tag:" + t
}

// redisEntry хранит значение вместе со списком тегов: при подселении в
// память теги должны пережить круг через durable-уровень, иначе
// инвалидация по тегам их не найдёт.
type redisEntry struct {
	Data json.RawMessage `json:"data"`
	Tags []string        `json:"tags,omitempty"`
}

func (r *RedisTier) get(ctx context.Context, key string) ([]byte, []string, time.Duration, bool, error) {
	pipe := r.cli.Pipeline()
	getCmd := pipe.Get(ctx, r.key(key))
	ttlCmd := pipe.TTL(ctx, r.key(key))
	if _, err := pipe.Exec(ctx); err != nil {
		if err == redis.Nil {
			return nil, nil, 0, false, nil
		}
		return nil, nil, 0, false, err
	}
	raw, err := getCmd.Bytes()
	if err != nil {
		return nil, nil, 0, false, err
	}
	var e redisEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, nil, 0, false, err
	}
	ttl := ttlCmd.Val()
	if ttl < 0 {
		ttl = 0
	}
	return e.Data, e.Tags, ttl, true, nil
}

func (r *RedisTier) set(ctx context.Context, key string, data []byte, ttl time.Duration, tags []string) error {
	raw, err := json.Marshal(redisEntry{Data: data, Tags: tags})
	if err != nil {
		return err
	}
	pipe := r.cli.Pipeline()
	pipe.Set(ctx, r.key(key), raw, ttl)
	for _, t := range tags {
		pipe.SAdd(ctx, r.tagKey(t), key)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisTier) delete(ctx context.Context, keys ...string) error {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	return r.cli.Del(ctx, full...).Err()
}

func (r *RedisTier) deleteByPattern(ctx context.Context, pattern string) error {
	iter := r.cli.Scan(ctx, 0, r.key(pattern), 200).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 200 {
			if err := r.cli.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return r.cli.Del(ctx, batch...).Err()
	}
	return nil
}

func (r *RedisTier) deleteByTags(ctx context.Context, tags ...string) error {
	for _, t := range tags {
		keys, err := r.cli.SMembers(ctx, r.tagKey(t)).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := r.delete(ctx, keys...); err != nil {
				return err
			}
		}
		if err := r.cli.Del(ctx, r.tagKey(t)).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (r *RedisTier) clear(ctx context.Context) error {
	return r.deleteByPattern(ctx, "*")
}

var _ DurableTier = (*RedisTier)(nil)
