// internal/store/redis.go
package store

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/replenlabs/supplyengine/internal/config"
)

// RedisStore keeps each record as a hash {d: value, v: version} so the CAS
// script can check and bump the version in one round trip.
type RedisStore struct {
	client *redis.Client
}

// casScript succeeds when the stored version matches ARGV[2] (or the key is
// absent and the caller expected version 0) and returns the new version.
// Returns -1 on conflict.
var casScript = redis.NewScript(`
local v = redis.call('HGET', KEYS[1], 'v')
local expected = ARGV[2]
if (not v and expected == '0') or (v == expected) then
	local nv = tonumber(expected) + 1
	redis.call('HSET', KEYS[1], 'd', ARGV[1], 'v', nv)
	return nv
end
return -1
`)

var putScript = redis.NewScript(`
local nv = redis.call('HINCRBY', KEYS[1], 'v', 1)
redis.call('HSET', KEYS[1], 'd', ARGV[1])
return nv
`)

func NewRedisStore(cfg config.Redis) (*RedisStore, error) {
	opts, err := buildRedisOptions(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func buildRedisOptions(cfg config.Redis) (*redis.Options, error) {
	if cfg.URL != "" {
		opt, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return opt, nil
	}

	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}

	port := cfg.Port
	if port == "" {
		port = "6379"
	}

	return &redis.Options{
		Addr:     net.JoinHostPort(host, port),
		Password: cfg.Password,
		DB:       cfg.DB,
	}, nil
}

// Client exposes the underlying connection for collaborators that share it,
// such as the pub/sub anomaly notifier.
func (s *RedisStore) Client() *redis.Client { return s.client }

func (s *RedisStore) Get(ctx context.Context, key string) (Record, error) {
	vals, err := s.client.HMGet(ctx, key, "d", "v").Result()
	if err != nil {
		return Record{}, &TransientError{Err: err}
	}
	if vals[0] == nil || vals[1] == nil {
		return Record{}, ErrNotFound
	}

	data, ok := vals[0].(string)
	if !ok {
		return Record{}, fmt.Errorf("redis: unexpected value type for %s", key)
	}
	version, err := strconv.ParseInt(fmt.Sprint(vals[1]), 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("redis: bad version for %s: %w", key, err)
	}

	return Record{Key: key, Value: []byte(data), Version: version}, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	if err := putScript.Run(ctx, s.client, []string{key}, value).Err(); err != nil {
		return &TransientError{Err: err}
	}
	return nil
}

func (s *RedisStore) ConditionalPut(ctx context.Context, key string, value []byte, expectedVersion int64) (int64, error) {
	res, err := casScript.Run(ctx, s.client, []string{key}, value, strconv.FormatInt(expectedVersion, 10)).Int64()
	if err != nil {
		return 0, &TransientError{Err: err}
	}
	if res < 0 {
		return 0, ErrConflict
	}
	return res, nil
}

func (s *RedisStore) Scan(ctx context.Context, prefix string) ([]Record, error) {
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return nil, &TransientError{Err: err}
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	out := make([]Record, 0, len(keys))
	for _, key := range keys {
		rec, err := s.Get(ctx, key)
		if err == ErrNotFound {
			continue // deleted between scan and fetch
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}
