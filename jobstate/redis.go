package jobstate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/use-agent/rewardrunner/engine"
	"github.com/use-agent/rewardrunner/models"
)

const (
	keyPrefix        = "jobstate:"
	quarantinePrefix = "quarantine:"
)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int

	// TTL is the expiry set on each day's set. Defaults to 48h.
	TTL time.Duration
}

// RedisStore keeps one set of completed offer ids per account and day, under
// jobstate:<account>:<day>. Sets expire on their own; Prune clears older
// days early. Quarantine streaks live in a hash per account under
// quarantine:<account>, one JSON entry per offer id, expiring with the same TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return newRedisStore(client, opts.TTL), nil
}

func newRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(account, day string) string {
	return keyPrefix + account + ":" + day
}

// IsDone reports whether offerID was completed for account on day.
func (s *RedisStore) IsDone(ctx context.Context, account, day, offerID string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, redisKey(account, day), offerID).Result()
	if err != nil {
		return false, models.NewRunError(models.ErrCodeStore, "job state lookup failed", err)
	}
	return ok, nil
}

// MarkDone adds offerID to the day's set and refreshes its expiry.
func (s *RedisStore) MarkDone(ctx context.Context, account, day, offerID string) error {
	key := redisKey(account, day)
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, key, offerID)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return models.NewRunError(models.ErrCodeStore, "job state write failed", err)
	}
	return nil
}

// Prune deletes the sets for days before cutoff.
func (s *RedisStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	limit := dayOf(cutoff)
	var removed int64

	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		idx := strings.LastIndexByte(key, ':')
		if idx < 0 || key[idx+1:] >= limit {
			continue
		}
		n, err := s.client.Del(ctx, key).Result()
		if err != nil {
			return removed, models.NewRunError(models.ErrCodeStore, "job state prune failed", err)
		}
		removed += n
	}
	if err := iter.Err(); err != nil {
		return removed, models.NewRunError(models.ErrCodeStore, "job state scan failed", err)
	}
	return removed, nil
}

// LoadQuarantine returns the saved streaks of account.
func (s *RedisStore) LoadQuarantine(ctx context.Context, account string) (map[string]engine.QuarantineEntry, error) {
	fields, err := s.client.HGetAll(ctx, quarantinePrefix+account).Result()
	if err != nil {
		return nil, models.NewRunError(models.ErrCodeStore, "quarantine lookup failed", err)
	}
	entries := make(map[string]engine.QuarantineEntry, len(fields))
	for key, raw := range fields {
		var e engine.QuarantineEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			slog.Warn("jobstate: dropping unreadable quarantine entry", "account", account, "offer_id", key, "error", err)
			continue
		}
		entries[key] = e
	}
	return entries, nil
}

// SaveQuarantine replaces the hash of account and refreshes its expiry.
func (s *RedisStore) SaveQuarantine(ctx context.Context, account string, entries map[string]engine.QuarantineEntry) error {
	key := quarantinePrefix + account
	values := make(map[string]any, len(entries))
	for offerID, e := range entries {
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("jobstate: marshal quarantine entry: %w", err)
		}
		values[offerID] = string(raw)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(values) > 0 {
		pipe.HSet(ctx, key, values)
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return models.NewRunError(models.ErrCodeStore, "quarantine write failed", err)
	}
	return nil
}

// Close closes the redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
