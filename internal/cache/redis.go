package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fortuna/janus/internal/pbp"
)

const (
	playerKeyPrefix   = "janus:player:"
	boxScoreKeyPrefix = "janus:boxscore:"
	miscountKeyPrefix = "janus:miscounts:"
	miscountIndexKey  = "janus:miscounts"
)

// RedisCache shares player and box score lookups and the miscount registry across processes.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a new Redis cache connection. ttl bounds player and box score
// entries; zero keeps them forever.
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return NewRedisCacheFromClient(client, ttl), nil
}

func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Close closes the Redis connection
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// Client returns the underlying Redis client
func (rc *RedisCache) Client() *redis.Client {
	return rc.client
}

// HealthCheck pings Redis to verify connection
func (rc *RedisCache) HealthCheck(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

func (rc *RedisCache) GetPlayer(ctx context.Context, id string) (*pbp.Player, bool, error) {
	var p pbp.Player
	ok, err := rc.getJSON(ctx, playerKeyPrefix+id, &p)
	if !ok || err != nil {
		return nil, false, err
	}
	return &p, true, nil
}

func (rc *RedisCache) PutPlayer(ctx context.Context, p *pbp.Player) error {
	return rc.setJSONNX(ctx, playerKeyPrefix+p.ID, p)
}

func (rc *RedisCache) GetBoxScore(ctx context.Context, gameID string) (*pbp.BoxScore, bool, error) {
	var b pbp.BoxScore
	ok, err := rc.getJSON(ctx, boxScoreKeyPrefix+gameID, &b)
	if !ok || err != nil {
		return nil, false, err
	}
	return &b, true, nil
}

func (rc *RedisCache) PutBoxScore(ctx context.Context, b *pbp.BoxScore) error {
	return rc.setJSONNX(ctx, boxScoreKeyPrefix+b.GameID, b)
}

// RecordMiscount stores rec in the game's hash under "quarter|side" and indexes the game.
func (rc *RedisCache) RecordMiscount(ctx context.Context, rec pbp.MiscountRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal miscount: %w", err)
	}
	field := strconv.Itoa(rec.Quarter) + "|" + rec.Side.String()

	pipe := rc.client.TxPipeline()
	pipe.HSetNX(ctx, miscountKeyPrefix+rec.GameID, field, data)
	pipe.SAdd(ctx, miscountIndexKey, rec.GameID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record miscount %s: %w", rec.GameID, err)
	}
	return nil
}

func (rc *RedisCache) Miscounts(ctx context.Context) ([]pbp.MiscountRecord, error) {
	games, err := rc.client.SMembers(ctx, miscountIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list miscount games: %w", err)
	}

	var out []pbp.MiscountRecord
	for _, gameID := range games {
		fields, err := rc.client.HGetAll(ctx, miscountKeyPrefix+gameID).Result()
		if err != nil {
			return nil, fmt.Errorf("read miscounts %s: %w", gameID, err)
		}
		for _, raw := range fields {
			var rec pbp.MiscountRecord
			if err := json.Unmarshal([]byte(raw), &rec); err != nil {
				return nil, fmt.Errorf("decode miscount %s: %w", gameID, err)
			}
			out = append(out, rec)
		}
	}
	SortMiscounts(out)
	return out, nil
}

func (rc *RedisCache) IsExcluded(ctx context.Context, gameID string) (bool, error) {
	return rc.client.SIsMember(ctx, miscountIndexKey, gameID).Result()
}

func (rc *RedisCache) ClearMiscounts(ctx context.Context, gameID string) error {
	pipe := rc.client.TxPipeline()
	pipe.Del(ctx, miscountKeyPrefix+gameID)
	pipe.SRem(ctx, miscountIndexKey, gameID)
	_, err := pipe.Exec(ctx)
	return err
}

func (rc *RedisCache) getJSON(ctx context.Context, key string, v interface{}) (bool, error) {
	raw, err := rc.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.NewDecoder(strings.NewReader(raw)).Decode(v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (rc *RedisCache) setJSONNX(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := rc.client.SetNX(ctx, key, data, rc.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
