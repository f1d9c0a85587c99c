package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"chorus/services/presence-service/models"
)

const (
	presenceKeyPrefix = "presence:"
	onlineSetKey      = "online_users"

	fieldOnline     = "online"
	fieldLastActive = "last_active"
)

// PresenceStore persists each user's {isOnline, lastActiveAt}.
type PresenceStore interface {
	SetOnline(ctx context.Context, userID string, at time.Time) error
	SetOffline(ctx context.Context, userID string, at time.Time) error
	Get(ctx context.Context, userID string) (models.PresenceRecord, error)
	OnlineUsers(ctx context.Context) ([]models.PresenceRecord, error)
	// ExpireInactive flips online records last active before cutoff to
	// offline, skipping exclude, and returns the records it flipped.
	ExpireInactive(ctx context.Context, cutoff time.Time, exclude []string) ([]models.PresenceRecord, error)
}

// expireScript marks a user offline only if it is still online and still
// older than the cutoff, so a concurrent SetOnline wins.
//
// KEYS[1] presence hash, KEYS[2] online set
// ARGV[1] userID, ARGV[2] cutoff (unix ms)
var expireScript = redis.NewScript(`
local score = redis.call('ZSCORE', KEYS[2], ARGV[1])
if not score then
	return 0
end
if tonumber(score) >= tonumber(ARGV[2]) then
	return 0
end
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('HSET', KEYS[1], 'online', '0')
return 1
`)

// RedisPresenceStore keeps one hash per user plus a sorted set of online
// users scored by last activity.
type RedisPresenceStore struct {
	redis *redis.Client
}

func NewRedisPresenceStore(client *redis.Client) *RedisPresenceStore {
	return &RedisPresenceStore{redis: client}
}

func presenceKey(userID string) string {
	return presenceKeyPrefix + userID
}

func (s *RedisPresenceStore) SetOnline(ctx context.Context, userID string, at time.Time) error {
	ms := at.UnixMilli()

	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, presenceKey(userID), fieldOnline, "1", fieldLastActive, ms)
	pipe.ZAdd(ctx, onlineSetKey, redis.Z{Score: float64(ms), Member: userID})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set %s online: %w", userID, err)
	}
	return nil
}

func (s *RedisPresenceStore) SetOffline(ctx context.Context, userID string, at time.Time) error {
	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, presenceKey(userID), fieldOnline, "0", fieldLastActive, at.UnixMilli())
	pipe.ZRem(ctx, onlineSetKey, userID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set %s offline: %w", userID, err)
	}
	return nil
}

// Get returns the stored record. Unknown users are reported offline.
func (s *RedisPresenceStore) Get(ctx context.Context, userID string) (models.PresenceRecord, error) {
	fields, err := s.redis.HGetAll(ctx, presenceKey(userID)).Result()
	if err != nil {
		return models.PresenceRecord{}, fmt.Errorf("failed to get presence for %s: %w", userID, err)
	}

	rec := models.PresenceRecord{UserID: userID, IsOnline: fields[fieldOnline] == "1"}
	if raw, ok := fields[fieldLastActive]; ok {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return models.PresenceRecord{}, fmt.Errorf("invalid last_active for %s: %w", userID, err)
		}
		rec.LastActiveAt = time.UnixMilli(ms)
	}
	return rec, nil
}

// OnlineUsers returns every online record, least recently active first.
func (s *RedisPresenceStore) OnlineUsers(ctx context.Context) ([]models.PresenceRecord, error) {
	members, err := s.redis.ZRangeWithScores(ctx, onlineSetKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get online users: %w", err)
	}
	return toRecords(members), nil
}

func (s *RedisPresenceStore) ExpireInactive(ctx context.Context, cutoff time.Time, exclude []string) ([]models.PresenceRecord, error) {
	cutoffMs := cutoff.UnixMilli()

	candidates, err := s.redis.ZRangeByScoreWithScores(ctx, onlineSetKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoffMs, 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query stale users: %w", err)
	}

	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	var expired []models.PresenceRecord
	for _, rec := range toRecords(candidates) {
		if _, ok := skip[rec.UserID]; ok {
			continue
		}
		flipped, err := expireScript.Run(ctx, s.redis,
			[]string{presenceKey(rec.UserID), onlineSetKey},
			rec.UserID, cutoffMs,
		).Int()
		if err != nil {
			return expired, fmt.Errorf("failed to expire %s: %w", rec.UserID, err)
		}
		if flipped == 1 {
			rec.IsOnline = false
			expired = append(expired, rec)
		}
	}
	return expired, nil
}

func toRecords(members []redis.Z) []models.PresenceRecord {
	out := make([]models.PresenceRecord, 0, len(members))
	for _, z := range members {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		out = append(out, models.PresenceRecord{
			UserID:       id,
			IsOnline:     true,
			LastActiveAt: time.UnixMilli(int64(z.Score)),
		})
	}
	return out
}
