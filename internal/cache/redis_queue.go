package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/duelarena/backend/internal/apperr"
	"github.com/duelarena/backend/internal/models"
)

// RedisQueue stores the duel pool in Redis. Each entry is a hash
// {data, version} under <prefix>:entry:<user> that expires at the entry's
// ExpiresAt; <prefix>:pool is a sorted set of user ids scored by join time in
// milliseconds; <prefix>:seq issues versions.
type RedisQueue struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisQueue(rdb *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "duel:queue"
	}
	return &RedisQueue{rdb: rdb, prefix: prefix}
}

func (q *RedisQueue) entryKey(userID string) string { return q.prefix + ":entry:" + userID }
func (q *RedisQueue) poolKey() string { return q.prefix + ":pool" }
func (q *RedisQueue) seqKey() string { return q.prefix + ":seq" }

// KEYS: entry, pool, seq. ARGV: user, data, joinedAt ms, expiresAt ms.
var upsertScript = redis.NewScript(`
	local v = redis.call("INCR", KEYS[3])
	redis.call("DEL", KEYS[1])
	redis.call("HSET", KEYS[1], "data", ARGV[2], "version", v)
	redis.call("PEXPIREAT", KEYS[1], ARGV[4])
	redis.call("ZADD", KEYS[2], ARGV[3], ARGV[1])
	return v
`)

// Same keys and args as upsertScript; does nothing if the user already has an
// entry or the entry has already expired.
var restoreScript = redis.NewScript(`
	if redis.call("EXISTS", KEYS[1]) == 1 then
		return 0
	end
	local t = redis.call("TIME")
	local nowMs = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
	if tonumber(ARGV[4]) <= nowMs then
		return 0
	end
	local v = redis.call("INCR", KEYS[3])
	redis.call("HSET", KEYS[1], "data", ARGV[2], "version", v)
	redis.call("PEXPIREAT", KEYS[1], ARGV[4])
	redis.call("ZADD", KEYS[2], ARGV[3], ARGV[1])
	return v
`)

// KEYS: entryA, entryB, pool. ARGV: versionA, versionB, userA, userB.
var claimScript = redis.NewScript(`
	if redis.call("HGET", KEYS[1], "version") ~= ARGV[1] then
		return 0
	end
	if redis.call("HGET", KEYS[2], "version") ~= ARGV[2] then
		return 0
	end
	redis.call("DEL", KEYS[1], KEYS[2])
	redis.call("ZREM", KEYS[3], ARGV[3], ARGV[4])
	return 1
`)

// KEYS: entry, pool. ARGV: user, version. A missing entry is always removed
// from the pool; a present one only when its version still matches.
var removeScript = redis.NewScript(`
	local v = redis.call("HGET", KEYS[1], "version")
	if v and v ~= ARGV[2] then
		return 0
	end
	redis.call("DEL", KEYS[1])
	redis.call("ZREM", KEYS[2], ARGV[1])
	return 1
`)

func (q *RedisQueue) write(ctx context.Context, script *redis.Script, e *models.QueueEntry) (int64, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return 0, fmt.Errorf("marshal queue entry: %w", err)
	}
	user := e.UserID.String()
	return script.Run(ctx, q.rdb,
		[]string{q.entryKey(user), q.poolKey(), q.seqKey()},
		user, data, e.JoinedAt.UnixMilli(), e.ExpiresAt.UnixMilli(),
	).Int64()
}

// Upsert replaces the user's entry and sets e.Version.
func (q *RedisQueue) Upsert(ctx context.Context, e *models.QueueEntry) error {
	v, err := q.write(ctx, upsertScript, e)
	if err != nil {
		return fmt.Errorf("redis upsert: %w", err)
	}
	e.Version = v
	return nil
}

// Restore re-inserts a claimed entry unless the user has queued again since.
func (q *RedisQueue) Restore(ctx context.Context, e *models.QueueEntry) error {
	v, err := q.write(ctx, restoreScript, e)
	if err != nil {
		return fmt.Errorf("redis restore: %w", err)
	}
	if v > 0 {
		e.Version = v
	}
	return nil
}

func decodeEntry(fields map[string]string) (*models.QueueEntry, error) {
	data, ok := fields["data"]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	var e models.QueueEntry
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, fmt.Errorf("decode queue entry: %w", err)
	}
	v, err := strconv.ParseInt(fields["version"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode queue version: %w", err)
	}
	e.Version = v
	return &e, nil
}

func (q *RedisQueue) Get(ctx context.Context, userID uuid.UUID) (*models.QueueEntry, error) {
	fields, err := q.rdb.HGetAll(ctx, q.entryKey(userID.String())).Result()
	if err != nil {
		return nil, err
	}
	return decodeEntry(fields)
}

func (q *RedisQueue) Delete(ctx context.Context, userID uuid.UUID) error {
	user := userID.String()
	pipe := q.rdb.TxPipeline()
	del := pipe.Del(ctx, q.entryKey(user))
	pipe.ZRem(ctx, q.poolKey(), user)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if del.Val() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// snapshot loads every pool member. Members whose hash has already expired
// come back as nil entries.
func (q *RedisQueue) snapshot(ctx context.Context) ([]string, []*models.QueueEntry, error) {
	users, err := q.rdb.ZRange(ctx, q.poolKey(), 0, -1).Result()
	if err != nil {
		return nil, nil, err
	}
	if len(users) == 0 {
		return nil, nil, nil
	}
	pipe := q.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(users))
	for i, u := range users {
		cmds[i] = pipe.HGetAll(ctx, q.entryKey(u))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, nil, err
	}
	entries := make([]*models.QueueEntry, len(users))
	for i, cmd := range cmds {
		e, err := decodeEntry(cmd.Val())
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		entries[i] = e
	}
	return users, entries, nil
}

// List returns all present entries ordered by join time then user id.
func (q *RedisQueue) List(ctx context.Context) ([]*models.QueueEntry, error) {
	_, snap, err := q.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.QueueEntry, 0, len(snap))
	for _, e := range snap {
		if e != nil {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID.String() < out[j].UserID.String()
	})
	return out, nil
}

// Claim removes both entries only if their versions are unchanged.
func (q *RedisQueue) Claim(ctx context.Context, a, b *models.QueueEntry) error {
	ua, ub := a.UserID.String(), b.UserID.String()
	ok, err := claimScript.Run(ctx, q.rdb,
		[]string{q.entryKey(ua), q.entryKey(ub), q.poolKey()},
		strconv.FormatInt(a.Version, 10), strconv.FormatInt(b.Version, 10), ua, ub,
	).Int()
	if err != nil {
		return fmt.Errorf("redis claim: %w", err)
	}
	if ok != 1 {
		return apperr.ErrAlreadyMatched
	}
	return nil
}

// DeleteExpired drops pool members whose hash has lapsed in Redis or whose
// ExpiresAt is not after now.
func (q *RedisQueue) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	users, snap, err := q.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for i, u := range users {
		e := snap[i]
		version := ""
		if e != nil {
			if !e.Expired(now) {
				continue
			}
			version = strconv.FormatInt(e.Version, 10)
		}
		n, err := removeScript.Run(ctx, q.rdb, []string{q.entryKey(u), q.poolKey()}, u, version).Int()
		if err != nil {
			return removed, fmt.Errorf("redis expire %s: %w", u, err)
		}
		removed += n
	}
	return removed, nil
}
