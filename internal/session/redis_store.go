package session

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key layout:
//
//	sess:<id>          hash with the session fields, TTL = absolute lifetime
//	sess:tomb:<id>     revocation tombstone, TTL = absolute lifetime
//	sess:subject:<id>  the subject's single live session ID
const (
	keySession = "sess:"
	keyTomb    = "sess:tomb:"
	keySubject = "sess:subject:"
)

// touchScript advances last_seen only when the new timestamp is newer.
// Concurrent requests from one session race freely; the stored value is
// always the latest observed activity regardless of arrival order.
var touchScript = redis.NewScript(`
    if redis.call('EXISTS', KEYS[1]) == 0 then
        return 0
    end
    local cur = tonumber(redis.call('HGET', KEYS[1], 'last_seen') or '0')
    local new = tonumber(ARGV[1])
    if new > cur then
        redis.call('HSET', KEYS[1], 'last_seen', new)
    end
    return 1
`)

// RedisStore implements Store on the shared Redis instance, making
// session decisions consistent across every kiosk worker.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore { return &RedisStore{rdb: rdb} }

func (s *RedisStore) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	key := keySession + sess.ID
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"subject_id":   sess.SubjectID,
		"subject_name": sess.SubjectName,
		"vip":          boolField(sess.VIP),
		"csrf":         sess.CSRFToken,
		"created_at":   sess.CreatedAt.UTC().UnixNano(),
		"last_seen":    sess.LastSeenAt.UTC().UnixNano(),
	})
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	fields, err := s.rdb.HGetAll(ctx, keySession+id).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNoSession
	}
	subjectID, _ := strconv.ParseUint(fields["subject_id"], 10, 64)
	createdNs, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	lastSeenNs, _ := strconv.ParseInt(fields["last_seen"], 10, 64)
	return &Session{
		ID:          id,
		SubjectID:   subjectID,
		SubjectName: fields["subject_name"],
		VIP:         fields["vip"] == "1",
		CSRFToken:   fields["csrf"],
		CreatedAt:   time.Unix(0, createdNs).UTC(),
		LastSeenAt:  time.Unix(0, lastSeenNs).UTC(),
		State:       StateAuthenticated,
	}, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, keySession+id).Err()
}

func (s *RedisStore) Tombstone(ctx context.Context, id string, ttl time.Duration) error {
	return s.rdb.Set(ctx, keyTomb+id, "1", ttl).Err()
}

func (s *RedisStore) Tombstoned(ctx context.Context, id string) (bool, error) {
	n, err := s.rdb.Exists(ctx, keyTomb+id).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) SwapSubjectSession(ctx context.Context, subjectID uint64, id string, ttl time.Duration) (string, error) {
	key := keySubject + strconv.FormatUint(subjectID, 10)
	prev, err := s.rdb.SetArgs(ctx, key, id, redis.SetArgs{Get: true, TTL: ttl}).Result()
	if err == redis.Nil {
		return "", nil // no prior session for this subject
	}
	if err != nil {
		return "", err
	}
	return prev, nil
}

func (s *RedisStore) ClearSubjectSession(ctx context.Context, subjectID uint64, id string) error {
	key := keySubject + strconv.FormatUint(subjectID, 10)
	// Delete only when the mapping still points at this session; a
	// newer login must not be knocked out by a stale logout.
	const script = `
        if redis.call('GET', KEYS[1]) == ARGV[1] then
            return redis.call('DEL', KEYS[1])
        end
        return 0
    `
	return s.rdb.Eval(ctx, script, []string{key}, id).Err()
}

func (s *RedisStore) Touch(ctx context.Context, id string, ts time.Time) error {
	return touchScript.Run(ctx, s.rdb, []string{keySession + id}, ts.UTC().UnixNano()).Err()
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
