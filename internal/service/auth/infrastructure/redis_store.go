package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"atelier/internal/pkg/redis"
	"atelier/internal/service/auth/domain"
)

const sessionKeyPrefix = "auth:session:"

// Rotation and revocation must be read-check-write atomic, otherwise two
// concurrent refresh calls with the same token could both succeed. Both run
// as Lua so the check and the write happen in one Redis step.
const rotateScript = `
local raw = redis.call('GET', KEYS[1])
if not raw then
	return 'notfound'
end
local s = cjson.decode(raw)
if s.revoked then
	return 'revoked'
end
s.revoked = true
local ttl = redis.call('TTL', KEYS[1])
if ttl > 0 then
	redis.call('SET', KEYS[1], cjson.encode(s), 'EX', ttl)
else
	redis.call('SET', KEYS[1], cjson.encode(s))
end
redis.call('SET', KEYS[2], ARGV[1], 'EX', ARGV[2])
return 'ok'
`

const revokeScript = `
local raw = redis.call('GET', KEYS[1])
if not raw then
	return 'ok'
end
local s = cjson.decode(raw)
if s.revoked then
	return 'ok'
end
s.revoked = true
local ttl = redis.call('TTL', KEYS[1])
if ttl > 0 then
	redis.call('SET', KEYS[1], cjson.encode(s), 'EX', ttl)
else
	redis.call('SET', KEYS[1], cjson.encode(s))
end
return 'ok'
`

// RedisSessionStore keeps refresh sessions in Redis with a TTL so expired
// entries evict themselves.
type RedisSessionStore struct {
	client *redis.Client
}

func NewRedisSessionStore(client *redis.Client) (*RedisSessionStore, error) {
	if err := client.LoadScriptFromContent("session_rotate", rotateScript); err != nil {
		return nil, err
	}
	if err := client.LoadScriptFromContent("session_revoke", revokeScript); err != nil {
		return nil, err
	}
	return &RedisSessionStore{client: client}, nil
}

func (r *RedisSessionStore) Put(ctx context.Context, s *domain.Session, ttl time.Duration) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "marshal session")
	}
	return r.client.GetClient().Set(ctx, sessionKeyPrefix+s.ID, payload, ttl).Err()
}

func (r *RedisSessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	raw, err := r.client.GetClient().Get(ctx, sessionKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, errors.Wrap(err, "get session")
	}
	var s domain.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errors.Wrap(err, "unmarshal session")
	}
	return &s, nil
}

func (r *RedisSessionStore) Revoke(ctx context.Context, id string) error {
	_, err := r.client.RunScript(ctx, "session_revoke", []string{sessionKeyPrefix + id})
	return errors.Wrap(err, "revoke session")
}

func (r *RedisSessionStore) Rotate(ctx context.Context, oldID string, next *domain.Session, ttl time.Duration) error {
	payload, err := json.Marshal(next)
	if err != nil {
		return errors.Wrap(err, "marshal session")
	}
	res, err := r.client.RunScript(ctx, "session_rotate",
		[]string{sessionKeyPrefix + oldID, sessionKeyPrefix + next.ID},
		payload, int(ttl.Seconds()))
	if err != nil {
		return errors.Wrap(err, "rotate session")
	}
	switch res {
	case "notfound":
		return domain.ErrSessionNotFound
	case "revoked":
		return domain.ErrRevoked
	}
	return nil
}
