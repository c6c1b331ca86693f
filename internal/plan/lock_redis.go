package plan

import (
	"context"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// RedisLocker implements Locker over Redis SET NX so independent API
// instances serialize passes for the same tenant. The TTL bounds lock
// lifetime if a holder dies mid-pass.
type RedisLocker struct {
	rdb *redis.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

// releaseScript deletes the lock only if the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	token := uuid.New().String()
	name := "poleplan:lock:" + key
	ok, err := l.rdb.SetNX(ctx, name, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPassInProgress
	}
	return func() {
		relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(relCtx, l.rdb, []string{name}, token).Err()
	}, nil
}
