package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "deploy-orchestrator-backend/internal/errors"
	"deploy-orchestrator-backend/internal/logger"
)

// Lock is a held per-app deployment lock. The token ties the lock to the
// attempt that acquired it so a release can never drop a lock taken over by
// a later attempt after TTL expiry.
type Lock struct {
	AppID      string
	Token      string
	AcquiredAt time.Time
	TTL        time.Duration
}

// Manager guards deployments so at most one runs per app at a time.
type Manager interface {
	// Acquire takes the app's deployment lock or returns LockConflictError
	// when another deployment already holds it.
	Acquire(ctx context.Context, appID string) (*Lock, error)
	// Release drops the lock if it is still held by this token. Releasing a
	// lock that expired or was re-acquired is a no-op.
	Release(ctx context.Context, lock *Lock) error
}

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisManager implements Manager on a shared redis instance so the
// exclusion holds across server processes.
type RedisManager struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisManager(client *redis.Client, ttl time.Duration) *RedisManager {
	return &RedisManager{client: client, ttl: ttl}
}

func lockKey(appID string) string {
	return fmt.Sprintf("deploy:lock:%s", appID)
}

func (m *RedisManager) Acquire(ctx context.Context, appID string) (*Lock, error) {
	token := uuid.NewString()
	ok, err := m.client.SetNX(ctx, lockKey(appID), token, m.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquiring deployment lock for app %s: %w", appID, err)
	}
	if !ok {
		return nil, &apperrors.LockConflictError{AppID: appID}
	}
	logger.WithContext(ctx).Debugf("acquired deployment lock for app %s", appID)
	return &Lock{AppID: appID, Token: token, AcquiredAt: time.Now(), TTL: m.ttl}, nil
}

func (m *RedisManager) Release(ctx context.Context, lock *Lock) error {
	if lock == nil {
		return nil
	}
	deleted, err := releaseScript.Run(ctx, m.client, []string{lockKey(lock.AppID)}, lock.Token).Int()
	if err != nil {
		return fmt.Errorf("releasing deployment lock for app %s: %w", lock.AppID, err)
	}
	if deleted == 0 {
		logger.WithContext(ctx).Warnf("deployment lock for app %s was no longer held at release", lock.AppID)
	}
	return nil
}
