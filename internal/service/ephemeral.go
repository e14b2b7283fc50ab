package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EphemeralStore holds short-lived per-attempt working state in redis.
// Every key embeds the attempt id, so Clear deletes exactly the keys this
// attempt wrote; nothing ever scans for wildcard patterns.
type EphemeralStore interface {
	Set(ctx context.Context, attemptID, field, value string) error
	Get(ctx context.Context, attemptID, field string) (string, error)
	Clear(ctx context.Context, attemptID string) error
}

// Fields the orchestrator stores per attempt.
const (
	EphemeralFieldPhase       = "phase"
	EphemeralFieldCommitSHA   = "commit_sha"
	EphemeralFieldProvisional = "provisional_url"
	EphemeralFieldWorkflow    = "workflow_file"
)

// RedisEphemeralStore keeps each attempt's state in one hash with a TTL as
// a safety net for attempts that die without cleanup.
type RedisEphemeralStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisEphemeralStore(client *redis.Client, ttl time.Duration) *RedisEphemeralStore {
	return &RedisEphemeralStore{client: client, ttl: ttl}
}

func ephemeralKey(attemptID string) string {
	return fmt.Sprintf("deploy:attempt:%s", attemptID)
}

func (s *RedisEphemeralStore) Set(ctx context.Context, attemptID, field, value string) error {
	key := ephemeralKey(attemptID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, field, value)
	pipe.Expire(ctx, key, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisEphemeralStore) Get(ctx context.Context, attemptID, field string) (string, error) {
	v, err := s.client.HGet(ctx, ephemeralKey(attemptID), field).Result()
	if err == redis.Nil {
		return "", nil
	}
	return v, err
}

func (s *RedisEphemeralStore) Clear(ctx context.Context, attemptID string) error {
	return s.client.Del(ctx, ephemeralKey(attemptID)).Err()
}

// NopEphemeralStore is used in tests and when no redis is configured.
type NopEphemeralStore struct{}

func (NopEphemeralStore) Set(context.Context, string, string, string) error { return nil }
func (NopEphemeralStore) Get(context.Context, string, string) (string, error) {
	return "", nil
}
func (NopEphemeralStore) Clear(context.Context, string) error { return nil }
