package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/fragrance-etl/internal/domain/perfume"
	"github.com/turtacn/fragrance-etl/pkg/errors"
)

// DefaultLookupTTL bounds how long a resolved ID is trusted.
const DefaultLookupTTL = 24 * time.Hour

// LookupStore keeps resolved lookup IDs in one hash per table so that
// concurrent runs share lookup-or-create results.
type LookupStore struct {
	client *Client
	prefix string
	ttl    time.Duration
}

// NewLookupStore creates the store.  A non-positive ttl uses DefaultLookupTTL.
func NewLookupStore(client *Client, prefix string, ttl time.Duration) *LookupStore {
	if ttl <= 0 {
		ttl = DefaultLookupTTL
	}
	return &LookupStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *LookupStore) hashKey(table perfume.LookupTable) string {
	return s.prefix + "lookup:" + string(table)
}

// Get returns the cached ID for the normalized key.
func (s *LookupStore) Get(ctx context.Context, table perfume.LookupTable, key string) (string, bool, error) {
	if s.client.isClosed() {
		return "", false, ErrClientClosed
	}
	id, err := s.client.rdb.HGet(ctx, s.hashKey(table), key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, errors.ErrCodeCacheError, "lookup cache read failed")
	}
	return id, true, nil
}

// Set records the ID and refreshes the table hash's TTL.
func (s *LookupStore) Set(ctx context.Context, table perfume.LookupTable, key, id string) error {
	if s.client.isClosed() {
		return ErrClientClosed
	}
	hk := s.hashKey(table)
	pipe := s.client.rdb.TxPipeline()
	pipe.HSet(ctx, hk, key, id)
	pipe.Expire(ctx, hk, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "lookup cache write failed")
	}
	return nil
}

// Purge drops every cached table.
func (s *LookupStore) Purge(ctx context.Context) error {
	if s.client.isClosed() {
		return ErrClientClosed
	}
	keys := make([]string, len(perfume.LookupTables))
	for i, t := range perfume.LookupTables {
		keys[i] = s.hashKey(t)
	}
	if err := s.client.rdb.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "lookup cache purge failed")
	}
	return nil
}
