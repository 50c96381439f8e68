package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmanzanog/price-reconciler/internal/infrastructure/persistence/records"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces keys of the production environment. Test runs use
// "test" so both can share one server.
const (
	DefaultPrefix = "prod"
	TestPrefix    = "test"
)

const scanBatch = 500

// RecordStore is a records.Store backed by Redis. Every key is stored as
// "{prefix}:{key}".
type RecordStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRecordStore(client redis.UniversalClient, prefix string) *RecordStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RecordStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RecordStore) key(k string) string {
	return s.prefix + ":" + k
}

func (s *RecordStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, records.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get %s from redis: %w", key, err)
	}
	return data, nil
}

func (s *RecordStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s in redis: %w", key, err)
	}
	return nil
}

func (s *RecordStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete %s from redis: %w", key, err)
	}
	return nil
}

// Keys scans for keys starting with prefix and returns them without the
// store namespace.
func (s *RecordStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.key(escapeGlob(prefix))+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.prefix+":"))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan redis keys: %w", err)
	}
	return keys, nil
}

// Ping checks connectivity.
func (s *RecordStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
