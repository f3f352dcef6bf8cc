// Package redismeta stores term meta in Redis, one hash per term at
// <prefix>term:<id>:meta. Every operation touches a single field, so
// HGET, HSET and HDEL keep each write atomic without transactions.
package redismeta

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/apex/log"
	"github.com/redis/go-redis/v9"

	"github.com/mesh-intelligence/tally/pkg/types"
)

// DefaultTimeout bounds each Redis round trip.
const DefaultTimeout = 3 * time.Second

var _ types.TermMetaStore = (*Store)(nil)

// Store implements types.TermMetaStore on go-redis.
type Store struct {
	rdb     *redis.Client
	prefix  string
	timeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New connects lazily; call Ping to check the server.
func New(cfg types.RedisConfig, opts ...Option) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.GetAddr(),
		DB:       cfg.DB,
		Password: cfg.Password,
	})
	s := &Store{
		rdb:     rdb,
		prefix:  cfg.GetKeyPrefix(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks that the server answers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis at %s: %w", s.rdb.Options().Addr, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// HashKey returns the hash holding the meta of a term.
func (s *Store) HashKey(termID string) string {
	return s.prefix + "term:" + termID + ":meta"
}

// Get implements types.TermMetaStore.
func (s *Store) Get(termID, key string) (string, bool, error) {
	ctx, cancel := s.context()
	defer cancel()

	v, err := s.rdb.HGet(ctx, s.HashKey(termID), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("HGET %s %s: %w", s.HashKey(termID), key, err)
	}
	return v, true, nil
}

// Set implements types.TermMetaStore.
func (s *Store) Set(termID, key, value string) error {
	ctx, cancel := s.context()
	defer cancel()

	if err := s.rdb.HSet(ctx, s.HashKey(termID), key, value).Err(); err != nil {
		return fmt.Errorf("HSET %s %s: %w", s.HashKey(termID), key, err)
	}
	log.WithFields(log.Fields{"term": termID, "key": key}).Debug("redis meta set")
	return nil
}

// Delete implements types.TermMetaStore. Redis drops the hash with its
// last field.
func (s *Store) Delete(termID, key string) error {
	ctx, cancel := s.context()
	defer cancel()

	n, err := s.rdb.HDel(ctx, s.HashKey(termID), key).Result()
	if err != nil {
		return fmt.Errorf("HDEL %s %s: %w", s.HashKey(termID), key, err)
	}
	if n > 0 {
		log.WithFields(log.Fields{"term": termID, "key": key}).Debug("redis meta deleted")
	}
	return nil
}

// MetaKeys lists the meta keys stored for a term, sorted.
func (s *Store) MetaKeys(termID string) ([]string, error) {
	ctx, cancel := s.context()
	defer cancel()

	keys, err := s.rdb.HKeys(ctx, s.HashKey(termID)).Result()
	if err != nil {
		return nil, fmt.Errorf("HKEYS %s: %w", s.HashKey(termID), err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}
