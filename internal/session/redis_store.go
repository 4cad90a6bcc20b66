package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fedutinova/invoice-extractor/internal/redis"
)

const keyPrefix = "invoice_session:"

type redisStore struct {
	redis *redis.Service
	ttl   time.Duration
}

// NewRedisStore keeps sessions as JSON under invoice_session:<id> with a
// sliding ttl. Updates use WATCH so concurrent attempts on one session
// cannot both begin.
func NewRedisStore(svc *redis.Service, ttl time.Duration) Store {
	return &redisStore{redis: svc, ttl: ttl}
}

func (s *redisStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, ok, err := s.redis.Get(ctx, keyPrefix+id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return New(id), nil
	}
	return decode(id, raw)
}

func (s *redisStore) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	var next *Session
	err := s.redis.Update(ctx, keyPrefix+id, s.ttl, func(cur []byte) ([]byte, error) {
		sess := New(id)
		if cur != nil {
			decoded, err := decode(id, cur)
			if err != nil {
				return nil, err
			}
			sess = decoded
		}
		if err := fn(sess); err != nil {
			return nil, err
		}
		next = sess
		return json.Marshal(sess)
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

func (s *redisStore) Delete(ctx context.Context, id string) error {
	return s.redis.Del(ctx, keyPrefix+id)
}

func (s *redisStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx)
}

func (s *redisStore) Close() error {
	return s.redis.Close()
}

func decode(id string, raw []byte) (*Session, error) {
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &sess, nil
}
