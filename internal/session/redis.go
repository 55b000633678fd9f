package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/roshita-planner/internal/model"
	"github.com/jwalitptl/roshita-planner/pkg/errors"
	"github.com/jwalitptl/roshita-planner/pkg/logger"
	"github.com/jwalitptl/roshita-planner/pkg/metrics"
	"github.com/jwalitptl/roshita-planner/pkg/security"
)

const keyPrefix = "planner:session:"

// RedisStore keeps each session in a hash and publishes changes so that
// every instance serving the same user sees them.
type RedisStore struct {
	client          *redis.Client
	ttl             time.Duration
	defaultLanguage string
	sealer          security.Sealer
	metrics         *metrics.Metrics
	logger          *logger.Logger
}

func NewRedisStore(client *redis.Client, ttl time.Duration, defaultLanguage string, m *metrics.Metrics, log *logger.Logger) *RedisStore {
	if m == nil {
		m = metrics.NewNop()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RedisStore{
		client:          client,
		ttl:             ttl,
		defaultLanguage: defaultLanguage,
		sealer:          security.Nop(),
		metrics:         m,
		logger:          log.With("component", "session_store"),
	}
}

// WithSealer encrypts the bearer tokens before they are written to Redis.
func (s *RedisStore) WithSealer(sealer security.Sealer) *RedisStore {
	if sealer != nil {
		s.sealer = sealer
	}
	return s
}

// secret reports whether key holds a token.
func secret(key string) bool {
	return key == model.SessionKeyAccess || key == model.SessionKeyRefresh
}

func (s *RedisStore) seal(key, value string) (string, error) {
	if !secret(key) {
		return value, nil
	}
	return s.sealer.Seal(value)
}

func hashKey(id string) string    { return keyPrefix + id }
func channelKey(id string) string { return keyPrefix + id + ":changes" }

func (s *RedisStore) Create(ctx context.Context, values map[string]string) (*Session, error) {
	id := uuid.New().String()
	values = filterKeys(values)
	// an empty hash does not exist in redis; keep a marker field
	fields := map[string]interface{}{"_created": time.Now().UTC().Format(time.RFC3339)}
	for k, v := range values {
		sealed, err := s.seal(k, v)
		if err != nil {
			return nil, errors.Internal(fmt.Errorf("seal session key %s: %w", k, err))
		}
		fields[k] = sealed
	}

	err := s.observe("create", func() error {
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, hashKey(id), fields)
			pipe.Expire(ctx, hashKey(id), s.ttl)
			return nil
		})
		return err
	})
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("create session: %w", err))
	}
	return newSession(id, values, s.defaultLanguage), nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	var values map[string]string
	err := s.observe("get", func() error {
		var err error
		values, err = s.client.HGetAll(ctx, hashKey(id)).Result()
		if err != nil || len(values) == 0 {
			return err
		}
		return s.client.Expire(ctx, hashKey(id), s.ttl).Err()
	})
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("get session: %w", err))
	}
	if len(values) == 0 {
		return nil, errors.NotFound("session", nil)
	}
	values = filterKeys(values)
	for k, v := range values {
		if !secret(k) {
			continue
		}
		plain, err := s.sealer.Open(v)
		if err != nil {
			return nil, errors.Internal(fmt.Errorf("open session key %s: %w", k, err))
		}
		values[k] = plain
	}
	return newSession(id, values, s.defaultLanguage), nil
}

func (s *RedisStore) Set(ctx context.Context, id, key, value string) error {
	if !model.IsSessionKey(key) {
		return errors.BadRequest("unknown session key "+key, nil)
	}

	stored, err := s.seal(key, value)
	if err != nil {
		return errors.Internal(fmt.Errorf("seal session key %s: %w", key, err))
	}

	var (
		exists int64
		old    string
	)
	err = s.observe("set", func() error {
		var err error
		exists, err = s.client.Exists(ctx, hashKey(id)).Result()
		if err != nil || exists == 0 {
			return err
		}
		old, err = s.client.HGet(ctx, hashKey(id), key).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, hashKey(id), key, stored)
			pipe.Expire(ctx, hashKey(id), s.ttl)
			return nil
		})
		return err
	})
	if err != nil {
		return errors.Internal(fmt.Errorf("set session key %s: %w", key, err))
	}
	if exists == 0 {
		return errors.NotFound("session", nil)
	}

	change := Change{SessionID: id, Key: key, Old: old, New: value}
	if secret(key) {
		// tokens never travel over pub/sub
		change.Old, change.New = "", ""
	}
	payload, err := json.Marshal(change)
	if err != nil {
		return errors.Internal(err)
	}
	if err := s.observe("publish", func() error {
		return s.client.Publish(ctx, channelKey(id), payload).Err()
	}); err != nil {
		// the write itself succeeded; readers catch up on their next Get
		s.logger.Error(err, "failed to publish session change", "session_id", id, "key", key)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.observe("delete", func() error {
		return s.client.Del(ctx, hashKey(id)).Err()
	}); err != nil {
		return errors.Internal(fmt.Errorf("delete session: %w", err))
	}
	return nil
}

func (s *RedisStore) Subscribe(ctx context.Context, id string) (<-chan Change, error) {
	pubsub := s.client.Subscribe(ctx, channelKey(id))
	// wait for the subscription to be confirmed so no change is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, errors.Internal(fmt.Errorf("subscribe session %s: %w", id, err))
	}

	out := make(chan Change, subscriberBuffer)
	go func() {
		defer func() {
			_ = pubsub.Close()
			close(out)
		}()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var change Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					s.logger.Error(err, "dropping malformed session change", "session_id", id)
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *RedisStore) observe(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	s.metrics.RedisLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	s.metrics.RedisOperations.WithLabelValues(op, metrics.Status(err)).Inc()
	return err
}
