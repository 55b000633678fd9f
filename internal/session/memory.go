package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/roshita-planner/internal/model"
	"github.com/jwalitptl/roshita-planner/pkg/errors"
)

const subscriberBuffer = 16

// MemoryStore keeps sessions in process. Suitable for a single instance.
type MemoryStore struct {
	cache           *cache.Cache
	defaultLanguage string

	mu          sync.Mutex
	subscribers map[string]map[chan Change]struct{}
}

func NewMemoryStore(ttl, cleanupInterval time.Duration, defaultLanguage string) *MemoryStore {
	return &MemoryStore{
		cache:           cache.New(ttl, cleanupInterval),
		defaultLanguage: defaultLanguage,
		subscribers:     make(map[string]map[chan Change]struct{}),
	}
}

func (s *MemoryStore) Create(_ context.Context, values map[string]string) (*Session, error) {
	id := uuid.New().String()
	s.cache.Set(id, filterKeys(values), cache.DefaultExpiration)
	return newSession(id, values, s.defaultLanguage), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, ok := s.load(id)
	if !ok {
		return nil, errors.NotFound("session", nil)
	}
	// sliding expiry
	s.cache.Set(id, values, cache.DefaultExpiration)
	return newSession(id, values, s.defaultLanguage), nil
}

func (s *MemoryStore) Set(_ context.Context, id, key, value string) error {
	if !model.IsSessionKey(key) {
		return errors.BadRequest("unknown session key "+key, nil)
	}

	s.mu.Lock()
	values, ok := s.load(id)
	if !ok {
		s.mu.Unlock()
		return errors.NotFound("session", nil)
	}
	next := make(map[string]string, len(values)+1)
	for k, v := range values {
		next[k] = v
	}
	old := next[key]
	next[key] = value
	s.cache.Set(id, next, cache.DefaultExpiration)

	// sends stay under the lock so a closing subscriber cannot race them
	change := Change{SessionID: id, Key: key, Old: old, New: value}
	for ch := range s.subscribers[id] {
		select {
		case ch <- change:
		default:
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.cache.Delete(id)
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, id string) (<-chan Change, error) {
	ch := make(chan Change, subscriberBuffer)

	s.mu.Lock()
	if s.subscribers[id] == nil {
		s.subscribers[id] = make(map[chan Change]struct{})
	}
	s.subscribers[id][ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subscribers[id], ch)
		if len(s.subscribers[id]) == 0 {
			delete(s.subscribers, id)
		}
		s.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

func (s *MemoryStore) load(id string) (map[string]string, bool) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	values, ok := v.(map[string]string)
	return values, ok
}
