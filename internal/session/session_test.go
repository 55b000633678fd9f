package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/roshita-planner/internal/model"
	"github.com/jwalitptl/roshita-planner/pkg/errors"
	"github.com/jwalitptl/roshita-planner/pkg/security"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, time.Hour, model.LanguageArabic, nil, nil), mr
}

func stores(t *testing.T) map[string]Store {
	redisStore, _ := newRedisStore(t)
	return map[string]Store{
		"memory": NewMemoryStore(time.Hour, time.Minute, model.LanguageArabic),
		"redis":  redisStore,
	}
}

func TestMissingKeysYieldZeroValues(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s, err := store.Create(context.Background(), nil)
			require.NoError(t, err)

			got, err := store.Get(context.Background(), s.ID)
			require.NoError(t, err)
			assert.Empty(t, got.Token())
			assert.Empty(t, got.UserID())
			assert.False(t, got.LoggedIn())
			assert.Equal(t, model.LanguageArabic, got.Language())
		})
	}
}

func TestSetAndGet(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s, err := store.Create(ctx, map[string]string{
				model.SessionKeyAccess:     "tok",
				model.SessionKeyIsLoggedIn: "true",
				"unrelated":                "dropped",
			})
			require.NoError(t, err)

			require.NoError(t, store.Set(ctx, s.ID, model.SessionKeyLanguage, model.LanguageEnglish))

			got, err := store.Get(ctx, s.ID)
			require.NoError(t, err)
			assert.True(t, got.LoggedIn())
			assert.Equal(t, model.LanguageEnglish, got.Language())
			assert.NotContains(t, got.Values(), "unrelated")

			err = store.Set(ctx, s.ID, "unrelated", "x")
			assert.True(t, errors.IsKind(err, errors.KindValidation))
		})
	}
}

func TestUnknownSessionIsNotFound(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), "missing")
			assert.True(t, errors.IsKind(err, errors.KindNotFound))

			err = store.Set(context.Background(), "missing", model.SessionKeyLanguage, "en")
			assert.True(t, errors.IsKind(err, errors.KindNotFound))
		})
	}
}

func TestDelete(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s, err := store.Create(ctx, map[string]string{model.SessionKeyAccess: "tok"})
			require.NoError(t, err)
			require.NoError(t, store.Delete(ctx, s.ID))

			_, err = store.Get(ctx, s.ID)
			assert.True(t, errors.IsKind(err, errors.KindNotFound))
		})
	}
}

func TestSubscribeSeesLanguageChange(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			s, err := store.Create(ctx, nil)
			require.NoError(t, err)
			changes, err := store.Subscribe(ctx, s.ID)
			require.NoError(t, err)

			require.NoError(t, store.Set(ctx, s.ID, model.SessionKeyLanguage, model.LanguageEnglish))

			select {
			case change := <-changes:
				assert.Equal(t, model.SessionKeyLanguage, change.Key)
				assert.Equal(t, "", change.Old)
				assert.Equal(t, model.LanguageEnglish, change.New)
			case <-time.After(2 * time.Second):
				t.Fatal("no change delivered")
			}

			cancel()
			assert.Eventually(t, func() bool {
				select {
				case _, ok := <-changes:
					return !ok
				default:
					return false
				}
			}, 2*time.Second, 10*time.Millisecond)
		})
	}
}

func TestRedisSessionExpires(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	s, err := store.Create(ctx, map[string]string{model.SessionKeyAccess: "tok"})
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)
	_, err = store.Get(ctx, s.ID)
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
}

type fakeRefresher struct {
	calls  int
	access string
	err    error
}

func (f *fakeRefresher) RefreshToken(_ context.Context, refresh string) (string, error) {
	f.calls++
	return f.access, f.err
}

func token(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)
	return signed
}

func TestRedisSealsTokensAtRest(t *testing.T) {
	store, mr := newRedisStore(t)
	key, err := security.ParseKey("000102030405060708090a0b0c0d0e0f")
	require.NoError(t, err)
	sealer, err := security.NewAESSealer(key)
	require.NoError(t, err)
	store.WithSealer(sealer)

	ctx := context.Background()
	s, err := store.Create(ctx, map[string]string{
		model.SessionKeyAccess: "access-1",
		model.SessionKeyUserID: "7",
	})
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, s.ID, model.SessionKeyRefresh, "refresh-1"))

	raw := mr.HGet(hashKey(s.ID), model.SessionKeyAccess)
	assert.NotEqual(t, "access-1", raw)
	assert.NotContains(t, mr.HGet(hashKey(s.ID), model.SessionKeyRefresh), "refresh-1")
	assert.Equal(t, "7", mr.HGet(hashKey(s.ID), model.SessionKeyUserID))

	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "access-1", got.Token())
	assert.Equal(t, "refresh-1", got.RefreshToken())
}

func TestRedisRedactsTokenChanges(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := store.Create(ctx, nil)
	require.NoError(t, err)
	changes, err := store.Subscribe(ctx, s.ID)
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, s.ID, model.SessionKeyAccess, "secret"))
	select {
	case c := <-changes:
		assert.Equal(t, model.SessionKeyAccess, c.Key)
		assert.Empty(t, c.New)
	case <-time.After(2 * time.Second):
		t.Fatal("no change published")
	}
}

func TestManagerStartReadsClaims(t *testing.T) {
	store := NewMemoryStore(time.Hour, time.Minute, model.LanguageArabic)
	m := NewManager(store, nil, time.Minute, nil)

	access := token(t, jwt.MapClaims{"user_id": float64(12), "type": "doctor"})
	s, err := m.Start(context.Background(), Login{Access: access, Refresh: "r", Language: "en"})
	require.NoError(t, err)

	assert.Equal(t, "12", s.UserID())
	assert.Equal(t, "doctor", s.UserType())
	assert.Equal(t, "en", s.Language())
	assert.True(t, s.LoggedIn())

	_, err = m.Start(context.Background(), Login{})
	assert.True(t, errors.IsKind(err, errors.KindAuthMissing))
}

func TestManagerRefreshesExpiredToken(t *testing.T) {
	store := NewMemoryStore(time.Hour, time.Minute, model.LanguageArabic)
	refresher := &fakeRefresher{}
	m := NewManager(store, refresher, time.Minute, nil)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	expired := token(t, jwt.MapClaims{"user_id": "1", "exp": now.Add(-time.Hour).Unix()})
	fresh := token(t, jwt.MapClaims{"user_id": "1", "exp": now.Add(time.Hour).Unix()})
	refresher.access = fresh

	s, err := store.Create(context.Background(), map[string]string{
		model.SessionKeyAccess:  expired,
		model.SessionKeyRefresh: "refresh-1",
	})
	require.NoError(t, err)

	got, err := m.Resolve(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, fresh, got.Token())
	assert.Equal(t, 1, refresher.calls)

	// still valid, no second refresh
	_, err = m.Resolve(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, refresher.calls)
}

func TestManagerSetLanguage(t *testing.T) {
	store := NewMemoryStore(time.Hour, time.Minute, model.LanguageArabic)
	m := NewManager(store, nil, 0, nil)
	s, err := store.Create(context.Background(), nil)
	require.NoError(t, err)

	assert.True(t, errors.IsKind(m.SetLanguage(context.Background(), s.ID, "fr"), errors.KindValidation))
	require.NoError(t, m.SetLanguage(context.Background(), s.ID, "en"))

	got, err := store.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, "en", got.Language())
}

func TestManagerAdoptFollowsNewUser(t *testing.T) {
	store := NewMemoryStore(time.Hour, time.Minute, model.LanguageArabic)
	m := NewManager(store, nil, time.Minute, nil)
	var left []string
	m.OnUserSwitch(func(old string) { left = append(left, old) })
	ctx := context.Background()

	first := token(t, jwt.MapClaims{"user_id": "1", "type": "doctor", "patient_id": "70"})
	s, err := m.Start(ctx, Login{Access: first, Refresh: "refresh-1"})
	require.NoError(t, err)

	// same user, newer token: identity and refresh token stay
	renewed := token(t, jwt.MapClaims{"user_id": "1", "type": "doctor", "iat": float64(2)})
	got, err := m.Adopt(ctx, s.ID, renewed)
	require.NoError(t, err)
	assert.Equal(t, "70", got.PatientID())
	assert.Equal(t, "refresh-1", got.RefreshToken())
	assert.Empty(t, left)

	second := token(t, jwt.MapClaims{"user_id": "2", "type": "staff"})
	got, err = m.Adopt(ctx, s.ID, second)
	require.NoError(t, err)
	assert.Equal(t, second, got.Token())
	assert.Equal(t, "2", got.UserID())
	assert.Equal(t, "staff", got.UserType())
	assert.Empty(t, got.PatientID())
	assert.Empty(t, got.RefreshToken())
	assert.Equal(t, []string{"1"}, left)

	_, err = m.Adopt(ctx, s.ID, "not-a-jwt")
	assert.True(t, errors.IsKind(err, errors.KindAuthMissing))
}

func TestManagerReusesSessionPerBearer(t *testing.T) {
	store := NewMemoryStore(time.Hour, time.Minute, model.LanguageArabic)
	m := NewManager(store, nil, time.Minute, nil)
	ctx := context.Background()
	bearer := token(t, jwt.MapClaims{"user_id": "5"})

	a, err := m.StartForBearer(ctx, bearer)
	require.NoError(t, err)
	b, err := m.StartForBearer(ctx, bearer)
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)

	other, err := m.StartForBearer(ctx, token(t, jwt.MapClaims{"user_id": "6"}))
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, other.ID)

	// an ended session is not handed out again
	require.NoError(t, m.End(ctx, a.ID))
	c, err := m.StartForBearer(ctx, bearer)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, c.ID)

	// nor is one that moved on to another token
	_, err = m.Adopt(ctx, c.ID, token(t, jwt.MapClaims{"user_id": "5", "iat": float64(9)}))
	require.NoError(t, err)
	d, err := m.StartForBearer(ctx, bearer)
	require.NoError(t, err)
	assert.NotEqual(t, c.ID, d.ID)
}
