package otp

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"giftwave/internal/apperr"
	"giftwave/internal/types"
)

func setupRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("GIFTWAVE_TEST_REDIS")
	if addr == "" {
		t.Skip("GIFTWAVE_TEST_REDIS not set; skipping Redis-backed OTP tests")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return NewRedisStore(client, time.Minute)
}

func TestRedisStore_RoundTripAndCAS(t *testing.T) {
	ctx := context.Background()
	s := setupRedisStore(t)
	uid := types.ID("user-1")
	now := time.Now().UTC()
	v := &Verification{
		ID:          types.NewID(),
		UserID:      &uid,
		Channels:    Channels{Phone: "03001234567", Email: "redis@example.com"},
		Type:        TypePhone,
		Code:        "654321",
		Status:      StatusPending,
		MaxAttempts: 3,
		ExpiresAt:   now.Add(5 * time.Minute),
		CreatedAt:   now,
	}
	require.NoError(t, s.Create(ctx, v))
	t.Cleanup(func() { _ = s.Delete(ctx, v.ID) })

	got, err := s.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "654321", got.Code)
	assert.Equal(t, uid, *got.UserID)
	assert.True(t, got.ExpiresAt.Equal(v.ExpiresAt))

	n, err := s.IncrementAttempts(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ok, err := s.SetStatus(ctx, v.ID, StatusPending, StatusVerified, now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.SetStatus(ctx, v.ID, StatusPending, StatusFailed, now)
	require.NoError(t, err)
	assert.False(t, ok, "terminal status must not change")

	got, err = s.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, got.Status)
	assert.NotNil(t, got.VerifiedAt)
}

func TestRedisStore_CreateSupersedesSameChannels(t *testing.T) {
	ctx := context.Background()
	s := setupRedisStore(t)
	now := time.Now()
	ch := Channels{Phone: "03009998887"}
	first := &Verification{ID: types.NewID(), Channels: ch, Type: TypePhone, Code: "111111", Status: StatusPending, MaxAttempts: 3, ExpiresAt: now.Add(time.Minute), CreatedAt: now}
	second := &Verification{ID: types.NewID(), Channels: ch, Type: TypePhone, Code: "222222", Status: StatusPending, MaxAttempts: 3, ExpiresAt: now.Add(time.Minute), CreatedAt: now}
	require.NoError(t, s.Create(ctx, first))
	require.NoError(t, s.Create(ctx, second))
	t.Cleanup(func() { _ = s.Delete(ctx, second.ID) })

	_, err := s.Get(ctx, first.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = s.IncrementAttempts(ctx, first.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "increment must not recreate a deleted record")
}

func TestRedisStore_IncrementStopsAtCap(t *testing.T) {
	ctx := context.Background()
	s := setupRedisStore(t)
	now := time.Now()
	v := &Verification{ID: types.NewID(), Channels: Channels{Phone: "03007776665"}, Type: TypePhone, Code: "333333", Status: StatusPending, MaxAttempts: 3, ExpiresAt: now.Add(time.Minute), CreatedAt: now}
	require.NoError(t, s.Create(ctx, v))
	t.Cleanup(func() { _ = s.Delete(ctx, v.ID) })

	for want := 1; want <= 3; want++ {
		n, err := s.IncrementAttempts(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	_, err := s.IncrementAttempts(ctx, v.ID)
	assert.True(t, errors.Is(err, ErrNotPending), "capped record is failed: %v", err)

	got, err := s.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Attempts)
	assert.Equal(t, StatusFailed, got.Status)
}

func TestRedisStore_ConcurrentCreateKeepsOneActive(t *testing.T) {
	ctx := context.Background()
	s := setupRedisStore(t)
	now := time.Now()
	ch := Channels{Phone: "03005554443"}

	const n = 10
	ids := make([]types.ID, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		ids[i] = types.NewID()
		wg.Add(1)
		go func(id types.ID) {
			defer wg.Done()
			v := &Verification{ID: id, Channels: ch, Type: TypePhone, Code: "444444", Status: StatusPending, MaxAttempts: 3, ExpiresAt: now.Add(time.Minute), CreatedAt: now}
			assert.NoError(t, s.Create(ctx, v))
		}(ids[i])
	}
	wg.Wait()

	alive := 0
	for _, id := range ids {
		if _, err := s.Get(ctx, id); err == nil {
			alive++
			t.Cleanup(func() { _ = s.Delete(ctx, id) })
		}
	}
	assert.Equal(t, 1, alive)
}
