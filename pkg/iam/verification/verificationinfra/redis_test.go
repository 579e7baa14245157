package verificationinfra

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/verification"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisRepo(t *testing.T) (*RedisCodeRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisCodeRepository(rdb), mr
}

func sampleCode(now time.Time) *verification.Code {
	return &verification.Code{
		ID:        "abc123",
		TenantID:  "proj-1",
		Type:      verification.TypePasswordReset,
		Data:      json.RawMessage(`{"user_id":"u-1"}`),
		Method:    json.RawMessage(`{"email":"ada@example.com"}`),
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestRedisCreateAndFind(t *testing.T) {
	repo, mr := newRedisRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, repo.Create(ctx, sampleCode(now)))

	got, err := repo.FindByID(ctx, "proj-1", "abc123")
	require.NoError(t, err)
	assert.Equal(t, verification.TypePasswordReset, got.Type)
	assert.JSONEq(t, `{"user_id":"u-1"}`, string(got.Data))
	assert.JSONEq(t, `{"email":"ada@example.com"}`, string(got.Method))
	assert.True(t, now.Equal(got.CreatedAt))
	assert.True(t, now.Add(time.Hour).Equal(got.ExpiresAt))
	assert.Nil(t, got.UsedAt)

	ttl := mr.TTL("verification:proj-1:abc123")
	assert.Greater(t, ttl, expiredRetention)
	assert.LessOrEqual(t, ttl, time.Hour+expiredRetention)

	_, err = repo.FindByID(ctx, "proj-2", "abc123")
	assert.True(t, errx.HasCode(err, verification.CodeNotFound))
}

func TestRedisClaimOnce(t *testing.T) {
	repo, _ := newRedisRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, repo.Create(ctx, sampleCode(now)))

	ok, err := repo.Claim(ctx, "proj-1", "abc123", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Claim(ctx, "proj-1", "abc123", now.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.FindByID(ctx, "proj-1", "abc123")
	require.NoError(t, err)
	require.NotNil(t, got.UsedAt)
	assert.True(t, now.Equal(*got.UsedAt))
}

func TestRedisClaimRefusesExpiredCode(t *testing.T) {
	repo, _ := newRedisRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()
	code := sampleCode(now)
	require.NoError(t, repo.Create(ctx, code))

	ok, err := repo.Claim(ctx, "proj-1", "abc123", code.ExpiresAt)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.FindByID(ctx, "proj-1", "abc123")
	require.NoError(t, err)
	assert.Nil(t, got.UsedAt)

	ok, err = repo.Claim(ctx, "proj-1", "abc123", code.ExpiresAt.Add(-time.Millisecond))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisClaimMissingCode(t *testing.T) {
	repo, mr := newRedisRepo(t)

	ok, err := repo.Claim(context.Background(), "proj-1", "missing", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("verification:proj-1:missing"))
}

func TestRedisConcurrentClaim(t *testing.T) {
	repo, _ := newRedisRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, repo.Create(ctx, sampleCode(now)))

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.Claim(ctx, "proj-1", "abc123", now)
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
}

func TestRedisExpiredCodesAreRetained(t *testing.T) {
	repo, mr := newRedisRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()
	code := sampleCode(now)
	code.ExpiresAt = now
	require.NoError(t, repo.Create(ctx, code))

	mr.FastForward(time.Hour)
	got, err := repo.FindByID(ctx, "proj-1", "abc123")
	require.NoError(t, err)
	assert.True(t, got.IsExpired(now))

	mr.FastForward(expiredRetention)
	_, err = repo.FindByID(ctx, "proj-1", "abc123")
	assert.True(t, errx.HasCode(err, verification.CodeNotFound))
}
