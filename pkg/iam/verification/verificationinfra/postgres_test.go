package verificationinfra

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/dbx/dbxtest"
	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/verification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresCodeRepository(t *testing.T) {
	db := dbxtest.Open(t)
	repo := NewPostgresCodeRepository(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	newCode := func(id string) *verification.Code {
		return &verification.Code{
			ID:        id,
			TenantID:  "proj-1",
			Type:      verification.TypePasswordReset,
			Data:      []byte(`{"user_id":"u-1"}`),
			Method:    []byte(`{"email":"ada@example.com"}`),
			CreatedAt: now,
			ExpiresAt: now.Add(time.Hour),
		}
	}

	t.Run("round trip", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, newCode("code-1")))

		got, err := repo.FindByID(ctx, "proj-1", "code-1")
		require.NoError(t, err)
		assert.Equal(t, verification.TypePasswordReset, got.Type)
		assert.JSONEq(t, `{"user_id":"u-1"}`, string(got.Data))
		assert.JSONEq(t, `{"email":"ada@example.com"}`, string(got.Method))
		assert.True(t, now.Equal(got.ExpiresAt.Add(-time.Hour)))
		assert.Nil(t, got.UsedAt)
	})

	t.Run("codes are scoped to their project", func(t *testing.T) {
		_, err := repo.FindByID(ctx, "proj-2", "code-1")
		assert.True(t, errx.HasCode(err, verification.CodeNotFound))
	})

	t.Run("claim succeeds once", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, newCode("code-2")))

		ok, err := repo.Claim(ctx, "proj-1", "code-2", now)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.Claim(ctx, "proj-1", "code-2", now.Add(time.Second))
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := repo.FindByID(ctx, "proj-1", "code-2")
		require.NoError(t, err)
		require.NotNil(t, got.UsedAt)
		assert.True(t, now.Equal(*got.UsedAt))
	})

	t.Run("claim refuses an expired code", func(t *testing.T) {
		code := newCode("code-4")
		require.NoError(t, repo.Create(ctx, code))

		ok, err := repo.Claim(ctx, "proj-1", "code-4", code.ExpiresAt)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := repo.FindByID(ctx, "proj-1", "code-4")
		require.NoError(t, err)
		assert.Nil(t, got.UsedAt)
	})

	t.Run("concurrent claims have one winner", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, newCode("code-3")))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := repo.Claim(ctx, "proj-1", "code-3", now)
				if err == nil && ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.EqualValues(t, 1, wins.Load())
	})
}
