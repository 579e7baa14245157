package apikeyinfra

import (
	"context"
	"testing"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/dbx/dbxtest"
	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/apikey"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresAPIKeyRepository(t *testing.T) {
	db := dbxtest.Open(t)
	dbxtest.SeedProject(t, db, "proj-1")
	dbxtest.SeedProject(t, db, "proj-2")
	repo := NewPostgresAPIKeyRepository(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	set := &apikey.KeySet{
		ID:                   uuid.NewString(),
		TenantID:             "proj-1",
		Description:          "backend",
		PublishableClientKey: &apikey.StoredKey{Hash: "h-pck", LastFour: "abcd"},
		SecretServerKey:      &apikey.StoredKey{Hash: "h-ssk", LastFour: "efgh"},
		CreatedAt:            now,
		ExpiresAt:            now.Add(24 * time.Hour),
	}
	require.NoError(t, repo.Create(ctx, set))

	t.Run("lookup by hash is scoped to tier and project", func(t *testing.T) {
		got, err := repo.FindByKeyHash(ctx, "proj-1", apikey.TierSecret, "h-ssk")
		require.NoError(t, err)
		assert.Equal(t, set.ID, got.ID)
		assert.Equal(t, "efgh", got.SecretServerKey.LastFour)
		assert.Nil(t, got.SuperSecretAdminKey)

		_, err = repo.FindByKeyHash(ctx, "proj-1", apikey.TierPublishable, "h-ssk")
		assert.True(t, errx.HasCode(err, apikey.CodeSetNotFound))

		_, err = repo.FindByKeyHash(ctx, "proj-2", apikey.TierSecret, "h-ssk")
		assert.True(t, errx.HasCode(err, apikey.CodeSetNotFound))

		_, err = repo.FindByKeyHash(ctx, "proj-1", apikey.Tier("bogus"), "h-ssk")
		assert.True(t, errx.HasCode(err, apikey.CodeSetNotFound))
	})

	t.Run("find by id", func(t *testing.T) {
		got, err := repo.FindByID(ctx, "proj-1", set.ID)
		require.NoError(t, err)
		assert.True(t, got.IsValid(now))

		_, err = repo.FindByID(ctx, "proj-1", "nope")
		assert.True(t, errx.HasCode(err, apikey.CodeSetNotFound))
	})

	t.Run("hash collision is rejected", func(t *testing.T) {
		dup := *set
		dup.ID = uuid.NewString()
		dup.SecretServerKey = nil
		err := repo.Create(ctx, &dup)
		assert.True(t, errx.HasCode(err, apikey.CodeInvalidRequest))
	})

	t.Run("revoke persists", func(t *testing.T) {
		revokedAt := now.Add(time.Minute)
		set.ManuallyRevokedAt = &revokedAt
		set.Description = "rotated"
		require.NoError(t, repo.Update(ctx, set))

		got, err := repo.FindByID(ctx, "proj-1", set.ID)
		require.NoError(t, err)
		assert.Equal(t, "rotated", got.Description)
		require.NotNil(t, got.ManuallyRevokedAt)
		assert.False(t, got.IsValid(now))

		other := *set
		other.TenantID = "proj-2"
		err = repo.Update(ctx, &other)
		assert.True(t, errx.HasCode(err, apikey.CodeSetNotFound))
	})

	t.Run("list pages newest first", func(t *testing.T) {
		later := &apikey.KeySet{
			ID:              uuid.NewString(),
			TenantID:        "proj-1",
			SecretServerKey: &apikey.StoredKey{Hash: "h-ssk-2", LastFour: "ijkl"},
			CreatedAt:       now.Add(time.Hour),
			ExpiresAt:       now.Add(48 * time.Hour),
		}
		require.NoError(t, repo.Create(ctx, later))

		page, err := repo.ListByTenant(ctx, kernel.TenantID("proj-1"), kernel.PaginationOptions{Page: 1, PageSize: 1})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, later.ID, page.Items[0].ID)
		assert.Equal(t, 2, page.Page.Total)
		assert.True(t, page.HasMore)

		empty, err := repo.ListByTenant(ctx, kernel.TenantID("proj-2"), kernel.PaginationOptions{Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Empty(t, empty.Items)
		assert.False(t, empty.HasMore)
	})
}
