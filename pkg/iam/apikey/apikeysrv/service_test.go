package apikeysrv

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/apikey"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/Abraxas-365/gatekeeper/pkg/ptrx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRepo is an in-memory apikey.Repository.
type mockRepo struct {
	mu   sync.Mutex
	sets map[string]*apikey.KeySet
}

func newMockRepo() *mockRepo { return &mockRepo{sets: make(map[string]*apikey.KeySet)} }

func (m *mockRepo) Create(_ context.Context, set *apikey.KeySet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *set
	m.sets[set.ID] = &cp
	return nil
}

func (m *mockRepo) FindByKeyHash(_ context.Context, tenantID kernel.TenantID, tier apikey.Tier, hash string) (*apikey.KeySet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, set := range m.sets {
		if set.TenantID != tenantID {
			continue
		}
		if k := set.Key(tier); k != nil && k.Hash == hash {
			cp := *set
			return &cp, nil
		}
	}
	return nil, apikey.ErrKeySetNotFound()
}

func (m *mockRepo) FindByID(_ context.Context, tenantID kernel.TenantID, id string) (*apikey.KeySet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[id]
	if !ok || set.TenantID != tenantID {
		return nil, apikey.ErrKeySetNotFound()
	}
	cp := *set
	return &cp, nil
}

func (m *mockRepo) ListByTenant(_ context.Context, tenantID kernel.TenantID, opts kernel.PaginationOptions) (kernel.Paginated[*apikey.KeySet], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []*apikey.KeySet
	for _, set := range m.sets {
		if set.TenantID == tenantID {
			items = append(items, set)
		}
	}
	return kernel.NewPaginated(items, opts.Page, opts.PageSize, len(items)), nil
}

func (m *mockRepo) Update(_ context.Context, set *apikey.KeySet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *set
	m.sets[set.ID] = &cp
	return nil
}

func newService(t *testing.T) (*APIKeyService, *mockRepo, *time.Time) {
	t.Helper()
	repo := newMockRepo()
	svc := NewAPIKeyService(repo, nil)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	return svc, repo, &now
}

func TestCreateKeySetGeneratesPrefixedSecrets(t *testing.T) {
	svc, _, now := newService(t)
	ctx := context.Background()

	created, err := svc.CreateKeySet(ctx, "proj-1", apikey.CreateKeySetRequest{
		Description:             "backend",
		ExpiresAt:               now.Add(24 * time.Hour),
		HasPublishableClientKey: true,
		HasSecretServerKey:      true,
		HasSuperSecretAdminKey:  true,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(created.PublishableClientKey, "pck_"))
	assert.True(t, strings.HasPrefix(created.SecretServerKey, "ssk_"))
	assert.True(t, strings.HasPrefix(created.SuperSecretAdminKey, "sak_"))
	assert.NotEqual(t, created.SecretServerKey, created.SuperSecretAdminKey)
	assert.Equal(t, created.SecretServerKey[len(created.SecretServerKey)-4:], created.KeySetDTO.SecretServerKey.LastFour)

	ok, err := svc.Validate(ctx, "proj-1", apikey.Selector{SecretServerKey: created.SecretServerKey})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Validate(ctx, "proj-2", apikey.Selector{SecretServerKey: created.SecretServerKey})
	require.NoError(t, err)
	assert.False(t, ok, "keys are scoped to their project")

	ok, err = svc.Validate(ctx, "proj-1", apikey.Selector{PublishableClientKey: created.SecretServerKey})
	require.NoError(t, err)
	assert.False(t, ok, "a secret key is not accepted as a publishable key")
}

func TestCreateKeySetRejectsEmptyOrPastRequests(t *testing.T) {
	svc, _, now := newService(t)
	ctx := context.Background()

	_, err := svc.CreateKeySet(ctx, "proj-1", apikey.CreateKeySetRequest{ExpiresAt: now.Add(time.Hour)})
	assert.True(t, errx.HasCode(err, apikey.CodeInvalidRequest))

	_, err = svc.CreateKeySet(ctx, "proj-1", apikey.CreateKeySetRequest{ExpiresAt: now.Add(-time.Hour), HasSecretServerKey: true})
	assert.True(t, errx.HasCode(err, apikey.CodeInvalidRequest))
}

func TestRevokedKeyIsInvalidBeforeExpiry(t *testing.T) {
	svc, _, now := newService(t)
	ctx := context.Background()

	created, err := svc.CreateKeySet(ctx, "proj-1", apikey.CreateKeySetRequest{
		ExpiresAt:               now.Add(365 * 24 * time.Hour),
		HasPublishableClientKey: true,
	})
	require.NoError(t, err)

	_, err = svc.UpdateKeySet(ctx, "proj-1", created.ID, apikey.UpdateKeySetRequest{Revoked: ptrx.Bool(true)})
	require.NoError(t, err)

	ok, err := svc.Validate(ctx, "proj-1", apikey.Selector{PublishableClientKey: created.PublishableClientKey})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.Validate(ctx, "proj-1", apikey.Selector{ID: created.ID})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.Check(ctx, "proj-1", apikey.Selector{PublishableClientKey: created.PublishableClientKey})
	assert.True(t, errx.HasCode(err, apikey.CodeNotFound))

	_, err = svc.UpdateKeySet(ctx, "proj-1", created.ID, apikey.UpdateKeySetRequest{Revoked: ptrx.Bool(false)})
	assert.True(t, errx.HasCode(err, apikey.CodeInvalidRequest))
}

func TestExpiredAndMissingKeysLookTheSame(t *testing.T) {
	svc, _, now := newService(t)
	ctx := context.Background()

	created, err := svc.CreateKeySet(ctx, "proj-1", apikey.CreateKeySetRequest{
		ExpiresAt:          now.Add(time.Minute),
		HasSecretServerKey: true,
	})
	require.NoError(t, err)

	*now = now.Add(time.Minute)
	_, expiredErr := svc.Check(ctx, "proj-1", apikey.Selector{SecretServerKey: created.SecretServerKey})
	_, missingErr := svc.Check(ctx, "proj-1", apikey.Selector{SecretServerKey: "ssk_doesnotexist"})

	require.Error(t, expiredErr)
	require.Error(t, missingErr)
	assert.Equal(t, errx.Public(expiredErr).ToHTTPResponse(""), errx.Public(missingErr).ToHTTPResponse(""))
}

func TestSelectorMustHaveExactlyOneField(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		sel  apikey.Selector
	}{
		{"empty", apikey.Selector{}},
		{"two values", apikey.Selector{PublishableClientKey: "pck_a", SecretServerKey: "ssk_b"}},
		{"value and id", apikey.Selector{ID: "x", SuperSecretAdminKey: "sak_c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Validate(ctx, "proj-1", tt.sel)
			require.Error(t, err)
			assert.True(t, errx.IsAssertion(err))
		})
	}
}

func TestListShowsLastFourOnly(t *testing.T) {
	svc, _, now := newService(t)
	ctx := context.Background()

	created, err := svc.CreateKeySet(ctx, "proj-1", apikey.CreateKeySetRequest{
		ExpiresAt:               now.Add(time.Hour),
		HasPublishableClientKey: true,
	})
	require.NoError(t, err)

	page, err := svc.ListKeySets(ctx, "proj-1", kernel.PaginationOptions{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, created.PublishableClientKey[len(created.PublishableClientKey)-4:], page.Items[0].PublishableClientKey.LastFour)
	assert.Nil(t, page.Items[0].SecretServerKey)
}
