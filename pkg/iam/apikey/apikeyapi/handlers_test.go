package apikeyapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx/errxfiber"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/apikey"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/apikey/apikeysrv"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/auth"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	mu   sync.Mutex
	sets []*apikey.KeySet
}

func (m *memRepo) Create(_ context.Context, set *apikey.KeySet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *set
	m.sets = append(m.sets, &cp)
	return nil
}

func (m *memRepo) FindByKeyHash(_ context.Context, tenantID kernel.TenantID, tier apikey.Tier, hash string) (*apikey.KeySet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sets {
		if k := s.Key(tier); s.TenantID == tenantID && k != nil && k.Hash == hash {
			cp := *s
			return &cp, nil
		}
	}
	return nil, apikey.ErrKeySetNotFound()
}

func (m *memRepo) FindByID(_ context.Context, tenantID kernel.TenantID, id string) (*apikey.KeySet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sets {
		if s.TenantID == tenantID && s.ID == id {
			cp := *s
			return &cp, nil
		}
	}
	return nil, apikey.ErrKeySetNotFound()
}

func (m *memRepo) ListByTenant(_ context.Context, tenantID kernel.TenantID, opts kernel.PaginationOptions) (kernel.Paginated[*apikey.KeySet], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*apikey.KeySet
	for _, s := range m.sets {
		if s.TenantID == tenantID {
			out = append(out, s)
		}
	}
	return kernel.NewPaginated(out, opts.Page, opts.PageSize, len(out)), nil
}

func (m *memRepo) Update(_ context.Context, set *apikey.KeySet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.sets {
		if s.ID == set.ID {
			cp := *set
			m.sets[i] = &cp
		}
	}
	return nil
}

func setupApp(t *testing.T) (*fiber.App, *apikey.CreatedKeySet) {
	t.Helper()
	svc := apikeysrv.NewAPIKeyService(&memRepo{}, nil)
	bootstrap, err := svc.CreateKeySet(context.Background(), "proj-1", apikey.CreateKeySetRequest{
		Description:             "bootstrap",
		ExpiresAt:               time.Now().Add(time.Hour),
		HasPublishableClientKey: true,
		HasSuperSecretAdminKey:  true,
	})
	require.NoError(t, err)

	codec, err := auth.NewJWTCodec("0123456789abcdef0123456789abcdef", "", "test")
	require.NoError(t, err)

	app := fiber.New(fiber.Config{ErrorHandler: errxfiber.ErrorHandler})
	NewAPIKeyHandlers(svc).RegisterRoutes(app, auth.NewRequestAuthMiddleware(svc, codec))
	return app, bootstrap
}

func do(t *testing.T, app *fiber.App, method, path string, headers map[string]string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestAdminEndpoints(t *testing.T) {
	app, bootstrap := setupApp(t)
	admin := map[string]string{auth.HeaderProjectID: "proj-1", auth.HeaderSuperSecretKey: bootstrap.SuperSecretAdminKey}

	status, created := do(t, app, "POST", "/api/v1/internal/api-keys", admin, map[string]any{
		"description":           "backend",
		"expires_at":            time.Now().Add(24 * time.Hour).Format(time.RFC3339),
		"has_secret_server_key": true,
	})
	require.Equal(t, 201, status, created)
	secret, _ := created["secret_server_key"].(string)
	assert.True(t, strings.HasPrefix(secret, "ssk_"))
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)

	status, list := do(t, app, "GET", "/api/v1/internal/api-keys", admin, nil)
	require.Equal(t, 200, status)
	raw, err := json.Marshal(list)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), secret, "listing never shows full secrets")
	assert.Contains(t, string(raw), secret[len(secret)-4:])

	status, updated := do(t, app, "PATCH", "/api/v1/internal/api-keys/"+id, admin, map[string]any{"revoked": true})
	require.Equal(t, 200, status)
	assert.NotNil(t, updated["manually_revoked_at"])
}

func TestAdminEndpointsRequireSuperSecretKey(t *testing.T) {
	app, bootstrap := setupApp(t)

	status, body := do(t, app, "GET", "/api/v1/internal/api-keys", map[string]string{
		auth.HeaderProjectID:      "proj-1",
		auth.HeaderPublishableKey: bootstrap.PublishableClientKey,
	}, nil)
	assert.Equal(t, 403, status)
	assert.Equal(t, "IAM_INSUFFICIENT_ACCESS_TYPE", body["code"])

	status, body = do(t, app, "GET", "/api/v1/internal/api-keys", map[string]string{
		auth.HeaderProjectID:      "proj-2",
		auth.HeaderSuperSecretKey: bootstrap.SuperSecretAdminKey,
	}, nil)
	assert.Equal(t, 401, status)
	assert.Equal(t, "APIKEY_NOT_FOUND", body["code"])
}
