package apikeysrv

import (
	"context"
	"strings"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/apikey"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/Abraxas-365/gatekeeper/pkg/logx"
	"github.com/Abraxas-365/gatekeeper/pkg/metricsx"
	"github.com/Abraxas-365/gatekeeper/pkg/ptrx"
	"github.com/google/uuid"
)

// secretBytes of entropy behind every generated key.
const secretBytes = 32

type APIKeyService struct {
	repo    apikey.Repository
	metrics *metricsx.Metrics
	now     func() time.Time
}

func NewAPIKeyService(repo apikey.Repository, metrics *metricsx.Metrics) *APIKeyService {
	return &APIKeyService{
		repo:    repo,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// lookup resolves the selector against the repository. A missing set is (nil, nil).
func (s *APIKeyService) lookup(ctx context.Context, tenantID kernel.TenantID, sel apikey.Selector) (*apikey.KeySet, apikey.Tier, error) {
	tier, value, err := sel.Resolve()
	if err != nil {
		logx.WithContext(ctx).WithError(err).Error("apikey: malformed selector")
		return nil, "", err
	}

	var set *apikey.KeySet
	if tier == "" {
		set, err = s.repo.FindByID(ctx, tenantID, value)
	} else {
		if !strings.HasPrefix(value, tier.Prefix()) {
			return nil, tier, nil
		}
		set, err = s.repo.FindByKeyHash(ctx, tenantID, tier, iam.HashSecret(value))
	}
	if err != nil {
		if errx.HasCode(err, apikey.CodeSetNotFound) {
			return nil, tier, nil
		}
		return nil, tier, err
	}
	return set, tier, nil
}

// Validate reports whether the selected key exists for the tenant and is
// neither revoked nor expired. It has no side effects.
func (s *APIKeyService) Validate(ctx context.Context, tenantID kernel.TenantID, sel apikey.Selector) (bool, error) {
	set, tier, err := s.lookup(ctx, tenantID, sel)
	if err != nil {
		return false, err
	}
	valid := set != nil && set.IsValid(s.now())
	s.metrics.APIKeyChecked(tier.Label(), valid)
	return valid, nil
}

// Check is Validate that returns the key set, or ErrKeyNotFound without saying why.
func (s *APIKeyService) Check(ctx context.Context, tenantID kernel.TenantID, sel apikey.Selector) (*apikey.KeySet, error) {
	set, tier, err := s.lookup(ctx, tenantID, sel)
	if err != nil {
		return nil, err
	}
	valid := set != nil && set.IsValid(s.now())
	s.metrics.APIKeyChecked(tier.Label(), valid)
	if !valid {
		return nil, apikey.ErrKeyNotFound()
	}
	return set, nil
}

// CreateKeySet generates every requested secret at once and stores the set.
func (s *APIKeyService) CreateKeySet(ctx context.Context, tenantID kernel.TenantID, req apikey.CreateKeySetRequest) (*apikey.CreatedKeySet, error) {
	now := s.now()
	if !req.HasPublishableClientKey && !req.HasSecretServerKey && !req.HasSuperSecretAdminKey {
		return nil, apikey.ErrInvalidRequest().WithDetail("reason", "at least one key must be requested")
	}
	if !req.ExpiresAt.After(now) {
		return nil, apikey.ErrInvalidRequest().WithDetail("reason", "expires_at must be in the future")
	}

	set := &apikey.KeySet{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Description: req.Description,
		CreatedAt:   now,
		ExpiresAt:   req.ExpiresAt.UTC(),
	}
	created := &apikey.CreatedKeySet{}

	generate := func(tier apikey.Tier) (string, *apikey.StoredKey, error) {
		raw, err := iam.RandomString(secretBytes)
		if err != nil {
			return "", nil, err
		}
		secret := tier.Prefix() + raw
		return secret, &apikey.StoredKey{Hash: iam.HashSecret(secret), LastFour: iam.LastFour(secret)}, nil
	}

	var err error
	if req.HasPublishableClientKey {
		if created.PublishableClientKey, set.PublishableClientKey, err = generate(apikey.TierPublishable); err != nil {
			return nil, err
		}
	}
	if req.HasSecretServerKey {
		if created.SecretServerKey, set.SecretServerKey, err = generate(apikey.TierSecret); err != nil {
			return nil, err
		}
	}
	if req.HasSuperSecretAdminKey {
		if created.SuperSecretAdminKey, set.SuperSecretAdminKey, err = generate(apikey.TierSuperSecret); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Create(ctx, set); err != nil {
		return nil, errx.Wrap(err, "failed to save API key set", errx.TypeInternal)
	}

	logx.WithContext(ctx).WithFields(logx.Fields{
		"key_set_id": set.ID,
		"tenant_id":  tenantID.String(),
	}).Info("apikey: key set created")

	created.KeySetDTO = set.ToDTO()
	return created, nil
}

func (s *APIKeyService) ListKeySets(ctx context.Context, tenantID kernel.TenantID, opts kernel.PaginationOptions) (kernel.Paginated[apikey.KeySetDTO], error) {
	page, err := s.repo.ListByTenant(ctx, tenantID, opts.Normalize())
	if err != nil {
		return kernel.Paginated[apikey.KeySetDTO]{}, err
	}
	return kernel.MapPage(page, (*apikey.KeySet).ToDTO), nil
}

// UpdateKeySet changes the description or revokes the set. Revocation is permanent.
func (s *APIKeyService) UpdateKeySet(ctx context.Context, tenantID kernel.TenantID, id string, req apikey.UpdateKeySetRequest) (*apikey.KeySetDTO, error) {
	set, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	set.Description = ptrx.ValueOr(req.Description, set.Description)
	if req.Revoked != nil {
		if !*req.Revoked && set.ManuallyRevokedAt != nil {
			return nil, apikey.ErrInvalidRequest().WithDetail("reason", "a revoked key set cannot be restored")
		}
		if *req.Revoked {
			set.Revoke(s.now())
		}
	}

	if err := s.repo.Update(ctx, set); err != nil {
		return nil, errx.Wrap(err, "failed to update API key set", errx.TypeInternal)
	}
	dto := set.ToDTO()
	return &dto, nil
}
