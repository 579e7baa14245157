package apikey

import (
	"context"

	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
)

// Repository persists key sets. Lookups return ErrKeySetNotFound when nothing matches.
type Repository interface {
	Create(ctx context.Context, set *KeySet) error
	FindByKeyHash(ctx context.Context, tenantID kernel.TenantID, tier Tier, hash string) (*KeySet, error)
	FindByID(ctx context.Context, tenantID kernel.TenantID, id string) (*KeySet, error)
	ListByTenant(ctx context.Context, tenantID kernel.TenantID, opts kernel.PaginationOptions) (kernel.Paginated[*KeySet], error)
	// Update writes Description and ManuallyRevokedAt.
	Update(ctx context.Context, set *KeySet) error
}
