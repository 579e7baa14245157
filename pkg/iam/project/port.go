package project

import (
	"context"

	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
)

type Repository interface {
	// FindByID returns ErrNotFound when the project does not exist.
	FindByID(ctx context.Context, id kernel.TenantID) (*Project, error)
	Create(ctx context.Context, p *Project) error
	// FindProvisioned returns ErrNotProvisioned when the project was never
	// provisioned or has already been transferred.
	FindProvisioned(ctx context.Context, projectID kernel.TenantID) (*ProvisionedProject, error)
	// CompleteTransfer deletes the provisioned row and adds the project to the
	// user's managed projects in one transaction.
	CompleteTransfer(ctx context.Context, projectID kernel.TenantID, userID kernel.UserID) error
}
