package flows

import (
	"context"
	"fmt"

	"github.com/Abraxas-365/gatekeeper/pkg/iam/project"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/verification"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/Abraxas-365/gatekeeper/pkg/logx"
)

// ProjectTransferData names a provisioned project and the integration client
// that provisioned it.
type ProjectTransferData struct {
	NeonClientID string `json:"neon_client_id"`
	ProjectID    string `json:"project_id"`
}

func (d ProjectTransferData) Validate() error {
	if d.NeonClientID == "" || d.ProjectID == "" {
		return fmt.Errorf("neon_client_id and project_id are required")
	}
	return nil
}

type ProjectTransferResponse struct {
	ProjectID string `json:"project_id"`
}

type ProjectTransferHandler = verification.Handler[ProjectTransferData, NoMethod, NoBody, ProjectTransferResponse]

func (f *Flows) newProjectTransfer() *ProjectTransferHandler {
	return verification.NewHandler(verification.Flow[ProjectTransferData, NoMethod, NoBody, ProjectTransferResponse]{
		Type:        verification.TypeProjectTransfer,
		RequireUser: true,
		// rejects projects that were already transferred
		Validate: func(ctx context.Context, in verification.Input[ProjectTransferData, NoMethod, NoBody]) error {
			provisioned, err := f.deps.Projects.FindProvisioned(ctx, kernel.NewTenantID(in.Data.ProjectID))
			if err != nil {
				return err
			}
			if provisioned.ClientID != in.Data.NeonClientID {
				return project.ErrNotProvisioned().WithDetail("reason", "provisioned by another client")
			}
			return nil
		},
		Handle: func(ctx context.Context, in verification.Input[ProjectTransferData, NoMethod, NoBody]) (ProjectTransferResponse, error) {
			projectID := kernel.NewTenantID(in.Data.ProjectID)
			if err := f.deps.Projects.CompleteTransfer(ctx, projectID, in.UserID); err != nil {
				return ProjectTransferResponse{}, err
			}

			logx.WithContext(ctx).WithFields(logx.Fields{
				"project_id": projectID.String(),
				"user_id":    in.UserID.String(),
			}).Info("project transferred")
			return ProjectTransferResponse{ProjectID: projectID.String()}, nil
		},
		Details: func(ctx context.Context, in verification.Input[ProjectTransferData, NoMethod, NoBody]) (any, error) {
			p, err := f.deps.Projects.FindByID(ctx, kernel.NewTenantID(in.Data.ProjectID))
			if err != nil {
				return nil, err
			}
			return map[string]any{"project_id": p.ID.String(), "project_display_name": p.DisplayName}, nil
		},
	}, f.deps.Codes, f.deps.Projects, f.options()...)
}

// InitiateTransfer creates the code that hands a provisioned project over to
// whichever user of the internal project redeems it, and returns the
// confirmation link.
func (f *Flows) InitiateTransfer(ctx context.Context, projectID kernel.TenantID) (string, error) {
	provisioned, err := f.deps.Projects.FindProvisioned(ctx, projectID)
	if err != nil {
		return "", err
	}

	issued, err := f.ProjectTransfer.CreateCode(ctx, verification.CreateRequest[ProjectTransferData, NoMethod]{
		TenantID:    f.deps.InternalProjectID,
		Data:        ProjectTransferData{NeonClientID: provisioned.ClientID, ProjectID: projectID.String()},
		CallbackURL: f.deps.TransferConfirmURL,
	})
	if err != nil {
		return "", err
	}
	return issued.Link, nil
}
