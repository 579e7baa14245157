package flows

import (
	"context"

	"github.com/Abraxas-365/gatekeeper/pkg/iam/project"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/verification"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
)

type ContactChannelData struct {
	UserID string `json:"user_id"`
}

func (d ContactChannelData) Validate() error { return requireUserID(d.UserID) }

type ContactChannelHandler = verification.Handler[ContactChannelData, EmailMethod, NoBody, Empty]

func (f *Flows) newContactChannel() *ContactChannelHandler {
	return verification.NewHandler(verification.Flow[ContactChannelData, EmailMethod, NoBody, Empty]{
		Type: verification.TypeContactChannel,
		Send: func(ctx context.Context, p *project.Project, issued verification.Issued, _ ContactChannelData, method EmailMethod) error {
			return f.deps.Mailer.Send(ctx, verification.Email{
				TenantID: p.ID,
				To:       method.Email,
				Template: verification.TemplateContactChannel,
				Subject:  "Verify your email at " + displayName(p),
				Variables: map[string]string{
					"project": displayName(p),
					"link":    issued.Link,
				},
			})
		},
		// the address must still be the user's primary email
		Validate: func(ctx context.Context, in verification.Input[ContactChannelData, EmailMethod, NoBody]) error {
			u, err := f.deps.Users.Get(ctx, in.Project.ID, kernel.NewUserID(in.Data.UserID))
			if err != nil {
				return err
			}
			if user.NormalizeEmail(u.PrimaryEmail) != user.NormalizeEmail(in.Method.Email) {
				return verification.ErrMethodInvalid().WithDetail("reason", "email is no longer the primary email of the user")
			}
			return nil
		},
		Handle: func(ctx context.Context, in verification.Input[ContactChannelData, EmailMethod, NoBody]) (Empty, error) {
			return Empty{}, f.deps.Users.MarkEmailVerified(ctx, in.Project.ID, kernel.NewUserID(in.Data.UserID))
		},
	}, f.deps.Codes, f.deps.Projects, f.options()...)
}

// SendContactVerification emails a verification link to the user's primary email.
func (f *Flows) SendContactVerification(ctx context.Context, tenantID kernel.TenantID, userID kernel.UserID, callbackURL string) (*verification.Issued, error) {
	u, err := f.deps.Users.Get(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if u.PrimaryEmail == "" {
		return nil, verification.ErrMethodInvalid().WithDetail("reason", "user has no primary email")
	}
	return f.ContactChannel.SendCode(ctx, verification.CreateRequest[ContactChannelData, EmailMethod]{
		TenantID:    tenantID,
		Data:        ContactChannelData{UserID: u.ID.String()},
		Method:      EmailMethod{Email: u.PrimaryEmail},
		CallbackURL: callbackURL,
	})
}
