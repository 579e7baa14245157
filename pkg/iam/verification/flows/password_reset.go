package flows

import (
	"context"

	"github.com/Abraxas-365/gatekeeper/pkg/iam"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/project"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user/usersrv"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/verification"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/Abraxas-365/gatekeeper/pkg/logx"
)

type PasswordResetData struct {
	UserID string `json:"user_id"`
}

func (d PasswordResetData) Validate() error { return requireUserID(d.UserID) }

type PasswordResetBody struct {
	Password string `json:"password"`
}

type PasswordResetHandler = verification.Handler[PasswordResetData, EmailMethod, PasswordResetBody, Success]

func (f *Flows) newPasswordReset() *PasswordResetHandler {
	return verification.NewHandler(verification.Flow[PasswordResetData, EmailMethod, PasswordResetBody, Success]{
		Type: verification.TypePasswordReset,
		Send: func(ctx context.Context, p *project.Project, issued verification.Issued, _ PasswordResetData, method EmailMethod) error {
			return f.deps.Mailer.Send(ctx, verification.Email{
				TenantID: p.ID,
				To:       method.Email,
				Template: verification.TemplatePasswordReset,
				Subject:  "Reset your " + displayName(p) + " password",
				Variables: map[string]string{
					"project": displayName(p),
					"link":    issued.Link,
				},
			})
		},
		// a rejected password must not burn the code
		ValidateBody: func(body PasswordResetBody) error {
			return usersrv.ValidatePassword(body.Password)
		},
		Handle: func(ctx context.Context, in verification.Input[PasswordResetData, EmailMethod, PasswordResetBody]) (Success, error) {
			if err := f.deps.Users.SetPassword(ctx, in.Project.ID, kernel.NewUserID(in.Data.UserID), in.Body.Password); err != nil {
				return Success{}, err
			}
			return Success{Success: true}, nil
		},
	}, f.deps.Codes, f.deps.Projects, f.options()...)
}

// SendPasswordReset emails a reset link when a user with email exists. An
// unknown address returns nil like a known one.
func (f *Flows) SendPasswordReset(ctx context.Context, tenantID kernel.TenantID, email, callbackURL string) error {
	p, err := f.deps.Projects.FindByID(ctx, tenantID)
	if err != nil {
		return err
	}
	if !p.Config.CredentialEnabled {
		return iam.ErrMethodDisabled("password")
	}
	if err := p.CheckRedirect(callbackURL); err != nil {
		return err
	}

	u, found, err := f.findUserByEmail(ctx, tenantID, email)
	if err != nil {
		return err
	}
	if !found {
		logx.WithContext(ctx).WithField("tenant_id", tenantID.String()).Debug("password reset requested for unknown email")
		return nil
	}

	_, err = f.PasswordReset.SendCode(ctx, verification.CreateRequest[PasswordResetData, EmailMethod]{
		TenantID:    tenantID,
		Data:        PasswordResetData{UserID: u.ID.String()},
		Method:      EmailMethod{Email: user.NormalizeEmail(u.PrimaryEmail)},
		CallbackURL: callbackURL,
	})
	return err
}
