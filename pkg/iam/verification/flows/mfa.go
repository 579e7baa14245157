package flows

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/iam"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/project"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user/usersrv"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/verification"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
)

// mfaAttemptTTL is how long a first factor stays good for the second.
const mfaAttemptTTL = 5 * time.Minute

// MFAData is stored by a sign-in whose first factor passed.
type MFAData struct {
	UserID    string `json:"user_id"`
	IsNewUser bool   `json:"is_new_user"`
}

func (d MFAData) Validate() error { return requireUserID(d.UserID) }

type MFABody struct {
	Type string `json:"type"`
	TOTP string `json:"totp"`
}

type MFAHandler = verification.Handler[MFAData, NoMethod, MFABody, SignInResponse]

func (f *Flows) newMFA() *MFAHandler {
	return verification.NewHandler(verification.Flow[MFAData, NoMethod, MFABody, SignInResponse]{
		Type: verification.TypeMFASignIn,
		ValidateBody: func(body MFABody) error {
			if body.Type != "totp" {
				return verification.ErrInvalidBody().WithDetail("reason", fmt.Sprintf("unsupported factor %q", body.Type))
			}
			if strings.TrimSpace(body.TOTP) == "" {
				return verification.ErrInvalidBody().WithDetail("reason", "totp is required")
			}
			return nil
		},
		// a wrong passcode leaves the attempt code usable
		Validate: func(ctx context.Context, in verification.Input[MFAData, NoMethod, MFABody]) error {
			u, err := f.deps.Users.Get(ctx, in.Project.ID, kernel.NewUserID(in.Data.UserID))
			if err != nil {
				return err
			}
			if !usersrv.VerifyTOTP(u, in.Body.TOTP, f.now()) {
				return iam.ErrInvalidTOTP()
			}
			return nil
		},
		Handle: func(ctx context.Context, in verification.Input[MFAData, NoMethod, MFABody]) (SignInResponse, error) {
			return f.issueTokens(ctx, in.Project, kernel.NewUserID(in.Data.UserID), in.Data.IsNewUser)
		},
	}, f.deps.Codes, f.deps.Projects, f.options()...)
}

// completeSignIn issues tokens for u, or, when u has a second factor, stores
// an attempt code and fails with ErrMFARequired carrying it.
func (f *Flows) completeSignIn(ctx context.Context, p *project.Project, u *user.User, isNewUser bool) (SignInResponse, error) {
	if !u.RequiresTOTP() {
		return f.issueTokens(ctx, p, u.ID, isNewUser)
	}
	ttl := mfaAttemptTTL
	issued, err := f.MFA.CreateCode(ctx, verification.CreateRequest[MFAData, NoMethod]{
		TenantID:  p.ID,
		Data:      MFAData{UserID: u.ID.String(), IsNewUser: isNewUser},
		ExpiresIn: &ttl,
	})
	if err != nil {
		return SignInResponse{}, err
	}
	return SignInResponse{}, iam.ErrMFARequired(issued.Code)
}

func (f *Flows) issueTokens(ctx context.Context, p *project.Project, userID kernel.UserID, isNewUser bool) (SignInResponse, error) {
	pair, err := f.deps.Tokens.CreateAuthTokens(ctx, p.ID, userID)
	if err != nil {
		return SignInResponse{}, err
	}
	return SignInResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		IsNewUser:    isNewUser,
		UserID:       userID.String(),
	}, nil
}

// EnrollTOTP turns on the TOTP second factor for a user, issued under the
// project's display name.
func (f *Flows) EnrollTOTP(ctx context.Context, tenantID kernel.TenantID, userID kernel.UserID) (*usersrv.TOTPKey, error) {
	p, err := f.deps.Projects.FindByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return f.deps.Users.EnrollTOTP(ctx, tenantID, userID, displayName(p))
}

func (f *Flows) DisableTOTP(ctx context.Context, tenantID kernel.TenantID, userID kernel.UserID) error {
	return f.deps.Users.DisableTOTP(ctx, tenantID, userID)
}
