package flows

import (
	"context"
	"fmt"
	"strings"

	"github.com/Abraxas-365/gatekeeper/pkg/iam"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/project"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user/usersrv"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/verification"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
)

// otpLength is the part of a code a person types in. The rest is the nonce
// handed back to the client that requested the code.
const otpLength = 6

type SignInData struct {
	UserID    string `json:"user_id,omitempty"`
	IsNewUser bool   `json:"is_new_user"`
}

func (d SignInData) Validate() error {
	if d.UserID == "" && !d.IsNewUser {
		return fmt.Errorf("user_id is required for existing users")
	}
	return nil
}

type SignInResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IsNewUser    bool   `json:"is_new_user"`
	UserID       string `json:"user_id"`
}

type SignInHandler = verification.Handler[SignInData, EmailMethod, NoBody, SignInResponse]

func (f *Flows) newSignIn() *SignInHandler {
	return verification.NewHandler(verification.Flow[SignInData, EmailMethod, NoBody, SignInResponse]{
		Type: verification.TypeOneTimePassword,
		Send: func(ctx context.Context, p *project.Project, issued verification.Issued, _ SignInData, method EmailMethod) error {
			return f.deps.Mailer.Send(ctx, verification.Email{
				TenantID: p.ID,
				To:       method.Email,
				Template: verification.TemplateMagicLink,
				Subject:  "Sign in to " + displayName(p),
				Variables: map[string]string{
					"project": displayName(p),
					"link":    issued.Link,
					"otp":     OTP(issued.Code),
				},
			})
		},
		Handle: func(ctx context.Context, in verification.Input[SignInData, EmailMethod, NoBody]) (SignInResponse, error) {
			var (
				u   *user.User
				err error
			)
			if in.Data.UserID == "" {
				u, err = f.deps.Users.Create(ctx, usersrv.CreateRequest{
					TenantID:             in.Project.ID,
					PrimaryEmail:         in.Method.Email,
					PrimaryEmailVerified: true,
				})
			} else {
				u, err = f.deps.Users.Get(ctx, in.Project.ID, kernel.NewUserID(in.Data.UserID))
			}
			if err != nil {
				return SignInResponse{}, err
			}

			return f.completeSignIn(ctx, in.Project, u, in.Data.IsNewUser)
		},
	}, f.deps.Codes, f.deps.Projects, f.options()...)
}

// SendSignInCode emails a magic link and its OTP to email and returns the nonce
// that completes the OTP into a full code.
func (f *Flows) SendSignInCode(ctx context.Context, tenantID kernel.TenantID, email, callbackURL string) (string, error) {
	p, err := f.deps.Projects.FindByID(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if !p.Config.MagicLinkEnabled {
		return "", iam.ErrMethodDisabled("otp")
	}

	u, found, err := f.findUserByEmail(ctx, tenantID, email)
	if err != nil {
		return "", err
	}
	data := SignInData{IsNewUser: !found}
	if found {
		data.UserID = u.ID.String()
	} else if !p.Config.SignUpEnabled {
		return "", iam.ErrSignUpNotEnabled()
	}

	issued, err := f.SignIn.SendCode(ctx, verification.CreateRequest[SignInData, EmailMethod]{
		TenantID:    tenantID,
		Data:        data,
		Method:      EmailMethod{Email: user.NormalizeEmail(email)},
		CallbackURL: callbackURL,
	})
	if err != nil {
		return "", err
	}
	return Nonce(issued.Code), nil
}

// OTP is the human-enterable prefix of a code.
func OTP(code string) string {
	if len(code) < otpLength {
		return strings.ToUpper(code)
	}
	return strings.ToUpper(code[:otpLength])
}

// Nonce is the part of a code that is not sent to the person.
func Nonce(code string) string {
	if len(code) < otpLength {
		return ""
	}
	return code[otpLength:]
}
