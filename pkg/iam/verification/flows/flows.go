// Package flows holds the concrete verification flows. Each flow maps its type
// tag to fixed data, method, body and response types.
package flows

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/auth/authsrv"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/project"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user/usersrv"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/verification"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/Abraxas-365/gatekeeper/pkg/metricsx"
)

type Deps struct {
	Codes    verification.Repository
	Projects project.Repository
	Users    *usersrv.Service
	Passkeys user.PasskeyRepository
	Tokens   *authsrv.TokenIssuer
	Mailer   verification.Mailer
	Metrics  *metricsx.Metrics
	Clock    func() time.Time

	// DefaultTTL applies to codes created without an explicit expiry.
	DefaultTTL time.Duration

	// InternalProjectID is the project whose users confirm project transfers.
	InternalProjectID kernel.TenantID

	// TransferConfirmURL is the page that redeems project transfer codes.
	TransferConfirmURL string
}

// Flows groups the handlers of every flow.
type Flows struct {
	ContactChannel        *ContactChannelHandler
	SignIn                *SignInHandler
	PasswordReset         *PasswordResetHandler
	ProjectTransfer       *ProjectTransferHandler
	PasskeyRegistration   *PasskeyRegistrationHandler
	PasskeyAuthentication *PasskeyAuthenticationHandler
	MFA                   *MFAHandler

	deps Deps
}

func New(deps Deps) *Flows {
	f := &Flows{deps: deps}
	f.ContactChannel = f.newContactChannel()
	f.SignIn = f.newSignIn()
	f.PasswordReset = f.newPasswordReset()
	f.ProjectTransfer = f.newProjectTransfer()
	f.PasskeyRegistration = f.newPasskeyRegistration()
	f.PasskeyAuthentication = f.newPasskeyAuthentication()
	f.MFA = f.newMFA()
	return f
}

func (f *Flows) options() []verification.Option {
	opts := []verification.Option{
		verification.WithMetrics(f.deps.Metrics),
		verification.WithDefaultTTL(f.deps.DefaultTTL),
	}
	if f.deps.Clock != nil {
		opts = append(opts, verification.WithClock(f.deps.Clock))
	}
	return opts
}

func (f *Flows) now() time.Time {
	if f.deps.Clock != nil {
		return f.deps.Clock()
	}
	return time.Now()
}

// ============================================================================
// Shared payloads
// ============================================================================

// EmailMethod binds a code to the address it was sent to.
type EmailMethod struct {
	Email string `json:"email"`
}

func (m EmailMethod) Validate() error {
	if m.Email == "" {
		return fmt.Errorf("email is required")
	}
	if _, err := mail.ParseAddress(m.Email); err != nil {
		return fmt.Errorf("email is invalid: %w", err)
	}
	return nil
}

// NoMethod is the method of flows redeemed by a link only.
type NoMethod struct{}

type NoBody struct{}

type Empty struct{}

type Success struct {
	Success bool `json:"success"`
}

func requireUserID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("user_id is required")
	}
	return nil
}

// displayName is what emails greet the project by.
func displayName(p *project.Project) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.ID.String()
}

func (f *Flows) findUserByEmail(ctx context.Context, tenantID kernel.TenantID, email string) (*user.User, bool, error) {
	u, err := f.deps.Users.FindByEmail(ctx, tenantID, email)
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return u, true, nil
}

func isNotFound(err error) bool {
	return errx.HasCode(err, user.CodeNotFound)
}
