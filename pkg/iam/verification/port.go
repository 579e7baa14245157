package verification

import (
	"context"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
)

type Repository interface {
	Create(ctx context.Context, code *Code) error
	// FindByID returns ErrCodeNotFound when no code matches.
	FindByID(ctx context.Context, tenantID kernel.TenantID, id string) (*Code, error)
	// Claim sets UsedAt to at only if the code is still unused and at is before
	// its ExpiresAt, as one atomic conditional write. It returns false otherwise.
	Claim(ctx context.Context, tenantID kernel.TenantID, id string, at time.Time) (bool, error)
}

// Email templates known to every Mailer.
const (
	TemplateContactChannel = "contact_channel_verification"
	TemplateMagicLink      = "magic_link"
	TemplatePasswordReset  = "password_reset"
)

// Email is a templated verification email.
type Email struct {
	TenantID  kernel.TenantID   `json:"project_id"`
	To        string            `json:"to"`
	Template  string            `json:"template"`
	Subject   string            `json:"subject"`
	Variables map[string]string `json:"variables"`
}

type Mailer interface {
	Send(ctx context.Context, email Email) error
}
