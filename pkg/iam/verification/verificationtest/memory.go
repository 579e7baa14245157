// Package verificationtest provides in-memory doubles of the verification ports.
package verificationtest

import (
	"context"
	"sync"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/iam/verification"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
)

type Codes struct {
	mu    sync.Mutex
	codes map[string]verification.Code
}

func NewCodes() *Codes { return &Codes{codes: make(map[string]verification.Code)} }

func key(tenantID kernel.TenantID, id string) string { return tenantID.String() + ":" + id }

func (c *Codes) Create(_ context.Context, code *verification.Code) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes[key(code.TenantID, code.ID)] = *code
	return nil
}

func (c *Codes) FindByID(_ context.Context, tenantID kernel.TenantID, id string) (*verification.Code, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	code, ok := c.codes[key(tenantID, id)]
	if !ok {
		return nil, verification.ErrCodeNotFound()
	}
	return &code, nil
}

func (c *Codes) Claim(_ context.Context, tenantID kernel.TenantID, id string, at time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	code, ok := c.codes[key(tenantID, id)]
	if !ok || code.UsedAt != nil || code.IsExpired(at) {
		return false, nil
	}
	code.UsedAt = &at
	c.codes[key(tenantID, id)] = code
	return true, nil
}

// Get returns the stored code without the not-found error.
func (c *Codes) Get(tenantID kernel.TenantID, id string) (verification.Code, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	code, ok := c.codes[key(tenantID, id)]
	return code, ok
}

// Mailer records every email it is asked to send.
type Mailer struct {
	mu     sync.Mutex
	emails []verification.Email
	Err    error
}

func (m *Mailer) Send(_ context.Context, email verification.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.emails = append(m.emails, email)
	return nil
}

func (m *Mailer) Sent() []verification.Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]verification.Email(nil), m.emails...)
}

// Last returns the most recent email, or the zero Email.
func (m *Mailer) Last() verification.Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.emails) == 0 {
		return verification.Email{}
	}
	return m.emails[len(m.emails)-1]
}
