package authinfra

import (
	"context"

	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/Abraxas-365/gatekeeper/pkg/logx"
)

// LogxAuditService implements auth.AuditService using structured logx logging.
type LogxAuditService struct{}

func NewLogxAuditService() *LogxAuditService {
	return &LogxAuditService{}
}

func (s *LogxAuditService) event(ctx context.Context, name string, tenantID kernel.TenantID, userID kernel.UserID, extra logx.Fields) {
	fields := logx.Fields{
		"audit_event": name,
		"tenant_id":   tenantID.String(),
		"user_id":     userID.String(),
	}
	for k, v := range extra {
		fields[k] = v
	}
	logx.WithContext(ctx).WithFields(fields).Info("Audit: " + name)
}

func (s *LogxAuditService) LogSignIn(ctx context.Context, tenantID kernel.TenantID, userID kernel.UserID, method string) {
	s.event(ctx, "sign_in", tenantID, userID, logx.Fields{"method": method})
}

func (s *LogxAuditService) LogSignUp(ctx context.Context, tenantID kernel.TenantID, userID kernel.UserID, method string) {
	s.event(ctx, "sign_up", tenantID, userID, logx.Fields{"method": method})
}

func (s *LogxAuditService) LogAccountLinked(ctx context.Context, tenantID kernel.TenantID, userID kernel.UserID, providerID string) {
	s.event(ctx, "account_linked", tenantID, userID, logx.Fields{"provider_id": providerID})
}

func (s *LogxAuditService) LogTokenRefresh(ctx context.Context, tenantID kernel.TenantID, userID kernel.UserID) {
	s.event(ctx, "token_refresh", tenantID, userID, nil)
}
