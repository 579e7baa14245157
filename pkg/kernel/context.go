package kernel

import "context"

// ============================================================================
// Context Types - Tipos para context.Context
// ============================================================================

// AccessType is the trust tier established for a request.
type AccessType string

const (
	// AccessClient: publishable key (browser / mobile apps)
	AccessClient AccessType = "client"
	// AccessServer: secret server key
	AccessServer AccessType = "server"
	// AccessAdmin: super-secret admin key
	AccessAdmin AccessType = "admin"
)

// Rank orders access types by trust level.
func (a AccessType) Rank() int {
	switch a {
	case AccessClient:
		return 1
	case AccessServer:
		return 2
	case AccessAdmin:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether a grants at least the trust of min.
func (a AccessType) AtLeast(min AccessType) bool {
	return a.Rank() >= min.Rank() && a.Rank() > 0
}

// AuthContext es el contexto de autenticación que se inyecta en cada request
type AuthContext struct {
	TenantID   TenantID   `json:"tenant_id"`
	AccessType AccessType `json:"access_type"`
	UserID     *UserID    `json:"user_id,omitempty"`
	// KeySetID identifies the API key set that authenticated the request.
	KeySetID string `json:"key_set_id,omitempty"`
}

// IsValid verifica si el AuthContext es válido
func (ac *AuthContext) IsValid() bool {
	return ac != nil && !ac.TenantID.IsEmpty() && ac.AccessType.Rank() > 0
}

// HasUser reports whether a bearer token resolved a user.
func (ac *AuthContext) HasUser() bool {
	return ac != nil && ac.UserID != nil && !ac.UserID.IsEmpty()
}

// ============================================================================
// Context Keys - Claves para context.Context
// ============================================================================

type ContextKey string

const (
	// AuthContextKey es la clave para almacenar AuthContext en context.Context
	AuthContextKey ContextKey = "auth_context"

	// TenantContextKey es la clave para almacenar TenantID en context.Context
	TenantContextKey ContextKey = "tenant_id"

	// UserContextKey es la clave para almacenar UserID en context.Context
	UserContextKey ContextKey = "user_id"

	// RequestIDKey es la clave para almacenar el ID de la petición
	RequestIDKey ContextKey = "request_id"
)

// WithAuthContext stores ac and its tenant/user ids in ctx.
func WithAuthContext(ctx context.Context, ac *AuthContext) context.Context {
	ctx = context.WithValue(ctx, AuthContextKey, ac)
	ctx = context.WithValue(ctx, TenantContextKey, ac.TenantID)
	if ac.HasUser() {
		ctx = context.WithValue(ctx, UserContextKey, *ac.UserID)
	}
	return ctx
}

// AuthFromContext returns the AuthContext stored in ctx, if any.
func AuthFromContext(ctx context.Context) (*AuthContext, bool) {
	ac, ok := ctx.Value(AuthContextKey).(*AuthContext)
	return ac, ok && ac != nil
}

// WithRequestID stores the request id in ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}
