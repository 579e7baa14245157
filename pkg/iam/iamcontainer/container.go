package iamcontainer

import (
	"github.com/Abraxas-365/gatekeeper/pkg/config"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/apikey/apikeyapi"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/apikey/apikeyinfra"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/apikey/apikeysrv"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/auth"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/auth/authapi"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/auth/authinfra"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/auth/authsrv"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/oauth/oauthapi"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/oauth/oauthinfra"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/oauth/oauthsrv"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/project/projectinfra"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/provider"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user/userinfra"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user/usersrv"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/verification"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/verification/flows"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/verification/verificationapi"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/verification/verificationinfra"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/Abraxas-365/gatekeeper/pkg/logx"
	"github.com/Abraxas-365/gatekeeper/pkg/metricsx"
	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// ---------------------------------------------------------------------------
// Deps: what the IAM context needs from the root container.
// ---------------------------------------------------------------------------

type Deps struct {
	DB      *sqlx.DB
	Redis   redis.UniversalClient
	Cfg     *config.Config
	Metrics *metricsx.Metrics

	// Mailer delivers verification emails. The root container decides whether
	// it sends inline or through the job queue.
	Mailer verification.Mailer
}

// ---------------------------------------------------------------------------
// Container: the public surface of the IAM module.
// ---------------------------------------------------------------------------

type Container struct {
	APIKeyService *apikeysrv.APIKeyService
	UserService   *usersrv.Service
	TokenIssuer   *authsrv.TokenIssuer
	Codec         *auth.JWTCodec
	Flows         *flows.Flows
	Relay         *oauthsrv.Service

	APIKeyHandlers       *apikeyapi.APIKeyHandlers
	SessionHandlers      *authapi.SessionHandlers
	VerificationHandlers *verificationapi.Handlers
	OAuthHandlers        *oauthapi.Handlers

	Middleware *auth.RequestAuthMiddleware
}

// New builds the IAM graph: repos, then services, then handlers.
func New(deps Deps) (*Container, error) {
	logx.Info("🔧 Initializing IAM container...")

	c := &Container{}
	cfg := deps.Cfg

	// ── Repositories ─────────────────────────────────────────────────────

	projectRepo := projectinfra.NewPostgresProjectRepository(deps.DB)
	apiKeyRepo := apikeyinfra.NewPostgresAPIKeyRepository(deps.DB)
	userRepo := userinfra.NewPostgresUserRepository(deps.DB)
	accountRepo := userinfra.NewPostgresAccountRepository(deps.DB)
	refreshRepo := authinfra.NewPostgresRefreshTokenRepository(deps.DB)

	var codes verification.Repository
	switch cfg.Verification.Store {
	case "redis":
		codes = verificationinfra.NewRedisCodeRepository(deps.Redis)
		logx.Info("  ✅ Verification codes stored in Redis")
	default:
		codes = verificationinfra.NewPostgresCodeRepository(deps.DB)
		logx.Info("  ✅ Verification codes stored in Postgres")
	}

	oauthStore := oauthinfra.NewRedisStore(deps.Redis)

	// ── Services ─────────────────────────────────────────────────────────

	codec, err := auth.NewJWTCodecFromConfig(&cfg.Auth)
	if err != nil {
		return nil, err
	}
	c.Codec = codec

	audit := authinfra.NewLogxAuditService()

	c.APIKeyService = apikeysrv.NewAPIKeyService(apiKeyRepo, deps.Metrics)
	c.UserService = usersrv.NewService(userRepo, cfg.Auth.BcryptCost)
	c.TokenIssuer = authsrv.NewTokenIssuer(codec, refreshRepo, audit, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)

	c.Flows = flows.New(flows.Deps{
		Codes:              codes,
		Projects:           projectRepo,
		Users:              c.UserService,
		Passkeys:           userinfra.NewPostgresPasskeyRepository(deps.DB),
		Tokens:             c.TokenIssuer,
		Mailer:             deps.Mailer,
		Metrics:            deps.Metrics,
		DefaultTTL:         cfg.Verification.DefaultTTL,
		InternalProjectID:  kernel.NewTenantID(cfg.Verification.InternalProjectID),
		TransferConfirmURL: cfg.Verification.TransferConfirmURL,
	})

	providers := provider.NewFactory(cfg.OAuth)
	logx.Infof("  ✅ Shared OAuth credentials loaded for %d provider types", len(cfg.OAuth.Shared))

	c.Relay = oauthsrv.NewService(oauthsrv.Deps{
		Projects:             projectRepo,
		Keys:                 c.APIKeyService,
		Codec:                codec,
		Providers:            providers,
		Users:                c.UserService,
		Accounts:             accountRepo,
		Tokens:               c.TokenIssuer,
		Outer:                oauthStore.OuterInfos(),
		Codes:                oauthStore.Codes(),
		Audit:                audit,
		Metrics:              deps.Metrics,
		OuterInfoTTL:         cfg.OAuth.OuterInfoTTL,
		AuthorizationCodeTTL: cfg.OAuth.AuthorizationCodeTTL,
	})

	// ── Handlers & middleware ────────────────────────────────────────────

	c.Middleware = auth.NewRequestAuthMiddleware(c.APIKeyService, codec)
	c.APIKeyHandlers = apikeyapi.NewAPIKeyHandlers(c.APIKeyService)
	c.SessionHandlers = authapi.NewSessionHandlers(c.TokenIssuer)
	c.VerificationHandlers = verificationapi.NewHandlers(c.Flows)
	c.OAuthHandlers = oauthapi.NewHandlers(c.Relay, cfg.OAuth.CookieMaxAge, !cfg.IsDevelopment())

	logx.Info("✅ IAM container initialized")
	return c, nil
}

// RegisterRoutes mounts every IAM endpoint on router.
func (c *Container) RegisterRoutes(router fiber.Router) {
	c.OAuthHandlers.RegisterRoutes(router, c.Middleware)
	c.SessionHandlers.RegisterRoutes(router, c.Middleware)
	c.VerificationHandlers.RegisterRoutes(router, c.Middleware)
	c.APIKeyHandlers.RegisterRoutes(router, c.Middleware)
}
