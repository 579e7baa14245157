package verificationapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx/errxfiber"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/auth"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/auth/authsrv"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/auth/authtest"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/project"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/project/projecttest"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user/usersrv"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user/usertest"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/verification/flows"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/verification/verificationtest"
	"github.com/gofiber/fiber/v2"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testServer struct {
	app      *fiber.App
	users    *usersrv.Service
	issuer   *authsrv.TokenIssuer
	projects *projecttest.Memory
	mailer   *verificationtest.Mailer
}

func newServer(t *testing.T) *testServer {
	t.Helper()
	domains := []project.Domain{{Domain: "https://app.example.com"}}
	s := &testServer{
		projects: projecttest.NewMemory(
			&project.Project{ID: "proj-1", DisplayName: "Acme", Config: project.Config{
				CredentialEnabled: true,
				MagicLinkEnabled:  true,
				SignUpEnabled:     true,
				Domains:           domains,
			}},
			&project.Project{ID: "internal", Config: project.Config{AllowLocalhost: true}},
			&project.Project{ID: "neon-proj", DisplayName: "From Neon"},
		),
		mailer: &verificationtest.Mailer{},
	}
	s.users = usersrv.NewService(usertest.NewUsers(), bcrypt.MinCost)
	issuer, codec := authtest.NewIssuer(t)
	s.issuer = issuer

	f := flows.New(flows.Deps{
		Codes:              verificationtest.NewCodes(),
		Projects:           s.projects,
		Users:              s.users,
		Passkeys:           usertest.NewPasskeys(),
		Tokens:             issuer,
		Mailer:             s.mailer,
		InternalProjectID:  "internal",
		TransferConfirmURL: "http://localhost:8101/integrations/neon/projects/transfer/confirm",
	})
	s.app = fiber.New(fiber.Config{ErrorHandler: errxfiber.ErrorHandler})
	NewHandlers(f).RegisterRoutes(s.app, authtest.NewMiddleware(codec))
	return s
}

func (s *testServer) do(t *testing.T, path string, headers map[string]string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func client(projectID string) map[string]string {
	return map[string]string{auth.HeaderProjectID: projectID, auth.HeaderPublishableKey: "pck_test"}
}

func codeOf(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.Query().Get("code")
}

func TestPasswordResetEndpoints(t *testing.T) {
	s := newServer(t)
	_, err := s.users.Create(context.Background(), usersrv.CreateRequest{TenantID: "proj-1", PrimaryEmail: "ada@example.com"})
	require.NoError(t, err)

	status, body := s.do(t, "/api/v1/auth/password/send-reset-code", client("proj-1"), map[string]any{
		"email":        "ada@example.com",
		"callback_url": "https://app.example.com/reset",
	})
	require.Equal(t, 200, status, body)
	code := codeOf(t, s.mailer.Last().Variables["link"])

	status, body = s.do(t, PathPasswordReset+"/check", client("proj-1"), map[string]any{"code": code})
	require.Equal(t, 200, status, body)
	assert.Equal(t, true, body["is_code_valid"])

	reset := map[string]any{"code": code, "password": "correct horse battery"}
	status, body = s.do(t, PathPasswordReset, client("proj-1"), reset)
	require.Equal(t, 200, status, body)
	assert.Equal(t, map[string]any{"success": true}, body)

	status, body = s.do(t, PathPasswordReset, client("proj-1"), reset)
	assert.Equal(t, 409, status)
	assert.Equal(t, "VERIFICATION_CODE_ALREADY_USED", body["code"])
}

func TestSignInEndpoints(t *testing.T) {
	s := newServer(t)

	status, body := s.do(t, "/api/v1/auth/otp/send-sign-in-code", client("proj-1"), map[string]any{"email": "new@example.com"})
	require.Equal(t, 200, status, body)
	nonce, _ := body["nonce"].(string)
	require.NotEmpty(t, nonce)
	otp := s.mailer.Last().Variables["otp"]

	status, body = s.do(t, PathSignIn, client("proj-1"), map[string]any{
		"code":   otp + nonce,
		"method": map[string]any{"email": "new@example.com"},
	})
	require.Equal(t, 200, status, body)
	assert.NotEmpty(t, body["access_token"])
	assert.Equal(t, true, body["is_new_user"])
}

func TestConsumeRejectsBadBodies(t *testing.T) {
	s := newServer(t)

	status, body := s.do(t, PathSignIn, client("proj-1"), map[string]any{"method": nil})
	assert.Equal(t, 400, status)
	assert.Equal(t, "VERIFICATION_INVALID_BODY", body["code"])

	status, body = s.do(t, PathSignIn, client("proj-1"), map[string]any{"code": "unknown"})
	assert.Equal(t, 404, status)
	assert.Equal(t, "VERIFICATION_CODE_NOT_FOUND", body["code"])

	status, _ = s.do(t, PathSignIn+"/details", client("proj-1"), map[string]any{"code": "unknown"})
	assert.Equal(t, 404, status, "sign-in codes have no details endpoint")
}

func TestContactChannelSendRequiresUser(t *testing.T) {
	s := newServer(t)

	status, body := s.do(t, "/api/v1/contact-channels/send-verification-code", client("proj-1"), map[string]any{})
	assert.Equal(t, 401, status)
	assert.Equal(t, "IAM_USER_AUTHENTICATION_REQUIRED", body["code"])
}

func TestProjectTransferEndpoints(t *testing.T) {
	s := newServer(t)
	s.projects.Provision("neon-proj", "neon-client")
	ctx := context.Background()

	status, body := s.do(t, "/api/v1/integrations/neon/projects/transfer/initiate", client("neon-proj"), map[string]any{})
	assert.Equal(t, 403, status, "initiating needs the server key")
	assert.Equal(t, "IAM_INSUFFICIENT_ACCESS_TYPE", body["code"])

	server := map[string]string{auth.HeaderProjectID: "neon-proj", auth.HeaderSecretServerKey: "ssk_test"}
	status, body = s.do(t, "/api/v1/integrations/neon/projects/transfer/initiate", server, map[string]any{})
	require.Equal(t, 200, status, body)
	link, _ := body["confirmation_url"].(string)
	code := codeOf(t, link)
	require.NotEmpty(t, code)

	status, body = s.do(t, PathProjectTransfer+"/details", client("internal"), map[string]any{"code": code})
	require.Equal(t, 200, status, body)
	assert.Equal(t, "From Neon", body["project_display_name"])

	status, body = s.do(t, PathProjectTransfer, client("internal"), map[string]any{"code": code})
	assert.Equal(t, 401, status)
	assert.Equal(t, "IAM_USER_AUTHENTICATION_REQUIRED", body["code"])

	u, err := s.users.Create(ctx, usersrv.CreateRequest{TenantID: "internal", PrimaryEmail: "owner@example.com"})
	require.NoError(t, err)
	pair, err := s.issuer.CreateAuthTokens(ctx, "internal", u.ID)
	require.NoError(t, err)

	headers := client("internal")
	headers["Authorization"] = "Bearer " + pair.AccessToken
	status, body = s.do(t, PathProjectTransfer, headers, map[string]any{"code": code})
	require.Equal(t, 200, status, body)
	assert.Equal(t, "neon-proj", body["project_id"])
	assert.Equal(t, u.ID, s.projects.Transfers["neon-proj"])

	status, body = s.do(t, PathProjectTransfer+"/check", headers, map[string]any{"code": code})
	assert.Equal(t, 409, status)
	assert.Equal(t, "VERIFICATION_CODE_ALREADY_USED", body["code"])
}

func TestMFAEndpoints(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	u, err := s.users.Create(ctx, usersrv.CreateRequest{TenantID: "proj-1", PrimaryEmail: "ada@example.com"})
	require.NoError(t, err)
	pair, err := s.issuer.CreateAuthTokens(ctx, "proj-1", u.ID)
	require.NoError(t, err)

	status, body := s.do(t, "/api/v1/auth/mfa/totp", client("proj-1"), map[string]any{})
	assert.Equal(t, 401, status)
	assert.Equal(t, "IAM_USER_AUTHENTICATION_REQUIRED", body["code"])

	signedIn := client("proj-1")
	signedIn["Authorization"] = "Bearer " + pair.AccessToken
	status, body = s.do(t, "/api/v1/auth/mfa/totp", signedIn, map[string]any{})
	require.Equal(t, 200, status, body)
	secret, _ := body["secret"].(string)
	require.NotEmpty(t, secret)

	status, body = s.do(t, "/api/v1/auth/otp/send-sign-in-code", client("proj-1"), map[string]any{"email": "ada@example.com"})
	require.Equal(t, 200, status, body)
	nonce, _ := body["nonce"].(string)
	status, body = s.do(t, PathSignIn, client("proj-1"), map[string]any{"code": s.mailer.Last().Variables["otp"] + nonce})
	require.Equal(t, 400, status, body)
	assert.Equal(t, "IAM_MULTI_FACTOR_AUTHENTICATION_REQUIRED", body["code"])
	details, _ := body["details"].(map[string]any)
	attempt, _ := details["attempt_code"].(string)
	require.NotEmpty(t, attempt)

	passcode, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	status, body = s.do(t, PathMFASignIn, client("proj-1"), map[string]any{"code": attempt, "type": "totp", "totp": passcode})
	require.Equal(t, 200, status, body)
	assert.Equal(t, u.ID.String(), body["user_id"])
	assert.NotEmpty(t, body["access_token"])
}

func TestPasskeyInitiateNeedsPasskeysEnabled(t *testing.T) {
	s := newServer(t)

	status, body := s.do(t, "/api/v1/auth/passkey/initiate-passkey-authentication", client("proj-1"), map[string]any{})
	assert.Equal(t, 400, status)
	assert.Equal(t, "IAM_AUTH_METHOD_DISABLED", body["code"])

	status, body = s.do(t, "/api/v1/auth/passkey/initiate-passkey-registration", client("proj-1"), map[string]any{})
	assert.Equal(t, 401, status)
	assert.Equal(t, "IAM_USER_AUTHENTICATION_REQUIRED", body["code"])
}
