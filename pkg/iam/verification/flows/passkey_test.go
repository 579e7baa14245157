package flows_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"testing"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/project"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/verification"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/verification/flows"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const appOrigin = "https://app.example.com"

var b64 = base64.RawURLEncoding

// softAuthenticator is a P-256 platform authenticator with "none" attestation.
type softAuthenticator struct {
	key     *ecdsa.PrivateKey
	credID  []byte
	handle  []byte
	counter uint32
}

func newSoftAuthenticator(t *testing.T) *softAuthenticator {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	credID := make([]byte, 32)
	_, err = rand.Read(credID)
	require.NoError(t, err)
	return &softAuthenticator{key: key, credID: credID}
}

func clientData(t *testing.T, ceremony, challenge, origin string) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]string{"type": ceremony, "challenge": challenge, "origin": origin})
	require.NoError(t, err)
	return raw
}

func rpIDHash(origin string) []byte {
	host := origin[len("https://"):]
	sum := sha256.Sum256([]byte(host))
	return sum[:]
}

// create answers navigator.credentials.create for opts on origin.
func (a *softAuthenticator) create(t *testing.T, opts protocol.PublicKeyCredentialCreationOptions, origin string) json.RawMessage {
	t.Helper()
	handle, ok := opts.User.ID.(protocol.URLEncodedBase64)
	require.True(t, ok)
	a.handle = handle

	pub, err := a.key.PublicKey.ECDH()
	require.NoError(t, err)
	point := pub.Bytes()
	cose, err := webauthncbor.Marshal(webauthncose.EC2PublicKeyData{
		PublicKeyData: webauthncose.PublicKeyData{
			KeyType:   int64(webauthncose.EllipticKey),
			Algorithm: int64(webauthncose.AlgES256),
		},
		Curve:  int64(webauthncose.P256),
		XCoord: point[1:33],
		YCoord: point[33:],
	})
	require.NoError(t, err)

	authData := append([]byte{}, rpIDHash(origin)...)
	authData = append(authData, 0x41) // UP | AT
	authData = binary.BigEndian.AppendUint32(authData, a.counter)
	authData = append(authData, make([]byte, 16)...)
	authData = binary.BigEndian.AppendUint16(authData, uint16(len(a.credID)))
	authData = append(authData, a.credID...)
	authData = append(authData, cose...)

	attestation, err := webauthncbor.Marshal(map[string]any{
		"fmt":      "none",
		"attStmt":  map[string]any{},
		"authData": authData,
	})
	require.NoError(t, err)

	raw, err := json.Marshal(map[string]any{
		"id":    b64.EncodeToString(a.credID),
		"rawId": b64.EncodeToString(a.credID),
		"type":  "public-key",
		"response": map[string]string{
			"clientDataJSON":    b64.EncodeToString(clientData(t, "webauthn.create", opts.Challenge.String(), origin)),
			"attestationObject": b64.EncodeToString(attestation),
		},
	})
	require.NoError(t, err)
	return raw
}

// get answers navigator.credentials.get for opts on origin.
func (a *softAuthenticator) get(t *testing.T, opts protocol.PublicKeyCredentialRequestOptions, origin string) json.RawMessage {
	t.Helper()
	a.counter++
	authData := append([]byte{}, rpIDHash(origin)...)
	authData = append(authData, 0x01) // UP
	authData = binary.BigEndian.AppendUint32(authData, a.counter)

	cdata := clientData(t, "webauthn.get", opts.Challenge.String(), origin)
	cdataHash := sha256.Sum256(cdata)
	digest := sha256.Sum256(append(append([]byte{}, authData...), cdataHash[:]...))
	sig, err := ecdsa.SignASN1(rand.Reader, a.key, digest[:])
	require.NoError(t, err)

	raw, err := json.Marshal(map[string]any{
		"id":    b64.EncodeToString(a.credID),
		"rawId": b64.EncodeToString(a.credID),
		"type":  "public-key",
		"response": map[string]string{
			"clientDataJSON":    b64.EncodeToString(cdata),
			"authenticatorData": b64.EncodeToString(authData),
			"signature":         b64.EncodeToString(sig),
			"userHandle":        b64.EncodeToString(a.handle),
		},
	})
	require.NoError(t, err)
	return raw
}

func passkeyEnv(t *testing.T) *env {
	return newEnv(t, project.Config{PasskeyEnabled: true})
}

func (e *env) registerPasskey(t *testing.T, u *user.User, a *softAuthenticator) {
	t.Helper()
	ctx := context.Background()
	challenge, err := e.flows.InitiatePasskeyRegistration(ctx, tenant, u.ID)
	require.NoError(t, err)
	opts, ok := challenge.Options.(protocol.PublicKeyCredentialCreationOptions)
	require.True(t, ok)

	resp, err := e.flows.PasskeyRegistration.Consume(ctx, verification.ConsumeRequest[flows.PasskeyRegistrationBody]{
		TenantID: tenant,
		Code:     challenge.Code,
		Body:     flows.PasskeyRegistrationBody{Credential: a.create(t, opts, appOrigin)},
		UserID:   u.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, b64.EncodeToString(a.credID), resp.UserHandle)
}

func (e *env) passkeySignIn(t *testing.T, a *softAuthenticator, origin string) (flows.SignInResponse, error) {
	t.Helper()
	ctx := context.Background()
	challenge, err := e.flows.InitiatePasskeyAuthentication(ctx, tenant)
	require.NoError(t, err)
	opts, ok := challenge.Options.(protocol.PublicKeyCredentialRequestOptions)
	require.True(t, ok)
	assert.Equal(t, protocol.VerificationPreferred, opts.UserVerification)

	return e.flows.PasskeyAuthentication.Consume(ctx, verification.ConsumeRequest[flows.PasskeyAuthenticationBody]{
		TenantID: tenant,
		Code:     challenge.Code,
		Body:     flows.PasskeyAuthenticationBody{AuthenticationResponse: a.get(t, opts, origin)},
	})
}

func TestPasskeyRegisterThenSignIn(t *testing.T) {
	e := passkeyEnv(t)
	u := e.createUser(t, "ada@example.com")
	a := newSoftAuthenticator(t)

	e.registerPasskey(t, u, a)

	resp, err := e.passkeySignIn(t, a, appOrigin)
	require.NoError(t, err)
	assert.Equal(t, u.ID.String(), resp.UserID)
	assert.False(t, resp.IsNewUser)
	assert.NotEmpty(t, resp.AccessToken)

	pk, err := e.passkeys.FindPasskey(context.Background(), tenant, a.credID)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), pk.SignCount)

	_, err = e.passkeySignIn(t, a, appOrigin)
	require.NoError(t, err)
}

func TestPasskeyRegistrationOptions(t *testing.T) {
	e := passkeyEnv(t)
	u := e.createUser(t, "ada@example.com")

	challenge, err := e.flows.InitiatePasskeyRegistration(context.Background(), tenant, u.ID)
	require.NoError(t, err)
	opts := challenge.Options.(protocol.PublicKeyCredentialCreationOptions)
	assert.Equal(t, "app.example.com", opts.RelyingParty.ID)
	assert.Equal(t, "Acme", opts.RelyingParty.Name)
	assert.Equal(t, protocol.ResidentKeyRequirementRequired, opts.AuthenticatorSelection.ResidentKey)
	assert.Equal(t, protocol.VerificationPreferred, opts.AuthenticatorSelection.UserVerification)
	assert.Equal(t, 60000, opts.Timeout)

	code, err := e.codes.FindByID(context.Background(), tenant, challenge.Code)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(65*time.Second), code.ExpiresAt, 5*time.Second)
}

func TestPasskeyRegistrationFromForeignOrigin(t *testing.T) {
	e := passkeyEnv(t)
	u := e.createUser(t, "ada@example.com")
	a := newSoftAuthenticator(t)
	ctx := context.Background()

	challenge, err := e.flows.InitiatePasskeyRegistration(ctx, tenant, u.ID)
	require.NoError(t, err)
	opts := challenge.Options.(protocol.PublicKeyCredentialCreationOptions)

	_, err = e.flows.PasskeyRegistration.Consume(ctx, verification.ConsumeRequest[flows.PasskeyRegistrationBody]{
		TenantID: tenant,
		Code:     challenge.Code,
		Body:     flows.PasskeyRegistrationBody{Credential: a.create(t, opts, "https://evil.example.net")},
		UserID:   u.ID,
	})
	assert.True(t, errx.HasCode(err, iam.CodePasskeyRegistrationFailed))

	_, err = e.passkeys.FindPasskey(ctx, tenant, a.credID)
	assert.True(t, errx.HasCode(err, user.CodePasskeyNotFound))
}

func TestPasskeyRegistrationCodeBelongsToItsUser(t *testing.T) {
	e := passkeyEnv(t)
	ada := e.createUser(t, "ada@example.com")
	bob := e.createUser(t, "bob@example.com")
	a := newSoftAuthenticator(t)
	ctx := context.Background()

	challenge, err := e.flows.InitiatePasskeyRegistration(ctx, tenant, ada.ID)
	require.NoError(t, err)
	opts := challenge.Options.(protocol.PublicKeyCredentialCreationOptions)
	credential := a.create(t, opts, appOrigin)

	req := verification.ConsumeRequest[flows.PasskeyRegistrationBody]{
		TenantID: tenant,
		Code:     challenge.Code,
		Body:     flows.PasskeyRegistrationBody{Credential: credential},
		UserID:   bob.ID,
	}
	_, err = e.flows.PasskeyRegistration.Consume(ctx, req)
	assert.True(t, errx.HasCode(err, iam.CodePasskeyRegistrationFailed))

	req.UserID = ""
	_, err = e.flows.PasskeyRegistration.Consume(ctx, req)
	assert.True(t, errx.HasCode(err, iam.CodeUserRequired))

	req.UserID = ada.ID
	_, err = e.flows.PasskeyRegistration.Consume(ctx, req)
	require.NoError(t, err)
}

func TestPasskeyDisabledProject(t *testing.T) {
	e := newEnv(t, project.Config{})
	u := e.createUser(t, "ada@example.com")
	ctx := context.Background()

	_, err := e.flows.InitiatePasskeyRegistration(ctx, tenant, u.ID)
	assert.True(t, errx.HasCode(err, iam.CodeMethodDisabled))
	_, err = e.flows.InitiatePasskeyAuthentication(ctx, tenant)
	assert.True(t, errx.HasCode(err, iam.CodeMethodDisabled))
}

func TestPasskeySignInWithUnknownCredential(t *testing.T) {
	e := passkeyEnv(t)
	u := e.createUser(t, "ada@example.com")
	e.registerPasskey(t, u, newSoftAuthenticator(t))

	stranger := newSoftAuthenticator(t)
	stranger.handle = u.WebAuthnHandle()
	_, err := e.passkeySignIn(t, stranger, appOrigin)
	assert.True(t, errx.HasCode(err, iam.CodePasskeyAuthenticationFailed))
}

func TestPasskeySignInFromForeignOrigin(t *testing.T) {
	e := passkeyEnv(t)
	u := e.createUser(t, "ada@example.com")
	a := newSoftAuthenticator(t)
	e.registerPasskey(t, u, a)

	_, err := e.passkeySignIn(t, a, "https://evil.example.net")
	assert.True(t, errx.HasCode(err, iam.CodePasskeyAuthenticationFailed))
}

func TestPasskeySignInRejectsCounterRollback(t *testing.T) {
	e := passkeyEnv(t)
	u := e.createUser(t, "ada@example.com")
	a := newSoftAuthenticator(t)
	e.registerPasskey(t, u, a)

	_, err := e.passkeySignIn(t, a, appOrigin)
	require.NoError(t, err)
	_, err = e.passkeySignIn(t, a, appOrigin)
	require.NoError(t, err)

	a.counter = 0
	_, err = e.passkeySignIn(t, a, appOrigin)
	assert.True(t, errx.HasCode(err, iam.CodePasskeyAuthenticationFailed))
}

func TestPasskeyReRegistrationReplacesOldKey(t *testing.T) {
	e := passkeyEnv(t)
	u := e.createUser(t, "ada@example.com")
	old := newSoftAuthenticator(t)
	e.registerPasskey(t, u, old)

	fresh := newSoftAuthenticator(t)
	e.registerPasskey(t, u, fresh)

	_, err := e.passkeySignIn(t, old, appOrigin)
	assert.True(t, errx.HasCode(err, iam.CodePasskeyAuthenticationFailed))
	_, err = e.passkeySignIn(t, fresh, appOrigin)
	require.NoError(t, err)
}

func attemptCode(t *testing.T, err error) string {
	t.Helper()
	require.True(t, errx.HasCode(err, iam.CodeMFARequired), "got %v", err)
	var xerr *errx.Error
	require.True(t, errx.As(err, &xerr))
	code, ok := xerr.Details["attempt_code"].(string)
	require.True(t, ok)
	return code
}

func (e *env) enrollTOTP(t *testing.T, u *user.User) string {
	t.Helper()
	key, err := e.flows.EnrollTOTP(context.Background(), tenant, u.ID)
	require.NoError(t, err)
	assert.Contains(t, key.URL, "otpauth://totp/Acme:")
	return key.Secret
}

func TestPasskeySignInWithTOTPNeedsSecondFactor(t *testing.T) {
	e := passkeyEnv(t)
	u := e.createUser(t, "ada@example.com")
	a := newSoftAuthenticator(t)
	e.registerPasskey(t, u, a)
	secret := e.enrollTOTP(t, u)
	ctx := context.Background()

	_, err := e.passkeySignIn(t, a, appOrigin)
	code := attemptCode(t, err)

	passcode, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	resp, err := e.flows.MFA.Consume(ctx, verification.ConsumeRequest[flows.MFABody]{
		TenantID: tenant,
		Code:     code,
		Body:     flows.MFABody{Type: "totp", TOTP: passcode},
	})
	require.NoError(t, err)
	assert.Equal(t, u.ID.String(), resp.UserID)
	assert.NotEmpty(t, resp.AccessToken)

	stored, err := e.codes.FindByID(ctx, tenant, code)
	require.NoError(t, err)
	assert.WithinDuration(t, stored.CreatedAt.Add(5*time.Minute), stored.ExpiresAt, time.Second)
}

func TestMFAWrongTOTPKeepsAttemptCode(t *testing.T) {
	e := newEnv(t, project.Config{MagicLinkEnabled: true})
	u := e.createUser(t, "ada@example.com")
	secret := e.enrollTOTP(t, u)
	ctx := context.Background()

	nonce, err := e.flows.SendSignInCode(ctx, tenant, "ada@example.com", "")
	require.NoError(t, err)
	_, err = e.flows.SignIn.Consume(ctx, verification.ConsumeRequest[flows.NoBody]{
		TenantID: tenant,
		Code:     e.mailer.Last().Variables["otp"] + nonce,
	})
	code := attemptCode(t, err)

	_, err = e.flows.MFA.Consume(ctx, verification.ConsumeRequest[flows.MFABody]{
		TenantID: tenant,
		Code:     code,
		Body:     flows.MFABody{Type: "totp", TOTP: "000000x"},
	})
	assert.True(t, errx.HasCode(err, iam.CodeInvalidTOTP))

	passcode, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	_, err = e.flows.MFA.Consume(ctx, verification.ConsumeRequest[flows.MFABody]{
		TenantID: tenant,
		Code:     code,
		Body:     flows.MFABody{Type: "sms", TOTP: passcode},
	})
	assert.True(t, errx.HasCode(err, verification.CodeInvalidBody))

	resp, err := e.flows.MFA.Consume(ctx, verification.ConsumeRequest[flows.MFABody]{
		TenantID: tenant,
		Code:     code,
		Body:     flows.MFABody{Type: "totp", TOTP: passcode},
	})
	require.NoError(t, err)
	assert.Equal(t, u.ID.String(), resp.UserID)

	_, err = e.flows.MFA.Consume(ctx, verification.ConsumeRequest[flows.MFABody]{
		TenantID: tenant,
		Code:     code,
		Body:     flows.MFABody{Type: "totp", TOTP: passcode},
	})
	assert.True(t, errx.HasCode(err, verification.CodeAlreadyUsed))
}

func TestDisableTOTPRestoresSingleFactor(t *testing.T) {
	e := newEnv(t, project.Config{MagicLinkEnabled: true})
	u := e.createUser(t, "ada@example.com")
	e.enrollTOTP(t, u)
	ctx := context.Background()
	require.NoError(t, e.flows.DisableTOTP(ctx, tenant, u.ID))

	nonce, err := e.flows.SendSignInCode(ctx, tenant, "ada@example.com", "")
	require.NoError(t, err)
	resp, err := e.flows.SignIn.Consume(ctx, verification.ConsumeRequest[flows.NoBody]{
		TenantID: tenant,
		Code:     e.mailer.Last().Variables["otp"] + nonce,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
}
