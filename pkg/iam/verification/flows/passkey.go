package flows

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/project"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/verification"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/Abraxas-365/gatekeeper/pkg/logx"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

const (
	// passkeyTimeout is what the browser is told to wait for the authenticator.
	passkeyTimeout = 60 * time.Second
	// passkeyCodeTTL leaves a few seconds past the browser timeout for the round trip.
	passkeyCodeTTL = 65 * time.Second
)

// PasskeyChallenge is handed to the browser to start a ceremony. Code redeems
// the ceremony's result.
type PasskeyChallenge struct {
	Options any    `json:"options_json"`
	Code    string `json:"code"`
}

// ============================================================================
// Registration
// ============================================================================

type PasskeyRegistrationData struct {
	Challenge string `json:"challenge"`
	// UserHandle is the base64url WebAuthn handle of the registering user.
	UserHandle string `json:"user_handle"`
}

func (d PasskeyRegistrationData) Validate() error {
	if d.Challenge == "" || d.UserHandle == "" {
		return fmt.Errorf("challenge and user_handle are required")
	}
	return nil
}

type PasskeyRegistrationBody struct {
	Credential json.RawMessage `json:"credential"`
}

type PasskeyRegistrationResponse struct {
	// UserHandle is the base64url id of the new credential.
	UserHandle string `json:"user_handle"`
}

type PasskeyRegistrationHandler = verification.Handler[PasskeyRegistrationData, NoMethod, PasskeyRegistrationBody, PasskeyRegistrationResponse]

func (f *Flows) newPasskeyRegistration() *PasskeyRegistrationHandler {
	return verification.NewHandler(verification.Flow[PasskeyRegistrationData, NoMethod, PasskeyRegistrationBody, PasskeyRegistrationResponse]{
		Type:        verification.TypePasskeyRegistration,
		RequireUser: true,
		ValidateBody: func(body PasskeyRegistrationBody) error {
			if len(body.Credential) == 0 {
				return verification.ErrInvalidBody().WithDetail("reason", "credential is required")
			}
			return nil
		},
		Validate: func(ctx context.Context, in verification.Input[PasskeyRegistrationData, NoMethod, PasskeyRegistrationBody]) error {
			if !in.Project.Config.PasskeyEnabled {
				return iam.ErrMethodDisabled("passkey")
			}
			if in.UserID.IsEmpty() {
				return iam.ErrUserRequired()
			}
			handle, err := base64.RawURLEncoding.DecodeString(in.Data.UserHandle)
			if err != nil || string(handle) != in.UserID.String() {
				return iam.ErrPasskeyRegistrationFailed("the challenge was issued to another user")
			}
			return nil
		},
		Handle: func(ctx context.Context, in verification.Input[PasskeyRegistrationData, NoMethod, PasskeyRegistrationBody]) (PasskeyRegistrationResponse, error) {
			parsed, err := protocol.ParseCredentialCreationResponseBytes(in.Body.Credential)
			if err != nil {
				return PasskeyRegistrationResponse{}, iam.ErrPasskeyRegistrationFailed("credential is malformed").WithCause(err)
			}
			rp, err := relyingPartyFor(in.Project, parsed.Response.CollectedClientData.Origin)
			if err != nil {
				return PasskeyRegistrationResponse{}, iam.ErrPasskeyRegistrationFailed(err.Error())
			}
			u, err := f.deps.Users.Get(ctx, in.Project.ID, in.UserID)
			if err != nil {
				return PasskeyRegistrationResponse{}, err
			}

			owner := webauthnUserOf(u)
			cred, err := rp.CreateCredential(owner, webauthn.SessionData{
				Challenge:        in.Data.Challenge,
				RelyingPartyID:   rp.Config.RPID,
				UserID:           owner.id,
				UserVerification: protocol.VerificationPreferred,
				CredParams:       webauthn.CredentialParametersDefault(),
			}, parsed)
			if err != nil {
				return PasskeyRegistrationResponse{}, iam.ErrPasskeyRegistrationFailed(ceremonyReason(err)).WithCause(err)
			}

			if err := f.deps.Passkeys.SavePasskey(ctx, passkeyOf(in.Project.ID, u.ID, cred, f.now())); err != nil {
				return PasskeyRegistrationResponse{}, err
			}

			logx.WithContext(ctx).WithFields(logx.Fields{
				"tenant_id": in.Project.ID.String(),
				"user_id":   u.ID.String(),
			}).Info("passkey registered")
			return PasskeyRegistrationResponse{UserHandle: base64.RawURLEncoding.EncodeToString(cred.ID)}, nil
		},
	}, f.deps.Codes, f.deps.Projects, f.options()...)
}

// InitiatePasskeyRegistration starts a registration ceremony for a signed-in
// user.
func (f *Flows) InitiatePasskeyRegistration(ctx context.Context, tenantID kernel.TenantID, userID kernel.UserID) (*PasskeyChallenge, error) {
	p, err := f.passkeyProject(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	u, err := f.deps.Users.Get(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	rp, err := initiatingParty(p)
	if err != nil {
		return nil, err
	}

	creation, session, err := rp.BeginRegistration(webauthnUserOf(u),
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired))
	if err != nil {
		return nil, errx.Wrap(err, "begin passkey registration", errx.TypeInternal)
	}

	ttl := passkeyCodeTTL
	issued, err := f.PasskeyRegistration.CreateCode(ctx, verification.CreateRequest[PasskeyRegistrationData, NoMethod]{
		TenantID: tenantID,
		Data: PasskeyRegistrationData{
			Challenge:  session.Challenge,
			UserHandle: base64.RawURLEncoding.EncodeToString(session.UserID),
		},
		ExpiresIn: &ttl,
	})
	if err != nil {
		return nil, err
	}
	return &PasskeyChallenge{Options: creation.Response, Code: issued.Code}, nil
}

// ============================================================================
// Authentication
// ============================================================================

type PasskeyAuthenticationData struct {
	Challenge string `json:"challenge"`
}

func (d PasskeyAuthenticationData) Validate() error {
	if d.Challenge == "" {
		return fmt.Errorf("challenge is required")
	}
	return nil
}

type PasskeyAuthenticationBody struct {
	AuthenticationResponse json.RawMessage `json:"authentication_response"`
}

type PasskeyAuthenticationHandler = verification.Handler[PasskeyAuthenticationData, NoMethod, PasskeyAuthenticationBody, SignInResponse]

func (f *Flows) newPasskeyAuthentication() *PasskeyAuthenticationHandler {
	return verification.NewHandler(verification.Flow[PasskeyAuthenticationData, NoMethod, PasskeyAuthenticationBody, SignInResponse]{
		Type: verification.TypePasskeyAuthentication,
		ValidateBody: func(body PasskeyAuthenticationBody) error {
			if len(body.AuthenticationResponse) == 0 {
				return verification.ErrInvalidBody().WithDetail("reason", "authentication_response is required")
			}
			return nil
		},
		Validate: func(ctx context.Context, in verification.Input[PasskeyAuthenticationData, NoMethod, PasskeyAuthenticationBody]) error {
			if !in.Project.Config.PasskeyEnabled {
				return iam.ErrMethodDisabled("passkey")
			}
			return nil
		},
		Handle: func(ctx context.Context, in verification.Input[PasskeyAuthenticationData, NoMethod, PasskeyAuthenticationBody]) (SignInResponse, error) {
			parsed, err := protocol.ParseCredentialRequestResponseBytes(in.Body.AuthenticationResponse)
			if err != nil {
				return SignInResponse{}, iam.ErrPasskeyAuthenticationFailed("authentication response is malformed").WithCause(err)
			}
			pk, err := f.deps.Passkeys.FindPasskey(ctx, in.Project.ID, parsed.RawID)
			if err != nil {
				if errx.HasCode(err, user.CodePasskeyNotFound) {
					return SignInResponse{}, iam.ErrPasskeyAuthenticationFailed("passkey not found")
				}
				return SignInResponse{}, err
			}
			rp, err := relyingPartyFor(in.Project, parsed.Response.CollectedClientData.Origin)
			if err != nil {
				return SignInResponse{}, iam.ErrPasskeyAuthenticationFailed(err.Error())
			}

			owner := webauthnUser{
				id:          []byte(pk.UserID.String()),
				name:        pk.UserID.String(),
				credentials: []webauthn.Credential{credentialOf(pk)},
			}
			cred, err := rp.ValidateLogin(owner, webauthn.SessionData{
				Challenge:        in.Data.Challenge,
				RelyingPartyID:   rp.Config.RPID,
				UserID:           owner.id,
				UserVerification: protocol.VerificationPreferred,
			}, parsed)
			if err != nil {
				return SignInResponse{}, iam.ErrPasskeyAuthenticationFailed(ceremonyReason(err)).WithCause(err)
			}
			if cred.Authenticator.CloneWarning {
				return SignInResponse{}, iam.ErrPasskeyAuthenticationFailed("signature counter did not increase")
			}
			if err := f.deps.Passkeys.UpdateSignCount(ctx, in.Project.ID, pk.CredentialID, cred.Authenticator.SignCount); err != nil {
				return SignInResponse{}, err
			}

			u, err := f.deps.Users.Get(ctx, in.Project.ID, pk.UserID)
			if err != nil {
				return SignInResponse{}, err
			}
			return f.completeSignIn(ctx, in.Project, u, false)
		},
	}, f.deps.Codes, f.deps.Projects, f.options()...)
}

// InitiatePasskeyAuthentication starts a discoverable sign-in ceremony: the
// authenticator picks the credential.
func (f *Flows) InitiatePasskeyAuthentication(ctx context.Context, tenantID kernel.TenantID) (*PasskeyChallenge, error) {
	p, err := f.passkeyProject(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	rp, err := initiatingParty(p)
	if err != nil {
		return nil, err
	}

	assertion, session, err := rp.BeginDiscoverableLogin(webauthn.WithUserVerification(protocol.VerificationPreferred))
	if err != nil {
		return nil, errx.Wrap(err, "begin passkey authentication", errx.TypeInternal)
	}

	ttl := passkeyCodeTTL
	issued, err := f.PasskeyAuthentication.CreateCode(ctx, verification.CreateRequest[PasskeyAuthenticationData, NoMethod]{
		TenantID:  tenantID,
		Data:      PasskeyAuthenticationData{Challenge: session.Challenge},
		ExpiresIn: &ttl,
	})
	if err != nil {
		return nil, err
	}
	return &PasskeyChallenge{Options: assertion.Response, Code: issued.Code}, nil
}

// ============================================================================
// WebAuthn plumbing
// ============================================================================

func (f *Flows) passkeyProject(ctx context.Context, tenantID kernel.TenantID) (*project.Project, error) {
	p, err := f.deps.Projects.FindByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !p.Config.PasskeyEnabled {
		return nil, iam.ErrMethodDisabled("passkey")
	}
	return p, nil
}

// initiatingParty builds the relying party that issues ceremony options. Its
// RP id is the host of the first domain; browsers on another allowed origin
// replace it with their own host.
func initiatingParty(p *project.Project) (*webauthn.WebAuthn, error) {
	origins := p.Origins()
	rpID := "localhost"
	if len(origins) > 0 {
		if u, err := url.Parse(origins[0]); err == nil {
			rpID = u.Hostname()
		}
	} else {
		origins = []string{"http://localhost"}
	}
	rp, err := webauthn.New(&webauthn.Config{
		RPID:          rpID,
		RPDisplayName: displayName(p),
		RPOrigins:     origins,
		AuthenticatorSelection: protocol.AuthenticatorSelection{
			UserVerification: protocol.VerificationPreferred,
		},
		Timeouts: webauthn.TimeoutsConfig{
			Login:        webauthn.TimeoutConfig{Timeout: passkeyTimeout},
			Registration: webauthn.TimeoutConfig{Timeout: passkeyTimeout},
		},
	})
	if err != nil {
		return nil, errx.Wrap(err, "configure relying party", errx.TypeInternal)
	}
	return rp, nil
}

// relyingPartyFor builds the relying party that verifies a ceremony run on
// origin. The RP id is the origin's host.
func relyingPartyFor(p *project.Project, origin string) (*webauthn.WebAuthn, error) {
	if !p.IsOriginAllowed(origin) {
		return nil, fmt.Errorf("origin %q is not a domain of the project", origin)
	}
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("origin %q is invalid", origin)
	}
	return webauthn.New(&webauthn.Config{
		RPID:          u.Hostname(),
		RPDisplayName: displayName(p),
		RPOrigins:     []string{origin},
	})
}

// ceremonyReason is the client-facing part of a WebAuthn verification error.
func ceremonyReason(err error) string {
	var perr *protocol.Error
	if errx.As(err, &perr) && perr.Details != "" {
		return perr.Details
	}
	return "verification failed"
}

type webauthnUser struct {
	id          []byte
	name        string
	displayName string
	credentials []webauthn.Credential
}

func webauthnUserOf(u *user.User) webauthnUser {
	name := u.PrimaryEmail
	if name == "" {
		name = u.ID.String()
	}
	display := u.DisplayName
	if display == "" {
		display = name
	}
	return webauthnUser{id: u.WebAuthnHandle(), name: name, displayName: display}
}

func (u webauthnUser) WebAuthnID() []byte                         { return u.id }
func (u webauthnUser) WebAuthnName() string                       { return u.name }
func (u webauthnUser) WebAuthnDisplayName() string                { return u.displayName }
func (u webauthnUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }

func passkeyOf(tenantID kernel.TenantID, userID kernel.UserID, c *webauthn.Credential, now time.Time) *user.Passkey {
	transports := make([]string, len(c.Transport))
	for i, t := range c.Transport {
		transports[i] = string(t)
	}
	return &user.Passkey{
		TenantID:        tenantID,
		UserID:          userID,
		CredentialID:    c.ID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Transports:      transports,
		SignCount:       c.Authenticator.SignCount,
		BackupEligible:  c.Flags.BackupEligible,
		BackupState:     c.Flags.BackupState,
		CreatedAt:       now.UTC(),
	}
}

func credentialOf(pk *user.Passkey) webauthn.Credential {
	transports := make([]protocol.AuthenticatorTransport, len(pk.Transports))
	for i, t := range pk.Transports {
		transports[i] = protocol.AuthenticatorTransport(t)
	}
	return webauthn.Credential{
		ID:              pk.CredentialID,
		PublicKey:       pk.PublicKey,
		AttestationType: pk.AttestationType,
		Transport:       transports,
		Flags: webauthn.CredentialFlags{
			BackupEligible: pk.BackupEligible,
			BackupState:    pk.BackupState,
		},
		Authenticator: webauthn.Authenticator{SignCount: pk.SignCount},
	}
}
