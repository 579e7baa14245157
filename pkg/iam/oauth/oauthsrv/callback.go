package oauthsrv

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/oauth"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/project"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/provider"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user/usersrv"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/Abraxas-365/gatekeeper/pkg/logx"
	"github.com/google/uuid"
)

const authorizationCodeBytes = 32

type CallbackRequest struct {
	ProviderID kernel.ProviderID
	InnerState string
	Code       string
}

type CallbackResult struct {
	// Location is the client's redirect_uri with code and state appended.
	Location string
	UserID   kernel.UserID
	NewUser  bool
}

// ErrorRedirect carries a known callback error that must be delivered to the
// client's error_redirect_url instead of being rendered.
type ErrorRedirect struct {
	Location string
	Err      error
}

func (e *ErrorRedirect) Error() string { return e.Err.Error() }
func (e *ErrorRedirect) Unwrap() error { return e.Err }

// Callback finishes the relay. The outer record is consumed before anything
// else, so a replayed callback or a failed exchange can never use it again.
func (s *Service) Callback(ctx context.Context, req CallbackRequest) (res *CallbackResult, err error) {
	var tenantID kernel.TenantID
	defer func() { s.record(ctx, StageCallback, tenantID, err) }()

	outer, err := s.deps.Outer.Take(ctx, req.InnerState)
	if err != nil {
		return nil, err
	}
	tenantID = outer.TenantID
	if outer.IsExpired(s.deps.Clock()) {
		logx.WithContext(ctx).WithFields(logx.Fields{
			"tenant_id":  tenantID.String(),
			"expired_at": outer.ExpiresAt,
		}).Debug("oauth outer record expired")
		return nil, oauth.ErrStateNotFound()
	}
	if err := outer.Validate(); err != nil {
		return nil, err
	}
	if outer.ProviderID != req.ProviderID {
		return nil, oauth.ErrInvalidRequest("callback provider does not match the authorization").
			WithDetail("provider_id", req.ProviderID.String())
	}

	t, err := s.establishTrust(ctx, outer.TenantID, outer.PublishableClientKey, outer.ProviderID)
	if err != nil {
		return nil, errorRedirect(t, outer, err)
	}
	res, err = s.complete(ctx, t, outer, req.Code)
	if err != nil {
		return nil, errorRedirect(t, outer, err)
	}
	return res, nil
}

func (s *Service) complete(ctx context.Context, t *trust, outer *oauth.OuterInfo, code string) (*CallbackResult, error) {
	if code == "" {
		return nil, oauth.ErrInvalidRequest("the provider returned no authorization code")
	}
	cb, err := t.provider.Callback(ctx, provider.CallbackOptions{
		Code:         code,
		CodeVerifier: outer.InnerCodeVerifier,
	})
	if err != nil {
		return nil, err
	}
	if cb.UserInfo.AccountID == "" {
		return nil, provider.ErrUserInfoFailed().WithDetail("reason", "profile has no account id")
	}

	var (
		userID  kernel.UserID
		newUser bool
	)
	switch outer.Type {
	case oauth.FlowLink:
		userID, err = s.link(ctx, outer, &cb.UserInfo)
	default:
		userID, newUser, err = s.authenticate(ctx, t.project, outer, &cb.UserInfo)
	}
	if err != nil {
		return nil, err
	}

	if !t.config.IsShared() {
		if err := s.storeProviderTokens(ctx, t, outer, cb); err != nil {
			return nil, err
		}
	}

	issued, err := iam.RandomString(authorizationCodeBytes)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Codes.Save(ctx, &oauth.AuthorizationCode{
		Code:                     issued,
		TenantID:                 outer.TenantID,
		UserID:                   userID,
		RedirectURI:              outer.RedirectURI,
		Scope:                    outer.Scope,
		CodeChallenge:            outer.CodeChallenge,
		CodeChallengeMethod:      outer.CodeChallengeMethod,
		NewUser:                  newUser,
		AfterCallbackRedirectURL: outer.AfterCallbackRedirectURL,
		ExpiresAt:                s.deps.Clock().Add(s.deps.AuthorizationCodeTTL),
	}, s.deps.AuthorizationCodeTTL); err != nil {
		return nil, err
	}

	location, err := appendQuery(outer.RedirectURI, map[string]string{"code": issued, "state": outer.State})
	if err != nil {
		return nil, err
	}
	return &CallbackResult{Location: location, UserID: userID, NewUser: newUser}, nil
}

// authenticate signs in the owner of the provider account, or signs up a new
// user when the project allows it.
func (s *Service) authenticate(ctx context.Context, p *project.Project, outer *oauth.OuterInfo, info *provider.UserInfo) (kernel.UserID, bool, error) {
	acct, err := s.deps.Accounts.FindAccount(ctx, outer.TenantID, outer.ProviderID, info.AccountID)
	if err == nil {
		if s.deps.Audit != nil {
			s.deps.Audit.LogSignIn(ctx, outer.TenantID, acct.UserID, "oauth:"+outer.ProviderID.String())
		}
		return acct.UserID, false, nil
	}
	if !errx.HasCode(err, user.CodeAccountNotFound) {
		return "", false, err
	}

	if !p.Config.SignUpEnabled {
		return "", false, iam.ErrSignUpNotEnabled()
	}
	u, err := s.deps.Users.NewUser(usersrv.CreateRequest{
		TenantID:             outer.TenantID,
		DisplayName:          info.DisplayName,
		PrimaryEmail:         info.Email,
		PrimaryEmailVerified: info.EmailVerified,
		ProfileImageURL:      info.ProfileImageURL,
	})
	if err != nil {
		return "", false, err
	}
	err = s.deps.Accounts.CreateUserWithAccount(ctx, u, &user.Account{
		TenantID:          outer.TenantID,
		ProviderID:        outer.ProviderID,
		ProviderAccountID: info.AccountID,
		UserID:            u.ID,
		Email:             info.Email,
		CreatedAt:         s.deps.Clock(),
	})
	if errx.HasCode(err, user.CodeAccountConflict) || errx.HasCode(err, user.CodeEmailAlreadyExists) {
		// A concurrent callback may have signed the same provider account up.
		if acct, ferr := s.deps.Accounts.FindAccount(ctx, outer.TenantID, outer.ProviderID, info.AccountID); ferr == nil {
			if s.deps.Audit != nil {
				s.deps.Audit.LogSignIn(ctx, outer.TenantID, acct.UserID, "oauth:"+outer.ProviderID.String())
			}
			return acct.UserID, false, nil
		}
	}
	if err != nil {
		return "", false, err
	}
	usersrv.LogCreated(ctx, u)
	if s.deps.Audit != nil {
		s.deps.Audit.LogSignUp(ctx, outer.TenantID, u.ID, "oauth:"+outer.ProviderID.String())
	}
	return u.ID, true, nil
}

// link connects the provider account to the user that started the flow.
// Linking an account already connected to that same user is a no-op.
func (s *Service) link(ctx context.Context, outer *oauth.OuterInfo, info *provider.UserInfo) (kernel.UserID, error) {
	userID := outer.ProjectUserID

	acct, err := s.deps.Accounts.FindAccount(ctx, outer.TenantID, outer.ProviderID, info.AccountID)
	switch {
	case err == nil && acct.UserID != userID:
		return "", oauth.ErrConnectionAlreadyConnectedToAnotherUser()
	case err == nil:
		return userID, nil
	case !errx.HasCode(err, user.CodeAccountNotFound):
		return "", err
	}

	if _, err := s.deps.Users.Get(ctx, outer.TenantID, userID); err != nil {
		return "", err
	}
	_, err = s.deps.Accounts.FindAccountByUser(ctx, outer.TenantID, userID, outer.ProviderID)
	switch {
	case err == nil:
		return "", oauth.ErrUserAlreadyConnectedToAnotherAccount()
	case !errx.HasCode(err, user.CodeAccountNotFound):
		return "", err
	}

	if err := s.deps.Accounts.CreateAccount(ctx, &user.Account{
		TenantID:          outer.TenantID,
		ProviderID:        outer.ProviderID,
		ProviderAccountID: info.AccountID,
		UserID:            userID,
		Email:             info.Email,
		CreatedAt:         s.deps.Clock(),
	}); err != nil {
		if errx.HasCode(err, user.CodeAccountConflict) {
			return "", oauth.ErrConnectionAlreadyConnectedToAnotherUser().WithCause(err)
		}
		return "", err
	}
	if s.deps.Audit != nil {
		s.deps.Audit.LogAccountLinked(ctx, outer.TenantID, userID, outer.ProviderID.String())
	}
	return userID, nil
}

// storeProviderTokens keeps the provider tokens with the scopes they were
// granted: the provider's base scopes plus the requested provider scope.
func (s *Service) storeProviderTokens(ctx context.Context, t *trust, outer *oauth.OuterInfo, cb *provider.CallbackResult) error {
	scopes := provider.MergeScopes(t.provider.Scopes(), outer.ProviderScope)
	now := s.deps.Clock()

	if cb.Tokens.RefreshToken != "" {
		if err := s.deps.Accounts.SaveRefreshToken(ctx, &user.OAuthToken{
			ID:                uuid.NewString(),
			TenantID:          outer.TenantID,
			ProviderID:        outer.ProviderID,
			ProviderAccountID: cb.UserInfo.AccountID,
			RefreshToken:      cb.Tokens.RefreshToken,
			Scopes:            scopes,
			CreatedAt:         now,
		}); err != nil {
			return err
		}
	}
	if cb.Tokens.AccessToken != "" {
		if err := s.deps.Accounts.SaveAccessToken(ctx, &user.OAuthAccessToken{
			ID:                uuid.NewString(),
			TenantID:          outer.TenantID,
			ProviderID:        outer.ProviderID,
			ProviderAccountID: cb.UserInfo.AccountID,
			AccessToken:       cb.Tokens.AccessToken,
			Scopes:            scopes,
			ExpiresAt:         cb.Tokens.ExpiresAt,
			CreatedAt:         now,
		}); err != nil {
			return err
		}
	}
	return nil
}

// errorRedirect wraps registered errors in an ErrorRedirect when the client
// asked for one and the URL is whitelisted. Server faults and ad hoc errors
// are always rendered.
func errorRedirect(t *trust, outer *oauth.OuterInfo, err error) error {
	if t == nil || t.project == nil || outer.ErrorRedirectURL == "" {
		return err
	}
	var e *errx.Error
	if !errx.IsRegistered(err) || !errx.As(err, &e) || e.Type.IsServerFault() {
		return err
	}
	if !t.project.IsRedirectAllowed(outer.ErrorRedirectURL) {
		return err
	}

	params := map[string]string{"errorCode": e.Code, "message": e.Message}
	if len(e.Details) > 0 {
		details, jerr := json.Marshal(e.Details)
		if jerr == nil {
			params["details"] = string(details)
		}
	}
	location, lerr := appendQuery(outer.ErrorRedirectURL, params)
	if lerr != nil {
		return err
	}
	return &ErrorRedirect{Location: location, Err: err}
}

// appendQuery adds the non-empty params to raw's query.
func appendQuery(raw string, params map[string]string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", errx.Assertionf(err, "stored redirect url does not parse").WithDetail("url", raw)
	}
	q := u.Query()
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
