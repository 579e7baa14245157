package provider

import (
	"context"

	"golang.org/x/oauth2"
)

// NewMicrosoft builds the Microsoft identity platform provider for tenantID
// ("common" when empty).
func NewMicrosoft(s Settings, tenantID string) Provider {
	if tenantID == "" {
		tenantID = "common"
	}
	defaults := Endpoints{
		AuthURL:  "https://login.microsoftonline.com/" + tenantID + "/oauth2/v2.0/authorize",
		TokenURL: "https://login.microsoftonline.com/" + tenantID + "/oauth2/v2.0/token",
		APIURL:   "https://graph.microsoft.com/v1.0",
	}
	return newBaseProvider(TypeMicrosoft, s, defaults,
		[]string{"openid", "profile", "email", "offline_access", "User.Read"},
		map[string]string{"prompt": "consent"},
		microsoftProfile,
	)
}

func microsoftProfile(ctx context.Context, b *baseProvider, token *oauth2.Token) (*UserInfo, error) {
	var p struct {
		ID                string `json:"id"`
		DisplayName       string `json:"displayName"`
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := b.getJSON(ctx, b.apiURL+"/me", token, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, ErrUserInfoFailed().WithDetail("reason", "missing id")
	}
	email := p.Mail
	if email == "" {
		email = p.UserPrincipalName
	}
	return &UserInfo{
		AccountID:   p.ID,
		Email:       email,
		DisplayName: p.DisplayName,
	}, nil
}
