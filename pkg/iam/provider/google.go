package provider

import (
	"context"

	"golang.org/x/oauth2"
)

var googleEndpoints = Endpoints{
	AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
	APIURL:   "https://openidconnect.googleapis.com/v1",
}

// NewGoogle builds the Google provider. prompt=consent makes Google return a
// refresh token on every sign-in.
func NewGoogle(s Settings) Provider {
	return newBaseProvider(TypeGoogle, s, googleEndpoints,
		[]string{"openid", "email", "profile"},
		map[string]string{"prompt": "consent"},
		googleProfile,
	)
}

func googleProfile(ctx context.Context, b *baseProvider, token *oauth2.Token) (*UserInfo, error) {
	var p struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := b.getJSON(ctx, b.apiURL+"/userinfo", token, &p); err != nil {
		return nil, err
	}
	if p.Sub == "" {
		return nil, ErrUserInfoFailed().WithDetail("reason", "missing sub")
	}
	return &UserInfo{
		AccountID:       p.Sub,
		Email:           p.Email,
		DisplayName:     p.Name,
		ProfileImageURL: p.Picture,
		EmailVerified:   p.EmailVerified,
	}, nil
}
