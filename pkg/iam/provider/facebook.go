package provider

import (
	"context"

	"golang.org/x/oauth2"
)

var facebookEndpoints = Endpoints{
	AuthURL:  "https://www.facebook.com/v18.0/dialog/oauth",
	TokenURL: "https://graph.facebook.com/v18.0/oauth/access_token",
	APIURL:   "https://graph.facebook.com/v18.0",
}

// NewFacebook builds the Facebook provider. A configID selects a Facebook
// Login for Business configuration.
func NewFacebook(s Settings, configID string) Provider {
	var params map[string]string
	if configID != "" {
		params = map[string]string{"config_id": configID}
	}
	return newBaseProvider(TypeFacebook, s, facebookEndpoints, []string{"public_profile", "email"}, params, facebookProfile)
}

// Facebook never says whether the address was verified.
func facebookProfile(ctx context.Context, b *baseProvider, token *oauth2.Token) (*UserInfo, error) {
	var p struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture struct {
			Data struct {
				URL string `json:"url"`
			} `json:"data"`
		} `json:"picture"`
	}
	if err := b.getJSON(ctx, b.apiURL+"/me?fields=id,name,email,picture", token, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, ErrUserInfoFailed().WithDetail("reason", "missing id")
	}
	return &UserInfo{
		AccountID:       p.ID,
		Email:           p.Email,
		DisplayName:     p.Name,
		ProfileImageURL: p.Picture.Data.URL,
		EmailVerified:   false,
	}, nil
}
