package provider

import (
	"context"
	"strconv"

	"golang.org/x/oauth2"
)

var githubEndpoints = Endpoints{
	AuthURL:  "https://github.com/login/oauth/authorize",
	TokenURL: "https://github.com/login/oauth/access_token",
	APIURL:   "https://api.github.com",
}

func NewGitHub(s Settings) Provider {
	return newBaseProvider(TypeGitHub, s, githubEndpoints, []string{"user:email"}, nil, githubProfile)
}

// githubProfile uses the primary verified address from /user/emails; the
// public profile email may be empty or unverified.
func githubProfile(ctx context.Context, b *baseProvider, token *oauth2.Token) (*UserInfo, error) {
	var u struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := b.getJSON(ctx, b.apiURL+"/user", token, &u); err != nil {
		return nil, err
	}
	if u.ID == 0 {
		return nil, ErrUserInfoFailed().WithDetail("reason", "missing id")
	}

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := b.getJSON(ctx, b.apiURL+"/user/emails", token, &emails); err != nil {
		return nil, err
	}

	info := &UserInfo{
		AccountID:       strconv.FormatInt(u.ID, 10),
		DisplayName:     u.Name,
		ProfileImageURL: u.AvatarURL,
	}
	if info.DisplayName == "" {
		info.DisplayName = u.Login
	}
	for _, e := range emails {
		if e.Primary {
			info.Email = e.Email
			info.EmailVerified = e.Verified
			break
		}
	}
	return info, nil
}
