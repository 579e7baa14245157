package provider

import (
	"context"

	"golang.org/x/oauth2"
)

var spotifyEndpoints = Endpoints{
	AuthURL:  "https://accounts.spotify.com/authorize",
	TokenURL: "https://accounts.spotify.com/api/token",
	APIURL:   "https://api.spotify.com/v1",
}

func NewSpotify(s Settings) Provider {
	return newBaseProvider(TypeSpotify, s, spotifyEndpoints, []string{"user-read-email", "user-read-private"}, nil, spotifyProfile)
}

func spotifyProfile(ctx context.Context, b *baseProvider, token *oauth2.Token) (*UserInfo, error) {
	var p struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
		Email       string `json:"email"`
		Images      []struct {
			URL string `json:"url"`
		} `json:"images"`
	}
	if err := b.getJSON(ctx, b.apiURL+"/me", token, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, ErrUserInfoFailed().WithDetail("reason", "missing id")
	}
	info := &UserInfo{
		AccountID:   p.ID,
		Email:       p.Email,
		DisplayName: p.DisplayName,
	}
	if len(p.Images) > 0 {
		info.ProfileImageURL = p.Images[0].URL
	}
	return info, nil
}
