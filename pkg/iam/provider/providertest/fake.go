// Package providertest runs a fake OAuth identity provider for tests.
package providertest

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/Abraxas-365/gatekeeper/pkg/iam/provider"
)

type grant struct {
	challenge string
}

// Server is an httptest identity provider speaking authorization code + PKCE,
// refresh_token and a bearer-protected profile API.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	seq           int
	codes         map[string]grant
	accessTokens  map[string]bool
	refreshTokens map[string]bool

	// ClientID, when set, must match the client_id of token requests.
	ClientID string
	// Profile is served by every profile path (/userinfo, /user, /me).
	Profile map[string]any
	// Emails is served at /user/emails.
	Emails []map[string]any
	// ExpiresIn is sent with token responses when positive.
	ExpiresIn int
	// RotateRefreshTokens issues a new refresh token on every refresh.
	RotateRefreshTokens bool
	// TokenRequests counts calls to the token endpoint.
	TokenRequests int
}

func New() *Server {
	s := &Server{
		codes:         make(map[string]grant),
		accessTokens:  make(map[string]bool),
		refreshTokens: make(map[string]bool),
		ExpiresIn:     3600,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", s.token)
	mux.HandleFunc("/userinfo", s.profile)
	mux.HandleFunc("/user", s.profile)
	mux.HandleFunc("/me", s.profile)
	mux.HandleFunc("/user/emails", s.emails)
	s.Server = httptest.NewServer(mux)
	return s
}

// Endpoints points a provider at this server.
func (s *Server) Endpoints() provider.Endpoints {
	return provider.Endpoints{
		AuthURL:  s.URL + "/authorize",
		TokenURL: s.URL + "/token",
		APIURL:   s.URL,
	}
}

// Approve simulates the user consenting: it returns a code bound to the
// S256 challenge taken from the authorization URL.
func (s *Server) Approve(codeChallenge string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	code := fmt.Sprintf("code-%d", s.seq)
	s.codes[code] = grant{challenge: codeChallenge}
	return code
}

// AddRefreshToken registers a refresh token the server will accept.
func (s *Server) AddRefreshToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens[token] = true
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		oauthError(w, "invalid_request")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TokenRequests++

	if s.ClientID != "" && r.PostForm.Get("client_id") != s.ClientID {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_client"})
		return
	}

	s.seq++
	resp := map[string]any{
		"access_token": fmt.Sprintf("at-%d", s.seq),
		"token_type":   "Bearer",
	}
	if s.ExpiresIn > 0 {
		resp["expires_in"] = s.ExpiresIn
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		g, ok := s.codes[r.PostForm.Get("code")]
		if !ok {
			oauthError(w, "invalid_grant")
			return
		}
		delete(s.codes, r.PostForm.Get("code"))
		sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
		if base64.RawURLEncoding.EncodeToString(sum[:]) != g.challenge {
			oauthError(w, "invalid_grant")
			return
		}
		rt := fmt.Sprintf("rt-%d", s.seq)
		s.refreshTokens[rt] = true
		resp["refresh_token"] = rt
	case "refresh_token":
		if !s.refreshTokens[r.PostForm.Get("refresh_token")] {
			oauthError(w, "invalid_grant")
			return
		}
		if s.RotateRefreshTokens {
			delete(s.refreshTokens, r.PostForm.Get("refresh_token"))
			rt := fmt.Sprintf("rt-%d", s.seq)
			s.refreshTokens[rt] = true
			resp["refresh_token"] = rt
		}
	default:
		oauthError(w, "unsupported_grant_type")
		return
	}

	s.accessTokens[resp["access_token"].(string)] = true
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) authorized(r *http.Request) bool {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessTokens[token]
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.Profile)
}

func (s *Server) emails(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.Emails)
}

func oauthError(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
