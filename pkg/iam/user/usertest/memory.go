// Package usertest provides in-memory user, account and passkey repositories
// for tests.
package usertest

import (
	"bytes"
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/Abraxas-365/gatekeeper/pkg/iam/user"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
)

type Users struct {
	mu    sync.Mutex
	users map[kernel.UserID]*user.User
}

func NewUsers() *Users {
	return &Users{users: make(map[kernel.UserID]*user.User)}
}

// All returns a snapshot of every stored user.
func (r *Users) All() []*user.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*user.User, 0, len(r.users))
	for _, u := range r.users {
		cp := *u
		out = append(out, &cp)
	}
	return out
}

func (r *Users) FindByID(_ context.Context, tenantID kernel.TenantID, id kernel.UserID) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || u.TenantID != tenantID {
		return nil, user.ErrNotFound()
	}
	cp := *u
	return &cp, nil
}

func (r *Users) FindByEmail(_ context.Context, tenantID kernel.TenantID, email string) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.TenantID == tenantID && u.PrimaryEmail != "" && user.NormalizeEmail(u.PrimaryEmail) == user.NormalizeEmail(email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrNotFound()
}

func (r *Users) Create(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.TenantID == u.TenantID && u.PrimaryEmail != "" &&
			user.NormalizeEmail(existing.PrimaryEmail) == user.NormalizeEmail(u.PrimaryEmail) {
			return user.ErrEmailAlreadyExists()
		}
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *Users) UpdatePassword(_ context.Context, tenantID kernel.TenantID, id kernel.UserID, passwordHash string) error {
	return r.update(tenantID, id, func(u *user.User) { u.PasswordHash = passwordHash })
}

func (r *Users) MarkEmailVerified(_ context.Context, tenantID kernel.TenantID, id kernel.UserID) error {
	return r.update(tenantID, id, func(u *user.User) { u.PrimaryEmailVerified = true })
}

func (r *Users) UpdateTOTPSecret(_ context.Context, tenantID kernel.TenantID, id kernel.UserID, secret string) error {
	return r.update(tenantID, id, func(u *user.User) { u.TOTPSecret = secret })
}

func (r *Users) AddManagedProject(_ context.Context, id kernel.UserID, projectID kernel.TenantID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return user.ErrNotFound()
	}
	if !slices.Contains(u.ManagedProjectIDs, projectID.String()) {
		u.ManagedProjectIDs = append(u.ManagedProjectIDs, projectID.String())
	}
	return nil
}

func (r *Users) update(tenantID kernel.TenantID, id kernel.UserID, fn func(*user.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || u.TenantID != tenantID {
		return user.ErrNotFound()
	}
	fn(u)
	return nil
}

// ============================================================================
// Accounts
// ============================================================================

// Accounts writes sign-ups into users.
type Accounts struct {
	users *Users

	mu           sync.Mutex
	accounts     []*user.Account
	tokens       []*user.OAuthToken
	accessTokens []*user.OAuthAccessToken
}

func NewAccounts(users *Users) *Accounts {
	return &Accounts{users: users}
}

// AccessTokens returns every stored provider access token.
func (r *Accounts) AccessTokens() []*user.OAuthAccessToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.accessTokens)
}

func (r *Accounts) FindAccount(_ context.Context, tenantID kernel.TenantID, providerID kernel.ProviderID, providerAccountID string) (*user.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.TenantID == tenantID && a.ProviderID == providerID && a.ProviderAccountID == providerAccountID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, user.ErrAccountNotFound()
}

func (r *Accounts) FindAccountByUser(_ context.Context, tenantID kernel.TenantID, userID kernel.UserID, providerID kernel.ProviderID) (*user.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.TenantID == tenantID && a.UserID == userID && a.ProviderID == providerID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, user.ErrAccountNotFound()
}

func (r *Accounts) CreateAccount(_ context.Context, a *user.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insert(a)
}

func (r *Accounts) CreateUserWithAccount(ctx context.Context, u *user.User, a *user.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.TenantID == a.TenantID && existing.ProviderID == a.ProviderID && existing.ProviderAccountID == a.ProviderAccountID {
			return user.ErrAccountConflict()
		}
	}
	if err := r.users.Create(ctx, u); err != nil {
		return err
	}
	return r.insert(a)
}

// insert requires r.mu.
func (r *Accounts) insert(a *user.Account) error {
	for _, existing := range r.accounts {
		if existing.TenantID != a.TenantID || existing.ProviderID != a.ProviderID {
			continue
		}
		if existing.ProviderAccountID == a.ProviderAccountID || existing.UserID == a.UserID {
			return user.ErrAccountConflict()
		}
	}
	cp := *a
	r.accounts = append(r.accounts, &cp)
	return nil
}

func (r *Accounts) SaveRefreshToken(_ context.Context, t *user.OAuthToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tokens = append(r.tokens, &cp)
	return nil
}

func (r *Accounts) FindRefreshTokens(_ context.Context, tenantID kernel.TenantID, providerID kernel.ProviderID, providerAccountID string) ([]*user.OAuthToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*user.OAuthToken
	for _, t := range r.tokens {
		if t.TenantID == tenantID && t.ProviderID == providerID && t.ProviderAccountID == providerAccountID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *Accounts) UpdateRefreshToken(_ context.Context, id string, refreshToken string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.ID == id {
			t.RefreshToken = refreshToken
			return nil
		}
	}
	return user.ErrAccountNotFound()
}

func (r *Accounts) SaveAccessToken(_ context.Context, t *user.OAuthAccessToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.accessTokens = append(r.accessTokens, &cp)
	return nil
}

// ============================================================================
// Passkeys
// ============================================================================

type Passkeys struct {
	mu       sync.Mutex
	passkeys []*user.Passkey
}

func NewPasskeys() *Passkeys {
	return &Passkeys{}
}

func (r *Passkeys) SavePasskey(_ context.Context, p *user.Passkey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.passkeys {
		if existing.TenantID == p.TenantID && existing.UserID != p.UserID && bytes.Equal(existing.CredentialID, p.CredentialID) {
			return user.ErrPasskeyConflict()
		}
	}
	r.passkeys = slices.DeleteFunc(r.passkeys, func(existing *user.Passkey) bool {
		return existing.TenantID == p.TenantID && existing.UserID == p.UserID
	})
	cp := *p
	r.passkeys = append(r.passkeys, &cp)
	return nil
}

func (r *Passkeys) FindPasskey(_ context.Context, tenantID kernel.TenantID, credentialID []byte) (*user.Passkey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p := r.find(tenantID, credentialID); p != nil {
		cp := *p
		return &cp, nil
	}
	return nil, user.ErrPasskeyNotFound()
}

func (r *Passkeys) UpdateSignCount(_ context.Context, tenantID kernel.TenantID, credentialID []byte, signCount uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.find(tenantID, credentialID)
	if p == nil {
		return user.ErrPasskeyNotFound()
	}
	p.SignCount = signCount
	return nil
}

func (r *Passkeys) find(tenantID kernel.TenantID, credentialID []byte) *user.Passkey {
	for _, p := range r.passkeys {
		if p.TenantID == tenantID && bytes.Equal(p.CredentialID, credentialID) {
			return p
		}
	}
	return nil
}
