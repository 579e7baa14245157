package apikey

import (
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
)

// Tier is the trust level of one key inside a key set.
type Tier string

const (
	TierPublishable Tier = "publishable_client_key"
	TierSecret      Tier = "secret_server_key"
	TierSuperSecret Tier = "super_secret_admin_key"
)

// Prefix is prepended to every generated secret of the tier.
func (t Tier) Prefix() string {
	switch t {
	case TierPublishable:
		return "pck_"
	case TierSecret:
		return "ssk_"
	case TierSuperSecret:
		return "sak_"
	default:
		return ""
	}
}

// AccessType is the request trust level granted by a key of this tier.
func (t Tier) AccessType() kernel.AccessType {
	switch t {
	case TierPublishable:
		return kernel.AccessClient
	case TierSecret:
		return kernel.AccessServer
	case TierSuperSecret:
		return kernel.AccessAdmin
	default:
		return ""
	}
}

// Label is the short metrics label of the tier ("id" for lookups by id).
func (t Tier) Label() string {
	if p := t.Prefix(); p != "" {
		return p[:3]
	}
	return "id"
}

// StoredKey is what persists of a secret: its hash and its last four characters.
type StoredKey struct {
	Hash     string
	LastFour string
}

// KeySet groups up to three keys of one project. Only Description and
// ManuallyRevokedAt ever change after creation.
type KeySet struct {
	ID                   string
	TenantID             kernel.TenantID
	Description          string
	PublishableClientKey *StoredKey
	SecretServerKey      *StoredKey
	SuperSecretAdminKey  *StoredKey
	CreatedAt            time.Time
	ExpiresAt            time.Time
	ManuallyRevokedAt    *time.Time
}

// IsValid: not revoked and now < ExpiresAt.
func (k *KeySet) IsValid(now time.Time) bool {
	return k.ManuallyRevokedAt == nil && now.Before(k.ExpiresAt)
}

// Key returns the stored key of the tier, or nil if the set has none.
func (k *KeySet) Key(tier Tier) *StoredKey {
	switch tier {
	case TierPublishable:
		return k.PublishableClientKey
	case TierSecret:
		return k.SecretServerKey
	case TierSuperSecret:
		return k.SuperSecretAdminKey
	default:
		return nil
	}
}

// Revoke marks the set as manually revoked. Revoking twice keeps the first timestamp.
func (k *KeySet) Revoke(now time.Time) {
	if k.ManuallyRevokedAt == nil {
		k.ManuallyRevokedAt = &now
	}
}

// Selector identifies one key set either by one of its secret values or by id.
// Exactly one field must be set.
type Selector struct {
	PublishableClientKey string
	SecretServerKey      string
	SuperSecretAdminKey  string
	ID                   string
}

// Resolve returns the tier and value the selector points at. An empty tier
// means lookup by id. Anything but exactly one populated field is a bug in the
// caller and yields an assertion error.
func (s Selector) Resolve() (Tier, string, error) {
	var (
		tier  Tier
		value string
		count int
	)
	if s.PublishableClientKey != "" {
		tier, value, count = TierPublishable, s.PublishableClientKey, count+1
	}
	if s.SecretServerKey != "" {
		tier, value, count = TierSecret, s.SecretServerKey, count+1
	}
	if s.SuperSecretAdminKey != "" {
		tier, value, count = TierSuperSecret, s.SuperSecretAdminKey, count+1
	}
	if s.ID != "" {
		tier, value, count = "", s.ID, count+1
	}
	if count != 1 {
		return "", "", errx.Assertion("api key selector must have exactly one field set").
			WithDetail("populated_fields", count)
	}
	return tier, value, nil
}

// ============================================================================
// DTOs
// ============================================================================

type KeyDTO struct {
	LastFour string `json:"last_four"`
}

type KeySetDTO struct {
	ID                   string     `json:"id"`
	Description          string     `json:"description"`
	CreatedAt            time.Time  `json:"created_at"`
	ExpiresAt            time.Time  `json:"expires_at"`
	ManuallyRevokedAt    *time.Time `json:"manually_revoked_at,omitempty"`
	PublishableClientKey *KeyDTO    `json:"publishable_client_key,omitempty"`
	SecretServerKey      *KeyDTO    `json:"secret_server_key,omitempty"`
	SuperSecretAdminKey  *KeyDTO    `json:"super_secret_admin_key,omitempty"`
}

func toKeyDTO(k *StoredKey) *KeyDTO {
	if k == nil {
		return nil
	}
	return &KeyDTO{LastFour: k.LastFour}
}

func (k *KeySet) ToDTO() KeySetDTO {
	return KeySetDTO{
		ID:                   k.ID,
		Description:          k.Description,
		CreatedAt:            k.CreatedAt,
		ExpiresAt:            k.ExpiresAt,
		ManuallyRevokedAt:    k.ManuallyRevokedAt,
		PublishableClientKey: toKeyDTO(k.PublishableClientKey),
		SecretServerKey:      toKeyDTO(k.SecretServerKey),
		SuperSecretAdminKey:  toKeyDTO(k.SuperSecretAdminKey),
	}
}

type CreateKeySetRequest struct {
	Description             string    `json:"description"`
	ExpiresAt               time.Time `json:"expires_at"`
	HasPublishableClientKey bool      `json:"has_publishable_client_key"`
	HasSecretServerKey      bool      `json:"has_secret_server_key"`
	HasSuperSecretAdminKey  bool      `json:"has_super_secret_admin_key"`
}

// CreatedKeySet is returned once at creation and is the only place full secrets appear.
type CreatedKeySet struct {
	KeySetDTO
	PublishableClientKey string `json:"publishable_client_key,omitempty"`
	SecretServerKey      string `json:"secret_server_key,omitempty"`
	SuperSecretAdminKey  string `json:"super_secret_admin_key,omitempty"`
}

type UpdateKeySetRequest struct {
	Description *string `json:"description,omitempty"`
	Revoked     *bool   `json:"revoked,omitempty"`
}
