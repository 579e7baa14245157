package kernel

type UserID string

func NewUserID(id string) UserID { return UserID(id) }
func (u UserID) String() string  { return string(u) }
func (u UserID) IsEmpty() bool   { return string(u) == "" }

// TenantID identifies a project. Externally it is the project id / client_id.
type TenantID string

func NewTenantID(id string) TenantID { return TenantID(id) }
func (t TenantID) String() string    { return string(t) }
func (t TenantID) IsEmpty() bool     { return string(t) == "" }

// ProviderID is the per-project id of an OAuth provider configuration.
type ProviderID string

func (p ProviderID) String() string { return string(p) }
func (p ProviderID) IsEmpty() bool  { return string(p) == "" }
