package usersrv

import (
	"context"
	"strings"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/Abraxas-365/gatekeeper/pkg/logx"
	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordLength = 72
)

type Service struct {
	users      user.Repository
	bcryptCost int
	now        func() time.Time
}

func NewService(users user.Repository, bcryptCost int) *Service {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{users: users, bcryptCost: bcryptCost, now: time.Now}
}

// CreateRequest describes a new user. The email is stored normalized.
type CreateRequest struct {
	TenantID             kernel.TenantID
	DisplayName          string
	PrimaryEmail         string
	PrimaryEmailVerified bool
	ProfileImageURL      string
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*user.User, error) {
	u, err := s.NewUser(req)
	if err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	LogCreated(ctx, u)
	return u, nil
}

// NewUser builds an unsaved user, for callers that store it together with
// other rows.
func (s *Service) NewUser(req CreateRequest) (*user.User, error) {
	if req.TenantID.IsEmpty() {
		return nil, errx.Assertion("user creation without a project").WithDetail("email", req.PrimaryEmail)
	}
	return &user.User{
		ID:                   kernel.NewUserID(uuid.NewString()),
		TenantID:             req.TenantID,
		DisplayName:          req.DisplayName,
		PrimaryEmail:         user.NormalizeEmail(req.PrimaryEmail),
		PrimaryEmailVerified: req.PrimaryEmailVerified && req.PrimaryEmail != "",
		ProfileImageURL:      req.ProfileImageURL,
		ManagedProjectIDs:    []string{},
		CreatedAt:            s.now().UTC(),
	}, nil
}

func LogCreated(ctx context.Context, u *user.User) {
	logx.WithContext(ctx).WithFields(logx.Fields{
		"tenant_id": u.TenantID.String(),
		"user_id":   u.ID.String(),
	}).Info("user created")
}

func (s *Service) Get(ctx context.Context, tenantID kernel.TenantID, id kernel.UserID) (*user.User, error) {
	return s.users.FindByID(ctx, tenantID, id)
}

func (s *Service) FindByEmail(ctx context.Context, tenantID kernel.TenantID, email string) (*user.User, error) {
	return s.users.FindByEmail(ctx, tenantID, email)
}

// SetPassword hashes password with bcrypt and replaces the stored hash.
func (s *Service) SetPassword(ctx context.Context, tenantID kernel.TenantID, id kernel.UserID, password string) error {
	if err := ValidatePassword(password); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return errx.Wrap(err, "hash password", errx.TypeInternal)
	}
	return s.users.UpdatePassword(ctx, tenantID, id, string(hash))
}

func (s *Service) MarkEmailVerified(ctx context.Context, tenantID kernel.TenantID, id kernel.UserID) error {
	return s.users.MarkEmailVerified(ctx, tenantID, id)
}

func (s *Service) AddManagedProject(ctx context.Context, id kernel.UserID, projectID kernel.TenantID) error {
	return s.users.AddManagedProject(ctx, id, projectID)
}

// TOTPKey is a freshly enrolled authenticator secret, shown once.
type TOTPKey struct {
	Secret string `json:"secret"`
	URL    string `json:"otpauth_url"`
}

// totpOpts accepts the previous and next 30s step as well.
var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// EnrollTOTP generates a new TOTP secret for the user, replacing any earlier
// one. From then on sign-ins need a second factor.
func (s *Service) EnrollTOTP(ctx context.Context, tenantID kernel.TenantID, id kernel.UserID, issuer string) (*TOTPKey, error) {
	u, err := s.users.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	account := u.PrimaryEmail
	if account == "" {
		account = u.ID.String()
	}
	key, err := totp.Generate(totp.GenerateOpts{Issuer: issuer, AccountName: account})
	if err != nil {
		return nil, errx.Wrap(err, "generate totp secret", errx.TypeInternal)
	}
	if err := s.users.UpdateTOTPSecret(ctx, tenantID, id, key.Secret()); err != nil {
		return nil, err
	}

	logx.WithContext(ctx).WithFields(logx.Fields{
		"tenant_id": tenantID.String(),
		"user_id":   id.String(),
	}).Info("totp enrolled")
	return &TOTPKey{Secret: key.Secret(), URL: key.URL()}, nil
}

func (s *Service) DisableTOTP(ctx context.Context, tenantID kernel.TenantID, id kernel.UserID) error {
	return s.users.UpdateTOTPSecret(ctx, tenantID, id, "")
}

// VerifyTOTP checks passcode against the secret of u at time at.
func VerifyTOTP(u *user.User, passcode string, at time.Time) bool {
	if !u.RequiresTOTP() {
		return false
	}
	ok, err := totp.ValidateCustom(strings.TrimSpace(passcode), u.TOTPSecret, at, totpOpts)
	return err == nil && ok
}

// ValidatePassword checks the length rules SetPassword enforces.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return user.ErrInvalidPassword().
			WithDetail("min_length", minPasswordLength).
			WithDetail("max_length", maxPasswordLength)
	}
	return nil
}
