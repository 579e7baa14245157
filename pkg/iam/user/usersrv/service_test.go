package usersrv

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user/usertest"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestCreate(t *testing.T) {
	repo := usertest.NewUsers()
	svc := NewService(repo, bcrypt.MinCost)
	ctx := context.Background()

	u, err := svc.Create(ctx, CreateRequest{
		TenantID:             "proj-1",
		DisplayName:          "Ada",
		PrimaryEmail:         "  Ada@Example.com ",
		PrimaryEmailVerified: true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "ada@example.com", u.PrimaryEmail)
	assert.True(t, u.PrimaryEmailVerified)

	found, err := svc.FindByEmail(ctx, "proj-1", "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	_, err = svc.FindByEmail(ctx, "proj-2", "ada@example.com")
	assert.True(t, errx.HasCode(err, user.CodeNotFound), "users are scoped to their project")

	_, err = svc.Create(ctx, CreateRequest{TenantID: "proj-1", PrimaryEmail: "ada@example.com"})
	assert.True(t, errx.HasCode(err, user.CodeEmailAlreadyExists))
}

func TestCreate_VerifiedRequiresEmail(t *testing.T) {
	svc := NewService(usertest.NewUsers(), bcrypt.MinCost)

	u, err := svc.Create(context.Background(), CreateRequest{TenantID: "proj-1", PrimaryEmailVerified: true})
	require.NoError(t, err)
	assert.False(t, u.PrimaryEmailVerified)
}

func TestCreate_WithoutProjectIsAssertion(t *testing.T) {
	svc := NewService(usertest.NewUsers(), bcrypt.MinCost)

	_, err := svc.Create(context.Background(), CreateRequest{PrimaryEmail: "a@b.c"})
	assert.True(t, errx.IsAssertion(err))
}

func TestSetPassword(t *testing.T) {
	repo := usertest.NewUsers()
	svc := NewService(repo, bcrypt.MinCost)
	ctx := context.Background()

	u, err := svc.Create(ctx, CreateRequest{TenantID: "proj-1", PrimaryEmail: "a@example.com"})
	require.NoError(t, err)

	require.NoError(t, svc.SetPassword(ctx, "proj-1", u.ID, "correct horse battery"))

	stored, err := svc.Get(ctx, "proj-1", u.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasPassword())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("correct horse battery")))

	for _, pw := range []string{"short", strings.Repeat("x", 73)} {
		err := svc.SetPassword(ctx, "proj-1", u.ID, pw)
		assert.True(t, errx.HasCode(err, user.CodeInvalidPassword), "password %q", pw)
	}

	err = svc.SetPassword(ctx, "proj-1", kernel.NewUserID("missing"), "long enough password")
	assert.True(t, errx.HasCode(err, user.CodeNotFound))
}

func TestAddManagedProject_Idempotent(t *testing.T) {
	repo := usertest.NewUsers()
	svc := NewService(repo, bcrypt.MinCost)
	ctx := context.Background()

	u, err := svc.Create(ctx, CreateRequest{TenantID: "internal"})
	require.NoError(t, err)

	require.NoError(t, svc.AddManagedProject(ctx, u.ID, "proj-9"))
	require.NoError(t, svc.AddManagedProject(ctx, u.ID, "proj-9"))

	stored, err := svc.Get(ctx, "internal", u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"proj-9"}, stored.ManagedProjectIDs)
	assert.True(t, stored.ManagesProject("proj-9"))
}

func TestTOTPEnrollment(t *testing.T) {
	repo := usertest.NewUsers()
	svc := NewService(repo, bcrypt.MinCost)
	ctx := context.Background()

	u, err := svc.Create(ctx, CreateRequest{TenantID: "proj-1", PrimaryEmail: "ada@example.com"})
	require.NoError(t, err)
	assert.False(t, u.RequiresTOTP())

	key, err := svc.EnrollTOTP(ctx, "proj-1", u.ID, "Acme")
	require.NoError(t, err)
	assert.Contains(t, key.URL, "otpauth://totp/Acme:ada@example.com")

	stored, err := svc.Get(ctx, "proj-1", u.ID)
	require.NoError(t, err)
	require.True(t, stored.RequiresTOTP())

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	code, err := totp.GenerateCode(key.Secret, at)
	require.NoError(t, err)
	assert.True(t, VerifyTOTP(stored, code, at))
	assert.True(t, VerifyTOTP(stored, code, at.Add(30*time.Second)), "one step of drift is accepted")
	assert.False(t, VerifyTOTP(stored, code, at.Add(2*time.Minute)))
	assert.False(t, VerifyTOTP(stored, "000000x", at))

	require.NoError(t, svc.DisableTOTP(ctx, "proj-1", u.ID))
	stored, err = svc.Get(ctx, "proj-1", u.ID)
	require.NoError(t, err)
	assert.False(t, stored.RequiresTOTP())
	assert.False(t, VerifyTOTP(stored, code, at))

	_, err = svc.EnrollTOTP(ctx, "proj-2", u.ID, "Acme")
	assert.True(t, errx.HasCode(err, user.CodeNotFound))
}
