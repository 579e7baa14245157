package userinfra

import (
	"context"
	"database/sql"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/dbx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresUserRepository implementa user.Repository sobre la tabla users.
type PostgresUserRepository struct {
	db *sqlx.DB
}

func NewPostgresUserRepository(db *sqlx.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

type userRow struct {
	ID                   string         `db:"id"`
	TenantID             string         `db:"tenant_id"`
	DisplayName          sql.NullString `db:"display_name"`
	PrimaryEmail         sql.NullString `db:"primary_email"`
	PrimaryEmailVerified bool           `db:"primary_email_verified"`
	ProfileImageURL      sql.NullString `db:"profile_image_url"`
	PasswordHash         sql.NullString `db:"password_hash"`
	TOTPSecret           sql.NullString `db:"totp_secret"`
	ManagedProjectIDs    pq.StringArray `db:"managed_project_ids"`
	CreatedAt            time.Time      `db:"created_at"`
}

const userColumns = `id, tenant_id, display_name, primary_email, primary_email_verified,
	profile_image_url, password_hash, totp_secret, managed_project_ids, created_at`

func (r *PostgresUserRepository) FindByID(ctx context.Context, tenantID kernel.TenantID, id kernel.UserID) (*user.User, error) {
	if _, err := uuid.Parse(id.String()); err != nil {
		return nil, user.ErrNotFound()
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE tenant_id = $1 AND id = $2`
	return r.get(ctx, query, tenantID.String(), id.String())
}

func (r *PostgresUserRepository) FindByEmail(ctx context.Context, tenantID kernel.TenantID, email string) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE tenant_id = $1 AND lower(primary_email) = $2`
	return r.get(ctx, query, tenantID.String(), user.NormalizeEmail(email))
}

func (r *PostgresUserRepository) get(ctx context.Context, query string, args ...any) (*user.User, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if dbx.IsNoRows(err) {
			return nil, user.ErrNotFound()
		}
		return nil, dbx.Wrap(err, "select users")
	}
	return &user.User{
		ID:                   kernel.NewUserID(row.ID),
		TenantID:             kernel.NewTenantID(row.TenantID),
		DisplayName:          row.DisplayName.String,
		PrimaryEmail:         row.PrimaryEmail.String,
		PrimaryEmailVerified: row.PrimaryEmailVerified,
		ProfileImageURL:      row.ProfileImageURL.String,
		PasswordHash:         row.PasswordHash.String,
		TOTPSecret:           row.TOTPSecret.String,
		ManagedProjectIDs:    []string(row.ManagedProjectIDs),
		CreatedAt:            row.CreatedAt,
	}, nil
}

func (r *PostgresUserRepository) Create(ctx context.Context, u *user.User) error {
	return insertUser(ctx, r.db, u)
}

// insertUser runs on the pool or inside a sign-up transaction.
func insertUser(ctx context.Context, ext sqlx.ExtContext, u *user.User) error {
	managed := u.ManagedProjectIDs
	if managed == nil {
		managed = []string{}
	}
	row := userRow{
		ID:                   u.ID.String(),
		TenantID:             u.TenantID.String(),
		DisplayName:          nullString(u.DisplayName),
		PrimaryEmail:         nullString(u.PrimaryEmail),
		PrimaryEmailVerified: u.PrimaryEmailVerified,
		ProfileImageURL:      nullString(u.ProfileImageURL),
		PasswordHash:         nullString(u.PasswordHash),
		TOTPSecret:           nullString(u.TOTPSecret),
		ManagedProjectIDs:    pq.StringArray(managed),
		CreatedAt:            u.CreatedAt,
	}
	query := `INSERT INTO users (` + userColumns + `) VALUES (
		:id, :tenant_id, :display_name, :primary_email, :primary_email_verified,
		:profile_image_url, :password_hash, :totp_secret, :managed_project_ids, :created_at)`

	if _, err := sqlx.NamedExecContext(ctx, ext, query, row); err != nil {
		if dbx.IsUniqueViolation(err) {
			return user.ErrEmailAlreadyExists().WithDetail("email", u.PrimaryEmail)
		}
		return dbx.Wrap(err, "insert users")
	}
	return nil
}

func (r *PostgresUserRepository) UpdatePassword(ctx context.Context, tenantID kernel.TenantID, id kernel.UserID, passwordHash string) error {
	return r.exec(ctx, "update password",
		`UPDATE users SET password_hash = $3 WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), id.String(), passwordHash)
}

func (r *PostgresUserRepository) MarkEmailVerified(ctx context.Context, tenantID kernel.TenantID, id kernel.UserID) error {
	return r.exec(ctx, "mark email verified",
		`UPDATE users SET primary_email_verified = TRUE WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), id.String())
}

func (r *PostgresUserRepository) UpdateTOTPSecret(ctx context.Context, tenantID kernel.TenantID, id kernel.UserID, secret string) error {
	return r.exec(ctx, "update totp secret",
		`UPDATE users SET totp_secret = $3 WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), id.String(), nullString(secret))
}

func (r *PostgresUserRepository) AddManagedProject(ctx context.Context, id kernel.UserID, projectID kernel.TenantID) error {
	return r.exec(ctx, "add managed project", `
		UPDATE users
		SET managed_project_ids = CASE
			WHEN $2::text = ANY(managed_project_ids) THEN managed_project_ids
			ELSE array_append(managed_project_ids, $2::text) END
		WHERE id = $1`,
		id.String(), projectID.String())
}

// exec runs an update that must touch exactly one user.
func (r *PostgresUserRepository) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return dbx.Wrap(err, op)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.ErrNotFound()
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
