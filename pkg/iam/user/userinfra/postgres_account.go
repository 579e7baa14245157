package userinfra

import (
	"context"
	"database/sql"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/dbx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type PostgresAccountRepository struct {
	db *sqlx.DB
}

func NewPostgresAccountRepository(db *sqlx.DB) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db}
}

type accountRow struct {
	TenantID          string         `db:"tenant_id"`
	ProviderID        string         `db:"provider_id"`
	ProviderAccountID string         `db:"provider_account_id"`
	UserID            string         `db:"user_id"`
	Email             sql.NullString `db:"email"`
	CreatedAt         time.Time      `db:"created_at"`
}

func (a accountRow) toDomain() *user.Account {
	return &user.Account{
		TenantID:          kernel.NewTenantID(a.TenantID),
		ProviderID:        kernel.ProviderID(a.ProviderID),
		ProviderAccountID: a.ProviderAccountID,
		UserID:            kernel.NewUserID(a.UserID),
		Email:             a.Email.String,
		CreatedAt:         a.CreatedAt,
	}
}

const accountColumns = `tenant_id, provider_id, provider_account_id, user_id, email, created_at`

func (r *PostgresAccountRepository) FindAccount(ctx context.Context, tenantID kernel.TenantID, providerID kernel.ProviderID, providerAccountID string) (*user.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM oauth_accounts
		WHERE tenant_id = $1 AND provider_id = $2 AND provider_account_id = $3`
	return r.getAccount(ctx, query, tenantID.String(), providerID.String(), providerAccountID)
}

func (r *PostgresAccountRepository) FindAccountByUser(ctx context.Context, tenantID kernel.TenantID, userID kernel.UserID, providerID kernel.ProviderID) (*user.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM oauth_accounts
		WHERE tenant_id = $1 AND user_id = $2 AND provider_id = $3`
	return r.getAccount(ctx, query, tenantID.String(), userID.String(), providerID.String())
}

func (r *PostgresAccountRepository) getAccount(ctx context.Context, query string, args ...any) (*user.Account, error) {
	var row accountRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if dbx.IsNoRows(err) {
			return nil, user.ErrAccountNotFound()
		}
		return nil, dbx.Wrap(err, "select oauth_accounts")
	}
	return row.toDomain(), nil
}

func (r *PostgresAccountRepository) CreateAccount(ctx context.Context, a *user.Account) error {
	return insertAccount(ctx, r.db, a)
}

// CreateUserWithAccount writes the user and its first account in one
// transaction; a conflict on either leaves no row behind.
func (r *PostgresAccountRepository) CreateUserWithAccount(ctx context.Context, u *user.User, a *user.Account) error {
	return dbx.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := insertUser(ctx, tx, u); err != nil {
			return err
		}
		return insertAccount(ctx, tx, a)
	})
}

func insertAccount(ctx context.Context, ext sqlx.ExtContext, a *user.Account) error {
	query := `INSERT INTO oauth_accounts (` + accountColumns + `)
		VALUES (:tenant_id, :provider_id, :provider_account_id, :user_id, :email, :created_at)`
	row := accountRow{
		TenantID:          a.TenantID.String(),
		ProviderID:        a.ProviderID.String(),
		ProviderAccountID: a.ProviderAccountID,
		UserID:            a.UserID.String(),
		Email:             nullString(a.Email),
		CreatedAt:         a.CreatedAt,
	}
	if _, err := sqlx.NamedExecContext(ctx, ext, query, row); err != nil {
		if dbx.IsUniqueViolation(err) {
			return user.ErrAccountConflict().
				WithDetail("provider_id", a.ProviderID.String()).
				WithDetail("user_id", a.UserID.String())
		}
		return dbx.Wrap(err, "insert oauth_accounts")
	}
	return nil
}

type tokenRow struct {
	ID                string         `db:"id"`
	TenantID          string         `db:"tenant_id"`
	ProviderID        string         `db:"provider_id"`
	ProviderAccountID string         `db:"provider_account_id"`
	RefreshToken      string         `db:"refresh_token"`
	Scopes            pq.StringArray `db:"scopes"`
	CreatedAt         time.Time      `db:"created_at"`
}

func (r *PostgresAccountRepository) SaveRefreshToken(ctx context.Context, t *user.OAuthToken) error {
	query := `INSERT INTO oauth_tokens (id, tenant_id, provider_id, provider_account_id, refresh_token, scopes, created_at)
		VALUES (:id, :tenant_id, :provider_id, :provider_account_id, :refresh_token, :scopes, :created_at)`
	row := tokenRow{
		ID:                t.ID,
		TenantID:          t.TenantID.String(),
		ProviderID:        t.ProviderID.String(),
		ProviderAccountID: t.ProviderAccountID,
		RefreshToken:      t.RefreshToken,
		Scopes:            scopeArray(t.Scopes),
		CreatedAt:         t.CreatedAt,
	}
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return dbx.Wrap(err, "insert oauth_tokens")
	}
	return nil
}

func (r *PostgresAccountRepository) FindRefreshTokens(ctx context.Context, tenantID kernel.TenantID, providerID kernel.ProviderID, providerAccountID string) ([]*user.OAuthToken, error) {
	query := `SELECT id, tenant_id, provider_id, provider_account_id, refresh_token, scopes, created_at
		FROM oauth_tokens
		WHERE tenant_id = $1 AND provider_id = $2 AND provider_account_id = $3
		ORDER BY created_at DESC`

	var rows []tokenRow
	if err := r.db.SelectContext(ctx, &rows, query, tenantID.String(), providerID.String(), providerAccountID); err != nil {
		return nil, dbx.Wrap(err, "select oauth_tokens")
	}
	tokens := make([]*user.OAuthToken, 0, len(rows))
	for _, row := range rows {
		tokens = append(tokens, &user.OAuthToken{
			ID:                row.ID,
			TenantID:          kernel.NewTenantID(row.TenantID),
			ProviderID:        kernel.ProviderID(row.ProviderID),
			ProviderAccountID: row.ProviderAccountID,
			RefreshToken:      row.RefreshToken,
			Scopes:            []string(row.Scopes),
			CreatedAt:         row.CreatedAt,
		})
	}
	return tokens, nil
}

func (r *PostgresAccountRepository) UpdateRefreshToken(ctx context.Context, id string, refreshToken string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE oauth_tokens SET refresh_token = $2 WHERE id = $1`, id, refreshToken)
	if err != nil {
		return dbx.Wrap(err, "update oauth_tokens")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.ErrAccountNotFound().WithDetail("token_id", id)
	}
	return nil
}

func (r *PostgresAccountRepository) SaveAccessToken(ctx context.Context, t *user.OAuthAccessToken) error {
	query := `INSERT INTO oauth_access_tokens
			(id, tenant_id, provider_id, provider_account_id, access_token, scopes, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.TenantID.String(), t.ProviderID.String(), t.ProviderAccountID,
		t.AccessToken, scopeArray(t.Scopes), t.ExpiresAt, t.CreatedAt)
	if err != nil {
		return dbx.Wrap(err, "insert oauth_access_tokens")
	}
	return nil
}

// scopeArray keeps NOT NULL scope columns as '{}' instead of NULL.
func scopeArray(scopes []string) pq.StringArray {
	if scopes == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(scopes)
}
