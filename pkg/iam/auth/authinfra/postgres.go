package authinfra

import (
	"context"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/dbx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/auth"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/jmoiron/sqlx"
)

type PostgresRefreshTokenRepository struct {
	db *sqlx.DB
}

func NewPostgresRefreshTokenRepository(db *sqlx.DB) *PostgresRefreshTokenRepository {
	return &PostgresRefreshTokenRepository{db: db}
}

type refreshTokenRow struct {
	TokenHash string    `db:"token_hash"`
	TenantID  string    `db:"tenant_id"`
	UserID    string    `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

func (r *PostgresRefreshTokenRepository) Save(ctx context.Context, token *auth.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (token_hash, tenant_id, user_id, created_at, expires_at)
		VALUES (:token_hash, :tenant_id, :user_id, :created_at, :expires_at)`

	_, err := r.db.NamedExecContext(ctx, query, refreshTokenRow{
		TokenHash: token.TokenHash,
		TenantID:  token.TenantID.String(),
		UserID:    token.UserID.String(),
		CreatedAt: token.CreatedAt,
		ExpiresAt: token.ExpiresAt,
	})
	if err != nil {
		return dbx.Wrap(err, "save refresh token")
	}
	return nil
}

func (r *PostgresRefreshTokenRepository) FindByHash(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	query := `
		SELECT token_hash, tenant_id, user_id, created_at, expires_at
		FROM refresh_tokens
		WHERE token_hash = $1`

	var row refreshTokenRow
	if err := r.db.GetContext(ctx, &row, query, tokenHash); err != nil {
		if dbx.IsNoRows(err) {
			return nil, auth.ErrInvalidRefreshToken()
		}
		return nil, dbx.Wrap(err, "find refresh token")
	}
	return &auth.RefreshToken{
		TokenHash: row.TokenHash,
		TenantID:  kernel.NewTenantID(row.TenantID),
		UserID:    kernel.NewUserID(row.UserID),
		CreatedAt: row.CreatedAt,
		ExpiresAt: row.ExpiresAt,
	}, nil
}
