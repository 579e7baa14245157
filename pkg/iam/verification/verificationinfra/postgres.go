package verificationinfra

import (
	"context"
	"database/sql"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/dbx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/verification"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/Abraxas-365/gatekeeper/pkg/ptrx"
	"github.com/jmoiron/sqlx"
)

type PostgresCodeRepository struct {
	db *sqlx.DB
}

func NewPostgresCodeRepository(db *sqlx.DB) *PostgresCodeRepository {
	return &PostgresCodeRepository{db: db}
}

type codeRow struct {
	TenantID  string       `db:"tenant_id"`
	ID        string       `db:"id"`
	Type      string       `db:"type"`
	Data      dbx.JSON     `db:"data"`
	Method    dbx.JSON     `db:"method"`
	CreatedAt time.Time    `db:"created_at"`
	ExpiresAt time.Time    `db:"expires_at"`
	UsedAt    sql.NullTime `db:"used_at"`
}

func (r *PostgresCodeRepository) Create(ctx context.Context, code *verification.Code) error {
	query := `INSERT INTO verification_codes (tenant_id, id, type, data, method, created_at, expires_at, used_at)
		VALUES (:tenant_id, :id, :type, :data, :method, :created_at, :expires_at, :used_at)`
	row := codeRow{
		TenantID:  code.TenantID.String(),
		ID:        code.ID,
		Type:      string(code.Type),
		Data:      dbx.JSON(code.Data),
		Method:    dbx.JSON(code.Method),
		CreatedAt: code.CreatedAt,
		ExpiresAt: code.ExpiresAt,
	}
	if code.UsedAt != nil {
		row.UsedAt = sql.NullTime{Time: *code.UsedAt, Valid: true}
	}
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return dbx.Wrap(err, "insert verification_codes").WithDetail("type", string(code.Type))
	}
	return nil
}

func (r *PostgresCodeRepository) FindByID(ctx context.Context, tenantID kernel.TenantID, id string) (*verification.Code, error) {
	query := `SELECT tenant_id, id, type, data, method, created_at, expires_at, used_at
		FROM verification_codes WHERE tenant_id = $1 AND id = $2`

	var row codeRow
	if err := r.db.GetContext(ctx, &row, query, tenantID.String(), id); err != nil {
		if dbx.IsNoRows(err) {
			return nil, verification.ErrCodeNotFound()
		}
		return nil, dbx.Wrap(err, "select verification_codes")
	}

	code := &verification.Code{
		ID:        row.ID,
		TenantID:  kernel.NewTenantID(row.TenantID),
		Type:      verification.Type(row.Type),
		Data:      []byte(row.Data),
		Method:    []byte(row.Method),
		CreatedAt: row.CreatedAt,
		ExpiresAt: row.ExpiresAt,
	}
	if row.UsedAt.Valid {
		code.UsedAt = ptrx.Time(row.UsedAt.Time)
	}
	return code, nil
}

// Claim is a single conditional UPDATE; zero affected rows means the code was
// already used or had expired by at.
func (r *PostgresCodeRepository) Claim(ctx context.Context, tenantID kernel.TenantID, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE verification_codes SET used_at = $3 WHERE tenant_id = $1 AND id = $2 AND used_at IS NULL AND expires_at > $3`,
		tenantID.String(), id, at)
	if err != nil {
		return false, dbx.Wrap(err, "claim verification_codes")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, dbx.Wrap(err, "claim verification_codes")
	}
	return n == 1, nil
}
