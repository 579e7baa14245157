package userinfra

import (
	"context"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/dbx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type PostgresPasskeyRepository struct {
	db *sqlx.DB
}

func NewPostgresPasskeyRepository(db *sqlx.DB) *PostgresPasskeyRepository {
	return &PostgresPasskeyRepository{db: db}
}

type passkeyRow struct {
	TenantID        string         `db:"tenant_id"`
	UserID          string         `db:"user_id"`
	CredentialID    []byte         `db:"credential_id"`
	PublicKey       []byte         `db:"public_key"`
	AttestationType string         `db:"attestation_type"`
	Transports      pq.StringArray `db:"transports"`
	SignCount       int64          `db:"sign_count"`
	BackupEligible  bool           `db:"backup_eligible"`
	BackupState     bool           `db:"backup_state"`
	CreatedAt       time.Time      `db:"created_at"`
}

const passkeyColumns = `tenant_id, user_id, credential_id, public_key, attestation_type,
	transports, sign_count, backup_eligible, backup_state, created_at`

func (r *PostgresPasskeyRepository) SavePasskey(ctx context.Context, p *user.Passkey) error {
	transports := p.Transports
	if transports == nil {
		transports = []string{}
	}
	row := passkeyRow{
		TenantID:        p.TenantID.String(),
		UserID:          p.UserID.String(),
		CredentialID:    p.CredentialID,
		PublicKey:       p.PublicKey,
		AttestationType: p.AttestationType,
		Transports:      pq.StringArray(transports),
		SignCount:       int64(p.SignCount),
		BackupEligible:  p.BackupEligible,
		BackupState:     p.BackupState,
		CreatedAt:       p.CreatedAt,
	}
	query := `INSERT INTO passkeys (` + passkeyColumns + `) VALUES (
		:tenant_id, :user_id, :credential_id, :public_key, :attestation_type,
		:transports, :sign_count, :backup_eligible, :backup_state, :created_at)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET
			credential_id    = EXCLUDED.credential_id,
			public_key       = EXCLUDED.public_key,
			attestation_type = EXCLUDED.attestation_type,
			transports       = EXCLUDED.transports,
			sign_count       = EXCLUDED.sign_count,
			backup_eligible  = EXCLUDED.backup_eligible,
			backup_state     = EXCLUDED.backup_state,
			created_at       = EXCLUDED.created_at`

	if _, err := sqlx.NamedExecContext(ctx, r.db, query, row); err != nil {
		if dbx.IsUniqueViolation(err) {
			return user.ErrPasskeyConflict()
		}
		return dbx.Wrap(err, "upsert passkeys")
	}
	return nil
}

func (r *PostgresPasskeyRepository) FindPasskey(ctx context.Context, tenantID kernel.TenantID, credentialID []byte) (*user.Passkey, error) {
	var row passkeyRow
	query := `SELECT ` + passkeyColumns + ` FROM passkeys WHERE tenant_id = $1 AND credential_id = $2`
	if err := r.db.GetContext(ctx, &row, query, tenantID.String(), credentialID); err != nil {
		if dbx.IsNoRows(err) {
			return nil, user.ErrPasskeyNotFound()
		}
		return nil, dbx.Wrap(err, "select passkeys")
	}
	return &user.Passkey{
		TenantID:        kernel.NewTenantID(row.TenantID),
		UserID:          kernel.NewUserID(row.UserID),
		CredentialID:    row.CredentialID,
		PublicKey:       row.PublicKey,
		AttestationType: row.AttestationType,
		Transports:      []string(row.Transports),
		SignCount:       uint32(row.SignCount),
		BackupEligible:  row.BackupEligible,
		BackupState:     row.BackupState,
		CreatedAt:       row.CreatedAt,
	}, nil
}

func (r *PostgresPasskeyRepository) UpdateSignCount(ctx context.Context, tenantID kernel.TenantID, credentialID []byte, signCount uint32) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE passkeys SET sign_count = $3 WHERE tenant_id = $1 AND credential_id = $2`,
		tenantID.String(), credentialID, int64(signCount))
	if err != nil {
		return dbx.Wrap(err, "update passkey sign count")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.ErrPasskeyNotFound()
	}
	return nil
}
