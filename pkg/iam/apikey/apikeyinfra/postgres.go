package apikeyinfra

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/dbx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/apikey"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PostgresAPIKeyRepository es la implementación en PostgreSQL de apikey.Repository.
type PostgresAPIKeyRepository struct {
	db *sqlx.DB
}

func NewPostgresAPIKeyRepository(db *sqlx.DB) *PostgresAPIKeyRepository {
	return &PostgresAPIKeyRepository{db: db}
}

// hashColumns maps a tier to the column holding its hash. Column names never
// come from user input.
var hashColumns = map[apikey.Tier]string{
	apikey.TierPublishable: "publishable_client_key_hash",
	apikey.TierSecret:      "secret_server_key_hash",
	apikey.TierSuperSecret: "super_secret_admin_key_hash",
}

type keySetPersistence struct {
	ID                  string         `db:"id"`
	TenantID            string         `db:"tenant_id"`
	Description         string         `db:"description"`
	PublishableHash     sql.NullString `db:"publishable_client_key_hash"`
	PublishableLastFour sql.NullString `db:"publishable_client_key_last_four"`
	SecretHash          sql.NullString `db:"secret_server_key_hash"`
	SecretLastFour      sql.NullString `db:"secret_server_key_last_four"`
	SuperSecretHash     sql.NullString `db:"super_secret_admin_key_hash"`
	SuperSecretLastFour sql.NullString `db:"super_secret_admin_key_last_four"`
	CreatedAt           time.Time      `db:"created_at"`
	ExpiresAt           time.Time      `db:"expires_at"`
	ManuallyRevokedAt   sql.NullTime   `db:"manually_revoked_at"`
}

const selectColumns = `id, tenant_id, description,
	publishable_client_key_hash, publishable_client_key_last_four,
	secret_server_key_hash, secret_server_key_last_four,
	super_secret_admin_key_hash, super_secret_admin_key_last_four,
	created_at, expires_at, manually_revoked_at`

func (r *PostgresAPIKeyRepository) Create(ctx context.Context, set *apikey.KeySet) error {
	query := `
		INSERT INTO api_key_sets (` + selectColumns + `) VALUES (
			:id, :tenant_id, :description,
			:publishable_client_key_hash, :publishable_client_key_last_four,
			:secret_server_key_hash, :secret_server_key_last_four,
			:super_secret_admin_key_hash, :super_secret_admin_key_last_four,
			:created_at, :expires_at, :manually_revoked_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, toPersistence(set)); err != nil {
		if dbx.IsUniqueViolation(err) {
			return apikey.ErrInvalidRequest().WithDetail("reason", "key collision, retry")
		}
		return dbx.Wrap(err, "insert api_key_sets").WithDetail("key_set_id", set.ID)
	}
	return nil
}

// FindByKeyHash busca el set que contiene la key con ese hash en el tier dado.
func (r *PostgresAPIKeyRepository) FindByKeyHash(ctx context.Context, tenantID kernel.TenantID, tier apikey.Tier, hash string) (*apikey.KeySet, error) {
	column, ok := hashColumns[tier]
	if !ok {
		return nil, apikey.ErrKeySetNotFound()
	}
	query := fmt.Sprintf(`SELECT %s FROM api_key_sets WHERE tenant_id = $1 AND %s = $2`, selectColumns, column)
	return r.get(ctx, query, tenantID.String(), hash)
}

func (r *PostgresAPIKeyRepository) FindByID(ctx context.Context, tenantID kernel.TenantID, id string) (*apikey.KeySet, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apikey.ErrKeySetNotFound()
	}
	query := `SELECT ` + selectColumns + ` FROM api_key_sets WHERE tenant_id = $1 AND id = $2`
	return r.get(ctx, query, tenantID.String(), id)
}

func (r *PostgresAPIKeyRepository) get(ctx context.Context, query string, args ...any) (*apikey.KeySet, error) {
	var row keySetPersistence
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if dbx.IsNoRows(err) {
			return nil, apikey.ErrKeySetNotFound()
		}
		return nil, dbx.Wrap(err, "select api_key_sets")
	}
	return toDomain(row), nil
}

func (r *PostgresAPIKeyRepository) ListByTenant(ctx context.Context, tenantID kernel.TenantID, opts kernel.PaginationOptions) (kernel.Paginated[*apikey.KeySet], error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM api_key_sets WHERE tenant_id = $1`, tenantID.String()); err != nil {
		return kernel.Paginated[*apikey.KeySet]{}, dbx.Wrap(err, "count api_key_sets")
	}

	var rows []keySetPersistence
	query := `SELECT ` + selectColumns + ` FROM api_key_sets WHERE tenant_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	opts = opts.Normalize()
	if err := r.db.SelectContext(ctx, &rows, query, tenantID.String(), opts.PageSize, opts.Offset()); err != nil {
		return kernel.Paginated[*apikey.KeySet]{}, dbx.Wrap(err, "list api_key_sets")
	}

	sets := make([]*apikey.KeySet, 0, len(rows))
	for _, row := range rows {
		sets = append(sets, toDomain(row))
	}
	return kernel.NewPaginated(sets, opts.Page, opts.PageSize, total), nil
}

func (r *PostgresAPIKeyRepository) Update(ctx context.Context, set *apikey.KeySet) error {
	query := `
		UPDATE api_key_sets SET description = $3, manually_revoked_at = $4
		WHERE tenant_id = $1 AND id = $2`

	result, err := r.db.ExecContext(ctx, query, set.TenantID.String(), set.ID, set.Description, toNullTime(set.ManuallyRevokedAt))
	if err != nil {
		return dbx.Wrap(err, "update api_key_sets").WithDetail("key_set_id", set.ID)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return dbx.Wrap(err, "update api_key_sets rows affected")
	}
	if rows == 0 {
		return apikey.ErrKeySetNotFound()
	}
	return nil
}

// ============================================================================
// Mapping
// ============================================================================

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func splitKey(k *apikey.StoredKey) (sql.NullString, sql.NullString) {
	if k == nil {
		return sql.NullString{}, sql.NullString{}
	}
	return sql.NullString{String: k.Hash, Valid: true}, sql.NullString{String: k.LastFour, Valid: true}
}

func joinKey(hash, lastFour sql.NullString) *apikey.StoredKey {
	if !hash.Valid {
		return nil
	}
	return &apikey.StoredKey{Hash: hash.String, LastFour: lastFour.String}
}

func toPersistence(set *apikey.KeySet) keySetPersistence {
	p := keySetPersistence{
		ID:                set.ID,
		TenantID:          set.TenantID.String(),
		Description:       set.Description,
		CreatedAt:         set.CreatedAt,
		ExpiresAt:         set.ExpiresAt,
		ManuallyRevokedAt: toNullTime(set.ManuallyRevokedAt),
	}
	p.PublishableHash, p.PublishableLastFour = splitKey(set.PublishableClientKey)
	p.SecretHash, p.SecretLastFour = splitKey(set.SecretServerKey)
	p.SuperSecretHash, p.SuperSecretLastFour = splitKey(set.SuperSecretAdminKey)
	return p
}

func toDomain(p keySetPersistence) *apikey.KeySet {
	set := &apikey.KeySet{
		ID:                   p.ID,
		TenantID:             kernel.TenantID(p.TenantID),
		Description:          p.Description,
		PublishableClientKey: joinKey(p.PublishableHash, p.PublishableLastFour),
		SecretServerKey:      joinKey(p.SecretHash, p.SecretLastFour),
		SuperSecretAdminKey:  joinKey(p.SuperSecretHash, p.SuperSecretLastFour),
		CreatedAt:            p.CreatedAt,
		ExpiresAt:            p.ExpiresAt,
	}
	if p.ManuallyRevokedAt.Valid {
		t := p.ManuallyRevokedAt.Time
		set.ManuallyRevokedAt = &t
	}
	return set
}
