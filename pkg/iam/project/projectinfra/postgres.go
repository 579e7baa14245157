package projectinfra

import (
	"context"
	"encoding/json"

	"github.com/Abraxas-365/gatekeeper/pkg/dbx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/project"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/jmoiron/sqlx"
)

type PostgresProjectRepository struct {
	db *sqlx.DB
}

func NewPostgresProjectRepository(db *sqlx.DB) *PostgresProjectRepository {
	return &PostgresProjectRepository{db: db}
}

type projectRow struct {
	ID          string   `db:"id"`
	DisplayName string   `db:"display_name"`
	Config      dbx.JSON `db:"config"`
}

func (r *PostgresProjectRepository) FindByID(ctx context.Context, id kernel.TenantID) (*project.Project, error) {
	query := `SELECT id, display_name, config FROM projects WHERE id = $1`

	var row projectRow
	if err := r.db.GetContext(ctx, &row, query, id.String()); err != nil {
		if dbx.IsNoRows(err) {
			return nil, project.ErrNotFound().WithDetail("project_id", id.String())
		}
		return nil, dbx.Wrap(err, "find project")
	}

	p := &project.Project{ID: kernel.NewTenantID(row.ID), DisplayName: row.DisplayName}
	if len(row.Config) > 0 {
		if err := json.Unmarshal(row.Config, &p.Config); err != nil {
			return nil, project.ErrInvalidConfig().WithCause(err).WithDetail("project_id", row.ID)
		}
	}
	return p, nil
}

func (r *PostgresProjectRepository) Create(ctx context.Context, p *project.Project) error {
	cfg, err := dbx.MarshalJSONB(p.Config)
	if err != nil {
		return project.ErrInvalidConfig().WithCause(err)
	}
	query := `INSERT INTO projects (id, display_name, config) VALUES (:id, :display_name, :config)`
	if _, err := r.db.NamedExecContext(ctx, query, projectRow{
		ID:          p.ID.String(),
		DisplayName: p.DisplayName,
		Config:      cfg,
	}); err != nil {
		return dbx.Wrap(err, "create project")
	}
	return nil
}

func (r *PostgresProjectRepository) FindProvisioned(ctx context.Context, projectID kernel.TenantID) (*project.ProvisionedProject, error) {
	query := `SELECT project_id, client_id FROM provisioned_projects WHERE project_id = $1`

	var row struct {
		ProjectID string `db:"project_id"`
		ClientID  string `db:"client_id"`
	}
	if err := r.db.GetContext(ctx, &row, query, projectID.String()); err != nil {
		if dbx.IsNoRows(err) {
			return nil, project.ErrNotProvisioned().WithDetail("project_id", projectID.String())
		}
		return nil, dbx.Wrap(err, "find provisioned project")
	}
	return &project.ProvisionedProject{ProjectID: kernel.NewTenantID(row.ProjectID), ClientID: row.ClientID}, nil
}

// CompleteTransfer removes the provisioned marker and hands the project to userID.
func (r *PostgresProjectRepository) CompleteTransfer(ctx context.Context, projectID kernel.TenantID, userID kernel.UserID) error {
	return dbx.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM provisioned_projects WHERE project_id = $1`, projectID.String())
		if err != nil {
			return dbx.Wrap(err, "delete provisioned project")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return project.ErrNotProvisioned().WithDetail("project_id", projectID.String())
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE users
			SET managed_project_ids = array_append(managed_project_ids, $1::text)
			WHERE id = $2 AND NOT ($1::text = ANY(managed_project_ids))`,
			projectID.String(), userID.String())
		if err != nil {
			return dbx.Wrap(err, "add managed project")
		}
		return nil
	})
}
