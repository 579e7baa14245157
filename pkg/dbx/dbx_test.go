package dbx_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/Abraxas-365/gatekeeper/pkg/dbx"
	"github.com/Abraxas-365/gatekeeper/pkg/dbx/dbxtest"
	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONScan(t *testing.T) {
	var j dbx.JSON
	require.NoError(t, j.Scan([]byte(`{"a":1}`)))
	assert.JSONEq(t, `{"a":1}`, string(j))

	require.NoError(t, j.Scan(`{"b":2}`))
	assert.JSONEq(t, `{"b":2}`, string(j))

	require.NoError(t, j.Scan(nil))
	assert.Nil(t, j)

	assert.Error(t, j.Scan(42))

	v, err := dbx.JSON(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestWrapIsInternal(t *testing.T) {
	err := dbx.Wrap(errors.New("connection reset"), "select users")
	assert.Equal(t, errx.TypeInternal, err.Type)
	assert.Equal(t, "select users", err.Details["op"])
	assert.True(t, dbx.IsNoRows(dbx.Wrap(sql.ErrNoRows, "x")))
}

func TestPostgres(t *testing.T) {
	db := dbxtest.Open(t)
	ctx := context.Background()

	t.Run("migrations are idempotent", func(t *testing.T) {
		require.NoError(t, dbx.Migrate(db.DB))
	})

	t.Run("unique violation is recognised", func(t *testing.T) {
		dbxtest.SeedProject(t, db, "dup")
		_, err := db.Exec(`INSERT INTO projects (id, display_name) VALUES ('dup', 'again')`)
		require.Error(t, err)
		assert.True(t, dbx.IsUniqueViolation(err))
	})

	t.Run("WithTx rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := dbx.WithTx(ctx, db, func(tx *sqlx.Tx) error {
			if _, err := tx.Exec(`INSERT INTO projects (id, display_name) VALUES ('rolled-back', 'x')`); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		var n int
		require.NoError(t, db.Get(&n, `SELECT count(*) FROM projects WHERE id = 'rolled-back'`))
		assert.Zero(t, n)
	})

	t.Run("WithTx commits", func(t *testing.T) {
		err := dbx.WithTx(ctx, db, func(tx *sqlx.Tx) error {
			_, err := tx.Exec(`INSERT INTO projects (id, display_name) VALUES ('committed', 'x')`)
			return err
		})
		require.NoError(t, err)

		var n int
		require.NoError(t, db.Get(&n, `SELECT count(*) FROM projects WHERE id = 'committed'`))
		assert.Equal(t, 1, n)
	})
}
