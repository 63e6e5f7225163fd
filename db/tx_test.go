package db_test

import (
	"context"
	"errors"
	"testing"

	"github.com/edudati/openheal-research/db"
	"github.com/edudati/openheal-research/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTxRunsHooksAfterCommit(t *testing.T) {
	ctx := context.Background()
	conn := testutil.OpenLocal(t)

	var order []string
	err := db.WithTx(ctx, conn, func(tx *db.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO studies (id, code, title, description, is_active, created_at)
			VALUES ('s-1', 'alpha', 'Alpha', '', 1, CURRENT_TIMESTAMP)`)
		if err != nil {
			return err
		}
		tx.OnCommit(func(ctx context.Context) {
			// хук видит закоммиченные данные через обычное соединение
			var n int
			require.NoError(t, conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM studies`).Scan(&n))
			order = append(order, "first")
			assert.Equal(t, 1, n)
		})
		tx.OnCommit(func(ctx context.Context) { order = append(order, "second") })
		order = append(order, "body")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"body", "first", "second"}, order)
}

func TestWithTxRollbackSkipsHooks(t *testing.T) {
	ctx := context.Background()
	conn := testutil.OpenLocal(t)
	boom := errors.New("boom")

	called := false
	err := db.WithTx(ctx, conn, func(tx *db.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO studies (id, code, title, description, is_active, created_at)
			VALUES ('s-1', 'alpha', 'Alpha', '', 1, CURRENT_TIMESTAMP)`)
		require.NoError(t, err)
		tx.OnCommit(func(ctx context.Context) { called = true })
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, called)

	var n int
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM studies`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestWithTxPanicRollsBack(t *testing.T) {
	ctx := context.Background()
	conn := testutil.OpenLocal(t)

	assert.Panics(t, func() {
		_ = db.WithTx(ctx, conn, func(tx *db.Tx) error {
			_, err := tx.ExecContext(ctx, `INSERT INTO studies (id, code, title, description, is_active, created_at)
				VALUES ('s-1', 'alpha', 'Alpha', '', 1, CURRENT_TIMESTAMP)`)
			require.NoError(t, err)
			panic("boom")
		})
	})

	var n int
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM studies`).Scan(&n))
	assert.Equal(t, 0, n)
}
