package integration

import (
	"database/sql"
	"testing"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/syncbridge/backend/internal/infrastructure/migration"
)

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var exists bool
	err := db.QueryRow(`SELECT EXISTS (
		SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1
	)`, name).Scan(&exists)
	require.NoError(t, err)
	return exists
}

func columnExists(t *testing.T, db *sql.DB, table, column string) bool {
	t.Helper()
	var exists bool
	err := db.QueryRow(`SELECT EXISTS (
		SELECT 1 FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1 AND column_name = $2
	)`, table, column).Scan(&exists)
	require.NoError(t, err)
	return exists
}

func TestMigrations_DownAndUp(t *testing.T) {
	tdb := NewTestDB(t)

	db, err := sql.Open("postgres", tdb.DSN)
	require.NoError(t, err)
	defer db.Close()

	m, err := migration.New(db, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer m.Close()

	status, err := m.Status()
	require.NoError(t, err)
	assert.Equal(t, uint(3), status.Version)
	assert.False(t, status.Dirty)
	for _, table := range []string{"channels", "orders", "products", "sync_logs", "sync_pipelines", "sync_pipeline_steps", "sync_jobs", "credential_tokens"} {
		assert.True(t, tableExists(t, db, table), table)
	}
	assert.True(t, columnExists(t, db, "sync_logs", "channel_id"))

	require.NoError(t, m.Steps(-1))
	status, err = m.Status()
	require.NoError(t, err)
	assert.Equal(t, uint(2), status.Version)
	assert.False(t, columnExists(t, db, "sync_logs", "channel_id"))

	require.NoError(t, m.Steps(-1))
	status, err = m.Status()
	require.NoError(t, err)
	assert.Equal(t, uint(1), status.Version)
	assert.False(t, tableExists(t, db, "sync_jobs"))
	assert.True(t, tableExists(t, db, "orders"))

	require.NoError(t, m.Up())
	status, err = m.Status()
	require.NoError(t, err)
	assert.Equal(t, uint(3), status.Version)
	assert.True(t, tableExists(t, db, "sync_jobs"))
	assert.True(t, columnExists(t, db, "sync_logs", "channel_id"))

	// a second Up is a no-op
	require.NoError(t, m.Up())
}

func TestMigrations_SyncLogChannelBackfill(t *testing.T) {
	tdb := NewTestDB(t)

	db, err := sql.Open("postgres", tdb.DSN)
	require.NoError(t, err)
	defer db.Close()

	m, err := migration.New(db, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer m.Close()
	require.NoError(t, m.Steps(-1))
	t.Cleanup(func() { _ = m.Up() })

	clientID, channelID, orderID := uuid.New(), uuid.New(), uuid.New()
	_, err = db.Exec(`INSERT INTO channels (id, client_id, name, platform, created_at, updated_at)
		VALUES ($1, $2, 'EU shop', 'SHOPIFY', NOW(), NOW())`, channelID, clientID)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO orders (id, client_id, channel_id, platform, external_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'SHOPIFY', '2001', 'OPEN', NOW(), NOW())`, orderID, clientID, channelID)
	require.NoError(t, err)
	// the second record points at an order that no longer exists
	_, err = db.Exec(`INSERT INTO sync_logs (id, client_id, entity_type, entity_id, external_id, action, origin, success, created_at)
		VALUES ($1, $2, 'order', $3, '2001', 'create', 'SHOPIFY', TRUE, NOW()),
		       ($4, $2, 'order', $5, '2002', 'create', 'SHOPIFY', TRUE, NOW())`,
		uuid.New(), clientID, orderID, uuid.New(), uuid.New())
	require.NoError(t, err)

	require.NoError(t, m.Up())

	var got []uuid.UUID
	rows, err := db.Query(`SELECT channel_id FROM sync_logs ORDER BY external_id`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		require.NoError(t, rows.Scan(&id))
		got = append(got, id)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []uuid.UUID{channelID, uuid.Nil}, got)
}
