package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syncbridge/backend/internal/domain/shared"
	"github.com/syncbridge/backend/internal/infrastructure/persistence/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newMockDatabase creates a Database backed by sqlmock speaking the postgres dialect
func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Discard,
	})
	require.NoError(t, err)

	return &Database{DB: gormDB}, mock, mockDB
}

// setupTestDB creates an in-memory SQLite database with the sync tables
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Discard,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	// every connection to :memory: is a separate database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.ChannelModel{},
		&models.OrderModel{},
		&models.ProductModel{},
		&models.SyncLogModel{},
		&models.PipelineModel{},
		&models.PipelineStepModel{},
		&models.CredentialModel{},
		&models.JobModel{},
	))
	return db
}

func TestDatabase_Ping(t *testing.T) {
	t.Run("successful ping", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectPing()
		assert.NoError(t, db.Ping())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed ping", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectPing().WillReturnError(sql.ErrConnDone)
		assert.ErrorIs(t, db.Ping(), sql.ErrConnDone)
	})
}

func TestDatabase_Stats(t *testing.T) {
	db, _, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.OpenConnections, 0)
}

func TestGormJobRepository_ClaimUsesSkipLocked(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	id := uuid.New()
	cols := []string{"id", "queue_name", "payload", "priority", "retry_limit", "retry_delay_ms",
		"retry_backoff", "retry_count", "state", "start_after", "last_error", "started_at",
		"completed_at", "created_at", "updated_at"}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "sync_jobs" WHERE \(?queue_name = \$1 AND state IN \(\$2,\$3\) AND start_after <= \$4\)? ORDER BY priority DESC, created_at ASC LIMIT \$5 FOR UPDATE SKIP LOCKED`).
		WithArgs("warehouse", shared.JobStateCreated, shared.JobStateRetry, now, 5).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			id, "warehouse", []byte(`{"operation":"create_outbound"}`), 0, 3, int64(60000),
			true, 0, "created", now, "", nil, nil, now, now,
		))
	mock.ExpectExec(`UPDATE "sync_jobs" SET .* WHERE id IN \(\$\d+\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	jobs, err := NewGormJobRepository(db.DB).Claim(context.Background(), "warehouse", now, 5)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, id, jobs[0].ID)
	assert.Equal(t, shared.JobStateActive, jobs[0].State)
	assert.Equal(t, time.Minute, jobs[0].RetryDelay)
	require.NotNil(t, jobs[0].StartedAt)
	assert.True(t, now.Equal(*jobs[0].StartedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}
