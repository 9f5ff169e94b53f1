package config

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/catalogsync_backend/appctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type guardedRow struct {
	ID           uint
	ConnectionId uint
	Name         string
}

type unguardedRow struct {
	ID   uint
	Name string
}

func openGuardedDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Use(NewConnectionGuardPlugin()))
	require.NoError(t, db.AutoMigrate(&guardedRow{}, &unguardedRow{}))
	return db
}

func TestConnectionGuardScopesQueries(t *testing.T) {
	db := openGuardedDB(t)
	require.NoError(t, db.Create(&[]guardedRow{{ConnectionId: 1, Name: "a"}, {ConnectionId: 2, Name: "b"}}).Error)
	require.NoError(t, db.Create(&[]unguardedRow{{Name: "x"}, {Name: "y"}}).Error)

	ctx := appctx.Set(context.Background(), appctx.ContextKeyConnectionId, uint(1))

	var rows []guardedRow
	require.NoError(t, db.WithContext(ctx).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "a", rows[0].Name)

	var plain []unguardedRow
	require.NoError(t, db.WithContext(ctx).Find(&plain).Error)
	assert.Len(t, plain, 2)

	rows = nil
	require.NoError(t, db.WithContext(context.Background()).Find(&rows).Error)
	assert.Len(t, rows, 2)

	admin := appctx.Set(ctx, appctx.ContextKeyIsAdmin, true)
	rows = nil
	require.NoError(t, db.WithContext(admin).Find(&rows).Error)
	assert.Len(t, rows, 2)
}

func TestConnectionGuardScopesDeletes(t *testing.T) {
	db := openGuardedDB(t)
	require.NoError(t, db.Create(&[]guardedRow{{ConnectionId: 1, Name: "a"}, {ConnectionId: 2, Name: "a"}}).Error)

	ctx := appctx.Set(context.Background(), appctx.ContextKeyConnectionId, uint(2))
	require.NoError(t, db.WithContext(ctx).Where("name = ?", "a").Delete(&guardedRow{}).Error)

	var left []guardedRow
	require.NoError(t, db.Find(&left).Error)
	require.Len(t, left, 1)
	assert.Equal(t, uint(1), left[0].ConnectionId)
}

func TestSyncFlags(t *testing.T) {
	t.Setenv("CATALOG_SYNC_PAGE_SIZE", "")
	assert.Equal(t, 100, SyncPageSize())
	t.Setenv("CATALOG_SYNC_PAGE_SIZE", "25")
	assert.Equal(t, 25, SyncPageSize())
	t.Setenv("CATALOG_SYNC_PAGE_SIZE", "-3")
	assert.Equal(t, 100, SyncPageSize())

	t.Setenv("CATALOG_SYNC_LOCK_TTL_SECONDS", "abc")
	assert.Equal(t, 10*time.Minute, SyncLockTTL())

	t.Setenv("UC_RATE_LIMIT_PER_SEC", "0")
	assert.Equal(t, 20, UnityCatalogRatePerSecond())

	t.Setenv("CATALOG_SYNC_REPORT_BUCKET", "  reports ")
	assert.Equal(t, "reports", SyncReportBucket())
}

func TestEnvBoolDefault(t *testing.T) {
	t.Setenv("CATALOG_SYNC_INLINE", "yes")
	assert.True(t, SyncInline())
	t.Setenv("CATALOG_SYNC_INLINE", "off")
	assert.False(t, SyncInline())
	t.Setenv("CATALOG_SYNC_INLINE", "maybe")
	assert.True(t, EnvBoolDefault("CATALOG_SYNC_INLINE", true))
}
