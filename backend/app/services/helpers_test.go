package services

import (
	"path/filepath"
	"testing"

	"fleetpush/backend/app/db"
	"fleetpush/backend/app/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&models.Device{}, &models.InstalledPackage{}, &models.Command{}, &models.Release{}, &models.User{}, &models.AgentLog{}))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}
