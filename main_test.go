package main

import (
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/supporttools/sqlsweep/pkg/config"
)

func stubConnect(t *testing.T, fn func(*config.Config) (*gorm.DB, error)) {
	t.Helper()
	orig := connect
	connect = fn
	t.Cleanup(func() { connect = orig })
}

func TestRunMissingBackupDirectoryNeverConnects(t *testing.T) {
	t.Setenv("BACKUP_DIRECTORY", filepath.Join(t.TempDir(), "missing"))
	t.Setenv("DB_USER", "backup_job")

	called := false
	stubConnect(t, func(*config.Config) (*gorm.DB, error) {
		called = true
		return nil, nil
	})

	assert.Equal(t, 1, run())
	assert.False(t, called, "metadata database must not be contacted")
}

func TestRunFailsOnUnmigratedHistoryTable(t *testing.T) {
	t.Setenv("BACKUP_DIRECTORY", t.TempDir())
	t.Setenv("DB_USER", "backup_job")
	t.Setenv("METADATA_AUTO_MIGRATE", "false")

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	for _, column := range []string{"FilePath", "Status", "ErrorMessage", "RunID"} {
		mock.ExpectQuery(`SELECT DATABASE\(\)`).
			WillReturnRows(sqlmock.NewRows([]string{"DATABASE()"}).AddRow("system"))
		mock.ExpectQuery("SELECT SCHEMA_NAME from Information_schema.SCHEMATA").
			WillReturnRows(sqlmock.NewRows([]string{"SCHEMA_NAME"}).AddRow("system"))
		mock.ExpectQuery(`SELECT count\(\*\) FROM INFORMATION_SCHEMA.columns`).
			WithArgs("system", "backup_history", column).
			WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(0))
	}
	mock.ExpectClose()

	stubConnect(t, func(*config.Config) (*gorm.DB, error) {
		return gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}),
			&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	})

	assert.Equal(t, 1, run())
	assert.NoError(t, mock.ExpectationsWereMet())
}
