package metadata

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/supporttools/sqlsweep/pkg/config"
)

// clientConnectionError is reported when the server never answered, matching
// the MySQL client's CR_CONN_HOST_ERROR.
const clientConnectionError = 2003

// ConnectError describes a failed connection to the metadata database
type ConnectError struct {
	Code uint16
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("Database Connection Failed - Check server and credentials (%d)", e.Code)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// DSN builds the driver connection string for the metadata database
func DSN(cfg *config.Config) string {
	dsn := mysqldriver.NewConfig()
	dsn.User = cfg.Username
	dsn.Passwd = cfg.Password
	dsn.Net = "tcp"
	dsn.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	dsn.DBName = cfg.Database
	dsn.ParseTime = true
	dsn.Loc = time.Local
	dsn.Params = map[string]string{"charset": "utf8mb4"}
	return dsn.FormatDSN()
}

// Connect opens the single connection used for the whole run
func Connect(cfg *config.Config) (*gorm.DB, error) {
	logLevel := logger.Silent
	if cfg.Debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(mysql.Open(DSN(cfg)), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, newConnectError(err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, newConnectError(err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	return db, nil
}

func newConnectError(err error) *ConnectError {
	code := uint16(clientConnectionError)
	var mysqlErr *mysqldriver.MySQLError
	if errors.As(err, &mysqlErr) {
		code = mysqlErr.Number
	}
	return &ConnectError{Code: code, Err: err}
}

// RunMigrations creates or extends the exclusion and history tables
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(&BackupExclude{}, &BackupHistory{}); err != nil {
		return fmt.Errorf("failed to migrate tables: %w", err)
	}
	return nil
}

// historyColumns are the backup_history columns added on top of the original
// (Name, TakenAt, Size, Compressed, Retained) layout.
var historyColumns = []string{"FilePath", "Status", "ErrorMessage", "RunID"}

// SchemaError reports history columns missing from an unmigrated database
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("table backup_history is missing columns %s, set METADATA_AUTO_MIGRATE=true to add them",
		strings.Join(e.Missing, ", "))
}

// CheckSchema verifies backup_history has every column the job writes
func CheckSchema(db *gorm.DB) error {
	migrator := db.Migrator()

	var missing []string
	for _, column := range historyColumns {
		if !migrator.HasColumn(&BackupHistory{}, column) {
			missing = append(missing, column)
		}
	}
	if len(missing) > 0 {
		return &SchemaError{Missing: missing}
	}
	return nil
}

// Close closes the database connection
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}

	return sqlDB.Close()
}
