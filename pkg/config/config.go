// Package config provides configuration loading and validation for sqlsweep
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Defaults applied when a setting is absent, or when safe mode coerces an invalid value.
const (
	DefaultHost            = "localhost"
	DefaultPort            = 3306
	DefaultUsername        = "backup_job"
	DefaultDatabase        = "system"
	DefaultCompressed      = true
	DefaultRetention       = true
	DefaultRetentionDays   = 30
	DefaultBackupDirectory = "/media/backups/sql"
	DefaultMysqldumpPath   = "mysqldump"

	// MinPasswordLength is the length below which a password only triggers a warning.
	MinPasswordLength = 6
)

// S3Config defines the optional offsite mirror of dump files
type S3Config struct {
	Enabled   bool
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string
	PathStyle bool
}

// Config is the resolved configuration handed to every component
type Config struct {
	Host            string
	Port            int
	Username        string
	Password        string
	Database        string
	Compressed      bool
	Retention       bool
	RetentionDays   int
	BackupDirectory string
	SafeMode        bool

	MysqldumpPath  string
	Debug          bool
	LogFormat      string
	SummaryFormat  string
	Schedule       string
	PushgatewayURL string
	MetricsPort    string
	AutoMigrate    bool
	S3             S3Config
}

// Raw holds every setting exactly as supplied, before any coercion.
type Raw struct {
	Host            string
	Port            string
	Username        string
	Password        string
	Database        string
	Compressed      string
	Retention       string
	RetentionDays   string
	BackupDirectory string
	SafeMode        string

	MysqldumpPath  string
	Debug          string
	LogFormat      string
	SummaryFormat  string
	Schedule       string
	PushgatewayURL string
	MetricsPort    string
	AutoMigrate    string

	S3Enabled   string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Prefix    string
	S3PathStyle string
}

// ValidationError is a fatal configuration problem
type ValidationError struct {
	Setting string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration setting '%s' %s", e.Setting, e.Reason)
}

// Load reads the environment and resolves it into a Config.
func Load() (*Config, []string, error) {
	return Resolve(LoadRaw())
}

// LoadRaw reads all settings from environment variables
func LoadRaw() Raw {
	return Raw{
		Host:            getEnvOrDefault("DB_HOST", DefaultHost),
		Port:            getEnvOrDefault("DB_PORT", strconv.Itoa(DefaultPort)),
		Username:        getEnvOrDefault("DB_USER", DefaultUsername),
		Password:        getEnvOrDefault("DB_PASSWORD", ""),
		Database:        getEnvOrDefault("DB_NAME", DefaultDatabase),
		Compressed:      getEnvOrDefault("BACKUP_COMPRESSED", "true"),
		Retention:       getEnvOrDefault("BACKUP_RETENTION", "true"),
		RetentionDays:   getEnvOrDefault("BACKUP_RETENTION_DAYS", strconv.Itoa(DefaultRetentionDays)),
		BackupDirectory: getEnvOrDefault("BACKUP_DIRECTORY", DefaultBackupDirectory),
		SafeMode:        getEnvOrDefault("SAFE_MODE", "true"),

		MysqldumpPath:  getEnvOrDefault("MYSQLDUMP_PATH", DefaultMysqldumpPath),
		Debug:          getEnvOrDefault("DEBUG", "false"),
		LogFormat:      getEnvOrDefault("LOG_FORMAT", "text"),
		SummaryFormat:  getEnvOrDefault("SUMMARY_FORMAT", "text"),
		Schedule:       getEnvOrDefault("BACKUP_SCHEDULE", ""),
		PushgatewayURL: getEnvOrDefault("PUSHGATEWAY_URL", ""),
		MetricsPort:    getEnvOrDefault("METRICS_PORT", ""),
		AutoMigrate:    getEnvOrDefault("METADATA_AUTO_MIGRATE", "false"),

		S3Enabled:   getEnvOrDefault("S3_ENABLED", "false"),
		S3Bucket:    getEnvOrDefault("S3_BUCKET", ""),
		S3Region:    getEnvOrDefault("S3_REGION", "us-east-1"),
		S3Endpoint:  getEnvOrDefault("S3_ENDPOINT", ""),
		S3AccessKey: getEnvOrDefault("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnvOrDefault("S3_SECRET_KEY", ""),
		S3Prefix:    getEnvOrDefault("S3_PREFIX", "sqlsweep"),
		S3PathStyle: getEnvOrDefault("S3_PATH_STYLE", "false"),
	}
}

// Resolve turns raw settings into a Config. With safe mode on, invalid values are
// coerced to their defaults and the result is validated; fatal problems come back as
// a *ValidationError and non-fatal ones as warnings. With safe mode off the raw
// values are used as-is.
func Resolve(raw Raw) (*Config, []string, error) {
	safeMode := boolOrDefault(raw.SafeMode, true)

	cfg := &Config{
		Host:            raw.Host,
		Port:            intOrDefault(raw.Port, DefaultPort),
		Username:        raw.Username,
		Password:        raw.Password,
		Database:        raw.Database,
		BackupDirectory: raw.BackupDirectory,
		SafeMode:        safeMode,

		MysqldumpPath:  raw.MysqldumpPath,
		Debug:          boolOrDefault(raw.Debug, false),
		LogFormat:      strings.ToLower(raw.LogFormat),
		SummaryFormat:  strings.ToLower(raw.SummaryFormat),
		Schedule:       strings.TrimSpace(raw.Schedule),
		PushgatewayURL: raw.PushgatewayURL,
		MetricsPort:    strings.TrimSpace(raw.MetricsPort),
		AutoMigrate:    boolOrDefault(raw.AutoMigrate, false),
		S3: S3Config{
			Enabled:   boolOrDefault(raw.S3Enabled, false),
			Bucket:    raw.S3Bucket,
			Region:    raw.S3Region,
			Endpoint:  raw.S3Endpoint,
			AccessKey: raw.S3AccessKey,
			SecretKey: raw.S3SecretKey,
			Prefix:    raw.S3Prefix,
			PathStyle: boolOrDefault(raw.S3PathStyle, false),
		},
	}
	if cfg.MysqldumpPath == "" {
		cfg.MysqldumpPath = DefaultMysqldumpPath
	}

	if !safeMode {
		cfg.Compressed = boolOrDefault(raw.Compressed, false)
		cfg.Retention = boolOrDefault(raw.Retention, false)
		cfg.RetentionDays = intOrDefault(raw.RetentionDays, 0)
		return cfg, nil, validateS3(cfg)
	}

	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	cfg.Compressed = boolOrDefault(raw.Compressed, DefaultCompressed)
	cfg.Retention = boolOrDefault(raw.Retention, DefaultRetention)
	cfg.RetentionDays = intOrDefault(raw.RetentionDays, DefaultRetentionDays)
	cfg.BackupDirectory = EnsureTrailingSeparator(cfg.BackupDirectory)

	warnings, err := Validate(cfg)
	if err != nil {
		return nil, warnings, err
	}
	return cfg, warnings, validateS3(cfg)
}

// Validate checks a normalized configuration. The first fatal problem is returned as
// the error; weak credentials only produce warnings.
func Validate(cfg *Config) ([]string, error) {
	if cfg.BackupDirectory == "" {
		return nil, &ValidationError{Setting: "Backup directory", Reason: "cannot be empty"}
	}

	info, err := os.Stat(cfg.BackupDirectory)
	if err != nil || !info.IsDir() {
		return nil, &ValidationError{Setting: "Backup directory", Reason: "doesn't appear to exist"}
	}

	if cfg.Username == "" {
		return nil, &ValidationError{Setting: "Database user", Reason: "cannot be empty"}
	}

	var warnings []string
	if len(cfg.Password) < MinPasswordLength {
		warnings = append(warnings,
			"Configuration setting 'Database password' is empty or short, consider setting a stronger password")
	}

	return warnings, nil
}

func validateS3(cfg *Config) error {
	if !cfg.S3.Enabled {
		return nil
	}
	if cfg.S3.Bucket == "" {
		return &ValidationError{Setting: "S3 bucket", Reason: "must be specified when the S3 mirror is enabled"}
	}
	if cfg.S3.AccessKey == "" || cfg.S3.SecretKey == "" {
		return &ValidationError{Setting: "S3 credentials", Reason: "must be specified when the S3 mirror is enabled"}
	}
	return nil
}

// EnsureTrailingSeparator appends exactly one path separator to a non-empty directory.
func EnsureTrailingSeparator(dir string) string {
	if dir == "" || strings.HasSuffix(dir, string(filepath.Separator)) {
		return dir
	}
	return dir + string(filepath.Separator)
}

// Display logs the configuration at debug level with secrets masked
func (c *Config) Display(log logrus.FieldLogger) {
	log.WithFields(logrus.Fields{
		"host":            c.Host,
		"port":            c.Port,
		"user":            c.Username,
		"password":        maskSensitiveInfo(c.Password),
		"database":        c.Database,
		"compressed":      c.Compressed,
		"retention":       c.Retention,
		"retention_days":  c.RetentionDays,
		"backup_dir":      c.BackupDirectory,
		"safe_mode":       c.SafeMode,
		"mysqldump":       c.MysqldumpPath,
		"schedule":        c.Schedule,
		"pushgateway":     c.PushgatewayURL,
		"metrics_port":    c.MetricsPort,
		"s3_enabled":      c.S3.Enabled,
		"s3_bucket":       c.S3.Bucket,
		"s3_access_key":   maskSensitiveInfo(c.S3.AccessKey),
		"s3_secret_key":   maskSensitiveInfo(c.S3.SecretKey),
		"metadata_create": c.AutoMigrate,
	}).Debug("Configuration loaded")
}

// maskSensitiveInfo masks sensitive information for logging
func maskSensitiveInfo(info string) string {
	if info == "" {
		return "[not set]"
	}

	if len(info) <= 4 {
		return "****"
	}

	return info[:2] + "****" + info[len(info)-2:]
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// parseBool recognizes the usual truthy and falsy spellings
func parseBool(value string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on", "enabled":
		return true, true
	case "0", "f", "false", "no", "off", "disabled":
		return false, true
	default:
		return false, false
	}
}

func boolOrDefault(value string, defaultValue bool) bool {
	if v, ok := parseBool(value); ok {
		return v
	}
	return defaultValue
}

func intOrDefault(value string, defaultValue int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return n
}
