// Package metadata provides the exclusion and history tables kept in the metadata database
package metadata

import (
	"time"
)

// History status values
const (
	StatusSuccess         = "success"
	StatusToolFailure     = "tool_failure"
	StatusSizeUnavailable = "size_unavailable"
)

// BackupExclude is a database name that is never backed up
type BackupExclude struct {
	ID   uint   `gorm:"column:ID;primaryKey;autoIncrement"`
	Name string `gorm:"column:Name;type:varchar(64);not null"`
}

// TableName specifies the table name for the BackupExclude model
func (BackupExclude) TableName() string {
	return "backup_exclude"
}

// BackupHistory records one dump attempt. Only Retained changes after creation.
type BackupHistory struct {
	ID         uint      `gorm:"column:ID;primaryKey;autoIncrement"`
	Name       string    `gorm:"column:Name;type:varchar(64);not null;index:idx_history_name_taken"`
	TakenAt    time.Time `gorm:"column:TakenAt;not null;index:idx_history_name_taken"`
	Size       int64     `gorm:"column:Size;not null"`
	Compressed bool      `gorm:"column:Compressed;not null"`
	// Retained has no gorm default: a default would make gorm skip an explicit false on insert.
	Retained     bool   `gorm:"column:Retained;not null"`
	FilePath     string `gorm:"column:FilePath;type:varchar(512);index"`
	Status       string `gorm:"column:Status;type:varchar(32)"`
	ErrorMessage string `gorm:"column:ErrorMessage;type:text"`
	RunID        string `gorm:"column:RunID;type:varchar(36);index"`
}

// TableName specifies the table name for the BackupHistory model
func (BackupHistory) TableName() string {
	return "backup_history"
}
