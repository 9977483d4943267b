package metadata

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Repository handles database operations for exclusions and backup history
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new metadata repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db: db,
	}
}

// ListExcluded returns every distinct excluded database name
func (r *Repository) ListExcluded(ctx context.Context) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).
		Model(&BackupExclude{}).
		Distinct("Name").
		Pluck("Name", &names).Error
	if err != nil {
		return nil, err
	}
	return names, nil
}

// CreateHistory inserts a history record
func (r *Repository) CreateHistory(ctx context.Context, history *BackupHistory) error {
	return r.db.WithContext(ctx).Create(history).Error
}

// MarkNotRetainedByPath clears Retained on rows written for path and
// reports how many rows changed.
func (r *Repository) MarkNotRetainedByPath(ctx context.Context, path string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&BackupHistory{}).
		Where("FilePath = ?", path).
		Update("Retained", false)
	return result.RowsAffected, result.Error
}

// MarkNotRetained clears Retained on rows matching a database name and taken-at time.
func (r *Repository) MarkNotRetained(ctx context.Context, name string, takenAt time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&BackupHistory{}).
		Where("Name = ? AND TakenAt = ?", name, takenAt).
		Update("Retained", false)
	return result.RowsAffected, result.Error
}

// HistoryExists reports whether a row already describes the dump at path, matched
// by FilePath or by name and taken-at time.
func (r *Repository) HistoryExists(ctx context.Context, path, name string, takenAt time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&BackupHistory{}).
		Where("FilePath = ? OR (Name = ? AND TakenAt = ?)", path, name, takenAt).
		Count(&count).Error
	return count > 0, err
}

// ListRetained returns every history row still flagged as retained, oldest first
func (r *Repository) ListRetained(ctx context.Context) ([]BackupHistory, error) {
	var rows []BackupHistory
	err := r.db.WithContext(ctx).
		Where("Retained = ?", true).
		Order("TakenAt").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkNotRetainedByID clears Retained on one row
func (r *Repository) MarkNotRetainedByID(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).
		Model(&BackupHistory{}).
		Where("ID = ?", id).
		Update("Retained", false).Error
}
