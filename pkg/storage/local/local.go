// Package local enforces the retention window on the local backup directory.
package local

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/supporttools/sqlsweep/pkg/backup"
	"github.com/supporttools/sqlsweep/pkg/clock"
	"github.com/supporttools/sqlsweep/pkg/config"
	"github.com/supporttools/sqlsweep/pkg/metrics"
)

// HistoryMarker clears the retained flag on history rows
type HistoryMarker interface {
	MarkNotRetainedByPath(ctx context.Context, path string) (int64, error)
	MarkNotRetained(ctx context.Context, name string, takenAt time.Time) (int64, error)
}

// RemoteDeleter removes the mirrored copy of a dump file
type RemoteDeleter interface {
	Delete(ctx context.Context, path string) error
}

// Deletion describes one expired file removed by the sweep
type Deletion struct {
	Path        string
	Database    string
	TakenAt     time.Time
	Age         time.Duration
	RowsUpdated int64
	ParseErr    error
	MarkErr     error
	RemoteErr   error
}

// SweepResult summarises one retention sweep
type SweepResult struct {
	Skipped bool // retention disabled
	Scanned int
	Deleted []Deletion
	Failed  map[string]error // files that could not be removed
}

// Sweeper deletes expired dump files and marks their history rows
type Sweeper struct {
	cfg     *config.Config
	history HistoryMarker
	clock   clock.Clock
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	remote  RemoteDeleter
}

// Option configures a Sweeper
type Option func(*Sweeper)

// WithClock replaces the wall clock
func WithClock(c clock.Clock) Option {
	return func(s *Sweeper) { s.clock = c }
}

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Sweeper) { s.log = log }
}

// WithMetrics counts deletions
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

// WithRemote also deletes mirrored copies
func WithRemote(r RemoteDeleter) Option {
	return func(s *Sweeper) { s.remote = r }
}

// NewSweeper creates a Sweeper
func NewSweeper(cfg *config.Config, history HistoryMarker, opts ...Option) *Sweeper {
	s := &Sweeper{
		cfg:     cfg,
		history: history,
		clock:   clock.Real{},
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const secondsPerDay = 24 * 60 * 60

// LimitSeconds returns the retention window in seconds, clamped to the int64 range.
// A clamped positive window never expires anything.
func (s *Sweeper) LimitSeconds() int64 {
	days := int64(s.cfg.RetentionDays)
	switch {
	case days > math.MaxInt64/secondsPerDay:
		return math.MaxInt64
	case days < math.MinInt64/secondsPerDay:
		return math.MinInt64
	}
	return days * secondsPerDay
}

// Expired reports whether a file modified at mtime is at least limit seconds old at now
func Expired(now, mtime time.Time, limit int64) bool {
	age := now.Unix() - mtime.Unix()
	return age >= limit
}

// Sweep removes every regular file in the backup directory whose age is at least
// the retention window. Only a failure to list the directory is returned as an error.
func (s *Sweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{Failed: map[string]error{}}

	if !s.cfg.Retention {
		s.log.Debug("Retention disabled, skipping sweep")
		result.Skipped = true
		return result, nil
	}
	if s.cfg.RetentionDays <= 0 {
		s.log.WithField("retention_days", s.cfg.RetentionDays).
			Warn("Retention window is not positive, every file in the backup directory will expire")
	}

	entries, err := os.ReadDir(s.cfg.BackupDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to list backup directory %s: %w", s.cfg.BackupDirectory, err)
	}

	now := s.clock.Now()
	limit := s.LimitSeconds()

	for _, entry := range entries {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if !entry.Type().IsRegular() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		result.Scanned++

		if !Expired(now, info.ModTime(), limit) {
			continue
		}
		age := now.Sub(info.ModTime())

		path := filepath.Join(s.cfg.BackupDirectory, entry.Name())
		if err := os.Remove(path); err != nil {
			s.log.WithError(err).WithField("file", path).Error("Failed to remove expired backup")
			result.Failed[path] = err
			continue
		}

		result.Deleted = append(result.Deleted, s.afterDelete(ctx, path, age))
	}

	return result, nil
}

func (s *Sweeper) afterDelete(ctx context.Context, path string, age time.Duration) Deletion {
	d := Deletion{Path: path, Age: age}
	log := s.log.WithField("file", path)

	if s.metrics != nil {
		s.metrics.RetentionDeletes.WithLabelValues("local").Inc()
	}

	d.Database, d.TakenAt, d.ParseErr = backup.ParseDumpFilename(filepath.Base(path), time.Local)

	// Rows written before FilePath existed, or a schema without it, are matched by
	// database name and timestamp instead.
	d.RowsUpdated, d.MarkErr = s.history.MarkNotRetainedByPath(ctx, path)
	if d.MarkErr != nil || d.RowsUpdated == 0 {
		if d.MarkErr != nil {
			log.WithError(d.MarkErr).Debug("History update by path failed, matching by name and timestamp")
		}
		if d.ParseErr != nil {
			log.WithError(d.ParseErr).Warn("Removed file does not look like a dump, no history row updated")
		} else {
			d.RowsUpdated, d.MarkErr = s.history.MarkNotRetained(ctx, d.Database, d.TakenAt)
		}
	}
	if d.MarkErr != nil {
		log.WithError(d.MarkErr).Warn("Failed to mark backup as not retained")
	}

	if s.remote != nil {
		if d.RemoteErr = s.remote.Delete(ctx, path); d.RemoteErr != nil {
			log.WithError(d.RemoteErr).Warn("Failed to remove mirrored backup")
		} else if s.metrics != nil {
			s.metrics.RetentionDeletes.WithLabelValues("s3").Inc()
		}
	}

	log.WithFields(logrus.Fields{
		"age":          age.Round(time.Second),
		"rows_updated": d.RowsUpdated,
	}).Info("Removed expired backup")
	return d
}
