// Package backup dumps each selected database to a file and records the attempt.
package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"

	"github.com/supporttools/sqlsweep/pkg/clock"
	"github.com/supporttools/sqlsweep/pkg/config"
	"github.com/supporttools/sqlsweep/pkg/database/metadata"
	"github.com/supporttools/sqlsweep/pkg/metrics"
)

// dumpFileMode keeps dump contents readable by the job's user only
const dumpFileMode = 0600

// Status is the typed outcome of one dump
type Status string

const (
	StatusSuccess         Status = metadata.StatusSuccess
	StatusToolFailure     Status = metadata.StatusToolFailure
	StatusSizeUnavailable Status = metadata.StatusSizeUnavailable
)

// Dumper writes the dump of one database to output
type Dumper interface {
	Backup(ctx context.Context, dbName string, output io.Writer) error
}

// HistoryRecorder persists one history row per dump attempt
type HistoryRecorder interface {
	CreateHistory(ctx context.Context, history *metadata.BackupHistory) error
}

// Uploader mirrors a finished dump file elsewhere
type Uploader interface {
	Upload(ctx context.Context, path string) error
}

// Result describes what happened to one database
type Result struct {
	Database   string
	Path       string
	TakenAt    time.Time
	Size       int64
	Compressed bool
	Status     Status
	Duration   time.Duration
	Err        error // dump or size failure
	RecordErr  error // history insert failure
	UploadErr  error // mirror failure, never fails the dump
}

// OK reports whether the dump was written, measured and recorded
func (r Result) OK() bool {
	return r.Status == StatusSuccess && r.Err == nil && r.RecordErr == nil
}

// Manager handles backup operations
type Manager struct {
	cfg      *config.Config
	dumper   Dumper
	history  HistoryRecorder
	clock    clock.Clock
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
	uploader Uploader
}

// Option configures a Manager
type Option func(*Manager)

// WithClock replaces the wall clock
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(m *Manager) { m.log = log }
}

// WithMetrics records dump metrics
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithUploader mirrors every successful dump
func WithUploader(u Uploader) Option {
	return func(m *Manager) { m.uploader = u }
}

// NewManager creates a new backup manager
func NewManager(cfg *config.Config, dumper Dumper, history HistoryRecorder, opts ...Option) *Manager {
	m := &Manager{
		cfg:     cfg,
		dumper:  dumper,
		history: history,
		clock:   clock.Real{},
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// BackupAll dumps the databases one at a time, in order. A failed database never
// stops the run; only cancellation does, and the remaining databases are not attempted.
func (m *Manager) BackupAll(ctx context.Context, runID string, databases []string) []Result {
	results := make([]Result, 0, len(databases))
	for _, db := range databases {
		if ctx.Err() != nil {
			m.log.WithField("remaining", len(databases)-len(results)).Warn("Backup run cancelled")
			break
		}
		results = append(results, m.BackupDatabase(ctx, runID, db))
	}
	return results
}

// BackupDatabase dumps one database and records a history row for the attempt.
// The filename and the history row share one clock reading.
func (m *Manager) BackupDatabase(ctx context.Context, runID, db string) Result {
	takenAt := m.clock.Now().Truncate(time.Second)
	path := filepath.Join(m.cfg.BackupDirectory, DumpFilename(takenAt, db, m.cfg.Compressed))

	log := m.log.WithFields(logrus.Fields{
		"database": db,
		"file":     path,
	})
	log.Info("Starting backup")

	start := time.Now()
	res := Result{
		Database:   db,
		Path:       path,
		TakenAt:    takenAt,
		Compressed: m.cfg.Compressed,
	}

	if err := m.writeDump(ctx, db, path); err != nil {
		res.Status = StatusToolFailure
		res.Err = err
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			log.WithError(rmErr).Warn("Failed to remove partial dump file")
		}
		log.WithError(err).Error("Backup failed")
	} else if info, err := os.Stat(path); err != nil {
		res.Status = StatusSizeUnavailable
		res.Err = fmt.Errorf("failed to stat dump file: %w", err)
		log.WithError(err).Warn("Dump written but its size is unavailable")
	} else {
		res.Status = StatusSuccess
		res.Size = info.Size()
	}
	res.Duration = time.Since(start)

	res.RecordErr = m.record(ctx, runID, res)
	if res.RecordErr != nil {
		log.WithError(res.RecordErr).Error("Failed to record backup history")
	}

	m.observe(res)

	if res.Status == StatusSuccess {
		log.WithFields(logrus.Fields{
			"size":     res.Size,
			"duration": res.Duration.Round(time.Millisecond),
		}).Info("Backup completed")
		res.UploadErr = m.upload(ctx, res)
	}

	return res
}

func (m *Manager) writeDump(ctx context.Context, db, path string) error {
	outputFile, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, dumpFileMode)
	if err != nil {
		return fmt.Errorf("failed to create dump file: %w", err)
	}

	var w io.Writer = outputFile
	var gzipWriter *gzip.Writer
	if m.cfg.Compressed {
		gzipWriter = gzip.NewWriter(outputFile)
		w = gzipWriter
	}

	dumpErr := m.dumper.Backup(ctx, db, w)

	if gzipWriter != nil {
		if err := gzipWriter.Close(); err != nil && dumpErr == nil {
			dumpErr = fmt.Errorf("failed to finish compression: %w", err)
		}
	}
	if err := outputFile.Close(); err != nil && dumpErr == nil {
		dumpErr = fmt.Errorf("failed to close dump file: %w", err)
	}

	return dumpErr
}

func (m *Manager) record(ctx context.Context, runID string, res Result) error {
	row := &metadata.BackupHistory{
		Name:       res.Database,
		TakenAt:    res.TakenAt,
		Size:       res.Size,
		Compressed: res.Compressed,
		Retained:   res.Status != StatusToolFailure,
		FilePath:   res.Path,
		Status:     string(res.Status),
		RunID:      runID,
	}
	if res.Err != nil {
		row.ErrorMessage = res.Err.Error()
	}

	// the row is still written after cancellation
	return m.history.CreateHistory(context.WithoutCancel(ctx), row)
}

func (m *Manager) upload(ctx context.Context, res Result) error {
	if m.uploader == nil {
		return nil
	}

	start := time.Now()
	err := m.uploader.Upload(ctx, res.Path)

	status := "success"
	if err != nil {
		status = "error"
		m.log.WithError(err).WithField("database", res.Database).Warn("Failed to mirror dump to S3")
	}
	if m.metrics != nil {
		m.metrics.S3UploadCount.WithLabelValues(res.Database, status).Inc()
		m.metrics.S3UploadDuration.WithLabelValues(res.Database).Observe(time.Since(start).Seconds())
	}
	return err
}

func (m *Manager) observe(res Result) {
	if m.metrics == nil {
		return
	}

	m.metrics.BackupCount.WithLabelValues(res.Database, string(res.Status)).Inc()
	m.metrics.BackupDuration.WithLabelValues(res.Database).Observe(res.Duration.Seconds())
	if res.Status == StatusSuccess {
		m.metrics.BackupSize.WithLabelValues(res.Database).Set(float64(res.Size))
		m.metrics.LastBackupTimestamp.WithLabelValues(res.Database).Set(float64(res.TakenAt.Unix()))
	}
}
