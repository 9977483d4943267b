// history-recovery rebuilds backup_history rows from the dump files in the backup
// directory, and optionally marks rows whose file no longer exists as not retained.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/supporttools/sqlsweep/pkg/backup"
	"github.com/supporttools/sqlsweep/pkg/config"
	"github.com/supporttools/sqlsweep/pkg/database/metadata"
	"github.com/supporttools/sqlsweep/pkg/logging"
)

// RecoveryRunID marks rows created by this tool
const RecoveryRunID = "recovered"

var (
	dryRun    bool
	verbose   bool
	reconcile bool
)

var rootCmd = &cobra.Command{
	Use:   "history-recovery",
	Short: "Rebuild backup history rows from the dump files on disk",
	Long: `Scan the backup directory and insert a backup_history row for every dump
file that has none. With --reconcile, rows still flagged as retained whose file
no longer exists are marked as not retained.

Connection settings and the backup directory are read from the same environment
variables as the backup job.`,
	SilenceUsage: true,
	RunE:         runRecovery,
}

// Store is the part of the metadata repository the tool needs
type Store interface {
	HistoryExists(ctx context.Context, path, name string, takenAt time.Time) (bool, error)
	CreateHistory(ctx context.Context, history *metadata.BackupHistory) error
	ListRetained(ctx context.Context) ([]metadata.BackupHistory, error)
	MarkNotRetainedByID(ctx context.Context, id uint) error
}

// RecoveredDump is a dump file found in the backup directory
type RecoveredDump struct {
	Path       string
	Database   string
	TakenAt    time.Time
	Size       int64
	Compressed bool
}

// Stats counts what a recovery pass did
type Stats struct {
	Found      int
	Recovered  int
	Existing   int
	TotalSize  int64
	Reconciled int
}

func main() {
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would change without writing")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.Flags().BoolVar(&reconcile, "reconcile", false, "Mark retained rows whose file is missing as not retained")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runRecovery(cmd *cobra.Command, _ []string) error {
	cfg, warnings, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(cfg.Debug || verbose, cfg.LogFormat)
	for _, w := range warnings {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := metadata.Connect(cfg)
	if err != nil {
		return err
	}
	defer metadata.Close(db)

	if cfg.AutoMigrate {
		err = metadata.RunMigrations(db)
	} else {
		err = metadata.CheckSchema(db)
	}
	if err != nil {
		return err
	}

	dumps, err := scanBackupDirectory(cfg.BackupDirectory, log)
	if err != nil {
		return fmt.Errorf("failed to scan backup directory: %w", err)
	}

	stats, err := recoverHistory(ctx, metadata.NewRepository(db), dumps, reconcile, dryRun, log)
	if err != nil {
		return fmt.Errorf("recovery failed: %w", err)
	}

	log.WithFields(logrus.Fields{
		"found":      stats.Found,
		"recovered":  stats.Recovered,
		"existing":   stats.Existing,
		"size":       humanize.Bytes(uint64(stats.TotalSize)),
		"reconciled": stats.Reconciled,
		"dry_run":    dryRun,
	}).Info("Recovery summary")
	return nil
}

// scanBackupDirectory returns every dump file directly inside dir
func scanBackupDirectory(dir string, log logrus.FieldLogger) ([]RecoveredDump, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var dumps []RecoveredDump
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		name, takenAt, err := backup.ParseDumpFilename(entry.Name(), time.Local)
		if err != nil {
			log.WithField("file", entry.Name()).Debug("Skipping file with non-standard name")
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		dumps = append(dumps, RecoveredDump{
			Path:       filepath.Join(dir, entry.Name()),
			Database:   name,
			TakenAt:    takenAt,
			Size:       info.Size(),
			Compressed: filepath.Ext(entry.Name()) == ".gz",
		})
	}
	return dumps, nil
}

// recoverHistory inserts a row for every dump without one and, when reconcile is
// set, clears Retained on rows whose file is gone.
func recoverHistory(ctx context.Context, store Store, dumps []RecoveredDump, reconcile, dryRun bool, log logrus.FieldLogger) (Stats, error) {
	stats := Stats{Found: len(dumps)}

	for _, d := range dumps {
		exists, err := store.HistoryExists(ctx, d.Path, d.Database, d.TakenAt)
		if err != nil {
			return stats, err
		}
		if exists {
			stats.Existing++
			continue
		}

		stats.Recovered++
		stats.TotalSize += d.Size
		log.WithField("file", d.Path).Debug("Recovering history row")
		if dryRun {
			continue
		}

		err = store.CreateHistory(ctx, &metadata.BackupHistory{
			Name:       d.Database,
			TakenAt:    d.TakenAt,
			Size:       d.Size,
			Compressed: d.Compressed,
			Retained:   true,
			FilePath:   d.Path,
			Status:     metadata.StatusSuccess,
			RunID:      RecoveryRunID,
		})
		if err != nil {
			return stats, err
		}
	}

	if !reconcile {
		return stats, nil
	}

	rows, err := store.ListRetained(ctx)
	if err != nil {
		return stats, err
	}
	for _, row := range rows {
		if row.FilePath == "" {
			continue
		}
		if _, err := os.Stat(row.FilePath); !os.IsNotExist(err) {
			continue
		}

		stats.Reconciled++
		log.WithField("file", row.FilePath).Info("Dump file missing, marking as not retained")
		if dryRun {
			continue
		}
		if err := store.MarkNotRetainedByID(ctx, row.ID); err != nil {
			return stats, err
		}
	}

	return stats, nil
}
