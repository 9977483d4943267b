package main

import (
	"context"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/supporttools/sqlsweep/pkg/backup"
	"github.com/supporttools/sqlsweep/pkg/backup/database/mysql"
	"github.com/supporttools/sqlsweep/pkg/catalog"
	"github.com/supporttools/sqlsweep/pkg/clock"
	"github.com/supporttools/sqlsweep/pkg/config"
	"github.com/supporttools/sqlsweep/pkg/database/metadata"
	"github.com/supporttools/sqlsweep/pkg/job"
	"github.com/supporttools/sqlsweep/pkg/logging"
	"github.com/supporttools/sqlsweep/pkg/metrics"
	"github.com/supporttools/sqlsweep/pkg/scheduler"
	"github.com/supporttools/sqlsweep/pkg/storage/local"
	"github.com/supporttools/sqlsweep/pkg/storage/s3"
	"github.com/supporttools/sqlsweep/pkg/version"
)

const pushTimeout = 10 * time.Second

// connect opens the metadata database; replaced in tests
var connect = metadata.Connect

func main() {
	os.Exit(run())
}

func run() int {
	// Load and validate configuration before touching the database
	cfg, warnings, err := config.Load()
	if err != nil {
		logrus.Error(err)
		return 1
	}

	log := logging.New(cfg.Debug, cfg.LogFormat)
	log.Info("Starting " + version.String())
	for _, w := range warnings {
		log.Warn(w)
	}
	cfg.Display(log)

	if _, err := exec.LookPath(cfg.MysqldumpPath); err != nil {
		log.WithError(err).Warn("mysqldump not found, every dump will fail")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openMetadata(cfg, log)
	if err != nil {
		log.Error(err)
		return 1
	}
	defer metadata.Close(db)

	sqlDB, err := db.DB()
	if err != nil {
		log.Error(err)
		return 1
	}

	repo := metadata.NewRepository(db)
	mt := metrics.New()

	backupOpts := []backup.Option{backup.WithLogger(log), backup.WithMetrics(mt)}
	sweepOpts := []local.Option{local.WithLogger(log), local.WithMetrics(mt)}
	if cfg.S3.Enabled {
		mirror, err := s3.NewMirror(ctx, cfg.S3, log)
		if err != nil {
			log.Error(err)
			return 1
		}
		backupOpts = append(backupOpts, backup.WithUploader(mirror))
		sweepOpts = append(sweepOpts, local.WithRemote(mirror))
	}

	runner := &job.Runner{
		Catalog: catalog.NewReader(sqlDB, repo),
		Backups: backup.NewManager(cfg, mysql.NewProvider(cfg), repo, backupOpts...),
		Sweeper: local.NewSweeper(cfg, repo, sweepOpts...),
		Clock:   clock.Real{},
		Log:     log,
		Metrics: mt,
	}

	if cfg.Schedule != "" {
		return runScheduled(ctx, cfg, runner, mt, log)
	}
	return runOnce(ctx, cfg, runner, mt, log)
}

// openMetadata connects to the metadata database and makes sure the history table
// has the columns the job writes, migrating it when allowed.
func openMetadata(cfg *config.Config, log logrus.FieldLogger) (*gorm.DB, error) {
	db, err := connect(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		err = metadata.RunMigrations(db)
	} else {
		err = metadata.CheckSchema(db)
	}
	if err != nil {
		metadata.Close(db)
		return nil, err
	}

	log.Debug("Metadata database ready")
	return db, nil
}

// runOnce performs a single pass, as when invoked by an external cron
func runOnce(ctx context.Context, cfg *config.Config, runner *job.Runner, mt *metrics.Metrics, log *logrus.Logger) int {
	summary, err := runner.Run(ctx)
	if summary == nil {
		log.Error(err)
		return 1
	}

	if err := summary.Render(os.Stdout, cfg.SummaryFormat); err != nil {
		log.WithError(err).Error("Failed to write run summary")
	}
	pushMetrics(cfg, mt, log)

	if err != nil {
		log.WithError(err).Warn("Backup run interrupted")
		return 1
	}
	return 0
}

// runScheduled keeps the process alive and runs a pass on every tick of the schedule
func runScheduled(ctx context.Context, cfg *config.Config, runner *job.Runner, mt *metrics.Metrics, log *logrus.Logger) int {
	sched := scheduler.NewScheduler(log)

	err := sched.Schedule(ctx, cfg.Schedule, func(ctx context.Context) {
		summary, err := runner.Run(ctx)
		if summary == nil {
			log.WithError(err).Error("Backup run failed")
			return
		}
		if err := summary.Render(os.Stdout, cfg.SummaryFormat); err != nil {
			log.WithError(err).Error("Failed to write run summary")
		}
		pushMetrics(cfg, mt, log)
	})
	if err != nil {
		log.Error(err)
		return 1
	}

	if cfg.MetricsPort != "" {
		go func() {
			if err := mt.Serve(ctx, cfg.MetricsPort, log); err != nil {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	log.Info("sqlsweep is running. Press Ctrl+C to exit.")
	sched.Run(ctx)
	return 0
}

func pushMetrics(cfg *config.Config, mt *metrics.Metrics, log logrus.FieldLogger) {
	if cfg.PushgatewayURL == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()

	if err := mt.Push(ctx, cfg.PushgatewayURL); err != nil {
		log.WithError(err).Warn("Failed to push metrics")
	}
}
