// Package job runs one complete backup pass: catalog, dumps, retention, summary
package job

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/supporttools/sqlsweep/pkg/backup"
	"github.com/supporttools/sqlsweep/pkg/catalog"
	"github.com/supporttools/sqlsweep/pkg/clock"
	"github.com/supporttools/sqlsweep/pkg/metrics"
	"github.com/supporttools/sqlsweep/pkg/report"
	"github.com/supporttools/sqlsweep/pkg/storage/local"
)

// Catalog derives the set of databases to back up
type Catalog interface {
	BackupSet(ctx context.Context) (*catalog.Set, error)
}

// Backupper dumps a list of databases
type Backupper interface {
	BackupAll(ctx context.Context, runID string, databases []string) []backup.Result
}

// Sweeper enforces the retention window
type Sweeper interface {
	Sweep(ctx context.Context) (*local.SweepResult, error)
}

// Runner wires the components of one run together
type Runner struct {
	Catalog Catalog
	Backups Backupper
	Sweeper Sweeper
	Clock   clock.Clock
	Log     logrus.FieldLogger
	Metrics *metrics.Metrics
}

// Run performs one pass. An error means the catalog could not be read and nothing was
// dumped; per-database failures are reported in the summary instead.
func (r *Runner) Run(ctx context.Context) (*report.Summary, error) {
	runID := uuid.NewString()
	log := r.Log.WithField("run_id", runID)
	summary := report.New(runID, r.Clock.Now())

	set, err := r.Catalog.BackupSet(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read database catalog")
	}

	log.WithFields(logrus.Fields{
		"databases": len(set.Databases),
		"excluded":  len(set.Skipped),
	}).Info("Starting backup run")
	if len(set.Skipped) > 0 {
		log.WithField("skipped", set.Skipped).Debug("Excluded databases")
	}
	summary.AddSkipped(set.Skipped)

	summary.AddBackups(r.Backups.BackupAll(ctx, runID, set.Databases))

	if ctx.Err() == nil {
		res, err := r.Sweeper.Sweep(ctx)
		if err != nil {
			log.WithError(err).Error("Retention sweep failed")
		}
		summary.AddSweep(res, err)
	}

	summary.Finish(r.Clock.Now())
	if r.Metrics != nil {
		r.Metrics.LastRunTimestamp.Set(float64(summary.FinishedAt.Unix()))
	}

	log.WithFields(logrus.Fields{
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"skipped":   summary.Skipped,
	}).Info("Backup run finished")

	return summary, ctx.Err()
}
