// Package metrics provides Prometheus metrics for backup runs.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/sirupsen/logrus"
)

// JobName is the Pushgateway job label
const JobName = "sqlsweep"

// Metrics holds every collector on its own registry
type Metrics struct {
	Registry *prometheus.Registry

	// BackupCount tracks dump attempts by outcome
	BackupCount *prometheus.CounterVec

	// BackupDuration measures time taken to dump one database
	BackupDuration *prometheus.HistogramVec

	// BackupSize tracks the size of the latest dump file in bytes
	BackupSize *prometheus.GaugeVec

	// RetentionDeletes counts dump files removed by the retention sweep
	RetentionDeletes *prometheus.CounterVec

	// LastBackupTimestamp records when each database was last dumped successfully
	LastBackupTimestamp *prometheus.GaugeVec

	// S3UploadCount tracks mirror uploads by outcome
	S3UploadCount *prometheus.CounterVec

	// S3UploadDuration tracks how long each mirror upload takes
	S3UploadDuration *prometheus.HistogramVec

	// LastRunTimestamp records when the last run finished
	LastRunTimestamp prometheus.Gauge
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		BackupCount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mysql_backup_total",
			Help: "The total number of MySQL backups attempted",
		}, []string{"database", "status"}),
		BackupDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mysql_backup_duration_seconds",
			Help:    "Time taken to perform MySQL backup",
			Buckets: prometheus.DefBuckets,
		}, []string{"database"}),
		BackupSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mysql_backup_size_bytes",
			Help: "Size of the backup file in bytes",
		}, []string{"database"}),
		RetentionDeletes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mysql_backup_deletions_total",
			Help: "The total number of backups deleted by retention policy",
		}, []string{"storage"}),
		LastBackupTimestamp: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mysql_backup_last_timestamp",
			Help: "Timestamp of the last successful backup",
		}, []string{"database"}),
		S3UploadCount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mysql_backup_s3_upload_total",
			Help: "The total number of S3 uploads performed",
		}, []string{"database", "status"}),
		S3UploadDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mysql_backup_s3_upload_duration_seconds",
			Help:    "Time taken to upload backup to S3",
			Buckets: prometheus.DefBuckets,
		}, []string{"database"}),
		LastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mysql_backup_last_run_timestamp",
			Help: "Timestamp of the last completed backup run",
		}),
	}
}

// Push sends the registry to a Pushgateway
func (m *Metrics) Push(ctx context.Context, url string) error {
	return push.New(url, JobName).Gatherer(m.Registry).PushContext(ctx)
}

// Handler returns the HTTP handler for the metrics and health endpoints
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// Serve runs the metrics server until ctx is cancelled
func (m *Metrics) Serve(ctx context.Context, port string, log logrus.FieldLogger) error {
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      m.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.WithField("port", port).Info("Starting metrics server")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
