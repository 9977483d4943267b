// Package report builds the end-of-run summary
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/supporttools/sqlsweep/pkg/backup"
	"github.com/supporttools/sqlsweep/pkg/storage/local"
)

// Output formats
const (
	FormatText = "text"
	FormatYAML = "yaml"
)

// DatabaseResult is one database's line in the summary
type DatabaseResult struct {
	Database string `yaml:"database"`
	File     string `yaml:"file,omitempty"`
	Status   string `yaml:"status"`
	Size     int64  `yaml:"size"`
	Duration string `yaml:"duration"`
	Error    string `yaml:"error,omitempty"`
	Recorded bool   `yaml:"recorded"`
	Mirrored *bool  `yaml:"mirrored,omitempty"`
}

// SweepSummary describes the retention sweep
type SweepSummary struct {
	Enabled bool     `yaml:"enabled"`
	Scanned int      `yaml:"scanned"`
	Deleted []string `yaml:"deleted,omitempty"`
	Failed  []string `yaml:"failed,omitempty"`
	Error   string   `yaml:"error,omitempty"`
}

// Summary is the final observable output of a run
type Summary struct {
	RunID      string           `yaml:"run_id"`
	StartedAt  time.Time        `yaml:"started_at"`
	FinishedAt time.Time        `yaml:"finished_at"`
	Succeeded  int              `yaml:"succeeded"`
	Failed     int              `yaml:"failed"`
	Skipped    int              `yaml:"skipped"`
	Excluded   []string         `yaml:"excluded,omitempty"`
	Databases  []DatabaseResult `yaml:"databases"`
	Sweep      SweepSummary     `yaml:"sweep"`
}

// New starts a summary for a run
func New(runID string, startedAt time.Time) *Summary {
	return &Summary{RunID: runID, StartedAt: startedAt}
}

// AddSkipped records databases present on the server but excluded
func (s *Summary) AddSkipped(names []string) {
	s.Excluded = append(s.Excluded, names...)
	s.Skipped = len(s.Excluded)
}

// AddBackups records the per-database dump results
func (s *Summary) AddBackups(results []backup.Result) {
	for _, r := range results {
		line := DatabaseResult{
			Database: r.Database,
			File:     r.Path,
			Status:   string(r.Status),
			Size:     r.Size,
			Duration: r.Duration.Round(time.Millisecond).String(),
			Recorded: r.RecordErr == nil,
		}

		var errs []string
		if r.Err != nil {
			errs = append(errs, r.Err.Error())
		}
		if r.RecordErr != nil {
			errs = append(errs, "history: "+r.RecordErr.Error())
		}
		if r.Status == backup.StatusSuccess {
			mirrored := r.UploadErr == nil
			line.Mirrored = &mirrored
			if r.UploadErr != nil {
				errs = append(errs, "mirror: "+r.UploadErr.Error())
			}
		}
		line.Error = strings.Join(errs, "; ")

		if r.OK() {
			s.Succeeded++
		} else {
			s.Failed++
		}
		s.Databases = append(s.Databases, line)
	}
}

// AddSweep records the retention sweep outcome; err is a failure to list the directory
func (s *Summary) AddSweep(res *local.SweepResult, err error) {
	if err != nil {
		s.Sweep.Enabled = true
		s.Sweep.Error = err.Error()
	}
	if res == nil {
		return
	}

	s.Sweep.Enabled = !res.Skipped
	s.Sweep.Scanned = res.Scanned
	for _, d := range res.Deleted {
		s.Sweep.Deleted = append(s.Sweep.Deleted, d.Path)
	}
	for path := range res.Failed {
		s.Sweep.Failed = append(s.Sweep.Failed, path)
	}
}

// Finish stamps the end of the run
func (s *Summary) Finish(t time.Time) {
	s.FinishedAt = t
}

// Render writes the summary as text or YAML
func (s *Summary) Render(w io.Writer, format string) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("failed to encode summary: %w", err)
		}
		return enc.Close()
	case FormatText, "":
		return s.renderText(w)
	default:
		return fmt.Errorf("unknown summary format %q", format)
	}
}

func (s *Summary) renderText(w io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Backup run %s finished in %s\n", s.RunID, s.FinishedAt.Sub(s.StartedAt).Round(time.Second))
	fmt.Fprintf(&b, "  succeeded: %d  failed: %d  skipped: %d\n", s.Succeeded, s.Failed, s.Skipped)

	for _, d := range s.Databases {
		fmt.Fprintf(&b, "  %-24s %-16s %10s", d.Database, d.Status, humanize.Bytes(uint64(d.Size)))
		if d.Error != "" {
			fmt.Fprintf(&b, "  %s", d.Error)
		}
		b.WriteString("\n")
	}

	switch {
	case s.Sweep.Error != "":
		fmt.Fprintf(&b, "  retention: failed: %s\n", s.Sweep.Error)
	case !s.Sweep.Enabled:
		b.WriteString("  retention: disabled\n")
	default:
		fmt.Fprintf(&b, "  retention: scanned %d, deleted %d", s.Sweep.Scanned, len(s.Sweep.Deleted))
		if len(s.Sweep.Failed) > 0 {
			fmt.Fprintf(&b, ", %d could not be removed", len(s.Sweep.Failed))
		}
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}
