package report

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/supporttools/sqlsweep/pkg/backup"
	"github.com/supporttools/sqlsweep/pkg/storage/local"
)

var started = time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)

func sampleSummary() *Summary {
	s := New("run-1", started)
	s.AddSkipped([]string{"information_schema", "system"})
	s.AddBackups([]backup.Result{
		{Database: "shop", Path: "/b/20240115-093000_shop.sql.gz", Status: backup.StatusSuccess, Size: 2 * 1000 * 1000},
		{Database: "wiki", Path: "/b/20240115-093001_wiki.sql.gz", Status: backup.StatusToolFailure, Err: errors.New("exit 2")},
		{Database: "crm", Path: "/b/20240115-093002_crm.sql.gz", Status: backup.StatusSuccess, Size: 10, RecordErr: errors.New("insert failed")},
	})
	s.AddSweep(&local.SweepResult{
		Scanned: 4,
		Deleted: []local.Deletion{{Path: "/b/20231201-093000_shop.sql.gz"}},
		Failed:  map[string]error{},
	}, nil)
	s.Finish(started.Add(90 * time.Second))
	return s
}

func TestCounts(t *testing.T) {
	s := sampleSummary()

	assert.Equal(t, 1, s.Succeeded)
	assert.Equal(t, 2, s.Failed, "history failures count as failed")
	assert.Equal(t, 2, s.Skipped)
	require.Len(t, s.Databases, 3)
	assert.Equal(t, "history: insert failed", s.Databases[2].Error)
	assert.False(t, s.Databases[2].Recorded)
	assert.Nil(t, s.Databases[1].Mirrored)
}

func TestRenderText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleSummary().Render(&buf, FormatText))

	out := buf.String()
	assert.Contains(t, out, "Backup run run-1 finished in 1m30s")
	assert.Contains(t, out, "succeeded: 1  failed: 2  skipped: 2")
	assert.Contains(t, out, "2.0 MB")
	assert.Contains(t, out, "exit 2")
	assert.Contains(t, out, "retention: scanned 4, deleted 1")
}

func TestRenderYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleSummary().Render(&buf, FormatYAML))

	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.Equal(t, 1, decoded["succeeded"])
	assert.Len(t, decoded["databases"], 3)
}

func TestRenderUnknownFormat(t *testing.T) {
	assert.Error(t, sampleSummary().Render(&bytes.Buffer{}, "xml"))
}

func TestSweepDisabledAndFailed(t *testing.T) {
	s := New("run-2", started)
	s.AddSweep(&local.SweepResult{Skipped: true}, nil)
	var buf bytes.Buffer
	require.NoError(t, s.Render(&buf, FormatText))
	assert.Contains(t, buf.String(), "retention: disabled")

	s = New("run-3", started)
	s.AddSweep(nil, errors.New("permission denied"))
	buf.Reset()
	require.NoError(t, s.Render(&buf, FormatText))
	assert.Contains(t, buf.String(), "retention: failed: permission denied")
}
