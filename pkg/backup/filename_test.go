package backup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpFilename(t *testing.T) {
	takenAt := time.Date(2024, 1, 15, 9, 30, 0, 0, time.Local)

	assert.Equal(t, "20240115-093000_mydb.sql.gz", DumpFilename(takenAt, "mydb", true))
	assert.Equal(t, "20240115-093000_mydb.sql", DumpFilename(takenAt, "mydb", false))
}

func TestParseDumpFilename(t *testing.T) {
	tests := []struct {
		filename string
		wantName string
		wantTime time.Time
	}{
		{"20240115-093000_mydb.sql.gz", "mydb", time.Date(2024, 1, 15, 9, 30, 0, 0, time.Local)},
		{"20240115-093000_mydb.sql", "mydb", time.Date(2024, 1, 15, 9, 30, 0, 0, time.Local)},
		{"20231231-235959_my_db_2.sql.gz", "my_db_2", time.Date(2023, 12, 31, 23, 59, 59, 0, time.Local)},
		{"20240115-093000_notes.txt", "notes.txt", time.Date(2024, 1, 15, 9, 30, 0, 0, time.Local)},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			name, takenAt, err := ParseDumpFilename(tt.filename, time.Local)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, name)
			assert.True(t, tt.wantTime.Equal(takenAt), "got %v", takenAt)
		})
	}
}

func TestParseDumpFilenameRoundTrip(t *testing.T) {
	takenAt := time.Date(2025, 6, 1, 0, 0, 7, 0, time.Local)

	name, parsed, err := ParseDumpFilename(DumpFilename(takenAt, "wiki", true), time.Local)
	require.NoError(t, err)
	assert.Equal(t, "wiki", name)
	assert.True(t, takenAt.Equal(parsed))
}

func TestParseDumpFilenameRejectsForeignFiles(t *testing.T) {
	for _, filename := range []string{"", "README", "lost+found", "2024-01-15_shop.sql", "20240115-093000_.sql.gz"} {
		_, _, err := ParseDumpFilename(filename, time.Local)
		assert.Error(t, err, filename)
	}
}
