package backup

import (
	"fmt"
	"strings"
	"time"
)

const (
	// TimestampLayout is the timestamp prefix of every dump filename
	TimestampLayout = "20060102-150405"

	sqlExt = ".sql"
	gzExt  = ".gz"

	// a filename is TimestampLayout, one separator byte, then the database name
	nameOffset = len(TimestampLayout) + 1
)

// DumpFilename returns the name of the dump file for db taken at takenAt
func DumpFilename(takenAt time.Time, db string, compressed bool) string {
	name := fmt.Sprintf("%s_%s%s", takenAt.Format(TimestampLayout), db, sqlExt)
	if compressed {
		name += gzExt
	}
	return name
}

// ParseDumpFilename recovers the database name and taken-at time from a dump
// filename by fixed offsets: year 0-3, month 4-5, day 6-7, hour 9-10, minute 11-12,
// second 13-14, name from 16 with a trailing .gz and then .sql removed.
func ParseDumpFilename(filename string, loc *time.Location) (string, time.Time, error) {
	if len(filename) <= nameOffset {
		return "", time.Time{}, fmt.Errorf("filename %q is too short to be a dump", filename)
	}

	takenAt, err := time.ParseInLocation(TimestampLayout, filename[:len(TimestampLayout)], loc)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("filename %q has no dump timestamp: %w", filename, err)
	}

	name := strings.TrimSuffix(filename[nameOffset:], gzExt)
	name = strings.TrimSuffix(name, sqlExt)
	if name == "" {
		return "", time.Time{}, fmt.Errorf("filename %q has no database name", filename)
	}

	return name, takenAt, nil
}
