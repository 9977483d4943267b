// Package catalog lists the databases on the server and derives the set to back up
package catalog

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// ExclusionLister returns the names that must never be backed up
type ExclusionLister interface {
	ListExcluded(ctx context.Context) ([]string, error)
}

// Set is the outcome of comparing the server catalog with the exclusion table
type Set struct {
	All       []string
	Excluded  []string
	Databases []string // to back up, in catalog order
	Skipped   []string // present on the server and excluded
}

// Reader runs the two catalog queries over an open connection
type Reader struct {
	db         *sql.DB
	exclusions ExclusionLister
}

// NewReader creates a Reader
func NewReader(db *sql.DB, exclusions ExclusionLister) *Reader {
	return &Reader{db: db, exclusions: exclusions}
}

// ListDatabases returns every database known to the server, in server order
func (r *Reader) ListDatabases(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SHOW DATABASES")
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch databases")
	}
	defer rows.Close()

	var databases []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "failed to scan database name")
		}
		databases = append(databases, name)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating database rows")
	}

	return databases, nil
}

// BackupSet queries the catalog and the exclusion table and returns their difference
func (r *Reader) BackupSet(ctx context.Context) (*Set, error) {
	all, err := r.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}

	excluded, err := r.exclusions.ListExcluded(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch excluded databases")
	}

	databases, skipped := Difference(all, excluded)
	return &Set{
		All:       all,
		Excluded:  excluded,
		Databases: databases,
		Skipped:   skipped,
	}, nil
}

// Difference returns the names in all that are not in excluded, and those that are.
// Matching is exact; the order of all is preserved.
func Difference(all, excluded []string) (keep, skipped []string) {
	excludeMap := make(map[string]bool, len(excluded))
	for _, name := range excluded {
		excludeMap[name] = true
	}

	for _, name := range all {
		if excludeMap[name] {
			skipped = append(skipped, name)
			continue
		}
		keep = append(keep, name)
	}
	return keep, skipped
}
