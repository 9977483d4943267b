package catalog

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticExclusions struct {
	names []string
	err   error
}

func (s staticExclusions) ListExcluded(context.Context) ([]string, error) {
	return s.names, s.err
}

func TestDifference(t *testing.T) {
	tests := []struct {
		name     string
		all      []string
		excluded []string
		want     []string
	}{
		{"basic", []string{"A", "B", "C", "D"}, []string{"B", "D"}, []string{"A", "C"}},
		{"shuffled inputs", []string{"D", "C", "B", "A"}, []string{"D", "B"}, []string{"C", "A"}},
		{"no exclusions", []string{"A", "B"}, nil, []string{"A", "B"}},
		{"exclusion not on server", []string{"A"}, []string{"Z"}, []string{"A"}},
		{"case sensitive", []string{"Shop", "shop"}, []string{"shop"}, []string{"Shop"}},
		{"everything excluded", []string{"A"}, []string{"A"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Difference(tt.all, tt.excluded)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDifferenceIsOrderIndependentAsSet(t *testing.T) {
	orders := [][]string{
		{"A", "B", "C", "D"},
		{"C", "A", "D", "B"},
		{"D", "C", "B", "A"},
	}
	for _, all := range orders {
		got, skipped := Difference(all, []string{"D", "B"})
		sort.Strings(got)
		sort.Strings(skipped)
		assert.Equal(t, []string{"A", "C"}, got)
		assert.Equal(t, []string{"B", "D"}, skipped)
	}
}

func TestBackupSet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SHOW DATABASES").
		WillReturnRows(sqlmock.NewRows([]string{"Database"}).
			AddRow("information_schema").
			AddRow("shop").
			AddRow("system").
			AddRow("wiki"))

	reader := NewReader(db, staticExclusions{names: []string{"information_schema", "system"}})

	set, err := reader.BackupSet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"shop", "wiki"}, set.Databases)
	assert.Equal(t, []string{"information_schema", "system"}, set.Skipped)
	assert.Len(t, set.All, 4)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBackupSetCatalogError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SHOW DATABASES").WillReturnError(errors.New("gone away"))

	_, err = NewReader(db, staticExclusions{}).BackupSet(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch databases")
}

func TestBackupSetExclusionError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SHOW DATABASES").
		WillReturnRows(sqlmock.NewRows([]string{"Database"}).AddRow("shop"))

	_, err = NewReader(db, staticExclusions{err: errors.New("no such table")}).BackupSet(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch excluded databases")
}
