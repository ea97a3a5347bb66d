// Package ledger implements the incremental CSV output file: exclusive
// creation, recorded-id loading for append-only continuation, and
// one-row-at-a-time appends.
package ledger

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/t-okubo/repo-census/internal/domain"
)

// Header names every SummaryRow field, in the fixed output order.
var Header = []string{
	"repo_name",
	"repo_id",
	"repo_size",
	"last_3_weeks_commit_count",
	"last_52_weeks_commit_count",
	"contributor_count",
	"contributor_handles",
	"team_names",
}

const idColumn = "repo_id"

// CSV is the ledger over one output file path.
type CSV struct {
	path string
}

// NewCSV returns a ledger for the given output path. No file is touched
// until Create, RecordedIDs or Append is called.
func NewCSV(path string) *CSV {
	return &CSV{path: path}
}

// Create starts a new output file and writes the header row. Creation is
// exclusive: an existing file is never overwritten, and the returned error
// satisfies errors.Is(err, fs.ErrExist) in that case.
func (l *CSV) Create() error {
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		f.Close()
		return fmt.Errorf("write header to %s: %w", l.path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write header to %s: %w", l.path, err)
	}
	return f.Close()
}

// RecordedIDs reads the existing output file and returns the set of
// repository ids already present. A missing file returns an error satisfying
// errors.Is(err, fs.ErrNotExist), which is distinct from an existing file
// with no data rows (an empty set).
func (l *CSV) RecordedIDs() (map[int64]struct{}, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read output file %s: %w", l.path, err)
	}
	ids := make(map[int64]struct{})
	if len(records) == 0 {
		return ids, nil
	}

	idIndex := -1
	for i, name := range records[0] {
		if name == idColumn {
			idIndex = i
			break
		}
	}
	if idIndex < 0 {
		return nil, fmt.Errorf("output file %s has no %q column", l.path, idColumn)
	}

	for _, record := range records[1:] {
		if idIndex >= len(record) || record[idIndex] == "" {
			continue
		}
		id, err := strconv.ParseInt(record[idIndex], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("output file %s has malformed %s value %q: %w", l.path, idColumn, record[idIndex], err)
		}
		ids[id] = struct{}{}
	}
	return ids, nil
}

// Append writes exactly one row in header order. Each call is a
// self-contained open/write/flush/close cycle, so a crash mid-run loses at
// most the in-flight row.
func (l *CSV) Append(row domain.SummaryRow) error {
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file for append: %w", err)
	}
	w := csv.NewWriter(f)
	record := []string{
		row.RepoName,
		strconv.FormatInt(row.RepoID, 10),
		strconv.Itoa(row.RepoSize),
		strconv.Itoa(row.Last3WeeksCommits),
		strconv.Itoa(row.Last52WeekCommits),
		strconv.Itoa(row.ContributorCount),
		row.ContributorNames,
		row.TeamNames,
	}
	if err := w.Write(record); err != nil {
		f.Close()
		return fmt.Errorf("append row to %s: %w", l.path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("append row to %s: %w", l.path, err)
	}
	return f.Close()
}
