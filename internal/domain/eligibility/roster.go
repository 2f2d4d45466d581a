package eligibility

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"
)

// RosterEntry is one patient row from a bulk-verification roster.
type RosterEntry struct {
	Row      int
	Query    PatientQuery
	ParseErr error
}

// RosterResult pairs a roster entry with its check outcome.
type RosterResult struct {
	Entry  RosterEntry
	Result *CheckResult
	Err    error
}

// rosterDateLayouts are the DOB formats accepted in roster cells.
var rosterDateLayouts = []string{"2006-01-02", "01/02/2006", "1/2/2006", "20060102"}

// ReadRoster loads patient rows from the first sheet of an .xlsx
// roster. Expected columns: first name, last name, date of birth,
// optional member ID. A header row is skipped when the third column is
// not a parseable date.
func ReadRoster(path string) ([]RosterEntry, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("eligibility: open roster: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("eligibility: roster has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("eligibility: read roster rows: %w", err)
	}

	var entries []RosterEntry
	for i, row := range rows {
		if len(row) < 3 {
			continue
		}
		first := strings.TrimSpace(row[0])
		last := strings.TrimSpace(row[1])
		dobRaw := strings.TrimSpace(row[2])
		if first == "" || last == "" {
			continue
		}

		dob, err := parseRosterDate(dobRaw)
		if err != nil {
			if i == 0 {
				continue // header row
			}
			entries = append(entries, RosterEntry{
				Row:      i + 1,
				ParseErr: fmt.Errorf("row %d: bad date of birth %q", i+1, dobRaw),
			})
			continue
		}

		entry := RosterEntry{
			Row: i + 1,
			Query: PatientQuery{
				FirstName:   first,
				LastName:    last,
				DateOfBirth: dob,
			},
		}
		if len(row) > 3 {
			entry.Query.MemberID = strings.TrimSpace(row[3])
		}
		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("eligibility: roster contained no usable rows")
	}
	return entries, nil
}

func parseRosterDate(s string) (time.Time, error) {
	for _, layout := range rosterDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// BulkCheck runs one check per roster entry against the same payer,
// fanning out across a bounded worker pool. Checks are independent and
// uncorrelated; each gets a fresh control number and payload UUID.
// Results come back in roster order.
func (s *Service) BulkCheck(ctx context.Context, entries []RosterEntry, payerID string, concurrency int) []RosterResult {
	if concurrency < 1 {
		concurrency = 4
	}

	results := make([]RosterResult, len(entries))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, entry := range entries {
		if entry.ParseErr != nil {
			results[i] = RosterResult{Entry: entry, Err: entry.ParseErr}
			continue
		}
		wg.Add(1)
		go func(i int, entry RosterEntry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := s.Check(ctx, entry.Query, payerID)
			results[i] = RosterResult{Entry: entry, Result: res, Err: err}
		}(i, entry)
	}
	wg.Wait()
	return results
}
