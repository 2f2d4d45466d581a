package eligibility

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

func writeRoster(t *testing.T, rows [][]string) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		for j, cell := range row {
			name, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := f.SetCellValue("Sheet1", name, cell); err != nil {
				t.Fatalf("set cell: %v", err)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "roster.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save roster: %v", err)
	}
	return path
}

func TestReadRoster(t *testing.T) {
	path := writeRoster(t, [][]string{
		{"First Name", "Last Name", "DOB", "Member ID"},
		{"Maria", "Lopez", "1992-07-04", "0012345678"},
		{"John", "Smith", "7/4/1985"},
		{"Bad", "Date", "not-a-date"},
		{"Short", "Row"},
		{"Compact", "Layout", "19900101"},
	})

	entries, err := ReadRoster(path)
	if err != nil {
		t.Fatalf("ReadRoster() error: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries (header and short row skipped), got %d", len(entries))
	}

	first := entries[0]
	if first.Row != 2 {
		t.Errorf("first entry row = %d", first.Row)
	}
	if first.Query.FirstName != "Maria" || first.Query.LastName != "Lopez" {
		t.Errorf("first entry = %+v", first.Query)
	}
	if !first.Query.DateOfBirth.Equal(time.Date(1992, 7, 4, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("first entry DOB = %v", first.Query.DateOfBirth)
	}
	if first.Query.MemberID != "0012345678" {
		t.Errorf("first entry member ID = %q", first.Query.MemberID)
	}

	if entries[1].Query.DateOfBirth.Year() != 1985 {
		t.Errorf("slash-format DOB = %v", entries[1].Query.DateOfBirth)
	}

	bad := entries[2]
	if bad.Row != 4 || bad.ParseErr == nil {
		t.Errorf("bad-date entry = %+v", bad)
	}

	if entries[3].Query.DateOfBirth.Year() != 1990 {
		t.Errorf("compact-format DOB = %v", entries[3].Query.DateOfBirth)
	}
}

func TestReadRoster_NoUsableRows(t *testing.T) {
	path := writeRoster(t, [][]string{
		{"First Name", "Last Name", "DOB"},
		{"", "", ""},
	})
	if _, err := ReadRoster(path); err == nil {
		t.Error("expected error for roster with no usable rows")
	}
}

func TestReadRoster_MissingFile(t *testing.T) {
	if _, err := ReadRoster(filepath.Join(t.TempDir(), "absent.xlsx")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestBulkCheck(t *testing.T) {
	transport := &fakeTransport{response: wrapX12(enrolled271())}
	svc := testService(t, transport)

	entries := []RosterEntry{
		{Row: 2, Query: testQuery()},
		{Row: 3, ParseErr: errors.New("row 3: bad date of birth")},
		{Row: 4, Query: PatientQuery{
			FirstName:   "John",
			LastName:    "Smith",
			DateOfBirth: time.Date(1985, 7, 4, 0, 0, 0, 0, time.UTC),
		}},
	}

	results := svc.BulkCheck(context.Background(), entries, "UTMCD", 2)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	for i, r := range results {
		if r.Entry.Row != entries[i].Row {
			t.Errorf("result %d out of roster order: row %d", i, r.Entry.Row)
		}
	}

	if results[0].Err != nil || results[0].Result == nil || !results[0].Result.Response.Enrolled {
		t.Errorf("result 0 = %+v, err %v", results[0].Result, results[0].Err)
	}
	if results[1].Err == nil || results[1].Result != nil {
		t.Errorf("parse-error entry must be surfaced without a check: %+v", results[1])
	}
	if results[2].Err != nil {
		t.Errorf("result 2 err = %v", results[2].Err)
	}

	if len(transport.sent) != 2 {
		t.Errorf("expected 2 envelopes sent, got %d", len(transport.sent))
	}
}

func TestBulkCheck_DefaultConcurrency(t *testing.T) {
	transport := &fakeTransport{response: wrapX12(enrolled271())}
	svc := testService(t, transport)

	results := svc.BulkCheck(context.Background(), []RosterEntry{{Row: 2, Query: testQuery()}}, "UTMCD", 0)
	if len(results) != 1 || results[0].Err != nil {
		t.Errorf("results = %+v", results)
	}
}
