package eligibility

import (
	"strings"
	"testing"
	"time"

	"github.com/ehr/eligibility/internal/platform/x12"
)

func reconcileResult(resp *x12.Response) *CheckResult {
	return &CheckResult{Response: resp}
}

func findingFor(rec Reconciliation, field string) (Finding, bool) {
	for _, f := range rec.Findings {
		if f.Field == field {
			return f, true
		}
	}
	return Finding{}, false
}

func TestReconcile_CleanMatch(t *testing.T) {
	resp := &x12.Response{
		Patient: x12.PatientInfo{
			FirstName:   "MARIA",
			LastName:    "LOPEZ",
			MemberID:    "0012345678",
			DateOfBirth: "1992-07-04",
			Gender:      "F",
		},
		Coverage: x12.CoveragePeriod{Active: true},
	}
	ext := ExternalRecord{
		FirstName:   "Maria",
		LastName:    "Lopez",
		DateOfBirth: time.Date(1992, 7, 4, 0, 0, 0, 0, time.UTC),
		Gender:      "f",
		MemberID:    "0012345678",
	}

	rec := NewReconciler().Reconcile(ext, reconcileResult(resp))
	if len(rec.Findings) != 0 {
		t.Errorf("expected no findings, got %+v", rec.Findings)
	}
	if len(rec.Actions) != 0 {
		t.Errorf("expected no actions, got %v", rec.Actions)
	}
}

func TestReconcile_NameSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		external string
		returned string
		severity x12.Severity
	}{
		{"one letter off", "Maria Lopez", "MARIA LOPES", x12.SeverityInfo},
		{"different person", "Maria Lopez", "JOHN SMITH", x12.SeverityCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, last, _ := strings.Cut(tt.returned, " ")
			resp := &x12.Response{
				Patient:  x12.PatientInfo{FirstName: first, LastName: last},
				Coverage: x12.CoveragePeriod{Active: true},
			}
			extFirst, extLast, _ := strings.Cut(tt.external, " ")
			ext := ExternalRecord{FirstName: extFirst, LastName: extLast}

			rec := NewReconciler().Reconcile(ext, reconcileResult(resp))
			f, ok := findingFor(rec, "name")
			if !ok {
				t.Fatalf("expected a name finding, got %+v", rec.Findings)
			}
			if f.Severity != tt.severity {
				t.Errorf("severity = %s, want %s", f.Severity, tt.severity)
			}
		})
	}
}

func TestReconcile_IdentityMismatches(t *testing.T) {
	resp := &x12.Response{
		Patient: x12.PatientInfo{
			FirstName:   "MARIA",
			LastName:    "LOPEZ",
			MemberID:    "XYZ999",
			DateOfBirth: "1990-01-01",
			Gender:      "M",
		},
		Coverage: x12.CoveragePeriod{Active: true},
	}
	ext := ExternalRecord{
		FirstName:   "Maria",
		LastName:    "Lopez",
		DateOfBirth: time.Date(1992, 7, 4, 0, 0, 0, 0, time.UTC),
		Gender:      "F",
		MemberID:    "0012345678",
	}

	rec := NewReconciler().Reconcile(ext, reconcileResult(resp))

	dob, ok := findingFor(rec, "date_of_birth")
	if !ok || dob.Severity != x12.SeverityCritical {
		t.Errorf("date of birth finding = %+v", dob)
	}
	member, ok := findingFor(rec, "member_id")
	if !ok || member.Severity != x12.SeverityCritical {
		t.Errorf("member ID finding = %+v", member)
	}
	gender, ok := findingFor(rec, "gender")
	if !ok || gender.Severity != x12.SeverityWarning {
		t.Errorf("gender finding = %+v", gender)
	}
}

func TestReconcile_MissingLocalMemberID(t *testing.T) {
	resp := &x12.Response{
		Patient:  x12.PatientInfo{FirstName: "MARIA", LastName: "LOPEZ", MemberID: "0012345678"},
		Coverage: x12.CoveragePeriod{Active: true},
	}
	ext := ExternalRecord{FirstName: "Maria", LastName: "Lopez"}

	rec := NewReconciler().Reconcile(ext, reconcileResult(resp))
	f, ok := findingFor(rec, "member_id")
	if !ok {
		t.Fatalf("expected member_id finding, got %+v", rec.Findings)
	}
	if f.Severity != x12.SeverityWarning || f.Returned != "0012345678" {
		t.Errorf("finding = %+v", f)
	}
}

func TestReconcile_ExpiredCoverageRanksFirst(t *testing.T) {
	resp := &x12.Response{
		Patient:  x12.PatientInfo{FirstName: "MARIA", LastName: "LOPES"},
		Coverage: x12.CoveragePeriod{Expired: true, End: "2024-04-01"},
	}
	ext := ExternalRecord{FirstName: "Maria", LastName: "Lopez"}

	rec := NewReconciler().Reconcile(ext, reconcileResult(resp))

	if _, ok := findingFor(rec, "coverage"); !ok {
		t.Fatalf("expected coverage finding, got %+v", rec.Findings)
	}
	if len(rec.Actions) < 2 {
		t.Fatalf("expected multiple actions, got %v", rec.Actions)
	}
	if !strings.Contains(rec.Actions[0], "Coverage has expired") {
		t.Errorf("coverage action must rank first, got %v", rec.Actions)
	}
}

func TestReconcile_AddressComparison(t *testing.T) {
	tests := []struct {
		name     string
		external string
		returned string
		severity x12.Severity
	}{
		{"abbreviation difference", "742 Evergreen Terrace", "742 EVERGREEN TERR", x12.SeverityInfo},
		{"different street", "742 Evergreen Terrace", "1 MAIN ST", x12.SeverityWarning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &x12.Response{
				Patient: x12.PatientInfo{
					FirstName: "MARIA",
					LastName:  "LOPEZ",
					Address:   &x12.Address{Street: tt.returned},
				},
				Coverage: x12.CoveragePeriod{Active: true},
			}
			ext := ExternalRecord{FirstName: "Maria", LastName: "Lopez", Street: tt.external}

			rec := NewReconciler().Reconcile(ext, reconcileResult(resp))
			f, ok := findingFor(rec, "address")
			if !ok {
				t.Fatalf("expected address finding, got %+v", rec.Findings)
			}
			if f.Severity != tt.severity {
				t.Errorf("severity = %s, want %s", f.Severity, tt.severity)
			}
		})
	}
}

func TestReconcile_NilResult(t *testing.T) {
	rec := NewReconciler().Reconcile(ExternalRecord{FirstName: "A", LastName: "B"}, nil)
	if len(rec.Findings) != 0 || len(rec.Actions) != 0 {
		t.Errorf("nil result must produce an empty reconciliation: %+v", rec)
	}
}
