package eligibility

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/ehr/eligibility/internal/platform/x12"
)

// ExternalRecord is the patient as the external system of record knows
// them, for comparison against a parsed 271.
type ExternalRecord struct {
	FirstName   string
	LastName    string
	DateOfBirth time.Time
	Gender      string
	MemberID    string
	Street      string
	City        string
}

// Finding is one field-level discrepancy between the external record
// and the eligibility response.
type Finding struct {
	Field    string       `json:"field"`
	Severity x12.Severity `json:"severity"`
	External string       `json:"external"`
	Returned string       `json:"returned"`
	Message  string       `json:"message"`
}

// Reconciliation is the structured diff plus the prioritized actions.
type Reconciliation struct {
	Findings []Finding `json:"findings,omitempty"`
	Actions  []string  `json:"actions,omitempty"`
}

// Reconciler compares parsed responses against external records.
type Reconciler struct {
	// SimilarityThreshold escalates name/address mismatches whose
	// normalized Levenshtein ratio falls below it.
	SimilarityThreshold float64
}

// NewReconciler returns a Reconciler with the observed 0.8 threshold.
func NewReconciler() *Reconciler {
	return &Reconciler{SimilarityThreshold: 0.8}
}

// Reconcile diffs the external record against the check result.
// Identity-bearing mismatches (DOB, member ID, low-similarity name) are
// CRITICAL; moderate mismatches and missing-but-available data are
// WARNING; cosmetic differences are INFO.
func (r *Reconciler) Reconcile(ext ExternalRecord, result *CheckResult) Reconciliation {
	var rec Reconciliation
	if result == nil || result.Response == nil {
		return rec
	}
	resp := result.Response

	rec.compareName(r, "name",
		ext.FirstName+" "+ext.LastName,
		strings.TrimSpace(resp.Patient.FirstName+" "+resp.Patient.LastName))

	if !ext.DateOfBirth.IsZero() && resp.Patient.DateOfBirth != "" {
		extDOB := ext.DateOfBirth.Format("2006-01-02")
		if extDOB != resp.Patient.DateOfBirth {
			rec.add(Finding{
				Field:    "date_of_birth",
				Severity: x12.SeverityCritical,
				External: extDOB,
				Returned: resp.Patient.DateOfBirth,
				Message:  "date of birth does not match the payer's record",
			})
		}
	}

	if ext.MemberID != "" && resp.Patient.MemberID != "" {
		if !strings.EqualFold(strings.TrimSpace(ext.MemberID), strings.TrimSpace(resp.Patient.MemberID)) {
			rec.add(Finding{
				Field:    "member_id",
				Severity: x12.SeverityCritical,
				External: ext.MemberID,
				Returned: resp.Patient.MemberID,
				Message:  "member ID does not match the payer's record",
			})
		}
	}

	if ext.Gender != "" && resp.Patient.Gender != "" && !strings.EqualFold(ext.Gender, resp.Patient.Gender) {
		rec.add(Finding{
			Field:    "gender",
			Severity: x12.SeverityWarning,
			External: ext.Gender,
			Returned: resp.Patient.Gender,
			Message:  "gender differs from the payer's record",
		})
	}

	if ext.Street != "" && resp.Patient.Address != nil && resp.Patient.Address.Street != "" {
		rec.compareAddress(r, ext.Street, resp.Patient.Address.Street)
	}

	if ext.MemberID == "" && resp.Patient.MemberID != "" {
		rec.add(Finding{
			Field:    "member_id",
			Severity: x12.SeverityWarning,
			External: "",
			Returned: resp.Patient.MemberID,
			Message:  "payer returned a member ID missing from the local record",
		})
	}

	if resp.Coverage.Expired {
		rec.add(Finding{
			Field:    "coverage",
			Severity: x12.SeverityCritical,
			Returned: resp.Coverage.End,
			Message:  "coverage period has ended",
		})
	}

	rec.buildActions()
	return rec
}

func (rec *Reconciliation) compareName(r *Reconciler, field, external, returned string) {
	external = normalizeName(external)
	returned = normalizeName(returned)
	if external == "" || returned == "" || external == returned {
		return
	}
	ratio := similarity(external, returned)
	sev := x12.SeverityInfo
	msg := "name differs cosmetically from the payer's record"
	if ratio < r.SimilarityThreshold {
		sev = x12.SeverityCritical
		msg = fmt.Sprintf("name similarity %.2f is below threshold; possible identity mismatch", ratio)
	}
	rec.add(Finding{Field: field, Severity: sev, External: external, Returned: returned, Message: msg})
}

func (rec *Reconciliation) compareAddress(r *Reconciler, external, returned string) {
	external = normalizeName(external)
	returned = normalizeName(returned)
	if external == "" || returned == "" || external == returned {
		return
	}
	sev := x12.SeverityInfo
	msg := "address differs cosmetically from the payer's record"
	if similarity(external, returned) < r.SimilarityThreshold {
		sev = x12.SeverityWarning
		msg = "address differs substantially from the payer's record"
	}
	rec.add(Finding{Field: "address", Severity: sev, External: external, Returned: returned, Message: msg})
}

func (rec *Reconciliation) add(f Finding) {
	rec.Findings = append(rec.Findings, f)
}

// buildActions orders the recommended actions: coverage-expired and
// identity mismatches always rank above cosmetic findings.
func (rec *Reconciliation) buildActions() {
	rank := func(f Finding) int {
		switch {
		case f.Field == "coverage":
			return 0
		case f.Severity == x12.SeverityCritical:
			return 1
		case f.Severity == x12.SeverityWarning:
			return 2
		default:
			return 3
		}
	}
	ordered := make([]Finding, len(rec.Findings))
	copy(ordered, rec.Findings)
	sort.SliceStable(ordered, func(i, j int) bool { return rank(ordered[i]) < rank(ordered[j]) })

	for _, f := range ordered {
		switch {
		case f.Field == "coverage":
			rec.Actions = append(rec.Actions, "Coverage has expired; verify enrollment with the payer before scheduling.")
		case f.Severity == x12.SeverityCritical:
			rec.Actions = append(rec.Actions, fmt.Sprintf("Resolve %s mismatch before billing (%s).", f.Field, f.Message))
		case f.Severity == x12.SeverityWarning:
			rec.Actions = append(rec.Actions, fmt.Sprintf("Review %s: %s", f.Field, f.Message))
		default:
			rec.Actions = append(rec.Actions, fmt.Sprintf("Optional: update %s in the local record.", f.Field))
		}
	}
}

// similarity is a normalized edit-distance ratio in [0,1]: 1 means
// identical, 0 means nothing in common.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

func normalizeName(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}
