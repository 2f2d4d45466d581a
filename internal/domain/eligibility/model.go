// Package eligibility runs X12 270/271 eligibility checks end to end:
// build the inquiry, submit it through a clearinghouse transport, parse
// the response, and interpret the benefits.
package eligibility

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/eligibility/internal/domain/payer"
	"github.com/ehr/eligibility/internal/platform/x12"
)

// PatientQuery is the caller-supplied patient identity for one check.
type PatientQuery struct {
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	DateOfBirth time.Time `json:"date_of_birth,omitempty"`
	Gender      string    `json:"gender,omitempty"`
	SSN         string    `json:"ssn,omitempty"`
	MemberID    string    `json:"member_id,omitempty"`
	GroupNumber string    `json:"group_number,omitempty"`
	ServiceDate time.Time `json:"service_date,omitempty"`
}

// Validate applies the caller-facing input checks for the given payer's
// capabilities. The core builders assume validated input.
func (q PatientQuery) Validate(profile *payer.Profile) error {
	if strings.TrimSpace(q.FirstName) == "" || strings.TrimSpace(q.LastName) == "" {
		return fmt.Errorf("eligibility: patient first and last name are required")
	}
	if q.DateOfBirth.IsZero() && q.MemberID == "" && !profile.AllowsNameOnly {
		return fmt.Errorf("eligibility: %s does not support name-only lookup; provide a date of birth or member ID", profile.Name)
	}
	if !q.DateOfBirth.IsZero() {
		if q.DateOfBirth.After(time.Now()) {
			return fmt.Errorf("eligibility: date of birth %s is in the future", q.DateOfBirth.Format("2006-01-02"))
		}
		if q.DateOfBirth.Year() < 1900 {
			return fmt.Errorf("eligibility: implausible date of birth %s", q.DateOfBirth.Format("2006-01-02"))
		}
	}
	if q.SSN != "" {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, q.SSN)
		if len(digits) != 9 {
			return fmt.Errorf("eligibility: SSN must be 9 digits")
		}
	}
	return nil
}

// ProviderIdentity is the requesting provider or organization.
type ProviderIdentity struct {
	NPI   string `json:"npi"`
	Name  string `json:"name"`
	TaxID string `json:"tax_id,omitempty"`
	// EntityOverride bypasses the legal-entity-suffix heuristic for
	// callers that know the correct classification.
	EntityOverride x12.EntityType `json:"-"`
}

// FinancialInfo is the normalized financial-responsibility model
// derived from EB segments.
type FinancialInfo struct {
	DeductibleTotal     *float64 `json:"deductible_total,omitempty"`
	DeductibleRemaining *float64 `json:"deductible_remaining,omitempty"`
	DeductibleMet       *float64 `json:"deductible_met,omitempty"`

	OutOfPocketTotal     *float64 `json:"out_of_pocket_total,omitempty"`
	OutOfPocketRemaining *float64 `json:"out_of_pocket_remaining,omitempty"`
	OutOfPocketMet       *float64 `json:"out_of_pocket_met,omitempty"`

	CopayByService       map[string]float64 `json:"copay_by_service,omitempty"`
	CoinsuranceByService map[string]float64 `json:"coinsurance_by_service,omitempty"`

	// InNetwork defaults to true when the payer does not state network
	// status. That is a deliberate optimistic default, not an
	// inference; NetworkStatusStated tells consumers which case this is.
	InNetwork           bool `json:"in_network"`
	NetworkStatusStated bool `json:"network_status_stated"`
}

// CoverageClassification is the plan-type model derived from the
// response and the payer category.
type CoverageClassification struct {
	PlanType         string `json:"plan_type"`
	ProgramName      string `json:"program_name,omitempty"`
	ManagedCare      bool   `json:"managed_care"`
	ManagedCareName  string `json:"managed_care_name,omitempty"`
	ManagedCarePhone string `json:"managed_care_phone,omitempty"`
}

// CheckResult is the complete outcome of one eligibility check.
type CheckResult struct {
	ID            uuid.UUID              `json:"id"`
	PayerID       string                 `json:"payer_id"`
	PayerName     string                 `json:"payer_name"`
	ControlNumber string                 `json:"control_number"`
	PayloadID     string                 `json:"payload_id"`
	Response      *x12.Response          `json:"response"`
	Financial     FinancialInfo          `json:"financial"`
	Plan          CoverageClassification `json:"plan"`
	Raw270        string                 `json:"-"`
	Raw271        string                 `json:"-"`
	CheckedAt     time.Time              `json:"checked_at"`
}

// Warnings aggregates parser and interpreter warnings.
func (r *CheckResult) Warnings() []x12.Warning {
	if r.Response == nil {
		return nil
	}
	return r.Response.Warnings
}
