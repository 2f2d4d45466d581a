package x12

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Severity grades a parse-anomaly warning.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
	SeverityInfo     Severity = "INFO"
)

// Warning is a non-fatal anomaly attached to an otherwise successful
// parse. Warnings never prevent a result from being returned.
type Warning struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
}

// Address is a paired N3/N4 street address.
type Address struct {
	Street string `json:"street,omitempty"`
	City   string `json:"city,omitempty"`
	State  string `json:"state,omitempty"`
	Zip    string `json:"zip,omitempty"`
}

// PatientInfo holds the subscriber demographics echoed in the 271.
type PatientInfo struct {
	LastName    string   `json:"last_name,omitempty"`
	FirstName   string   `json:"first_name,omitempty"`
	MiddleName  string   `json:"middle_name,omitempty"`
	MemberID    string   `json:"member_id,omitempty"`
	DateOfBirth string   `json:"date_of_birth,omitempty"` // 2006-01-02
	Gender      string   `json:"gender,omitempty"`
	Address     *Address `json:"address,omitempty"`
}

// PayerInfo identifies the responding payer.
type PayerInfo struct {
	Name  string `json:"name,omitempty"`
	ID    string `json:"id,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// CoveragePeriod is the plan period from DTP*291 with the computed
// active/expired flags.
type CoveragePeriod struct {
	Start   string `json:"start,omitempty"` // 2006-01-02
	End     string `json:"end,omitempty"`
	Active  bool   `json:"active"`
	Expired bool   `json:"expired"`
}

// KeyDates collects the single-date DTP qualifiers the payers use.
type KeyDates struct {
	EligibilityBegin string `json:"eligibility_begin,omitempty"` // DTP*346
	Effective        string `json:"effective,omitempty"`         // DTP*356
	Termination      string `json:"termination,omitempty"`       // DTP*290
	LastSeen         string `json:"last_seen,omitempty"`         // DTP*295
	Inquiry          string `json:"inquiry,omitempty"`           // DTP*472
}

// References holds the REF values keyed by qualifier.
type References struct {
	CaseNumber    string `json:"case_number,omitempty"`    // REF*3H
	AccountNumber string `json:"account_number,omitempty"` // REF*18
	GroupNumber   string `json:"group_number,omitempty"`   // REF*1L
	AlternateID   string `json:"alternate_id,omitempty"`   // REF*Q4
	PolicyNumber  string `json:"policy_number,omitempty"`  // REF*6P
	SSN           string `json:"ssn,omitempty"`            // REF*SY
}

// Benefit is one raw EB eligibility/benefit record.
type Benefit struct {
	Code            string   `json:"code"`                  // EB01
	CoverageLevel   string   `json:"coverage_level"`        // EB02
	ServiceTypes    []string `json:"service_types"`         // EB03, repetition-split
	InsuranceType   string   `json:"insurance_type"`        // EB04
	PlanDescription string   `json:"plan_description"`      // EB05
	TimeQualifier   string   `json:"time_qualifier"`        // EB06
	Amount          float64  `json:"amount"`                // EB07
	HasAmount       bool     `json:"has_amount"`
	Percent         float64  `json:"percent"`               // EB08
	HasPercent      bool     `json:"has_percent"`
	InNetwork       string   `json:"in_network"`            // EB12: Y/N/""
}

// RelatedEntity is a party extracted from an LS*2120/LE*2120 loop,
// typically a managed-care organization or another payer for
// coordination of benefits.
type RelatedEntity struct {
	Name         string   `json:"name"`
	PayerID      string   `json:"payer_id,omitempty"`
	Type         string   `json:"type,omitempty"` // insurance type of the qualifying EB
	Phone        string   `json:"phone,omitempty"`
	Address      *Address `json:"address,omitempty"`
	ServiceTypes []string `json:"service_types,omitempty"`
}

// CareProvider is the assigned primary care provider (NM1*P3).
type CareProvider struct {
	Name    string   `json:"name"`
	NPI     string   `json:"npi,omitempty"`
	Phone   string   `json:"phone,omitempty"`
	Address *Address `json:"address,omitempty"`
}

// Rejection is one AAA request-validation segment with a negative
// response code.
type Rejection struct {
	ReasonCode string `json:"reason_code"`
	Reason     string `json:"reason"`
	FollowUp   string `json:"follow_up,omitempty"`
}

// OtherInsurance reports coordination-of-benefits indicators.
type OtherInsurance struct {
	HasOtherInsurance bool            `json:"has_other_insurance"`
	OtherPayers       []RelatedEntity `json:"other_payers,omitempty"`
}

// MemberIDCheck compares the member ID sent in the 270 with the one the
// payer echoed back. Matches is meaningful only when both are present.
type MemberIDCheck struct {
	Sent     string `json:"sent,omitempty"`
	Returned string `json:"returned,omitempty"`
	Matches  bool   `json:"matches"`
}

// Response is the parsed, normalized view of one 271 payload.
type Response struct {
	Enrolled       bool           `json:"enrolled"`
	Patient        PatientInfo    `json:"patient"`
	Payer          PayerInfo      `json:"payer"`
	Coverage       CoveragePeriod `json:"coverage"`
	Dates          KeyDates       `json:"dates"`
	References     References     `json:"references"`
	Benefits       []Benefit      `json:"benefits,omitempty"`
	ManagedCare    *RelatedEntity `json:"managed_care,omitempty"`
	OtherInsurance OtherInsurance `json:"other_insurance"`
	PrimaryCare    *CareProvider  `json:"primary_care,omitempty"`
	Messages       []string       `json:"messages,omitempty"`
	Rejections     []Rejection    `json:"rejections,omitempty"`
	MemberIDCheck  MemberIDCheck  `json:"member_id_check"`
	Warnings       []Warning      `json:"warnings,omitempty"`
	Raw            string         `json:"-"`
}

// ParseOptions controls a single parse pass.
type ParseOptions struct {
	// SentMemberID is the member ID from the originating 270, used for
	// the echo validation.
	SentMemberID string
	// Today fixes the calendar date for the active/expired
	// determination; zero means the local calendar date at parse time.
	Today time.Time
}

// aaaReasonText maps AAA03 reject reason codes to readable text.
var aaaReasonText = map[string]string{
	"15": "Required application data missing",
	"42": "Unable to respond at current time",
	"43": "Invalid/missing provider identification",
	"72": "Invalid/missing subscriber ID",
	"73": "Invalid/missing subscriber name",
	"74": "Invalid/missing subscriber gender code",
	"75": "Subscriber not found",
	"76": "Duplicate subscriber ID",
	"79": "Invalid participant identification",
}

// mentalHealthServiceTypes mark the 2120 loops relevant to behavioral
// health; when multiple loops appear, one of these wins.
var mentalHealthServiceTypes = map[string]bool{
	"MH": true, // mental health
	"A8": true, // psychiatric - outpatient
	"AI": true, // substance abuse
	"CF": true, // mental health provider - outpatient
}

// activeEBCodes are the EB01 values that indicate active coverage.
var activeEBCodes = map[string]bool{
	"1": true, "2": true, "3": true, "A": true,
}

// segment owner for N3/N4/PER attachment. Segments are attributed to
// whichever party the most recent NM1 (or open 2120 loop) introduced,
// never to an earlier one.
type segOwner int

const (
	ownerNone segOwner = iota
	ownerPatient
	ownerPayer
	ownerPCP
	ownerLoop
)

// ParseResponse performs a single pass over unwrapped 271 text. A 999
// acknowledgment payload is a distinct terminal outcome and returns a
// *FormatRejectionError; benefit extraction is never attempted on it.
func ParseResponse(raw string, opts ParseOptions) (*Response, error) {
	segments := Tokenize(raw)
	if len(segments) == 0 {
		return nil, fmt.Errorf("x12: empty response payload")
	}

	switch id := TransactionSetID(segments); id {
	case "999":
		return nil, ParseAcknowledgment(segments)
	case "271", "":
		// Some payers omit ST on error pages; try to parse anyway.
	default:
		return nil, fmt.Errorf("x12: unexpected transaction set %q", id)
	}

	resp := &Response{Raw: raw}
	var (
		owner       segOwner
		loopEntity  *RelatedEntity
		lastBenefit *Benefit
		periodStart string
		periodEnd   string
	)

	for _, seg := range segments {
		switch seg.ID {
		case "NM1":
			switch seg.Element(1) {
			case "IL":
				resp.Patient.LastName = seg.Element(3)
				resp.Patient.FirstName = seg.Element(4)
				resp.Patient.MiddleName = seg.Element(5)
				if seg.Element(8) == "MI" {
					resp.Patient.MemberID = seg.Element(9)
				}
				owner = ownerPatient
			case "PR":
				if loopEntity != nil {
					loopEntity.Name = seg.Element(3)
					loopEntity.PayerID = seg.Element(9)
					owner = ownerLoop
				} else {
					resp.Payer.Name = seg.Element(3)
					resp.Payer.ID = seg.Element(9)
					owner = ownerPayer
				}
			case "P3":
				pcp := &CareProvider{}
				if seg.Element(2) == "1" {
					pcp.Name = strings.TrimSpace(seg.Element(3) + " " + seg.Element(4))
				} else {
					pcp.Name = seg.Element(3)
				}
				if seg.Element(8) == "XX" {
					pcp.NPI = seg.Element(9)
				}
				resp.PrimaryCare = pcp
				owner = ownerPCP
			default:
				owner = ownerNone
			}

		case "N3":
			if a := addressFor(resp, loopEntity, owner); a != nil {
				a.Street = seg.Element(1)
			}

		case "N4":
			if a := addressFor(resp, loopEntity, owner); a != nil {
				a.City = seg.Element(1)
				a.State = seg.Element(2)
				a.Zip = seg.Element(3)
			}

		case "PER":
			phone := extractPhone(seg)
			if phone == "" {
				break
			}
			switch owner {
			case ownerLoop:
				if loopEntity != nil {
					loopEntity.Phone = phone
				}
			case ownerPCP:
				if resp.PrimaryCare != nil {
					resp.PrimaryCare.Phone = phone
				}
			case ownerPayer:
				resp.Payer.Phone = phone
			}

		case "DMG":
			if seg.Element(1) == "D8" {
				resp.Patient.DateOfBirth = d8ToISO(seg.Element(2))
			}
			if g := seg.Element(3); g == "M" || g == "F" || g == "U" {
				resp.Patient.Gender = g
			}

		case "DTP":
			qualifier := seg.Element(1)
			format := seg.Element(2)
			value := seg.Element(3)
			switch qualifier {
			case "291":
				if format == "RD8" {
					if start, end, ok := strings.Cut(value, "-"); ok {
						periodStart = d8ToISO(start)
						periodEnd = d8ToISO(end)
					}
				} else {
					periodStart = d8ToISO(value)
				}
			case "346":
				resp.Dates.EligibilityBegin = d8ToISO(value)
			case "356":
				resp.Dates.Effective = d8ToISO(value)
			case "290":
				resp.Dates.Termination = d8ToISO(value)
			case "295":
				resp.Dates.LastSeen = d8ToISO(value)
			case "472":
				resp.Dates.Inquiry = d8ToISO(value)
			}

		case "REF":
			value := seg.Element(2)
			switch seg.Element(1) {
			case "3H":
				resp.References.CaseNumber = value
			case "18":
				resp.References.AccountNumber = value
			case "1L":
				resp.References.GroupNumber = value
			case "Q4":
				resp.References.AlternateID = value
			case "6P":
				resp.References.PolicyNumber = value
			case "SY":
				resp.References.SSN = value
			}

		case "EB":
			b := Benefit{
				Code:            seg.Element(1),
				CoverageLevel:   seg.Element(2),
				ServiceTypes:    seg.Repeats(3),
				InsuranceType:   seg.Element(4),
				PlanDescription: seg.Element(5),
				TimeQualifier:   seg.Element(6),
				InNetwork:       seg.Element(12),
			}
			if v, err := strconv.ParseFloat(seg.Element(7), 64); err == nil {
				b.Amount = v
				b.HasAmount = true
			}
			if v, err := strconv.ParseFloat(seg.Element(8), 64); err == nil {
				b.Percent = v
				b.HasPercent = true
			}
			resp.Benefits = append(resp.Benefits, b)
			lastBenefit = &resp.Benefits[len(resp.Benefits)-1]
			owner = ownerNone

		case "MSG":
			if text := seg.Element(1); text != "" {
				resp.Messages = append(resp.Messages, text)
			}

		case "AAA":
			if seg.Element(1) == "N" {
				code := seg.Element(3)
				reason := aaaReasonText[code]
				if reason == "" {
					reason = "Request rejected by payer"
				}
				resp.Rejections = append(resp.Rejections, Rejection{
					ReasonCode: code,
					Reason:     reason,
					FollowUp:   seg.Element(4),
				})
			}

		case "LS":
			if seg.Element(1) == "2120" {
				loopEntity = &RelatedEntity{}
				if lastBenefit != nil {
					loopEntity.Type = lastBenefit.InsuranceType
					loopEntity.ServiceTypes = lastBenefit.ServiceTypes
				}
				owner = ownerLoop
			}

		case "LE":
			if seg.Element(1) == "2120" && loopEntity != nil {
				if loopEntity.Name != "" {
					resp.OtherInsurance.OtherPayers = append(resp.OtherInsurance.OtherPayers, *loopEntity)
				}
				loopEntity = nil
				owner = ownerNone
			}
		}
	}

	resolveCoverage(resp, periodStart, periodEnd, opts.Today)
	resolveManagedCare(resp)
	resolveMemberID(resp, opts.SentMemberID)
	resolveEnrollment(resp)

	return resp, nil
}

// addressFor returns the address struct the current owner's N3/N4
// should populate, allocating it on first use. Segments with no owner
// are discarded rather than misattributed.
func addressFor(resp *Response, loopEntity *RelatedEntity, owner segOwner) *Address {
	switch owner {
	case ownerPatient:
		if resp.Patient.Address == nil {
			resp.Patient.Address = &Address{}
		}
		return resp.Patient.Address
	case ownerPCP:
		if resp.PrimaryCare != nil {
			if resp.PrimaryCare.Address == nil {
				resp.PrimaryCare.Address = &Address{}
			}
			return resp.PrimaryCare.Address
		}
	case ownerLoop:
		if loopEntity != nil {
			if loopEntity.Address == nil {
				loopEntity.Address = &Address{}
			}
			return loopEntity.Address
		}
	}
	return nil
}

// extractPhone finds the first TE-qualified value in a PER segment.
func extractPhone(seg Segment) string {
	for i := 1; i < len(seg.Elements); i++ {
		if seg.Element(i) == "TE" {
			return seg.Element(i + 1)
		}
	}
	return ""
}

// resolveCoverage fills the coverage period and its active/expired
// flags. The comparison is a string compare of 2006-01-02 dates: the
// payer's coverage dates are calendar dates with no time-of-day
// semantics, and timezone-aware subtraction has produced off-by-one
// errors around midnight. A period ending today is still active.
func resolveCoverage(resp *Response, start, end string, today time.Time) {
	if start == "" {
		// DTP*356 effective date is the fallback start when 291 is absent.
		start = resp.Dates.Effective
	}
	resp.Coverage.Start = start
	resp.Coverage.End = end

	if today.IsZero() {
		today = time.Now()
	}
	todayStr := today.Format("2006-01-02")
	resp.Coverage.Expired = end != "" && end < todayStr
	resp.Coverage.Active = !resp.Coverage.Expired

	if resp.Coverage.Expired {
		resp.Warnings = append(resp.Warnings, Warning{
			Severity: SeverityCritical,
			Code:     "coverage_expired",
			Message:  fmt.Sprintf("coverage ended %s", end),
		})
	}
}

// resolveManagedCare picks the reportable MCO among the 2120 loops,
// preferring one whose qualifying service types include a behavioral
// health code. The chosen loop is removed from the other-payers list.
func resolveManagedCare(resp *Response) {
	entities := resp.OtherInsurance.OtherPayers
	if len(entities) == 0 {
		return
	}
	chosen := 0
	for i, e := range entities {
		for _, st := range e.ServiceTypes {
			if mentalHealthServiceTypes[st] {
				chosen = i
			}
		}
	}
	mco := entities[chosen]
	resp.ManagedCare = &mco
	resp.OtherInsurance.OtherPayers = append(entities[:chosen:chosen], entities[chosen+1:]...)
	if len(resp.OtherInsurance.OtherPayers) == 0 {
		resp.OtherInsurance.OtherPayers = nil
	}
}

// resolveMemberID validates the member-ID echo. A differing returned ID
// is a CRITICAL warning, not an error: the transaction still succeeded.
func resolveMemberID(resp *Response, sent string) {
	resp.MemberIDCheck.Sent = strings.TrimSpace(sent)
	resp.MemberIDCheck.Returned = resp.Patient.MemberID
	if resp.MemberIDCheck.Sent == "" {
		return
	}
	if resp.MemberIDCheck.Returned == "" {
		resp.Warnings = append(resp.Warnings, Warning{
			Severity: SeverityWarning,
			Code:     "member_id_not_echoed",
			Message:  "payer did not echo the member ID back",
		})
		return
	}
	norm := func(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
	resp.MemberIDCheck.Matches = norm(resp.MemberIDCheck.Sent) == norm(resp.MemberIDCheck.Returned)
	if !resp.MemberIDCheck.Matches {
		resp.Warnings = append(resp.Warnings, Warning{
			Severity: SeverityCritical,
			Code:     "member_id_mismatch",
			Message: fmt.Sprintf("sent member ID %q but payer returned %q",
				resp.MemberIDCheck.Sent, resp.MemberIDCheck.Returned),
		})
	}
}

// resolveEnrollment applies the precedence AAA rejection > EB*V
// exclusion > active EB codes. Kept as one decision point so the
// precedence can be revisited against live payer traffic.
func resolveEnrollment(resp *Response) {
	// A rejecting AAA is authoritative regardless of any EB segments.
	if len(resp.Rejections) > 0 {
		resp.Enrolled = false
		return
	}

	// Coordination-of-benefits indicator rides on EB*R.
	actionable := 0
	for _, b := range resp.Benefits {
		if b.Code == "R" {
			resp.OtherInsurance.HasOtherInsurance = true
		}
		// EB*V is a not-applicable marker, not coverage information.
		if b.Code != "V" {
			actionable++
		}
		if activeEBCodes[b.Code] {
			resp.Enrolled = true
		}
	}

	if len(resp.Benefits) == 0 {
		resp.Warnings = append(resp.Warnings, Warning{
			Severity: SeverityWarning,
			Code:     "no_benefit_segments",
			Message:  "response contained no EB segments",
		})
	} else if actionable == 0 {
		resp.Warnings = append(resp.Warnings, Warning{
			Severity: SeverityWarning,
			Code:     "no_actionable_benefits",
			Message:  "response contained only not-applicable (EB*V) benefit segments",
		})
	}
}

// d8ToISO converts a D8 date (20240117) to 2006-01-02 form. Values that
// are not 8 digits pass through unchanged so malformed payer data stays
// visible downstream.
func d8ToISO(s string) string {
	s = strings.TrimSpace(s)
	if len(s) != 8 {
		return s
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return s
		}
	}
	return s[:4] + "-" + s[4:6] + "-" + s[6:]
}
