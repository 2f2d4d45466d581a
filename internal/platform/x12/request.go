package x12

import (
	"fmt"
	"strings"
	"time"
)

// InquiryOptions carries the per-payer wire variations for a 270. They
// mirror the payer profile capabilities: which optional segments a
// given payer tolerates and which service types to ask about.
type InquiryOptions struct {
	// SenderID/ReceiverID fill ISA06/ISA08 (space-padded to 15).
	SenderID   string
	ReceiverID string

	// IncludeMemberID emits the MI qualifier pair in the subscriber
	// NM1 when a member ID is present.
	IncludeMemberID bool

	// IncludeGender emits DMG03. Payers that reject ambiguous gender
	// codes get no gender at all.
	IncludeGender bool

	// OmitServiceDate suppresses the DTP segment entirely. Some state
	// Medicaid payers reject any DTP in the request and convey the
	// coverage period only in the response.
	OmitServiceDate bool

	// ServiceDate/ServiceDateEnd select D8 vs RD8 when DTP is emitted.
	// A zero ServiceDate defaults to the assembly time's calendar day.
	ServiceDate    time.Time
	ServiceDateEnd time.Time

	// ServiceTypeCodes yields one EQ segment each; defaults to a
	// single "30" (health benefit plan coverage) inquiry.
	ServiceTypeCodes []string

	// Now fixes the assembly clock; zero means time.Now() (local).
	Now time.Time
}

// Request is an assembled, immutable 270 transaction.
type Request struct {
	ControlNumber string
	Segments      []string
}

// String renders the transaction in wire form: segments joined by the
// terminator with exactly one trailing terminator. Segments carry no
// terminator of their own, so the join can never produce "~~".
func (r *Request) String() string {
	return strings.Join(r.Segments, SegmentTerminator) + SegmentTerminator
}

// BuildInquiry assembles a complete 270 eligibility inquiry for one
// subscriber. The HL hierarchy is fixed across payers: level 1 is the
// information source (payer), level 2 the information receiver
// (provider), level 3 the subscriber. One control number threads
// through ISA, GS, GE and IEA.
func BuildInquiry(sub Subscriber, payer Payer, prov Provider, opts InquiryOptions) (*Request, error) {
	if sub.LastName == "" || sub.FirstName == "" {
		return nil, fmt.Errorf("x12: subscriber first and last name are required")
	}
	if sub.DateOfBirth.IsZero() && sub.MemberID == "" {
		return nil, fmt.Errorf("x12: subscriber needs a date of birth or a member ID")
	}
	if payer.ID == "" {
		return nil, fmt.Errorf("x12: payer ID is required")
	}
	if prov.NPI == "" {
		return nil, fmt.Errorf("x12: provider NPI is required")
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	control := NewControlNumber(now)
	const setControl = "0001"

	// Transaction set: ST through the last detail segment. SE is
	// appended after counting, so the count is len(ts)+1.
	ts := []string{
		buildST(setControl),
		buildBHT(control, now),
		buildHL("1", "", "20", true),
		buildNM1Payer(payer),
		buildHL("2", "1", "21", true),
		buildNM1Provider(prov),
		buildHL("3", "2", "22", false),
		buildNM1Subscriber(sub, opts.IncludeMemberID),
	}

	if !sub.DateOfBirth.IsZero() {
		ts = append(ts, buildDMG(sub.DateOfBirth, sub.Gender, opts.IncludeGender))
	}

	if !opts.OmitServiceDate {
		start := opts.ServiceDate
		if start.IsZero() {
			start = now
		}
		ts = append(ts, buildDTP("291", start, opts.ServiceDateEnd))
	}

	serviceTypes := opts.ServiceTypeCodes
	if len(serviceTypes) == 0 {
		serviceTypes = []string{"30"}
	}
	for _, code := range serviceTypes {
		ts = append(ts, buildEQ(code))
	}

	ts = append(ts, buildSE(len(ts)+1, setControl))

	segments := make([]string, 0, len(ts)+4)
	segments = append(segments,
		buildISA(opts.SenderID, opts.ReceiverID, control, now),
		buildGS(opts.SenderID, opts.ReceiverID, control, now),
	)
	segments = append(segments, ts...)
	segments = append(segments, buildGE(control), buildIEA(control))

	return &Request{ControlNumber: control, Segments: segments}, nil
}
