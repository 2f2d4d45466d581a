package x12

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"
)

// EntityType classifies an NM1 party as a person or a non-person entity.
type EntityType int

const (
	// EntityAuto defers to the legal-entity-suffix heuristic.
	EntityAuto EntityType = iota
	EntityPerson
	EntityOrganization
)

// Subscriber is the patient the 270 inquiry asks about.
type Subscriber struct {
	LastName    string
	FirstName   string
	MiddleName  string
	DateOfBirth time.Time
	Gender      string // "M", "F", or "" — anything else is omitted on the wire
	MemberID    string
	GroupNumber string
}

// Payer identifies the information source for the inquiry.
type Payer struct {
	Name string
	ID   string // clearinghouse-specific payer ID
}

// Provider is the requesting provider or organization.
type Provider struct {
	Name       string
	NPI        string
	TaxID      string
	EntityType EntityType // EntityAuto applies the name heuristic
}

// legalEntitySuffixes matches organization markers in a provider name.
// Heuristic only: callers that know the correct classification should
// set Provider.EntityType explicitly.
var legalEntitySuffixes = regexp.MustCompile(`(?i)\b(PLLC|LLC|LLP|INC|INCORPORATED|CORP|CORPORATION|LTD|P\.?C\.?|GROUP|CLINIC|CENTER|CENTERS|ASSOCIATES|PARTNERS|HEALTH|HEALTHCARE|SERVICES|INSTITUTE)\b`)

// ResolveEntityType returns the effective entity type for the provider,
// applying the suffix heuristic when EntityType is EntityAuto.
func (p Provider) ResolveEntityType() EntityType {
	if p.EntityType != EntityAuto {
		return p.EntityType
	}
	if legalEntitySuffixes.MatchString(p.Name) {
		return EntityOrganization
	}
	return EntityPerson
}

// controlSeq disambiguates control numbers generated within the same
// millisecond by concurrent checks.
var controlSeq uint32

// NewControlNumber derives a 9-digit interchange control number from the
// given wall-clock time. A per-process counter is mixed in so that
// concurrent invocations in the same millisecond never collide.
func NewControlNumber(now time.Time) string {
	seq := atomic.AddUint32(&controlSeq, 1)
	n := (now.UnixMilli() + int64(seq)) % 1_000_000_000
	return fmt.Sprintf("%09d", n)
}

// padRight space-pads s to exactly width characters, truncating if
// longer. ISA06/ISA08 must be exactly 15 characters or the
// clearinghouse rejects the interchange.
func padRight(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}

// sanitizeElement strips the wire delimiters from free-text values so a
// name like "SMITH*JONES" cannot corrupt segment structure.
func sanitizeElement(s string) string {
	r := strings.NewReplacer(
		ElementSeparator, " ",
		SegmentTerminator, " ",
		ComponentSeparator, " ",
		RepetitionSeparator, " ",
	)
	return strings.TrimSpace(r.Replace(s))
}

// buildISA constructs the interchange control header. Dates and times
// use local wall-clock time: UTC here has produced off-by-one-day
// rejections when the local evening rolls past midnight UTC.
func buildISA(senderID, receiverID, controlNumber string, now time.Time) string {
	return strings.Join([]string{
		"ISA",
		"00", padRight("", 10),
		"00", padRight("", 10),
		"ZZ", padRight(sanitizeElement(senderID), 15),
		"ZZ", padRight(sanitizeElement(receiverID), 15),
		now.Format("060102"),
		now.Format("1504"),
		RepetitionSeparator,
		"00501",
		controlNumber,
		"0",
		"P",
		ComponentSeparator,
	}, ElementSeparator)
}

func buildGS(senderID, receiverID, controlNumber string, now time.Time) string {
	return strings.Join([]string{
		"GS",
		"HS",
		sanitizeElement(senderID),
		sanitizeElement(receiverID),
		now.Format("20060102"),
		now.Format("1504"),
		controlNumber,
		"X",
		"005010X279A1",
	}, ElementSeparator)
}

func buildST(setControlNumber string) string {
	return "ST" + ElementSeparator + "270" + ElementSeparator + setControlNumber + ElementSeparator + "005010X279A1"
}

func buildBHT(referenceID string, now time.Time) string {
	return strings.Join([]string{
		"BHT", "0022", "13",
		sanitizeElement(referenceID),
		now.Format("20060102"),
		now.Format("1504"),
	}, ElementSeparator)
}

// buildHL emits a hierarchical level segment. parentID is "" for the
// top level; hasChild declares whether subordinate levels follow.
func buildHL(id, parentID, levelCode string, hasChild bool) string {
	child := "0"
	if hasChild {
		child = "1"
	}
	return strings.Join([]string{"HL", id, parentID, levelCode, child}, ElementSeparator)
}

// buildNM1Payer emits the information-source name segment (2100A loop).
func buildNM1Payer(p Payer) string {
	return strings.Join([]string{
		"NM1", "PR", "2",
		sanitizeElement(p.Name),
		"", "", "", "",
		"PI", sanitizeElement(p.ID),
	}, ElementSeparator)
}

// buildNM1Provider emits the information-receiver name segment (2100B
// loop). Field order depends on whether the provider is a person or an
// organization.
func buildNM1Provider(p Provider) string {
	if p.ResolveEntityType() == EntityOrganization {
		return strings.Join([]string{
			"NM1", "1P", "2",
			sanitizeElement(p.Name),
			"", "", "", "",
			"XX", sanitizeElement(p.NPI),
		}, ElementSeparator)
	}
	last, first := splitPersonName(p.Name)
	return strings.Join([]string{
		"NM1", "1P", "1",
		sanitizeElement(last),
		sanitizeElement(first),
		"", "", "",
		"XX", sanitizeElement(p.NPI),
	}, ElementSeparator)
}

// splitPersonName splits "First Last" (or "Last, First") into its parts.
func splitPersonName(name string) (last, first string) {
	name = strings.TrimSpace(name)
	if i := strings.Index(name, ","); i >= 0 {
		return strings.TrimSpace(name[:i]), strings.TrimSpace(name[i+1:])
	}
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "", ""
	}
	if len(fields) == 1 {
		return fields[0], ""
	}
	return fields[len(fields)-1], strings.Join(fields[:len(fields)-1], " ")
}

// buildNM1Subscriber emits the subscriber name segment (2100C loop).
// The member-ID qualifier pair is included only when the payer profile
// allows it and an ID is present.
func buildNM1Subscriber(s Subscriber, includeMemberID bool) string {
	parts := []string{
		"NM1", "IL", "1",
		sanitizeElement(strings.ToUpper(s.LastName)),
		sanitizeElement(strings.ToUpper(s.FirstName)),
		sanitizeElement(strings.ToUpper(s.MiddleName)),
	}
	if includeMemberID && s.MemberID != "" {
		parts = append(parts, "", "", "MI", sanitizeElement(s.MemberID))
	}
	return strings.Join(trimEmptyTail(parts), ElementSeparator)
}

// trimEmptyTail drops trailing empty elements so a segment never ends
// in dangling separators. Interior empties stay; they position the
// qualifier pairs.
func trimEmptyTail(parts []string) []string {
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

// buildDMG emits subscriber demographics. Gender is restricted to M/F;
// any other value is omitted entirely rather than risking a payer
// rejection on an ambiguous code.
func buildDMG(dob time.Time, gender string, includeGender bool) string {
	parts := []string{"DMG", "D8", dob.Format("20060102")}
	g := strings.ToUpper(strings.TrimSpace(gender))
	if includeGender && (g == "M" || g == "F") {
		parts = append(parts, g)
	}
	return strings.Join(parts, ElementSeparator)
}

// buildDTP emits the eligibility inquiry date. A zero end date produces
// a single-date D8 segment; otherwise an RD8 range.
func buildDTP(qualifier string, start, end time.Time) string {
	if end.IsZero() {
		return strings.Join([]string{"DTP", qualifier, "D8", start.Format("20060102")}, ElementSeparator)
	}
	return strings.Join([]string{
		"DTP", qualifier, "RD8",
		start.Format("20060102") + "-" + end.Format("20060102"),
	}, ElementSeparator)
}

func buildEQ(serviceTypeCode string) string {
	return "EQ" + ElementSeparator + sanitizeElement(serviceTypeCode)
}

func buildSE(segmentCount int, setControlNumber string) string {
	return strings.Join([]string{"SE", fmt.Sprintf("%d", segmentCount), setControlNumber}, ElementSeparator)
}

func buildGE(controlNumber string) string {
	return "GE" + ElementSeparator + "1" + ElementSeparator + controlNumber
}

func buildIEA(controlNumber string) string {
	return "IEA" + ElementSeparator + "1" + ElementSeparator + controlNumber
}
