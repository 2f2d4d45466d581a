package x12

import (
	"fmt"
	"strings"
)

// AckError is one human-readable descriptor extracted from a 999
// functional acknowledgment.
type AckError struct {
	Segment     string `json:"segment"`               // offending segment ID (IK3) or position (IK4)
	Code        string `json:"code"`                  // error code from the acknowledgment
	Description string `json:"description"`
}

func (e AckError) String() string {
	s := e.Description
	if e.Segment != "" {
		s = e.Segment + ": " + s
	}
	if e.Code != "" {
		s += fmt.Sprintf(" (code %s)", e.Code)
	}
	return s
}

// FormatRejectionError reports that the clearinghouse rejected the 270
// syntactically. It is a terminal outcome distinct from "not enrolled":
// no benefit data exists to extract.
type FormatRejectionError struct {
	Errors []AckError
}

func (e *FormatRejectionError) Error() string {
	if len(e.Errors) == 0 {
		return "x12: transaction rejected by 999 acknowledgment"
	}
	descs := make([]string, len(e.Errors))
	for i, ae := range e.Errors {
		descs[i] = ae.String()
	}
	return "x12: transaction rejected by 999 acknowledgment: " + strings.Join(descs, "; ")
}

// ik3ErrorText maps IK304 segment syntax error codes.
var ik3ErrorText = map[string]string{
	"1": "Unrecognized segment ID",
	"2": "Unexpected segment",
	"3": "Required segment missing",
	"4": "Loop occurs over maximum times",
	"5": "Segment exceeds maximum use",
	"6": "Segment not in defined transaction set",
	"7": "Segment not in proper sequence",
	"8": "Segment has data element errors",
}

// ik4ErrorText maps IK403 data element syntax error codes.
var ik4ErrorText = map[string]string{
	"1": "Required data element missing",
	"2": "Conditional required data element missing",
	"3": "Too many data elements",
	"4": "Data element too short",
	"5": "Data element too long",
	"6": "Invalid character in data element",
	"7": "Invalid code value",
	"8": "Invalid date",
	"9": "Invalid time",
}

// ik5ErrorText maps IK501/AK901 acknowledgment codes worth surfacing.
var ik5ErrorText = map[string]string{
	"A": "Accepted",
	"E": "Accepted with errors",
	"M": "Rejected, message authentication failed",
	"R": "Rejected",
	"W": "Rejected, assurance failed validity tests",
	"X": "Rejected, content decryption failed",
}

// ParseAcknowledgment extracts error descriptors from a tokenized 999
// and returns them as a *FormatRejectionError. IK3 reports segment
// errors, IK4 element errors, IK5/AK9 the transaction and functional
// group dispositions, and AAA any embedded request validations.
func ParseAcknowledgment(segments []Segment) *FormatRejectionError {
	ack := &FormatRejectionError{}

	for _, seg := range segments {
		switch seg.ID {
		case "IK3":
			code := seg.Element(4)
			desc := ik3ErrorText[code]
			if desc == "" {
				desc = "Segment syntax error"
			}
			ack.Errors = append(ack.Errors, AckError{
				Segment:     seg.Element(1),
				Code:        code,
				Description: desc,
			})
		case "IK4":
			code := seg.Element(3)
			desc := ik4ErrorText[code]
			if desc == "" {
				desc = "Data element syntax error"
			}
			ack.Errors = append(ack.Errors, AckError{
				Segment:     "element " + seg.Element(1),
				Code:        code,
				Description: desc,
			})
		case "IK5", "AK9":
			code := seg.Element(1)
			if code == "" || code == "A" {
				continue
			}
			desc := ik5ErrorText[code]
			if desc == "" {
				desc = "Transaction set rejected"
			}
			ack.Errors = append(ack.Errors, AckError{
				Segment:     seg.ID,
				Code:        code,
				Description: desc,
			})
		case "AAA":
			code := seg.Element(3)
			desc := aaaReasonText[code]
			if desc == "" {
				desc = "Request validation failed"
			}
			ack.Errors = append(ack.Errors, AckError{
				Segment:     "AAA",
				Code:        code,
				Description: desc,
			})
		}
	}

	if len(ack.Errors) == 0 {
		ack.Errors = append(ack.Errors, AckError{
			Segment:     "999",
			Code:        "",
			Description: "Functional acknowledgment with no detail segments",
		})
	}
	return ack
}
