// Package x12 implements the X12 270/271 eligibility transaction codec:
// segment-level generation of 270 inquiry requests and a single-pass
// parser for 271 responses and 999 acknowledgments.
package x12

import (
	"strings"
)

// Wire-level delimiters for the 005010 eligibility transactions handled
// here. The clearinghouses this service talks to emit exactly these.
const (
	SegmentTerminator   = "~"
	ElementSeparator    = "*"
	ComponentSeparator  = ":"
	RepetitionSeparator = "^"
)

// Segment is one tokenized X12 segment: an ID followed by its elements.
type Segment struct {
	ID       string
	Elements []string
}

// Element returns the element at the given 1-based position, or "" when
// the segment is too short. Position 1 is the first element after the
// segment ID, matching the X12 numbering convention (NM1-03 is
// Element(3)).
func (s Segment) Element(pos int) string {
	idx := pos - 1
	if idx < 0 || idx >= len(s.Elements) {
		return ""
	}
	return strings.TrimSpace(s.Elements[idx])
}

// Repeats splits the element at the given position on the repetition
// separator. An empty element yields nil.
func (s Segment) Repeats(pos int) []string {
	v := s.Element(pos)
	if v == "" {
		return nil
	}
	return strings.Split(v, RepetitionSeparator)
}

// Tokenize splits raw X12 text into segments. Segments are delimited by
// "~"; elements by "*". Whitespace between segments (some clearinghouses
// insert newlines after the terminator) is tolerated. Empty segments are
// dropped, so a trailing terminator never yields a phantom segment.
func Tokenize(raw string) []Segment {
	var segments []Segment
	for _, line := range strings.Split(raw, SegmentTerminator) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, ElementSeparator)
		seg := Segment{ID: parts[0]}
		if len(parts) > 1 {
			seg.Elements = parts[1:]
		}
		segments = append(segments, seg)
	}
	return segments
}

// TransactionSetID returns the transaction set identifier from the first
// ST segment ("270", "271", "999"), or "" when no ST segment is present.
func TransactionSetID(segments []Segment) string {
	for _, seg := range segments {
		if seg.ID == "ST" {
			return seg.Element(1)
		}
	}
	return ""
}
