// Package soap wraps X12 payloads in CAQH CORE real-time SOAP envelopes
// and extracts payloads from clearinghouse responses.
package soap

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Credentials authenticates against the clearinghouse's CORE endpoint.
type Credentials struct {
	Username   string
	Password   string
	SenderID   string
	ReceiverID string
}

// PayloadType values for the transactions this service exchanges.
const (
	PayloadType270 = "X12_270_Request_005010X279A1"
	PayloadType271 = "X12_271_Response_005010X279A1"
)

// Envelope is one outbound CAQH CORE real-time request.
type Envelope struct {
	PayloadID string // transaction-correlation UUID
	Body      string
}

const envelopeTemplate = `<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:cor="http://www.caqh.org/SOAP/WSDL/CORERule2.2.0.xsd">
  <soapenv:Header>
    <wsse:Security xmlns:wsse="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd" soapenv:mustUnderstand="1">
      <wsse:UsernameToken>
        <wsse:Username>%s</wsse:Username>
        <wsse:Password Type="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-username-token-profile-1.0#PasswordText">%s</wsse:Password>
      </wsse:UsernameToken>
    </wsse:Security>
  </soapenv:Header>
  <soapenv:Body>
    <cor:COREEnvelopeRealTimeRequest>
      <PayloadType>%s</PayloadType>
      <ProcessingMode>RealTime</ProcessingMode>
      <PayloadID>%s</PayloadID>
      <TimeStamp>%s</TimeStamp>
      <SenderID>%s</SenderID>
      <ReceiverID>%s</ReceiverID>
      <CORERuleVersion>2.2.0</CORERuleVersion>
      <Payload><![CDATA[%s]]></Payload>
    </cor:COREEnvelopeRealTimeRequest>
  </soapenv:Body>
</soapenv:Envelope>`

// Wrap builds the SOAP envelope around an X12 payload. The timestamp is
// RFC3339 truncated to whole seconds; the PayloadID is a fresh UUID
// unless WrapAt is used with an explicit one.
func Wrap(payload string, creds Credentials) Envelope {
	return WrapAt(payload, creds, uuid.NewString(), time.Now())
}

// WrapAt is Wrap with the correlation ID and clock fixed, for tests and
// for callers that log the PayloadID before sending.
func WrapAt(payload string, creds Credentials, payloadID string, now time.Time) Envelope {
	body := fmt.Sprintf(envelopeTemplate,
		xmlEscape(creds.Username),
		xmlEscape(creds.Password),
		PayloadType270,
		payloadID,
		now.UTC().Truncate(time.Second).Format(time.RFC3339),
		xmlEscape(creds.SenderID),
		xmlEscape(creds.ReceiverID),
		payload,
	)
	return Envelope{PayloadID: payloadID, Body: body}
}

// ErrNoPayloadFound reports a response with no recognizable Payload
// element: either a transport-level failure page or an envelope dialect
// this codec does not know. Snippet carries the head of the raw
// response for diagnosis.
type ErrNoPayloadFound struct {
	Snippet string
}

func (e *ErrNoPayloadFound) Error() string {
	return fmt.Sprintf("soap: no payload element found in response; response begins: %s", e.Snippet)
}

const snippetLimit = 800

// The clearinghouse is not consistent about CDATA-wrapping or
// namespace-prefixing the Payload element, so all known forms are
// tried in order: prefixed/bare CDATA first, then bare text.
var payloadPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)<(?:\w+:)?Payload[^>]*>\s*<!\[CDATA\[(.*?)\]\]>\s*</(?:\w+:)?Payload>`),
	regexp.MustCompile(`(?s)<(?:\w+:)?Payload[^>]*>(.*?)</(?:\w+:)?Payload>`),
}

// Unwrap extracts the X12 payload from raw SOAP response text.
func Unwrap(raw string) (string, error) {
	for _, pat := range payloadPatterns {
		if m := pat.FindStringSubmatch(raw); m != nil {
			payload := strings.TrimSpace(m[1])
			if payload != "" {
				return xmlUnescape(payload), nil
			}
		}
	}
	snippet := raw
	if len(snippet) > snippetLimit {
		snippet = snippet[:snippetLimit]
	}
	return "", &ErrNoPayloadFound{Snippet: snippet}
}

func xmlEscape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// xmlUnescape reverses entity escaping on a bare (non-CDATA) payload.
func xmlUnescape(s string) string {
	r := strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&apos;", "'",
		"&#xA;", "\n",
		"&#xD;", "\r",
		"&amp;", "&",
	)
	return r.Replace(s)
}
