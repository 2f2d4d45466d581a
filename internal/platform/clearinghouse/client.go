// Package clearinghouse is the transport adapter for CAQH CORE
// real-time endpoints (Office Ally, UHIN). It does one thing: POST a
// SOAP envelope and return the raw response text. Retry policy belongs
// to the caller — eligibility inquiries are not guaranteed idempotent
// on the payer side.
package clearinghouse

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// ContentType is the fixed CAQH CORE real-time content type.
const ContentType = "application/soap+xml; charset=utf-8;action=RealTimeTransaction;"

// TransportError reports a non-2xx HTTP response from the
// clearinghouse. Distinct from parse errors so callers can decide on
// retry.
type TransportError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *TransportError) Error() string {
	body := e.Body
	if len(body) > 500 {
		body = body[:500]
	}
	return fmt.Sprintf("clearinghouse: %s returned HTTP %d: %s", e.Endpoint, e.StatusCode, body)
}

// TimeoutError reports that the clearinghouse did not answer within the
// configured deadline.
type TimeoutError struct {
	Endpoint string
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("clearinghouse: %s did not respond within %s", e.Endpoint, e.Timeout)
}

// Client submits SOAP envelopes to one clearinghouse endpoint.
type Client struct {
	endpoint string
	timeout  time.Duration
	rc       *resty.Client
	logger   zerolog.Logger
}

// NewClient builds a client for the given endpoint. The timeout bounds
// each Send; the clearinghouse can be slow, so callers choose it.
func NewClient(endpoint string, timeout time.Duration, logger zerolog.Logger) *Client {
	rc := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", ContentType).
		SetHeader("Action", "RealTimeTransaction")

	return &Client{
		endpoint: endpoint,
		timeout:  timeout,
		rc:       rc,
		logger:   logger,
	}
}

// Endpoint returns the configured endpoint URL.
func (c *Client) Endpoint() string { return c.endpoint }

// Send POSTs the envelope and returns the raw response body. No retry:
// a timeout surfaces as *TimeoutError, a non-2xx as *TransportError.
func (c *Client) Send(ctx context.Context, envelope string) (string, error) {
	start := time.Now()
	resp, err := c.rc.R().
		SetContext(ctx).
		SetBody(envelope).
		Post(c.endpoint)

	if err != nil {
		if isTimeout(err) {
			c.logger.Warn().Str("endpoint", c.endpoint).Dur("timeout", c.timeout).Msg("clearinghouse timeout")
			return "", &TimeoutError{Endpoint: c.endpoint, Timeout: c.timeout}
		}
		return "", fmt.Errorf("clearinghouse: post to %s: %w", c.endpoint, err)
	}

	c.logger.Debug().
		Str("endpoint", c.endpoint).
		Int("status", resp.StatusCode()).
		Dur("latency", time.Since(start)).
		Msg("clearinghouse response")

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return "", &TransportError{
			Endpoint:   c.endpoint,
			StatusCode: resp.StatusCode(),
			Body:       string(resp.Body()),
		}
	}
	return string(resp.Body()), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
