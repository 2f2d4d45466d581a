package eligibility

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/eligibility/internal/domain/payer"
	"github.com/ehr/eligibility/internal/platform/soap"
	"github.com/ehr/eligibility/internal/platform/x12"
)

// Transport submits one SOAP envelope and returns the raw response
// text. Implemented by clearinghouse.Client; injected so the pipeline
// is testable without a network.
type Transport interface {
	Send(ctx context.Context, envelope string) (string, error)
}

// Service runs the synchronous check pipeline: build 270 → wrap → send
// → unwrap → parse 271 → interpret. Each check is stateless; concurrent
// checks share nothing but the injected collaborators.
type Service struct {
	profiles  payer.ProfileLookup
	provider  ProviderIdentity
	transport Transport
	creds     soap.Credentials
	repo      CheckRepository // may be nil: persistence is the caller's concern
	logger    zerolog.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithRepository enables audit persistence of each check.
func WithRepository(repo CheckRepository) Option {
	return func(s *Service) { s.repo = repo }
}

// WithClock fixes the service clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires the pipeline.
func NewService(profiles payer.ProfileLookup, provider ProviderIdentity, transport Transport,
	creds soap.Credentials, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		profiles:  profiles,
		provider:  provider,
		transport: transport,
		creds:     creds,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check runs one eligibility check. Transport, envelope-unwrap and
// format-rejection (999) failures return errors; a payer rejection
// (AAA) or "not enrolled" is a normal result with Enrolled=false —
// "not eligible" is an expected, legitimate answer, not a failure.
func (s *Service) Check(ctx context.Context, q PatientQuery, payerID string) (*CheckResult, error) {
	profile, err := s.profiles.Profile(ctx, payerID)
	if err != nil {
		return nil, err
	}
	if err := q.Validate(profile); err != nil {
		return nil, err
	}

	now := s.now()
	req, err := s.buildRequest(q, profile, now)
	if err != nil {
		return nil, err
	}

	envelope := soap.WrapAt(req.String(), s.creds, uuid.NewString(), now)

	s.logger.Info().
		Str("payer_id", profile.ID).
		Str("control_number", req.ControlNumber).
		Str("payload_id", envelope.PayloadID).
		Msg("submitting eligibility inquiry")

	rawResp, err := s.transport.Send(ctx, envelope.Body)
	if err != nil {
		return nil, err
	}

	payload, err := soap.Unwrap(rawResp)
	if err != nil {
		return nil, err
	}

	resp, err := x12.ParseResponse(payload, x12.ParseOptions{
		SentMemberID: q.MemberID,
		Today:        now,
	})
	if err != nil {
		var rej *x12.FormatRejectionError
		if errors.As(err, &rej) {
			s.record(ctx, &CheckResult{
				ID:            uuid.New(),
				PayerID:       profile.ID,
				PayerName:     profile.Name,
				ControlNumber: req.ControlNumber,
				PayloadID:     envelope.PayloadID,
				Raw270:        req.String(),
				Raw271:        payload,
				CheckedAt:     now,
			}, "format_rejected")
		}
		return nil, err
	}

	result := &CheckResult{
		ID:            uuid.New(),
		PayerID:       profile.ID,
		PayerName:     profile.Name,
		ControlNumber: req.ControlNumber,
		PayloadID:     envelope.PayloadID,
		Response:      resp,
		Raw270:        req.String(),
		Raw271:        payload,
		CheckedAt:     now,
	}
	result.Financial, result.Plan = InterpretBenefits(resp, profile)

	outcome := "not_enrolled"
	if resp.Enrolled {
		outcome = "enrolled"
	}
	s.record(ctx, result, outcome)

	s.logger.Info().
		Str("payer_id", profile.ID).
		Str("control_number", req.ControlNumber).
		Bool("enrolled", resp.Enrolled).
		Str("plan_type", result.Plan.PlanType).
		Int("warnings", len(resp.Warnings)).
		Msg("eligibility check complete")

	return result, nil
}

// buildRequest maps the query and payer capabilities onto the 270
// assembler.
func (s *Service) buildRequest(q PatientQuery, profile *payer.Profile, now time.Time) (*x12.Request, error) {
	sub := x12.Subscriber{
		LastName:    q.LastName,
		FirstName:   q.FirstName,
		DateOfBirth: q.DateOfBirth,
		Gender:      q.Gender,
		MemberID:    q.MemberID,
		GroupNumber: q.GroupNumber,
	}
	pay := x12.Payer{Name: profile.Name, ID: profile.ID}
	prov := x12.Provider{
		Name:       s.provider.Name,
		NPI:        s.provider.NPI,
		TaxID:      s.provider.TaxID,
		EntityType: s.provider.EntityOverride,
	}

	opts := x12.InquiryOptions{
		SenderID:         s.creds.SenderID,
		ReceiverID:       s.creds.ReceiverID,
		IncludeMemberID:  profile.SupportsMemberID,
		IncludeGender:    profile.RequiresGender,
		OmitServiceDate:  profile.RejectsServiceDate,
		ServiceDate:      q.ServiceDate,
		ServiceTypeCodes: profile.ServiceTypeCodes,
		Now:              now,
	}
	if profile.ServiceDateRange && !q.ServiceDate.IsZero() {
		opts.ServiceDateEnd = q.ServiceDate
	}

	req, err := x12.BuildInquiry(sub, pay, prov, opts)
	if err != nil {
		return nil, fmt.Errorf("eligibility: build inquiry: %w", err)
	}
	return req, nil
}

// record persists the audit row best-effort; a storage failure never
// fails the check itself.
func (s *Service) record(ctx context.Context, r *CheckResult, outcome string) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Create(ctx, NewCheckRecord(r, outcome)); err != nil {
		s.logger.Warn().Err(err).
			Str("control_number", r.ControlNumber).
			Msg("failed to persist eligibility check")
	}
}
