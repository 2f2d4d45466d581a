package eligibility

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/eligibility/internal/domain/payer"
	"github.com/ehr/eligibility/internal/platform/clearinghouse"
	"github.com/ehr/eligibility/internal/platform/soap"
	"github.com/ehr/eligibility/internal/platform/x12"
	"github.com/ehr/eligibility/pkg/pagination"
)

// Handler exposes the eligibility pipeline over HTTP.
type Handler struct {
	svc        *Service
	repo       CheckRepository
	profiles   payer.ProfileLookup
	reconciler *Reconciler
}

// NewHandler wires the HTTP surface.
func NewHandler(svc *Service, repo CheckRepository, profiles payer.ProfileLookup) *Handler {
	return &Handler{svc: svc, repo: repo, profiles: profiles, reconciler: NewReconciler()}
}

// RegisterRoutes mounts the eligibility endpoints on the API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/eligibility/checks", h.RunCheck)
	api.GET("/eligibility/checks", h.ListChecks)
	api.GET("/eligibility/checks/:id", h.GetCheck)
	api.POST("/eligibility/verify", h.VerifyAgainstRecord)
	api.GET("/payers", h.ListPayers)
}

type checkRequest struct {
	PayerID     string `json:"payer_id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth,omitempty"` // 2006-01-02
	Gender      string `json:"gender,omitempty"`
	SSN         string `json:"ssn,omitempty"`
	MemberID    string `json:"member_id,omitempty"`
	GroupNumber string `json:"group_number,omitempty"`
	ServiceDate string `json:"service_date,omitempty"`
}

func (c checkRequest) toQuery() (PatientQuery, error) {
	q := PatientQuery{
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		Gender:      c.Gender,
		SSN:         c.SSN,
		MemberID:    c.MemberID,
		GroupNumber: c.GroupNumber,
	}
	var err error
	if c.DateOfBirth != "" {
		if q.DateOfBirth, err = time.Parse("2006-01-02", c.DateOfBirth); err != nil {
			return q, fmt.Errorf("invalid date_of_birth %q", c.DateOfBirth)
		}
	}
	if c.ServiceDate != "" {
		if q.ServiceDate, err = time.Parse("2006-01-02", c.ServiceDate); err != nil {
			return q, fmt.Errorf("invalid service_date %q", c.ServiceDate)
		}
	}
	return q, nil
}

// RunCheck executes one eligibility check. A payer rejection or "not
// enrolled" is a 200 with enrolled=false; only transport, envelope and
// format failures map to error statuses.
func (h *Handler) RunCheck(c echo.Context) error {
	var req checkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.PayerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "payer_id is required")
	}
	q, err := req.toQuery()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.svc.Check(c.Request().Context(), q, req.PayerID)
	if err != nil {
		return mapCheckError(err)
	}
	return c.JSON(http.StatusOK, result)
}

type verifyRequest struct {
	checkRequest
	Record struct {
		FirstName   string `json:"first_name"`
		LastName    string `json:"last_name"`
		DateOfBirth string `json:"date_of_birth,omitempty"`
		Gender      string `json:"gender,omitempty"`
		MemberID    string `json:"member_id,omitempty"`
		Street      string `json:"street,omitempty"`
		City        string `json:"city,omitempty"`
	} `json:"record"`
}

// VerifyAgainstRecord runs a check and reconciles the response against
// an externally sourced patient record in one round-trip.
func (h *Handler) VerifyAgainstRecord(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.PayerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "payer_id is required")
	}
	q, err := req.toQuery()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ext := ExternalRecord{
		FirstName: req.Record.FirstName,
		LastName:  req.Record.LastName,
		Gender:    req.Record.Gender,
		MemberID:  req.Record.MemberID,
		Street:    req.Record.Street,
		City:      req.Record.City,
	}
	if req.Record.DateOfBirth != "" {
		if ext.DateOfBirth, err = time.Parse("2006-01-02", req.Record.DateOfBirth); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest,
				fmt.Sprintf("invalid record date_of_birth %q", req.Record.DateOfBirth))
		}
	}

	result, err := h.svc.Check(c.Request().Context(), q, req.PayerID)
	if err != nil {
		return mapCheckError(err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"check":          result,
		"reconciliation": h.reconciler.Reconcile(ext, result),
	})
}

// GetCheck returns one audit row; ?raw=true includes the raw X12.
func (h *Handler) GetCheck(c echo.Context) error {
	if h.repo == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "check persistence is not configured")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid check ID")
	}
	rec, err := h.repo.GetByID(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "check not found")
	}
	if c.QueryParam("raw") == "true" {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"check":   rec,
			"raw_270": rec.Raw270,
			"raw_271": rec.Raw271,
		})
	}
	return c.JSON(http.StatusOK, rec)
}

// ListChecks returns past checks, newest first.
func (h *Handler) ListChecks(c echo.Context) error {
	if h.repo == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "check persistence is not configured")
	}
	p := pagination.FromContext(c)
	recs, total, err := h.repo.List(c.Request().Context(), c.QueryParam("payer_id"), p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list checks")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(recs, total, p.Limit, p.Offset))
}

// ListPayers returns the configured payer profiles.
func (h *Handler) ListPayers(c echo.Context) error {
	profiles, err := h.profiles.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list payers")
	}
	return c.JSON(http.StatusOK, profiles)
}

// mapCheckError translates the pipeline error taxonomy onto HTTP
// statuses.
func mapCheckError(err error) error {
	var notFound *payer.ErrNotFound
	if errors.As(err, &notFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	var timeout *clearinghouse.TimeoutError
	if errors.As(err, &timeout) {
		return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
	}
	var transport *clearinghouse.TransportError
	if errors.As(err, &transport) {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	var noPayload *soap.ErrNoPayloadFound
	if errors.As(err, &noPayload) {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	var rejected *x12.FormatRejectionError
	if errors.As(err, &rejected) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]interface{}{
			"message": "transaction rejected by clearinghouse format validation",
			"errors":  rejected.Errors,
		})
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}
