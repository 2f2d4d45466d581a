package eligibility

import (
	"strings"

	"github.com/ehr/eligibility/internal/domain/payer"
	"github.com/ehr/eligibility/internal/platform/x12"
)

// Service-type codes the copay/coinsurance extraction keys on.
const (
	ServiceTypeGeneral      = "30" // health benefit plan coverage
	ServiceTypeOfficeVisit  = "98" // professional physician visit - office
	ServiceTypePsychOutpt   = "A8" // psychiatric - outpatient
	ServiceTypeUrgentCare   = "UC"
	ServiceTypeEmergency    = "86"
	ServiceTypeMentalHealth = "MH"
)

// EB01 benefit-type codes.
const (
	benefitDeductible  = "C"
	benefitOutOfPocket = "G"
	benefitCopay       = "A"
	benefitCoinsurance = "B"
)

// EB06 time-period qualifiers.
const (
	periodTotal     = "23" // calendar year
	periodRemaining = "29"
)

// medicaidFFSMarkers are plan-description substrings that identify
// traditional fee-for-service Medicaid programs.
var medicaidFFSMarkers = []string{
	"TARGETED ADULT MEDICAID",
	"TRADITIONAL MEDICAID",
	"NON-TRADITIONAL MEDICAID",
	"FEE FOR SERVICE",
	"FEE-FOR-SERVICE",
}

// deductibleOverrides lists managed-care networks whose contractual
// terms bypass deductible accumulation for the services this system
// bills, regardless of what the raw EB segments state. Domain knowledge
// confirmed against paid claims, not derived from the X12 data; keyed
// by normalized MCO name so new carve-outs are added here, not inline.
var deductibleOverrides = map[string]bool{
	"UUHP HMHI BEHAVIORAL HEALTH": true,
}

// InterpretBenefits turns the raw EB records of a parsed 271 into the
// normalized financial model and the coverage classification for the
// payer's category.
func InterpretBenefits(resp *x12.Response, profile *payer.Profile) (FinancialInfo, CoverageClassification) {
	fin := extractFinancial(resp)
	plan := classifyCoverage(resp, profile)
	applyDeductibleOverride(&fin, resp)
	return fin, plan
}

func extractFinancial(resp *x12.Response) FinancialInfo {
	fin := FinancialInfo{
		CopayByService:       make(map[string]float64),
		CoinsuranceByService: make(map[string]float64),
		InNetwork:            true,
	}

	for _, b := range resp.Benefits {
		switch b.Code {
		case benefitDeductible:
			if !b.HasAmount {
				break
			}
			switch b.TimeQualifier {
			case periodTotal:
				if fin.DeductibleTotal == nil {
					fin.DeductibleTotal = ptr(b.Amount)
				}
			case periodRemaining:
				if fin.DeductibleRemaining == nil {
					fin.DeductibleRemaining = ptr(b.Amount)
				}
			}
		case benefitOutOfPocket:
			if !b.HasAmount {
				break
			}
			switch b.TimeQualifier {
			case periodTotal:
				if fin.OutOfPocketTotal == nil {
					fin.OutOfPocketTotal = ptr(b.Amount)
				}
			case periodRemaining:
				if fin.OutOfPocketRemaining == nil {
					fin.OutOfPocketRemaining = ptr(b.Amount)
				}
			}
		case benefitCopay:
			if !b.HasAmount {
				break
			}
			// First-seen value per service type wins; later duplicate
			// EB segments do not overwrite it.
			for _, st := range b.ServiceTypes {
				if _, seen := fin.CopayByService[st]; !seen {
					fin.CopayByService[st] = b.Amount
				}
			}
		case benefitCoinsurance:
			if !b.HasPercent {
				break
			}
			for _, st := range b.ServiceTypes {
				if _, seen := fin.CoinsuranceByService[st]; !seen {
					fin.CoinsuranceByService[st] = b.Percent
				}
			}
		}

		switch b.InNetwork {
		case "Y":
			fin.InNetwork = true
			fin.NetworkStatusStated = true
		case "N":
			fin.InNetwork = false
			fin.NetworkStatusStated = true
		}
	}

	if fin.DeductibleTotal != nil && fin.DeductibleRemaining != nil {
		fin.DeductibleMet = ptr(*fin.DeductibleTotal - *fin.DeductibleRemaining)
	}
	if fin.OutOfPocketTotal != nil && fin.OutOfPocketRemaining != nil {
		fin.OutOfPocketMet = ptr(*fin.OutOfPocketTotal - *fin.OutOfPocketRemaining)
	}

	if len(fin.CopayByService) == 0 {
		fin.CopayByService = nil
	}
	if len(fin.CoinsuranceByService) == 0 {
		fin.CoinsuranceByService = nil
	}
	return fin
}

func classifyCoverage(resp *x12.Response, profile *payer.Profile) CoverageClassification {
	switch profile.Category {
	case payer.CategoryMedicaid:
		return classifyMedicaid(resp)
	case payer.CategoryMedicaidManagedCare:
		plan := CoverageClassification{
			PlanType:        "Medicaid Managed Care",
			ManagedCare:     true,
			ManagedCareName: profile.Name,
		}
		if resp.ManagedCare != nil {
			plan.ManagedCareName = resp.ManagedCare.Name
			plan.ManagedCarePhone = resp.ManagedCare.Phone
		}
		return plan
	case payer.CategoryCommercial:
		return classifyCommercial(resp)
	default:
		return CoverageClassification{PlanType: string(profile.Category)}
	}
}

// classifyMedicaid distinguishes traditional fee-for-service Medicaid
// from managed-care enrollment. FFS patients may see any enrolled
// provider; MCO patients are restricted to the MCO's network, so the
// distinction drives a caller-facing warning.
func classifyMedicaid(resp *x12.Response) CoverageClassification {
	for _, b := range resp.Benefits {
		desc := strings.ToUpper(b.PlanDescription)
		for _, marker := range medicaidFFSMarkers {
			if strings.Contains(desc, marker) {
				return CoverageClassification{
					PlanType:    "Medicaid Fee-for-Service",
					ProgramName: b.PlanDescription,
				}
			}
		}
	}

	if resp.ManagedCare != nil {
		resp.Warnings = append(resp.Warnings, x12.Warning{
			Severity: x12.SeverityWarning,
			Code:     "managed_care_assignment",
			Message:  "patient is enrolled with " + resp.ManagedCare.Name + "; verify network status before scheduling",
		})
		return CoverageClassification{
			PlanType:         "Medicaid Managed Care",
			ManagedCare:      true,
			ManagedCareName:  resp.ManagedCare.Name,
			ManagedCarePhone: resp.ManagedCare.Phone,
		}
	}

	return CoverageClassification{PlanType: "Medicaid"}
}

func classifyCommercial(resp *x12.Response) CoverageClassification {
	upper := strings.ToUpper(resp.Raw)
	plan := CoverageClassification{PlanType: "Commercial"}
	switch {
	case strings.Contains(upper, "HMO"):
		plan.PlanType = "HMO"
	case strings.Contains(upper, "PPO"):
		plan.PlanType = "PPO"
	case strings.Contains(upper, "POS"):
		plan.PlanType = "POS"
	}
	if resp.ManagedCare != nil {
		plan.ManagedCare = true
		plan.ManagedCareName = resp.ManagedCare.Name
		plan.ManagedCarePhone = resp.ManagedCare.Phone
	}
	return plan
}

// applyDeductibleOverride zeroes the deductible fields when the
// identified MCO is a known carve-out network; see deductibleOverrides.
func applyDeductibleOverride(fin *FinancialInfo, resp *x12.Response) {
	if resp.ManagedCare == nil {
		return
	}
	name := strings.ToUpper(strings.TrimSpace(resp.ManagedCare.Name))
	if !deductibleOverrides[name] {
		return
	}
	fin.DeductibleTotal = ptr(0.0)
	fin.DeductibleRemaining = ptr(0.0)
	fin.DeductibleMet = ptr(0.0)
	resp.Warnings = append(resp.Warnings, x12.Warning{
		Severity: x12.SeverityInfo,
		Code:     "deductible_override",
		Message:  "deductible set to zero per carve-out terms with " + resp.ManagedCare.Name,
	})
}

func ptr(v float64) *float64 { return &v }
