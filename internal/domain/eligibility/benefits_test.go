package eligibility

import (
	"testing"

	"github.com/ehr/eligibility/internal/domain/payer"
	"github.com/ehr/eligibility/internal/platform/x12"
)

func medicaidProfile() *payer.Profile {
	return &payer.Profile{ID: "UTMCD", Name: "Utah Medicaid", Category: payer.CategoryMedicaid}
}

func commercialProfile() *payer.Profile {
	return &payer.Profile{ID: "60054", Name: "Aetna", Category: payer.CategoryCommercial}
}

func TestInterpretBenefits_DeductibleAndOutOfPocket(t *testing.T) {
	resp := &x12.Response{
		Benefits: []x12.Benefit{
			{Code: "C", TimeQualifier: "23", Amount: 1500, HasAmount: true},
			{Code: "C", TimeQualifier: "29", Amount: 600, HasAmount: true},
			{Code: "G", TimeQualifier: "23", Amount: 5000, HasAmount: true},
			{Code: "G", TimeQualifier: "29", Amount: 4200, HasAmount: true},
		},
	}

	fin, _ := InterpretBenefits(resp, commercialProfile())

	if fin.DeductibleTotal == nil || *fin.DeductibleTotal != 1500 {
		t.Errorf("DeductibleTotal = %v", fin.DeductibleTotal)
	}
	if fin.DeductibleRemaining == nil || *fin.DeductibleRemaining != 600 {
		t.Errorf("DeductibleRemaining = %v", fin.DeductibleRemaining)
	}
	if fin.DeductibleMet == nil || *fin.DeductibleMet != 900 {
		t.Errorf("DeductibleMet = %v, want total minus remaining", fin.DeductibleMet)
	}
	if fin.OutOfPocketMet == nil || *fin.OutOfPocketMet != 800 {
		t.Errorf("OutOfPocketMet = %v", fin.OutOfPocketMet)
	}
}

func TestInterpretBenefits_FirstSeenWins(t *testing.T) {
	resp := &x12.Response{
		Benefits: []x12.Benefit{
			{Code: "C", TimeQualifier: "23", Amount: 1500, HasAmount: true},
			{Code: "C", TimeQualifier: "23", Amount: 9999, HasAmount: true},
			{Code: "A", ServiceTypes: []string{"98"}, Amount: 25, HasAmount: true},
			{Code: "A", ServiceTypes: []string{"98"}, Amount: 40, HasAmount: true},
			{Code: "A", ServiceTypes: []string{"A8"}, Amount: 10, HasAmount: true},
		},
	}

	fin, _ := InterpretBenefits(resp, commercialProfile())

	if *fin.DeductibleTotal != 1500 {
		t.Errorf("DeductibleTotal = %v, later duplicate must not overwrite", *fin.DeductibleTotal)
	}
	if fin.CopayByService["98"] != 25 {
		t.Errorf("office visit copay = %v, want first-seen 25", fin.CopayByService["98"])
	}
	if fin.CopayByService["A8"] != 10 {
		t.Errorf("psych outpatient copay = %v", fin.CopayByService["A8"])
	}
}

func TestInterpretBenefits_Coinsurance(t *testing.T) {
	resp := &x12.Response{
		Benefits: []x12.Benefit{
			{Code: "B", ServiceTypes: []string{"98", "A8"}, Percent: 0.2, HasPercent: true},
		},
	}

	fin, _ := InterpretBenefits(resp, commercialProfile())
	if fin.CoinsuranceByService["98"] != 0.2 || fin.CoinsuranceByService["A8"] != 0.2 {
		t.Errorf("coinsurance = %v", fin.CoinsuranceByService)
	}
}

func TestInterpretBenefits_NetworkStatus(t *testing.T) {
	tests := []struct {
		name      string
		benefits  []x12.Benefit
		inNetwork bool
		stated    bool
	}{
		{"unstated defaults in-network", []x12.Benefit{{Code: "1"}}, true, false},
		{"explicit yes", []x12.Benefit{{Code: "1", InNetwork: "Y"}}, true, true},
		{"explicit no", []x12.Benefit{{Code: "1", InNetwork: "N"}}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fin, _ := InterpretBenefits(&x12.Response{Benefits: tt.benefits}, commercialProfile())
			if fin.InNetwork != tt.inNetwork {
				t.Errorf("InNetwork = %v, want %v", fin.InNetwork, tt.inNetwork)
			}
			if fin.NetworkStatusStated != tt.stated {
				t.Errorf("NetworkStatusStated = %v, want %v", fin.NetworkStatusStated, tt.stated)
			}
		})
	}
}

func TestInterpretBenefits_MedicaidFFS(t *testing.T) {
	resp := &x12.Response{
		Benefits: []x12.Benefit{
			{Code: "1", ServiceTypes: []string{"30"}, PlanDescription: "TARGETED ADULT MEDICAID"},
		},
	}

	_, plan := InterpretBenefits(resp, medicaidProfile())

	if plan.PlanType != "Medicaid Fee-for-Service" {
		t.Errorf("PlanType = %q", plan.PlanType)
	}
	if plan.ProgramName != "TARGETED ADULT MEDICAID" {
		t.Errorf("ProgramName = %q", plan.ProgramName)
	}
	if plan.ManagedCare {
		t.Error("FFS coverage must not be flagged managed care")
	}
}

func TestInterpretBenefits_MedicaidManagedCareWarning(t *testing.T) {
	resp := &x12.Response{
		Benefits:    []x12.Benefit{{Code: "1", ServiceTypes: []string{"30"}}},
		ManagedCare: &x12.RelatedEntity{Name: "HEALTHY U", Phone: "8015876000"},
	}

	_, plan := InterpretBenefits(resp, medicaidProfile())

	if plan.PlanType != "Medicaid Managed Care" || !plan.ManagedCare {
		t.Errorf("plan = %+v", plan)
	}
	if plan.ManagedCareName != "HEALTHY U" || plan.ManagedCarePhone != "8015876000" {
		t.Errorf("MCO identity = %+v", plan)
	}

	found := false
	for _, w := range resp.Warnings {
		if w.Code == "managed_care_assignment" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected managed_care_assignment warning, got %+v", resp.Warnings)
	}
}

func TestInterpretBenefits_MedicaidPlain(t *testing.T) {
	resp := &x12.Response{Benefits: []x12.Benefit{{Code: "1"}}}
	_, plan := InterpretBenefits(resp, medicaidProfile())
	if plan.PlanType != "Medicaid" {
		t.Errorf("PlanType = %q", plan.PlanType)
	}
}

func TestInterpretBenefits_CommercialPlanType(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"HMO marker", "EB*1*IND*30**GOLD HMO PLAN~", "HMO"},
		{"PPO marker", "EB*1*IND*30**SILVER PPO~", "PPO"},
		{"no marker", "EB*1*IND*30~", "Commercial"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &x12.Response{Raw: tt.raw, Benefits: []x12.Benefit{{Code: "1"}}}
			_, plan := InterpretBenefits(resp, commercialProfile())
			if plan.PlanType != tt.want {
				t.Errorf("PlanType = %q, want %q", plan.PlanType, tt.want)
			}
		})
	}
}

func TestInterpretBenefits_DeductibleCarveOut(t *testing.T) {
	resp := &x12.Response{
		Benefits: []x12.Benefit{
			{Code: "C", TimeQualifier: "23", Amount: 1500, HasAmount: true},
			{Code: "C", TimeQualifier: "29", Amount: 600, HasAmount: true},
		},
		ManagedCare: &x12.RelatedEntity{Name: "UUHP HMHI Behavioral Health"},
	}

	fin, _ := InterpretBenefits(resp, medicaidProfile())

	if fin.DeductibleTotal == nil || *fin.DeductibleTotal != 0 {
		t.Errorf("DeductibleTotal = %v, want zeroed by carve-out", fin.DeductibleTotal)
	}
	if fin.DeductibleRemaining == nil || *fin.DeductibleRemaining != 0 {
		t.Errorf("DeductibleRemaining = %v", fin.DeductibleRemaining)
	}
	if fin.DeductibleMet == nil || *fin.DeductibleMet != 0 {
		t.Errorf("DeductibleMet = %v", fin.DeductibleMet)
	}

	found := false
	for _, w := range resp.Warnings {
		if w.Code == "deductible_override" && w.Severity == x12.SeverityInfo {
			found = true
		}
	}
	if !found {
		t.Errorf("expected deductible_override info warning, got %+v", resp.Warnings)
	}
}

func TestInterpretBenefits_UnknownMCONotOverridden(t *testing.T) {
	resp := &x12.Response{
		Benefits: []x12.Benefit{
			{Code: "C", TimeQualifier: "23", Amount: 1500, HasAmount: true},
		},
		ManagedCare: &x12.RelatedEntity{Name: "SOME OTHER NETWORK"},
	}

	fin, _ := InterpretBenefits(resp, medicaidProfile())
	if fin.DeductibleTotal == nil || *fin.DeductibleTotal != 1500 {
		t.Errorf("DeductibleTotal = %v, override must apply only to listed networks", fin.DeductibleTotal)
	}
}
