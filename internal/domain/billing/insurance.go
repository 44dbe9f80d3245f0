package billing

import (
	"github.com/labbill/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// InsuranceAdjustment holds a single payer's benefit rules.
// CoveragePercent is a fractional rate in [0,1].
type InsuranceAdjustment struct {
	PayerName       string          `json:"payer_name"`
	CoveragePercent decimal.Decimal `json:"coverage_percent"`
	Deductible      decimal.Decimal `json:"deductible"`
	Copay           decimal.Decimal `json:"copay"`
	MaxBenefit      decimal.Decimal `json:"max_benefit"`
}

// Validate checks the adjustment fields against the allowed ranges
func (a *InsuranceAdjustment) Validate() error {
	if a.CoveragePercent.IsNegative() || a.CoveragePercent.GreaterThan(decimal.NewFromInt(1)) {
		return shared.NewDomainError("INVALID_INPUT", "Coverage percent must be between 0 and 1")
	}
	if a.Deductible.IsNegative() {
		return shared.NewDomainError("INVALID_INPUT", "Deductible cannot be negative")
	}
	if a.Copay.IsNegative() {
		return shared.NewDomainError("INVALID_INPUT", "Copay cannot be negative")
	}
	if a.MaxBenefit.IsNegative() {
		return shared.NewDomainError("INVALID_INPUT", "Max benefit cannot be negative")
	}
	return nil
}

// CoverageResult holds the outcome of applying one payer's rules to a charge
type CoverageResult struct {
	DeductibleApplied     decimal.Decimal `json:"deductible_applied"`
	CoveredAmount         decimal.Decimal `json:"covered_amount"`
	PatientResponsibility decimal.Decimal `json:"patient_responsibility"`
}

// BenefitsResult holds the outcome of coordinating all payers on a charge.
// The pipeline is explicit: gross total, then primary, then secondary
// applied to what the primary left behind.
type BenefitsResult struct {
	GrossTotal            decimal.Decimal `json:"gross_total"`
	Primary               *CoverageResult `json:"primary,omitempty"`
	Secondary             *CoverageResult `json:"secondary,omitempty"`
	TotalCovered          decimal.Decimal `json:"total_covered"`
	PatientResponsibility decimal.Decimal `json:"patient_responsibility"`
}

// ApplyCoverage applies a single payer's benefit rules to a charge:
//
//	deductibleApplied = min(deductible, total)
//	coveredAmount     = min((total - deductibleApplied) * coveragePercent, maxBenefit)
//	patientResp       = max(0, total - coveredAmount + copay)
func ApplyCoverage(total decimal.Decimal, adj InsuranceAdjustment) (*CoverageResult, error) {
	if total.IsNegative() {
		return nil, shared.NewDomainError("INVALID_INPUT", "Charge total cannot be negative")
	}
	if err := adj.Validate(); err != nil {
		return nil, err
	}

	deductibleApplied := decimal.Min(adj.Deductible, total)
	coveredAmount := total.Sub(deductibleApplied).Mul(adj.CoveragePercent).Round(moneyScale)
	// MaxBenefit of zero means the payer has no benefit cap
	if adj.MaxBenefit.GreaterThan(decimal.Zero) {
		coveredAmount = decimal.Min(coveredAmount, adj.MaxBenefit)
	}
	patientResponsibility := decimal.Max(
		decimal.Zero,
		total.Sub(coveredAmount).Add(adj.Copay).Round(moneyScale),
	)

	return &CoverageResult{
		DeductibleApplied:     deductibleApplied,
		CoveredAmount:         coveredAmount,
		PatientResponsibility: patientResponsibility,
	}, nil
}

// CoordinateBenefits applies primary and secondary payers in order.
// The secondary payer coordinates against the remaining balance after the
// primary, never against the gross charge; the order must not be swapped.
// The final patient responsibility is floored at zero.
func CoordinateBenefits(total decimal.Decimal, primary, secondary *InsuranceAdjustment) (*BenefitsResult, error) {
	if total.IsNegative() {
		return nil, shared.NewDomainError("INVALID_INPUT", "Charge total cannot be negative")
	}

	result := &BenefitsResult{
		GrossTotal:            total,
		TotalCovered:          decimal.Zero,
		PatientResponsibility: total,
	}

	remaining := total

	if primary != nil {
		cov, err := ApplyCoverage(remaining, *primary)
		if err != nil {
			return nil, err
		}
		result.Primary = cov
		result.TotalCovered = result.TotalCovered.Add(cov.CoveredAmount)
		remaining = cov.PatientResponsibility
	}

	if secondary != nil {
		cov, err := ApplyCoverage(remaining, *secondary)
		if err != nil {
			return nil, err
		}
		result.Secondary = cov
		result.TotalCovered = result.TotalCovered.Add(cov.CoveredAmount)
		remaining = cov.PatientResponsibility
	}

	result.PatientResponsibility = decimal.Max(decimal.Zero, remaining)

	return result, nil
}
