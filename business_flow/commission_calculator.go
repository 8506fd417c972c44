package businessflow

import (
	"github.com/amirphl/commission-engine/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CommissionCalculator turns a base amount and a config into per-beneficiary shares
type CommissionCalculator interface {
	Compute(baseAmount decimal.Decimal, cfg *models.CommissionConfig, chain []Beneficiary) []CommissionShare
}

// CommissionCalculatorImpl implements CommissionCalculator
type CommissionCalculatorImpl struct{}

func NewCommissionCalculator() CommissionCalculator {
	return &CommissionCalculatorImpl{}
}

// Compute returns one share per chain entry whose role has a positive rate.
// Each amount is rounded to two places on its own; the rounded total may
// drift from base*total/100 by up to one cent per beneficiary.
func (c *CommissionCalculatorImpl) Compute(baseAmount decimal.Decimal, cfg *models.CommissionConfig, chain []Beneficiary) []CommissionShare {
	shares := make([]CommissionShare, 0, len(chain))
	if cfg == nil {
		return shares
	}

	for _, b := range chain {
		pct := cfg.RateFor(b.Role)
		if !pct.IsPositive() {
			continue
		}
		amount := baseAmount.Mul(pct).Div(hundred).Round(2)
		if !amount.IsPositive() {
			continue
		}
		shares = append(shares, CommissionShare{
			UserID:     b.UserID,
			Role:       b.Role,
			Percentage: pct,
			Amount:     amount,
		})
	}

	return shares
}
