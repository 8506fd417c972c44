package businessflow

import (
	"errors"
	"fmt"

	"github.com/amirphl/commission-engine/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DistributionStage is the state of one Distribute call
type DistributionStage string

const (
	StageResolving DistributionStage = "resolving"
	StageComputing DistributionStage = "computing"
	StageApplying  DistributionStage = "applying"
	StageDone      DistributionStage = "done"
	StageFailed    DistributionStage = "failed"
)

// DistributionError records the stage a distribution failed in
type DistributionError struct {
	Stage DistributionStage
	Err   error
}

func (e *DistributionError) Error() string {
	return fmt.Sprintf("distribution failed while %s: %v", e.Stage, e.Err)
}

func (e *DistributionError) Unwrap() error {
	return e.Err
}

// StageOf returns the failing stage of err, or StageFailed if unknown
func StageOf(err error) DistributionStage {
	var de *DistributionError
	if errors.As(err, &de) {
		return de.Stage
	}
	return StageFailed
}

// DistributeInput carries the arguments of one distribution
type DistributeInput struct {
	ServiceType    string
	TransactionRef int64
	BaseAmount     decimal.Decimal
	Provider       *string
	CustomerID     uint
}

// Beneficiary is one link of a resolved hierarchy chain
type Beneficiary struct {
	UserID uint
	Role   models.UserRole
}

// CommissionShare is the computed part of one beneficiary
type CommissionShare struct {
	UserID     uint
	Role       models.UserRole
	Percentage decimal.Decimal
	Amount     decimal.Decimal
}

// DistributionPlan is everything the Ledger needs to apply one distribution
type DistributionPlan struct {
	DistributionID uuid.UUID
	ServiceType    string
	TransactionRef int64
	BaseAmount     decimal.Decimal
	Config         *models.CommissionConfig
	Shares         []CommissionShare
}

// Total sums the share amounts of the plan
func (p *DistributionPlan) Total() decimal.Decimal {
	total := decimal.Zero
	for _, s := range p.Shares {
		total = total.Add(s.Amount)
	}
	return total
}

// BeneficiaryResult is one credited beneficiary of a distribution
type BeneficiaryResult struct {
	CommissionID uint
	UserID       uint
	Role         models.UserRole
	Percentage   decimal.Decimal
	Amount       decimal.Decimal
	Status       models.CommissionStatus
}

// DistributionResult summarizes an applied distribution
type DistributionResult struct {
	DistributionID     *uuid.UUID
	ServiceType        string
	TransactionRef     int64
	TotalDistributed   decimal.Decimal
	Beneficiaries      []BeneficiaryResult
	AlreadyDistributed bool
}

// resultFromTransactions rebuilds a result from persisted rows
func resultFromTransactions(serviceType string, transactionRef int64, rows []*models.CommissionTransaction) *DistributionResult {
	result := &DistributionResult{
		ServiceType:      serviceType,
		TransactionRef:   transactionRef,
		TotalDistributed: decimal.Zero,
		Beneficiaries:    make([]BeneficiaryResult, 0, len(rows)),
	}
	for _, row := range rows {
		if result.DistributionID == nil {
			id := row.DistributionID
			result.DistributionID = &id
		}
		result.TotalDistributed = result.TotalDistributed.Add(row.Amount)
		result.Beneficiaries = append(result.Beneficiaries, BeneficiaryResult{
			CommissionID: row.ID,
			UserID:       row.UserID,
			Role:         row.Role,
			Percentage:   row.Percentage,
			Amount:       row.Amount,
			Status:       row.Status,
		})
	}
	return result
}
