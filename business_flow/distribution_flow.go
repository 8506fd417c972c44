package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/commission-engine/app/dto"
	"github.com/amirphl/commission-engine/app/services"
	"github.com/amirphl/commission-engine/models"
	"github.com/amirphl/commission-engine/repository"
	"github.com/amirphl/commission-engine/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Incident error codes
const (
	IncidentCodeConfigNotFound      = "CONFIG_NOT_FOUND"
	IncidentCodeBeneficiaryNotFound = "BENEFICIARY_NOT_FOUND"
	IncidentCodePersistenceFailed   = "PERSISTENCE_FAILED"
)

const eventPublishTimeout = 5 * time.Second

// DistributionFlow is the entrypoint every service module calls once a
// monetized transaction completes. It never retries on its own; a retry with
// the same reference is a no-op once the first call has been applied.
type DistributionFlow interface {
	Distribute(ctx context.Context, req *dto.DistributeCommissionRequest, metadata *ClientMetadata) (*dto.DistributeCommissionResponse, error)
	Execute(ctx context.Context, in DistributeInput, metadata *ClientMetadata) (*DistributionResult, error)
}

// DistributionFlowImpl implements DistributionFlow
type DistributionFlowImpl struct {
	configResolver    ConfigResolver
	hierarchyResolver HierarchyResolver
	calculator        CommissionCalculator
	ledger            Ledger
	incidentRepo      repository.DistributionIncidentRepository
	auditRepo         repository.AuditLogRepository
	publisher         services.EventPublisher
	now               func() time.Time
}

func NewDistributionFlow(
	configResolver ConfigResolver,
	hierarchyResolver HierarchyResolver,
	calculator CommissionCalculator,
	ledger Ledger,
	incidentRepo repository.DistributionIncidentRepository,
	auditRepo repository.AuditLogRepository,
	publisher services.EventPublisher,
) DistributionFlow {
	return &DistributionFlowImpl{
		configResolver:    configResolver,
		hierarchyResolver: hierarchyResolver,
		calculator:        calculator,
		ledger:            ledger,
		incidentRepo:      incidentRepo,
		auditRepo:         auditRepo,
		publisher:         publisher,
		now:               utils.UTCNow,
	}
}

func (f *DistributionFlowImpl) Distribute(ctx context.Context, req *dto.DistributeCommissionRequest, metadata *ClientMetadata) (*dto.DistributeCommissionResponse, error) {
	if req == nil {
		return nil, ErrServiceTypeRequired
	}

	in := DistributeInput{
		ServiceType:    strings.TrimSpace(req.ServiceType),
		TransactionRef: req.TransactionRef,
		BaseAmount:     req.Amount,
		Provider:       req.Provider,
		CustomerID:     req.CustomerID,
	}

	result, err := f.Execute(ctx, in, metadata)
	if err != nil {
		return nil, err
	}
	return ToDistributeCommissionResponse(result), nil
}

func (f *DistributionFlowImpl) Execute(ctx context.Context, in DistributeInput, metadata *ClientMetadata) (*DistributionResult, error) {
	started := time.Now()

	in.ServiceType = strings.TrimSpace(in.ServiceType)
	if in.Provider != nil && strings.TrimSpace(*in.Provider) == "" {
		in.Provider = nil
	}
	if err := validateDistributeInput(in); err != nil {
		return nil, err
	}

	// Resolving
	prior, err := f.ledger.Prior(ctx, in.ServiceType, in.TransactionRef)
	if err != nil {
		return nil, f.fail(ctx, in, StageResolving, err, started, metadata)
	}
	if prior != nil {
		// a stored distribution proves the service type was configured once
		markServiceTypeKnown(in.ServiceType)
		f.duplicate(ctx, in, prior, started, metadata)
		return prior, nil
	}

	cfg, err := f.configResolver.Resolve(ctx, in.ServiceType, in.Provider, f.now())
	if err != nil {
		return nil, f.fail(ctx, in, StageResolving, err, started, metadata)
	}
	markServiceTypeKnown(in.ServiceType)

	chain, err := f.hierarchyResolver.Resolve(ctx, in.CustomerID)
	if err != nil {
		return nil, f.fail(ctx, in, StageResolving, err, started, metadata)
	}

	// Computing
	plan := &DistributionPlan{
		DistributionID: uuid.New(),
		ServiceType:    in.ServiceType,
		TransactionRef: in.TransactionRef,
		BaseAmount:     in.BaseAmount,
		Config:         cfg,
		Shares:         f.calculator.Compute(in.BaseAmount, cfg, chain),
	}

	// Applying
	result, err := f.ledger.Apply(ctx, plan)
	if IsAlreadyDistributed(err) && result != nil {
		f.duplicate(ctx, in, result, started, metadata)
		return result, nil
	}
	if err != nil {
		return nil, f.fail(ctx, in, StageApplying, err, started, metadata)
	}

	// Done
	if len(result.Beneficiaries) == 0 {
		observeDistribution(in.ServiceType, outcomeEmpty, started, decimal.Zero)
		log.Printf("distribution %s #%d: config %d yields no shares", in.ServiceType, in.TransactionRef, cfg.ID)
		return result, nil
	}

	observeDistribution(in.ServiceType, outcomeDistributed, started, result.TotalDistributed)
	f.publishEarned(ctx, in, result)

	msg := fmt.Sprintf("Distributed %s to %d beneficiaries for %s #%d", result.TotalDistributed.StringFixed(2), len(result.Beneficiaries), in.ServiceType, in.TransactionRef)
	_ = createAuditLog(ctx, f.auditRepo, models.AuditActionDistributionCompleted, msg, true, nil, map[string]any{
		"distribution_id": plan.DistributionID.String(),
		"config_id":       cfg.ID,
		"customer_id":     in.CustomerID,
	}, metadata)

	return result, nil
}

func validateDistributeInput(in DistributeInput) error {
	if in.ServiceType == "" {
		return ErrServiceTypeRequired
	}
	if in.TransactionRef <= 0 {
		return ErrTransactionRefRequired
	}
	if !in.BaseAmount.IsPositive() {
		return ErrInvalidAmount
	}
	if in.CustomerID == 0 {
		return ErrCustomerRequired
	}
	return nil
}

func (f *DistributionFlowImpl) duplicate(ctx context.Context, in DistributeInput, prior *DistributionResult, started time.Time, metadata *ClientMetadata) {
	prior.AlreadyDistributed = true
	observeDistribution(in.ServiceType, outcomeDuplicate, started, decimal.Zero)

	msg := fmt.Sprintf("Duplicate distribution for %s #%d ignored", in.ServiceType, in.TransactionRef)
	_ = createAuditLog(ctx, f.auditRepo, models.AuditActionDistributionDuplicate, msg, true, nil, nil, metadata)
}

// fail records the failure and returns it wrapped with its stage
func (f *DistributionFlowImpl) fail(ctx context.Context, in DistributeInput, stage DistributionStage, err error, started time.Time, metadata *ClientMetadata) error {
	observeStageFailure(stage)
	observeDistribution(in.ServiceType, outcomeFailed, started, decimal.Zero)

	code := incidentCode(err)
	log.Printf("distribution %s #%d failed while %s [%s]: %v", in.ServiceType, in.TransactionRef, stage, code, err)

	// The caller's deadline may already be gone; the incident must still land
	bg := context.WithoutCancel(ctx)
	if f.incidentRepo != nil {
		incident := &models.DistributionIncident{
			ServiceType:    in.ServiceType,
			TransactionRef: in.TransactionRef,
			CustomerID:     in.CustomerID,
			BaseAmount:     in.BaseAmount,
			Provider:       in.Provider,
			Reason:         err.Error(),
			ErrorCode:      code,
			Status:         models.IncidentStatusOpen,
		}
		if ierr := f.incidentRepo.Upsert(bg, incident); ierr != nil {
			log.Printf("failed to record distribution incident for %s #%d: %v", in.ServiceType, in.TransactionRef, ierr)
		}
	}

	errMsg := err.Error()
	msg := fmt.Sprintf("Distribution for %s #%d failed while %s", in.ServiceType, in.TransactionRef, stage)
	_ = createAuditLog(bg, f.auditRepo, models.AuditActionDistributionFailed, msg, false, &errMsg, map[string]any{
		"stage":       stage,
		"error_code":  code,
		"customer_id": in.CustomerID,
	}, metadata)

	return &DistributionError{Stage: stage, Err: err}
}

func incidentCode(err error) string {
	switch {
	case IsConfigNotFound(err):
		return IncidentCodeConfigNotFound
	case IsBeneficiaryNotFound(err):
		return IncidentCodeBeneficiaryNotFound
	default:
		return IncidentCodePersistenceFailed
	}
}

// CommissionEarnedEvent is published once per credited beneficiary
type CommissionEarnedEvent struct {
	EventID        string          `json:"event_id"`
	DistributionID string          `json:"distribution_id"`
	CommissionID   uint            `json:"commission_id"`
	ServiceType    string          `json:"service_type"`
	TransactionRef int64           `json:"transaction_ref"`
	UserID         uint            `json:"user_id"`
	Role           string          `json:"role"`
	Percentage     decimal.Decimal `json:"percentage"`
	Amount         decimal.Decimal `json:"amount"`
	Status         string          `json:"status"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// publishEarned emits events after commit. Failures are logged only.
func (f *DistributionFlowImpl) publishEarned(ctx context.Context, in DistributeInput, result *DistributionResult) {
	if f.publisher == nil {
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()

	distributionID := ""
	if result.DistributionID != nil {
		distributionID = result.DistributionID.String()
	}
	occurredAt := f.now()

	for _, b := range result.Beneficiaries {
		payload, err := json.Marshal(CommissionEarnedEvent{
			EventID:        uuid.NewString(),
			DistributionID: distributionID,
			CommissionID:   b.CommissionID,
			ServiceType:    in.ServiceType,
			TransactionRef: in.TransactionRef,
			UserID:         b.UserID,
			Role:           b.Role.String(),
			Percentage:     b.Percentage,
			Amount:         b.Amount,
			Status:         string(b.Status),
			OccurredAt:     occurredAt,
		})
		if err != nil {
			log.Printf("failed to encode %s event: %v", services.EventCommissionEarned, err)
			continue
		}
		if err := f.publisher.Publish(pubCtx, services.EventCommissionEarned, payload, strconv.FormatUint(uint64(b.UserID), 10)); err != nil {
			log.Printf("failed to publish %s for user %d (%s #%d): %v", services.EventCommissionEarned, b.UserID, in.ServiceType, in.TransactionRef, err)
		}
	}
}
