package businessflow

import (
	"context"
	"encoding/json"

	"github.com/amirphl/commission-engine/app/dto"
	"github.com/amirphl/commission-engine/models"
	"github.com/amirphl/commission-engine/repository"
	"github.com/amirphl/commission-engine/utils"
)

// ClientMetadata holds caller information recorded in audit logs
type ClientMetadata struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	RequestID string `json:"request_id,omitempty"`
	ActorID   *uint  `json:"actor_id,omitempty"` // Authenticated admin, if any
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// SetActor sets the authenticated admin id
func (cm *ClientMetadata) SetActor(actorID uint) {
	cm.ActorID = &actorID
}

// createAuditLog persists an audit row. Failures are returned but callers
// treat audit writes as best-effort.
func createAuditLog(ctx context.Context, auditRepo repository.AuditLogRepository, action, description string, success bool, errorMsg *string, details any, metadata *ClientMetadata) error {
	if auditRepo == nil {
		return nil
	}

	ipAddress := "127.0.0.1"
	audit := &models.AuditLog{
		Action:       action,
		Description:  &description,
		Success:      utils.ToPtr(success),
		ErrorMessage: errorMsg,
	}
	if metadata != nil {
		if metadata.IPAddress != "" {
			ipAddress = metadata.IPAddress
		}
		audit.ActorID = metadata.ActorID
		if metadata.RequestID != "" {
			audit.RequestID = utils.ToPtr(metadata.RequestID)
		}
	}
	audit.IPAddress = &ipAddress

	// Extract request ID from context if available
	if audit.RequestID == nil {
		if requestID, ok := ctx.Value(utils.RequestIDKey).(string); ok && requestID != "" {
			audit.RequestID = &requestID
		}
	}

	if details != nil {
		if raw, err := json.Marshal(details); err == nil {
			audit.Metadata = raw
		}
	}

	return auditRepo.Save(ctx, audit)
}

// ToCommissionTransactionDTO converts a commission transaction model to its API view
func ToCommissionTransactionDTO(ct *models.CommissionTransaction) dto.CommissionTransactionDTO {
	return dto.CommissionTransactionDTO{
		ID:             ct.ID,
		UUID:           ct.UUID.String(),
		DistributionID: ct.DistributionID.String(),
		ServiceType:    ct.ServiceType,
		TransactionRef: ct.TransactionRef,
		UserID:         ct.UserID,
		Role:           ct.Role.String(),
		BaseAmount:     ct.BaseAmount,
		Percentage:     ct.Percentage,
		Amount:         ct.Amount,
		Status:         string(ct.Status),
		CreatedAt:      ct.CreatedAt,
		PaidAt:         ct.PaidAt,
		FailedAt:       ct.FailedAt,
		FailureReason:  ct.FailureReason,
	}
}

// ToCommissionConfigDTO converts a commission config model to its API view
func ToCommissionConfigDTO(cfg *models.CommissionConfig) dto.CommissionConfigDTO {
	return dto.CommissionConfigDTO{
		ID:                cfg.ID,
		UUID:              cfg.UUID.String(),
		ServiceType:       cfg.ServiceType,
		Provider:          cfg.Provider,
		AdminPct:          cfg.AdminPct,
		BranchManagerPct:  cfg.BranchManagerPct,
		TalukManagerPct:   cfg.TalukManagerPct,
		ServiceAgentPct:   cfg.ServiceAgentPct,
		RegisteredUserPct: cfg.RegisteredUserPct,
		TotalPct:          cfg.TotalPct,
		StartDate:         cfg.StartDate,
		EndDate:           cfg.EndDate,
		IsPeakRate:        cfg.IsPeakRate,
		IsActive:          cfg.IsActive,
		Description:       cfg.Description,
		CreatedAt:         cfg.CreatedAt,
		UpdatedAt:         cfg.UpdatedAt,
	}
}

// ToDistributionIncidentDTO converts an incident model to its API view
func ToDistributionIncidentDTO(incident *models.DistributionIncident) dto.DistributionIncidentDTO {
	return dto.DistributionIncidentDTO{
		ID:             incident.ID,
		ServiceType:    incident.ServiceType,
		TransactionRef: incident.TransactionRef,
		CustomerID:     incident.CustomerID,
		BaseAmount:     incident.BaseAmount,
		Provider:       incident.Provider,
		Reason:         incident.Reason,
		ErrorCode:      incident.ErrorCode,
		Status:         string(incident.Status),
		Attempts:       incident.Attempts,
		LastAttemptAt:  incident.LastAttemptAt,
		ResolvedAt:     incident.ResolvedAt,
		CreatedAt:      incident.CreatedAt,
	}
}

// ToDistributeCommissionResponse converts a distribution result to its API view
func ToDistributeCommissionResponse(result *DistributionResult) *dto.DistributeCommissionResponse {
	resp := &dto.DistributeCommissionResponse{
		ServiceType:        result.ServiceType,
		TransactionRef:     result.TransactionRef,
		TotalDistributed:   result.TotalDistributed,
		Beneficiaries:      make([]dto.BeneficiaryShareDTO, 0, len(result.Beneficiaries)),
		AlreadyDistributed: result.AlreadyDistributed,
	}
	if result.DistributionID != nil {
		resp.DistributionID = result.DistributionID.String()
	}
	for _, b := range result.Beneficiaries {
		resp.Beneficiaries = append(resp.Beneficiaries, dto.BeneficiaryShareDTO{
			CommissionID: b.CommissionID,
			UserID:       b.UserID,
			Role:         b.Role.String(),
			Percentage:   b.Percentage,
			Amount:       b.Amount,
			Status:       string(b.Status),
		})
	}
	return resp
}
