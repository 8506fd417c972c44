package businessflow

import (
	"context"
	"fmt"
	"log"

	"github.com/amirphl/commission-engine/app/dto"
	"github.com/amirphl/commission-engine/models"
	"github.com/amirphl/commission-engine/repository"
	"github.com/amirphl/commission-engine/utils"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 500
)

// RetrySummary counts the outcomes of one backfill batch
type RetrySummary struct {
	Attempted int
	Resolved  int
	Failed    int
	Abandoned int
}

// IncidentFlow is the manual backfill path for distributions that failed
type IncidentFlow interface {
	ListIncidents(ctx context.Context, req *dto.ListIncidentsRequest) (*dto.DistributionIncidentListResponse, error)
	Retry(ctx context.Context, id uint, metadata *ClientMetadata) (*dto.RetryIncidentResponse, error)
	RetryOpen(ctx context.Context, limit int) (*RetrySummary, error)
}

// IncidentFlowImpl implements IncidentFlow
type IncidentFlowImpl struct {
	incidentRepo repository.DistributionIncidentRepository
	auditRepo    repository.AuditLogRepository
	distribution DistributionFlow
	maxAttempts  int
}

func NewIncidentFlow(
	incidentRepo repository.DistributionIncidentRepository,
	auditRepo repository.AuditLogRepository,
	distribution DistributionFlow,
	maxAttempts int,
) IncidentFlow {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &IncidentFlowImpl{
		incidentRepo: incidentRepo,
		auditRepo:    auditRepo,
		distribution: distribution,
		maxAttempts:  maxAttempts,
	}
}

func (f *IncidentFlowImpl) ListIncidents(ctx context.Context, req *dto.ListIncidentsRequest) (*dto.DistributionIncidentListResponse, error) {
	page, pageSize, err := normalizePage(req.Page, req.PageSize)
	if err != nil {
		return nil, err
	}

	filter := models.DistributionIncidentFilter{}
	if req.Status != nil {
		status := models.IncidentStatus(*req.Status)
		filter.Status = &status
	}

	incidents, err := f.incidentRepo.ByFilter(ctx, filter, "id DESC", pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("LIST_INCIDENTS_FAILED", "Failed to list distribution incidents", err)
	}
	total, err := f.incidentRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("LIST_INCIDENTS_FAILED", "Failed to count distribution incidents", err)
	}

	items := make([]dto.DistributionIncidentDTO, 0, len(incidents))
	for _, incident := range incidents {
		items = append(items, ToDistributionIncidentDTO(incident))
	}

	return &dto.DistributionIncidentListResponse{
		Items:    items,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	}, nil
}

// Retry re-runs the stored distribution. A failed manual retry never
// reopens an abandoned incident.
func (f *IncidentFlowImpl) Retry(ctx context.Context, id uint, metadata *ClientMetadata) (*dto.RetryIncidentResponse, error) {
	incident, err := f.incidentRepo.ByID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("INCIDENT_LOOKUP_FAILED", "Failed to load distribution incident", err)
	}
	if incident == nil {
		return nil, ErrIncidentNotFound
	}
	if incident.Status == models.IncidentStatusResolved {
		return nil, ErrIncidentResolved
	}

	result, retryErr := f.retry(ctx, incident, metadata)

	updated, err := f.incidentRepo.ByID(ctx, id)
	if err != nil || updated == nil {
		updated = incident
	}

	resp := &dto.RetryIncidentResponse{Incident: ToDistributionIncidentDTO(updated)}
	if result != nil {
		resp.Distribution = ToDistributeCommissionResponse(result)
	}
	if retryErr != nil {
		return resp, retryErr
	}
	return resp, nil
}

// RetryOpen retries up to limit open incidents below the attempt cap
func (f *IncidentFlowImpl) RetryOpen(ctx context.Context, limit int) (*RetrySummary, error) {
	incidents, err := f.incidentRepo.ListRetryable(ctx, f.maxAttempts, limit)
	if err != nil {
		return nil, NewBusinessError("LIST_INCIDENTS_FAILED", "Failed to list retryable incidents", err)
	}

	summary := &RetrySummary{}
	for _, incident := range incidents {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		summary.Attempted++
		if _, err := f.retry(ctx, incident, nil); err != nil {
			if incident.Attempts+1 >= f.maxAttempts {
				summary.Abandoned++
			} else {
				summary.Failed++
			}
			continue
		}
		summary.Resolved++
	}
	return summary, nil
}

func (f *IncidentFlowImpl) retry(ctx context.Context, incident *models.DistributionIncident, metadata *ClientMetadata) (*DistributionResult, error) {
	in := DistributeInput{
		ServiceType:    incident.ServiceType,
		TransactionRef: incident.TransactionRef,
		BaseAmount:     incident.BaseAmount,
		Provider:       incident.Provider,
		CustomerID:     incident.CustomerID,
	}

	result, runErr := f.distribution.Execute(ctx, in, metadata)

	now := utils.UTCNow()
	status := models.IncidentStatusResolved
	reason := ""
	if runErr != nil {
		reason = runErr.Error()
		status = models.IncidentStatusOpen
		if incident.Status == models.IncidentStatusAbandoned || incident.Attempts+1 >= f.maxAttempts {
			status = models.IncidentStatusAbandoned
		}
	}

	if err := f.incidentRepo.RecordAttempt(context.WithoutCancel(ctx), incident.ID, status, reason, now); err != nil {
		log.Printf("failed to record retry of incident %d: %v", incident.ID, err)
	}

	var errMsg *string
	if runErr != nil {
		errMsg = &reason
	}
	msg := fmt.Sprintf("Retry of incident %d (%s #%d): %s", incident.ID, incident.ServiceType, incident.TransactionRef, status)
	_ = createAuditLog(ctx, f.auditRepo, models.AuditActionIncidentRetried, msg, runErr == nil, errMsg, map[string]any{
		"incident_id": incident.ID,
		"attempt":     incident.Attempts + 1,
	}, metadata)

	return result, runErr
}

func normalizePage(page, pageSize int) (int, int, error) {
	if page <= 0 {
		page = defaultPage
	}
	if pageSize == 0 {
		pageSize = defaultPageSize
	}
	if pageSize < 0 || pageSize > maxPageSize {
		return 0, 0, ErrInvalidPageSize
	}
	return page, pageSize, nil
}
