package handlers

import (
	"log"

	"github.com/amirphl/commission-engine/app/dto"
	businessflow "github.com/amirphl/commission-engine/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// IncidentHandlerInterface defines the contract for incident handlers
type IncidentHandlerInterface interface {
	List(c fiber.Ctx) error
	Retry(c fiber.Ctx) error
}

// IncidentHandler exposes failed distributions for manual backfill
type IncidentHandler struct {
	flow      businessflow.IncidentFlow
	validator *validator.Validate
}

func NewIncidentHandler(flow businessflow.IncidentFlow) *IncidentHandler {
	return &IncidentHandler{
		flow:      flow,
		validator: validator.New(),
	}
}

// List lists distribution incidents.
// @Summary List distribution incidents
// @Tags Admin Incidents
// @Produce json
// @Security BearerAuth
// @Param status query string false "open, resolved or abandoned" default(open)
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Page size" default(50)
// @Success 200 {object} dto.APIResponse{data=dto.DistributionIncidentListResponse} "Retrieved"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/incidents [get]
func (h *IncidentHandler) List(c fiber.Ctx) error {
	page := pageQuery(c)
	status := c.Query("status", "open")
	req := dto.ListIncidentsRequest{
		Page:     page.Page,
		PageSize: page.PageSize,
	}
	if status != "all" {
		req.Status = &status
	}
	if ok, err := validate(c, h.validator, &req); !ok {
		return err
	}

	ctx, cancel := createRequestContext(c, "/api/v1/admin/incidents")
	defer cancel()

	res, err := h.flow.ListIncidents(ctx, &req)
	if err != nil {
		if businessflow.IsInvalidPageSize(err) {
			return errorResponse(c, fiber.StatusBadRequest, err.Error(), "INVALID_PAGE_SIZE", nil)
		}
		log.Println("List distribution incidents failed:", err)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to list incidents", "LIST_INCIDENTS_FAILED", nil)
	}
	return successResponse(c, fiber.StatusOK, "Incidents retrieved", res)
}

// Retry re-runs the distribution of an incident.
// @Summary Retry distribution incident
// @Tags Admin Incidents
// @Produce json
// @Security BearerAuth
// @Param id path int true "Incident ID"
// @Success 200 {object} dto.APIResponse{data=dto.RetryIncidentResponse} "Resolved"
// @Failure 404 {object} dto.APIResponse "Incident not found"
// @Failure 409 {object} dto.APIResponse "Incident already resolved"
// @Failure 422 {object} dto.APIResponse "Retry failed again"
// @Router /api/v1/admin/incidents/{id}/retry [post]
func (h *IncidentHandler) Retry(c fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid incident ID", "INVALID_INCIDENT_ID", nil)
	}

	ctx, cancel := createRequestContext(c, "/api/v1/admin/incidents/:id/retry")
	defer cancel()

	res, err := h.flow.Retry(ctx, id, clientMetadata(c))
	if err != nil {
		switch {
		case businessflow.IsIncidentNotFound(err):
			return errorResponse(c, fiber.StatusNotFound, "Incident not found", "INCIDENT_NOT_FOUND", nil)
		case businessflow.IsIncidentResolved(err):
			return errorResponse(c, fiber.StatusConflict, "Incident already resolved", "INCIDENT_RESOLVED", nil)
		case res != nil:
			return errorResponse(c, fiber.StatusUnprocessableEntity, "Retry failed", "RETRY_FAILED", fiber.Map{
				"reason":   err.Error(),
				"incident": res.Incident,
			})
		}
		log.Println("Retry distribution incident failed:", err)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to retry incident", "RETRY_FAILED", nil)
	}
	return successResponse(c, fiber.StatusOK, "Incident resolved", res)
}
