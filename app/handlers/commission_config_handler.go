package handlers

import (
	"log"
	"strings"

	"github.com/amirphl/commission-engine/app/dto"
	businessflow "github.com/amirphl/commission-engine/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// CommissionConfigHandlerInterface defines the contract for commission config handlers
type CommissionConfigHandlerInterface interface {
	Create(c fiber.Ctx) error
	List(c fiber.Ctx) error
	Deactivate(c fiber.Ctx) error
}

// CommissionConfigHandler manages commission rate sets
type CommissionConfigHandler struct {
	flow      businessflow.CommissionConfigFlow
	validator *validator.Validate
}

func NewCommissionConfigHandler(flow businessflow.CommissionConfigFlow) *CommissionConfigHandler {
	return &CommissionConfigHandler{
		flow:      flow,
		validator: validator.New(),
	}
}

// Create adds a commission config.
// @Summary Create commission config
// @Description Role rates must be non-negative and add up to total_pct. An optional [start_date, end_date) window turns the config into a seasonal override.
// @Tags Admin Commission Configs
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.CreateCommissionConfigRequest true "Config payload"
// @Success 201 {object} dto.APIResponse{data=dto.CommissionConfigDTO} "Created"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/commission-configs [post]
func (h *CommissionConfigHandler) Create(c fiber.Ctx) error {
	var req dto.CreateCommissionConfigRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, err := validate(c, h.validator, &req); !ok {
		return err
	}

	ctx, cancel := createRequestContext(c, "/api/v1/admin/commission-configs")
	defer cancel()

	res, err := h.flow.CreateConfig(ctx, &req, clientMetadata(c))
	if err != nil {
		if businessflow.IsInvalidCommissionConfig(err) || businessflow.IsServiceTypeRequired(err) {
			return errorResponse(c, fiber.StatusBadRequest, err.Error(), "INVALID_COMMISSION_CONFIG", nil)
		}
		log.Println("Create commission config failed:", err)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to create commission config", "CREATE_COMMISSION_CONFIG_FAILED", nil)
	}
	return successResponse(c, fiber.StatusCreated, "Commission config created successfully", res)
}

// List lists commission configs.
// @Summary List commission configs
// @Tags Admin Commission Configs
// @Produce json
// @Security BearerAuth
// @Param service_type query string false "Service type"
// @Param active_only query bool false "Only active configs"
// @Success 200 {object} dto.APIResponse{data=[]dto.CommissionConfigDTO} "Retrieved"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/commission-configs [get]
func (h *CommissionConfigHandler) List(c fiber.Ctx) error {
	req := dto.ListCommissionConfigsRequest{
		ActiveOnly: strings.EqualFold(c.Query("active_only"), "true"),
	}
	if st := c.Query("service_type"); st != "" {
		req.ServiceType = &st
	}
	if ok, err := validate(c, h.validator, &req); !ok {
		return err
	}

	ctx, cancel := createRequestContext(c, "/api/v1/admin/commission-configs")
	defer cancel()

	res, err := h.flow.ListConfigs(ctx, &req)
	if err != nil {
		log.Println("List commission configs failed:", err)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to list commission configs", "LIST_COMMISSION_CONFIGS_FAILED", nil)
	}
	return successResponse(c, fiber.StatusOK, "Commission configs retrieved", res)
}

// Deactivate retires a commission config.
// @Summary Deactivate commission config
// @Tags Admin Commission Configs
// @Produce json
// @Security BearerAuth
// @Param id path int true "Config ID"
// @Success 200 {object} dto.APIResponse "Deactivated"
// @Failure 400 {object} dto.APIResponse "Invalid config ID"
// @Failure 404 {object} dto.APIResponse "Config not found or already inactive"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/commission-configs/{id}/deactivate [post]
func (h *CommissionConfigHandler) Deactivate(c fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid config ID", "INVALID_CONFIG_ID", nil)
	}

	ctx, cancel := createRequestContext(c, "/api/v1/admin/commission-configs/:id/deactivate")
	defer cancel()

	if err := h.flow.DeactivateConfig(ctx, id, clientMetadata(c)); err != nil {
		if businessflow.IsCommissionConfigNotFound(err) {
			return errorResponse(c, fiber.StatusNotFound, err.Error(), "COMMISSION_CONFIG_NOT_FOUND", nil)
		}
		log.Println("Deactivate commission config failed:", err)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to deactivate commission config", "DEACTIVATE_COMMISSION_CONFIG_FAILED", nil)
	}
	return successResponse(c, fiber.StatusOK, "Commission config deactivated", fiber.Map{"id": id})
}
