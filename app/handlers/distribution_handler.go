package handlers

import (
	"errors"
	"log"

	"github.com/amirphl/commission-engine/app/dto"
	businessflow "github.com/amirphl/commission-engine/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// DistributionHandlerInterface defines the contract for distribution handlers
type DistributionHandlerInterface interface {
	Distribute(c fiber.Ctx) error
}

// DistributionHandler exposes the distribution entrypoint to service modules
type DistributionHandler struct {
	flow      businessflow.DistributionFlow
	validator *validator.Validate
}

func NewDistributionHandler(flow businessflow.DistributionFlow) *DistributionHandler {
	return &DistributionHandler{
		flow:      flow,
		validator: validator.New(),
	}
}

// Distribute fans a completed transaction's commission out to its beneficiaries.
// @Summary Distribute commission
// @Description Resolve the active config and the beneficiary chain, then credit every beneficiary atomically. A repeated call for the same transaction returns the earlier result.
// @Tags Commissions
// @Accept json
// @Produce json
// @Param X-API-Key header string false "Service API key"
// @Param request body dto.DistributeCommissionRequest true "Distribution payload"
// @Success 201 {object} dto.APIResponse{data=dto.DistributeCommissionResponse} "Distributed"
// @Success 200 {object} dto.APIResponse{data=dto.DistributeCommissionResponse} "Already distributed"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 422 {object} dto.APIResponse "No config or incomplete hierarchy"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/commissions/distribute [post]
func (h *DistributionHandler) Distribute(c fiber.Ctx) error {
	var req dto.DistributeCommissionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, err := validate(c, h.validator, &req); !ok {
		return err
	}

	ctx, cancel := createRequestContext(c, "/api/v1/commissions/distribute")
	defer cancel()

	res, err := h.flow.Distribute(ctx, &req, clientMetadata(c))
	if err != nil {
		switch {
		case businessflow.IsInvalidAmount(err):
			return errorResponse(c, fiber.StatusBadRequest, "Amount must be greater than zero", "INVALID_AMOUNT", nil)
		case businessflow.IsInvalidDistributionRequest(err):
			return errorResponse(c, fiber.StatusBadRequest, err.Error(), "VALIDATION_ERROR", nil)
		case businessflow.IsConfigNotFound(err):
			return errorResponse(c, fiber.StatusUnprocessableEntity, "No active commission config for this service", "CONFIG_NOT_FOUND", fiber.Map{
				"service_type": req.ServiceType,
				"provider":     req.Provider,
			})
		case businessflow.IsBeneficiaryNotFound(err):
			role, _ := businessflow.MissingRole(err)
			return errorResponse(c, fiber.StatusUnprocessableEntity, "Beneficiary hierarchy is incomplete", "BENEFICIARY_NOT_FOUND", fiber.Map{
				"role": role,
			})
		}

		var de *businessflow.DistributionError
		stage := businessflow.StageFailed
		if errors.As(err, &de) {
			stage = de.Stage
		}
		log.Println("Distribute commission failed:", err)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to distribute commission", "DISTRIBUTION_FAILED", fiber.Map{"stage": stage})
	}

	if res.AlreadyDistributed {
		return successResponse(c, fiber.StatusOK, "Commission already distributed", res)
	}
	return successResponse(c, fiber.StatusCreated, "Commission distributed successfully", res)
}
