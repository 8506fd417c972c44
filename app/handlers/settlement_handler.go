package handlers

import (
	"log"

	"github.com/amirphl/commission-engine/app/dto"
	businessflow "github.com/amirphl/commission-engine/business_flow"
	"github.com/amirphl/commission-engine/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// SettlementHandlerInterface defines the contract for settlement handlers
type SettlementHandlerInterface interface {
	ListPending(c fiber.Ctx) error
	ListForUser(c fiber.Ctx) error
	MarkPaid(c fiber.Ctx) error
	MarkFailed(c fiber.Ctx) error
	ExportPending(c fiber.Ctx) error
	ReconcileWallet(c fiber.Ctx) error
}

// SettlementHandler serves the admin ledger endpoints
type SettlementHandler struct {
	flow      businessflow.SettlementFlow
	validator *validator.Validate
}

func NewSettlementHandler(flow businessflow.SettlementFlow) *SettlementHandler {
	return &SettlementHandler{
		flow:      flow,
		validator: validator.New(),
	}
}

// ListPending lists pending commissions, oldest first.
// @Summary List pending commissions
// @Tags Admin Commissions
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Page size" default(50)
// @Success 200 {object} dto.APIResponse{data=dto.CommissionListResponse} "Retrieved"
// @Failure 400 {object} dto.APIResponse "Invalid paging"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/commissions/pending [get]
func (h *SettlementHandler) ListPending(c fiber.Ctx) error {
	req := pageQuery(c)
	if ok, err := validate(c, h.validator, &req); !ok {
		return err
	}

	ctx, cancel := createRequestContext(c, "/api/v1/admin/commissions/pending")
	defer cancel()

	res, err := h.flow.GetPendingCommissions(ctx, &req)
	if err != nil {
		if businessflow.IsInvalidPageSize(err) {
			return errorResponse(c, fiber.StatusBadRequest, err.Error(), "INVALID_PAGE_SIZE", nil)
		}
		log.Println("List pending commissions failed:", err)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to list pending commissions", "LIST_PENDING_FAILED", nil)
	}
	return successResponse(c, fiber.StatusOK, "Pending commissions retrieved", res)
}

// ListForUser lists the commissions earned by one user, newest first.
// @Summary List user commissions
// @Tags Admin Commissions
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Page size" default(50)
// @Success 200 {object} dto.APIResponse{data=dto.CommissionListResponse} "Retrieved"
// @Failure 400 {object} dto.APIResponse "Invalid request"
// @Failure 404 {object} dto.APIResponse "User not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/users/{id}/commissions [get]
func (h *SettlementHandler) ListForUser(c fiber.Ctx) error {
	userID, ok := idParam(c, "id")
	if !ok {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid user ID", "INVALID_USER_ID", nil)
	}
	req := pageQuery(c)
	if ok, err := validate(c, h.validator, &req); !ok {
		return err
	}

	ctx, cancel := createRequestContext(c, "/api/v1/admin/users/:id/commissions")
	defer cancel()

	res, err := h.flow.GetCommissionsForUser(ctx, userID, &req)
	if err != nil {
		switch {
		case businessflow.IsUserNotFound(err):
			return errorResponse(c, fiber.StatusNotFound, "User not found", "USER_NOT_FOUND", nil)
		case businessflow.IsInvalidPageSize(err):
			return errorResponse(c, fiber.StatusBadRequest, err.Error(), "INVALID_PAGE_SIZE", nil)
		}
		log.Println("List user commissions failed:", err)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to list user commissions", "LIST_USER_COMMISSIONS_FAILED", nil)
	}
	return successResponse(c, fiber.StatusOK, "User commissions retrieved", res)
}

// MarkPaid settles pending commissions.
// @Summary Mark commissions paid
// @Tags Admin Commissions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.MarkCommissionsPaidRequest true "Commission IDs"
// @Success 200 {object} dto.APIResponse{data=dto.MarkCommissionsResponse} "Updated"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/commissions/mark-paid [post]
func (h *SettlementHandler) MarkPaid(c fiber.Ctx) error {
	var req dto.MarkCommissionsPaidRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, err := validate(c, h.validator, &req); !ok {
		return err
	}

	ctx, cancel := createRequestContext(c, "/api/v1/admin/commissions/mark-paid")
	defer cancel()

	res, err := h.flow.MarkPaid(ctx, &req, clientMetadata(c))
	if err != nil {
		if businessflow.IsCommissionIDsRequired(err) {
			return errorResponse(c, fiber.StatusBadRequest, err.Error(), "VALIDATION_ERROR", nil)
		}
		log.Println("Mark commissions paid failed:", err)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to mark commissions as paid", "MARK_PAID_FAILED", nil)
	}
	return successResponse(c, fiber.StatusOK, "Commissions marked as paid", res)
}

// MarkFailed flags pending commissions whose payout failed.
// @Summary Mark commissions failed
// @Tags Admin Commissions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.MarkCommissionsFailedRequest true "Commission IDs and reason"
// @Success 200 {object} dto.APIResponse{data=dto.MarkCommissionsResponse} "Updated"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/commissions/mark-failed [post]
func (h *SettlementHandler) MarkFailed(c fiber.Ctx) error {
	var req dto.MarkCommissionsFailedRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, err := validate(c, h.validator, &req); !ok {
		return err
	}

	ctx, cancel := createRequestContext(c, "/api/v1/admin/commissions/mark-failed")
	defer cancel()

	res, err := h.flow.MarkFailed(ctx, &req, clientMetadata(c))
	if err != nil {
		if businessflow.IsCommissionIDsRequired(err) || businessflow.IsFailureReasonRequired(err) {
			return errorResponse(c, fiber.StatusBadRequest, err.Error(), "VALIDATION_ERROR", nil)
		}
		log.Println("Mark commissions failed failed:", err)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to mark commissions as failed", "MARK_FAILED_FAILED", nil)
	}
	return successResponse(c, fiber.StatusOK, "Commissions marked as failed", res)
}

// ExportPending downloads pending commissions as a spreadsheet.
// @Summary Export pending commissions
// @Tags Admin Commissions
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Success 200 {file} file "XLSX file"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/commissions/export [get]
func (h *SettlementHandler) ExportPending(c fiber.Ctx) error {
	ctx, cancel := createRequestContextWithTimeout(c, "/api/v1/admin/commissions/export", utils.ExportTimeout)
	defer cancel()

	filename, data, err := h.flow.ExportPendingCommissions(ctx)
	if err != nil {
		log.Println("Export pending commissions failed:", err)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to generate spreadsheet", "EXPORT_FAILED", nil)
	}
	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", "attachment; filename="+filename)
	return c.Send(data)
}

// ReconcileWallet compares a wallet balance with its ledger.
// @Summary Reconcile wallet
// @Tags Admin Commissions
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} dto.APIResponse{data=dto.WalletReconciliationResponse} "Reconciled"
// @Failure 400 {object} dto.APIResponse "Invalid user ID"
// @Failure 404 {object} dto.APIResponse "User not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/admin/users/{id}/wallet/reconcile [get]
func (h *SettlementHandler) ReconcileWallet(c fiber.Ctx) error {
	userID, ok := idParam(c, "id")
	if !ok {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid user ID", "INVALID_USER_ID", nil)
	}

	ctx, cancel := createRequestContext(c, "/api/v1/admin/users/:id/wallet/reconcile")
	defer cancel()

	res, err := h.flow.ReconcileWallet(ctx, userID)
	if err != nil {
		if businessflow.IsUserNotFound(err) {
			return errorResponse(c, fiber.StatusNotFound, "User not found", "USER_NOT_FOUND", nil)
		}
		log.Println("Wallet reconciliation failed:", err)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to reconcile wallet", "RECONCILE_FAILED", nil)
	}
	if !res.Consistent {
		log.Printf("Wallet of user %d is out of balance: balance=%s ledger=%s", res.UserID, res.Balance, res.LedgerSum)
	}
	return successResponse(c, fiber.StatusOK, "Wallet reconciled", res)
}
