package businessflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/amirphl/commission-engine/app/dto"
	"github.com/amirphl/commission-engine/models"
	"github.com/amirphl/commission-engine/repository"
	"github.com/amirphl/commission-engine/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const maxExportRows = 50000

// SettlementFlow exposes the ledger queries used by dashboards and payouts
type SettlementFlow interface {
	GetPendingCommissions(ctx context.Context, req *dto.ListCommissionsRequest) (*dto.CommissionListResponse, error)
	GetCommissionsForUser(ctx context.Context, userID uint, req *dto.ListCommissionsRequest) (*dto.CommissionListResponse, error)
	MarkPaid(ctx context.Context, req *dto.MarkCommissionsPaidRequest, metadata *ClientMetadata) (*dto.MarkCommissionsResponse, error)
	MarkFailed(ctx context.Context, req *dto.MarkCommissionsFailedRequest, metadata *ClientMetadata) (*dto.MarkCommissionsResponse, error)
	ExportPendingCommissions(ctx context.Context) (string, []byte, error)
	ReconcileWallet(ctx context.Context, userID uint) (*dto.WalletReconciliationResponse, error)
}

// SettlementFlowImpl implements SettlementFlow
type SettlementFlowImpl struct {
	commissionRepo repository.CommissionTransactionRepository
	userRepo       repository.UserRepository
	walletRepo     repository.WalletLedgerRepository
	auditRepo      repository.AuditLogRepository
}

func NewSettlementFlow(
	commissionRepo repository.CommissionTransactionRepository,
	userRepo repository.UserRepository,
	walletRepo repository.WalletLedgerRepository,
	auditRepo repository.AuditLogRepository,
) SettlementFlow {
	return &SettlementFlowImpl{
		commissionRepo: commissionRepo,
		userRepo:       userRepo,
		walletRepo:     walletRepo,
		auditRepo:      auditRepo,
	}
}

func (f *SettlementFlowImpl) GetPendingCommissions(ctx context.Context, req *dto.ListCommissionsRequest) (*dto.CommissionListResponse, error) {
	page, pageSize, err := pageOf(req)
	if err != nil {
		return nil, err
	}

	rows, err := f.commissionRepo.ListPending(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("LIST_PENDING_COMMISSIONS_FAILED", "Failed to list pending commissions", err)
	}
	return toCommissionList(rows, page, pageSize), nil
}

func (f *SettlementFlowImpl) GetCommissionsForUser(ctx context.Context, userID uint, req *dto.ListCommissionsRequest) (*dto.CommissionListResponse, error) {
	page, pageSize, err := pageOf(req)
	if err != nil {
		return nil, err
	}
	if _, err := f.getUser(ctx, userID); err != nil {
		return nil, err
	}

	rows, err := f.commissionRepo.ListByUser(ctx, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("LIST_USER_COMMISSIONS_FAILED", "Failed to list user commissions", err)
	}
	return toCommissionList(rows, page, pageSize), nil
}

// MarkPaid settles pending commissions; ids that are unknown or not pending
// are ignored and excluded from the count.
func (f *SettlementFlowImpl) MarkPaid(ctx context.Context, req *dto.MarkCommissionsPaidRequest, metadata *ClientMetadata) (*dto.MarkCommissionsResponse, error) {
	ids := uniqueIDs(req.IDs)
	if len(ids) == 0 {
		return nil, ErrCommissionIDsRequired
	}

	updated, err := f.commissionRepo.MarkPaid(ctx, ids, utils.UTCNow())
	if err != nil {
		errMsg := err.Error()
		_ = createAuditLog(ctx, f.auditRepo, models.AuditActionCommissionsMarkedPaid, "Mark paid failed", false, &errMsg, map[string]any{"ids": ids}, metadata)
		return nil, NewBusinessError("MARK_PAID_FAILED", "Failed to mark commissions as paid", err)
	}

	msg := fmt.Sprintf("Marked %d of %d commissions as paid", updated, len(ids))
	_ = createAuditLog(ctx, f.auditRepo, models.AuditActionCommissionsMarkedPaid, msg, true, nil, map[string]any{"ids": ids}, metadata)

	return &dto.MarkCommissionsResponse{Requested: len(ids), Updated: updated}, nil
}

func (f *SettlementFlowImpl) MarkFailed(ctx context.Context, req *dto.MarkCommissionsFailedRequest, metadata *ClientMetadata) (*dto.MarkCommissionsResponse, error) {
	ids := uniqueIDs(req.IDs)
	if len(ids) == 0 {
		return nil, ErrCommissionIDsRequired
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, ErrFailureReasonRequired
	}

	updated, err := f.commissionRepo.MarkFailed(ctx, ids, reason, utils.UTCNow())
	if err != nil {
		errMsg := err.Error()
		_ = createAuditLog(ctx, f.auditRepo, models.AuditActionCommissionsMarkedFail, "Mark failed failed", false, &errMsg, map[string]any{"ids": ids}, metadata)
		return nil, NewBusinessError("MARK_FAILED_FAILED", "Failed to mark commissions as failed", err)
	}

	msg := fmt.Sprintf("Marked %d of %d commissions as failed: %s", updated, len(ids), reason)
	_ = createAuditLog(ctx, f.auditRepo, models.AuditActionCommissionsMarkedFail, msg, true, nil, map[string]any{"ids": ids}, metadata)

	return &dto.MarkCommissionsResponse{Requested: len(ids), Updated: updated}, nil
}

// ExportPendingCommissions builds an XLSX payout sheet of pending commissions
func (f *SettlementFlowImpl) ExportPendingCommissions(ctx context.Context) (string, []byte, error) {
	rows, err := f.commissionRepo.ListPending(ctx, maxExportRows, 0)
	if err != nil {
		return "", nil, NewBusinessError("LIST_PENDING_COMMISSIONS_FAILED", "Failed to list pending commissions", err)
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	sheet := "pending_commissions"
	xl.SetSheetName(xl.GetSheetName(0), sheet)

	header := []string{"id", "distribution_id", "service_type", "transaction_ref", "user_id", "role", "base_amount", "percentage", "amount", "created_at"}
	_ = xl.SetSheetRow(sheet, "A1", &header)

	total := decimal.Zero
	for ri, r := range rows {
		record := []any{
			r.ID,
			r.DistributionID.String(),
			r.ServiceType,
			r.TransactionRef,
			r.UserID,
			r.Role.String(),
			r.BaseAmount.StringFixed(2),
			r.Percentage.String(),
			r.Amount.StringFixed(2),
			r.CreatedAt.UTC().Format(time.RFC3339),
		}
		cellRef, _ := excelize.CoordinatesToCellName(1, ri+2)
		_ = xl.SetSheetRow(sheet, cellRef, &record)
		total = total.Add(r.Amount)
	}

	// Totals row
	footer := []any{"total", "", "", "", "", "", "", "", total.StringFixed(2), ""}
	cellRef, _ := excelize.CoordinatesToCellName(1, len(rows)+2)
	_ = xl.SetSheetRow(sheet, cellRef, &footer)

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}
	filename := "pending_commissions_" + utils.UTCNow().Format("20060102_150405") + ".xlsx"
	return filename, buf.Bytes(), nil
}

// ReconcileWallet compares the stored balance with the signed ledger sum
func (f *SettlementFlowImpl) ReconcileWallet(ctx context.Context, userID uint) (*dto.WalletReconciliationResponse, error) {
	user, err := f.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	sum, err := f.walletRepo.SumByUser(ctx, userID)
	if err != nil {
		return nil, NewBusinessError("LEDGER_SUM_FAILED", "Failed to sum wallet ledger", err)
	}

	return &dto.WalletReconciliationResponse{
		UserID:     user.ID,
		Balance:    user.WalletBalance,
		LedgerSum:  sum,
		Consistent: user.WalletBalance.Equal(sum),
	}, nil
}

func (f *SettlementFlowImpl) getUser(ctx context.Context, userID uint) (*models.User, error) {
	user, err := f.userRepo.ByID(ctx, userID)
	if err != nil {
		return nil, NewBusinessError("USER_LOOKUP_FAILED", "Failed to load user", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func pageOf(req *dto.ListCommissionsRequest) (int, int, error) {
	if req == nil {
		return normalizePage(0, 0)
	}
	return normalizePage(req.Page, req.PageSize)
}

func toCommissionList(rows []*models.CommissionTransaction, page, pageSize int) *dto.CommissionListResponse {
	items := make([]dto.CommissionTransactionDTO, 0, len(rows))
	total := decimal.Zero
	for _, row := range rows {
		items = append(items, ToCommissionTransactionDTO(row))
		total = total.Add(row.Amount)
	}
	return &dto.CommissionListResponse{
		Items:    items,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	}
}

// uniqueIDs drops zeros and duplicates and sorts the rest
func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
