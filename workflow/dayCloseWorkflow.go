package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/temple_backend/config"
	"bitbucket.org/mmdatafocus/temple_backend/models"
	"bitbucket.org/mmdatafocus/temple_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateDayReconciliation snapshots the given date's sales and opens the
// day-end record. One record per date; the advisory lock keeps two supervisors
// from racing past the uniqueness check.
func CreateDayReconciliation(ctx context.Context, dateString string) (*models.Reconciliation, error) {
	date, err := utils.ParseDateOnly(dateString, config.TempleTimezone())
	if err != nil {
		return nil, &models.ValidationError{Message: "date must be in YYYY-MM-DD format"}
	}

	db := config.GetDB()
	logger := config.GetLogger()

	var recon *models.Reconciliation
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireDayCloseLock(tx, dateString); err != nil {
			return err
		}
		defer ReleaseDayCloseLock(tx, dateString)

		var count int64
		if err := tx.Model(&models.Reconciliation{}).
			Where("reconciliation_date = ?", date).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return &models.DuplicateReconciliationError{Date: dateString}
		}

		sales, err := models.GetSalesForDate(tx, date)
		if err != nil {
			return err
		}
		summary := models.SummarizeSalesByCounter(sales)

		recon = &models.Reconciliation{
			ReconciliationDate: date,
			TotalTokens:        summary.TotalTokens,
			TotalAmount:        summary.TotalAmount,
			TotalCash:          summary.TotalCash,
			TotalUpi:           summary.TotalUpi,
			CounterSummaries:   summary.Counters,
		}
		// The advisory lock is released when this closure returns, before the
		// commit, so a racing caller can pass the count check while our insert
		// is still uncommitted. The unique reconciliation_date index catches it;
		// surface that as the same typed conflict the count check produces.
		if err := tx.Create(recon).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return &models.DuplicateReconciliationError{Date: dateString}
			}
			return err
		}
		return nil
	})
	if err != nil {
		config.LogError(logger, "dayCloseWorkflow.go", "CreateDayReconciliation", "creating reconciliation", dateString, err)
		return nil, err
	}
	return recon, nil
}

type ManualCountInput struct {
	CountedCashAmount decimal.Decimal `json:"counted_cash_amount"`
	DiscrepancyNotes  string          `json:"discrepancy_notes"`
}

// RecordManualCount stores the physically counted cash against the recorded
// total. The difference outside tolerance flags a discrepancy; approval then
// requires notes explaining it. Recountable any number of times before approval.
func RecordManualCount(ctx context.Context, reconciliationId int, input *ManualCountInput) (*models.Reconciliation, error) {
	if input.CountedCashAmount.IsNegative() {
		return nil, &models.ValidationError{Message: "counted cash must not be negative"}
	}

	db := config.GetDB()
	var recon models.Reconciliation
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", reconciliationId).Take(&recon).Error
		if err == gorm.ErrRecordNotFound {
			return &models.ReconciliationNotFoundError{Id: reconciliationId}
		}
		if err != nil {
			return err
		}
		if recon.IsReconciled {
			return &models.AlreadyApprovedError{Id: recon.ID, Date: recon.ReconciliationDate.Format("2006-01-02")}
		}

		diff, hasDiscrepancy := models.CashDiscrepancy(
			input.CountedCashAmount, recon.TotalCash, config.CashCountTolerance())

		counted := input.CountedCashAmount
		recon.CountedCashAmount = &counted
		recon.HasDiscrepancy = hasDiscrepancy
		recon.DiscrepancyAmount = diff
		recon.DiscrepancyNotes = input.DiscrepancyNotes

		return tx.Model(&models.Reconciliation{}).Where("id = ?", recon.ID).Updates(map[string]interface{}{
			"counted_cash_amount": input.CountedCashAmount,
			"has_discrepancy":     hasDiscrepancy,
			"discrepancy_amount":  diff,
			"discrepancy_notes":   input.DiscrepancyNotes,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &recon, nil
}

// frozenSummary is the payload shape published to the accounting ledger.
type frozenSummary struct {
	ReconciliationId   int                                   `json:"reconciliation_id"`
	ReconciliationDate string                                `json:"reconciliation_date"`
	TotalTokens        int                                   `json:"total_tokens"`
	TotalAmount        decimal.Decimal                       `json:"total_amount"`
	TotalCash          decimal.Decimal                       `json:"total_cash"`
	TotalUpi           decimal.Decimal                       `json:"total_upi"`
	CountedCashAmount  *decimal.Decimal                      `json:"counted_cash_amount"`
	DiscrepancyAmount  decimal.Decimal                       `json:"discrepancy_amount"`
	Counters           []models.ReconciliationCounterSummary `json:"counters"`
	ApprovedBy         string                                `json:"approved_by"`
}

// ApproveDayReconciliation freezes the record and stages the outbox posting in
// the same transaction. Totals are recomputed from the sale rows first, so
// voids recorded after the reconciliation was opened are folded in before the
// freeze. Approval without a manual count, or with an unexplained discrepancy,
// is rejected.
func ApproveDayReconciliation(ctx context.Context, reconciliationId int) (*models.Reconciliation, error) {
	role, _ := utils.GetUserRoleFromContext(ctx)
	if !models.UserRole(role).CanApproveDayClose() {
		return nil, &models.ForbiddenError{Message: "approval requires a supervisor or admin role"}
	}
	userName, _ := utils.GetUserNameFromContext(ctx)

	db := config.GetDB()
	logger := config.GetLogger()

	var recon models.Reconciliation
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", reconciliationId).Take(&recon).Error
		if err == gorm.ErrRecordNotFound {
			return &models.ReconciliationNotFoundError{Id: reconciliationId}
		}
		if err != nil {
			return err
		}

		dateString := recon.ReconciliationDate.Format("2006-01-02")
		if err := AcquireDayCloseLock(tx, dateString); err != nil {
			return err
		}
		defer ReleaseDayCloseLock(tx, dateString)

		if recon.IsReconciled {
			return &models.AlreadyApprovedError{Id: recon.ID, Date: dateString}
		}
		if recon.CountedCashAmount == nil {
			return &models.ValidationError{Message: "record a manual cash count before approving"}
		}

		// Refold from the sale rows: voids since creation must be reflected in
		// the frozen totals.
		sales, err := models.GetSalesForDate(tx, recon.ReconciliationDate)
		if err != nil {
			return err
		}
		summary := models.SummarizeSalesByCounter(sales)

		diff, hasDiscrepancy := models.CashDiscrepancy(
			*recon.CountedCashAmount, summary.TotalCash, config.CashCountTolerance())
		if hasDiscrepancy && recon.DiscrepancyNotes == "" {
			return &models.UnresolvedDiscrepancyError{Id: recon.ID}
		}

		if err := tx.Where("reconciliation_id = ?", recon.ID).
			Delete(&models.ReconciliationCounterSummary{}).Error; err != nil {
			return err
		}
		for i := range summary.Counters {
			summary.Counters[i].ReconciliationId = recon.ID
			if err := tx.Create(&summary.Counters[i]).Error; err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		result := tx.Model(&models.Reconciliation{}).
			Where("id = ? AND is_reconciled = 0", recon.ID).
			Updates(map[string]interface{}{
				"total_tokens":       summary.TotalTokens,
				"total_amount":       summary.TotalAmount,
				"total_cash":         summary.TotalCash,
				"total_upi":          summary.TotalUpi,
				"has_discrepancy":    hasDiscrepancy,
				"discrepancy_amount": diff,
				"is_reconciled":      true,
				"approved_by":        userName,
				"approved_at":        &now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return &models.AlreadyApprovedError{Id: recon.ID, Date: dateString}
		}

		recon.TotalTokens = summary.TotalTokens
		recon.TotalAmount = summary.TotalAmount
		recon.TotalCash = summary.TotalCash
		recon.TotalUpi = summary.TotalUpi
		recon.HasDiscrepancy = hasDiscrepancy
		recon.DiscrepancyAmount = diff
		recon.IsReconciled = true
		recon.ApprovedBy = userName
		recon.ApprovedAt = &now
		recon.CounterSummaries = summary.Counters

		payload, err := json.Marshal(frozenSummary{
			ReconciliationId:   recon.ID,
			ReconciliationDate: dateString,
			TotalTokens:        recon.TotalTokens,
			TotalAmount:        recon.TotalAmount,
			TotalCash:          recon.TotalCash,
			TotalUpi:           recon.TotalUpi,
			CountedCashAmount:  recon.CountedCashAmount,
			DiscrepancyAmount:  recon.DiscrepancyAmount,
			Counters:           recon.CounterSummaries,
			ApprovedBy:         userName,
		})
		if err != nil {
			return err
		}

		correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
		postingRecord := models.DayClosePostingRecord{
			ReconciliationId:   recon.ID,
			ReconciliationDate: recon.ReconciliationDate,
			ApprovedAt:         now,
			Payload:            payload,
			PublishStatus:      models.OutboxPublishStatusPending,
			CorrelationId:      correlationId,
		}
		if err := tx.Create(&postingRecord).Error; err != nil {
			return err
		}

		return createApprovalHistory(tx, ctx, recon.ID, dateString)
	})
	if err != nil {
		config.LogError(logger, "dayCloseWorkflow.go", "ApproveDayReconciliation", "approving reconciliation", reconciliationId, err)
		return nil, err
	}
	return &recon, nil
}

func createApprovalHistory(tx *gorm.DB, ctx context.Context, reconciliationId int, dateString string) error {
	return models.CreateHistoryInTx(tx, ctx, "APPROVE",
		strconv.Itoa(reconciliationId), "Reconciliation",
		map[string]interface{}{"is_reconciled": true},
		"day reconciliation for "+dateString+" approved")
}

type NewAdjustmentInput struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

// AddReconciliationAdjustment appends a compensating entry to an approved
// record. The frozen record itself never changes.
func AddReconciliationAdjustment(ctx context.Context, reconciliationId int, input *NewAdjustmentInput) (*models.ReconciliationAdjustment, error) {
	if input.Reason == "" {
		return nil, &models.ValidationError{Message: "an adjustment reason is required"}
	}
	if input.Amount.IsZero() {
		return nil, &models.ValidationError{Message: "adjustment amount must not be zero"}
	}

	userName, _ := utils.GetUserNameFromContext(ctx)
	db := config.GetDB()

	var adjustment models.ReconciliationAdjustment
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var recon models.Reconciliation
		err := tx.Where("id = ?", reconciliationId).Take(&recon).Error
		if err == gorm.ErrRecordNotFound {
			return &models.ReconciliationNotFoundError{Id: reconciliationId}
		}
		if err != nil {
			return err
		}
		if !recon.IsReconciled {
			return &models.ValidationError{Message: "adjustments apply to approved reconciliations; edit this one directly"}
		}

		adjustment = models.ReconciliationAdjustment{
			ReconciliationId: recon.ID,
			Amount:           input.Amount,
			Reason:           input.Reason,
			CreatedBy:        userName,
		}
		if err := tx.Create(&adjustment).Error; err != nil {
			return err
		}

		return models.CreateHistoryInTx(tx, ctx, "ADJUST",
			strconv.Itoa(recon.ID), "Reconciliation",
			map[string]interface{}{"amount": input.Amount, "reason": input.Reason},
			"adjustment recorded against reconciliation "+strconv.Itoa(recon.ID))
	})
	if err != nil {
		return nil, err
	}
	return &adjustment, nil
}
