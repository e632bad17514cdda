package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/temple_backend/config"
	"bitbucket.org/mmdatafocus/temple_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Sale is the immutable record of one token exchanged for payment.
// Corrections are voids, never edits.
type Sale struct {
	ID            string          `gorm:"primary_key;size:36" json:"id"`
	SevaId        int             `gorm:"index:idx_sale_token;not null" json:"seva_id"`
	SerialNumber  string          `gorm:"index:idx_sale_token;size:50;not null" json:"serial_number"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	PaymentMode   PaymentMode     `gorm:"type:enum('cash','upi');not null" json:"payment_mode"`
	UpiReference  *string         `gorm:"size:100" json:"upi_reference"`
	CounterNumber int             `gorm:"index:idx_sale_counter_date;not null" json:"counter_number"`
	DevoteeId     *int            `gorm:"index" json:"devotee_id"`
	SaleTimestamp time.Time       `gorm:"not null" json:"sale_timestamp"`
	SaleDate      time.Time       `gorm:"type:date;index:idx_sale_counter_date;index;not null" json:"sale_date"`
	IsVoided      bool            `gorm:"not null;default:false" json:"is_voided"`
	VoidReason    string          `gorm:"size:255" json:"void_reason"`
	VoidedAt      *time.Time      `json:"voided_at"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSale struct {
	SevaId        int             `json:"seva_id" binding:"required"`
	SerialNumber  string          `json:"serial_number" binding:"required"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMode   PaymentMode     `json:"payment_mode" binding:"required"`
	UpiReference  *string         `json:"upi_reference"`
	CounterNumber int             `json:"counter_number" binding:"required"`
	DevoteeId     *int            `json:"devotee_id"`
}

// validate rejects bad input before any inventory mutation.
func (input *NewSale) validate(ctx context.Context) error {
	if !input.Amount.IsPositive() {
		return &ValidationError{Message: "amount must be greater than zero"}
	}
	if !input.PaymentMode.IsValid() {
		return &ValidationError{Message: "payment mode must be cash or upi"}
	}
	if input.CounterNumber <= 0 {
		return &ValidationError{Message: "counter number is required"}
	}
	if input.SerialNumber == "" {
		return &ValidationError{Message: "serial number is required"}
	}

	seva, err := GetSevaCached(ctx, input.SevaId)
	if err != nil {
		if err == utils.ErrorRecordNotFound {
			return &ValidationError{Message: "seva not found"}
		}
		return err
	}
	if !utils.DereferencePtr(seva.IsTokenEligible) {
		return &ValidationError{Message: "seva is not sold by token"}
	}

	if input.DevoteeId != nil {
		if err := utils.ValidateResourceId[Devotee](ctx, *input.DevoteeId); err != nil {
			if err == utils.ErrorRecordNotFound {
				return &ValidationError{Message: "devotee not found"}
			}
			return err
		}
	}
	return nil
}

// RecordSale reserves the token and inserts the sale as one atomic unit: both
// commit or neither does. TokenUnavailableError / TokenNotFoundError propagate
// unchanged; the remedy is scanning a fresh token, never retrying this serial.
func RecordSale(ctx context.Context, input *NewSale) (*Sale, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	saleDate, err := utils.ConvertToDate(now, config.TempleTimezone())
	if err != nil {
		return nil, err
	}

	sale := Sale{
		ID:            uuid.NewString(),
		SevaId:        input.SevaId,
		SerialNumber:  input.SerialNumber,
		Amount:        input.Amount,
		PaymentMode:   input.PaymentMode,
		UpiReference:  input.UpiReference,
		CounterNumber: input.CounterNumber,
		DevoteeId:     input.DevoteeId,
		SaleTimestamp: now,
		SaleDate:      saleDate,
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := reserveTokenForSale(tx, input.SevaId, input.SerialNumber); err != nil {
			return err
		}
		return tx.Create(&sale).Error
	})
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// VoidSale marks a sale voided (retained, not deleted) and reverses its token.
// Blocked once an approved reconciliation covers the sale's date.
func VoidSale(ctx context.Context, saleId string, reason string) (*Sale, error) {
	if reason == "" {
		return nil, &ValidationError{Message: "a void reason is required"}
	}

	db := config.GetDB()
	var sale Sale
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", saleId).Take(&sale).Error
		if err == gorm.ErrRecordNotFound {
			return &SaleNotFoundError{SaleId: saleId}
		}
		if err != nil {
			return err
		}
		if sale.IsVoided {
			return &ValidationError{Message: "sale is already voided"}
		}

		// The void must not slip under a day-close. Locking the reconciliation
		// row serializes this void behind an in-flight approval of the same
		// date: approval holds this row FOR UPDATE until it commits, so by the
		// time we read it here is_reconciled reflects the committed outcome.
		var recon Reconciliation
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("reconciliation_date = ?", sale.SaleDate).Take(&recon).Error
		if err != nil && err != gorm.ErrRecordNotFound {
			return err
		}
		if err == nil && recon.IsReconciled {
			return &ReconciliationLockedError{Date: sale.SaleDate.Format("2006-01-02")}
		}

		releasedTo, err := releaseVoidedToken(tx, sale.SevaId, sale.SerialNumber)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := tx.Model(&Sale{}).Where("id = ?", sale.ID).Updates(map[string]interface{}{
			"is_voided":   true,
			"void_reason": reason,
			"voided_at":   &now,
		}).Error; err != nil {
			return err
		}
		sale.IsVoided = true
		sale.VoidReason = reason
		sale.VoidedAt = &now

		return createHistory(tx, ctx, "VOID", sale.ID, "Sale",
			map[string]interface{}{"token_status": string(releasedTo)},
			"sale "+sale.ID+" voided: "+reason)
	})
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func GetSale(ctx context.Context, saleId string) (*Sale, error) {
	db := config.GetDB()
	var sale Sale
	err := db.WithContext(ctx).Where("id = ?", saleId).Take(&sale).Error
	if err == gorm.ErrRecordNotFound {
		return nil, &SaleNotFoundError{SaleId: saleId}
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// GetSalesForDate returns the non-voided sales of a civil date, ordered for a
// deterministic reconciliation snapshot.
func GetSalesForDate(tx *gorm.DB, date time.Time) ([]*Sale, error) {
	var sales []*Sale
	err := tx.
		Where("sale_date = ? AND is_voided = 0", date).
		Order("counter_number, sale_timestamp, id").
		Find(&sales).Error
	if err != nil {
		return nil, err
	}
	return sales, nil
}

func GetSales(ctx context.Context, date *time.Time, counterNumber *int) ([]*Sale, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	if date != nil {
		dbCtx = dbCtx.Where("sale_date = ?", *date)
	}
	if counterNumber != nil {
		dbCtx = dbCtx.Where("counter_number = ?", *counterNumber)
	}
	var sales []*Sale
	if err := dbCtx.Order("sale_timestamp DESC").Find(&sales).Error; err != nil {
		return nil, err
	}
	return sales, nil
}
