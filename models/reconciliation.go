package models

import (
	"context"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/temple_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Reconciliation is the end-of-day record for one civil date. It is mutable
// only while is_reconciled = 0; approval freezes it, and corrections from then
// on are appended as ReconciliationAdjustment rows.
type Reconciliation struct {
	ID                 int                            `gorm:"primary_key" json:"id"`
	ReconciliationDate time.Time                      `gorm:"type:date;uniqueIndex;not null" json:"reconciliation_date"`
	TotalTokens        int                            `gorm:"not null;default:0" json:"total_tokens"`
	TotalAmount        decimal.Decimal                `gorm:"type:decimal(20,4);not null;default:0" json:"total_amount"`
	TotalCash          decimal.Decimal                `gorm:"type:decimal(20,4);not null;default:0" json:"total_cash"`
	TotalUpi           decimal.Decimal                `gorm:"type:decimal(20,4);not null;default:0" json:"total_upi"`
	CountedCashAmount  *decimal.Decimal               `gorm:"type:decimal(20,4)" json:"counted_cash_amount"`
	HasDiscrepancy     bool                           `gorm:"not null;default:false" json:"has_discrepancy"`
	DiscrepancyAmount  decimal.Decimal                `gorm:"type:decimal(20,4);not null;default:0" json:"discrepancy_amount"`
	DiscrepancyNotes   string                         `gorm:"type:text" json:"discrepancy_notes"`
	IsReconciled       bool                           `gorm:"not null;default:false" json:"is_reconciled"`
	ApprovedBy         string                         `gorm:"size:100" json:"approved_by"`
	ApprovedAt         *time.Time                     `json:"approved_at"`
	CounterSummaries   []ReconciliationCounterSummary `gorm:"foreignKey:ReconciliationId" json:"counter_summaries"`
	CreatedAt          time.Time                      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time                      `gorm:"autoUpdateTime" json:"updated_at"`
}

// ReconciliationCounterSummary is one counter's share of a day's sales.
type ReconciliationCounterSummary struct {
	ID               int             `gorm:"primary_key" json:"id"`
	ReconciliationId int             `gorm:"uniqueIndex:idx_recon_counter;not null" json:"reconciliation_id"`
	CounterNumber    int             `gorm:"uniqueIndex:idx_recon_counter;not null" json:"counter_number"`
	TokensSold       int             `gorm:"not null;default:0" json:"tokens_sold"`
	CashTotal        decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"cash_total"`
	UpiTotal         decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"upi_total"`
	CombinedTotal    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"combined_total"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// ReconciliationAdjustment is a compensating entry against an approved
// (frozen) reconciliation. Append-only; never netted back into the parent.
type ReconciliationAdjustment struct {
	ID               int             `gorm:"primary_key" json:"id"`
	ReconciliationId int             `gorm:"index;not null" json:"reconciliation_id"`
	Amount           decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Reason           string          `gorm:"size:255;not null" json:"reason"`
	CreatedBy        string          `gorm:"size:100" json:"created_by"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// DaySalesSummary is the result of folding one day's sales.
type DaySalesSummary struct {
	TotalTokens int
	TotalAmount decimal.Decimal
	TotalCash   decimal.Decimal
	TotalUpi    decimal.Decimal
	Counters    []ReconciliationCounterSummary
}

// SummarizeSalesByCounter is a pure fold over a day's non-voided sales. It is
// computed fresh from the sale rows on every reconciliation so stored
// aggregates can never drift from the transactions underneath them.
func SummarizeSalesByCounter(sales []*Sale) DaySalesSummary {
	summary := DaySalesSummary{
		TotalAmount: decimal.Zero,
		TotalCash:   decimal.Zero,
		TotalUpi:    decimal.Zero,
	}

	byCounter := make(map[int]*ReconciliationCounterSummary)
	for _, sale := range sales {
		if sale == nil || sale.IsVoided {
			continue
		}
		counter, ok := byCounter[sale.CounterNumber]
		if !ok {
			counter = &ReconciliationCounterSummary{
				CounterNumber: sale.CounterNumber,
				CashTotal:     decimal.Zero,
				UpiTotal:      decimal.Zero,
				CombinedTotal: decimal.Zero,
			}
			byCounter[sale.CounterNumber] = counter
		}

		counter.TokensSold++
		counter.CombinedTotal = counter.CombinedTotal.Add(sale.Amount)
		switch sale.PaymentMode {
		case PaymentModeCash:
			counter.CashTotal = counter.CashTotal.Add(sale.Amount)
			summary.TotalCash = summary.TotalCash.Add(sale.Amount)
		case PaymentModeUpi:
			counter.UpiTotal = counter.UpiTotal.Add(sale.Amount)
			summary.TotalUpi = summary.TotalUpi.Add(sale.Amount)
		}
		summary.TotalTokens++
		summary.TotalAmount = summary.TotalAmount.Add(sale.Amount)
	}

	counters := make([]ReconciliationCounterSummary, 0, len(byCounter))
	for _, c := range byCounter {
		counters = append(counters, *c)
	}
	sort.Slice(counters, func(i, j int) bool {
		return counters[i].CounterNumber < counters[j].CounterNumber
	})
	summary.Counters = counters
	return summary
}

// CashDiscrepancy reports the signed difference between counted and recorded
// cash, and whether it exceeds the tolerance.
func CashDiscrepancy(countedCash, totalCash, tolerance decimal.Decimal) (decimal.Decimal, bool) {
	diff := countedCash.Sub(totalCash)
	return diff, diff.Abs().GreaterThan(tolerance)
}

func GetReconciliation(ctx context.Context, id int) (*Reconciliation, error) {
	db := config.GetDB()
	var recon Reconciliation
	err := db.WithContext(ctx).Preload("CounterSummaries").
		Where("id = ?", id).Take(&recon).Error
	if err == gorm.ErrRecordNotFound {
		return nil, &ReconciliationNotFoundError{Id: id}
	}
	if err != nil {
		return nil, err
	}
	return &recon, nil
}

func GetReconciliationByDate(ctx context.Context, date time.Time) (*Reconciliation, error) {
	db := config.GetDB()
	var recon Reconciliation
	err := db.WithContext(ctx).Preload("CounterSummaries").
		Where("reconciliation_date = ?", date).Take(&recon).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &recon, nil
}

// GetReconciliationAdjustments lists the compensating entries of a frozen record.
func GetReconciliationAdjustments(ctx context.Context, reconciliationId int) ([]*ReconciliationAdjustment, error) {
	db := config.GetDB()
	var adjustments []*ReconciliationAdjustment
	err := db.WithContext(ctx).
		Where("reconciliation_id = ?", reconciliationId).
		Order("id").Find(&adjustments).Error
	if err != nil {
		return nil, err
	}
	return adjustments, nil
}
