package models_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/temple_backend/models"
	"github.com/shopspring/decimal"
)

func mkSale(counter int, amount int64, mode models.PaymentMode, voided bool) *models.Sale {
	return &models.Sale{
		CounterNumber: counter,
		Amount:        decimal.NewFromInt(amount),
		PaymentMode:   mode,
		IsVoided:      voided,
	}
}

func TestSummarizeSalesByCounter(t *testing.T) {
	// Counter 1 sells 500 cash + 300 upi, counter 2 sells 200 cash.
	sales := []*models.Sale{
		mkSale(1, 500, models.PaymentModeCash, false),
		mkSale(1, 300, models.PaymentModeUpi, false),
		mkSale(2, 200, models.PaymentModeCash, false),
	}

	summary := models.SummarizeSalesByCounter(sales)

	if summary.TotalTokens != 3 {
		t.Fatalf("expected 3 tokens; got %d", summary.TotalTokens)
	}
	if !summary.TotalCash.Equal(decimal.NewFromInt(700)) {
		t.Fatalf("expected total cash 700; got %s", summary.TotalCash)
	}
	if !summary.TotalUpi.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected total upi 300; got %s", summary.TotalUpi)
	}
	if !summary.TotalAmount.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("expected total amount 1000; got %s", summary.TotalAmount)
	}

	if len(summary.Counters) != 2 {
		t.Fatalf("expected 2 counter summaries; got %d", len(summary.Counters))
	}
	c1 := summary.Counters[0]
	if c1.CounterNumber != 1 || c1.TokensSold != 2 ||
		!c1.CashTotal.Equal(decimal.NewFromInt(500)) ||
		!c1.UpiTotal.Equal(decimal.NewFromInt(300)) ||
		!c1.CombinedTotal.Equal(decimal.NewFromInt(800)) {
		t.Fatalf("unexpected counter 1 summary: %+v", c1)
	}
	c2 := summary.Counters[1]
	if c2.CounterNumber != 2 || c2.TokensSold != 1 ||
		!c2.CashTotal.Equal(decimal.NewFromInt(200)) ||
		!c2.UpiTotal.IsZero() ||
		!c2.CombinedTotal.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("unexpected counter 2 summary: %+v", c2)
	}
}

func TestSummarizeSalesByCounterSkipsVoided(t *testing.T) {
	sales := []*models.Sale{
		mkSale(1, 500, models.PaymentModeCash, false),
		mkSale(1, 999, models.PaymentModeCash, true),
		nil,
	}

	summary := models.SummarizeSalesByCounter(sales)
	if summary.TotalTokens != 1 {
		t.Fatalf("expected voided and nil sales skipped; got %d tokens", summary.TotalTokens)
	}
	if !summary.TotalAmount.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected total 500; got %s", summary.TotalAmount)
	}
}

func TestSummarizeSalesByCounterEmpty(t *testing.T) {
	summary := models.SummarizeSalesByCounter(nil)
	if summary.TotalTokens != 0 || !summary.TotalAmount.IsZero() {
		t.Fatalf("expected zero-valued summary; got %+v", summary)
	}
	if len(summary.Counters) != 0 {
		t.Fatalf("expected no counters; got %d", len(summary.Counters))
	}
}

func TestCashDiscrepancy(t *testing.T) {
	cases := []struct {
		name      string
		counted   int64
		recorded  int64
		tolerance int64
		wantDiff  int64
		wantFlag  bool
	}{
		{"exact match", 700, 700, 0, 0, false},
		{"shortage flagged", 650, 700, 0, -50, true},
		{"excess flagged", 750, 700, 0, 50, true},
		{"within tolerance", 698, 700, 5, -2, false},
		{"at tolerance boundary", 695, 700, 5, -5, false},
		{"past tolerance", 694, 700, 5, -6, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			diff, flagged := models.CashDiscrepancy(
				decimal.NewFromInt(tc.counted),
				decimal.NewFromInt(tc.recorded),
				decimal.NewFromInt(tc.tolerance))
			if !diff.Equal(decimal.NewFromInt(tc.wantDiff)) {
				t.Fatalf("expected diff %d; got %s", tc.wantDiff, diff)
			}
			if flagged != tc.wantFlag {
				t.Fatalf("expected flagged=%v; got %v", tc.wantFlag, flagged)
			}
		})
	}
}
