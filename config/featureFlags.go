package config

import (
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

// VoidTokenReissue controls what happens to a token when its sale is voided.
//
// Default (false): the token moves to a terminal 'void' status. A voided
// physical token may already have left the counter, so reissuing it risks a
// duplicate voucher in the wild.
//
// Temples that collect tokens back at the counter (laminated, reusable ones)
// can opt into resale, which returns the token to 'available':
// - TOKEN_VOID_REISSUE=true
func VoidTokenReissue() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("TOKEN_VOID_REISSUE")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// CashCountTolerance is the maximum absolute difference between the manually
// counted cash and the recorded cash total that does NOT flag a discrepancy.
//
// Set via env:
// - RECON_CASH_TOLERANCE="5.00"
//
// Default 0: any non-zero difference is a discrepancy.
func CashCountTolerance() decimal.Decimal {
	raw := strings.TrimSpace(os.Getenv("RECON_CASH_TOLERANCE"))
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// TempleTimezone is the civil timezone used to bucket sales into
// reconciliation dates.
//
// Set via env:
// - TEMPLE_TIMEZONE="Asia/Kolkata"
func TempleTimezone() string {
	tz := strings.TrimSpace(os.Getenv("TEMPLE_TIMEZONE"))
	if tz == "" {
		return "Asia/Kolkata"
	}
	return tz
}
