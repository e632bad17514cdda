package models_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/temple_backend/models"
)

func TestErrorKind(t *testing.T) {
	cases := []struct {
		err  error
		kind string
	}{
		{&models.ValidationError{Message: "bad input"}, models.ErrKindValidation},
		{&models.ForbiddenError{Message: "nope"}, models.ErrKindForbidden},
		{&models.TokenNotFoundError{SevaId: 1, SerialNumber: "A-001"}, models.ErrKindTokenNotFound},
		{&models.TokenUnavailableError{SevaId: 1, SerialNumber: "A-001", Status: models.TokenStatusSold}, models.ErrKindTokenUnavailable},
		{&models.DuplicateSerialError{SevaId: 1, SerialNumber: "A-001"}, models.ErrKindDuplicateSerial},
		{&models.SaleNotFoundError{SaleId: "x"}, models.ErrKindSaleNotFound},
		{&models.DuplicateReconciliationError{Date: "2026-08-30"}, models.ErrKindDuplicateReconciliation},
		{&models.ReconciliationNotFoundError{Id: 9}, models.ErrKindReconciliationNotFound},
		{&models.AlreadyApprovedError{Id: 9, Date: "2026-08-30"}, models.ErrKindAlreadyApproved},
		{&models.UnresolvedDiscrepancyError{Id: 9}, models.ErrKindUnresolvedDiscrepancy},
		{&models.ReconciliationLockedError{Date: "2026-08-30"}, models.ErrKindReconciliationLocked},
	}
	for _, tc := range cases {
		if got := models.ErrorKind(tc.err); got != tc.kind {
			t.Errorf("ErrorKind(%T) = %q, want %q", tc.err, got, tc.kind)
		}
	}
}

func TestErrorKindWrapped(t *testing.T) {
	err := fmt.Errorf("recording sale: %w",
		&models.TokenUnavailableError{SevaId: 2, SerialNumber: "B-010", Status: models.TokenStatusUsed})
	if got := models.ErrorKind(err); got != models.ErrKindTokenUnavailable {
		t.Fatalf("ErrorKind through wrapping = %q, want %q", got, models.ErrKindTokenUnavailable)
	}
}

func TestErrorKindUntyped(t *testing.T) {
	if got := models.ErrorKind(errors.New("boom")); got != "" {
		t.Fatalf("ErrorKind(untyped) = %q, want empty", got)
	}
	if got := models.ErrorKind(nil); got != "" {
		t.Fatalf("ErrorKind(nil) = %q, want empty", got)
	}
}

func TestTokenUnavailableErrorMessageNamesStatus(t *testing.T) {
	err := &models.TokenUnavailableError{SevaId: 3, SerialNumber: "C-007", Status: models.TokenStatusSold}
	msg := err.Error()
	if !strings.Contains(msg, "sold") {
		t.Fatalf("expected status in message %q", msg)
	}
	if !strings.Contains(msg, "C-007") {
		t.Fatalf("expected serial in message %q", msg)
	}
}
