package models

import (
	"errors"
	"fmt"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// Every externally visible failure carries a distinguishable kind plus a
// human-readable reason. The API layer maps kinds to HTTP statuses.

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

type TokenNotFoundError struct {
	SevaId       int
	SerialNumber string
}

func (e *TokenNotFoundError) Error() string {
	return fmt.Sprintf("token %q for seva %d not found", e.SerialNumber, e.SevaId)
}

type TokenUnavailableError struct {
	SevaId       int
	SerialNumber string
	Status       TokenStatus
}

func (e *TokenUnavailableError) Error() string {
	return fmt.Sprintf("token %q for seva %d is not available (status: %s); scan a fresh token", e.SerialNumber, e.SevaId, e.Status)
}

type DuplicateSerialError struct {
	SevaId       int
	SerialNumber string
}

func (e *DuplicateSerialError) Error() string {
	return fmt.Sprintf("token %q for seva %d already exists; no tokens were added", e.SerialNumber, e.SevaId)
}

type SaleNotFoundError struct {
	SaleId string
}

func (e *SaleNotFoundError) Error() string {
	return fmt.Sprintf("sale %q not found", e.SaleId)
}

type DuplicateReconciliationError struct {
	Date string
}

func (e *DuplicateReconciliationError) Error() string {
	return fmt.Sprintf("a reconciliation already exists for %s", e.Date)
}

type ReconciliationNotFoundError struct {
	Id int
}

func (e *ReconciliationNotFoundError) Error() string {
	return fmt.Sprintf("reconciliation %d not found", e.Id)
}

type AlreadyApprovedError struct {
	Id   int
	Date string
}

func (e *AlreadyApprovedError) Error() string {
	return fmt.Sprintf("reconciliation %d (%s) is approved and frozen; record corrections as adjustments", e.Id, e.Date)
}

type UnresolvedDiscrepancyError struct {
	Id int
}

func (e *UnresolvedDiscrepancyError) Error() string {
	return fmt.Sprintf("reconciliation %d has an unexplained cash discrepancy; add discrepancy notes before approving", e.Id)
}

type ReconciliationLockedError struct {
	Date string
}

func (e *ReconciliationLockedError) Error() string {
	return fmt.Sprintf("the reconciliation for %s is approved; sales of that day can no longer be voided", e.Date)
}

type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string { return e.Message }

// Error kinds for API responses.
const (
	ErrKindForbidden               = "FORBIDDEN"
	ErrKindValidation              = "VALIDATION"
	ErrKindTokenNotFound           = "TOKEN_NOT_FOUND"
	ErrKindTokenUnavailable        = "TOKEN_UNAVAILABLE"
	ErrKindDuplicateSerial         = "DUPLICATE_SERIAL"
	ErrKindSaleNotFound            = "SALE_NOT_FOUND"
	ErrKindDuplicateReconciliation = "DUPLICATE_RECONCILIATION"
	ErrKindReconciliationNotFound  = "RECONCILIATION_NOT_FOUND"
	ErrKindAlreadyApproved         = "ALREADY_APPROVED"
	ErrKindUnresolvedDiscrepancy   = "UNRESOLVED_DISCREPANCY"
	ErrKindReconciliationLocked    = "RECONCILIATION_LOCKED"
)

// ErrorKind returns the kind string for a typed operation error, or "" for
// untyped (internal) errors.
func ErrorKind(err error) string {
	var (
		vErr  *ValidationError
		tnf   *TokenNotFoundError
		tua   *TokenUnavailableError
		dup   *DuplicateSerialError
		snf   *SaleNotFoundError
		dupR  *DuplicateReconciliationError
		rnf   *ReconciliationNotFoundError
		appr  *AlreadyApprovedError
		disc  *UnresolvedDiscrepancyError
		lockd *ReconciliationLockedError
		forb  *ForbiddenError
	)
	switch {
	case errors.As(err, &forb):
		return ErrKindForbidden
	case errors.As(err, &vErr):
		return ErrKindValidation
	case errors.As(err, &tnf):
		return ErrKindTokenNotFound
	case errors.As(err, &tua):
		return ErrKindTokenUnavailable
	case errors.As(err, &dup):
		return ErrKindDuplicateSerial
	case errors.As(err, &snf):
		return ErrKindSaleNotFound
	case errors.As(err, &dupR):
		return ErrKindDuplicateReconciliation
	case errors.As(err, &rnf):
		return ErrKindReconciliationNotFound
	case errors.As(err, &appr):
		return ErrKindAlreadyApproved
	case errors.As(err, &disc):
		return ErrKindUnresolvedDiscrepancy
	case errors.As(err, &lockd):
		return ErrKindReconciliationLocked
	}
	return ""
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
