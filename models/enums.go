package models

import (
	"encoding/json"
	"errors"
)

// TokenStatus is the lifecycle state of a physical seva token.
//
// available -> sold -> used (terminal, redemption at the seva counter)
// available -> expired (terminal, background sweep)
// available -> damaged | void (terminal, manual action)
// sold -> available only via sale void before day-close approval, and only
// when TOKEN_VOID_REISSUE is enabled; otherwise sold -> void.
type TokenStatus string

const (
	TokenStatusAvailable TokenStatus = "available"
	TokenStatusSold      TokenStatus = "sold"
	TokenStatusUsed      TokenStatus = "used"
	TokenStatusExpired   TokenStatus = "expired"
	TokenStatusDamaged   TokenStatus = "damaged"
	TokenStatusVoid      TokenStatus = "void"
)

func (t TokenStatus) IsValid() bool {
	switch t {
	case TokenStatusAvailable, TokenStatusSold, TokenStatusUsed,
		TokenStatusExpired, TokenStatusDamaged, TokenStatusVoid:
		return true
	}
	return false
}

func (t TokenStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(t))
}

func (t *TokenStatus) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("token status must be string")
	}
	s := TokenStatus(str)
	if !s.IsValid() {
		return errors.New("invalid token status")
	}
	*t = s
	return nil
}

type PaymentMode string

const (
	PaymentModeCash PaymentMode = "cash"
	PaymentModeUpi  PaymentMode = "upi"
)

func (p PaymentMode) IsValid() bool {
	switch p {
	case PaymentModeCash, PaymentModeUpi:
		return true
	}
	return false
}

func (p PaymentMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(p))
}

func (p *PaymentMode) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("payment mode must be string")
	}
	m := PaymentMode(str)
	if !m.IsValid() {
		return errors.New("invalid payment mode")
	}
	*p = m
	return nil
}

type UserRole string

const (
	UserRoleAdmin      UserRole = "A"
	UserRoleSupervisor UserRole = "S"
	UserRoleOperator   UserRole = "O"
)

func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleAdmin, UserRoleSupervisor, UserRoleOperator:
		return true
	}
	return false
}

// CanApproveDayClose: reconciliation approval is a supervisor action.
func (r UserRole) CanApproveDayClose() bool {
	return r == UserRoleAdmin || r == UserRoleSupervisor
}

func (r UserRole) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(r))
}

func (r *UserRole) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("user role must be string")
	}
	roles := map[string]UserRole{
		"A": UserRoleAdmin,
		"S": UserRoleSupervisor,
		"O": UserRoleOperator,
	}
	role, ok := roles[str]
	if !ok {
		return errors.New("invalid user role")
	}
	*r = role
	return nil
}
