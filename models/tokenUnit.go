package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/temple_backend/config"
	"bitbucket.org/mmdatafocus/temple_backend/utils"
	"gorm.io/gorm"
)

// TokenUnit is one pre-printed physical token. Rows are never deleted; every
// state change is an atomic conditional update so a read can never be stale
// between "check availability" and "claim it".
type TokenUnit struct {
	ID           int         `gorm:"primary_key" json:"id"`
	SevaId       int         `gorm:"uniqueIndex:idx_seva_serial;not null" json:"seva_id" binding:"required"`
	SerialNumber string      `gorm:"uniqueIndex:idx_seva_serial;size:50;not null" json:"serial_number" binding:"required"`
	TokenNumber  int         `json:"token_number"`
	BatchNumber  string      `gorm:"size:50;index" json:"batch_number"`
	Color        string      `gorm:"size:30" json:"color"`
	PrintedDate  *time.Time  `json:"printed_date"`
	ExpiryDate   *time.Time  `gorm:"index" json:"expiry_date"`
	Status       TokenStatus `gorm:"type:enum('available','sold','used','expired','damaged','void');default:'available';index" json:"status"`
	CreatedAt    time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewTokenUnit struct {
	SevaId       int        `json:"seva_id" validate:"required,gt=0"`
	SerialNumber string     `json:"serial_number" validate:"required,max=50"`
	TokenNumber  int        `json:"token_number"`
	BatchNumber  string     `json:"batch_number" validate:"max=50"`
	Color        string     `json:"color" validate:"max=30"`
	PrintedDate  *time.Time `json:"printed_date"`
	ExpiryDate   *time.Time `json:"expiry_date"`
}

type tokenKey struct {
	SevaId       int
	SerialNumber string
}

// AddTokens loads a printed batch into inventory. All-or-nothing: a single
// duplicate (seva_id, serial_number) rolls the whole batch back.
func AddTokens(ctx context.Context, specs []*NewTokenUnit) ([]*TokenUnit, error) {
	if len(specs) == 0 {
		return nil, &ValidationError{Message: "at least one token spec is required"}
	}

	seen := make(map[tokenKey]bool, len(specs))
	units := make([]*TokenUnit, 0, len(specs))
	for _, spec := range specs {
		if err := utils.ValidateStruct(spec); err != nil {
			return nil, &ValidationError{Message: "invalid token spec: " + err.Error()}
		}
		key := tokenKey{SevaId: spec.SevaId, SerialNumber: spec.SerialNumber}
		if seen[key] {
			return nil, &DuplicateSerialError{SevaId: spec.SevaId, SerialNumber: spec.SerialNumber}
		}
		seen[key] = true

		units = append(units, &TokenUnit{
			SevaId:       spec.SevaId,
			SerialNumber: spec.SerialNumber,
			TokenNumber:  spec.TokenNumber,
			BatchNumber:  spec.BatchNumber,
			Color:        spec.Color,
			PrintedDate:  spec.PrintedDate,
			ExpiryDate:   spec.ExpiryDate,
			Status:       TokenStatusAvailable,
		})
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&units).Error; err != nil {
			if isDuplicateKeyErr(err) {
				if conflict := findExistingToken(tx, units); conflict != nil {
					return conflict
				}
				return &DuplicateSerialError{SevaId: units[0].SevaId, SerialNumber: units[0].SerialNumber}
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return units, nil
}

// findExistingToken reports which batch member collided, for the error message.
func findExistingToken(tx *gorm.DB, units []*TokenUnit) *DuplicateSerialError {
	for _, u := range units {
		var count int64
		if err := tx.Model(&TokenUnit{}).
			Where("seva_id = ? AND serial_number = ?", u.SevaId, u.SerialNumber).
			Count(&count).Error; err != nil {
			return nil
		}
		if count > 0 {
			return &DuplicateSerialError{SevaId: u.SevaId, SerialNumber: u.SerialNumber}
		}
	}
	return nil
}

// TokenStatusSummary is the per-seva inventory projection.
type TokenStatusSummary struct {
	SevaId    int   `json:"seva_id"`
	Available int64 `json:"available"`
	Sold      int64 `json:"sold"`
	Used      int64 `json:"used"`
	Expired   int64 `json:"expired"`
	Damaged   int64 `json:"damaged"`
	Void      int64 `json:"void"`
	Total     int64 `json:"total"`
}

// GetTokenInventoryStatus returns per-seva counts by status, for all sevas or
// one when sevaId is given.
func GetTokenInventoryStatus(ctx context.Context, sevaId *int) ([]*TokenStatusSummary, error) {
	db := config.GetDB()

	type statusRow struct {
		SevaId int
		Status TokenStatus
		Count  int64
	}
	var rows []statusRow

	dbCtx := db.WithContext(ctx).Model(&TokenUnit{}).
		Select("seva_id, status, COUNT(*) as count").
		Group("seva_id, status")
	if sevaId != nil {
		dbCtx = dbCtx.Where("seva_id = ?", *sevaId)
	}
	if err := dbCtx.Order("seva_id").Scan(&rows).Error; err != nil {
		return nil, err
	}

	byId := make(map[int]*TokenStatusSummary)
	order := make([]int, 0)
	for _, row := range rows {
		summary, ok := byId[row.SevaId]
		if !ok {
			summary = &TokenStatusSummary{SevaId: row.SevaId}
			byId[row.SevaId] = summary
			order = append(order, row.SevaId)
		}
		switch row.Status {
		case TokenStatusAvailable:
			summary.Available = row.Count
		case TokenStatusSold:
			summary.Sold = row.Count
		case TokenStatusUsed:
			summary.Used = row.Count
		case TokenStatusExpired:
			summary.Expired = row.Count
		case TokenStatusDamaged:
			summary.Damaged = row.Count
		case TokenStatusVoid:
			summary.Void = row.Count
		}
		summary.Total += row.Count
	}

	results := make([]*TokenStatusSummary, 0, len(order))
	for _, id := range order {
		results = append(results, byId[id])
	}
	return results, nil
}

// reserveTokenForSale is the correctness-critical primitive: a single
// conditional UPDATE claims the token for exactly one caller. Every other
// concurrent caller sees zero rows affected and gets TokenUnavailableError.
func reserveTokenForSale(tx *gorm.DB, sevaId int, serialNumber string) (*TokenUnit, error) {
	res := tx.Model(&TokenUnit{}).
		Where("seva_id = ? AND serial_number = ? AND status = ?", sevaId, serialNumber, TokenStatusAvailable).
		Update("status", TokenStatusSold)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		var unit TokenUnit
		err := tx.Where("seva_id = ? AND serial_number = ?", sevaId, serialNumber).Take(&unit).Error
		if err == gorm.ErrRecordNotFound {
			return nil, &TokenNotFoundError{SevaId: sevaId, SerialNumber: serialNumber}
		}
		if err != nil {
			return nil, err
		}
		return nil, &TokenUnavailableError{SevaId: sevaId, SerialNumber: serialNumber, Status: unit.Status}
	}

	var unit TokenUnit
	if err := tx.Where("seva_id = ? AND serial_number = ?", sevaId, serialNumber).Take(&unit).Error; err != nil {
		return nil, err
	}
	return &unit, nil
}

// ReserveTokenForSale claims one available token in its own transaction.
// RecordSale is the normal caller of the primitive; this standalone form
// exists for counter flows that collect payment after the claim.
func ReserveTokenForSale(ctx context.Context, sevaId int, serialNumber string) (*TokenUnit, error) {
	db := config.GetDB()
	var unit *TokenUnit
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		unit, err = reserveTokenForSale(tx, sevaId, serialNumber)
		return err
	})
	if err != nil {
		return nil, err
	}
	return unit, nil
}

// releaseVoidedToken reverses a sold token when its sale is voided. The target
// status depends on the reissue policy; either way it is the same conditional
// update shape as the claim, so it cannot race a redemption.
func releaseVoidedToken(tx *gorm.DB, sevaId int, serialNumber string) (TokenStatus, error) {
	target := TokenStatusVoid
	if config.VoidTokenReissue() {
		target = TokenStatusAvailable
	}
	res := tx.Model(&TokenUnit{}).
		Where("seva_id = ? AND serial_number = ? AND status = ?", sevaId, serialNumber, TokenStatusSold).
		Update("status", target)
	if res.Error != nil {
		return target, res.Error
	}
	if res.RowsAffected == 0 {
		var unit TokenUnit
		err := tx.Where("seva_id = ? AND serial_number = ?", sevaId, serialNumber).Take(&unit).Error
		if err == gorm.ErrRecordNotFound {
			return target, &TokenNotFoundError{SevaId: sevaId, SerialNumber: serialNumber}
		}
		if err != nil {
			return target, err
		}
		return target, &TokenUnavailableError{SevaId: sevaId, SerialNumber: serialNumber, Status: unit.Status}
	}
	return target, nil
}

// MarkExpiredTokens sweeps available tokens past their expiry date. Idempotent,
// and uses the same conditional update as reservation so it cannot expire a
// token a counter is mid-transaction claiming.
func MarkExpiredTokens(ctx context.Context, asOf time.Time) (int64, error) {
	db := config.GetDB()
	res := db.WithContext(ctx).Model(&TokenUnit{}).
		Where("status = ? AND expiry_date IS NOT NULL AND expiry_date < ?", TokenStatusAvailable, asOf).
		Update("status", TokenStatusExpired)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// MarkTokenDamaged retires a physically damaged token (manual action, terminal).
func MarkTokenDamaged(ctx context.Context, sevaId int, serialNumber string) (*TokenUnit, error) {
	db := config.GetDB()
	var unit *TokenUnit
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&TokenUnit{}).
			Where("seva_id = ? AND serial_number = ? AND status = ?", sevaId, serialNumber, TokenStatusAvailable).
			Update("status", TokenStatusDamaged)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var existing TokenUnit
			err := tx.Where("seva_id = ? AND serial_number = ?", sevaId, serialNumber).Take(&existing).Error
			if err == gorm.ErrRecordNotFound {
				return &TokenNotFoundError{SevaId: sevaId, SerialNumber: serialNumber}
			}
			if err != nil {
				return err
			}
			return &TokenUnavailableError{SevaId: sevaId, SerialNumber: serialNumber, Status: existing.Status}
		}
		var updated TokenUnit
		if err := tx.Where("seva_id = ? AND serial_number = ?", sevaId, serialNumber).Take(&updated).Error; err != nil {
			return err
		}
		unit = &updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return unit, nil
}

// MarkTokenUsed records the redemption of a sold token at the seva counter.
func MarkTokenUsed(ctx context.Context, sevaId int, serialNumber string) (*TokenUnit, error) {
	db := config.GetDB()
	var unit *TokenUnit
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&TokenUnit{}).
			Where("seva_id = ? AND serial_number = ? AND status = ?", sevaId, serialNumber, TokenStatusSold).
			Update("status", TokenStatusUsed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var existing TokenUnit
			err := tx.Where("seva_id = ? AND serial_number = ?", sevaId, serialNumber).Take(&existing).Error
			if err == gorm.ErrRecordNotFound {
				return &TokenNotFoundError{SevaId: sevaId, SerialNumber: serialNumber}
			}
			if err != nil {
				return err
			}
			return &TokenUnavailableError{SevaId: sevaId, SerialNumber: serialNumber, Status: existing.Status}
		}
		var updated TokenUnit
		if err := tx.Where("seva_id = ? AND serial_number = ?", sevaId, serialNumber).Take(&updated).Error; err != nil {
			return err
		}
		unit = &updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return unit, nil
}

func GetTokenUnit(ctx context.Context, sevaId int, serialNumber string) (*TokenUnit, error) {
	db := config.GetDB()
	var unit TokenUnit
	err := db.WithContext(ctx).
		Where("seva_id = ? AND serial_number = ?", sevaId, serialNumber).
		Take(&unit).Error
	if err == gorm.ErrRecordNotFound {
		return nil, &TokenNotFoundError{SevaId: sevaId, SerialNumber: serialNumber}
	}
	if err != nil {
		return nil, err
	}
	return &unit, nil
}
