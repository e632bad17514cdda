package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/temple_backend/config"
	"bitbucket.org/mmdatafocus/temple_backend/utils"
	"github.com/shopspring/decimal"
)

// Seva is a catalog entry for a temple offering. Token-eligible sevas have
// pre-printed token books tracked in token_units.
type Seva struct {
	ID              int             `gorm:"primary_key" json:"id"`
	Name            string          `gorm:"size:100;not null;uniqueIndex" json:"name" binding:"required"`
	Description     string          `gorm:"size:255" json:"description"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	TokenColor      string          `gorm:"size:50" json:"token_color"`
	IsTokenEligible *bool           `gorm:"not null;default:true" json:"is_token_eligible"`
	IsActive        *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSeva struct {
	Name            string          `json:"name" binding:"required"`
	Description     string          `json:"description"`
	Amount          decimal.Decimal `json:"amount"`
	TokenColor      string          `json:"token_color"`
	IsTokenEligible *bool           `json:"is_token_eligible"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewSeva) validate(ctx context.Context, id int) error {
	if input.Amount.IsNegative() {
		return &ValidationError{Message: "amount must not be negative"}
	}
	if err := utils.ValidateUnique[Seva](ctx, "name", input.Name, id); err != nil {
		if err == utils.ErrorRecordNotFound {
			return err
		}
		return &ValidationError{Message: "a seva with this name already exists"}
	}
	return nil
}

func sevaCacheKey(id int) string {
	return fmt.Sprintf("Seva:%d", id)
}

func CreateSeva(ctx context.Context, input *NewSeva) (*Seva, error) {
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	seva := Seva{
		Name:            input.Name,
		Description:     input.Description,
		Amount:          input.Amount,
		TokenColor:      input.TokenColor,
		IsTokenEligible: input.IsTokenEligible,
	}
	if seva.IsTokenEligible == nil {
		seva.IsTokenEligible = utils.NewTrue()
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&seva).Error; err != nil {
		return nil, err
	}
	return &seva, nil
}

func UpdateSeva(ctx context.Context, id int, input *NewSeva) (*Seva, error) {
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	seva, err := utils.FetchModel[Seva](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&seva).Updates(map[string]interface{}{
		"Name":            input.Name,
		"Description":     input.Description,
		"Amount":          input.Amount,
		"TokenColor":      input.TokenColor,
		"IsTokenEligible": input.IsTokenEligible,
	}).Error
	if err != nil {
		return nil, err
	}

	// stale cache must not outlive the row it mirrors
	config.RemoveRedisKey(sevaCacheKey(id))
	return seva, nil
}

func GetSeva(ctx context.Context, id int) (*Seva, error) {
	return utils.FetchModel[Seva](ctx, id)
}

// GetSevaCached serves the hot path (every sale validates its seva). Cache
// misses fall through to the DB; Redis being down degrades to DB reads.
func GetSevaCached(ctx context.Context, id int) (*Seva, error) {
	var seva Seva
	found, err := config.GetRedisObject(sevaCacheKey(id), &seva)
	if err == nil && found {
		return &seva, nil
	}

	result, err := utils.FetchModel[Seva](ctx, id)
	if err != nil {
		return nil, err
	}
	config.SetRedisObject(sevaCacheKey(id), result, 10*time.Minute)
	return result, nil
}

func GetSevas(ctx context.Context, name *string, activeOnly bool) ([]*Seva, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	if activeOnly {
		dbCtx = dbCtx.Where("is_active = 1")
	}
	var results []*Seva
	if err := dbCtx.Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func ToggleActiveSeva(ctx context.Context, id int, isActive bool) (*Seva, error) {
	seva, err := utils.FetchModel[Seva](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&seva).Update("is_active", isActive).Error
	if err != nil {
		return nil, err
	}
	config.RemoveRedisKey(sevaCacheKey(id))
	return seva, nil
}
