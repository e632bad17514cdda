package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/temple_backend/config"
	"bitbucket.org/mmdatafocus/temple_backend/utils"
)

// Devotee is an optional directory entry a sale may reference for receipts
// and follow-up. Sales of walk-in devotees carry a nil devotee id.
type Devotee struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Mobile    string    `gorm:"size:20;index" json:"mobile"`
	Email     string    `gorm:"size:100" json:"email"`
	Gotra     string    `gorm:"size:100" json:"gotra"`
	Address   string    `gorm:"size:255" json:"address"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewDevotee struct {
	Name    string `json:"name" binding:"required"`
	Mobile  string `json:"mobile"`
	Email   string `json:"email"`
	Gotra   string `json:"gotra"`
	Address string `json:"address"`
}

func (input *NewDevotee) validate() error {
	if input.Mobile != "" {
		if err := utils.ValidatePhoneNumber(input.Mobile, utils.CountryCode); err != nil {
			return &ValidationError{Message: "invalid mobile number"}
		}
	}
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return &ValidationError{Message: "invalid email address"}
	}
	return nil
}

func CreateDevotee(ctx context.Context, input *NewDevotee) (*Devotee, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	devotee := Devotee{
		Name:    input.Name,
		Mobile:  input.Mobile,
		Email:   input.Email,
		Gotra:   input.Gotra,
		Address: input.Address,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&devotee).Error; err != nil {
		return nil, err
	}
	return &devotee, nil
}

func UpdateDevotee(ctx context.Context, id int, input *NewDevotee) (*Devotee, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	devotee, err := utils.FetchModel[Devotee](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&devotee).Updates(map[string]interface{}{
		"Name":    input.Name,
		"Mobile":  input.Mobile,
		"Email":   input.Email,
		"Gotra":   input.Gotra,
		"Address": input.Address,
	}).Error
	if err != nil {
		return nil, err
	}
	return devotee, nil
}

func GetDevotee(ctx context.Context, id int) (*Devotee, error) {
	return utils.FetchModel[Devotee](ctx, id)
}

func GetDevotees(ctx context.Context, name *string, mobile *string) ([]*Devotee, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	if mobile != nil && len(*mobile) > 0 {
		dbCtx = dbCtx.Where("mobile = ?", *mobile)
	}
	var results []*Devotee
	if err := dbCtx.Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
